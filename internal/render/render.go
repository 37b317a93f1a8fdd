// Package render turns report markdown into a PNG using a headless browser.
// The browser is launched lazily on first use and reused; rendering is
// best-effort and callers fall back to plain text on any error.
package render

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/russross/blackfriday/v2"

	"github.com/nextlevelbuilder/goconvo/internal/config"
)

const pageTemplate = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>
body { margin: 0; padding: 24px; width: %dpx; box-sizing: border-box;
       font-family: "Helvetica Neue", "PingFang SC", "Microsoft YaHei", sans-serif;
       font-size: 15px; line-height: 1.6; color: #24292f; background: #ffffff; }
h1, h2, h3 { margin: 0.6em 0 0.3em; line-height: 1.3; }
h1 { font-size: 1.4em; border-bottom: 1px solid #d0d7de; padding-bottom: 0.2em; }
pre { background: #f6f8fa; padding: 12px; border-radius: 6px; overflow-x: hidden;
      white-space: pre-wrap; word-break: break-all; }
code { background: #f6f8fa; padding: 2px 4px; border-radius: 4px; font-size: 0.9em; }
blockquote { margin: 0.5em 0; padding-left: 1em; border-left: 3px solid #d0d7de; color: #57606a; }
table { border-collapse: collapse; } td, th { border: 1px solid #d0d7de; padding: 4px 8px; }
.title { font-size: 1.1em; font-weight: 600; color: #57606a; margin-bottom: 12px; }
</style></head><body><div class="title">%s</div>%s</body></html>`

// Renderer renders markdown to PNG images via a headless browser.
type Renderer struct {
	cfg config.RenderConfig

	mu      sync.Mutex
	browser *rod.Browser
}

func New(cfg config.RenderConfig) *Renderer {
	return &Renderer{cfg: cfg}
}

// RenderMarkdown produces a PNG of the rendered markdown at the configured
// width.
func (r *Renderer) RenderMarkdown(title, markdown string) ([]byte, error) {
	width := r.cfg.Width
	if width <= 0 {
		width = 720
	}

	body := blackfriday.Run([]byte(markdown))
	page := fmt.Sprintf(pageTemplate, width, html.EscapeString(title), body)

	browser, err := r.getBrowser()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	tab, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer tab.Close()

	tab = tab.Timeout(30 * time.Second)
	if err := tab.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            600,
		DeviceScaleFactor: 2,
	}); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	if err := tab.SetDocumentContent(page); err != nil {
		return nil, fmt.Errorf("set content: %w", err)
	}
	if err := tab.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	png, err := tab.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return r.postProcess(png, width)
}

// postProcess scales the 2x screenshot back to the target width so the file
// stays small enough for forward payload limits.
func (r *Renderer) postProcess(png []byte, width int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

func (r *Renderer) getBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New().Headless(true).NoSandbox(true)
	if r.cfg.BrowserBin != "" {
		l = l.Bin(r.cfg.BrowserBin)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, err
	}
	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, err
	}
	r.browser = browser
	return browser, nil
}

// Close shuts the browser down.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		if err := r.browser.Close(); err != nil {
			slog.Debug("browser close failed", "error", err)
		}
		r.browser = nil
	}
}
