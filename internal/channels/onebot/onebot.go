// Package onebot connects to a OneBot v11 implementation over a forward
// websocket. Inbound message events are mapped to typed segments; API calls
// (sends, forwards, group notice/history fetches) go over the same socket and
// are correlated by echo.
package onebot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/goconvo/internal/bus"
	"github.com/nextlevelbuilder/goconvo/internal/channels"
	"github.com/nextlevelbuilder/goconvo/internal/config"
)

const (
	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
	callTimeout  = 15 * time.Second
	writeTimeout = 10 * time.Second
)

// Channel is the OneBot v11 adapter.
type Channel struct {
	*channels.BaseChannel
	cfg config.OneBotConfig

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan json.RawMessage // echo → response
	seq     uint64

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg config.OneBotConfig, msgBus *bus.MessageBus) *Channel {
	return &Channel{
		BaseChannel: channels.NewBaseChannel("onebot", msgBus),
		cfg:         cfg,
		pending:     make(map[string]chan json.RawMessage),
	}
}

// Start connects and begins the read loop. Reconnects with backoff until the
// context is cancelled.
func (c *Channel) Start(ctx context.Context) error {
	if c.cfg.WSURL == "" {
		return fmt.Errorf("onebot: ws_url not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx)
	return nil
}

func (c *Channel) Stop(_ context.Context) error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	return nil
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	backoff := reconnectMin
	for {
		if err := c.connect(ctx); err != nil {
			slog.Warn("onebot connect failed", "error", err, "retry_in", backoff)
		} else {
			c.SetRunning(true)
			backoff = reconnectMin
			c.readLoop(ctx)
			c.SetRunning(false)
		}
		c.failPending()

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

func (c *Channel) connect(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.WSURL, header)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	slog.Info("onebot connected", "url", c.cfg.WSURL)
	return nil
}

func (c *Channel) readLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("onebot read error", "error", err)
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch routes one frame: API responses resolve a pending echo, events go
// to the event parser.
func (c *Channel) dispatch(data []byte) {
	var frame struct {
		Echo     string `json:"echo,omitempty"`
		PostType string `json:"post_type,omitempty"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return
	}
	if frame.Echo != "" {
		c.mu.Lock()
		ch, ok := c.pending[frame.Echo]
		if ok {
			delete(c.pending, frame.Echo)
		}
		c.mu.Unlock()
		if ok {
			ch <- json.RawMessage(data)
		}
		return
	}
	if frame.PostType == "message" {
		c.handleMessageEvent(data)
	}
	// meta_event heartbeats and notices are ignored; the serve loop has its
	// own ticker.
}

// failPending unblocks every in-flight call after a disconnect.
func (c *Channel) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for echo, ch := range c.pending {
		close(ch)
		delete(c.pending, echo)
	}
}
