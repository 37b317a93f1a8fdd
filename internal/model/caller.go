// Package model dispatches LLM calls asynchronously. The orchestrator never
// blocks on a model: Call returns immediately, the HTTP round trip runs in its
// own goroutine, and the outcome comes back as a bus.ModelResult carrying the
// caller-chosen request id.
package model

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nextlevelbuilder/goconvo/internal/bus"
	"github.com/nextlevelbuilder/goconvo/internal/providers"
)

// CallOptions mirror the per-call knobs the orchestrator controls.
type CallOptions struct {
	Model        string
	MaxTokens    int
	EnableSearch bool
}

// Caller runs model calls in the background and publishes results on the bus.
type Caller struct {
	provider providers.Provider
	bus      *bus.MessageBus
	// hard ceiling on any single call; the orchestrator's reaper enforces the
	// per-kind timeouts, this only prevents goroutine leaks
	callCeiling time.Duration
}

func NewCaller(p providers.Provider, b *bus.MessageBus) *Caller {
	return &Caller{
		provider:    p,
		bus:         b,
		callCeiling: 10 * time.Minute,
	}
}

// Call dispatches a chat request and returns immediately. The result is
// delivered as a bus.ModelResult tagged with requestID; errors become
// {Success: false} results, never panics or missing completions.
func (c *Caller) Call(requestID string, messages []providers.Message, opts CallOptions) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.callCeiling)
		defer cancel()

		tracer := otel.Tracer("goconvo/model")
		ctx, span := tracer.Start(ctx, "model.call")
		span.SetAttributes(
			attribute.String("request_id", requestID),
			attribute.String("model", opts.Model),
			attribute.Bool("enable_search", opts.EnableSearch),
		)
		defer span.End()

		req := providers.ChatRequest{
			Messages: messages,
			Model:    opts.Model,
			Options:  map[string]interface{}{},
		}
		if opts.MaxTokens > 0 {
			req.Options[providers.OptMaxTokens] = opts.MaxTokens
		}
		if opts.EnableSearch {
			req.Options[providers.OptEnableSearch] = true
		}

		start := time.Now()
		resp, err := c.provider.Chat(ctx, req)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			slog.Warn("model call failed",
				"request_id", requestID,
				"model", opts.Model,
				"elapsed", time.Since(start),
				"error", err,
			)
			c.bus.PublishModelResult(bus.ModelResult{RequestID: requestID, Success: false})
			return
		}

		slog.Debug("model call completed",
			"request_id", requestID,
			"model", opts.Model,
			"elapsed", time.Since(start),
		)
		c.bus.PublishModelResult(bus.ModelResult{
			RequestID: requestID,
			Success:   true,
			Content:   resp.Content,
		})
	}()
}
