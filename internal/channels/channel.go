// Package channels provides the channel abstraction layer for multi-platform
// messaging. Channels connect external platforms (OneBot, Discord, Telegram)
// to the orchestrator via the message bus: inbound messages are published as
// they arrive, outbound replies and forward bundles are dispatched by the
// Manager, and room context fetches run asynchronously with results published
// back as bus events.
package channels

import (
	"context"
	"errors"
	"time"

	"github.com/nextlevelbuilder/goconvo/internal/bus"
)

// ErrUnsupported is returned by channels that have no native equivalent for
// an operation (e.g. room announcements outside OneBot).
var ErrUnsupported = errors.New("operation not supported by channel")

// Channel is the interface every platform adapter satisfies.
type Channel interface {
	// Name returns the channel identifier (e.g. "onebot", "discord").
	Name() string

	// Start begins receiving messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// SendForward delivers a multi-part bundle (report delivery). Channels
	// without a native forward format send the parts sequentially.
	SendForward(ctx context.Context, fwd bus.ForwardBundle) error

	// FetchRoomNotice returns the room's pinned announcements as text.
	FetchRoomNotice(ctx context.Context, roomID string) (string, error)

	// FetchRoomHistory returns the last count room messages as text.
	FetchRoomHistory(ctx context.Context, roomID string, count int) (string, error)

	// IsRunning reports whether the channel is actively processing messages.
	IsRunning() bool
}

// BaseChannel provides shared functionality for channel implementations.
type BaseChannel struct {
	name    string
	bus     *bus.MessageBus
	dedupe  *bus.DedupeCache
	running bool
}

func NewBaseChannel(name string, msgBus *bus.MessageBus) *BaseChannel {
	return &BaseChannel{
		name:   name,
		bus:    msgBus,
		dedupe: bus.NewDedupeCache(5*time.Minute, 4096),
	}
}

func (c *BaseChannel) Name() string            { return c.name }
func (c *BaseChannel) IsRunning() bool         { return c.running }
func (c *BaseChannel) SetRunning(running bool) { c.running = running }
func (c *BaseChannel) Bus() *bus.MessageBus    { return c.bus }

// HandleMessage publishes an inbound message to the bus, dropping duplicate
// deliveries (platforms redeliver on reconnect).
func (c *BaseChannel) HandleMessage(msg bus.InboundMessage) {
	msg.Channel = c.name
	if msg.MessageID != "" && c.dedupe.IsDuplicate(c.name+":"+msg.MessageID) {
		return
	}
	c.bus.PublishInbound(msg)
}
