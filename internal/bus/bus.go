package bus

import (
	"context"
	"sync"
)

const defaultQueueSize = 256

// MessageBus is the in-process event bus connecting channel adapters, the
// async model caller, and the orchestrator event loop. Producers never block
// the orchestrator: each direction has its own buffered queue.
type MessageBus struct {
	inbound   chan InboundMessage
	outbound  chan OutboundMessage
	forwards  chan ForwardBundle
	modelRes  chan ModelResult
	roomInfo  chan RoomInfoResult
	closeOnce sync.Once
	closed    chan struct{}
}

func New() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, defaultQueueSize),
		outbound: make(chan OutboundMessage, defaultQueueSize),
		forwards: make(chan ForwardBundle, 16),
		modelRes: make(chan ModelResult, defaultQueueSize),
		roomInfo: make(chan RoomInfoResult, defaultQueueSize),
		closed:   make(chan struct{}),
	}
}

// Close shuts the bus down. Pending events are dropped; consumers unblock.
func (b *MessageBus) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}

// PublishInbound enqueues a message received from a channel adapter.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	case <-b.closed:
	}
}

// PublishOutbound enqueues a reply for delivery by a channel adapter.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case b.outbound <- msg:
	case <-b.closed:
	}
}

// PublishForward enqueues a forward bundle for delivery.
func (b *MessageBus) PublishForward(fb ForwardBundle) {
	select {
	case b.forwards <- fb:
	case <-b.closed:
	}
}

// PublishModelResult enqueues an async model completion.
func (b *MessageBus) PublishModelResult(res ModelResult) {
	select {
	case b.modelRes <- res:
	case <-b.closed:
	}
}

// PublishRoomInfo enqueues an async room info completion.
func (b *MessageBus) PublishRoomInfo(res RoomInfoResult) {
	select {
	case b.roomInfo <- res:
	case <-b.closed:
	}
}

// Inbound exposes the inbound queue for the orchestrator event loop.
func (b *MessageBus) Inbound() <-chan InboundMessage { return b.inbound }

// ModelResults exposes the model completion queue.
func (b *MessageBus) ModelResults() <-chan ModelResult { return b.modelRes }

// RoomInfo exposes the room info completion queue.
func (b *MessageBus) RoomInfo() <-chan RoomInfoResult { return b.roomInfo }

// ConsumeOutbound blocks until an outbound message is available.
// Returns false when the bus is closed or ctx is done.
func (b *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-b.closed:
		return OutboundMessage{}, false
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// ConsumeForward blocks until a forward bundle is available.
func (b *MessageBus) ConsumeForward(ctx context.Context) (ForwardBundle, bool) {
	select {
	case fb := <-b.forwards:
		return fb, true
	case <-b.closed:
		return ForwardBundle{}, false
	case <-ctx.Done():
		return ForwardBundle{}, false
	}
}
