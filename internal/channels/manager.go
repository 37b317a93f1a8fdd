package channels

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/goconvo/internal/bus"
)

// Manager owns the registered channels, routes outbound traffic from the bus
// to the right platform, and runs asynchronous room context fetches. It also
// serves as the orchestrator's send/fetch surface: SendReply and SendForward
// just publish to the bus, FetchNotice and FetchHistory spawn a fetch and
// publish the result as a bus event.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
	bus      *bus.MessageBus
	limiter  *rate.Limiter
	cancel   context.CancelFunc

	// fetchTimeout bounds a single room context fetch. The orchestrator's
	// reaper has its own deadline; this one just frees the goroutine.
	fetchTimeout time.Duration
}

// NewManager creates a channel manager. ratePerMin caps outbound sends
// across all channels; zero disables the limit.
func NewManager(msgBus *bus.MessageBus, ratePerMin int) *Manager {
	limit := rate.Inf
	burst := 1
	if ratePerMin > 0 {
		limit = rate.Limit(float64(ratePerMin) / 60.0)
		burst = ratePerMin
	}
	return &Manager{
		channels:     make(map[string]Channel),
		bus:          msgBus,
		limiter:      rate.NewLimiter(limit, burst),
		fetchTimeout: 30 * time.Second,
	}
}

// RegisterChannel adds a channel to the manager.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}

func (m *Manager) get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// StartAll starts every registered channel and the dispatch loops.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	dispatchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	channels := make(map[string]Channel, len(m.channels))
	for name, ch := range m.channels {
		channels[name] = ch
	}
	m.mu.Unlock()

	go m.dispatchOutbound(dispatchCtx)
	go m.dispatchForwards(dispatchCtx)

	if len(channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}
	for name, ch := range channels {
		slog.Info("starting channel", "channel", name)
		if err := ch.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", name, "error", err)
		}
	}
	return nil
}

// StopAll stops the dispatch loops and every channel.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	channels := make(map[string]Channel, len(m.channels))
	for name, ch := range m.channels {
		channels[name] = ch
	}
	m.mu.Unlock()

	for name, ch := range channels {
		if err := ch.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}
	return nil
}

func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.ConsumeOutbound(ctx)
		if !ok {
			return
		}
		ch, exists := m.get(msg.Channel)
		if !exists {
			slog.Warn("outbound message for unknown channel", "channel", msg.Channel)
			continue
		}
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}
		if err := ch.Send(ctx, msg); err != nil {
			slog.Error("send failed", "channel", msg.Channel, "error", err)
		}
	}
}

func (m *Manager) dispatchForwards(ctx context.Context) {
	for {
		fwd, ok := m.bus.ConsumeForward(ctx)
		if !ok {
			return
		}
		ch, exists := m.get(fwd.Channel)
		if !exists {
			slog.Warn("forward bundle for unknown channel", "channel", fwd.Channel)
			continue
		}
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}
		if err := ch.SendForward(ctx, fwd); err != nil {
			slog.Error("forward send failed", "channel", fwd.Channel, "error", err)
		}
	}
}

// SendReply publishes an outbound reply. Fire-and-forget.
func (m *Manager) SendReply(channel, roomID, participantID, text string) {
	m.bus.PublishOutbound(bus.OutboundMessage{
		Channel:  channel,
		RoomID:   roomID,
		SenderID: participantID,
		Content:  text,
	})
}

// SendForward publishes a multi-part bundle. Fire-and-forget.
func (m *Manager) SendForward(channel, roomID, participantID string, parts []bus.ForwardPart) {
	m.bus.PublishForward(bus.ForwardBundle{
		Channel:  channel,
		RoomID:   roomID,
		SenderID: participantID,
		Parts:    parts,
	})
}

// FetchNotice asynchronously fetches room announcements; the result comes
// back as a bus.RoomInfoResult carrying the request id.
func (m *Manager) FetchNotice(requestID, channel, roomID string) {
	m.fetch(requestID, channel, bus.RoomInfoNotice, func(ctx context.Context, ch Channel) (string, error) {
		return ch.FetchRoomNotice(ctx, roomID)
	})
}

// FetchHistory asynchronously fetches recent room history.
func (m *Manager) FetchHistory(requestID, channel, roomID string, count int) {
	m.fetch(requestID, channel, bus.RoomInfoHistory, func(ctx context.Context, ch Channel) (string, error) {
		return ch.FetchRoomHistory(ctx, roomID, count)
	})
}

func (m *Manager) fetch(requestID, channel, infoType string, fn func(context.Context, Channel) (string, error)) {
	ch, exists := m.get(channel)
	if !exists {
		m.bus.PublishRoomInfo(bus.RoomInfoResult{RequestID: requestID, InfoType: infoType})
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.fetchTimeout)
		defer cancel()
		content, err := fn(ctx, ch)
		res := bus.RoomInfoResult{RequestID: requestID, InfoType: infoType}
		if err != nil {
			slog.Debug("room info fetch failed", "channel", channel, "type", infoType, "error", err)
		} else {
			res.Success = true
			res.Content = content
		}
		m.bus.PublishRoomInfo(res)
	}()
}
