// Package telegram connects to Telegram via the Bot API using long polling.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/goconvo/internal/bus"
	"github.com/nextlevelbuilder/goconvo/internal/channels"
	"github.com/nextlevelbuilder/goconvo/internal/config"
)

const maxMessageLen = 4096

// Channel connects to Telegram via the Bot API using long polling.
type Channel struct {
	*channels.BaseChannel
	bot        *telego.Bot
	config     config.TelegramConfig
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

func New(cfg config.TelegramConfig, msgBus *bus.MessageBus) (*Channel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram", msgBus),
		bot:         bot,
		config:      cfg,
	}, nil
}

// Start begins long polling for updates.
func (c *Channel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil {
					c.handleMessage(update.Message)
				}
			}
		}
	}()
	return nil
}

func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.pollCancel != nil {
		c.pollCancel()
		<-c.pollDone
	}
	return nil
}

func (c *Channel) handleMessage(m *telego.Message) {
	if m.From == nil || m.From.IsBot || m.Text == "" {
		return
	}

	botUsername := c.bot.Username()
	msg := bus.InboundMessage{
		SenderID:   strconv.FormatInt(m.From.ID, 10),
		SenderName: m.From.FirstName,
		MessageID:  strconv.Itoa(m.MessageID),
		Content:    m.Text,
		Metadata:   map[string]string{"self_id": botUsername},
	}
	if m.Chat.Type != telego.ChatTypePrivate {
		msg.RoomID = strconv.FormatInt(m.Chat.ID, 10)
	}

	msg.Segments = append(msg.Segments, bus.Segment{Type: bus.SegmentText, Text: stripMentions(m.Text)})
	for _, ent := range m.Entities {
		switch ent.Type {
		case telego.EntityTypeMention:
			mention := entityText(m.Text, ent)
			target := strings.TrimPrefix(mention, "@")
			msg.Segments = append(msg.Segments, bus.Segment{Type: bus.SegmentAt, Target: target})
			if strings.EqualFold(target, botUsername) {
				msg.MentionsAssistant = true
			}
		case telego.EntityTypeTextMention:
			if ent.User != nil {
				msg.Segments = append(msg.Segments, bus.Segment{
					Type:   bus.SegmentAt,
					Target: strconv.FormatInt(ent.User.ID, 10),
				})
			}
		}
	}

	c.HandleMessage(msg)
}

// stripMentions drops @username tokens from the text body; mentions travel as
// dedicated segments.
func stripMentions(text string) string {
	fields := strings.Fields(text)
	kept := fields[:0]
	for _, f := range fields {
		if strings.HasPrefix(f, "@") {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

func entityText(text string, ent telego.MessageEntity) string {
	runes := []rune(text)
	if ent.Offset < 0 || ent.Offset+ent.Length > len(runes) {
		return ""
	}
	return string(runes[ent.Offset : ent.Offset+ent.Length])
}

func (c *Channel) targetChatID(roomID, senderID string) (telego.ChatID, error) {
	raw := roomID
	if raw == "" {
		raw = senderID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return telego.ChatID{}, fmt.Errorf("bad telegram chat id %q: %w", raw, err)
	}
	return tu.ID(id), nil
}

// Send delivers a plain-text reply, chunked at the API limit.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID, err := c.targetChatID(msg.RoomID, msg.SenderID)
	if err != nil {
		return err
	}
	for _, chunk := range channels.SplitMessage(msg.Content, maxMessageLen) {
		if _, err := c.bot.SendMessage(ctx, tu.Message(chatID, chunk)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// SendForward has no native equivalent on Telegram; parts go out as
// sequential messages, images as photos.
func (c *Channel) SendForward(ctx context.Context, fwd bus.ForwardBundle) error {
	chatID, err := c.targetChatID(fwd.RoomID, fwd.SenderID)
	if err != nil {
		return err
	}
	for _, part := range fwd.Parts {
		if len(part.Image) > 0 {
			photo := tu.Photo(chatID, tu.FileFromReader(bytes.NewReader(part.Image), part.Title+".png"))
			photo.Caption = part.Title
			if _, err := c.bot.SendPhoto(ctx, photo); err != nil {
				return fmt.Errorf("send photo part: %w", err)
			}
			continue
		}
		text := part.Title + "\n" + part.Content
		if err := c.Send(ctx, bus.OutboundMessage{RoomID: fwd.RoomID, SenderID: fwd.SenderID, Content: text}); err != nil {
			return err
		}
	}
	return nil
}

// FetchRoomNotice maps to the chat's pinned message and description.
func (c *Channel) FetchRoomNotice(ctx context.Context, roomID string) (string, error) {
	id, err := strconv.ParseInt(roomID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("bad telegram chat id %q: %w", roomID, err)
	}
	chat, err := c.bot.GetChat(ctx, &telego.GetChatParams{ChatID: tu.ID(id)})
	if err != nil {
		return "", fmt.Errorf("get chat: %w", err)
	}
	var parts []string
	if chat.Description != "" {
		parts = append(parts, chat.Description)
	}
	if chat.PinnedMessage != nil && chat.PinnedMessage.Text != "" {
		parts = append(parts, chat.PinnedMessage.Text)
	}
	return strings.Join(parts, "\n"), nil
}

// FetchRoomHistory is not available through the Bot API.
func (c *Channel) FetchRoomHistory(context.Context, string, int) (string, error) {
	return "", channels.ErrUnsupported
}
