// Package discord connects to Discord via the gateway using discordgo.
package discord

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/goconvo/internal/bus"
	"github.com/nextlevelbuilder/goconvo/internal/channels"
	"github.com/nextlevelbuilder/goconvo/internal/config"
)

const maxMessageLen = 2000

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	config    config.DiscordConfig
	botUserID string // populated on start
}

func New(cfg config.DiscordConfig, msgBus *bus.MessageBus) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", msgBus),
		session:     session,
		config:      cfg,
	}, nil
}

// Start opens the gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID
	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	return c.session.Close()
}

func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	msg := bus.InboundMessage{
		SenderID:   m.Author.ID,
		SenderName: m.Author.Username,
		MessageID:  m.ID,
		Content:    m.Content,
		Metadata:   map[string]string{"self_id": c.botUserID},
	}
	if m.GuildID != "" {
		msg.RoomID = m.ChannelID
	}

	msg.Segments = append(msg.Segments, bus.Segment{Type: bus.SegmentText, Text: m.Content})
	for _, u := range m.Mentions {
		msg.Segments = append(msg.Segments, bus.Segment{Type: bus.SegmentAt, Target: u.ID})
		if u.ID == c.botUserID {
			msg.MentionsAssistant = true
		}
	}
	if m.MentionEveryone {
		msg.Segments = append(msg.Segments, bus.Segment{Type: bus.SegmentAt, Target: "all"})
	}
	for _, att := range m.Attachments {
		segType := bus.SegmentFile
		if strings.HasPrefix(att.ContentType, "image/") {
			segType = bus.SegmentImage
		}
		msg.Segments = append(msg.Segments, bus.Segment{Type: segType, URL: att.URL})
	}

	c.HandleMessage(msg)
}

// Send delivers a reply, at-mentioning the target participant in guild
// channels. DMs open (or reuse) the user's DM channel.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	channelID, content := msg.RoomID, msg.Content
	if channelID != "" {
		content = fmt.Sprintf("<@%s> %s", msg.SenderID, content)
	} else {
		dm, err := c.session.UserChannelCreate(msg.SenderID)
		if err != nil {
			return fmt.Errorf("open dm channel: %w", err)
		}
		channelID = dm.ID
	}
	return c.sendChunked(channelID, content)
}

// SendForward has no native equivalent on Discord; parts go out as
// sequential messages, images as file attachments.
func (c *Channel) SendForward(ctx context.Context, fwd bus.ForwardBundle) error {
	channelID := fwd.RoomID
	if channelID == "" {
		dm, err := c.session.UserChannelCreate(fwd.SenderID)
		if err != nil {
			return fmt.Errorf("open dm channel: %w", err)
		}
		channelID = dm.ID
	}
	for _, part := range fwd.Parts {
		if len(part.Image) > 0 {
			_, err := c.session.ChannelFileSendWithMessage(channelID,
				"**"+part.Title+"**", part.Title+".png", bytes.NewReader(part.Image))
			if err != nil {
				return fmt.Errorf("send image part: %w", err)
			}
			continue
		}
		if err := c.sendChunked(channelID, "**"+part.Title+"**\n"+part.Content); err != nil {
			return err
		}
	}
	return nil
}

// FetchRoomNotice maps to the channel topic.
func (c *Channel) FetchRoomNotice(_ context.Context, roomID string) (string, error) {
	ch, err := c.session.Channel(roomID)
	if err != nil {
		return "", fmt.Errorf("fetch channel: %w", err)
	}
	return ch.Topic, nil
}

// FetchRoomHistory returns the last count channel messages, oldest first.
func (c *Channel) FetchRoomHistory(_ context.Context, roomID string, count int) (string, error) {
	if count > 100 {
		count = 100
	}
	msgs, err := c.session.ChannelMessages(roomID, count, "", "", "")
	if err != nil {
		return "", fmt.Errorf("fetch channel messages: %w", err)
	}
	var b strings.Builder
	// API returns newest first.
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Author == nil || m.Content == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Author.Username)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String(), nil
}

// sendChunked splits content at the message character limit, on rune
// boundaries, preferring newline breaks.
func (c *Channel) sendChunked(channelID, content string) error {
	for _, chunk := range channels.SplitMessage(content, maxMessageLen) {
		if _, err := c.session.ChannelMessageSend(channelID, chunk); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}
