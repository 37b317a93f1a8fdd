package onebot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/goconvo/internal/bus"
)

// call sends one API request over the socket and waits for the echo-matched
// response.
func (c *Channel) call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("onebot: not connected")
	}
	echo := fmt.Sprintf("goconvo-%d", atomic.AddUint64(&c.seq, 1))
	respCh := make(chan json.RawMessage, 1)
	c.pending[echo] = respCh

	req := map[string]any{"action": action, "params": params, "echo": echo}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteJSON(req)
	c.mu.Unlock()
	if err != nil {
		c.dropPending(echo)
		return nil, fmt.Errorf("onebot write %s: %w", action, err)
	}

	select {
	case <-ctx.Done():
		c.dropPending(echo)
		return nil, ctx.Err()
	case <-time.After(callTimeout):
		c.dropPending(echo)
		return nil, fmt.Errorf("onebot %s timed out", action)
	case raw, ok := <-respCh:
		if !ok {
			return nil, fmt.Errorf("onebot: connection lost during %s", action)
		}
		var resp struct {
			Status  string          `json:"status"`
			RetCode int             `json:"retcode"`
			Data    json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("onebot %s: bad response: %w", action, err)
		}
		if resp.Status == "failed" {
			return nil, fmt.Errorf("onebot %s: retcode %d", action, resp.RetCode)
		}
		return resp.Data, nil
	}
}

func (c *Channel) dropPending(echo string) {
	c.mu.Lock()
	delete(c.pending, echo)
	c.mu.Unlock()
}

// Send delivers a plain-text reply, at-mentioning the target participant in
// group rooms.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if msg.RoomID != "" {
		segments := []map[string]any{
			{"type": "at", "data": map[string]any{"qq": msg.SenderID}},
			{"type": "text", "data": map[string]any{"text": " " + msg.Content}},
		}
		_, err := c.call(ctx, "send_group_msg", map[string]any{
			"group_id": parseInt64(msg.RoomID),
			"message":  segments,
		})
		return err
	}
	_, err := c.call(ctx, "send_private_msg", map[string]any{
		"user_id": parseInt64(msg.SenderID),
		"message": []map[string]any{{"type": "text", "data": map[string]any{"text": msg.Content}}},
	})
	return err
}

// SendForward delivers the bundle as a native forward message, one node per
// part. Images go as base64 data URIs.
func (c *Channel) SendForward(ctx context.Context, fwd bus.ForwardBundle) error {
	selfID := c.cfg.SelfID
	nodes := make([]map[string]any, 0, len(fwd.Parts))
	for _, part := range fwd.Parts {
		var content any
		if len(part.Image) > 0 {
			content = []map[string]any{{
				"type": "image",
				"data": map[string]any{"file": "base64://" + base64.StdEncoding.EncodeToString(part.Image)},
			}}
		} else {
			content = []map[string]any{{
				"type": "text",
				"data": map[string]any{"text": part.Content},
			}}
		}
		nodes = append(nodes, map[string]any{
			"type": "node",
			"data": map[string]any{
				"name":    part.Title,
				"uin":     selfID,
				"content": content,
			},
		})
	}

	if fwd.RoomID != "" {
		_, err := c.call(ctx, "send_group_forward_msg", map[string]any{
			"group_id": parseInt64(fwd.RoomID),
			"messages": nodes,
		})
		return err
	}
	_, err := c.call(ctx, "send_private_forward_msg", map[string]any{
		"user_id":  parseInt64(fwd.SenderID),
		"messages": nodes,
	})
	return err
}

// FetchRoomNotice returns the group's announcements, newest first, as plain
// text.
func (c *Channel) FetchRoomNotice(ctx context.Context, roomID string) (string, error) {
	data, err := c.call(ctx, "_get_group_notice", map[string]any{
		"group_id": parseInt64(roomID),
	})
	if err != nil {
		return "", err
	}
	var notices []struct {
		Message struct {
			Text string `json:"text"`
		} `json:"message"`
	}
	if err := json.Unmarshal(data, &notices); err != nil {
		return "", fmt.Errorf("parse group notice: %w", err)
	}
	var b strings.Builder
	for _, n := range notices {
		text := strings.TrimSpace(n.Message.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(text)
	}
	return b.String(), nil
}

// FetchRoomHistory returns the last count group messages as "name: text"
// lines in chronological order.
func (c *Channel) FetchRoomHistory(ctx context.Context, roomID string, count int) (string, error) {
	data, err := c.call(ctx, "get_group_msg_history", map[string]any{
		"group_id": parseInt64(roomID),
		"count":    count,
	})
	if err != nil {
		return "", err
	}
	var hist struct {
		Messages []struct {
			RawMessage string `json:"raw_message"`
			Sender     struct {
				Nickname string `json:"nickname"`
				Card     string `json:"card"`
			} `json:"sender"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(data, &hist); err != nil {
		return "", fmt.Errorf("parse group history: %w", err)
	}
	var b strings.Builder
	for _, m := range hist.Messages {
		name := m.Sender.Card
		if name == "" {
			name = m.Sender.Nickname
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(m.RawMessage)
	}
	return b.String(), nil
}
