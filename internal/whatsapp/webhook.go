// Package whatsapp implements the WhatsApp Cloud API surface: inbound
// webhook payload parsing and the outbound send-message client.
package whatsapp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Payload mirrors the envelope Meta posts to the webhook: one message per
// event buried under entry[0].changes[0].value.
type Payload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []rawMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type rawMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"` // unix seconds, as a string
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
}

// Inbound is the normalized single message the orchestrator consumes.
type Inbound struct {
	From              string
	PlatformMessageID string
	Type              string // text | image | audio | ...
	Text              string
	Timestamp         time.Time
}

// ParseInbound extracts the message from a webhook delivery. ok is false for
// deliveries that carry no message (status updates and the like), which are
// acknowledged and ignored.
func ParseInbound(body []byte) (Inbound, bool, error) {
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Inbound{}, false, fmt.Errorf("decode webhook payload: %w", err)
	}

	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return Inbound{}, false, nil
	}
	messages := payload.Entry[0].Changes[0].Value.Messages
	if len(messages) == 0 {
		return Inbound{}, false, nil
	}

	raw := messages[0]
	msg := Inbound{
		From:              raw.From,
		PlatformMessageID: raw.ID,
		Type:              raw.Type,
		Timestamp:         time.Now(),
	}
	if raw.Text != nil {
		msg.Text = raw.Text.Body
	}
	if secs, err := strconv.ParseInt(raw.Timestamp, 10, 64); err == nil && secs > 0 {
		msg.Timestamp = time.Unix(secs, 0)
	}

	if msg.From == "" || msg.PlatformMessageID == "" {
		return Inbound{}, false, nil
	}
	return msg, true, nil
}
