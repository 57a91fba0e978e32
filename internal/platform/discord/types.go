// Package discord implements the chat platform client: a gateway WebSocket
// feed for live messages and a small REST client for reactions and attachment
// downloads.
package discord

import (
	"encoding/json"
	"time"

	"chartsignal/internal/domain"
)

// Gateway opcodes.
const (
	opDispatch     = 0
	opHeartbeat    = 1
	opIdentify     = 2
	opResume       = 6
	opReconnect    = 7
	opInvalidSess  = 9
	opHello        = 10
	opHeartbeatACK = 11
)

// Gateway intents requested at identify. Message content requires the
// privileged intent to be enabled on the application.
const (
	intentGuilds         = 1 << 0
	intentGuildMessages  = 1 << 9
	intentDirectMessages = 1 << 12
	intentMessageContent = 1 << 15

	defaultIntents = intentGuilds | intentGuildMessages | intentDirectMessages | intentMessageContent
)

// gatewayPayload is the outer envelope of every gateway frame.
type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"` // milliseconds
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// readyData carries the session handle needed to resume after a drop.
type readyData struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
}

// messageCreate is the MESSAGE_CREATE dispatch payload, reduced to the fields
// the pipeline consumes.
type messageCreate struct {
	ID          string           `json:"id"`
	ChannelID   string           `json:"channel_id"`
	Content     string           `json:"content"`
	Timestamp   string           `json:"timestamp"`
	Author      messageAuthor    `json:"author"`
	Attachments []wireAttachment `json:"attachments"`
}

type messageAuthor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

type wireAttachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// toDomain converts the wire message to the platform-neutral representation.
func (m *messageCreate) toDomain() domain.ChatMessage {
	ts, err := time.Parse(time.RFC3339, m.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}

	atts := make([]domain.Attachment, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		atts = append(atts, domain.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			URL:         a.URL,
		})
	}

	return domain.ChatMessage{
		MessageID:   m.ID,
		ChannelID:   m.ChannelID,
		Author:      m.Author.Username,
		Content:     m.Content,
		Attachments: atts,
		Timestamp:   ts,
	}
}
