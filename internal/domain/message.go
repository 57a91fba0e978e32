package domain

import (
	"strings"
	"time"
)

// Attachment is a file attached to a chat message.
type Attachment struct {
	ID          string
	Filename    string
	ContentType string
	URL         string
}

// IsImage reports whether the attachment looks like an image by content type.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.ContentType, "image/")
}

// ChatMessage is an inbound message event from the chat platform.
type ChatMessage struct {
	MessageID   string
	ChannelID   string
	Author      string
	Content     string
	Attachments []Attachment
	Timestamp   time.Time
}

// FirstImage returns the first image attachment, if any.
func (m ChatMessage) FirstImage() (Attachment, bool) {
	for _, a := range m.Attachments {
		if a.IsImage() {
			return a, true
		}
	}
	return Attachment{}, false
}

// ImageRef points the extraction pipeline at the bytes of one chart image.
type ImageRef struct {
	// Data holds the raw image bytes.
	Data []byte
	// ContentType is the MIME type, e.g. "image/png".
	ContentType string
	// Name is a human-readable identifier (attachment filename or local path).
	Name string
}
