package domain

import (
	"fmt"
	"time"
)

// LinkMetadata describes a link preview.
type LinkMetadata struct {
	Title               string `json:"title,omitempty"`
	Description         string `json:"description,omitempty"`
	PreviewImageLocator string `json:"preview_image_locator,omitempty"`
	SiteName            string `json:"site_name,omitempty"`
}

// MediaRef points at an attachment. Immutable once created.
type MediaRef struct {
	ID        MediaID       `json:"id"`
	Kind      MediaKind     `json:"kind"`
	Locator   string        `json:"locator"`
	Metadata  *LinkMetadata `json:"metadata,omitempty"`
	CreatedAt Timestamp     `json:"created_at"`
}

// Message is one turn in the conversation, either from the user or the assistant.
type Message struct {
	ID          MessageID  `json:"id"`
	Content     string     `json:"content"`
	Author      Author     `json:"author"`
	CreatedAt   Timestamp  `json:"created_at"`
	Attachments []MediaRef `json:"attachments,omitempty"`

	// Preview is display-only metadata attached after the message was shown.
	// Store adapters never write it.
	Preview *LinkMetadata `json:"preview,omitempty"`
}

func NewMessage(author Author, content string, at time.Time, attachments ...MediaRef) Message {
	return Message{
		ID:          MessageID(NewID()),
		Content:     content,
		Author:      author,
		CreatedAt:   at,
		Attachments: attachments,
	}
}

// Session is a persisted, write-once batch of messages.
type Session struct {
	ID        SessionID `json:"id"`
	UserID    UserID    `json:"user_id"`
	Mode      Mode      `json:"mode"`
	Messages  []Message `json:"messages"`
	CreatedAt Timestamp `json:"created_at"`
}

// Validate checks the author and ordering invariants.
func (s Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session id is empty")
	}
	for i, m := range s.Messages {
		if !m.Author.Valid() {
			return fmt.Errorf("message %d: invalid author %q", i, m.Author)
		}
		if i > 0 && m.CreatedAt.Before(s.Messages[i-1].CreatedAt) {
			return fmt.Errorf("message %d: created_at goes backwards", i)
		}
	}
	return nil
}

// Persistable returns a copy of the message without transient display data.
func (m Message) Persistable() Message {
	m.Preview = nil
	if len(m.Attachments) > 0 {
		m.Attachments = append([]MediaRef(nil), m.Attachments...)
	}
	return m
}
