package domain

import "context"

// Attachment is raw media handed in by the UI together with a submit.
type Attachment struct {
	Data     []byte
	MIMEType string
}

// GenerateRequest is everything the response service needs for one reply.
type GenerateRequest struct {
	UserID      UserID
	SessionID   SessionID
	Mode        Mode
	Context     []Message // oldest first, already trimmed to the context window
	Attachments []Attachment
}

// ResponseService generates the assistant reply for a conversation.
// Errors are ErrNetwork, *ServerError or ErrModelUnavailable (possibly wrapped).
type ResponseService interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// SessionStore defines session persistence. Sessions are returned oldest first.
type SessionStore interface {
	FetchSessions(ctx context.Context, userID UserID) ([]Session, error)
	WriteSession(ctx context.Context, session Session) error
}

// MediaUploader stores image bytes and returns a locator URL.
type MediaUploader interface {
	Upload(ctx context.Context, data []byte, mimeType string) (string, error)
}

// LinkPreviewer resolves display metadata for a URL.
type LinkPreviewer interface {
	Preview(ctx context.Context, url string) (LinkMetadata, error)
}
