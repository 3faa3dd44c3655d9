package httpadapter

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ylol-app/ylol/internal/adapters/media"
	"github.com/ylol-app/ylol/internal/app/conversation"
	"github.com/ylol-app/ylol/internal/domain"
	"github.com/ylol-app/ylol/internal/observability"
)

const maxBodyBytes = 4 * media.MaxImageBytes

type Server struct {
	conv   *conversation.Conversation
	store  domain.SessionStore
	userID domain.UserID
}

// NewServer exposes a conversation over HTTP. The store backs the read-only
// session history endpoint.
func NewServer(conv *conversation.Conversation, store domain.SessionStore, userID domain.UserID) http.Handler {
	s := &Server{conv: conv, store: store, userID: userID}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /state/stream", s.handleStateStream)
	mux.HandleFunc("POST /initialize", s.handleInitialize)
	mux.HandleFunc("POST /mode", s.handleMode)
	mux.HandleFunc("POST /messages", s.handleSendMessage)
	mux.HandleFunc("POST /continue", s.handleContinue)
	mux.HandleFunc("POST /flush", s.handleFlush)
	mux.HandleFunc("GET /sessions", s.handleSessions)

	return chainMiddlewares(mux, withLogging, withRequestID, withCORS)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type stateResponse struct {
	Phase              string            `json:"phase"`
	SessionID          string            `json:"session_id"`
	ActiveMode         string            `json:"active_mode"`
	IsInitialLoading   bool              `json:"is_initial_loading"`
	IsAwaitingResponse bool              `json:"is_awaiting_response"`
	IsDelivering       bool              `json:"is_delivering"`
	IsResumedSession   bool              `json:"is_resumed_session"`
	ErrorMessage       string            `json:"error_message,omitempty"`
	Messages           []messageResponse `json:"messages"`
}

type messageResponse struct {
	ID          string               `json:"id"`
	Author      string               `json:"author"`
	Content     string               `json:"content"`
	CreatedAt   time.Time            `json:"created_at"`
	Attachments []domain.MediaRef    `json:"attachments,omitempty"`
	Preview     *domain.LinkMetadata `json:"preview,omitempty"`
}

type sessionResponse struct {
	ID        string            `json:"id"`
	Mode      string            `json:"mode"`
	CreatedAt time.Time         `json:"created_at"`
	Messages  []messageResponse `json:"messages"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type imageRequest struct {
	Data     string `json:"data"` // base64
	MIMEType string `json:"mime_type"`
}

type sendMessageRequest struct {
	Text   string         `json:"text"`
	Images []imageRequest `json:"images,omitempty"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStateResponse(s.conv.Snapshot()))
}

// handleStateStream pushes every state change as a server-sent event.
func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		internalError(w, r, errors.New("streaming unsupported"))
		return
	}

	states, cancel := s.conv.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			raw, err := json.Marshal(toStateResponse(st))
			if err != nil {
				observability.LoggerFromContext(r.Context()).Error("encode state", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", raw); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	s.conv.Initialize(r.Context())
	writeJSON(w, http.StatusOK, toStateResponse(s.conv.Snapshot()))
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !decode(w, r, &req) {
		return
	}

	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	switched, err := s.conv.SwitchMode(mode)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"switched": switched,
		"state":    toStateResponse(s.conv.Snapshot()),
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decode(w, r, &req) {
		return
	}

	attachments := make([]domain.Attachment, 0, len(req.Images))
	for i, img := range req.Images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			badRequest(w, fmt.Sprintf("images[%d]: invalid base64", i))
			return
		}
		attachments = append(attachments, domain.Attachment{Data: data, MIMEType: img.MIMEType})
	}

	if !s.conv.Submit(r.Context(), req.Text, attachments) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "message not accepted: empty, loading, or a reply is in progress",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, toStateResponse(s.conv.Snapshot()))
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	s.conv.ContinueAfterResume()
	writeJSON(w, http.StatusOK, toStateResponse(s.conv.Snapshot()))
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	started := s.conv.Flush(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": started})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.FetchSessions(r.Context(), s.userID)
	if err != nil {
		internalError(w, r, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionResponse{
			ID:        string(sess.ID),
			Mode:      string(sess.Mode),
			CreatedAt: sess.CreatedAt,
			Messages:  toMessagesResponse(sess.Messages),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// ─────────────────────────────────────────────
// Conversation Helpers
// ─────────────────────────────────────────────

func toStateResponse(st conversation.State) stateResponse {
	return stateResponse{
		Phase:              string(st.Phase),
		SessionID:          string(st.SessionID),
		ActiveMode:         string(st.ActiveMode),
		IsInitialLoading:   st.IsInitialLoading,
		IsAwaitingResponse: st.IsAwaitingResponse,
		IsDelivering:       st.IsDelivering,
		IsResumedSession:   st.IsResumedSession,
		ErrorMessage:       st.ErrorMessage,
		Messages:           toMessagesResponse(st.Messages),
	}
}

func toMessagesResponse(msgs []domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageResponse{
			ID:          string(m.ID),
			Author:      string(m.Author),
			Content:     m.Content,
			CreatedAt:   m.CreatedAt,
			Attachments: m.Attachments,
			Preview:     m.Preview,
		})
	}
	return out
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error("request failed",
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}
