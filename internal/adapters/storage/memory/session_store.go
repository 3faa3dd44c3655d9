package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ylol-app/ylol/internal/domain"
)

// SessionStore is an in-memory domain.SessionStore.
// It is NOT persistent and is only suitable for development / local mode.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]domain.Session
	byUserID map[domain.UserID][]domain.SessionID
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[domain.SessionID]domain.Session),
		byUserID: make(map[domain.UserID][]domain.SessionID),
	}
}

// WriteSession stores a session once. Writing the same id twice fails.
func (s *SessionStore) WriteSession(ctx context.Context, session domain.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStore, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("%w: session %s already exists", domain.ErrStore, session.ID)
	}

	s.sessions[session.ID] = cloneSession(session)
	s.byUserID[session.UserID] = append(s.byUserID[session.UserID], session.ID)
	return nil
}

// FetchSessions returns the user's sessions, oldest first.
func (s *SessionStore) FetchSessions(ctx context.Context, userID domain.UserID) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUserID[userID]
	out := make([]domain.Session, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneSession(s.sessions[id]))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func cloneSession(s domain.Session) domain.Session {
	msgs := make([]domain.Message, len(s.Messages))
	for i, m := range s.Messages {
		msgs[i] = m.Persistable()
	}
	s.Messages = msgs
	return s
}
