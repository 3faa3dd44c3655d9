package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ylol-app/ylol/internal/domain"
)

// Lifecycle decides which session id new messages belong to and when they
// are written to the store. Sessions are write-once: every successful flush
// and every continuation of a resumed session starts a fresh id.
type Lifecycle struct {
	store   domain.SessionStore
	userID  domain.UserID
	log     *slog.Logger
	metrics *metrics

	mu        sync.Mutex
	sessionID domain.SessionID
	mode      domain.Mode
	pending   []domain.Message // appended since the last flush
	dirty     bool
	resumed   bool
	continued bool
	flushing  bool
	gen       uint64 // bumped whenever pending is replaced wholesale

	onChange func()
	wg       sync.WaitGroup
}

func newLifecycle(store domain.SessionStore, userID domain.UserID, mode domain.Mode, log *slog.Logger, m *metrics) *Lifecycle {
	return &Lifecycle{
		store:     store,
		userID:    userID,
		log:       log,
		metrics:   m,
		sessionID: newSessionID(),
		mode:      mode,
	}
}

func newSessionID() domain.SessionID {
	return domain.SessionID(domain.NewID())
}

func (l *Lifecycle) SessionID() domain.SessionID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

func (l *Lifecycle) IsResumed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resumed
}

// Pending returns a copy of the messages not yet flushed.
func (l *Lifecycle) Pending() []domain.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Message(nil), l.pending...)
}

// Reset starts a brand new session for mode. Unflushed messages are dropped.
func (l *Lifecycle) Reset(mode domain.Mode) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) > 0 && l.dirty {
		l.log.Info("discarding unflushed messages", "session_id", l.sessionID, "count", len(l.pending))
	}
	l.gen++
	l.sessionID = newSessionID()
	l.mode = mode
	l.pending = nil
	l.dirty = false
	l.resumed = false
	l.continued = false
}

// Resume adopts a stored session. Its messages are history, not pending.
func (l *Lifecycle) Resume(session domain.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.gen++
	l.sessionID = session.ID
	if session.Mode.Valid() {
		l.mode = session.Mode
	}
	l.pending = nil
	l.dirty = false
	l.resumed = true
	l.continued = false
}

// ContinueAfterResume moves a resumed conversation onto a new session id.
// Only the first call after a resume has an effect; it reports whether it did.
func (l *Lifecycle) ContinueAfterResume() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.resumed || l.continued {
		return false
	}
	prev := l.sessionID
	l.gen++
	l.sessionID = newSessionID()
	l.pending = nil
	l.dirty = false
	l.continued = true
	l.log.Info("continuing resumed session", "resumed_session_id", prev, "session_id", l.sessionID)
	return true
}

// Track records a newly appended message.
func (l *Lifecycle) Track(msg domain.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, msg.Persistable())
}

// MarkDirtyOnUserTurn flags the session as holding user content worth saving.
func (l *Lifecycle) MarkDirtyOnUserTurn() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dirty = true
}

// Flush hands the pending messages to the store in the background and
// reports whether a write was started. Failures are logged and not retried.
func (l *Lifecycle) Flush(ctx context.Context) bool {
	l.mu.Lock()
	if !l.dirty || len(l.pending) == 0 || l.flushing {
		l.mu.Unlock()
		return false
	}

	session := domain.Session{
		ID:        l.sessionID,
		UserID:    l.userID,
		Mode:      l.mode,
		Messages:  append([]domain.Message(nil), l.pending...),
		CreatedAt: l.pending[0].CreatedAt,
	}
	l.flushing = true
	gen := l.gen
	l.mu.Unlock()

	// the write outlives the caller (teardown, backgrounding)
	ctx = context.WithoutCancel(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.write(ctx, gen, session)
	}()
	return true
}

// write stores session and, if pending is still the set it was taken from,
// drops the written prefix and rotates the id.
func (l *Lifecycle) write(ctx context.Context, gen uint64, session domain.Session) {
	log := l.log.With("session_id", session.ID, "messages", len(session.Messages))
	start := time.Now()

	err := l.store.WriteSession(ctx, session)

	l.mu.Lock()
	l.flushing = false
	if err != nil {
		l.mu.Unlock()
		log.Error("failed to write session", "error", err)
		l.metrics.flushFailed(ctx)
		return
	}

	rotated := false
	if l.gen == gen && l.sessionID == session.ID {
		n := min(len(session.Messages), len(l.pending))
		l.pending = append([]domain.Message(nil), l.pending[n:]...)
		l.dirty = hasUserMessage(l.pending)
		l.sessionID = newSessionID()
		rotated = true
	}
	onChange := l.onChange
	l.mu.Unlock()

	log.Info("session flushed", "elapsed_ms", time.Since(start).Milliseconds())
	if rotated && onChange != nil {
		onChange()
	}
}

// Wait blocks until every background write has finished.
func (l *Lifecycle) Wait() {
	l.wg.Wait()
}

func hasUserMessage(msgs []domain.Message) bool {
	for _, m := range msgs {
		if m.Author == domain.AuthorUser {
			return true
		}
	}
	return false
}
