package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ylol-app/ylol/internal/domain"
	"github.com/ylol-app/ylol/internal/observability"
)

// Store is a domain.SessionStore backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates or opens the session database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, created_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		seq INTEGER NOT NULL,
		author TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		attachments_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WriteSession implements domain.SessionStore. The session row and all its
// messages are inserted in one transaction; an existing id is an error.
func (s *Store) WriteSession(ctx context.Context, session domain.Session) (err error) {
	ctx, span := observability.Tracer().Start(ctx, "sqlite.WriteSession", trace.WithAttributes(
		attribute.String("session_id", string(session.ID)),
		attribute.Int("messages", len(session.Messages)),
	))
	defer func() { endSpan(span, err) }()

	if err := session.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStore, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrStore, err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, mode, created_at) VALUES (?, ?, ?, ?)`,
		string(session.ID), string(session.UserID), string(session.Mode), session.CreatedAt.UnixNano(),
	)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("%w: session %s already exists", domain.ErrStore, session.ID)
		}
		return fmt.Errorf("%w: insert session: %v", domain.ErrStore, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (id, session_id, seq, author, content, created_at, attachments_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", domain.ErrStore, err)
	}
	defer stmt.Close()

	for i, m := range session.Messages {
		var attachments sql.NullString
		if len(m.Attachments) > 0 {
			raw, err := json.Marshal(m.Attachments)
			if err != nil {
				return fmt.Errorf("%w: encode attachments: %v", domain.ErrStore, err)
			}
			attachments = sql.NullString{String: string(raw), Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			string(m.ID), string(session.ID), i, string(m.Author), m.Content, m.CreatedAt.UnixNano(), attachments)
		if err != nil {
			return fmt.Errorf("%w: insert message %d: %v", domain.ErrStore, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrStore, err)
	}
	return nil
}

// FetchSessions implements domain.SessionStore. Sessions come back oldest first.
func (s *Store) FetchSessions(ctx context.Context, userID domain.UserID) (out []domain.Session, err error) {
	ctx, span := observability.Tracer().Start(ctx, "sqlite.FetchSessions")
	defer func() { endSpan(span, err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.mode, s.created_at,
		       m.id, m.author, m.content, m.created_at, m.attachments_json
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.id
		WHERE s.user_id = ?
		ORDER BY s.created_at ASC, s.rowid ASC, m.seq ASC`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("%w: query sessions: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sid, mode         string
			sCreated          int64
			mid, author, body sql.NullString
			mCreated          sql.NullInt64
			attachments       sql.NullString
		)
		if err := rows.Scan(&sid, &mode, &sCreated, &mid, &author, &body, &mCreated, &attachments); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrStore, err)
		}

		if len(out) == 0 || out[len(out)-1].ID != domain.SessionID(sid) {
			out = append(out, domain.Session{
				ID:        domain.SessionID(sid),
				UserID:    userID,
				Mode:      domain.Mode(mode),
				CreatedAt: fromNanos(sCreated),
				Messages:  []domain.Message{},
			})
		}
		if !mid.Valid {
			continue
		}

		msg := domain.Message{
			ID:        domain.MessageID(mid.String),
			Author:    domain.Author(author.String),
			Content:   body.String,
			CreatedAt: fromNanos(mCreated.Int64),
		}
		if attachments.Valid {
			if err := json.Unmarshal([]byte(attachments.String), &msg.Attachments); err != nil {
				return nil, fmt.Errorf("%w: decode attachments: %v", domain.ErrStore, err)
			}
		}
		cur := &out[len(out)-1]
		cur.Messages = append(cur.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", domain.ErrStore, err)
	}
	return out, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}
