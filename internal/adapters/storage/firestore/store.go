package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ylol-app/ylol/internal/domain"
	"github.com/ylol-app/ylol/internal/observability"
)

// Store is a domain.SessionStore on Firestore. Sessions live under
// users/{uid}/sessions/{sid} with their messages embedded; documents are
// created once and never updated.
type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (YLOL_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) sessionsCol(userID domain.UserID) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(string(userID)).Collection("sessions")
}

type sessionDoc struct {
	Mode      string       `firestore:"mode"`
	CreatedAt time.Time    `firestore:"created_at"`
	Messages  []messageDoc `firestore:"messages"`
}

type messageDoc struct {
	ID          string     `firestore:"id"`
	Author      string     `firestore:"author"`
	Content     string     `firestore:"content"`
	CreatedAt   time.Time  `firestore:"created_at"`
	Attachments []mediaDoc `firestore:"attachments,omitempty"`
}

type mediaDoc struct {
	ID        string    `firestore:"id"`
	Kind      string    `firestore:"kind"`
	Locator   string    `firestore:"locator"`
	Metadata  *linkDoc  `firestore:"metadata,omitempty"`
	CreatedAt time.Time `firestore:"created_at"`
}

type linkDoc struct {
	Title        string `firestore:"title"`
	Description  string `firestore:"description"`
	PreviewImage string `firestore:"preview_image"`
	SiteName     string `firestore:"site_name"`
}

// WriteSession implements domain.SessionStore.
func (s *Store) WriteSession(ctx context.Context, session domain.Session) (err error) {
	ctx, span := observability.Tracer().Start(ctx, "firestore.WriteSession", trace.WithAttributes(
		attribute.String("session_id", string(session.ID)),
		attribute.Int("messages", len(session.Messages)),
	))
	defer func() { endSpan(span, err) }()

	if err := session.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStore, err)
	}

	_, err = s.sessionsCol(session.UserID).Doc(string(session.ID)).Create(ctx, toDoc(session))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("%w: session %s already exists", domain.ErrStore, session.ID)
		}
		return fmt.Errorf("%w: firestore WriteSession: %v", domain.ErrStore, err)
	}
	return nil
}

// FetchSessions implements domain.SessionStore. Sessions come back oldest first.
func (s *Store) FetchSessions(ctx context.Context, userID domain.UserID) (out []domain.Session, err error) {
	ctx, span := observability.Tracer().Start(ctx, "firestore.FetchSessions")
	defer func() { endSpan(span, err) }()

	iter := s.sessionsCol(userID).OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			if status.Code(err) == codes.NotFound {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: firestore FetchSessions: %v", domain.ErrStore, err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("%w: decode sessionDoc: %v", domain.ErrStore, err)
		}
		out = append(out, fromDoc(domain.SessionID(snap.Ref.ID), userID, doc))
	}
	return out, nil
}

func toDoc(session domain.Session) sessionDoc {
	doc := sessionDoc{
		Mode:      string(session.Mode),
		CreatedAt: session.CreatedAt,
		Messages:  make([]messageDoc, 0, len(session.Messages)),
	}
	for _, m := range session.Messages {
		md := messageDoc{
			ID:        string(m.ID),
			Author:    string(m.Author),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		}
		for _, a := range m.Attachments {
			ad := mediaDoc{
				ID:        string(a.ID),
				Kind:      string(a.Kind),
				Locator:   a.Locator,
				CreatedAt: a.CreatedAt,
			}
			if a.Metadata != nil {
				ad.Metadata = &linkDoc{
					Title:        a.Metadata.Title,
					Description:  a.Metadata.Description,
					PreviewImage: a.Metadata.PreviewImageLocator,
					SiteName:     a.Metadata.SiteName,
				}
			}
			md.Attachments = append(md.Attachments, ad)
		}
		doc.Messages = append(doc.Messages, md)
	}
	return doc
}

func fromDoc(id domain.SessionID, userID domain.UserID, doc sessionDoc) domain.Session {
	session := domain.Session{
		ID:        id,
		UserID:    userID,
		Mode:      domain.Mode(doc.Mode),
		CreatedAt: doc.CreatedAt,
		Messages:  make([]domain.Message, 0, len(doc.Messages)),
	}
	for _, md := range doc.Messages {
		m := domain.Message{
			ID:        domain.MessageID(md.ID),
			Author:    domain.Author(md.Author),
			Content:   md.Content,
			CreatedAt: md.CreatedAt,
		}
		for _, a := range md.Attachments {
			ref := domain.MediaRef{
				ID:        domain.MediaID(a.ID),
				Kind:      domain.MediaKind(a.Kind),
				Locator:   a.Locator,
				CreatedAt: a.CreatedAt,
			}
			if a.Metadata != nil {
				ref.Metadata = &domain.LinkMetadata{
					Title:               a.Metadata.Title,
					Description:         a.Metadata.Description,
					PreviewImageLocator: a.Metadata.PreviewImage,
					SiteName:            a.Metadata.SiteName,
				}
			}
			m.Attachments = append(m.Attachments, ref)
		}
		session.Messages = append(session.Messages, m)
	}
	return session
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}
