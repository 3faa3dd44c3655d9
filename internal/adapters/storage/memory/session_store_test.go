package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ylol-app/ylol/internal/adapters/storage/memory"
	"github.com/ylol-app/ylol/internal/domain"
)

func TestWriteAndFetchSessions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	later := domain.Session{
		ID: "s2", UserID: "u", Mode: domain.ModeChallenging, CreatedAt: base.Add(time.Hour),
		Messages: []domain.Message{domain.NewMessage(domain.AuthorUser, "second", base.Add(time.Hour))},
	}
	earlier := domain.Session{
		ID: "s1", UserID: "u", Mode: domain.ModeSupportive, CreatedAt: base,
		Messages: []domain.Message{
			domain.NewMessage(domain.AuthorAssistant, "hey", base),
			domain.NewMessage(domain.AuthorUser, "first", base),
		},
	}
	other := domain.Session{ID: "s3", UserID: "someone-else", CreatedAt: base}

	require.NoError(t, store.WriteSession(ctx, later))
	require.NoError(t, store.WriteSession(ctx, earlier))
	require.NoError(t, store.WriteSession(ctx, other))

	got, err := store.FetchSessions(ctx, "u")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.SessionID("s1"), got[0].ID)
	assert.Equal(t, domain.SessionID("s2"), got[1].ID)
	assert.Equal(t, "first", got[0].Messages[1].Content)

	none, err := store.FetchSessions(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWriteSessionIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	s := domain.Session{ID: "s1", UserID: "u", CreatedAt: time.Now()}

	require.NoError(t, store.WriteSession(ctx, s))
	require.ErrorIs(t, store.WriteSession(ctx, s), domain.ErrStore)
}

func TestWriteSessionRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	now := time.Now()

	bad := domain.Session{
		ID: "s1", UserID: "u", CreatedAt: now,
		Messages: []domain.Message{
			domain.NewMessage(domain.AuthorUser, "b", now),
			domain.NewMessage(domain.AuthorUser, "a", now.Add(-time.Minute)),
		},
	}
	require.ErrorIs(t, store.WriteSession(ctx, bad), domain.ErrStore)
}

func TestStoredSessionsDropPreviews(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	msg := domain.NewMessage(domain.AuthorUser, "https://x.example", time.Now())
	msg.Preview = &domain.LinkMetadata{Title: "X"}

	require.NoError(t, store.WriteSession(ctx, domain.Session{
		ID: "s1", UserID: "u", CreatedAt: msg.CreatedAt, Messages: []domain.Message{msg},
	}))

	got, err := store.FetchSessions(ctx, "u")
	require.NoError(t, err)
	assert.Nil(t, got[0].Messages[0].Preview)
}
