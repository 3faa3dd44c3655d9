package domain_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ylol-app/ylol/internal/domain"
)

func TestParseMode(t *testing.T) {
	cases := map[string]domain.Mode{
		"supportive":  domain.ModeSupportive,
		" Support ":   domain.ModeSupportive,
		"soft":        domain.ModeSupportive,
		"CHALLENGING": domain.ModeChallenging,
		"tough":       domain.ModeChallenging,
	}
	for in, want := range cases {
		got, err := domain.ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := domain.ParseMode("grumpy")
	require.ErrorIs(t, err, domain.ErrInvalidMode)
}

func TestEveryModeHasItsOwnGreeting(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range domain.Modes {
		assert.True(t, m.Valid())
		g := m.Greeting()
		assert.NotEmpty(t, g)
		assert.False(t, seen[g], "duplicate greeting for %s", m)
		seen[g] = true
	}
	assert.False(t, domain.Mode("other").Valid())
}

func TestSessionValidate(t *testing.T) {
	now := time.Now()

	ok := domain.Session{ID: "s", Messages: []domain.Message{
		domain.NewMessage(domain.AuthorAssistant, "hi", now),
		domain.NewMessage(domain.AuthorUser, "yo", now),
	}}
	assert.NoError(t, ok.Validate())

	assert.Error(t, domain.Session{}.Validate())

	badAuthor := domain.Session{ID: "s", Messages: []domain.Message{{Author: "system", CreatedAt: now}}}
	assert.Error(t, badAuthor.Validate())

	backwards := domain.Session{ID: "s", Messages: []domain.Message{
		domain.NewMessage(domain.AuthorUser, "b", now),
		domain.NewMessage(domain.AuthorUser, "a", now.Add(-time.Second)),
	}}
	assert.Error(t, backwards.Validate())
}

func TestPersistableDropsPreviewAndCopiesAttachments(t *testing.T) {
	ref := domain.MediaRef{ID: "m", Kind: domain.MediaLink, Locator: "https://a.example"}
	msg := domain.NewMessage(domain.AuthorUser, "https://a.example", time.Now(), ref)
	msg.Preview = &domain.LinkMetadata{Title: "A"}

	p := msg.Persistable()
	assert.Nil(t, p.Preview)
	require.Len(t, p.Attachments, 1)

	p.Attachments[0].Locator = "changed"
	assert.Equal(t, "https://a.example", msg.Attachments[0].Locator)
}

func TestNewMessageAssignsUniqueIDs(t *testing.T) {
	now := time.Now()
	a := domain.NewMessage(domain.AuthorUser, "x", now)
	b := domain.NewMessage(domain.AuthorUser, "x", now)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestUserFacingError(t *testing.T) {
	assert.Empty(t, domain.UserFacingError(nil))

	msgs := map[string]bool{}
	for _, err := range []error{
		fmt.Errorf("wrap: %w", domain.ErrNetwork),
		domain.ErrModelUnavailable,
		domain.ErrUpload,
		&domain.ServerError{Code: 500},
		fmt.Errorf("something else"),
	} {
		msg := domain.UserFacingError(err)
		assert.NotEmpty(t, msg)
		assert.False(t, msgs[msg], "duplicate banner %q", msg)
		msgs[msg] = true
	}
	assert.Contains(t, domain.UserFacingError(&domain.ServerError{Code: 502}), "502")
}
