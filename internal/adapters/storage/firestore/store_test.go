package firestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ylol-app/ylol/internal/domain"
)

func TestDocRoundTripKeepsMessagesAndAttachments(t *testing.T) {
	at := time.Date(2026, 5, 2, 20, 0, 0, 0, time.UTC)
	user := domain.NewMessage(domain.AuthorUser, "look", at, domain.MediaRef{
		ID: "m1", Kind: domain.MediaImage, Locator: "https://storage.googleapis.com/b/x.jpg", CreatedAt: at,
	})
	user.Preview = &domain.LinkMetadata{Title: "dropped"}

	in := domain.Session{
		ID:        "s1",
		UserID:    "u1",
		Mode:      domain.ModeChallenging,
		CreatedAt: at,
		Messages: []domain.Message{
			domain.NewMessage(domain.AuthorAssistant, "hi", at),
			user,
		},
	}

	out := fromDoc(in.ID, in.UserID, toDoc(in))

	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Mode, out.Mode)
	assert.Len(t, out.Messages, 2)
	assert.Equal(t, user.ID, out.Messages[1].ID)
	assert.Equal(t, user.Attachments, out.Messages[1].Attachments)
	assert.Nil(t, out.Messages[1].Preview)
}
