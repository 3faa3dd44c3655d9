package media

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ylol-app/ylol/internal/domain"
)

func TestMemoryUploader(t *testing.T) {
	u := NewMemoryUploader()
	u.now = func() time.Time { return time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC) }

	locator, err := u.Upload(context.Background(), []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(locator, "memory://images/2026/05/04/"), locator)
	assert.True(t, strings.HasSuffix(locator, ".png"), locator)

	data, mimeType, ok := u.Get(locator)
	require.True(t, ok)
	assert.Equal(t, []byte("png-bytes"), data)
	assert.Equal(t, "image/png", mimeType)
}

func TestValidate(t *testing.T) {
	require.ErrorIs(t, validate(nil, "image/png"), domain.ErrUpload)
	require.ErrorIs(t, validate([]byte("x"), "text/plain"), domain.ErrUpload)
	require.ErrorIs(t, validate(make([]byte, MaxImageBytes+1), "image/png"), domain.ErrUpload)
	require.NoError(t, validate([]byte("x"), "image/jpeg"))
}
