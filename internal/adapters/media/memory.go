package media

import (
	"context"
	"sync"
	"time"
)

// MemoryUploader keeps uploads in memory. For local mode and tests.
type MemoryUploader struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

type memoryObject struct {
	data     []byte
	mimeType string
}

func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

func (u *MemoryUploader) Upload(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := validate(data, mimeType); err != nil {
		return "", err
	}

	locator := "memory://" + objectName(u.now(), mimeType)

	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects[locator] = memoryObject{
		data:     append([]byte(nil), data...),
		mimeType: mimeType,
	}
	return locator, nil
}

// Get returns a stored upload.
func (u *MemoryUploader) Get(locator string) ([]byte, string, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	obj, ok := u.objects[locator]
	return obj.data, obj.mimeType, ok
}
