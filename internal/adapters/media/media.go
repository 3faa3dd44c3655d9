package media

import (
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/ylol-app/ylol/internal/domain"
)

// MaxImageBytes caps a single upload.
const MaxImageBytes = 10 << 20

func validate(data []byte, mimeType string) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty image", domain.ErrUpload)
	}
	if len(data) > MaxImageBytes {
		return fmt.Errorf("%w: image is %d bytes, limit is %d", domain.ErrUpload, len(data), MaxImageBytes)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return fmt.Errorf("%w: unsupported content type %q", domain.ErrUpload, mimeType)
	}
	return nil
}

// objectName lays uploads out as images/2006/01/02/<id><ext>.
func objectName(now time.Time, mimeType string) string {
	ext := ""
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	return path.Join("images", now.UTC().Format("2006/01/02"), domain.NewID()+ext)
}
