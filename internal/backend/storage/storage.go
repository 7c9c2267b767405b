// Package storage persists annotated images.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a stored image does not exist
var ErrNotFound = errors.New("stored image not found")

// Store saves and loads processed images. The returned path is opaque to callers
// and only meaningful to the Store that produced it.
type Store interface {
	Save(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Load(ctx context.Context, path string) ([]byte, error)
}

// ProcessedName builds a unique object name: processed_<uuid hex>_<base name of upload>.
// Both / and \ count as separators, whatever the client platform.
func ProcessedName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if base == "." || base == "/" || base == ".." || base == "" {
		base = "frame.jpg"
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("processed_%s_%s", id, base)
}
