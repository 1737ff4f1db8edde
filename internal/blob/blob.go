// Package blob stages uploaded audio between the API and the workers.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

// Store holds staged objects by key.
type Store interface {
	Put(ctx context.Context, key, localPath string) error
	// Fetch makes the object available as a local file. cleanup removes any
	// temporary copy and is safe to call once.
	Fetch(ctx context.Context, key string) (localPath string, cleanup func(), err error)
	Remove(ctx context.Context, key string) error
}

// ObjectKey builds the staging key for one task's upload.
func ObjectKey(owner, taskID, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return fmt.Sprintf("uploads/%s/%s%s", sanitize(owner), taskID, ext)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

func validKey(key string) error {
	clean := path.Clean(key)
	if key == "" || clean != key || strings.HasPrefix(clean, "/") || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
