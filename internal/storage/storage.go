// Package storage persists captured stills as numbered JPEG files,
// mirroring the viewfinder's cam<timestamp>.jpg naming in the user's
// Pictures directory.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/crazymi/TizenFaceFilter/internal/types"
)

// ErrEmptyPhoto is returned when there is nothing to write.
var ErrEmptyPhoto = errors.New("storage: empty photo")

// Store writes photos into a single directory.
type Store struct {
	dir   string
	saved atomic.Uint64
}

// New resolves and creates the photo directory. An empty dir selects
// $HOME/Pictures.
func New(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: resolving home dir: %w", err)
		}
		dir = filepath.Join(home, "Pictures")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the resolved photo directory.
func (s *Store) Dir() string { return s.dir }

// Saved returns the number of photos written.
func (s *Store) Saved() uint64 { return s.saved.Load() }

// SavePhoto writes the photo as cam<unix-seconds>.jpg and returns the
// full path. Shots landing in the same second get a _1, _2, ... suffix
// instead of overwriting the earlier file.
func (s *Store) SavePhoto(photo *types.Photo) (string, error) {
	if photo == nil || len(photo.Data) == 0 {
		return "", ErrEmptyPhoto
	}
	ts := photo.TakenAt
	if ts.IsZero() {
		ts = time.Now()
	}
	base := fmt.Sprintf("cam%d", ts.Unix())
	path := filepath.Join(s.dir, base+".jpg")
	for n := 1; ; n++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			break
		}
		path = filepath.Join(s.dir, fmt.Sprintf("%s_%d.jpg", base, n))
	}
	if err := os.WriteFile(path, photo.Data, 0o644); err != nil {
		return "", fmt.Errorf("storage: writing %s: %w", path, err)
	}
	s.saved.Add(1)
	return path, nil
}
