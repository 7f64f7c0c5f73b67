package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ent0n29/voicerelay/internal/audio"
)

var ErrEmpty = errors.New("uploaded file is empty")

// Store writes request-scoped uploads into a single transient directory.
type Store struct {
	dir string

	mu    sync.Mutex
	ready bool
}

func NewStore(dir string) *Store {
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "voicerelay-uploads")
	}
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

// File is an uploaded blob on disk. Callers own it and must Remove it.
type File struct {
	Path string
	Size int64

	once sync.Once
}

// Remove deletes the file. Safe to call more than once; errors are ignored.
func (f *File) Remove() {
	if f == nil {
		return
	}
	f.once.Do(func() {
		_ = os.Remove(f.Path)
	})
}

// Save copies r into a new file named after a random ID with an extension
// derived from filename and contentType.
func (s *Store) Save(r io.Reader, filename, contentType string) (*File, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.dir, uuid.NewString()+audio.ExtensionFor(filename, contentType))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write upload file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("close upload file: %w", closeErr)
	}
	if n == 0 {
		_ = os.Remove(path)
		return nil, ErrEmpty
	}
	return &File{Path: path, Size: n}, nil
}

func (s *Store) ensureDir() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	s.ready = true
	return nil
}
