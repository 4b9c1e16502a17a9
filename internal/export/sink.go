package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File is a serialized artifact ready to be saved.
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// Sink receives exported files. Save returns where the file ended up.
type Sink interface {
	Save(ctx context.Context, f File) (string, error)
}

// DirSink writes files into a directory, creating it when missing.
type DirSink struct {
	Dir string
}

// Save writes f under the sink directory, replacing an existing file.
func (s DirSink) Save(ctx context.Context, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(f.Name))
	if err := os.WriteFile(path, f.Data, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", f.Name, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

// MemorySink keeps saved files in memory.
type MemorySink struct {
	mu    sync.Mutex
	files []File
}

// Save records a copy of f.
func (s *MemorySink) Save(_ context.Context, f File) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.Data = append([]byte(nil), f.Data...)
	s.files = append(s.files, f)
	return "memory://" + f.Name, nil
}

// Files returns the saved files in order.
func (s *MemorySink) Files() []File {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]File, len(s.files))
	copy(out, s.files)
	return out
}

// Last returns the most recently saved file.
func (s *MemorySink) Last() (File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.files) == 0 {
		return File{}, false
	}
	return s.files[len(s.files)-1], true
}
