package anchor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileSink stores anchors as files in one directory.
type FileSink struct {
	dir string
	mu  sync.RWMutex
}

func NewFileSink(dir string) (*FileSink, error) {
	//nolint:gosec // G301: anchors are meant to be readable by auditors
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure anchor dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

func (s *FileSink) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("anchor: invalid key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

// Put writes data under key. An existing key is left untouched.
func (s *FileSink) Put(ctx context.Context, key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return nil
	}
	tmp := path + ".tmp"
	//nolint:gosec // G306: anchors are public
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write anchor: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit anchor: %w", err)
	}
	return nil
}

func (s *FileSink) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path) //nolint:gosec // key validated above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return data, nil
}

func (s *FileSink) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		keys = append(keys, e.Name())
	}
	sort.Strings(keys)
	return keys, nil
}
