package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	logx "escalabot/pkg/logx"
)

// fileStore is a dependency-free persistence backend: one JSON document per
// record under a directory, written atomically (temp file + rename) so a
// concurrent Load never observes a partial save.
type fileStore struct {
	log logx.Logger
	dir string

	mu sync.Mutex
}

var recordNameRe = regexp.MustCompile(`^[a-z0-9_-]+$`)

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, dir: dir}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) path(record string) (string, error) {
	if !recordNameRe.MatchString(record) {
		return "", errors.New("invalid record name: " + record)
	}
	return filepath.Join(s.dir, record+".json"), nil
}

func (s *fileStore) Load(ctx context.Context, record string, v any) (bool, error) {
	_ = ctx
	path, err := s.path(record)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStore) Save(ctx context.Context, record string, v any) error {
	_ = ctx
	path, err := s.path(record)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
