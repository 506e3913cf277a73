package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// persistedSession mirrors the two persisted keys: the raw bearer token and
// the serialized identity. Both survive process restart and are the sole
// inputs to Initialize.
type persistedSession struct {
	Token string `json:"token,omitempty"`
	User  *User  `json:"user,omitempty"`
}

// Storage persists session state across process restarts.
type Storage interface {
	Load() (*persistedSession, error)
	Save(state *persistedSession) error
	Clear() error
}

// FileStorage keeps the session in a single JSON file, written atomically via
// a temp file and rename.
type FileStorage struct {
	Path string
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{Path: strings.TrimSpace(path)}
}

func (s *FileStorage) Load() (*persistedSession, error) {
	if s == nil || strings.TrimSpace(s.Path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var snapshot persistedSession
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *FileStorage) Save(state *persistedSession) error {
	if s == nil || strings.TrimSpace(s.Path) == "" || state == nil {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}

func (s *FileStorage) Clear() error {
	if s == nil || strings.TrimSpace(s.Path) == "" {
		return nil
	}
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// MemoryStorage is an in-process Storage used by tests and by callers that
// do not want the session to outlive the process.
type MemoryStorage struct {
	mu    sync.Mutex
	state *persistedSession
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Load() (*persistedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, nil
	}
	copied := *s.state
	return &copied, nil
}

func (s *MemoryStorage) Save(state *persistedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == nil {
		s.state = nil
		return nil
	}
	copied := *state
	s.state = &copied
	return nil
}

func (s *MemoryStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = nil
	return nil
}
