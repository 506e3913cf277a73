package session

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the session whenever the persisted state file is rewritten or
// removed by another process, so a logout elsewhere propagates here without a
// restart. It blocks until ctx ends and only works with FileStorage.
func (s *Session) Watch(ctx context.Context) error {
	fileStorage, ok := s.storage.(*FileStorage)
	if !ok || strings.TrimSpace(fileStorage.Path) == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// watch the directory: saves go through a temp-file rename, which
	// replaces the inode the file watch would be pinned to
	if err := watcher.Add(filepath.Dir(fileStorage.Path)); err != nil {
		return err
	}

	target := filepath.Clean(fileStorage.Path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			s.reload()
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

func (s *Session) reload() {
	state, err := s.storage.Load()
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == nil {
		s.token = ""
		s.user = nil
		return
	}
	s.token = state.Token
	s.user = state.User
}
