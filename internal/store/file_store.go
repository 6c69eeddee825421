package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	subscriptionsFile = "subscriptions.json"
	versionsFile      = "versions.json"
	commentsFile      = "comments.json"
)

// FileStore keeps each snapshot in its own JSON file under a state
// directory. Writes go through a temp file and a rename so a crash
// mid-write never leaves a truncated snapshot behind.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. The directory is created
// on the first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) LoadSubscriptions(ctx context.Context) (SubscriptionState, error) {
	state := NewSubscriptionState()
	if _, err := s.readJSON(subscriptionsFile, &state); err != nil {
		return SubscriptionState{}, err
	}
	if state.Updates == nil {
		state.Updates = make(map[string][]string)
	}
	if state.Comments == nil {
		state.Comments = make(map[string][]string)
	}
	return state, nil
}

func (s *FileStore) SaveSubscriptions(ctx context.Context, state SubscriptionState) error {
	return s.writeJSON(subscriptionsFile, state)
}

func (s *FileStore) LoadVersions(ctx context.Context) (VersionState, error) {
	state := make(VersionState)
	if _, err := s.readJSON(versionsFile, &state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *FileStore) SaveVersions(ctx context.Context, state VersionState) error {
	return s.writeJSON(versionsFile, state)
}

func (s *FileStore) LoadComments(ctx context.Context) (CommentState, error) {
	state := make(CommentState)
	if _, err := s.readJSON(commentsFile, &state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *FileStore) SaveComments(ctx context.Context, state CommentState) error {
	return s.writeJSON(commentsFile, state)
}

// readJSON decodes the named snapshot into out. A missing file is not an
// error; it reports found=false and leaves out untouched.
func (s *FileStore) readJSON(name string, out any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (s *FileStore) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "encode " + name, Err: err}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &PersistenceError{Op: "save " + name, Err: err}
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &PersistenceError{Op: "save " + name, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &PersistenceError{Op: "save " + name, Err: err}
	}
	return nil
}
