// Package store persists sessions on the local filesystem.
//
// Directory structure:
//
//	<root>/
//	├── {session-uuid}/
//	│   ├── session.json    ← session context envelope
//	│   └── events.jsonl    ← append-only event log, one JSON object per line
//
// Calls for different sessions may run concurrently; calls for the same
// session are serialized by a per-session lock.
package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/session"
)

// ErrNotFound is returned when a session directory does not exist.
var ErrNotFound = errors.New("session not found")

const (
	contextFile = "session.json"
	eventsFile  = "events.jsonl"
)

// FileStore implements the session store on a local directory tree.
type FileStore struct {
	root   string
	logger *zap.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewFileStore creates the root directory if needed. An empty root defaults
// to ~/.local/share/voxd/sessions.
func NewFileStore(root string, logger *zap.Logger) (*FileStore, error) {
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		root = filepath.Join(home, ".local", "share", "voxd", "sessions")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session root: %w", err)
	}
	return &FileStore{
		root:   root,
		logger: logger,
		locks:  make(map[uuid.UUID]*sync.Mutex),
	}, nil
}

// Root returns the store's base directory.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) lock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *FileStore) dir(id uuid.UUID) string {
	return filepath.Join(s.root, id.String())
}

// SaveSession writes the session context envelope, creating the session
// directory on first save.
func (s *FileStore) SaveSession(ctx context.Context, sc *session.Context) error {
	if sc == nil {
		return errors.New("session context is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.lock(sc.SessionID)
	l.Lock()
	defer l.Unlock()

	dir := s.dir(sc.SessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session context: %w", err)
	}

	tmp := filepath.Join(dir, contextFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session context: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, contextFile)); err != nil {
		return fmt.Errorf("failed to commit session context: %w", err)
	}
	return nil
}

// LoadSession reads the context envelope and full event log.
func (s *FileStore) LoadSession(ctx context.Context, id uuid.UUID) (*session.Context, []session.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	l := s.lock(id)
	l.Lock()
	defer l.Unlock()

	sc, err := s.readContext(id)
	if err != nil {
		return nil, nil, err
	}
	events, err := s.readEvents(id)
	if err != nil {
		return nil, nil, err
	}
	return sc, events, nil
}

// ListSessions returns metadata for all stored sessions, optionally
// filtered by user. Unreadable entries are skipped with a warning.
func (s *FileStore) ListSessions(ctx context.Context, userID string) ([]session.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read session root: %w", err)
	}

	out := make([]session.Metadata, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := uuid.Parse(e.Name())
		if err != nil {
			continue
		}
		sc, err := s.readContext(id)
		if err != nil {
			s.logger.Warn("skipping unreadable session",
				zap.String("session_id", e.Name()), zap.Error(err))
			continue
		}
		if userID != "" && sc.UserID != userID {
			continue
		}
		events, _ := s.readEvents(id)
		out = append(out, session.Metadata{
			SessionID:  sc.SessionID,
			UserID:     sc.UserID,
			CreatedAt:  sc.CreatedAt,
			UpdatedAt:  sc.UpdatedAt,
			Status:     sc.Status,
			Title:      sc.Title,
			EventCount: len(events),
		})
	}
	return out, nil
}

// DeleteSession removes a session and its event log wholesale.
func (s *FileStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.lock(id)
	l.Lock()
	defer l.Unlock()

	dir := s.dir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return ErrNotFound
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// AppendEvent appends one event to the session's log, creating the session
// directory if this is the first write for the session.
func (s *FileStore) AppendEvent(ctx context.Context, id uuid.UUID, e session.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.lock(id)
	l.Lock()
	defer l.Unlock()

	dir := s.dir(id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, eventsFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// SessionExists reports whether a context envelope has been saved for id.
func (s *FileStore) SessionExists(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(s.dir(id), contextFile))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStore) readContext(id uuid.UUID) (*session.Context, error) {
	data, err := os.ReadFile(filepath.Join(s.dir(id), contextFile))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session context: %w", err)
	}
	var sc session.Context
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to decode session context: %w", err)
	}
	return &sc, nil
}

func (s *FileStore) readEvents(id uuid.UUID) ([]session.Event, error) {
	f, err := os.Open(filepath.Join(s.dir(id), eventsFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	var events []session.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e session.Event
		if err := json.Unmarshal(line, &e); err != nil {
			s.logger.Warn("skipping corrupt event line",
				zap.String("session_id", id.String()), zap.Error(err))
			continue
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan event log: %w", err)
	}
	return events, nil
}
