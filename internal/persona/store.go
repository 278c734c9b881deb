// Package persona owns the versioned persona profile document and the
// post-publish updater that grows it.
package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/postpilot/internal/types"
)

const backupTimeFormat = "20060102_150405"

// Store is a JSON-file-backed profile store. The profile lives at
// <root>/persona.json; backups go to <root>/backups/ with a timestamped
// name so any earlier version can be restored.
type Store struct {
	root string
	mu   sync.Mutex
}

// NewStore creates a file-backed Store rooted at the given directory.
func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) profilePath() string {
	return filepath.Join(s.root, "persona.json")
}

func (s *Store) backupsDir() string {
	return filepath.Join(s.root, "backups")
}

// Load reads the profile. A missing file yields an empty profile so a
// fresh installation works without setup.
func (s *Store) Load(_ context.Context) (*types.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*types.Profile, error) {
	data, err := os.ReadFile(s.profilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return &types.Profile{}, nil
		}
		return nil, fmt.Errorf("read persona: %w", err)
	}

	var profile types.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("unmarshal persona: %w", err)
	}
	return &profile, nil
}

// Save persists the profile atomically. When backupPrevious is true and a
// prior version exists, it is copied to the backups directory first.
func (s *Store) Save(_ context.Context, profile *types.Profile, backupPrevious bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if backupPrevious {
		if _, err := s.backup(); err != nil {
			return err
		}
	}

	profile.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal persona: %w", err)
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create persona dir: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := s.profilePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp persona: %w", err)
	}
	if err := os.Rename(tmp, s.profilePath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp persona: %w", err)
	}
	return nil
}

// backup copies the current profile aside. No current profile, no backup.
func (s *Store) backup() (types.BackupID, error) {
	data, err := os.ReadFile(s.profilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read persona for backup: %w", err)
	}

	if err := os.MkdirAll(s.backupsDir(), 0o755); err != nil {
		return "", fmt.Errorf("create backups dir: %w", err)
	}

	id := types.BackupID(time.Now().UTC().Format(backupTimeFormat))
	path := filepath.Join(s.backupsDir(), fmt.Sprintf("persona_%s.json", id))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return id, nil
}

// Backups lists available backup IDs, newest first.
func (s *Store) Backups(_ context.Context) ([]types.BackupID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.backupsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backups dir: %w", err)
	}

	var ids []types.BackupID
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "persona_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, types.BackupID(strings.TrimSuffix(strings.TrimPrefix(name, "persona_"), ".json")))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids, nil
}

// Rollback restores the profile from the named backup, backing up the
// current version first so a rollback is itself reversible.
func (s *Store) Rollback(_ context.Context, id types.BackupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.backupsDir(), fmt.Sprintf("persona_%s.json", id))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("backup %s: %w", id, types.ErrNotFound)
		}
		return fmt.Errorf("read backup: %w", err)
	}

	var profile types.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return fmt.Errorf("unmarshal backup: %w", err)
	}

	if _, err := s.backup(); err != nil {
		return err
	}

	tmp := s.profilePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp persona: %w", err)
	}
	if err := os.Rename(tmp, s.profilePath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp persona: %w", err)
	}
	return nil
}
