// Package athstore persists all-time-high records in a JSON file that is
// always replaced atomically.
//
// The store assumes one writer per path. Two processes racing on the same
// file each leave a complete snapshot behind, but their updates are not
// merged: the last rename wins.
package athstore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/phuslu/log"
)

// Store reads and writes the ATH snapshot at a fixed path.
type Store struct {
	path   string
	logger *log.Logger

	// replace moves the synced temp file over the target. Tests swap it to
	// simulate a crash between the temp write and the rename.
	replace func(oldpath, newpath string) error
}

// New creates a Store for path. Nothing is touched on disk until Load or Save.
func New(path string, logger *log.Logger) *Store {
	return &Store{path: path, logger: logger, replace: os.Rename}
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

// Load reads the snapshot. A missing file yields an empty snapshot; anything
// unreadable or malformed yields a *CorruptStateError.
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug().Str("path", s.path).Msg("ATH state not found, starting fresh")
			return NewSnapshot(), nil
		}
		return nil, &CorruptStateError{Path: s.path, Err: err}
	}

	snap := NewSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, &CorruptStateError{Path: s.path, Err: err}
	}
	s.logger.Debug().Str("path", s.path).Int("records", snap.Len()).Msg("ATH state loaded")
	return snap, nil
}

// Save writes the complete snapshot: temp file in the target directory,
// fsync, close, rename over the target, then fsync the directory. On any
// failure the temp file is removed and a *PersistenceError returned.
func (s *Store) Save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return &PersistenceError{Path: s.path, Op: "encode", Err: err}
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Path: s.path, Op: "create directory", Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".ath_*.tmp")
	if err != nil {
		return &PersistenceError{Path: s.path, Op: "create temp file", Err: err}
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.Warn().Err(rmErr).Str("temp", tmpPath).Msg("remove temp ATH file")
		}
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return &PersistenceError{Path: s.path, Op: "write temp file", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return &PersistenceError{Path: s.path, Op: "sync temp file", Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &PersistenceError{Path: s.path, Op: "close temp file", Err: err}
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return &PersistenceError{Path: s.path, Op: "chmod temp file", Err: err}
	}
	if err := s.replace(tmpPath, s.path); err != nil {
		cleanup()
		return &PersistenceError{Path: s.path, Op: "replace", Err: err}
	}
	syncDir(dir)

	s.logger.Info().Str("path", s.path).Int("records", snap.Len()).Msg("ATH state saved")
	return nil
}

// syncDir flushes the rename to disk. Not every platform can fsync a
// directory; failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
