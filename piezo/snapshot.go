package piezo

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Snapshot is an ordered mapping from command key to response tokens, as
// produced by Device.Backup and consumed by Device.Restore.
//
// Order matters: Restore replays entries in insertion order, one write per
// key, so a snapshot restores settings in the same sequence they were read.
type Snapshot struct {
	keys    []string
	entries map[string][]string
}

// NewSnapshot creates an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{entries: make(map[string][]string)}
}

// Set stores tokens under key, appending key to the order on first insert.
func (s *Snapshot) Set(key string, tokens []string) {
	if _, ok := s.entries[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.entries[key] = tokens
}

// Get returns the tokens stored under key.
func (s *Snapshot) Get(key string) ([]string, bool) {
	tokens, ok := s.entries[key]
	return tokens, ok
}

// Keys returns the keys in insertion order.
func (s *Snapshot) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	return len(s.keys)
}

// snapshotFile is the on-disk TOML layout. An array of tables preserves the
// entry order a plain TOML table would lose.
type snapshotFile struct {
	Entries []snapshotEntry `toml:"entry"`
}

type snapshotEntry struct {
	Command string   `toml:"command"`
	Values  []string `toml:"values"`
}

// SaveFile writes the snapshot to a TOML file at path.
func (s *Snapshot) SaveFile(path string) error {
	file := snapshotFile{Entries: make([]snapshotEntry, 0, len(s.keys))}
	for _, key := range s.keys {
		file.Entries = append(file.Entries, snapshotEntry{Command: key, Values: s.entries[key]})
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("piezo: failed to create snapshot file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(file); err != nil {
		return fmt.Errorf("piezo: failed to encode snapshot: %w", err)
	}

	return nil
}

// LoadSnapshotFile reads a snapshot from a TOML file written by SaveFile.
func LoadSnapshotFile(path string) (*Snapshot, error) {
	var file snapshotFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("piezo: failed to decode snapshot file: %w", err)
	}

	snap := NewSnapshot()
	for _, e := range file.Entries {
		snap.Set(e.Command, e.Values)
	}

	return snap, nil
}
