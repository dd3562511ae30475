package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ivanbuilds/panel-go/pkg/eventid"
	"github.com/ivanbuilds/panel-go/pkg/turnout"
)

// FileVersion is the current version of the turnouts file format.
const FileVersion = 1

// turnoutsFile is the on-disk layout.
type turnoutsFile struct {
	Version  int             `json:"version"`
	SavedAt  time.Time       `json:"saved_at,omitempty"`
	Turnouts []turnoutRecord `json:"turnouts"`
}

// turnoutRecord is one persisted turnout definition.
type turnoutRecord struct {
	Name         string `json:"name"`
	EventNormal  string `json:"event_normal"`
	EventReverse string `json:"event_reverse"`
	Order        uint16 `json:"order"`
}

// FileStore persists turnout definitions to a JSON file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file store for the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the definitions from disk. A missing file yields an empty
// list, not an error. Records with unparsable event IDs are skipped.
func (s *FileStore) Load() ([]turnout.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var file turnoutsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}

	defs := make([]turnout.Definition, 0, len(file.Turnouts))
	for i, rec := range file.Turnouts {
		evN, errN := eventid.ParseEventID(rec.EventNormal)
		evR, errR := eventid.ParseEventID(rec.EventReverse)
		if errN != nil || errR != nil {
			// Bad record; keep the rest of the file usable.
			continue
		}

		name := rec.Name
		if name == "" {
			name = fmt.Sprintf("Turnout %d", i+1)
		}

		defs = append(defs, turnout.Definition{
			Name:         name,
			EventNormal:  evN,
			EventReverse: evR,
			UserOrder:    rec.Order,
		})
	}
	return defs, nil
}

// Save writes the definitions to disk atomically.
func (s *FileStore) Save(defs []turnout.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file := turnoutsFile{
		Version:  FileVersion,
		SavedAt:  time.Now(),
		Turnouts: make([]turnoutRecord, len(defs)),
	}
	for i, def := range defs {
		file.Turnouts[i] = turnoutRecord{
			Name:         def.Name,
			EventNormal:  def.EventNormal.String(),
			EventReverse: def.EventReverse.String(),
			Order:        def.UserOrder,
		}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}

	// Write-temp-then-rename so a crash never leaves a torn file.
	tmp, err := os.CreateTemp(dir, ".turnouts-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
