package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/agenthub/hub/internal/eventbus"
	"github.com/agenthub/hub/internal/platform/logger"
	"go.uber.org/zap"
)

// StateFileName is the single document of record's filename under the data
// directory (§3, §4.A).
const StateFileName = "state.json"

// Store guards the in-memory Document with one coarse mutex (§5
// "state_lock") and persists it atomically on every mutation.
type Store struct {
	mu   sync.Mutex
	doc  *Document
	path string
	bus  eventbus.Bus
	log  *logger.Logger
}

// Open loads dataDir/state.json if present, otherwise starts from an empty
// document, normalizes it, and returns a ready Store.
func Open(dataDir string, bus eventbus.Bus, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Default()
	}
	path := filepath.Join(dataDir, StateFileName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	doc, err := load(path)
	if err != nil {
		return nil, err
	}
	normalize(doc)

	s := &Store{doc: doc, path: path, bus: bus, log: log}
	return s, nil
}

func load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDocument(), nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return NewDocument(), nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// View runs fn with read access to the document under the state lock. fn
// must not retain the pointer past its call.
func (s *Store) View(fn func(doc *Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.doc)
}

// Mutate runs fn with write access to the document, then persists it
// atomically and publishes a state_changed event tagged with reason. If fn
// returns an error the document is not saved and no event is published.
func (s *Store) Mutate(reason string, fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(s.doc); err != nil {
		return err
	}
	// normalize downgrades running/starting chats, which recovers a document
	// loaded after an unclean shutdown; live states set by fn are kept.
	type liveState struct {
		status ChatStatus
		pid    int
	}
	live := map[string]liveState{}
	for id, c := range s.doc.Chats {
		if c.Status == ChatRunning || c.Status == ChatStarting {
			live[id] = liveState{c.Status, c.PID}
		}
	}
	normalize(s.doc)
	for id, l := range live {
		s.doc.Chats[id].Status, s.doc.Chats[id].PID = l.status, l.pid
	}
	if err := s.persist(); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(&eventbus.Event{
			Type:    eventbus.TypeStateChanged,
			Payload: map[string]string{"reason": reason},
		})
	}
	return nil
}

// persist writes the document to a temp file in the same directory then
// renames it over the state file, so a crash mid-write never corrupts the
// last good document (§4.A I1).
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json.tmp")
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

	s.log.Debug("state persisted", zap.String("path", s.path), zap.Int("bytes", len(data)))
	return nil
}
