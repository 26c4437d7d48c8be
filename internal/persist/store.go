package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/burrow/schema"
	"pkt.systems/pslog"
)

const stateFile = "state.json"

// Snapshot is the on-disk form of the navigation state.
type Snapshot struct {
	SavedAt time.Time    `json:"saved_at"`
	State   schema.State `json:"state"`
}

// Store persists the latest state snapshot to disk. It is write-only from
// the core's point of view; nothing restores from it on start.
type Store struct {
	dir string
	log pslog.Logger
	now func() time.Time
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger, now: time.Now}, nil
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, stateFile)
}

// Load reads the snapshot from disk.
func (s *Store) Load() (Snapshot, bool, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("state load miss")
			}
			return Snapshot{}, false, nil
		}
		if s.log != nil {
			s.log.Warn("state load failed", "err", err)
		}
		return Snapshot{}, false, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		if s.log != nil {
			s.log.Warn("state load failed", "err", err)
		}
		return Snapshot{}, false, err
	}
	if s.log != nil {
		s.log.Debug("state load ok", "seq", snapshot.State.Seq, "tabs", len(snapshot.State.Tabs))
	}
	return snapshot, true, nil
}

// Save writes the state to disk atomically.
func (s *Store) Save(state schema.State) error {
	if err := s.save(state); err != nil {
		if s.log != nil {
			s.log.Warn("state save failed", "seq", state.Seq, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Trace("state save ok", "seq", state.Seq, "tabs", len(state.Tabs))
	}
	return nil
}

func (s *Store) save(state schema.State) error {
	path := s.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(Snapshot{SavedAt: s.now().UTC(), State: state}, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "state-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
