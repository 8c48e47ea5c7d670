package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second

	// maxRunHistory bounds how many run summaries are kept. Older runs
	// are pruned on append.
	maxRunHistory = 50
)

var (
	appBucket  = []byte("app")
	runsBucket = []byte("runs")
	tokenKey   = []byte("token")
)

// RunSummary records the outcome of one sync run. Purely informational:
// the engine never reads past runs to decide anything, every run
// re-lists both trees.
type RunSummary struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Direction  string    `json:"direction"`
	DryRun     bool      `json:"dry_run"`
	Uploaded   int       `json:"uploaded"`
	Downloaded int       `json:"downloaded"`
	Created    int       `json:"created"`
	Skipped    int       `json:"skipped"`
	Conflicts  int       `json:"conflicts"`
	Errors     int       `json:"errors"`
}

// State wraps a bbolt database for all persistent application state:
// the cached access token and a bounded run history.
type State struct {
	db *bolt.DB
}

// Load opens the state database at <dir>/state.db, creating it if it
// does not exist. Buckets are created on open.
func Load(dir string) (*State, error) {
	return LoadAt(filepath.Join(dir, "state.db"))
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(appBucket); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(runsBucket); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the underlying database.
func (s *State) Close() error {
	return s.db.Close()
}

// Token returns the cached access token, or "" if none is stored.
func (s *State) Token() string {
	var token string

	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(appBucket).Get(tokenKey); v != nil {
			token = string(v)
		}
		return nil
	})

	return token
}

// SetToken stores the access token for reuse on the next run.
func (s *State) SetToken(token string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(tokenKey, []byte(token))
	})
	if err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

// ClearToken removes the cached token, forcing a fresh exchange on the
// next run.
func (s *State) ClearToken() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Delete(tokenKey)
	})
	if err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	return nil
}

// AppendRun stores a run summary and prunes history beyond maxRunHistory.
func (s *State) AppendRun(run RunSummary) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshalling run summary: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(runsBucket)

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		if err := b.Put(key, data); err != nil {
			return err
		}

		// Prune oldest entries past the cap.
		count := 0
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			count++
		}
		for k, _ := c.First(); k != nil && count > maxRunHistory; k, _ = c.Next() {
			if err := b.Delete(k); err != nil {
				return err
			}
			count--
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving run summary: %w", err)
	}
	return nil
}

// Runs returns the stored run summaries, oldest first.
func (s *State) Runs() ([]RunSummary, error) {
	var runs []RunSummary

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).ForEach(func(_, v []byte) error {
			var run RunSummary
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("unmarshalling run summary: %w", err)
			}
			runs = append(runs, run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return runs, nil
}
