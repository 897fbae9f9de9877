// Package journal keeps a local record of how tracked transactions ended, for
// operators reconciling failed or abandoned submissions. It is never used to
// answer questions about ledger state.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var ErrNotFound = errors.New("journal entry not found")

var outcomesBucket = []byte("outcomes")

// State is the final disposition the tracker observed.
type State string

const (
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
	StateAbandoned State = "abandoned"
)

type Outcome struct {
	Tx          string    `json:"tx"`
	Variant     string    `json:"variant"`
	Kind        string    `json:"kind"`
	Collection  string    `json:"collection,omitempty"`
	TokenID     string    `json:"token_id,omitempty"`
	Quantity    string    `json:"quantity,omitempty"`
	State       State     `json:"state"`
	Error       string    `json:"error,omitempty"`
	BlockNumber uint64    `json:"block_number,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

type Journal struct {
	db *bolt.DB
}

func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(outcomesBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record stores o under its transaction hash. An abandoned outcome never
// replaces a confirmed or failed one.
func (j *Journal) Record(o Outcome) error {
	if o.Tx == "" {
		return fmt.Errorf("outcome has no transaction hash")
	}
	if o.RecordedAt.IsZero() {
		o.RecordedAt = time.Now().UTC()
	}
	key := []byte(strings.ToLower(o.Tx))
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(outcomesBucket)
		if b == nil {
			return fmt.Errorf("outcomes bucket missing")
		}
		if o.State == StateAbandoned {
			if current := b.Get(key); current != nil {
				var prev Outcome
				if err := json.Unmarshal(current, &prev); err == nil && prev.State != StateAbandoned {
					return nil
				}
			}
		}
		bz, err := json.Marshal(o)
		if err != nil {
			return err
		}
		return b.Put(key, bz)
	})
}

func (j *Journal) Get(txHash string) (Outcome, error) {
	var out Outcome
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(outcomesBucket)
		if b == nil {
			return fmt.Errorf("outcomes bucket missing")
		}
		raw := b.Get([]byte(strings.ToLower(strings.TrimSpace(txHash))))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &out)
	})
	return out, err
}

// List returns up to limit outcomes, newest first. An empty state matches
// every entry; a non-positive limit means no limit.
func (j *Journal) List(state State, limit int) ([]Outcome, error) {
	var out []Outcome
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(outcomesBucket)
		if b == nil {
			return fmt.Errorf("outcomes bucket missing")
		}
		return b.ForEach(func(_, v []byte) error {
			var o Outcome
			if err := json.Unmarshal(v, &o); err != nil {
				return err
			}
			if state == "" || o.State == state {
				out = append(out, o)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].RecordedAt.After(out[b].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
