// Package pending stages extracted receipts until the user saves or
// discards them.
package pending

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"gastos/pkg/extract"
)

const bucketName = "pending"

// ErrNotFound is returned when no entry exists for a user and client id.
var ErrNotFound = errors.New("pending entry not found")

// Entry is one staged extraction.
type Entry struct {
	UserID     uint               `json:"user_id"`
	ClientID   string             `json:"client_id"`
	FileName   string             `json:"file_name"`
	DocumentID uint               `json:"document_id,omitempty"`
	Result     extract.Result     `json:"result"`
	Validation extract.Validation `json:"validation"`
	RawExcerpt string             `json:"raw_excerpt"`
	Provider   string             `json:"provider,omitempty"`
	Failed     bool               `json:"failed"`
	Error      string             `json:"error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Store keeps entries in a bbolt file keyed by "userID/clientID".
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func userPrefix(userID uint) []byte {
	return []byte(fmt.Sprintf("%d/", userID))
}

func key(userID uint, clientID string) []byte {
	return append(userPrefix(userID), clientID...)
}

// Put stores e, replacing any entry with the same user and client id.
func (s *Store) Put(e Entry) error {
	if e.ClientID == "" {
		return fmt.Errorf("pending entry without client id")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling entry: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put(key(e.UserID, e.ClientID), data)
	})
}

// Get returns the entry for userID and clientID.
func (s *Store) Get(userID uint, clientID string) (Entry, error) {
	var e Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get(key(userID, clientID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, clientID)
		}
		return json.Unmarshal(data, &e)
	})
	return e, err
}

// List returns the user's entries ordered by client id.
func (s *Store) List(userID uint) ([]Entry, error) {
	out := make([]Entry, 0)
	prefix := userPrefix(userID)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketName)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshaling entry %s: %w", k, err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes an entry. Missing entries are not an error.
func (s *Store) Delete(userID uint, clientID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete(key(userID, clientID))
	})
}

// Prune removes entries created before cutoff and returns how many were removed.
func (s *Store) Prune(cutoff time.Time) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil || e.CreatedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(stale)
		return nil
	})
	return n, err
}

// Close closes the underlying file.
func (s *Store) Close() error {
	return s.db.Close()
}
