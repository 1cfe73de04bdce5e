// Package state persists the credentials relaydeck needs between runs:
// the API bearer token and the messaging session. Nothing derived from
// the upstream API is stored here.
package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/alexjbarnes/relaydeck/upstream"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.relaydeck/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	appBucket  = []byte("app")
	tokenKey   = []byte("token")
	sessionKey = []byte("messaging_session")
)

// SessionRecord is the stored messaging session.
type SessionRecord struct {
	upstream.Session
	UpdatedAt time.Time `json:"updated_at"`
}

// State wraps a bbolt database for the persisted credentials.
type State struct {
	db *bolt.DB
}

// LoadAt opens a state database at the given path, creating it and its
// directory if they do not exist.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(appBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// Token returns the stored API bearer token, or empty string. It
// satisfies upstream.TokenSource, so a token replaced with set-session
// is picked up by the next request.
func (s *State) Token() string {
	var token string

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(tokenKey)
		if v != nil {
			token = string(v)
		}

		return nil
	})

	return token
}

// SetToken persists the API bearer token.
func (s *State) SetToken(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(tokenKey, []byte(token))
	})
}

// Session returns the stored messaging session. A missing or unreadable
// record yields the zero Session.
func (s *State) Session() upstream.Session {
	sess, _ := s.GetSession()
	return sess.Session
}

// GetSession returns the stored messaging session with its update time.
func (s *State) GetSession() (SessionRecord, error) {
	var stored SessionRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(sessionKey)
		if v == nil {
			return nil
		}

		return json.Unmarshal(v, &stored)
	})
	if err != nil {
		return SessionRecord{}, fmt.Errorf("reading messaging session: %w", err)
	}

	return stored, nil
}

// SetSession persists the messaging session.
func (s *State) SetSession(sess upstream.Session) error {
	data, err := json.Marshal(SessionRecord{Session: sess, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshalling messaging session: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(sessionKey, data)
	})
}

// ClearSession removes the messaging session.
func (s *State) ClearSession() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Delete(sessionKey)
	})
}

// HasSession reports whether complete messaging credentials are stored.
func (s *State) HasSession() bool {
	sess := s.Session()
	return sess.Credentials != "" && sess.SelfID != ""
}
