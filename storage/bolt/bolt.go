// Package bolt is a storage.SessionStore backed by a bbolt file.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Comcast/cordial/storage"
	"github.com/Comcast/cordial/util"

	bolt "go.etcd.io/bbolt"
)

// Bucket is the bbolt bucket that holds session states keyed by
// session name.
var Bucket = []byte("sessions")

// NotOpen is returned when the Storage is used before Open.
var NotOpen = errors.New("storage not open")

type Storage struct {
	Debug    bool
	filename string
	db       *bolt.DB
}

func NewStorage(filename string) (*Storage, error) {
	if filename == "" {
		return nil, errors.New("no filename")
	}
	return &Storage{
		filename: filename,
	}, nil
}

func (s *Storage) Open(ctx context.Context) error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(s.filename, 0600, opts)
	if err != nil {
		return err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(Bucket)
		return err
	})
	if err != nil {
		db.Close()
		return err
	}
	s.db = db
	return nil
}

func (s *Storage) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Storage) logf(format string, args ...interface{}) {
	if s.Debug {
		util.Log.Debug().Str("component", "bolt").Msgf(format, args...)
	}
}

func (s *Storage) GetSession(ctx context.Context, name string) (*storage.SessionState, error) {
	if s.db == nil {
		return nil, NotOpen
	}
	s.logf("GetSession %s", name)

	var ss *storage.SessionState
	err := s.db.View(func(tx *bolt.Tx) error {
		bs := tx.Bucket(Bucket).Get([]byte(name))
		if bs == nil {
			return nil
		}
		ss = &storage.SessionState{}
		if err := json.Unmarshal(bs, ss); err != nil {
			return err
		}
		ss.Name = name
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ss, nil
}

func (s *Storage) WriteSession(ctx context.Context, ss *storage.SessionState) error {
	if s.db == nil {
		return NotOpen
	}
	s.logf("WriteSession %s seq=%d", ss.Name, ss.Sequence)

	// To save some space, remove the name.
	js, err := json.Marshal(&storage.SessionState{
		SessionID:    ss.SessionID,
		Sequence:     ss.Sequence,
		ResumeURL:    ss.ResumeURL,
		Disconnected: ss.Disconnected,
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(Bucket).Put([]byte(ss.Name), js)
	})
}

func (s *Storage) RemSession(ctx context.Context, name string) error {
	if s.db == nil {
		return NotOpen
	}
	s.logf("RemSession %s", name)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(Bucket).Delete([]byte(name))
	})
}
