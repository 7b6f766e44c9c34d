// Package storage persists what a Gateway session needs in order to
// resume after the process restarts.
package storage

import (
	"context"
	"time"
)

// SessionState is a presentation of a session's resumable state as
// stored in a Storage system.
type SessionState struct {
	// Name is the session (shard) name.  It's the key.
	Name string `json:"name,omitempty"`

	SessionID string `json:"sessionId"`
	Sequence  int64  `json:"seq"`

	// ResumeURL is the Gateway URL the server wants resumes to
	// use.
	ResumeURL string `json:"resumeUrl,omitempty"`

	// Disconnected is when the session was last seen alive.
	Disconnected time.Time `json:"disconnected"`
}

// Resumable reports whether the state can still be used to resume
// given the server's resume window.
func (s *SessionState) Resumable(now time.Time, window time.Duration) bool {
	if s == nil || s.SessionID == "" {
		return false
	}
	if window <= 0 {
		return true
	}
	return now.Sub(s.Disconnected) <= window
}

// SessionStore is a persistence interface for session state.
type SessionStore interface {
	GetSession(ctx context.Context, name string) (*SessionState, error)

	WriteSession(ctx context.Context, s *SessionState) error

	RemSession(ctx context.Context, name string) error
}
