// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/rkapsi/daap/daap"
	"github.com/rkapsi/daap/errors"
)

// Session is the per-client state issued at /login. It carries a small
// attribute map used by the update machinery to remember where the
// client is waiting.
type Session struct {
	id      daap.SessionID
	created time.Time

	mu    sync.Mutex
	attrs map[string]interface{}

	// notify is closed when the session is invalidated, releasing any
	// parked update request.
	notify chan struct{}
}

// ID returns the session id.
func (s *Session) ID() daap.SessionID { return s.id }

// SetAttr stores a session attribute.
func (s *Session) SetAttr(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
}

// Attr returns a session attribute, or nil.
func (s *Session) Attr(key string) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attrs[key]
}

// Invalidated returns a channel that is closed when the session is
// torn down.
func (s *Session) Invalidated() <-chan struct{} { return s.notify }

// Sessions is the table of live sessions. Sessions are never evicted
// behind the client's back; they leave only by logout or disconnect.
// The table is bounded in practice by the connection limit.
type Sessions struct {
	mu       sync.Mutex
	sessions map[daap.SessionID]*Session
}

// NewSessions returns an empty session table.
func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[daap.SessionID]*Session)}
}

// New issues a session with a fresh random non-zero 31-bit id.
func (t *Sessions) New() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		id := randomSessionID()
		if _, taken := t.sessions[id]; taken {
			continue
		}
		s := &Session{
			id:      id,
			created: time.Now(),
			attrs:   make(map[string]interface{}),
			notify:  make(chan struct{}),
		}
		t.sessions[id] = s
		return s
	}
}

func randomSessionID() daap.SessionID {
	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			panic("server: no entropy: " + err.Error())
		}
		id := daap.SessionID(binary.BigEndian.Uint32(buf[:]) & 0x7FFFFFFF)
		if id != 0 {
			return id
		}
	}
}

// Get returns the session for an id. An unknown or invalidated id is a
// Permission error.
func (t *Sessions) Get(id daap.SessionID) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil, errors.E("server.Get", errors.Permission, id, errors.Str("unknown or expired session"))
	}
	return s, nil
}

// Invalidate tears a session down, releasing any parked update
// request. Invalidating an unknown id is a no-op.
func (t *Sessions) Invalidate(id daap.SessionID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[id]; ok {
		delete(t.sessions, id)
		close(s.notify)
	}
}

// Len returns the number of live sessions.
func (t *Sessions) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Each calls f for every live session.
func (t *Sessions) Each(f func(*Session)) {
	t.mu.Lock()
	list := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		list = append(list, s)
	}
	t.mu.Unlock()
	for _, s := range list {
		f(s)
	}
}
