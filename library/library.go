// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package library implements the revisioned domain model served over
// DAAP: a Library holding one Database of Playlists of Songs.
//
// The tree is copy-on-write. Every mutation is enlisted in a
// Transaction; committing materializes a new immutable snapshot that
// shares all unchanged subtrees with its predecessor and carries the
// ids deleted since then. Snapshots stay chained until every connected
// client has moved past them.
package library // import "github.com/rkapsi/daap/library"

import (
	"sync"
	"sync/atomic"

	"github.com/rkapsi/daap/errors"
)

// idSeq allocates item ids, process-global and strictly increasing.
// Id zero is never issued.
var idSeq uint32

var persistentSeq uint64

func nextID() uint32 {
	return atomic.AddUint32(&idSeq, 1)
}

func nextPersistentID() uint64 {
	return atomic.AddUint64(&persistentSeq, 1)
}

// Listener observes committed revisions. Listeners are held strongly
// and must be removed explicitly when the observer goes away.
type Listener interface {
	// LibraryChanged is called after a commit, with the snapshot that
	// was current before it and the one that is current now.
	// Listeners are invoked in registration order.
	LibraryChanged(old, head *Library)
}

// hub is the mutable state shared by every snapshot of one library:
// the head pointer, the listener list and the single-transaction gate.
type hub struct {
	mu        sync.Mutex
	head      *Library
	listeners []Listener
	txOpen    bool
}

// Library is one immutable snapshot of the whole tree. The zero
// revision is the freshly constructed, never-committed state.
type Library struct {
	name     string
	revision uint32
	database *Database

	// Ids removed by the commit that produced this snapshot.
	removedSongs     map[uint32][]uint32 // playlist id -> song ids
	removedPlaylists []uint32

	// prev links to the snapshot this one superseded; nil once pruned.
	prev *Library

	hub *hub
}

// New returns a library at revision zero.
func New(name string) *Library {
	l := &Library{name: name}
	l.hub = &hub{head: l}
	return l
}

// Name returns the library's share name.
func (l *Library) Name() string { return l.name }

// Revision returns this snapshot's revision number.
func (l *Library) Revision() uint32 { return l.revision }

// Head returns the library's current snapshot.
func (l *Library) Head() *Library {
	l.hub.mu.Lock()
	defer l.hub.mu.Unlock()
	return l.hub.head
}

// Database returns the snapshot's database, or nil before one is
// attached.
func (l *Library) Database() *Database { return l.database }

// Databases returns the snapshot's databases. At most one is
// supported, a client limitation.
func (l *Library) Databases() []*Database {
	if l.database == nil {
		return nil
	}
	return []*Database{l.database}
}

// Open starts a transaction. It fails with a Transaction error while
// another transaction on this library is still in flight.
func (l *Library) Open() (*Transaction, error) {
	l.hub.mu.Lock()
	defer l.hub.mu.Unlock()
	if l.hub.txOpen {
		return nil, errors.E("library.Open", errors.Transaction, errors.Str("transaction already open"))
	}
	l.hub.txOpen = true
	return &Transaction{
		lib:     l,
		open:    true,
		touched: make(map[interface{}]bool),
	}, nil
}

// AddListener registers ln for change notification.
func (l *Library) AddListener(ln Listener) {
	l.hub.mu.Lock()
	defer l.hub.mu.Unlock()
	l.hub.listeners = append(l.hub.listeners, ln)
}

// RemoveListener unregisters ln. Removing a listener that was never
// added is a no-op.
func (l *Library) RemoveListener(ln Listener) {
	l.hub.mu.Lock()
	defer l.hub.mu.Unlock()
	for i, x := range l.hub.listeners {
		if x == ln {
			l.hub.listeners = append(l.hub.listeners[:i], l.hub.listeners[i+1:]...)
			return
		}
	}
}

// SetName renames the library.
func (l *Library) SetName(tx Tx, name string) error {
	return mutate(tx, l.Head(), func(t *Transaction, target interface{}) {
		target.(*Library).name = name
	})
}

// AddDatabase attaches db. Only one database is supported; attaching a
// second fails immediately.
func (l *Library) AddDatabase(tx Tx, db *Database) error {
	head := l.Head()
	if head.database != nil {
		return errors.E("library.AddDatabase", errors.Exist, errors.Str("library already has a database"))
	}
	return mutate(tx, head, func(t *Transaction, target interface{}) {
		target.(*Library).database = db
	})
}

// Snapshot walks the retained chain back to the snapshot at the given
// revision. A revision that is no longer retained, because every
// client was thought to have moved past it, yields a Stale error.
func (l *Library) Snapshot(revision uint32) (*Library, error) {
	for cur := l; cur != nil; cur = cur.prev {
		if cur.revision == revision {
			return cur, nil
		}
		if cur.revision < revision {
			break
		}
	}
	return nil, errors.E("library.Snapshot", errors.Stale,
		errors.Errorf("revision %d is no longer retained (head is %d)", revision, l.revision))
}

// DeletedSongs accumulates the song ids removed from the given
// playlist in every revision after since, up to this snapshot.
func (l *Library) DeletedSongs(playlistID, since uint32) ([]uint32, error) {
	if _, err := l.Snapshot(since); err != nil {
		return nil, err
	}
	var out []uint32
	seen := make(map[uint32]bool)
	for cur := l; cur != nil && cur.revision > since; cur = cur.prev {
		for _, id := range cur.removedSongs[playlistID] {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// DeletedPlaylists accumulates the playlist ids removed in every
// revision after since, up to this snapshot.
func (l *Library) DeletedPlaylists(since uint32) ([]uint32, error) {
	if _, err := l.Snapshot(since); err != nil {
		return nil, err
	}
	var out []uint32
	seen := make(map[uint32]bool)
	for cur := l; cur != nil && cur.revision > since; cur = cur.prev {
		for _, id := range cur.removedPlaylists {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// Prune drops retained snapshots older than the given revision. The
// caller passes the lowest revision any connected client still needs;
// with no clients, the head revision.
func (l *Library) Prune(oldest uint32) {
	l.hub.mu.Lock()
	defer l.hub.mu.Unlock()
	for cur := l.hub.head; cur != nil; cur = cur.prev {
		if cur.revision <= oldest {
			cur.prev = nil
			return
		}
	}
}

// cloneLibrary clones the snapshot for the next revision, cloning the
// database only if the transaction touched something beneath it.
func (t *Transaction) cloneLibrary(old *Library) *Library {
	next := &Library{
		name:     old.name,
		revision: old.revision + 1,
		database: old.database,
		prev:     old,
		hub:      old.hub,
	}
	t.clones[old] = next
	if old.database != nil && t.modified(old.database) {
		next.database = t.cloneDatabase(old.database)
	}
	return next
}
