// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package library

import (
	"sync"
	"time"

	"github.com/rkapsi/daap/errors"
	"github.com/rkapsi/daap/log"
)

// Tx is the write handle accepted by every mutating method of the
// domain model. Passing a nil Tx applies the mutation immediately; that
// form is reserved for initial construction, before any client can
// observe the tree. All other mutations enlist a deferred operation
// that runs at commit time.
//
// The two implementations are Transaction and AutoCommitTransaction.
type Tx interface {
	enlist(entity interface{}, apply applyFunc) error
}

// applyFunc is the deferred body of one mutation. At commit time it
// runs against the copy-on-write clone of the entity it was enlisted
// for (or against the entity itself if the entity was created inside
// the same transaction).
type applyFunc func(t *Transaction, target interface{})

// op is one enlisted mutation.
type op struct {
	entity interface{}
	apply  applyFunc
}

// Transaction is a single-use, non-nestable unit of work against a
// Library. At most one transaction may be open per Library; Open fails
// with a Transaction error while another is in flight.
type Transaction struct {
	lib  *Library
	open bool

	mu      sync.Mutex
	ops     []op // registration order
	touched map[interface{}]bool

	// Populated during commit.
	memo             map[interface{}]bool
	clones           map[interface{}]interface{}
	removedSongs     map[uint32][]uint32 // playlist id -> removed song ids
	removedPlaylists []uint32
}

// enlist records a deferred mutation against entity.
func (t *Transaction) enlist(entity interface{}, apply applyFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return errors.E("library.enlist", errors.Transaction, errors.Str("transaction is not open"))
	}
	t.ops = append(t.ops, op{entity, apply})
	t.touched[entity] = true
	return nil
}

// mutate is the common entry point of every mutating method: immediate
// when tx is nil, deferred otherwise.
func mutate(tx Tx, entity interface{}, apply applyFunc) error {
	if tx == nil {
		apply(nil, entity)
		return nil
	}
	return tx.enlist(entity, apply)
}

// Commit replays the enlisted operations, in registration order,
// against a copy-on-write clone of the library and publishes the clone
// as the next revision. Only entities the transaction touched (and the
// path from the root down to them) are cloned; everything else is
// shared by reference with the previous snapshot.
func (t *Transaction) Commit() error {
	const op = "library.Commit"
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return errors.E(op, errors.Transaction, errors.Str("commit of closed transaction"))
	}
	t.open = false

	t.memo = make(map[interface{}]bool)
	t.clones = make(map[interface{}]interface{})
	t.removedSongs = make(map[uint32][]uint32)

	hub := t.lib.hub
	hub.mu.Lock()
	old := hub.head
	next := t.cloneLibrary(old)
	for _, o := range t.ops {
		target := t.clones[o.entity]
		if target == nil {
			// Created inside this transaction; mutate directly.
			target = o.entity
		}
		o.apply(t, target)
	}
	next.removedSongs = t.removedSongs
	next.removedPlaylists = t.removedPlaylists
	hub.head = next
	hub.txOpen = false
	listeners := make([]Listener, len(hub.listeners))
	copy(listeners, hub.listeners)
	hub.mu.Unlock()

	// Notify outside the monitor, in registration order.
	for _, ln := range listeners {
		ln.LibraryChanged(old, next)
	}
	return nil
}

// Rollback discards the enlisted operations without publishing
// anything.
func (t *Transaction) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return errors.E("library.Rollback", errors.Transaction, errors.Str("rollback of closed transaction"))
	}
	t.open = false
	t.ops = nil

	hub := t.lib.hub
	hub.mu.Lock()
	hub.txOpen = false
	hub.mu.Unlock()
	return nil
}

// modified reports whether the entity, or anything beneath it, was
// touched by this transaction. The check recurses through the tree and
// memoizes, so commit cost is bounded by the size of the diff.
func (t *Transaction) modified(entity interface{}) bool {
	if v, ok := t.memo[entity]; ok {
		return v
	}
	// Break cycles defensively; overwritten below.
	t.memo[entity] = false

	v := t.touched[entity]
	if !v {
		switch e := entity.(type) {
		case *Database:
			for _, pl := range e.playlists {
				if t.modified(pl) {
					v = true
					break
				}
			}
		case *Playlist:
			for _, s := range e.songs {
				if t.touched[s] {
					v = true
					break
				}
			}
			if !v {
				for _, child := range e.children {
					if t.modified(child) {
						v = true
						break
					}
				}
			}
		}
	}
	t.memo[entity] = v
	return v
}

func (t *Transaction) recordRemovedSong(playlistID, songID uint32) {
	if t == nil {
		return
	}
	t.removedSongs[playlistID] = append(t.removedSongs[playlistID], songID)
}

func (t *Transaction) recordRemovedPlaylist(id uint32) {
	if t == nil {
		return
	}
	t.removedPlaylists = append(t.removedPlaylists, id)
}

// AutoCommitTransaction wraps a Transaction and commits it
// automatically once a number of mutations have been enlisted or the
// transaction has sat idle for a while, whichever comes first. Bursts
// of edits coalesce into a single revision instead of one per edit.
type AutoCommitTransaction struct {
	lib     *Library
	maxOps  int
	maxIdle time.Duration

	mu    sync.Mutex
	tx    *Transaction
	ops   int
	timer *time.Timer
}

// NewAutoCommit returns an auto-committing write handle for lib.
func NewAutoCommit(lib *Library, maxOps int, maxIdle time.Duration) *AutoCommitTransaction {
	return &AutoCommitTransaction{lib: lib, maxOps: maxOps, maxIdle: maxIdle}
}

func (a *AutoCommitTransaction) enlist(entity interface{}, apply applyFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tx == nil {
		tx, err := a.lib.Open()
		if err != nil {
			return err
		}
		a.tx = tx
		a.ops = 0
	}
	if err := a.tx.enlist(entity, apply); err != nil {
		return err
	}
	a.ops++
	if a.ops >= a.maxOps {
		return a.commitLocked()
	}
	if a.timer == nil {
		a.timer = time.AfterFunc(a.maxIdle, a.idle)
	} else {
		a.timer.Reset(a.maxIdle)
	}
	return nil
}

// Flush commits any pending mutations immediately.
func (a *AutoCommitTransaction) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tx == nil {
		return nil
	}
	return a.commitLocked()
}

// commitLocked commits the inner transaction. Caller holds a.mu.
func (a *AutoCommitTransaction) commitLocked() error {
	tx := a.tx
	a.tx = nil
	a.ops = 0
	if a.timer != nil {
		a.timer.Stop()
	}
	return tx.Commit()
}

func (a *AutoCommitTransaction) idle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tx == nil {
		return
	}
	if err := a.commitLocked(); err != nil {
		log.Error.Printf("library: auto-commit after idle: %v", err)
	}
}
