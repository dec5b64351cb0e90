// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package library

import (
	"github.com/rkapsi/daap/errors"
)

// Database holds the playlists of a library. Every database owns a
// master playlist carrying the union of all its songs; songs enter and
// leave the database through it. The master cannot be removed or
// renamed through playlist operations.
type Database struct {
	id           uint32
	persistentID uint64
	name         string

	// playlists holds the master at index 0, then the rest in the
	// order they were added.
	playlists []*Playlist
	master    *Playlist
}

// NewDatabase returns a database whose master playlist shares its
// name.
func NewDatabase(name string) *Database {
	master := newPlaylist(name, masterKind)
	return &Database{
		id:           nextID(),
		persistentID: nextPersistentID(),
		name:         name,
		playlists:    []*Playlist{master},
		master:       master,
	}
}

// ID returns the database's item id.
func (d *Database) ID() uint32 { return d.id }

// PersistentID returns the database's 64-bit persistent id.
func (d *Database) PersistentID() uint64 { return d.persistentID }

// Name returns the database's name.
func (d *Database) Name() string { return d.name }

// Master returns the master playlist.
func (d *Database) Master() *Playlist { return d.master }

// Playlists returns all playlists, the master first.
func (d *Database) Playlists() []*Playlist { return d.playlists }

// Playlist returns the playlist with the given id, or nil.
func (d *Database) Playlist(id uint32) *Playlist {
	for _, pl := range d.playlists {
		if pl.id == id {
			return pl
		}
	}
	return nil
}

// SongCount returns the number of songs in the database.
func (d *Database) SongCount() int { return len(d.master.songs) }

// PlaylistCount returns the number of playlists, master included.
func (d *Database) PlaylistCount() int { return len(d.playlists) }

// Song returns the song with the given id, or nil.
func (d *Database) Song(id uint32) *Song { return d.master.Song(id) }

// SetName renames the database and its master playlist.
func (d *Database) SetName(tx Tx, name string) error {
	if err := mutate(tx, d, func(t *Transaction, target interface{}) {
		target.(*Database).name = name
	}); err != nil {
		return err
	}
	return d.master.setName(tx, name)
}

// AddSong brings a song into the database by adding it to the master
// playlist.
func (d *Database) AddSong(tx Tx, s *Song) error {
	return mutate(tx, d.master, func(t *Transaction, target interface{}) {
		target.(*Playlist).add(s)
	})
}

// RemoveSong removes the song from the database: from the master and
// from every playlist that holds it. Each affected playlist records
// the deleted id for delta listings.
func (d *Database) RemoveSong(tx Tx, s *Song) error {
	for _, pl := range d.playlists {
		if !pl.contains(s.id) {
			continue
		}
		pl := pl
		err := mutate(tx, pl, func(t *Transaction, target interface{}) {
			if target.(*Playlist).remove(s.id) {
				t.recordRemovedSong(pl.id, s.id)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// AddPlaylist attaches a playlist or folder to the database.
func (d *Database) AddPlaylist(tx Tx, pl *Playlist) error {
	if pl.kind == masterKind {
		return errors.E("library.AddPlaylist", errors.Invalid, errors.Str("cannot add a master playlist"))
	}
	return mutate(tx, d, func(t *Transaction, target interface{}) {
		db := target.(*Database)
		db.playlists = append(db.playlists, pl)
	})
}

// RemovePlaylist detaches a playlist. The master cannot be removed.
func (d *Database) RemovePlaylist(tx Tx, pl *Playlist) error {
	if pl == d.master || pl.kind == masterKind {
		return errors.E("library.RemovePlaylist", errors.Invalid, errors.Str("cannot remove the master playlist"))
	}
	return mutate(tx, d, func(t *Transaction, target interface{}) {
		db := target.(*Database)
		for i, x := range db.playlists {
			if x.id == pl.id {
				db.playlists = append(db.playlists[:i], db.playlists[i+1:]...)
				t.recordRemovedPlaylist(pl.id)
				return
			}
		}
	})
}

// cloneDatabase clones the database, cloning only the playlists the
// transaction touched and sharing the rest.
func (t *Transaction) cloneDatabase(old *Database) *Database {
	next := &Database{
		id:           old.id,
		persistentID: old.persistentID,
		name:         old.name,
		playlists:    make([]*Playlist, len(old.playlists)),
		master:       old.master,
	}
	t.clones[old] = next
	for i, pl := range old.playlists {
		if t.modified(pl) {
			next.playlists[i] = t.clonePlaylist(pl)
		} else {
			next.playlists[i] = pl
		}
	}
	if cloned, ok := t.clones[old.master]; ok {
		next.master = cloned.(*Playlist)
	}
	return next
}
