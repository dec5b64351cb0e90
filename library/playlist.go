// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package library

import (
	"github.com/rkapsi/daap/errors"
)

type playlistKind uint8

const (
	plainKind playlistKind = iota
	masterKind
	folderKind
)

// Playlist is a named collection of song references. A Folder variant
// collects playlists instead of songs. The smart flag is cosmetic: it
// only controls the presence of a chunk in listings.
type Playlist struct {
	id           uint32
	persistentID uint64
	name         string
	kind         playlistKind
	smart        bool

	songs []*Song
	byID  map[uint32]*Song

	// children is only used by folders.
	children []*Playlist
}

func newPlaylist(name string, kind playlistKind) *Playlist {
	return &Playlist{
		id:           nextID(),
		persistentID: nextPersistentID(),
		name:         name,
		kind:         kind,
		byID:         make(map[uint32]*Song),
	}
}

// NewPlaylist returns an empty playlist.
func NewPlaylist(name string) *Playlist {
	return newPlaylist(name, plainKind)
}

// NewFolder returns a playlist of playlists.
func NewFolder(name string) *Playlist {
	return newPlaylist(name, folderKind)
}

// ID returns the playlist's item id.
func (p *Playlist) ID() uint32 { return p.id }

// PersistentID returns the playlist's 64-bit persistent id.
func (p *Playlist) PersistentID() uint64 { return p.persistentID }

// Name returns the playlist's name.
func (p *Playlist) Name() string { return p.name }

// IsMaster reports whether this is a database's master playlist.
func (p *Playlist) IsMaster() bool { return p.kind == masterKind }

// IsFolder reports whether this playlist collects playlists.
func (p *Playlist) IsFolder() bool { return p.kind == folderKind }

// Smart reports the cosmetic smart-playlist flag.
func (p *Playlist) Smart() bool { return p.smart }

// Songs returns the playlist's songs in order.
func (p *Playlist) Songs() []*Song { return p.songs }

// Song returns the member song with the given id, or nil.
func (p *Playlist) Song(id uint32) *Song { return p.byID[id] }

// Children returns a folder's playlists.
func (p *Playlist) Children() []*Playlist { return p.children }

// SongCount returns the number of member songs.
func (p *Playlist) SongCount() int { return len(p.songs) }

func (p *Playlist) contains(id uint32) bool {
	_, ok := p.byID[id]
	return ok
}

// add appends s, once.
func (p *Playlist) add(s *Song) {
	if p.contains(s.id) {
		return
	}
	p.songs = append(p.songs, s)
	p.byID[s.id] = s
}

// remove deletes the song with the given id and reports whether it was
// present.
func (p *Playlist) remove(id uint32) bool {
	if !p.contains(id) {
		return false
	}
	delete(p.byID, id)
	for i, s := range p.songs {
		if s.id == id {
			p.songs = append(p.songs[:i], p.songs[i+1:]...)
			break
		}
	}
	return true
}

// SetName renames the playlist. The master playlist follows its
// database's name and cannot be renamed directly.
func (p *Playlist) SetName(tx Tx, name string) error {
	if p.kind == masterKind {
		return errors.E("library.SetName", errors.Invalid, errors.Str("cannot rename the master playlist"))
	}
	return p.setName(tx, name)
}

func (p *Playlist) setName(tx Tx, name string) error {
	return mutate(tx, p, func(t *Transaction, target interface{}) {
		target.(*Playlist).name = name
	})
}

// SetSmart sets the cosmetic smart-playlist flag.
func (p *Playlist) SetSmart(tx Tx, smart bool) error {
	return mutate(tx, p, func(t *Transaction, target interface{}) {
		target.(*Playlist).smart = smart
	})
}

// AddSong adds a reference to s. The song should already be in the
// database; playlists only reference songs, the master owns them.
func (p *Playlist) AddSong(tx Tx, s *Song) error {
	if p.kind == folderKind {
		return errors.E("library.AddSong", errors.Invalid, errors.Str("cannot add a song to a folder"))
	}
	return mutate(tx, p, func(t *Transaction, target interface{}) {
		target.(*Playlist).add(s)
	})
}

// RemoveSong removes the reference to s and records the deleted id for
// delta listings.
func (p *Playlist) RemoveSong(tx Tx, s *Song) error {
	id := p.id
	return mutate(tx, p, func(t *Transaction, target interface{}) {
		if target.(*Playlist).remove(s.id) {
			t.recordRemovedSong(id, s.id)
		}
	})
}

// AddPlaylist adds a child playlist to a folder.
func (p *Playlist) AddPlaylist(tx Tx, child *Playlist) error {
	if p.kind != folderKind {
		return errors.E("library.AddPlaylist", errors.Invalid, errors.Str("not a folder"))
	}
	return mutate(tx, p, func(t *Transaction, target interface{}) {
		f := target.(*Playlist)
		f.children = append(f.children, child)
	})
}

// RemovePlaylist removes a child playlist from a folder.
func (p *Playlist) RemovePlaylist(tx Tx, child *Playlist) error {
	if p.kind != folderKind {
		return errors.E("library.RemovePlaylist", errors.Invalid, errors.Str("not a folder"))
	}
	return mutate(tx, p, func(t *Transaction, target interface{}) {
		f := target.(*Playlist)
		for i, x := range f.children {
			if x.id == child.id {
				f.children = append(f.children[:i], f.children[i+1:]...)
				t.recordRemovedPlaylist(child.id)
				return
			}
		}
	})
}

// clonePlaylist clones the playlist, substituting clones for the songs
// the transaction touched and sharing the rest.
func (t *Transaction) clonePlaylist(old *Playlist) *Playlist {
	if cloned, ok := t.clones[old]; ok {
		return cloned.(*Playlist)
	}
	next := &Playlist{
		id:           old.id,
		persistentID: old.persistentID,
		name:         old.name,
		kind:         old.kind,
		smart:        old.smart,
		songs:        make([]*Song, len(old.songs)),
		byID:         make(map[uint32]*Song, len(old.byID)),
	}
	t.clones[old] = next
	for i, s := range old.songs {
		if t.touched[s] {
			s = t.cloneSong(s)
		}
		next.songs[i] = s
		next.byID[s.id] = s
	}
	if old.children != nil {
		next.children = make([]*Playlist, len(old.children))
		for i, child := range old.children {
			if t.modified(child) {
				next.children[i] = t.clonePlaylist(child)
			} else {
				next.children[i] = child
			}
		}
	}
	return next
}
