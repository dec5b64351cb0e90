// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package library

import (
	"time"

	"github.com/rkapsi/daap/dmap"
)

// Song is the leaf entity of the tree. Each metadata field is backed
// by one typed chunk, keyed by the protocol field name, so serving a
// requested meta list is a dictionary lookup per field.
type Song struct {
	id           uint32
	persistentID uint64

	attrs map[string]*dmap.Chunk
}

// NewSong returns a song with the given title.
func NewSong(title string) *Song {
	s := &Song{
		id:           nextID(),
		persistentID: nextPersistentID(),
		attrs:        make(map[string]*dmap.Chunk),
	}
	s.attrs["dmap.itemname"] = dmap.NewString("minm", title)
	s.attrs["dmap.itemkind"] = dmap.NewByte("mikd", 2) // audio
	return s
}

// ID returns the song's item id.
func (s *Song) ID() uint32 { return s.id }

// PersistentID returns the song's 64-bit persistent id.
func (s *Song) PersistentID() uint64 { return s.persistentID }

// Chunk returns the chunk backing the named field, or nil if the
// field was never set. Names are the protocol names, e.g.
// "daap.songartist".
func (s *Song) Chunk(name string) *dmap.Chunk { return s.attrs[name] }

// Title returns the song's name.
func (s *Song) Title() string {
	if c := s.attrs["dmap.itemname"]; c != nil {
		return c.StringValue()
	}
	return ""
}

// Format returns the song's format (e.g. "mp3"), or "".
func (s *Song) Format() string {
	if c := s.attrs["daap.songformat"]; c != nil {
		return c.StringValue()
	}
	return ""
}

// Size returns the song's size in bytes.
func (s *Song) Size() int64 {
	if c := s.attrs["daap.songsize"]; c != nil {
		return int64(c.Value)
	}
	return 0
}

// set replaces the chunk backing one field. The chunk's tag must be in
// the content-code registry; unknown tags are dropped since a client
// could never decode them.
func (s *Song) set(tx Tx, c *dmap.Chunk) error {
	entry, ok := dmap.Lookup(c.Tag)
	if !ok {
		return nil
	}
	return mutate(tx, s, func(t *Transaction, target interface{}) {
		target.(*Song).attrs[entry.Name] = c
	})
}

// cloneSong clones the song for a commit, sharing the chunks: setters
// replace whole chunks, never mutate them.
func (t *Transaction) cloneSong(old *Song) *Song {
	if cloned, ok := t.clones[old]; ok {
		return cloned.(*Song)
	}
	next := &Song{
		id:           old.id,
		persistentID: old.persistentID,
		attrs:        make(map[string]*dmap.Chunk, len(old.attrs)),
	}
	t.clones[old] = next
	for k, v := range old.attrs {
		next.attrs[k] = v
	}
	return next
}

// The typed setters, one per metadata field.

func (s *Song) SetTitle(tx Tx, v string) error  { return s.set(tx, dmap.NewString("minm", v)) }
func (s *Song) SetAlbum(tx Tx, v string) error  { return s.set(tx, dmap.NewString("asal", v)) }
func (s *Song) SetArtist(tx Tx, v string) error { return s.set(tx, dmap.NewString("asar", v)) }
func (s *Song) SetGenre(tx Tx, v string) error  { return s.set(tx, dmap.NewString("asgn", v)) }

func (s *Song) SetComposer(tx Tx, v string) error    { return s.set(tx, dmap.NewString("ascp", v)) }
func (s *Song) SetComment(tx Tx, v string) error     { return s.set(tx, dmap.NewString("ascm", v)) }
func (s *Song) SetDescription(tx Tx, v string) error { return s.set(tx, dmap.NewString("asdt", v)) }
func (s *Song) SetEQPreset(tx Tx, v string) error    { return s.set(tx, dmap.NewString("aseq", v)) }
func (s *Song) SetFormat(tx Tx, v string) error      { return s.set(tx, dmap.NewString("asfm", v)) }
func (s *Song) SetDataURL(tx Tx, v string) error     { return s.set(tx, dmap.NewString("asul", v)) }

func (s *Song) SetBitrate(tx Tx, v uint16) error        { return s.set(tx, dmap.NewShort("asbr", v)) }
func (s *Song) SetBeatsPerMinute(tx Tx, v uint16) error { return s.set(tx, dmap.NewShort("asbt", v)) }
func (s *Song) SetTrackNumber(tx Tx, v uint16) error    { return s.set(tx, dmap.NewShort("astn", v)) }
func (s *Song) SetTrackCount(tx Tx, v uint16) error     { return s.set(tx, dmap.NewShort("astc", v)) }
func (s *Song) SetDiscNumber(tx Tx, v uint16) error     { return s.set(tx, dmap.NewShort("asdn", v)) }
func (s *Song) SetDiscCount(tx Tx, v uint16) error      { return s.set(tx, dmap.NewShort("asdc", v)) }
func (s *Song) SetYear(tx Tx, v uint16) error           { return s.set(tx, dmap.NewShort("asyr", v)) }

func (s *Song) SetSampleRate(tx Tx, v uint32) error { return s.set(tx, dmap.NewInt("assr", v)) }
func (s *Song) SetSize(tx Tx, v uint32) error       { return s.set(tx, dmap.NewInt("assz", v)) }
func (s *Song) SetStartTime(tx Tx, v uint32) error  { return s.set(tx, dmap.NewInt("asst", v)) }
func (s *Song) SetStopTime(tx Tx, v uint32) error   { return s.set(tx, dmap.NewInt("assp", v)) }

// SetTime sets the song duration in milliseconds.
func (s *Song) SetTime(tx Tx, v uint32) error { return s.set(tx, dmap.NewInt("astm", v)) }

func (s *Song) SetNormVolume(tx Tx, v uint32) error { return s.set(tx, dmap.NewInt("aeNV", v)) }

func (s *Song) SetDataKind(tx Tx, v uint8) error       { return s.set(tx, dmap.NewByte("asdk", v)) }
func (s *Song) SetRelativeVolume(tx Tx, v uint8) error { return s.set(tx, dmap.NewByte("asrv", v)) }

func (s *Song) SetDisabled(tx Tx, v bool) error    { return s.set(tx, dmap.NewBool("asdb", v)) }
func (s *Song) SetCompilation(tx Tx, v bool) error { return s.set(tx, dmap.NewBool("asco", v)) }

func (s *Song) SetDateAdded(tx Tx, v time.Time) error    { return s.set(tx, dmap.NewDate("asda", v)) }
func (s *Song) SetDateModified(tx Tx, v time.Time) error { return s.set(tx, dmap.NewDate("asdm", v)) }

// SetUserRating sets the zero-to-five-star rating. The wire value runs
// 0-100 in steps of 20; raw client values are clamped to the nearest
// step, not rejected.
func (s *Song) SetUserRating(tx Tx, v uint8) error {
	if v > 100 {
		v = 100
	}
	v = (v + 10) / 20 * 20
	if v > 100 {
		v = 100
	}
	return s.set(tx, dmap.NewByte("asur", v))
}
