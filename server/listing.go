// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"github.com/rkapsi/daap/dmap"
	"github.com/rkapsi/daap/library"
)

// defaultSongMeta is the field set served when the client sends no
// meta parameter.
var defaultSongMeta = []string{
	"dmap.itemid",
	"dmap.itemname",
	"dmap.itemkind",
	"dmap.persistentid",
	"daap.songartist",
	"daap.songalbum",
	"daap.songgenre",
	"daap.songformat",
	"daap.songsize",
	"daap.songtime",
	"daap.songtracknumber",
	"daap.songbitrate",
}

// songItem builds the "mlit" for one song, holding exactly the
// requested fields in request order. Fields the song never had are
// omitted, not sent empty.
func songItem(s *library.Song, meta []string) *dmap.Chunk {
	if meta == nil {
		meta = defaultSongMeta
	}
	item := dmap.NewContainer("mlit")
	for _, name := range meta {
		switch name {
		case "dmap.itemid":
			item.Add(dmap.NewInt("miid", s.ID()))
		case "dmap.persistentid":
			item.Add(dmap.NewLong("mper", s.PersistentID()))
		default:
			if c := s.Chunk(name); c != nil {
				item.Add(c)
			}
		}
	}
	return item
}

// playlistItem builds the "mlit" for one playlist.
func playlistItem(p *library.Playlist) *dmap.Chunk {
	item := dmap.NewContainer("mlit",
		dmap.NewInt("miid", p.ID()),
		dmap.NewLong("mper", p.PersistentID()),
		dmap.NewString("minm", p.Name()),
		dmap.NewInt("mimc", uint32(p.SongCount())),
	)
	if p.IsMaster() {
		item.Add(dmap.NewBool("abpl", true))
	}
	if p.Smart() {
		// The value is immaterial; clients only test for presence.
		item.Add(dmap.NewBool("aeSP", true))
	}
	return item
}

// databaseItem builds the "mlit" for the database entry of /databases.
func databaseItem(db *library.Database) *dmap.Chunk {
	return dmap.NewContainer("mlit",
		dmap.NewInt("miid", db.ID()),
		dmap.NewLong("mper", db.PersistentID()),
		dmap.NewString("minm", db.Name()),
		dmap.NewInt("mimc", uint32(db.SongCount())),
		dmap.NewInt("mctc", uint32(db.PlaylistCount())),
	)
}

// listing assembles a full or delta listing response under the given
// top-level tag. The UpdateType chunk tells the client which one it
// got; a delta listing also carries the deleted-id listing when ids
// were removed.
func listing(tag string, delta bool, total int, items []*dmap.Chunk, deleted []uint32) *dmap.Chunk {
	resp := dmap.NewContainer(tag,
		dmap.NewInt("mstt", 200),
		dmap.NewBool("muty", delta),
		dmap.NewInt("mtco", uint32(total)),
		dmap.NewInt("mrco", uint32(len(items))),
		dmap.NewContainer("mlcl", items...),
	)
	if delta && len(deleted) > 0 {
		del := dmap.NewContainer("mudl")
		for _, id := range deleted {
			del.Add(dmap.NewInt("miid", id))
		}
		resp.Add(del)
	}
	return resp
}
