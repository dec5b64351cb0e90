// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rkapsi/daap/daap"
	"github.com/rkapsi/daap/dmap"
	"github.com/rkapsi/daap/errors"
	"github.com/rkapsi/daap/library"
	"github.com/rkapsi/daap/log"
)

// serverInfo builds the msrv response advertising the protocol
// versions and server capabilities.
func (s *Server) serverInfo() *dmap.Chunk {
	c := dmap.NewContainer("msrv")
	c.Add(dmap.NewInt("mstt", http.StatusOK))
	c.Add(dmap.NewVersion("mpro", daap.DMAPVersion>>16, daap.DMAPVersion>>8&0xff, daap.DMAPVersion&0xff))
	c.Add(dmap.NewVersion("apro", daap.DAAPVersion>>16, daap.DAAPVersion>>8&0xff, daap.DAAPVersion&0xff))
	c.Add(dmap.NewString("minm", s.cfg.LibraryName()))
	c.Add(dmap.NewBool("mslr", s.cfg.AuthScheme() != daap.AuthNone))
	c.Add(dmap.NewInt("mstm", daap.SessionTimeout))
	c.Add(dmap.NewBool("msal", true)) // auto-logout
	c.Add(dmap.NewBool("msup", true)) // update
	c.Add(dmap.NewBool("mspi", true)) // persistent ids
	c.Add(dmap.NewBool("msex", true)) // extensions
	c.Add(dmap.NewBool("msbr", true)) // browse
	c.Add(dmap.NewBool("msqy", true)) // query
	c.Add(dmap.NewBool("msix", true)) // index
	c.Add(dmap.NewBool("msrs", false))
	c.Add(dmap.NewInt("msdc", uint32(len(s.lib.Head().Databases()))))
	return c
}

func (s *Server) serveLogin(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.New()
	log.Info.Printf("server.Login: session %d for %s", sess.ID(), remoteHost(r))

	c := dmap.NewContainer("mlog")
	c.Add(dmap.NewInt("mstt", http.StatusOK))
	c.Add(dmap.NewInt("mlid", uint32(sess.ID())))
	s.writeChunk(w, r, c)
}

func (s *Server) serveLogout(w http.ResponseWriter, sess *Session) {
	log.Info.Printf("server.Logout: session %d", sess.ID())
	s.sessions.Invalidate(sess.ID())
	w.WriteHeader(http.StatusNoContent)
}

// serveUpdate answers immediately when the library has moved past the
// client's revision, and otherwise parks the request until a commit,
// a session invalidation or a client disconnect.
func (s *Server) serveUpdate(w http.ResponseWriter, r *http.Request, req *Request, sess *Session) {
	// Subscribe before reading the head. A commit landing between the
	// two closes the hub channel we already hold, so it can never slip
	// past unseen; the reverse order loses that wakeup.
	wake := s.updates.wait()
	head := s.lib.Head()
	if req.Delta != 0 && head.Revision() == req.Delta {
		select {
		case <-wake:
			head = s.lib.Head()
		case <-sess.Invalidated():
			log.Debug.Printf("server.Update: session %d invalidated while parked", sess.ID())
			panic(http.ErrAbortHandler)
		case <-r.Context().Done():
			log.Debug.Printf("server.Update: session %d disconnected while parked", sess.ID())
			return
		}
	}

	if req.Delta != 0 {
		s.remember(sess, req.Delta)
	} else {
		s.remember(sess, head.Revision())
	}

	c := dmap.NewContainer("mupd")
	c.Add(dmap.NewInt("mstt", http.StatusOK))
	c.Add(dmap.NewInt("musr", head.Revision()))
	s.writeChunk(w, r, c)
}

// snapshot resolves the revision a request addresses, defaulting to
// the current head.
func (s *Server) snapshot(req *Request) (*library.Library, error) {
	head := s.lib.Head()
	if req.Revision == 0 {
		return head, nil
	}
	return head.Snapshot(req.Revision)
}

func (s *Server) serveDatabases(w http.ResponseWriter, r *http.Request, req *Request, sess *Session) {
	snap, err := s.snapshot(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	dbs := snap.Databases()
	var items []*dmap.Chunk
	if req.IsDelta() {
		old, err := snap.Snapshot(req.Delta)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		for _, db := range dbs {
			if old.Database() != db {
				items = append(items, databaseItem(db))
			}
		}
	} else {
		for _, db := range dbs {
			items = append(items, databaseItem(db))
		}
	}
	s.writeChunk(w, r, listing("avdb", req.IsDelta(), len(dbs), items, nil))
}

// findDatabase looks a database up in a snapshot.
func findDatabase(snap *library.Library, id uint32) (*library.Database, error) {
	for _, db := range snap.Databases() {
		if db.ID() == id {
			return db, nil
		}
	}
	return nil, errors.E("server.findDatabase", errors.NotExist,
		errors.Errorf("no database %d", id))
}

func (s *Server) serveDatabaseSongs(w http.ResponseWriter, r *http.Request, req *Request, sess *Session) {
	snap, err := s.snapshot(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	db, err := findDatabase(snap, req.DatabaseID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	meta := req.Meta()
	if meta == nil {
		meta = defaultSongMeta
	}
	master := db.Master()
	songs := master.Songs()

	var (
		items   []*dmap.Chunk
		deleted []uint32
	)
	if req.IsDelta() {
		old, err := snap.Snapshot(req.Delta)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		oldDB := old.Database()
		for _, song := range songs {
			if oldDB == nil || oldDB.Master().Song(song.ID()) != song {
				items = append(items, songItem(song, meta))
			}
		}
		if deleted, err = snap.DeletedSongs(master.ID(), req.Delta); err != nil {
			s.fail(w, r, err)
			return
		}
	} else {
		for _, song := range songs {
			items = append(items, songItem(song, meta))
		}
	}
	s.writeChunk(w, r, listing("adbs", req.IsDelta(), len(songs), items, deleted))
}

func (s *Server) serveDatabasePlaylists(w http.ResponseWriter, r *http.Request, req *Request, sess *Session) {
	snap, err := s.snapshot(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	db, err := findDatabase(snap, req.DatabaseID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	playlists := db.Playlists()
	var (
		items   []*dmap.Chunk
		deleted []uint32
	)
	if req.IsDelta() {
		old, err := snap.Snapshot(req.Delta)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		oldDB := old.Database()
		for _, pl := range playlists {
			if oldDB == nil || oldDB.Playlist(pl.ID()) != pl {
				items = append(items, playlistItem(pl))
			}
		}
		if deleted, err = snap.DeletedPlaylists(req.Delta); err != nil {
			s.fail(w, r, err)
			return
		}
	} else {
		for _, pl := range playlists {
			items = append(items, playlistItem(pl))
		}
	}
	s.writeChunk(w, r, listing("aply", req.IsDelta(), len(playlists), items, deleted))
}

func (s *Server) servePlaylistSongs(w http.ResponseWriter, r *http.Request, req *Request, sess *Session) {
	snap, err := s.snapshot(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	db, err := findDatabase(snap, req.DatabaseID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pl := db.Playlist(req.ContainerID)
	if pl == nil {
		s.fail(w, r, errors.E("server.PlaylistSongs", errors.NotExist,
			errors.Errorf("no container %d in database %d", req.ContainerID, req.DatabaseID)))
		return
	}

	meta := req.Meta()
	if meta == nil {
		meta = defaultSongMeta
	}
	songs := pl.Songs()

	var (
		items   []*dmap.Chunk
		deleted []uint32
	)
	if req.IsDelta() {
		old, err := snap.Snapshot(req.Delta)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		var oldPL *library.Playlist
		if oldDB := old.Database(); oldDB != nil {
			oldPL = oldDB.Playlist(pl.ID())
		}
		for _, song := range songs {
			if oldPL == nil || oldPL.Song(song.ID()) != song {
				items = append(items, songItem(song, meta))
			}
		}
		if deleted, err = snap.DeletedSongs(pl.ID(), req.Delta); err != nil {
			s.fail(w, r, err)
			return
		}
	} else {
		for _, song := range songs {
			items = append(items, songItem(song, meta))
		}
	}
	s.writeChunk(w, r, listing("apso", req.IsDelta(), len(songs), items, deleted))
}

// serveStream sends a song's raw audio bytes, honoring a single
// byte-range of the form "bytes=start-" or "bytes=start-end".
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, req *Request) {
	const op = "server.Stream"
	head := s.lib.Head()
	db, err := findDatabase(head, req.DatabaseID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	song := db.Song(req.ItemID)
	if song == nil {
		s.fail(w, r, errors.E(op, errors.NotExist,
			errors.Errorf("no song %d in database %d", req.ItemID, req.DatabaseID)))
		return
	}
	if s.source == nil {
		s.fail(w, r, errors.E(op, errors.Unsupported, errors.Str("no stream source configured")))
		return
	}

	rs, size, err := s.source.Open(song.ID())
	if err != nil {
		s.fail(w, r, errors.E(op, errors.IO, err))
		return
	}
	if c, ok := rs.(io.Closer); ok {
		defer c.Close()
	}

	start, end, partial, err := parseRange(r.Header.Get("Range"), size)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		s.fail(w, r, errors.E(op, errors.IO, err))
		return
	}

	h := w.Header()
	h.Set("Content-Type", audioContentType(song.Format()))
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Length", strconv.FormatInt(end-start, 10))
	if partial {
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, size))
		w.WriteHeader(http.StatusPartialContent)
	}

	if _, err := io.CopyN(w, rs, end-start); err != nil {
		// The peer hanging up mid-song is routine.
		log.Debug.Printf("%s: song %d: %v",
			op, song.ID(), errors.E(op, errors.Broken, err))
	}
}

// parseRange interprets a Range header against a body of the given
// size, returning the half-open interval [start, end).
func parseRange(header string, size int64) (start, end int64, partial bool, err error) {
	const op = "server.parseRange"
	if header == "" {
		return 0, size, false, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, false, errors.E(op, errors.Protocol, errors.Errorf("malformed range %q", header))
	}
	lo, hi, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, false, errors.E(op, errors.Protocol, errors.Errorf("malformed range %q", header))
	}
	start, err = strconv.ParseInt(lo, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false, errors.E(op, errors.Protocol, errors.Errorf("bad range start %q", header))
	}
	end = size
	if hi != "" {
		last, err := strconv.ParseInt(hi, 10, 64)
		if err != nil || last < start {
			return 0, 0, false, errors.E(op, errors.Protocol, errors.Errorf("bad range end %q", header))
		}
		if last < size-1 {
			end = last + 1
		}
	}
	return start, end, true, nil
}

func audioContentType(format string) string {
	switch strings.ToLower(format) {
	case "mp3", "mpeg":
		return "audio/mpeg"
	case "m4a", "aac", "mp4":
		return "audio/mp4"
	case "wav":
		return "audio/wav"
	case "ogg":
		return "audio/ogg"
	case "flac":
		return "audio/flac"
	}
	return "application/octet-stream"
}
