// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/rkapsi/daap/daap"
	"github.com/rkapsi/daap/dmap"
	"github.com/rkapsi/daap/errors"
	"github.com/rkapsi/daap/library"
)

// testConfig implements daap.Config for tests.
type testConfig struct {
	username string
	password string
	scheme   daap.AuthScheme
}

func (c testConfig) ServerName() string          { return "daapd" }
func (c testConfig) LibraryName() string         { return "Test Library" }
func (c testConfig) Addr() string                { return ":0" }
func (c testConfig) Backlog() int                { return 8 }
func (c testConfig) MaxConnections() int         { return 8 }
func (c testConfig) AuthScheme() daap.AuthScheme { return c.scheme }
func (c testConfig) Username() string            { return c.username }
func (c testConfig) Password() string            { return c.password }
func (c testConfig) PasswordHash() string        { return "" }

// memSource serves songs from memory.
type memSource map[uint32][]byte

func (m memSource) Open(id uint32) (io.ReadSeeker, int64, error) {
	b, ok := m[id]
	if !ok {
		return nil, 0, errors.E("memSource.Open", errors.NotExist, errors.Errorf("no audio for song %d", id))
	}
	return bytes.NewReader(b), int64(len(b)), nil
}

// fixture is a small library: one database with three songs and one
// plain playlist holding the first two.
type fixture struct {
	lib        *library.Library
	db         *library.Database
	pl         *library.Playlist
	s1, s2, s3 *library.Song
	audio      memSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		lib:   library.New("Test Library"),
		audio: memSource{},
	}
	f.db = library.NewDatabase("Test Library")
	f.s1 = library.NewSong("First")
	f.s2 = library.NewSong("Second")
	f.s3 = library.NewSong("Third")
	f.pl = library.NewPlaylist("Mixtape")

	tx, err := f.lib.Open()
	if err != nil {
		t.Fatal(err)
	}
	if err := f.lib.AddDatabase(tx, f.db); err != nil {
		t.Fatal(err)
	}
	for _, s := range []*library.Song{f.s1, f.s2, f.s3} {
		s.SetArtist(tx, "The Daemons")
		s.SetFormat(tx, "mp3")
		if err := f.db.AddSong(tx, s); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.db.AddPlaylist(tx, f.pl); err != nil {
		t.Fatal(err)
	}
	f.pl.AddSong(tx, f.s1)
	f.pl.AddSong(tx, f.s2)
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	for _, s := range []*library.Song{f.s1, f.s2, f.s3} {
		audio := make([]byte, 5000)
		rand.Read(audio)
		f.audio[s.ID()] = audio
	}
	return f
}

func (f *fixture) commit(t *testing.T, fn func(tx *library.Transaction)) {
	t.Helper()
	tx, err := f.lib.Open()
	if err != nil {
		t.Fatal(err)
	}
	fn(tx)
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

// get runs one request through the server and decodes the chunk body.
func get(t *testing.T, srv *Server, url string, header ...string) (*httptest.ResponseRecorder, *dmap.Chunk) {
	t.Helper()
	r := httptest.NewRequest("GET", url, nil)
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		return w, nil
	}
	if ct := w.Header().Get("Content-Type"); ct != daap.ContentType {
		t.Fatalf("GET %s: Content-Type = %q, want %q", url, ct, daap.ContentType)
	}
	c, err := dmap.Unmarshal(w.Body.Bytes())
	if err != nil {
		t.Fatalf("GET %s: decoding body: %v", url, err)
	}
	return w, c
}

// login obtains a session.
func login(t *testing.T, srv *Server) daap.SessionID {
	t.Helper()
	_, c := get(t, srv, "/login")
	if c == nil || c.Tag != "mlog" {
		t.Fatalf("login response %v", c)
	}
	id := c.Lookup("mlid")
	if id == nil || id.Value == 0 {
		t.Fatal("login response has no session id")
	}
	return daap.SessionID(id.Value)
}

func TestServerInfo(t *testing.T) {
	f := newFixture(t)
	srv := New(testConfig{}, f.lib, f.audio, nil)
	defer srv.Close()

	w, c := get(t, srv, "/server-info")
	if c == nil || c.Tag != "msrv" {
		t.Fatalf("status %d, body %v", w.Code, c)
	}
	if got := c.Lookup("mstt"); got == nil || got.Value != 200 {
		t.Error("missing or bad mstt")
	}
	if got := c.Lookup("minm"); got == nil || got.StringValue() != "Test Library" {
		t.Errorf("minm = %v", got)
	}
	// Without authentication the login-required flag is false, and
	// false booleans are absent from the wire.
	if got := c.Lookup("mslr"); got != nil {
		t.Errorf("mslr present: %v", got)
	}
	for _, tag := range []string{"mpro", "apro", "mstm", "msup", "mspi", "msdc"} {
		if c.Lookup(tag) == nil {
			t.Errorf("missing %s", tag)
		}
	}
}

func TestContentCodes(t *testing.T) {
	f := newFixture(t)
	srv := New(testConfig{}, f.lib, f.audio, nil)
	defer srv.Close()

	_, c := get(t, srv, "/content-codes")
	if c == nil || c.Tag != "mccr" {
		t.Fatalf("content-codes response %v", c)
	}
	if len(c.Kids) < 10 {
		t.Errorf("suspiciously small registry: %d entries", len(c.Kids))
	}
}

func TestLoginLogout(t *testing.T) {
	f := newFixture(t)
	srv := New(testConfig{}, f.lib, f.audio, nil)
	defer srv.Close()

	sid := login(t, srv)
	if srv.Sessions().Len() != 1 {
		t.Fatalf("session table has %d entries", srv.Sessions().Len())
	}

	w, _ := get(t, srv, fmt.Sprintf("/logout?session-id=%d", sid))
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout status %d", w.Code)
	}
	if srv.Sessions().Len() != 0 {
		t.Fatal("session survived logout")
	}

	// The dead session no longer opens any door.
	w, _ = get(t, srv, fmt.Sprintf("/databases?session-id=%d&revision-number=1", sid))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d after logout, want 401", w.Code)
	}
}

func TestSessionRequired(t *testing.T) {
	f := newFixture(t)
	srv := New(testConfig{}, f.lib, f.audio, nil)
	defer srv.Close()

	for _, url := range []string{
		"/databases",
		"/update",
		fmt.Sprintf("/databases/%d/items", f.db.ID()),
		fmt.Sprintf("/databases/%d/items/%d.mp3", f.db.ID(), f.s1.ID()),
	} {
		if w, _ := get(t, srv, url); w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without session: status %d, want 401", url, w.Code)
		}
	}
}

func TestFullListing(t *testing.T) {
	f := newFixture(t)
	srv := New(testConfig{}, f.lib, f.audio, nil)
	defer srv.Close()
	sid := login(t, srv)

	_, c := get(t, srv, fmt.Sprintf("/update?session-id=%d", sid))
	if c == nil || c.Tag != "mupd" {
		t.Fatalf("update response %v", c)
	}
	rev := c.Lookup("musr").Value
	if rev != uint64(f.lib.Head().Revision()) {
		t.Fatalf("musr = %d, head is %d", rev, f.lib.Head().Revision())
	}

	_, c = get(t, srv, fmt.Sprintf("/databases?session-id=%d&revision-number=%d", sid, rev))
	if c == nil || c.Tag != "avdb" {
		t.Fatalf("databases response %v", c)
	}
	if got := c.Lookup("mtco"); got == nil || got.Value != 1 {
		t.Errorf("mtco = %v, want 1", got)
	}
	item := c.Lookup("mlcl").Lookup("mlit")
	if item == nil || item.Lookup("miid").Value != uint64(f.db.ID()) {
		t.Fatalf("database item %v", item)
	}
	if got := item.Lookup("mimc"); got == nil || got.Value != 3 {
		t.Errorf("database song count = %v, want 3", got)
	}

	_, c = get(t, srv, fmt.Sprintf("/databases/%d/items?session-id=%d&revision-number=%d", f.db.ID(), sid, rev))
	if c == nil || c.Tag != "adbs" {
		t.Fatalf("songs response %v", c)
	}
	if got := c.Lookup("mrco").Value; got != 3 {
		t.Fatalf("mrco = %d, want 3", got)
	}
	// A full listing is not an update.
	if c.Lookup("muty") != nil {
		t.Error("muty present in full listing")
	}
	first := c.Lookup("mlcl").Kids[0]
	if first.Lookup("miid").Value != uint64(f.s1.ID()) {
		t.Errorf("first song id = %d, want %d", first.Lookup("miid").Value, f.s1.ID())
	}
	if got := first.Lookup("asar"); got == nil || got.StringValue() != "The Daemons" {
		t.Errorf("asar = %v", got)
	}

	_, c = get(t, srv, fmt.Sprintf("/databases/%d/containers?session-id=%d&revision-number=%d", f.db.ID(), sid, rev))
	if c == nil || c.Tag != "aply" {
		t.Fatalf("containers response %v", c)
	}
	lits := c.Lookup("mlcl").Kids
	if len(lits) != 2 {
		t.Fatalf("%d containers, want master + playlist", len(lits))
	}
	if lits[0].Lookup("abpl") == nil {
		t.Error("first container is not flagged as the master playlist")
	}
	if lits[1].Lookup("minm").StringValue() != "Mixtape" {
		t.Errorf("playlist name = %q", lits[1].Lookup("minm").StringValue())
	}

	_, c = get(t, srv, fmt.Sprintf("/databases/%d/containers/%d/items?session-id=%d&revision-number=%d",
		f.db.ID(), f.pl.ID(), sid, rev))
	if c == nil || c.Tag != "apso" {
		t.Fatalf("playlist songs response %v", c)
	}
	if got := c.Lookup("mrco").Value; got != 2 {
		t.Errorf("playlist mrco = %d, want 2", got)
	}
}

// TestDeltaListing walks the incremental-update flow: one commit adds
// a song, edits another and removes a third, and the delta listing
// carries exactly the changed items plus the deleted ids.
func TestDeltaListing(t *testing.T) {
	f := newFixture(t)
	srv := New(testConfig{}, f.lib, f.audio, nil)
	defer srv.Close()
	sid := login(t, srv)

	oldRev := f.lib.Head().Revision()
	s4 := library.NewSong("Fourth")
	f.commit(t, func(tx *library.Transaction) {
		f.db.AddSong(tx, s4)
		f.s1.SetAlbum(tx, "Retitled")
		f.db.RemoveSong(tx, f.s2)
	})
	newRev := f.lib.Head().Revision()

	_, c := get(t, srv, fmt.Sprintf("/databases/%d/items?session-id=%d&revision-number=%d&delta=%d",
		f.db.ID(), sid, newRev, oldRev))
	if c == nil || c.Tag != "adbs" {
		t.Fatalf("songs response %v", c)
	}
	if c.Lookup("muty") == nil {
		t.Error("delta listing has no muty")
	}
	if got := c.Lookup("mtco").Value; got != 3 {
		t.Errorf("mtco = %d, want 3", got)
	}
	var ids []uint64
	for _, lit := range c.Lookup("mlcl").Kids {
		ids = append(ids, lit.Lookup("miid").Value)
	}
	want := []uint64{uint64(f.s1.ID()), uint64(s4.ID())}
	if len(ids) != 2 || ids[0] != want[0] || ids[1] != want[1] {
		t.Errorf("changed song ids %v, want %v", ids, want)
	}
	del := c.Lookup("mudl")
	if del == nil || len(del.Kids) != 1 || del.Kids[0].Value != uint64(f.s2.ID()) {
		t.Errorf("deleted listing %v, want [%d]", del, f.s2.ID())
	}

	// The playlist lost a song, so it shows up in the containers delta.
	_, c = get(t, srv, fmt.Sprintf("/databases/%d/containers?session-id=%d&revision-number=%d&delta=%d",
		f.db.ID(), sid, newRev, oldRev))
	if c == nil || c.Tag != "aply" {
		t.Fatalf("containers response %v", c)
	}
	if got := c.Lookup("mrco").Value; got == 0 {
		t.Error("containers delta is empty, want changed playlists")
	}

	// The playlist's own delta names the evicted song too.
	_, c = get(t, srv, fmt.Sprintf("/databases/%d/containers/%d/items?session-id=%d&revision-number=%d&delta=%d",
		f.db.ID(), f.pl.ID(), sid, newRev, oldRev))
	if c == nil || c.Tag != "apso" {
		t.Fatalf("playlist songs response %v", c)
	}
	del = c.Lookup("mudl")
	if del == nil || len(del.Kids) != 1 || del.Kids[0].Value != uint64(f.s2.ID()) {
		t.Errorf("playlist deleted listing %v, want [%d]", del, f.s2.ID())
	}
}

func TestUpdateLongPoll(t *testing.T) {
	f := newFixture(t)
	srv := New(testConfig{}, f.lib, f.audio, nil)
	defer srv.Close()
	sid := login(t, srv)
	rev := f.lib.Head().Revision()

	type result struct {
		rev uint64
		err error
	}
	done := make(chan result, 1)
	go func() {
		r := httptest.NewRequest("GET",
			fmt.Sprintf("/update?session-id=%d&revision-number=%d&delta=%d", sid, rev, rev), nil)
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, r)
		c, err := dmap.Unmarshal(w.Body.Bytes())
		if err != nil {
			done <- result{0, err}
			return
		}
		done <- result{c.Lookup("musr").Value, nil}
	}()

	// Give the request time to park, then commit a change.
	time.Sleep(50 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("update returned before the library changed")
	default:
	}
	f.commit(t, func(tx *library.Transaction) {
		f.s1.SetGenre(tx, "Ambient")
	})

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatal(res.err)
		}
		if res.rev != uint64(rev+1) {
			t.Errorf("musr = %d, want %d", res.rev, rev+1)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("parked update never woke up")
	}
}

// TestUpdateWakeNotLost races commits against parking updates with no
// settling delay. The handler takes its hub subscription before it
// reads the head revision; with the opposite order a commit landing
// between the two would leave the request parked past the revision it
// should have seen.
func TestUpdateWakeNotLost(t *testing.T) {
	f := newFixture(t)
	srv := New(testConfig{}, f.lib, f.audio, nil)
	defer srv.Close()
	sid := login(t, srv)

	for i := 0; i < 50; i++ {
		rev := f.lib.Head().Revision()
		done := make(chan uint64, 1)
		go func() {
			r := httptest.NewRequest("GET",
				fmt.Sprintf("/update?session-id=%d&revision-number=%d&delta=%d", sid, rev, rev), nil)
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, r)
			c, err := dmap.Unmarshal(w.Body.Bytes())
			if err != nil {
				done <- 0
				return
			}
			done <- c.Lookup("musr").Value
		}()

		f.commit(t, func(tx *library.Transaction) {
			f.lib.Head().Database().Song(f.s1.ID()).SetComment(tx, fmt.Sprintf("take %d", i))
		})

		select {
		case got := <-done:
			if got != uint64(rev+1) {
				t.Fatalf("musr = %d, want %d", got, rev+1)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("update parked past the commit it should have seen (head=%d, client delta=%d)",
				f.lib.Head().Revision(), rev)
		}
	}
}

func TestUpdateDisconnectReleases(t *testing.T) {
	f := newFixture(t)
	srv := New(testConfig{}, f.lib, f.audio, nil)
	defer srv.Close()
	sid := login(t, srv)
	rev := f.lib.Head().Revision()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r := httptest.NewRequest("GET",
			fmt.Sprintf("/update?session-id=%d&revision-number=%d&delta=%d", sid, rev, rev), nil)
		srv.ServeHTTP(httptest.NewRecorder(), r.WithContext(ctx))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("parked update not released by client disconnect")
	}
}

func TestUpdateInvalidationReleases(t *testing.T) {
	f := newFixture(t)
	srv := New(testConfig{}, f.lib, f.audio, nil)
	defer srv.Close()
	sid := login(t, srv)
	rev := f.lib.Head().Revision()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if v := recover(); v != http.ErrAbortHandler {
				t.Errorf("recovered %v, want http.ErrAbortHandler", v)
			}
		}()
		r := httptest.NewRequest("GET",
			fmt.Sprintf("/update?session-id=%d&revision-number=%d&delta=%d", sid, rev, rev), nil)
		srv.ServeHTTP(httptest.NewRecorder(), r)
	}()

	time.Sleep(50 * time.Millisecond)
	srv.Sessions().Invalidate(sid)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("parked update not released by session invalidation")
	}
}

func TestStream(t *testing.T) {
	f := newFixture(t)
	srv := New(testConfig{}, f.lib, f.audio, nil)
	defer srv.Close()
	sid := login(t, srv)

	url := fmt.Sprintf("/databases/%d/items/%d.mp3?session-id=%d", f.db.ID(), f.s1.ID(), sid)
	audio := f.audio[f.s1.ID()]

	r := httptest.NewRequest("GET", url, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), audio) {
		t.Fatalf("full stream: got %d bytes, want %d", w.Body.Len(), len(audio))
	}

	// Resume from byte 1000.
	r = httptest.NewRequest("GET", url, nil)
	r.Header.Set("Range", "bytes=1000-")
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	if w.Code != http.StatusPartialContent {
		t.Fatalf("range status %d", w.Code)
	}
	if cr := w.Header().Get("Content-Range"); cr != "bytes 1000-4999/5000" {
		t.Errorf("Content-Range = %q", cr)
	}
	if !bytes.Equal(w.Body.Bytes(), audio[1000:]) {
		t.Fatalf("range stream: got %d bytes, want %d from offset 1000", w.Body.Len(), len(audio)-1000)
	}
}

func TestStreamUnknownSong(t *testing.T) {
	f := newFixture(t)
	srv := New(testConfig{}, f.lib, f.audio, nil)
	defer srv.Close()
	sid := login(t, srv)

	w, _ := get(t, srv, fmt.Sprintf("/databases/%d/items/999999.mp3?session-id=%d", f.db.ID(), sid))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", w.Code)
	}
}

func TestResolveUnsupported(t *testing.T) {
	f := newFixture(t)
	srv := New(testConfig{}, f.lib, f.audio, nil)
	defer srv.Close()
	sid := login(t, srv)

	w, _ := get(t, srv, fmt.Sprintf("/resolve?session-id=%d", sid))
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("status %d, want 501", w.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	f := newFixture(t)
	srv := New(testConfig{password: "s3cret", scheme: daap.AuthBasic}, f.lib, f.audio, nil)
	defer srv.Close()

	// server-info stays open so clients can discover the auth scheme.
	if w, _ := get(t, srv, "/server-info"); w.Code != http.StatusOK {
		t.Fatalf("server-info status %d", w.Code)
	}

	w, _ := get(t, srv, "/login")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated login status %d", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); !strings.HasPrefix(got, "Basic ") {
		t.Fatalf("WWW-Authenticate = %q", got)
	}

	cred := "Basic " + base64.StdEncoding.EncodeToString([]byte(":s3cret"))
	_, c := get(t, srv, "/login", "Authorization", cred)
	if c == nil || c.Tag != "mlog" {
		t.Fatalf("authenticated login response %v", c)
	}
}

func TestGzipResponse(t *testing.T) {
	f := newFixture(t)
	srv := New(testConfig{}, f.lib, f.audio, nil)
	defer srv.Close()

	r := httptest.NewRequest("GET", "/server-info", nil)
	r.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q", got)
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	c, err := dmap.Unmarshal(body)
	if err != nil {
		t.Fatal(err)
	}
	if c.Tag != "msrv" {
		t.Fatalf("decompressed tag %q", c.Tag)
	}
}

// TestFilterRejects verifies that a rejected address is cut off before
// any protocol handling; the server aborts the connection the way
// net/http expects, by panicking with ErrAbortHandler.
func TestFilterRejects(t *testing.T) {
	f := newFixture(t)
	srv := New(testConfig{}, f.lib, f.audio,
		daap.FilterFunc(func(addr net.Addr) bool { return false }))
	defer srv.Close()

	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want http.ErrAbortHandler", v)
		}
	}()
	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/server-info", nil))
	t.Fatal("filtered request was served")
}
