// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package server implements the DAAP request router: classification of
// HTTP requests, authentication, the session table and the update
// long-poll machinery, all producing tagged-chunk responses over the
// library's current snapshot.
package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rkapsi/daap/auth"
	"github.com/rkapsi/daap/daap"
	"github.com/rkapsi/daap/dmap"
	"github.com/rkapsi/daap/errors"
	"github.com/rkapsi/daap/library"
	"github.com/rkapsi/daap/log"
	"github.com/rkapsi/daap/serverutil"
)

// revisionAttr is the session attribute remembering the last revision
// a client acknowledged; it drives snapshot pruning.
const revisionAttr = "revision"

// Server routes parsed requests against a library. It implements
// http.Handler.
type Server struct {
	cfg      daap.Config
	lib      *library.Library
	sessions *Sessions
	verifier daap.Authenticator
	source   daap.StreamSource
	filter   daap.Filter

	// gate slows down addresses that keep failing authentication.
	gate serverutil.Gate

	updates *updateHub
}

// New returns a server over the given library. A nil filter accepts
// every address; client credentials are checked against the config.
func New(cfg daap.Config, lib *library.Library, source daap.StreamSource, filter daap.Filter) *Server {
	s := &Server{
		cfg:      cfg,
		lib:      lib,
		sessions: NewSessions(),
		verifier: auth.NewVerifier(cfg),
		source:   source,
		filter:   filter,
		gate:     serverutil.Gate{Backoff: time.Second, Max: time.Minute},
		updates:  newUpdateHub(),
	}
	lib.AddListener(s.updates)
	return s
}

// Close detaches the server from the library and invalidates every
// session.
func (s *Server) Close() {
	s.lib.RemoveListener(s.updates)
	s.sessions.Each(func(sess *Session) {
		s.sessions.Invalidate(sess.ID())
	})
}

// Sessions exposes the session table, for the connection layer to
// invalidate a session when its socket dies.
func (s *Server) Sessions() *Sessions { return s.sessions }

// updateHub fans one libraryChanged notification out to every parked
// update request.
type updateHub struct {
	mu sync.Mutex
	ch chan struct{}
}

func newUpdateHub() *updateHub {
	return &updateHub{ch: make(chan struct{})}
}

// wait returns a channel closed at the next commit.
func (h *updateHub) wait() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ch
}

// LibraryChanged implements library.Listener.
func (h *updateHub) LibraryChanged(old, head *library.Library) {
	h.mu.Lock()
	ch := h.ch
	h.ch = make(chan struct{})
	h.mu.Unlock()
	close(ch)
}

// connState is the per-connection state: the digest nonce issued to
// the peer.
type connState struct {
	nonce string
}

type connKey struct{}

// ConnContext seeds each accepted connection with its server nonce.
// Install it as the http.Server's ConnContext.
func ConnContext(ctx context.Context, c net.Conn) context.Context {
	return context.WithValue(ctx, connKey{}, &connState{nonce: auth.NewNonce()})
}

func stateOf(r *http.Request) *connState {
	if st, ok := r.Context().Value(connKey{}).(*connState); ok {
		return st
	}
	return &connState{nonce: auth.NewNonce()}
}

// ServeHTTP implements http.Handler: filter, parse, authenticate,
// route.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "server.ServeHTTP"
	if s.filter != nil {
		if addr := remoteAddr(r); !s.filter.Accept(addr) {
			log.Info.Printf("%s: rejected %v by filter", op, addr)
			panic(http.ErrAbortHandler)
		}
	}

	req, err := ParseRequest(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.authenticate(w, r, req); err != nil {
		s.fail(w, r, err)
		return
	}

	var sess *Session
	switch req.Kind {
	case ServerInfo, ContentCodes, Login:
		// Bootstrap requests carry no session.
	default:
		if sess, err = s.sessions.Get(req.SessionID); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	switch req.Kind {
	case ServerInfo:
		s.writeChunk(w, r, s.serverInfo())
	case ContentCodes:
		s.writeChunk(w, r, dmap.ContentCodesResponse())
	case Login:
		s.serveLogin(w, r)
	case Logout:
		s.serveLogout(w, sess)
	case Update:
		s.serveUpdate(w, r, req, sess)
	case Resolve:
		s.fail(w, r, errors.E(op, errors.Unsupported, errors.Str("resolve is not implemented")))
	case Databases:
		s.serveDatabases(w, r, req, sess)
	case DatabaseSongs:
		s.serveDatabaseSongs(w, r, req, sess)
	case DatabasePlaylists:
		s.serveDatabasePlaylists(w, r, req, sess)
	case PlaylistSongs:
		s.servePlaylistSongs(w, r, req, sess)
	case SongStream:
		s.serveStream(w, r, req)
	default:
		s.fail(w, r, errors.E(op, errors.Protocol, errors.Str("unhandled request kind")))
	}
}

// authenticate enforces the uniform policy: everything except the
// bootstrap requests (server-info, content-codes) and logout must
// present credentials; login is where they are first checked.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, req *Request) error {
	const op = "server.authenticate"
	scheme := s.cfg.AuthScheme()
	if scheme == daap.AuthNone {
		return nil
	}
	switch req.Kind {
	case ServerInfo, ContentCodes, Logout:
		return nil
	}

	st := stateOf(r)
	header := r.Header.Get("Authorization")
	if header == "" {
		return errors.E(op, errors.Permission, errors.Str("missing credentials"))
	}
	creds, err := auth.ParseAuthorization(header)
	if err != nil {
		return err
	}
	if creds.Scheme != scheme {
		return errors.E(op, errors.Permission,
			errors.Errorf("client used %v auth, server requires %v", creds.Scheme, scheme))
	}
	switch scheme {
	case daap.AuthBasic:
		err = s.verifier.AuthenticateBasic(creds.Username, creds.Password)
	case daap.AuthDigest:
		err = s.verifier.AuthenticateDigest(creds.Digest, r.Method, st.nonce)
	}
	if err != nil {
		if !s.gate.Pass(remoteHost(r)) {
			log.Info.Printf("%s: too many failures from %s", op, remoteHost(r))
			panic(http.ErrAbortHandler)
		}
	}
	return err
}

// fail maps an error to the connection's fate: a 401 challenge for
// auth failures, a clean status for unsupported or missing items, and
// an aborted connection for everything protocol-fatal.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(errors.Permission, err):
		log.Debug.Printf("server: %s: %v", r.URL.Path, err)
		w.Header().Set("WWW-Authenticate", auth.Challenge(s.cfg.AuthScheme(), stateOf(r).nonce))
		http.Error(w, "authentication required", http.StatusUnauthorized)
	case errors.Is(errors.Unsupported, err):
		log.Debug.Printf("server: %s: %v", r.URL.Path, err)
		http.Error(w, err.Error(), http.StatusNotImplemented)
	case errors.Is(errors.NotExist, err):
		log.Debug.Printf("server: %s: %v", r.URL.Path, err)
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		// Protocol, Decode, Stale and anything unclassified are fatal
		// to the connection: no partial response, just disconnect.
		log.Info.Printf("server: %s: dropping connection: %v", r.URL.Path, err)
		panic(http.ErrAbortHandler)
	}
}

// writeChunk serializes and writes one chunk tree, gzip-compressed
// when the client accepts it. The exact Content-Length is always sent.
func (s *Server) writeChunk(w http.ResponseWriter, r *http.Request, c *dmap.Chunk) {
	var (
		body []byte
		err  error
	)
	gzipOK := strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
	if gzipOK {
		body, err = dmap.SerializeCompressed(c)
	} else {
		body, err = dmap.Marshal(c)
	}
	if err != nil {
		log.Error.Printf("server: encoding response: %v", err)
		panic(http.ErrAbortHandler)
	}
	h := w.Header()
	h.Set("Content-Type", daap.ContentType)
	h.Set("DAAP-Server", s.cfg.ServerName())
	if gzipOK {
		h.Set("Content-Encoding", "gzip")
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.Write(body)
}

// remember records the revision a session has caught up to and prunes
// snapshots nobody needs anymore.
func (s *Server) remember(sess *Session, revision uint32) {
	if sess == nil {
		return
	}
	sess.SetAttr(revisionAttr, revision)
	oldest := s.lib.Head().Revision()
	s.sessions.Each(func(x *Session) {
		if v, ok := x.Attr(revisionAttr).(uint32); ok && v < oldest {
			oldest = v
		}
	})
	s.lib.Prune(oldest)
}

func remoteAddr(r *http.Request) net.Addr {
	host, port, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return &net.TCPAddr{}
	}
	p, _ := strconv.Atoi(port)
	return &net.TCPAddr{IP: net.ParseIP(host), Port: p}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
