// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rkapsi/daap/cache"
	"github.com/rkapsi/daap/daap"
	"github.com/rkapsi/daap/errors"
)

// Kind is the request type, exactly one per request.
type Kind int

const (
	Unknown Kind = iota
	ServerInfo
	ContentCodes
	Login
	Logout
	Update
	Resolve
	Databases
	DatabaseSongs
	DatabasePlaylists
	PlaylistSongs
	SongStream
)

func (k Kind) String() string {
	switch k {
	case ServerInfo:
		return "server-info"
	case ContentCodes:
		return "content-codes"
	case Login:
		return "login"
	case Logout:
		return "logout"
	case Update:
		return "update"
	case Resolve:
		return "resolve"
	case Databases:
		return "databases"
	case DatabaseSongs:
		return "database-songs"
	case DatabasePlaylists:
		return "database-playlists"
	case PlaylistSongs:
		return "playlist-songs"
	case SongStream:
		return "song"
	}
	return "unknown"
}

// Request is the parsed, immutable form of one client request.
type Request struct {
	Kind      Kind
	SessionID daap.SessionID
	Revision  uint32
	Delta     uint32

	DatabaseID  uint32
	ContainerID uint32
	ItemID      uint32
	Format      string

	metaRaw string
}

// metaCache memoizes parsed meta lists. Clients repeat the same long
// comma-separated list on every listing request of a session.
var metaCache = cache.NewLRU(64)

// ParseRequest classifies an HTTP request. The path grammar is strict:
// an unrecognized segment or a wrong token count is a Protocol error,
// fatal to the connection, never an unknown-but-tolerated request.
func ParseRequest(r *http.Request) (*Request, error) {
	const op = "server.ParseRequest"
	req := &Request{}

	if err := req.parseQuery(r.URL); err != nil {
		return nil, err
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")
	switch segs[0] {
	case "server-info", "content-codes", "login", "logout", "update", "resolve":
		if len(segs) != 1 {
			return nil, errors.E(op, errors.Protocol, errors.Errorf("trailing path after /%s", segs[0]))
		}
		switch segs[0] {
		case "server-info":
			req.Kind = ServerInfo
		case "content-codes":
			req.Kind = ContentCodes
		case "login":
			req.Kind = Login
		case "logout":
			req.Kind = Logout
		case "update":
			req.Kind = Update
		case "resolve":
			req.Kind = Resolve
		}
		return req, nil
	case "databases":
		return req.parseDatabases(segs)
	}
	return nil, errors.E(op, r.URL.Path, errors.Protocol, errors.Errorf("unrecognized path %q", r.URL.Path))
}

// parseDatabases handles the /databases subtree:
//	/databases
//	/databases/{id}/items
//	/databases/{id}/items/{id}.{format}
//	/databases/{id}/containers
//	/databases/{id}/containers/{id}/items
func (req *Request) parseDatabases(segs []string) (*Request, error) {
	const op = "server.ParseRequest"
	switch len(segs) {
	case 1:
		req.Kind = Databases
		return req, nil
	case 3, 4, 5:
		id, err := parseID(segs[1])
		if err != nil {
			return nil, err
		}
		req.DatabaseID = id
	default:
		return nil, errors.E(op, errors.Protocol, errors.Errorf("bad token count in /databases path"))
	}

	if len(segs) == 5 {
		if segs[2] != "containers" {
			return nil, errors.E(op, errors.Protocol, errors.Errorf("unrecognized segment %q", segs[2]))
		}
		return req.parseContainerItems(segs)
	}

	switch segs[2] {
	case "items":
		if len(segs) == 3 {
			req.Kind = DatabaseSongs
			return req, nil
		}
		// /databases/{id}/items/{id}.{format}
		name, format, ok := strings.Cut(segs[3], ".")
		if !ok {
			return nil, errors.E(op, errors.Protocol, errors.Errorf("song path %q has no format suffix", segs[3]))
		}
		id, err := parseID(name)
		if err != nil {
			return nil, err
		}
		req.Kind = SongStream
		req.ItemID = id
		req.Format = format
		return req, nil
	case "containers":
		if len(segs) == 3 {
			req.Kind = DatabasePlaylists
			return req, nil
		}
		return nil, errors.E(op, errors.Protocol, errors.Errorf("bad token count in /databases path"))
	}
	return nil, errors.E(op, errors.Protocol, errors.Errorf("unrecognized segment %q", segs[2]))
}

// parseContainerItems handles /databases/{id}/containers/{id}/items,
// which arrives with five segments.
func (req *Request) parseContainerItems(segs []string) (*Request, error) {
	const op = "server.ParseRequest"
	id, err := parseID(segs[3])
	if err != nil {
		return nil, err
	}
	if segs[4] != "items" {
		return nil, errors.E(op, errors.Protocol, errors.Errorf("unrecognized segment %q", segs[4]))
	}
	req.Kind = PlaylistSongs
	req.ContainerID = id
	return req, nil
}

func parseID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.E("server.ParseRequest", errors.Protocol, errors.Errorf("bad id %q", s))
	}
	return uint32(v), nil
}

// parseQuery picks out the parameters of interest. Parameters other
// than these are legal and ignored (clients send type=music and
// friends).
func (req *Request) parseQuery(u *url.URL) error {
	const op = "server.ParseRequest"
	q := u.Query()

	if s := q.Get("session-id"); s != "" {
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil || v <= 0 {
			return errors.E(op, errors.Protocol, errors.Errorf("bad session-id %q", s))
		}
		req.SessionID = daap.SessionID(v)
	}
	if s := q.Get("revision-number"); s != "" {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return errors.E(op, errors.Protocol, errors.Errorf("bad revision-number %q", s))
		}
		req.Revision = uint32(v)
	}
	if s := q.Get("delta"); s != "" {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return errors.E(op, errors.Protocol, errors.Errorf("bad delta %q", s))
		}
		req.Delta = uint32(v)
	}
	// Delta is how far behind the client is relative to the revision
	// it requests; running ahead of it makes no sense.
	if req.Delta > req.Revision {
		return errors.E(op, errors.Protocol,
			errors.Errorf("delta %d exceeds revision-number %d", req.Delta, req.Revision))
	}
	req.metaRaw = q.Get("meta")
	return nil
}

// Meta returns the requested metadata field names, parsed lazily. A
// request without a meta parameter returns nil, meaning the handler's
// default field set.
func (req *Request) Meta() []string {
	if req.metaRaw == "" {
		return nil
	}
	if v, ok := metaCache.Get(req.metaRaw); ok {
		return v.([]string)
	}
	fields := strings.Split(req.metaRaw, ",")
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	metaCache.Add(req.metaRaw, out)
	return out
}

// IsDelta reports whether the request asks for an incremental listing.
func (req *Request) IsDelta() bool { return req.Delta > 0 }
