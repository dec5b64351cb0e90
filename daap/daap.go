// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package daap contains the types and interfaces shared by all packages
// of the DAAP server. The protocol core calls out through the interfaces
// defined here; the transport and configuration layers implement them.
package daap // import "github.com/rkapsi/daap/daap"

import (
	"io"
	"net"
)

// SessionID identifies a client session. It is an opaque random
// non-zero 31-bit value issued at /login and required on every
// subsequent request.
type SessionID int32

// Protocol identification, sent in /server-info and in the Server
// response header. The version numbers encode as major<<16|minor<<8|patch
// on the wire.
const (
	ServerName = "daapd"

	// DMAP ("mpro") and DAAP ("apro") protocol versions spoken here.
	DMAPVersion = 2<<16 | 0<<8 | 0
	DAAPVersion = 3<<16 | 0<<8 | 0

	// ContentType is the MIME type of every tagged-chunk response body.
	ContentType = "application/x-dmap-tagged"

	// SessionTimeout is the idle interval advertised to clients in
	// /server-info ("mstm"), in seconds.
	SessionTimeout = 1800
)

// AuthScheme selects how clients must authenticate.
type AuthScheme int

const (
	AuthNone AuthScheme = iota
	AuthBasic
	AuthDigest
)

func (s AuthScheme) String() string {
	switch s {
	case AuthNone:
		return "none"
	case AuthBasic:
		return "basic"
	case AuthDigest:
		return "digest"
	}
	return "unknown"
}

// Config supplies the server's operating parameters. The config
// package provides the canonical YAML-backed implementation; tests
// substitute their own.
type Config interface {
	// ServerName is the name advertised in HTTP Server headers.
	ServerName() string

	// LibraryName is the share name shown in the client's source list.
	LibraryName() string

	// Addr is the TCP listen address, such as ":3689".
	Addr() string

	// Backlog is the listen backlog hint passed to the transport.
	Backlog() int

	// MaxConnections bounds the number of simultaneous client
	// connections, control and stream connections combined.
	MaxConnections() int

	// AuthScheme selects the authentication mechanism.
	AuthScheme() AuthScheme

	// Username is the expected user name. Empty means any user name
	// is accepted and only the password is checked, per the protocol.
	Username() string

	// Password is the shared secret in the clear, required for the
	// digest scheme. Empty when only a bcrypt hash is configured.
	Password() string

	// PasswordHash is the bcrypt hash of the shared secret, used by
	// the basic scheme when present. Empty means compare Password.
	PasswordHash() string
}

// Digest carries the fields of an RFC 2617 Digest Authorization
// header as sent by the client.
type Digest struct {
	Username string
	Realm    string
	Nonce    string
	URI      string
	Response string
}

// Authenticator validates client credentials, independent of transport.
type Authenticator interface {
	// AuthenticateBasic checks a user name and clear-text password.
	AuthenticateBasic(username, password string) error

	// AuthenticateDigest checks a parsed Digest header against the
	// request method and the nonce previously issued to the connection.
	AuthenticateDigest(d Digest, method, nonce string) error
}

// StreamSource maps a song to its raw audio bytes. The returned
// ReadSeeker must be closed by the caller if it implements io.Closer.
type StreamSource interface {
	// Open returns a reader over the song's audio data and the total
	// size in bytes.
	Open(songID uint32) (io.ReadSeeker, int64, error)
}

// Filter accepts or rejects clients by source address. It is consulted
// before any protocol parsing takes place.
type Filter interface {
	Accept(addr net.Addr) bool
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(addr net.Addr) bool

// Accept implements Filter.
func (f FilterFunc) Accept(addr net.Addr) bool { return f(addr) }
