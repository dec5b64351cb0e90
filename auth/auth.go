// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package auth handles authentication of DAAP clients: parsing of
// Basic and Digest Authorization headers and verification of the
// credentials against the server configuration.
package auth

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/rkapsi/daap/daap"
	"github.com/rkapsi/daap/errors"
)

// Realm is the authentication realm presented in challenges.
const Realm = "daap"

// Credentials holds one parsed Authorization header. Exactly one of
// the two forms is populated.
type Credentials struct {
	Scheme daap.AuthScheme

	// Basic.
	Username string
	Password string

	// Digest.
	Digest daap.Digest
}

// ParseAuthorization parses the value of an Authorization header.
func ParseAuthorization(header string) (Credentials, error) {
	const op = "auth.ParseAuthorization"
	scheme, rest, ok := cutSpace(header)
	if !ok {
		return Credentials{}, errors.E(op, errors.Permission, errors.Str("malformed Authorization header"))
	}
	switch strings.ToLower(scheme) {
	case "basic":
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(rest))
		if err != nil {
			return Credentials{}, errors.E(op, errors.Permission, errors.Errorf("bad basic credentials: %v", err))
		}
		user, pass, ok := strings.Cut(string(raw), ":")
		if !ok {
			return Credentials{}, errors.E(op, errors.Permission, errors.Str("bad basic credentials"))
		}
		return Credentials{Scheme: daap.AuthBasic, Username: user, Password: pass}, nil
	case "digest":
		d, err := parseDigest(rest)
		if err != nil {
			return Credentials{}, err
		}
		return Credentials{Scheme: daap.AuthDigest, Digest: d}, nil
	}
	return Credentials{}, errors.E(op, errors.Permission, errors.Errorf("unsupported auth scheme %q", scheme))
}

func cutSpace(s string) (head, tail string, ok bool) {
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}

// parseDigest parses the comma-separated key="value" list of a Digest
// header.
func parseDigest(s string) (daap.Digest, error) {
	const op = "auth.parseDigest"
	var d daap.Digest
	for _, part := range strings.Split(s, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		val = strings.Trim(val, `"`)
		switch strings.ToLower(key) {
		case "username":
			d.Username = val
		case "realm":
			d.Realm = val
		case "nonce":
			d.Nonce = val
		case "uri":
			d.URI = val
		case "response":
			d.Response = val
		}
	}
	if d.Nonce == "" || d.Response == "" || d.URI == "" {
		return daap.Digest{}, errors.E(op, errors.Permission, errors.Str("incomplete digest credentials"))
	}
	return d, nil
}

// NewNonce returns a fresh server nonce. Nonces are per connection and
// must be echoed back exactly.
func NewNonce() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Reading from the system source does not fail in practice.
		panic("auth: no entropy: " + err.Error())
	}
	return fmt.Sprintf("%x", buf)
}

// Challenge returns the WWW-Authenticate header value for the scheme.
func Challenge(scheme daap.AuthScheme, nonce string) string {
	if scheme == daap.AuthDigest {
		return fmt.Sprintf("Digest realm=%q, nonce=%q", Realm, nonce)
	}
	return fmt.Sprintf("Basic realm=%q", Realm)
}

// Verifier checks credentials against the server configuration. It
// implements daap.Authenticator.
type Verifier struct {
	cfg daap.Config
}

var _ daap.Authenticator = (*Verifier)(nil)

// NewVerifier returns a Verifier for the configuration.
func NewVerifier(cfg daap.Config) *Verifier {
	return &Verifier{cfg: cfg}
}

var errBadCredentials = errors.Str("wrong user name or password")

// AuthenticateBasic implements daap.Authenticator. The user name is
// only checked when the configuration names one; the protocol allows
// clients to omit it.
func (v *Verifier) AuthenticateBasic(username, password string) error {
	const op = "auth.AuthenticateBasic"
	if want := v.cfg.Username(); want != "" {
		if subtle.ConstantTimeCompare([]byte(username), []byte(want)) != 1 {
			return errors.E(op, errors.Permission, errBadCredentials)
		}
	}
	if hash := v.cfg.PasswordHash(); hash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
			return errors.E(op, errors.Permission, errBadCredentials)
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(v.cfg.Password())) != 1 {
		return errors.E(op, errors.Permission, errBadCredentials)
	}
	return nil
}

// AuthenticateDigest implements daap.Authenticator. The nonce is the
// one issued to the connection; a mismatch fails regardless of the
// response hash. Digest needs the clear-text password, so it is
// unavailable when only a bcrypt hash is configured.
func (v *Verifier) AuthenticateDigest(d daap.Digest, method, nonce string) error {
	const op = "auth.AuthenticateDigest"
	if v.cfg.Password() == "" {
		return errors.E(op, errors.Permission, errors.Str("digest auth needs a clear-text password in the config"))
	}
	if d.Nonce != nonce {
		return errors.E(op, errors.Permission, errors.Str("stale or foreign nonce"))
	}
	if want := v.cfg.Username(); want != "" && d.Username != want {
		return errors.E(op, errors.Permission, errBadCredentials)
	}
	expected := DigestResponse(d.Username, v.cfg.Password(), method, d.URI, nonce)
	if subtle.ConstantTimeCompare([]byte(d.Response), []byte(expected)) != 1 {
		return errors.E(op, errors.Permission, errBadCredentials)
	}
	return nil
}

// DigestResponse computes the RFC 2617 response hash for the given
// parameters.
func DigestResponse(username, password, method, uri, nonce string) string {
	ha1 := md5hex(username + ":" + Realm + ":" + password)
	ha2 := md5hex(method + ":" + uri)
	return md5hex(ha1 + ":" + nonce + ":" + ha2)
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return fmt.Sprintf("%x", sum)
}
