// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmap

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/rkapsi/daap/errors"
	"github.com/rkapsi/daap/log"
)

// errEnd marks the clean end of a bounded container sub-stream: the
// next header read stopped before its first byte. A partially read
// header is real corruption and reported as a Decode error instead.
var errEnd = errors.Str("end of container")

// Decode reads one chunk, recursively for containers, from r.
// The content-code registry supplies the wire type for each tag; a tag
// the registry does not know is a hard decode error, never skipped,
// because the stream framing would desync.
//
// Real clients have been seen declaring lengths that disagree with the
// fixed width of a scalar type. The declared length wins: the payload
// is consumed in full and interpreted big-endian, so that framing of
// the following chunks is preserved.
func Decode(r io.Reader) (*Chunk, error) {
	c, err := decode(r)
	if err == errEnd {
		return nil, errors.E("dmap.Decode", errors.Decode, errors.Str("empty chunk stream"))
	}
	return c, err
}

func decode(r io.Reader) (*Chunk, error) {
	const op = "dmap.Decode"

	var hdr [8]byte
	switch _, err := io.ReadFull(r, hdr[:]); err {
	case nil:
	case io.EOF:
		return nil, errEnd
	default:
		return nil, errors.E(op, errors.Decode, errors.Errorf("truncated chunk header: %v", err))
	}
	tag := string(hdr[:4])
	length := binary.BigEndian.Uint32(hdr[4:])

	entry, ok := Lookup(tag)
	if !ok {
		return nil, errors.E(op, errors.Decode, errors.Errorf("unknown content code %q", tag))
	}

	if entry.Kind == Container {
		c := &Chunk{Tag: tag, Kind: Container}
		// The sub-reader returns the same io.EOF whether the declared
		// length was consumed or the stream ended early, so count the
		// bytes that actually arrived and reconcile at the end.
		sub := &countingReader{r: io.LimitReader(r, int64(length))}
		for {
			kid, err := decode(sub)
			if err == errEnd {
				break
			}
			if err != nil {
				return nil, err
			}
			c.Kids = append(c.Kids, kid)
		}
		if sub.n != int64(length) {
			return nil, errors.E(op, errors.Decode,
				errors.Errorf("container %q truncated: declared %d payload bytes, stream ended after %d", tag, length, sub.n))
		}
		return c, nil
	}

	payload := make([]byte, int(length))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.E(op, errors.Decode, errors.Errorf("truncated payload for %q: %v", tag, err))
	}

	if entry.Kind == String {
		c := &Chunk{Tag: tag, Kind: String}
		if length > 0 {
			s := string(payload)
			c.Str = &s
		}
		return c, nil
	}

	if want := entry.Kind.width(); int(length) != want {
		log.Debug.Printf("dmap: chunk %q declares length %d, type %s expects %d; using declared length",
			tag, length, entry.Kind, want)
	}
	var v uint64
	for _, b := range payload {
		v = v<<8 | uint64(b)
	}
	return &Chunk{Tag: tag, Kind: entry.Kind, Value: v}, nil
}

// countingReader tracks how many bytes the wrapped reader delivered.
type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

// Unmarshal decodes a single chunk tree from the byte slice.
func Unmarshal(data []byte) (*Chunk, error) {
	return Decode(bytes.NewReader(data))
}
