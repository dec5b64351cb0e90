// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmap

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/rkapsi/daap/errors"
)

// Encode writes the chunk's wire representation to w: the 4-byte tag,
// a 4-byte big-endian payload length and the payload. Scalars are
// fixed-width big-endian, strings raw UTF-8, containers the children
// in insertion order. A false boolean chunk writes nothing at all.
func Encode(w io.Writer, c *Chunk) error {
	const op = "dmap.Encode"
	if len(c.Tag) != 4 {
		return errors.E(op, errors.Invalid, errors.Errorf("content code %q is not 4 bytes", c.Tag))
	}
	if c.Kind == Bool && c.Value == 0 {
		return nil
	}

	var hdr [8]byte
	copy(hdr[:4], c.Tag)
	binary.BigEndian.PutUint32(hdr[4:], uint32(c.payloadSize()))
	if _, err := w.Write(hdr[:]); err != nil {
		return errors.E(op, errors.IO, err)
	}

	switch c.Kind {
	case Byte, Bool:
		_, err := w.Write([]byte{byte(c.Value)})
		return wrapIO(op, err)
	case Short:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(c.Value))
		_, err := w.Write(b[:])
		return wrapIO(op, err)
	case Int, Date, Version:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(c.Value))
		_, err := w.Write(b[:])
		return wrapIO(op, err)
	case Long:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], c.Value)
		_, err := w.Write(b[:])
		return wrapIO(op, err)
	case String:
		if c.Str == nil {
			return nil
		}
		_, err := io.WriteString(w, *c.Str)
		return wrapIO(op, err)
	case Container:
		for _, k := range c.Kids {
			if err := Encode(w, k); err != nil {
				return err
			}
		}
		return nil
	}
	return errors.E(op, errors.Invalid, errors.Errorf("chunk %q has invalid kind %d", c.Tag, c.Kind))
}

func wrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.E(op, errors.IO, err)
}

// Marshal returns the chunk's wire representation as a byte slice.
func Marshal(c *Chunk) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, c.Size()))
	if err := Encode(buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SerializeCompressed returns the chunk's wire representation wrapped
// in gzip. It is used for every protocol response except streaming
// audio.
func SerializeCompressed(c *Chunk) ([]byte, error) {
	const op = "dmap.SerializeCompressed"
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := Encode(zw, c); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	return buf.Bytes(), nil
}
