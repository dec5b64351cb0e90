// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dmap implements the tagged binary chunk format of the
// DMAP/DAAP protocol family. A chunk is a node of a self-describing
// tree: a 4-byte ASCII content code, a 4-byte big-endian length and a
// payload that is either a big-endian scalar, UTF-8 string bytes or a
// sequence of nested chunks.
package dmap // import "github.com/rkapsi/daap/dmap"

import (
	"fmt"
	"time"
)

// Kind identifies the wire type of a chunk's payload.
type Kind uint8

// The wire types. Bool and Byte share a wire representation; a false
// Bool is never written at all. Date and Version travel as 32-bit
// integers.
const (
	Byte Kind = iota + 1
	Bool
	Short
	Int
	Long
	String
	Date
	Version
	Container
)

func (k Kind) String() string {
	switch k {
	case Byte:
		return "byte"
	case Bool:
		return "bool"
	case Short:
		return "short"
	case Int:
		return "int"
	case Long:
		return "long"
	case String:
		return "string"
	case Date:
		return "date"
	case Version:
		return "version"
	case Container:
		return "container"
	}
	return "invalid"
}

// typeCode is the numeric type identifier sent in /content-codes
// ("mcty") for each Kind.
func (k Kind) typeCode() uint16 {
	switch k {
	case Byte, Bool:
		return 1
	case Short:
		return 3
	case Int:
		return 5
	case Long:
		return 7
	case String:
		return 9
	case Date:
		return 10
	case Version:
		return 11
	case Container:
		return 12
	}
	return 0
}

// width is the fixed payload width of a scalar kind, or -1 for
// variable-length kinds.
func (k Kind) width() int {
	switch k {
	case Byte, Bool:
		return 1
	case Short:
		return 2
	case Int, Date, Version:
		return 4
	case Long:
		return 8
	}
	return -1
}

// Chunk is one node of the wire tree. Exactly one of the value fields
// is meaningful, selected by Kind: Value for scalar kinds, Str for
// String, Kids for Container. A nil Str is distinct from an empty
// string and encodes as a zero-length payload.
type Chunk struct {
	Tag  string // the 4-character content code
	Kind Kind

	Value uint64
	Str   *string
	Kids  []*Chunk
}

// NewByte returns a byte chunk.
func NewByte(tag string, v uint8) *Chunk {
	return &Chunk{Tag: tag, Kind: Byte, Value: uint64(v)}
}

// NewBool returns a boolean chunk. A false chunk occupies zero bytes
// on the wire: encoding omits it entirely.
func NewBool(tag string, v bool) *Chunk {
	c := &Chunk{Tag: tag, Kind: Bool}
	if v {
		c.Value = 1
	}
	return c
}

// NewShort returns a 16-bit chunk.
func NewShort(tag string, v uint16) *Chunk {
	return &Chunk{Tag: tag, Kind: Short, Value: uint64(v)}
}

// NewInt returns a 32-bit chunk.
func NewInt(tag string, v uint32) *Chunk {
	return &Chunk{Tag: tag, Kind: Int, Value: uint64(v)}
}

// NewLong returns a 64-bit chunk.
func NewLong(tag string, v uint64) *Chunk {
	return &Chunk{Tag: tag, Kind: Long, Value: v}
}

// NewString returns a string chunk holding s.
func NewString(tag string, s string) *Chunk {
	return &Chunk{Tag: tag, Kind: String, Str: &s}
}

// NewNullString returns a string chunk with no value. It encodes as a
// zero-length payload and decodes back to a nil Str.
func NewNullString(tag string) *Chunk {
	return &Chunk{Tag: tag, Kind: String}
}

// NewDate returns a date chunk carrying t as 32-bit epoch seconds.
func NewDate(tag string, t time.Time) *Chunk {
	var v uint64
	if !t.IsZero() {
		v = uint64(uint32(t.Unix()))
	}
	return &Chunk{Tag: tag, Kind: Date, Value: v}
}

// NewVersion returns a version chunk. The wire layout is
// major<<16 | minor<<8 | patch.
func NewVersion(tag string, major uint16, minor, patch uint8) *Chunk {
	v := uint64(major)<<16 | uint64(minor)<<8 | uint64(patch)
	return &Chunk{Tag: tag, Kind: Version, Value: v}
}

// NewContainer returns a container chunk holding kids in order.
func NewContainer(tag string, kids ...*Chunk) *Chunk {
	return &Chunk{Tag: tag, Kind: Container, Kids: kids}
}

// Add appends kids to a container, preserving insertion order, and
// returns the container for chaining. Clients are order-sensitive for
// some fields, so children are never reordered.
func (c *Chunk) Add(kids ...*Chunk) *Chunk {
	c.Kids = append(c.Kids, kids...)
	return c
}

// Bool reports the chunk's scalar value as a boolean.
func (c *Chunk) Bool() bool { return c.Value != 0 }

// StringValue returns the chunk's string payload, or "" if absent.
func (c *Chunk) StringValue() string {
	if c.Str == nil {
		return ""
	}
	return *c.Str
}

// Lookup returns the first direct child with the given tag, or nil.
func (c *Chunk) Lookup(tag string) *Chunk {
	for _, k := range c.Kids {
		if k.Tag == tag {
			return k
		}
	}
	return nil
}

// payloadSize returns the serialized payload length in bytes.
func (c *Chunk) payloadSize() int {
	switch c.Kind {
	case String:
		if c.Str == nil {
			return 0
		}
		return len(*c.Str)
	case Container:
		n := 0
		for _, k := range c.Kids {
			n += k.Size()
		}
		return n
	default:
		return c.Kind.width()
	}
}

// Size returns the full serialized size of the chunk, header included.
// A false boolean chunk is omitted from the wire and has size zero;
// this keeps the container invariant
//	container.Size() == 8 + sum(kid.Size())
// true at every level.
func (c *Chunk) Size() int {
	if c.Kind == Bool && c.Value == 0 {
		return 0
	}
	return 8 + c.payloadSize()
}

func (c *Chunk) String() string {
	switch c.Kind {
	case String:
		if c.Str == nil {
			return fmt.Sprintf("%s(%s)=<null>", c.Tag, c.Kind)
		}
		return fmt.Sprintf("%s(%s)=%q", c.Tag, c.Kind, *c.Str)
	case Container:
		return fmt.Sprintf("%s(%s)[%d kids]", c.Tag, c.Kind, len(c.Kids))
	default:
		return fmt.Sprintf("%s(%s)=%d", c.Tag, c.Kind, c.Value)
	}
}
