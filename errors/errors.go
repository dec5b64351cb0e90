// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errors defines the error handling used by all of the DAAP server.
package errors

import (
	"bytes"
	"fmt"

	"github.com/rkapsi/daap/daap"
)

// Error is the type that implements the error interface.
// It contains a number of fields, each of different type.
// An Error value may leave some values unset.
type Error struct {
	// Path is the request path of the item being accessed, if any.
	Path string
	// Session is the DAAP session on whose behalf the operation ran.
	Session daap.SessionID
	// Op is the operation being performed, usually the name of the method
	// being invoked (ServeUpdate, Commit, etc.).
	Op string
	// Kind is the class of error, such as a protocol violation,
	// or "Other" if its class is unknown or irrelevant.
	Kind Kind
	// The underlying error that triggered this one, if any.
	Err error
}

var (
	_       error = (*Error)(nil)
	zeroErr Error
)

// Separator is the string used to separate nested errors. By
// default, to make errors easier on the eye, nested errors are
// indented on a new line. A server may instead choose to keep each
// error on a single line by modifying the separator string, perhaps
// to ":: ".
var Separator = ":\n\t"

// Kind defines the kind of error this is, mostly for use by the
// connection layer, which must act differently depending on the error:
// some errors are answered with a status chunk, others force a disconnect.
type Kind uint8

// Kinds of errors.
const (
	Other       Kind = iota // Unclassified error. This value is not printed in the error message.
	Invalid                 // Invalid operation for this type of item.
	Protocol                // Malformed request line, path or parameters. Fatal to the connection.
	Decode                  // Malformed inbound chunk stream. Fatal to the parse.
	Transaction             // Transaction misuse: not open, reused, or nested.
	Permission              // Authentication failed or missing.
	NotExist                // Item does not exist.
	Exist                   // Item already exists.
	Stale                   // Revision no longer retained; the client fell too far behind.
	Unsupported             // Request is recognized but intentionally not implemented.
	IO                      // External I/O error such as network failure.
	Broken                  // Benign mid-stream client reset; expected during playback.
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case Invalid:
		return "invalid operation"
	case Protocol:
		return "protocol violation"
	case Decode:
		return "chunk decode error"
	case Transaction:
		return "transaction misuse"
	case Permission:
		return "permission denied"
	case NotExist:
		return "item does not exist"
	case Exist:
		return "item already exists"
	case Stale:
		return "stale revision"
	case Unsupported:
		return "unsupported request"
	case IO:
		return "I/O error"
	case Broken:
		return "connection reset by client"
	}
	return "unknown error kind"
}

// E builds an error value from its arguments.
// The type of each argument determines its meaning.
// If more than one argument of a given type is presented,
// only the last one is recorded.
//
// The types are:
//	daap.SessionID
//		The session on whose behalf the operation ran.
//	string
//		Treated as the request path if it starts with a slash,
//		otherwise as the operation being performed.
//	errors.Kind
//		The class of error, such as a protocol violation.
//	error
//		The underlying error that triggered this one.
//
// If the error is printed, only those items that have been
// set to non-zero values will appear in the result.
//
// If Kind is not specified or Other, we set it to the Kind of
// the underlying error.
func E(args ...interface{}) error {
	if len(args) == 0 {
		return nil
	}
	e := &Error{}
	for _, arg := range args {
		switch arg := arg.(type) {
		case daap.SessionID:
			e.Session = arg
		case string:
			if len(arg) > 0 && arg[0] == '/' {
				e.Path = arg
				continue
			}
			e.Op = arg
		case Kind:
			e.Kind = arg
		case *Error:
			// Make a copy
			copy := *arg
			e.Err = &copy
		case error:
			e.Err = arg
		default:
			return Errorf("unknown type %T, value %v in error call", arg, arg)
		}
	}
	prev, ok := e.Err.(*Error)
	if !ok {
		return e
	}

	// The previous error was also one of ours. Suppress duplications
	// so the message won't contain the same kind, path or session twice.
	if prev.Path == e.Path {
		prev.Path = ""
	}
	if prev.Session == e.Session {
		prev.Session = 0
	}
	if prev.Kind == e.Kind {
		prev.Kind = Other
	}
	// If this error has Kind unset or Other, pull up the inner one.
	if e.Kind == Other {
		e.Kind = prev.Kind
		prev.Kind = Other
	}
	return e
}

// pad appends str to the buffer if the buffer already has some data.
func pad(b *bytes.Buffer, str string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(str)
}

func (e *Error) Error() string {
	b := new(bytes.Buffer)
	if e.Path != "" {
		b.WriteString(e.Path)
	}
	if e.Session != 0 {
		pad(b, ", ")
		fmt.Fprintf(b, "session %d", e.Session)
	}
	if e.Op != "" {
		pad(b, ": ")
		b.WriteString(e.Op)
	}
	if e.Kind != 0 {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		// Indent on new line if we are cascading non-empty chunk errors.
		if prevErr, ok := e.Err.(*Error); ok {
			if *prevErr != zeroErr {
				pad(b, Separator)
				b.WriteString(e.Err.Error())
			}
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

// Recreate the errors.New functionality of the standard Go errors package
// so we can create simple text errors when needed.

// Str returns an error that formats as the given text. It is intended to
// be used as the error-typed argument to the E function.
func Str(text string) error {
	return &errorString{text}
}

// errorString is a trivial implementation of error.
type errorString struct {
	s string
}

func (e *errorString) Error() string {
	return e.s
}

// Errorf is equivalent to fmt.Errorf, but allows clients to import only this
// package for all error handling.
func Errorf(format string, args ...interface{}) error {
	return &errorString{fmt.Sprintf(format, args...)}
}

// Match compares its two error arguments. It can be used to check
// for expected errors in tests. Both arguments must have underlying
// type *Error or Match will return false. Otherwise it returns true
// iff every non-zero element of the first error is equal to the
// corresponding element of the second.
// If the Err field is a *Error, Match recurs on that field;
// otherwise it compares the strings returned by the Error methods.
// Elements that are in the second argument but not present in
// the first are ignored.
func Match(err1, err2 error) bool {
	e1, ok := err1.(*Error)
	if !ok {
		return false
	}
	e2, ok := err2.(*Error)
	if !ok {
		return false
	}
	if e1.Path != "" && e2.Path != e1.Path {
		return false
	}
	if e1.Session != 0 && e2.Session != e1.Session {
		return false
	}
	if e1.Op != "" && e2.Op != e1.Op {
		return false
	}
	if e1.Kind != Other && e2.Kind != e1.Kind {
		return false
	}
	if e1.Err != nil {
		if _, ok := e1.Err.(*Error); ok {
			return Match(e1.Err, e2.Err)
		}
		if e2.Err == nil || e2.Err.Error() != e1.Err.Error() {
			return false
		}
	}
	return true
}

// Is reports whether err is an *Error of the given Kind.
// If err is nil then Is returns false.
func Is(kind Kind, err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	if e.Kind != Other {
		return e.Kind == kind
	}
	if e.Err != nil {
		return Is(kind, e.Err)
	}
	return false
}
