// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package errors

import (
	"testing"

	"github.com/rkapsi/daap/daap"
)

func TestSeparator(t *testing.T) {
	defer func(prev string) {
		Separator = prev
	}(Separator)
	Separator = ":: "

	// Single error.
	e1 := E("/databases/1/items", "ServeSongs", IO, Str("network unreachable"))

	// Nested error.
	e2 := E("/databases/1/items", daap.SessionID(42), "ServeHTTP", Other, e1)

	want := "/databases/1/items, session 42: ServeHTTP: I/O error:: ServeSongs: network unreachable"
	if got := e2.Error(); got != want {
		t.Errorf("expected %q; got %q", want, got)
	}
}

func TestDoesNotChangePreviousError(t *testing.T) {
	err := E(Permission)
	err2 := E("/update", "ServeUpdate", err)
	expected := "/update: ServeUpdate: permission denied"
	if err2.Error() != expected {
		t.Fatalf("Expected %q, got %q", expected, err2)
	}
	kind := err.(*Error).Kind
	if kind != Permission {
		t.Fatalf("Expected kind %v, got %v", Permission, kind)
	}
}

func TestNoArgs(t *testing.T) {
	defer func() {
		if recover() != nil {
			t.Fatal("E() panicked")
		}
	}()
	if err := E(); err != nil {
		t.Fatalf("E() = %v, want nil", err)
	}
}

type matchTest struct {
	err1, err2 error
	matched    bool
}

const (
	op  = "Op"
	op1 = "Op1"
	op2 = "Op2"
)

var matchTests = []matchTest{
	// Errors not of type *Error fail outright.
	{nil, nil, false},
	{Str("something"), Str("something"), false},
	{E(op, Protocol, Str("something")), Str("something"), false},
	{Str("something"), E(op, Protocol, Str("something")), false},
	// Success. We can drop fields from the first argument and still match.
	{E(op, Protocol, Str("something")), E(op, Protocol, Str("something")), true},
	{E(op, Protocol), E(op, Protocol, Str("something")), true},
	{E(op), E(op, Protocol, Str("something")), true},
	{E(op, daap.SessionID(7)), E(op, daap.SessionID(7), Protocol, Str("something")), true},
	// Failure.
	{E(op1), E(op2), false},
	{E(op, Stale), E(op, Decode), false},
	{E(op, daap.SessionID(7)), E(op, daap.SessionID(8)), false},
	{E(op, Str("something")), E(op, Str("something else")), false},
	{E("/databases"), E("/update"), false},
	// Nested *Errors.
	{E(op1, E(op2)), E(op1, Str(E(op2).Error())), false},
	{E(op1, E(op2)), E(op1, E(op2, Str("something"))), true},
}

func TestMatch(t *testing.T) {
	for _, test := range matchTests {
		matched := Match(test.err1, test.err2)
		if matched != test.matched {
			t.Errorf("Match(%q, %q)=%t; want %t", test.err1, test.err2, matched, test.matched)
		}
	}
}

func TestIs(t *testing.T) {
	if Is(Transaction, nil) {
		t.Error("Is(Transaction, nil) = true; want false")
	}
	if Is(Transaction, Str("boom")) {
		t.Error("Is on plain error = true; want false")
	}
	if !Is(Transaction, E(op, Transaction)) {
		t.Error("Is(Transaction) = false; want true")
	}
	// Kind is pulled up from a nested error.
	if !Is(Stale, E(op1, E(op2, Stale))) {
		t.Error("Is did not find nested kind")
	}
	if Is(Stale, E(op, Decode)) {
		t.Error("Is matched the wrong kind")
	}
}
