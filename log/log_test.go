// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	SetLevel("info")
	if Level() != "info" {
		t.Fatalf("Expected %q, got %q", "info", Level())
	}
	Debug.Println("log line1")      // not logged
	Info.Print("log line2")         // logged
	Error.Printf("hello: %s", "log line3") // logged

	out := buf.String()
	if strings.Contains(out, "log line1") {
		t.Errorf("debug line logged at info level: %q", out)
	}
	if !strings.Contains(out, "log line2") || !strings.Contains(out, "hello: log line3") {
		t.Errorf("missing expected log lines in %q", out)
	}
}

func TestDisable(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	SetLevel("debug")
	Debug.Printf("Starting server...")
	SetLevel("disabled")
	Error.Printf("Important stuff you'll miss!")

	out := buf.String()
	if !strings.Contains(out, "Starting server...") {
		t.Errorf("debug line not logged at debug level: %q", out)
	}
	if strings.Contains(out, "Important stuff") {
		t.Errorf("line logged while disabled: %q", out)
	}
}

func TestAt(t *testing.T) {
	SetLevel("info")

	if At("debug") {
		t.Errorf("Debug is expected to be disabled when level is info")
	}
	if !At("error") {
		t.Errorf("Error is expected to be enabled when level is info")
	}
}

func TestBadLevel(t *testing.T) {
	if err := SetLevel("chatty"); err == nil {
		t.Error("SetLevel accepted a bogus level")
	}
}
