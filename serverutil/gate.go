// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package serverutil provides helpers for implementing network servers.
package serverutil

import (
	"sync"
	"time"
)

// Gate slows down remote addresses that keep failing to authenticate.
// Each failure doubles the time the address must stay quiet before it
// may try again, up to Max; an address quiet for longer than Max starts
// over at Backoff.
type Gate struct {
	// Backoff is the initial quiet period imposed after the first
	// failure from an address.
	Backoff time.Duration

	// Max caps the quiet period and is the horizon after which an
	// address is forgotten.
	Max time.Duration

	mu sync.Mutex
	// Tracked addresses, oldest first; the map indexes into the slice.
	order []*offender
	m     map[string]*offender
}

// offender is one remote address with a failed attempt on record.
type offender struct {
	addr    string
	index   int
	seen    time.Time
	backoff time.Duration
}

// Pass records a failed attempt from addr and reports whether the
// caller may proceed: true while addr is within its allowance, false
// while it must stay quiet. The zero Gate passes everything.
func (g *Gate) Pass(addr string) bool {
	return g.pass(time.Now(), addr)
}

func (g *Gate) pass(now time.Time, addr string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.m == nil {
		g.m = map[string]*offender{}
	}

	o, ok := g.m[addr]
	if !ok {
		// First failure from this address: let it through and start
		// the clock.
		o = &offender{
			addr:    addr,
			index:   len(g.order),
			seen:    now,
			backoff: g.Backoff,
		}
		g.order = append(g.order, o)
		g.m[addr] = o
		return true
	}

	reset := o.seen.Add(g.Max)
	retry := o.seen.Add(o.backoff)
	switch {
	case now.After(reset):
		// Quiet long enough; forgiven back to the initial backoff.
		o.backoff = g.Backoff
	case now.After(retry):
		o.backoff *= 2
	default:
		return false
	}

	o.seen = now
	// Move to the end of the slice to keep it ordered by last failure.
	i := o.index
	copy(g.order[i:], g.order[i+1:])
	g.order[len(g.order)-1] = o

	// Drop addresses whose last failure is past the horizon.
	expired := -1
	for j, x := range g.order {
		if !now.After(x.seen.Add(g.Max)) {
			break
		}
		delete(g.m, x.addr)
		expired = j
	}
	if expired >= 0 {
		g.order = g.order[expired+1:]
		for j := range g.order {
			g.order[j].index = j
		}
	} else {
		for j := range g.order[i:] {
			g.order[i+j].index = i + j
		}
	}

	return true
}
