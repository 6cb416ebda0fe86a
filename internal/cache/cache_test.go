/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package cache

import (
	"testing"

	"github.com/friendsincode/timetile/internal/tile"
)

var k = tile.Key{X: 1, Y: 2, Level: 3}

type countingCancel struct{ n int }

func (c *countingCancel) Cancel() { c.n++ }

func entry(cancel tile.CancelHandle) func() (tile.Entry, bool) {
	return func() (tile.Entry, bool) {
		return tile.Entry{Future: tile.NewFuture(), Cancel: cancel}, true
	}
}

func TestLookupMissThenPresentThenGone(t *testing.T) {
	c := New()
	if _, ok := c.LookupAndRemove(0, k); ok {
		t.Fatal("expected miss on empty cache")
	}

	var made tile.Entry
	ok := c.InsertIfAbsent(0, k, func() (tile.Entry, bool) {
		made = tile.Entry{Future: tile.NewFuture(), Cancel: &countingCancel{}}
		return made, true
	})
	if !ok {
		t.Fatal("insert should succeed")
	}

	got, ok := c.LookupAndRemove(0, k)
	if !ok {
		t.Fatal("expected hit after insert")
	}
	if got.Future != made.Future {
		t.Fatal("lookup returned a different future")
	}
	if _, ok := c.LookupAndRemove(0, k); ok {
		t.Fatal("entry must not be handed out twice")
	}
	if len(c.Buckets()) != 0 {
		t.Fatalf("empty bucket should be dropped, have %v", c.Buckets())
	}
}

func TestInsertIfAbsentDedups(t *testing.T) {
	c := New()
	calls := 0
	mk := func() (tile.Entry, bool) {
		calls++
		return tile.Entry{Future: tile.NewFuture()}, true
	}

	if !c.InsertIfAbsent(1, k, mk) || !c.InsertIfAbsent(1, k, mk) {
		t.Fatal("both inserts should report success")
	}
	if calls != 1 {
		t.Fatalf("makeEntry called %d times, want 1", calls)
	}

	// Same key in another interval is independent.
	if !c.InsertIfAbsent(2, k, mk) {
		t.Fatal("insert into other interval should succeed")
	}
	if calls != 2 {
		t.Fatalf("makeEntry called %d times, want 2", calls)
	}
}

func TestInsertIfAbsentDeclined(t *testing.T) {
	c := New()
	ok := c.InsertIfAbsent(0, k, func() (tile.Entry, bool) { return tile.Entry{}, false })
	if ok {
		t.Fatal("declined makeEntry must report false")
	}
	if c.Contains(0, k) || c.Len(0) != 0 {
		t.Fatal("nothing may be cached for a declined fetch")
	}
}

func TestClearAndCancel(t *testing.T) {
	c := New()
	a, b, other := &countingCancel{}, &countingCancel{}, &countingCancel{}
	c.InsertIfAbsent(0, k, entry(a))
	c.InsertIfAbsent(0, tile.Key{X: 9, Y: 9, Level: 9}, entry(b))
	c.InsertIfAbsent(1, k, entry(other))

	if n := c.ClearAndCancel(0); n != 2 {
		t.Fatalf("ClearAndCancel cancelled %d entries, want 2", n)
	}
	if a.n != 1 || b.n != 1 {
		t.Fatalf("expected each cancel handle called once, got %d and %d", a.n, b.n)
	}
	if other.n != 0 {
		t.Fatal("other interval must be untouched")
	}
	if c.Len(0) != 0 || c.Contains(0, k) {
		t.Fatal("bucket 0 should be gone")
	}
	if !c.Contains(1, k) {
		t.Fatal("bucket 1 should remain")
	}

	if n := c.ClearAndCancel(-1); n != 0 {
		t.Fatalf("clearing a missing bucket cancelled %d entries", n)
	}
}

func TestClearAll(t *testing.T) {
	c := New()
	a, b := &countingCancel{}, &countingCancel{}
	c.InsertIfAbsent(0, k, entry(a))
	c.InsertIfAbsent(3, k, entry(b))
	c.InsertIfAbsent(4, k, entry(nil))

	if n := c.ClearAll(); n != 3 {
		t.Fatalf("ClearAll cancelled %d, want 3", n)
	}
	if a.n != 1 || b.n != 1 {
		t.Fatal("every handle should be cancelled")
	}
	if len(c.Buckets()) != 0 {
		t.Fatal("no buckets should remain")
	}
}
