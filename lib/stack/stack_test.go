// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stack

import "testing"

func TestFixedCurrentTrace(t *testing.T) {
	source := NewFixed(
		Trace{ID: 1, Frames: []Frame{{File: "a", Function: "f", Line: 1}}},
		Trace{ID: 2, Current: true, Frames: []Frame{{File: "b", Function: "g", Line: 2}}},
	)

	trace, ok := source.CurrentTrace()
	if !ok {
		t.Fatal("CurrentTrace should find the trace marked Current")
	}
	if trace.ID != 2 {
		t.Errorf("CurrentTrace ID = %d, want 2", trace.ID)
	}
}

func TestFixedCurrentTraceFallsBackToFirst(t *testing.T) {
	source := NewFixed(
		Trace{ID: 5, Frames: []Frame{{File: "a", Function: "f", Line: 1}}},
	)
	trace, ok := source.CurrentTrace()
	if !ok || trace.ID != 5 {
		t.Errorf("CurrentTrace = (%v, %v), want trace 5", trace.ID, ok)
	}
}

func TestFixedEmpty(t *testing.T) {
	source := NewFixed()
	if _, ok := source.CurrentTrace(); ok {
		t.Error("empty source should report no current trace")
	}
	if threads := source.Threads(); len(threads) != 0 {
		t.Errorf("empty source Threads = %d entries, want 0", len(threads))
	}
}

func TestFixedSetReplacesSnapshot(t *testing.T) {
	source := NewFixed(Trace{ID: 1})
	source.Set(Trace{ID: 2}, Trace{ID: 3})

	threads := source.Threads()
	if len(threads) != 2 || threads[0].ID != 2 || threads[1].ID != 3 {
		t.Errorf("Threads after Set = %+v, want IDs 2, 3", threads)
	}
}
