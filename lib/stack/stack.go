// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stack

import "sync/atomic"

// Frame is one entry of a call stack: the file (or module) name, the
// function name, and the line number of the active call site.
type Frame struct {
	File     string
	Function string
	Line     int
}

// Trace is the call stack of a single thread, ordered most recent call
// first: Frames[0] is the innermost callee, the last frame is the
// outermost caller.
type Trace struct {
	// ID is an opaque thread identifier. It is rendered in hexadecimal
	// in multi-thread dumps, so numerically ascending IDs produce a
	// stable display order.
	ID uint64

	// Current marks the thread that triggered the dump (or, for timer
	// dumps, the thread the source considers current).
	Current bool

	Frames []Frame
}

// Source produces call traces for the dump engines.
//
// Both methods are invoked from dump context. Once a handler is armed,
// implementations must not allocate, must not take locks shared with
// normal execution, and must never block: the triggering thread may be
// in an arbitrarily corrupted state and will not cooperate.
type Source interface {
	// CurrentTrace returns the trace of the current thread. The
	// boolean is false when no trace is available, in which case the
	// dump is skipped entirely.
	CurrentTrace() (Trace, bool)

	// Threads returns the traces of all live threads. The returned
	// slice is owned by the source and valid until the next snapshot
	// change; callers must not mutate it.
	Threads() []Trace
}

// Fixed is a Source backed by a pre-resolved snapshot. The host
// publishes traces with Set from normal execution; dump context only
// ever loads the current snapshot pointer. This is the single-writer /
// many-reader discipline: a snapshot swap is one atomic pointer store,
// never a multi-step mutation observable half-done.
type Fixed struct {
	snapshot atomic.Pointer[[]Trace]
}

// NewFixed returns a Fixed source holding the given traces.
func NewFixed(traces ...Trace) *Fixed {
	fixed := &Fixed{}
	fixed.Set(traces...)
	return fixed
}

// Set replaces the snapshot. Call only from normal execution, never
// from a handler. Concurrent readers see either the old or the new
// snapshot, never a mixture.
func (f *Fixed) Set(traces ...Trace) {
	f.snapshot.Store(&traces)
}

// CurrentTrace returns the trace marked Current, or the first trace
// when none is marked. Returns false when the snapshot is empty.
func (f *Fixed) CurrentTrace() (Trace, bool) {
	traces := *f.snapshot.Load()
	for _, trace := range traces {
		if trace.Current {
			return trace, true
		}
	}
	if len(traces) == 0 {
		return Trace{}, false
	}
	return traces[0], true
}

// Threads returns the current snapshot.
func (f *Fixed) Threads() []Trace {
	return *f.snapshot.Load()
}
