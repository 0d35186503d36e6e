// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"strings"
	"testing"
)

// Three-deep call chain with recognizable names. The calls go through
// package-level functions (not closures) so the function names in the
// captured frames are predictable.
func chainOuter(r *Runtime) (Trace, bool) { return chainMiddle(r) }
func chainMiddle(r *Runtime) (Trace, bool) { return chainInner(r) }
func chainInner(r *Runtime) (Trace, bool) { return r.CurrentTrace() }

func TestRuntimeCurrentTraceCallChain(t *testing.T) {
	source := NewRuntime(0)
	trace, ok := chainOuter(source)
	if !ok {
		t.Fatal("CurrentTrace failed")
	}
	if !trace.Current {
		t.Error("CurrentTrace should mark the trace Current")
	}
	if len(trace.Frames) < 3 {
		t.Fatalf("want at least 3 frames, got %d: %+v", len(trace.Frames), trace.Frames)
	}

	// Most recent call first: inner, middle, outer.
	wantOrder := []string{"chainInner", "chainMiddle", "chainOuter"}
	for i, want := range wantOrder {
		if !strings.Contains(trace.Frames[i].Function, want) {
			t.Errorf("frame %d function = %q, want it to contain %q", i, trace.Frames[i].Function, want)
		}
		if !strings.HasSuffix(trace.Frames[i].File, "runtime_test.go") {
			t.Errorf("frame %d file = %q, want runtime_test.go", i, trace.Frames[i].File)
		}
		if trace.Frames[i].Line < 1 {
			t.Errorf("frame %d line = %d, want >= 1", i, trace.Frames[i].Line)
		}
	}
}

func TestRuntimeCurrentTraceStripsCaptureFrames(t *testing.T) {
	source := NewRuntime(0)
	trace, ok := source.CurrentTrace()
	if !ok {
		t.Fatal("CurrentTrace failed")
	}
	if len(trace.Frames) == 0 {
		t.Fatal("no frames captured")
	}
	if strings.Contains(trace.Frames[0].Function, "lib/stack.(*Runtime).") {
		t.Errorf("first frame should be the caller, got %q", trace.Frames[0].Function)
	}
}

func TestRuntimeThreadsIncludesCurrent(t *testing.T) {
	source := NewRuntime(0)

	// Park a second goroutine so the all-goroutine capture has at
	// least two blocks.
	block := make(chan struct{})
	parked := make(chan struct{})
	go func() {
		close(parked)
		<-block
	}()
	<-parked
	defer close(block)

	traces := source.Threads()
	if len(traces) < 2 {
		t.Fatalf("want at least 2 goroutine traces, got %d", len(traces))
	}

	currentCount := 0
	for _, trace := range traces {
		if trace.Current {
			currentCount++
		}
		if trace.ID == 0 {
			t.Errorf("trace with zero goroutine ID: %+v", trace)
		}
	}
	if currentCount != 1 {
		t.Errorf("want exactly 1 current trace, got %d", currentCount)
	}
}

func TestParseGoroutineHeader(t *testing.T) {
	id, rest := parseGoroutineHeader("goroutine 42 [running]:\nmain.main()\n\t/src/main.go:10\n")
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
	if !strings.HasPrefix(rest, "main.main()") {
		t.Errorf("rest = %q, want the frame lines", rest)
	}

	if id, _ := parseGoroutineHeader("not a header"); id != 0 {
		t.Errorf("malformed header should yield id 0, got %d", id)
	}
}

func TestParseLocation(t *testing.T) {
	file, line, ok := parseLocation("\t/home/user/project/main.go:128 +0x45")
	if !ok || file != "/home/user/project/main.go" || line != 128 {
		t.Errorf("parseLocation = (%q, %d, %v)", file, line, ok)
	}

	file, line, ok = parseLocation("\t/src/app.go:7")
	if !ok || file != "/src/app.go" || line != 7 {
		t.Errorf("parseLocation without offset = (%q, %d, %v)", file, line, ok)
	}

	if _, _, ok := parseLocation("garbage"); ok {
		t.Error("garbage location should not parse")
	}
}

func TestTrimCallArguments(t *testing.T) {
	cases := []struct{ in, want string }{
		{"main.funcA(0xc000010, 0x2)", "main.funcA"},
		{"main.(*server).run(0xc000010)", "main.(*server).run"},
		{"main.main()", "main.main"},
		{"runtime.goexit", "runtime.goexit"},
	}
	for _, c := range cases {
		if got := trimCallArguments(c.in); got != c.want {
			t.Errorf("trimCallArguments(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
