// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"runtime"
	"strings"
	"sync"
)

// DefaultRuntimeBufferSize is the default capture buffer for Runtime
// sources. 1 MB holds several hundred goroutines of typical depth.
const DefaultRuntimeBufferSize = 1 << 20

// Runtime is a Source that samples the Go scheduler's goroutines via
// runtime.Stack. It exists for pure-Go hosts and development tooling;
// runtimes embedding an interpreter should publish interpreter frames
// through a Fixed source instead.
//
// Runtime is best-effort, not strictly async-signal-safe: the capture
// buffer and frame storage are pre-sized at construction, but parsing
// the runtime's text format performs one string conversion per dump,
// and an internal mutex serializes concurrent dumps. If the Go runtime
// itself is wedged, runtime.Stack may not return; the fatal engine's
// re-raise still terminates the process in that case because the signal
// is left reset to its default disposition.
type Runtime struct {
	mu     sync.Mutex
	buf    []byte
	header []byte
	traces []Trace
	frames []Frame
}

// NewRuntime returns a Runtime source with a capture buffer of the
// given size. Sizes <= 0 use DefaultRuntimeBufferSize. All storage is
// allocated here, before any handler is armed.
func NewRuntime(bufferSize int) *Runtime {
	if bufferSize <= 0 {
		bufferSize = DefaultRuntimeBufferSize
	}
	return &Runtime{
		buf:    make([]byte, bufferSize),
		header: make([]byte, 64),
		traces: make([]Trace, 0, 128),
		frames: make([]Frame, 0, 1024),
	}
}

// CurrentTrace captures the calling goroutine's stack. Frames
// belonging to this package (the capture call itself) are stripped so
// the trace starts at the caller.
func (r *Runtime) CurrentTrace() (Trace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	length := runtime.Stack(r.buf, false)
	r.traces = r.traces[:0]
	r.frames = r.frames[:0]
	r.parse(string(r.buf[:length]), r.currentGoroutineID())
	if len(r.traces) == 0 {
		return Trace{}, false
	}
	trace := r.traces[0]
	trace.Current = true
	for len(trace.Frames) > 0 && strings.Contains(trace.Frames[0].Function, "lib/stack.(*Runtime).") {
		trace.Frames = trace.Frames[1:]
	}
	return trace, true
}

// Threads captures every goroutine. The goroutine that called Threads
// is marked Current. The returned slice is valid until the next capture
// on this source.
func (r *Runtime) Threads() []Trace {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentID := r.currentGoroutineID()
	length := runtime.Stack(r.buf, true)
	r.traces = r.traces[:0]
	r.frames = r.frames[:0]
	r.parse(string(r.buf[:length]), currentID)
	return r.traces
}

// currentGoroutineID reads the calling goroutine's ID from a one-line
// stack header ("goroutine N [state]:"). Must hold r.mu.
func (r *Runtime) currentGoroutineID() uint64 {
	length := runtime.Stack(r.header, false)
	id, _ := parseGoroutineHeader(string(r.header[:length]))
	return id
}

// parse converts runtime.Stack output into traces, appending to
// r.traces and storing frames in r.frames. Goroutine blocks are
// separated by blank lines; each block is a header line followed by
// function/location line pairs. The trailing "created by" origin is
// skipped: it is not an active call frame.
func (r *Runtime) parse(text string, currentID uint64) {
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		id, rest := parseGoroutineHeader(block)
		if rest == "" {
			continue
		}

		start := len(r.frames)
		lines := strings.Split(rest, "\n")
		for i := 0; i+1 < len(lines); i += 2 {
			function := lines[i]
			location := lines[i+1]
			if strings.HasPrefix(function, "created by ") {
				break
			}
			file, line, ok := parseLocation(location)
			if !ok {
				continue
			}
			r.frames = append(r.frames, Frame{
				File:     file,
				Function: trimCallArguments(function),
				Line:     line,
			})
		}

		r.traces = append(r.traces, Trace{
			ID:      id,
			Current: id == currentID,
			Frames:  r.frames[start:len(r.frames):len(r.frames)],
		})
	}
}

// parseGoroutineHeader splits "goroutine N [state]:\n..." into the
// goroutine ID and the remaining lines. Returns id 0 and an empty rest
// when the text does not start with a goroutine header.
func parseGoroutineHeader(text string) (uint64, string) {
	const prefix = "goroutine "
	if !strings.HasPrefix(text, prefix) {
		return 0, ""
	}
	text = text[len(prefix):]
	var id uint64
	var i int
	for i < len(text) && text[i] >= '0' && text[i] <= '9' {
		id = id*10 + uint64(text[i]-'0')
		i++
	}
	if i == 0 {
		return 0, ""
	}
	newline := strings.IndexByte(text, '\n')
	if newline < 0 {
		return id, ""
	}
	return id, text[newline+1:]
}

// parseLocation extracts file and line from a runtime.Stack location
// line of the form "\t/path/file.go:123 +0x45" (the offset suffix is
// optional).
func parseLocation(line string) (string, int, bool) {
	line = strings.TrimSpace(line)
	if space := strings.IndexByte(line, ' '); space >= 0 {
		line = line[:space]
	}
	colon := strings.LastIndexByte(line, ':')
	if colon <= 0 {
		return "", 0, false
	}
	number := 0
	digits := line[colon+1:]
	if digits == "" {
		return "", 0, false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return "", 0, false
		}
		number = number*10 + int(digits[i]-'0')
	}
	return line[:colon], number, true
}

// trimCallArguments strips the trailing argument list from a function
// line: "main.(*server).run(0xc000010, 0x2)" becomes
// "main.(*server).run". The argument list is the final parenthesized
// group; earlier parentheses belong to method receivers.
func trimCallArguments(function string) string {
	open := strings.LastIndexByte(function, '(')
	if open <= 0 {
		return function
	}
	// A receiver's parenthesis is followed by more of the name; the
	// argument list runs to the end of the line.
	if !strings.HasSuffix(function, ")") {
		return function
	}
	if function[open-1] == '.' {
		// "(...)" directly after a dot is a receiver, not arguments.
		return function
	}
	return function[:open]
}
