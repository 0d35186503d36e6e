// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dump

import (
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/crashtrace/lib/stack"
)

const (
	// MaxNameLength caps file and function names. Longer names are cut
	// and marked with a trailing "...". The bound exists because the
	// dump path writes through fixed-size stack buffers.
	MaxNameLength = 500

	// MaxFrameDepth caps the frames written per thread. Deeper stacks
	// end with a "  ..." line.
	MaxFrameDepth = 100

	// MaxThreads caps the threads written per dump. Additional threads
	// are summarized as a "..." line.
	MaxThreads = 100
)

const stackCaption = "Stack (most recent call first):\n"

// writeAll writes data to fd, retrying on EINTR and on partial writes.
// Any other failure abandons the rest of the dump silently: diagnostic
// output is best-effort and must never raise from handler context.
func writeAll(fd int, data []byte) bool {
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n <= 0 {
			return false
		}
		data = data[n:]
	}
	return true
}

func writeString(fd int, text string) bool {
	// The compiler does not allocate for this conversion in a
	// non-escaping argument position; the bytes are read-only.
	return writeAll(fd, []byte(text))
}

// writeDecimal writes value in decimal with no padding. Negative
// values are written as 0: line numbers below 1 do not occur in valid
// frames, and the dump path never reports its own errors.
func writeDecimal(fd int, value int) {
	var buffer [20]byte
	if value < 0 {
		value = 0
	}
	position := len(buffer)
	for {
		position--
		buffer[position] = byte('0' + value%10)
		value /= 10
		if value == 0 {
			break
		}
	}
	writeAll(fd, buffer[position:])
}

// writeHex writes value as 16 lowercase hexadecimal digits, the width
// of a 64-bit thread identifier.
func writeHex(fd int, value uint64) {
	const digits = "0123456789abcdef"
	var buffer [16]byte
	for i := len(buffer) - 1; i >= 0; i-- {
		buffer[i] = digits[value&15]
		value >>= 4
	}
	writeAll(fd, buffer[:])
}

// writeName writes a file or function name, truncating at
// MaxNameLength with a trailing "..." marker. Empty names are written
// as "???" so the line layout stays parseable.
func writeName(fd int, name string) {
	if name == "" {
		writeString(fd, "???")
		return
	}
	if len(name) <= MaxNameLength {
		writeString(fd, name)
		return
	}
	writeString(fd, name[:MaxNameLength])
	writeString(fd, "...")
}

// writeFrame writes one frame line:
//
//	  File "<file>", line <N> in <function>
func writeFrame(fd int, frame stack.Frame) {
	writeString(fd, "  File \"")
	writeName(fd, frame.File)
	writeString(fd, "\", line ")
	writeDecimal(fd, frame.Line)
	writeString(fd, " in ")
	writeName(fd, frame.Function)
	writeString(fd, "\n")
}

// writeFrames writes the frame list of one trace, most recent call
// first, up to MaxFrameDepth.
func writeFrames(fd int, trace stack.Trace) {
	for depth, frame := range trace.Frames {
		if depth >= MaxFrameDepth {
			writeString(fd, "  ...\n")
			return
		}
		writeFrame(fd, frame)
	}
}

// Line writes one header line of text followed by a newline. The
// engines use it for fatal and timeout headers; it obeys the same
// best-effort write discipline as the rest of the package.
func Line(fd int, text string) {
	writeString(fd, text)
	writeString(fd, "\n")
}

// Traceback writes a single thread's trace preceded by the fixed
// caption:
//
//	Stack (most recent call first):
//	  File "...", line N in ...
//
// No thread label is written; labels belong to all-thread dumps.
func Traceback(fd int, trace stack.Trace) {
	writeString(fd, stackCaption)
	writeFrames(fd, trace)
}

// writeThreadLabel writes the one-line label preceding a thread block
// in an all-thread dump.
func writeThreadLabel(fd int, trace stack.Trace) {
	if trace.Current {
		writeString(fd, "Current thread 0x")
	} else {
		writeString(fd, "Thread 0x")
	}
	writeHex(fd, trace.ID)
	writeString(fd, " (most recent call first):\n")
}

// Threads writes every thread's trace: non-current threads first in
// ascending ID order, the current thread last, each block labeled and
// separated from the next by exactly one blank line. The ascending-ID
// order is the stable ordering contract for multi-thread dumps.
//
// Ordering is computed by repeated minimum selection over the slice so
// the handler path allocates nothing; the thread count is bounded by
// MaxThreads. Thread IDs are assumed unique; threads sharing an ID
// collapse into one block.
func Threads(fd int, traces []stack.Trace) {
	written := 0
	previousID := uint64(0)
	first := true

	for {
		// Select the non-current thread with the smallest ID not yet
		// written.
		selected := -1
		for i := range traces {
			if traces[i].Current {
				continue
			}
			if !first && traces[i].ID <= previousID {
				continue
			}
			if selected < 0 || traces[i].ID < traces[selected].ID {
				selected = i
			}
		}
		if selected < 0 {
			break
		}
		if written > 0 {
			writeString(fd, "\n")
		}
		if written >= MaxThreads {
			writeString(fd, "...\n")
			return
		}
		writeThreadLabel(fd, traces[selected])
		writeFrames(fd, traces[selected])
		previousID = traces[selected].ID
		first = false
		written++
	}

	for i := range traces {
		if !traces[i].Current {
			continue
		}
		if written > 0 {
			writeString(fd, "\n")
		}
		if written >= MaxThreads {
			writeString(fd, "...\n")
			return
		}
		writeThreadLabel(fd, traces[i])
		writeFrames(fd, traces[i])
		written++
		break
	}
}
