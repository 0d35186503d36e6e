// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dump formats call traces and writes them to a file
// descriptor with nothing but write(2). It is the output stage shared
// by the fatal, watchdog, and user-signal engines, and it runs while
// the process may be dying: no heap allocation, no buffered writers,
// no locks, no locale-aware formatting. Numbers are rendered into
// fixed-size stack buffers and written directly.
//
// Write failures are swallowed. A dump is best-effort diagnostic
// output; a closed descriptor or a full disk must never turn a crash
// report into a second crash.
//
// The textual layout is byte-compatible with CPython's faulthandler
// module, so tooling that already parses faulthandler output consumes
// these dumps unchanged.
package dump
