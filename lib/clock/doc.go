// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction so timer-driven
// code can be tested deterministically.
//
// Production code accepts a Clock instead of calling time.Now,
// time.AfterFunc, or time.Sleep directly. Real() provides standard
// library behavior; Fake() provides a clock that advances only when
// Advance is called.
//
// The watchdog engine is the main consumer: its tests register a timer
// through a FakeClock, synchronize on WaitForTimers, and fire it with
// Advance, with no wall-clock sleeps and no timing races.
package clock
