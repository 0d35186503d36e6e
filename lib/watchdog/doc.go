// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchdog arms a process-wide timer that dumps call traces if
// it expires before being cancelled. It exists to diagnose hangs: arm
// it before a section that must finish promptly, cancel it after, and
// a wedged process leaves a trace of where it was stuck.
//
// One watchdog is active at a time; re-arming replaces the previous
// configuration silently. With Repeat, the watchdog keeps dumping at
// each interval until cancelled, which turns a silent hang into a
// periodic heartbeat of stack traces.
//
// The timer uses the runtime's timer machinery via an injected
// [clock.Clock], so it shares no signal with the fatal or user-signal
// engines and tests drive expiry deterministically with a fake clock.
//
// Cancellation tolerates an expiry already in flight: after Cancel
// returns, at most one more dump may appear. That jitter is documented
// behavior, not an error.
package watchdog
