// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fatal installs handlers for the fatal signal set (SIGSEGV,
// SIGABRT, SIGFPE, SIGBUS, SIGILL). On delivery it writes a
// "Fatal Python error: <reason>" header and the call traces to the
// configured descriptor, then re-raises the signal with its default
// disposition so the process terminates with the conventional status
// for that fault.
//
// State is process-wide: one enable configuration, swapped with a
// single atomic pointer store. Handlers only load the pointer, so
// Enable and Disable never race a delivery into a half-updated view.
//
// Signal delivery uses os/signal, the only mechanism Go supports for
// user code. Synchronous faults raised by Go code itself (a nil
// dereference in this process's own Go frames) become runtime panics
// before os/signal sees them; the engine covers faults raised
// asynchronously or by non-Go code in the process, which is the case
// that matters for hosts embedding a foreign runtime.
//
// Stack overflow reporting is best-effort: the Go runtime owns the
// alternate signal stacks and reserves overflow SIGSEGVs for itself,
// so an overflow degrades to "unable to report". Enable does not fail
// for it.
package fatal
