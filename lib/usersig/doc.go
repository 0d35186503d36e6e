// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package usersig lets a host register trace dumping on arbitrary,
// non-fatal signals (SIGUSR1 is the classic choice: send it to a live
// process and read its stacks without disturbing it). Delivery dumps
// and returns; nothing is re-raised and the process keeps running.
//
// Registering a signal that already has a registration replaces it,
// capturing the prior entry. With Chain, delivery invokes the prior
// entry after its own dump, one level back per hop, with each hop
// honoring its own chain flag. Unregister restores the prior entry as
// the live
// registration, or, for the last entry, detaches entirely and lets the
// Go runtime restore the signal's prior disposition.
//
// Handlers installed elsewhere in the process through os/signal keep
// receiving the signal independently of this package: the runtime
// multiplexes delivery to every subscribed channel. Chain therefore
// only concerns registrations made through this package.
//
// Validation is synchronous: reserved (fatal-set) and uncatchable
// signals are rejected by Register, never discovered at delivery time.
// An unwritable output descriptor is accepted; write failures at dump
// time are swallowed by the trace writer.
package usersig
