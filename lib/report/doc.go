// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package report persists a captured set of call traces as a
// post-mortem artifact: a CBOR-encoded report inside a zstd frame,
// prefixed with a BLAKE3 digest that Read verifies before decoding.
//
// This is the normal-execution counterpart to the signal-safe dump
// path: it allocates freely and must never be called from handler
// context. Typical producers are the explicit dump operation and
// supervisors that capture a hung child's watchdog output for later
// ingestion.
package report
