// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package stack defines the call-frame data model consumed by the dump
// engines: a [Frame] is one call site, a [Trace] is the ordered frame
// list of one thread, and a [Source] produces traces on demand.
//
// The frame information itself comes from the host. A runtime embedding
// an interpreter resolves frames from the interpreter's own thread
// state and publishes them through a [Fixed] source; pure-Go hosts can
// use [Runtime], which samples goroutine stacks.
//
// Sources are read from dump context, which may run while the process
// is in a corrupted state. The [Source] contract therefore requires
// that, once a handler is armed, producing traces performs no heap
// allocation and takes no locks that normal execution could be holding.
// [Fixed] honors this strictly; [Runtime] is best-effort and documents
// its exceptions.
package stack
