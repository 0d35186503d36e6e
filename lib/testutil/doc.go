// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides small test helpers shared across crashtrace
// packages: channel operations with timeout safety valves, and polling
// for output files written asynchronously by signal handlers.
package testutil
