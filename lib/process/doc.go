// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers. It centralizes
// the one legitimate raw-stderr pattern in crashtrace binaries: fatal
// error reporting from main() before the structured logger exists (or
// after it is gone).
package process
