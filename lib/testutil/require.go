// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"strings"
	"time"
)

// failer is the subset of testing.T these helpers need.
type failer interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from ch within timeout, or fails the
// test. Encapsulates the timeout safety valve so tests do not sprinkle
// raw time.After calls.
func RequireReceive[T any](t failer, ch <-chan T, timeout time.Duration, message string) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without sending a value: %s", message)
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, message)
	}
	panic("unreachable")
}

// RequireClosed waits for ch to be closed (or to receive a value)
// within timeout, or fails the test.
func RequireClosed(t failer, ch <-chan struct{}, timeout time.Duration, message string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for channel close: %s", timeout, message)
	}
}

// WaitForFileContaining polls path until its contents include substr,
// or fails the test after timeout. Signal-driven dumps land on disk
// asynchronously; polling with a deadline is the only synchronization
// available to an outside observer.
func WaitForFileContaining(t failer, path, substr string, timeout time.Duration) string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		data, err := os.ReadFile(path)
		if err == nil && strings.Contains(string(data), substr) {
			return string(data)
		}
		if time.Now().After(deadline) {
			t.Fatalf("file %s did not contain %q within %v; last contents:\n%s", path, substr, timeout, data)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
