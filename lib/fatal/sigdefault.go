// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fatal

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// kernelSigaction mirrors the kernel's struct sigaction as consumed by
// rt_sigaction(2): handler, flags, restorer, then the signal mask. The
// zero value is SIG_DFL with an empty mask and no flags.
type kernelSigaction struct {
	handler  uintptr
	flags    uintptr
	restorer uintptr
	mask     uint64
}

// sigsetSize is the kernel signal mask size in bytes (64 signals).
const sigsetSize = 8

// restoreDefault installs SIG_DFL for sig at the kernel level. The Go
// runtime keeps its own handler installed for the fatal signal set
// even after signal.Reset, so a plain re-raise would land in the
// runtime's crash reporting and exit with status 2 rather than
// terminating the process with the signal's wait status. Installing
// the kernel default directly takes the runtime out of the path; the
// next delivery of sig kills the process.
func restoreDefault(sig syscall.Signal) {
	var action kernelSigaction
	unix.Syscall6(unix.SYS_RT_SIGACTION,
		uintptr(sig),
		uintptr(unsafe.Pointer(&action)),
		0,
		sigsetSize,
		0, 0)
}
