//go:build linux

package shmlock

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Shared (non-private) futex operations: the word lives in memory mapped by
// several processes, so the kernel must key waiters on the physical page.
const (
	futexWait = 0
	futexWake = 1
)

// waitTimeout bounds a single sleep. Lock re-checks the word after every
// wake-up, so a timeout only costs a loop iteration.
const waitTimeout = 100 * time.Millisecond

func wait(addr *uint32, val uint32) {
	ts := unix.NsecToTimespec(int64(waitTimeout))
	_, _, _ = unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWait,
		uintptr(val),
		uintptr(unsafe.Pointer(&ts)),
		0,
		0,
	)
}

func wake(addr *uint32, n int) {
	_, _, _ = unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWake,
		uintptr(n),
		0,
		0,
		0,
	)
}
