//go:build !linux

package shmlock

import (
	"sync/atomic"
	"time"
)

// Without futexes, waiters poll the word with a short sleep.
const pollInterval = 50 * time.Microsecond

func wait(addr *uint32, val uint32) {
	if atomic.LoadUint32(addr) == val {
		time.Sleep(pollInterval)
	}
}

func wake(*uint32, int) {}
