// Package shmlock implements a mutex whose entire state is one 32-bit word in
// shared memory, so that every process mapping the word contends on the same
// lock. It is not reentrant and has no owner tracking: a process that dies
// while holding the lock leaves it held.
//
// The word moves between three states: 0 (free), 1 (held) and 2 (held, and
// somebody may be sleeping on it). Unlock only pays for a wake-up in state 2.
package shmlock

import (
	"errors"
	"runtime"
	"sync/atomic"
	"unsafe"
)

const (
	unlocked  uint32 = 0
	locked    uint32 = 1
	contended uint32 = 2

	// spinRounds is how often Lock yields before it starts sleeping.
	spinRounds = 32
)

var (
	// ErrMisaligned indicates the lock word is not 4-byte aligned.
	ErrMisaligned = errors.New("shmlock: lock word not 4-byte aligned")
	// ErrOutOfRange indicates the lock word lies outside the buffer.
	ErrOutOfRange = errors.New("shmlock: lock word outside buffer")
)

// Mutex is a process-shared mutex. The zero value is not usable; obtain one
// with At. Counters are local to this process.
type Mutex struct {
	word *uint32

	acquired  atomic.Int64
	contended atomic.Int64
	sleeps    atomic.Int64
}

// Stats are this process's view of how the lock behaved.
type Stats struct {
	Acquired  int64 // successful Lock calls
	Contended int64 // Lock calls that missed the fast path
	Sleeps    int64 // times a waiter went to sleep
}

// At returns a Mutex over the 4 bytes at b[off:]. b must stay mapped for the
// lifetime of the Mutex.
func At(b []byte, off int) (*Mutex, error) {
	if off < 0 || off+4 > len(b) {
		return nil, ErrOutOfRange
	}
	p := unsafe.Pointer(&b[off])
	if uintptr(p)%4 != 0 {
		return nil, ErrMisaligned
	}
	return &Mutex{word: (*uint32)(p)}, nil
}

// Reset forces the word to the unlocked state. Only call it while no other
// process can reach the word, i.e. while formatting a fresh segment.
func (m *Mutex) Reset() {
	atomic.StoreUint32(m.word, unlocked)
}

// TryLock acquires the lock if it is free and reports whether it did.
func (m *Mutex) TryLock() bool {
	if atomic.CompareAndSwapUint32(m.word, unlocked, locked) {
		m.acquired.Add(1)
		return true
	}
	return false
}

// Lock acquires the lock, sleeping if necessary.
func (m *Mutex) Lock() {
	if m.TryLock() {
		return
	}
	m.lockSlow()
}

func (m *Mutex) lockSlow() {
	m.contended.Add(1)
	for range spinRounds {
		runtime.Gosched()
		if atomic.LoadUint32(m.word) == unlocked && m.TryLock() {
			return
		}
	}
	// Marking the word contended before sleeping guarantees the holder's
	// Unlock will wake someone.
	for atomic.SwapUint32(m.word, contended) != unlocked {
		m.sleeps.Add(1)
		wait(m.word, contended)
	}
	m.acquired.Add(1)
}

// Unlock releases the lock. Unlocking a free lock panics.
func (m *Mutex) Unlock() {
	switch atomic.SwapUint32(m.word, unlocked) {
	case unlocked:
		panic("shmlock: unlock of unlocked mutex")
	case contended:
		wake(m.word, 1)
	}
}

// Held reports whether some process currently holds the lock.
func (m *Mutex) Held() bool {
	return atomic.LoadUint32(m.word) != unlocked
}

// Stats returns this process's counters.
func (m *Mutex) Stats() Stats {
	return Stats{
		Acquired:  m.acquired.Load(),
		Contended: m.contended.Load(),
		Sleeps:    m.sleeps.Load(),
	}
}
