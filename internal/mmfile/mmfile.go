// Package mmfile provisions the shared memory regions a segment lives in:
// read/write MAP_SHARED mappings of a backing file, or anonymous shared
// mappings for single-process use.
package mmfile

import (
	"errors"
	"os"
)

var (
	// ErrUnsupported indicates the platform cannot share a mapping between processes.
	ErrUnsupported = errors.New("mmfile: shared mappings not supported on this platform")

	// ErrHugePagesUnsupported indicates huge pages were requested where they are unavailable.
	ErrHugePagesUnsupported = errors.New("mmfile: huge pages not supported on this platform")

	// ErrSize indicates a zero, negative or unmappable region size.
	ErrSize = errors.New("mmfile: invalid region size")

	// ErrClosed indicates an operation on an unmapped region.
	ErrClosed = errors.New("mmfile: region closed")
)

// Options are forwarded from the segment configuration.
type Options struct {
	// HugePages asks for large-page backing: MAP_HUGETLB for anonymous
	// regions, MADV_HUGEPAGE for file-backed ones.
	HugePages bool
}

// Region is one mapping of a shared region in this process.
type Region struct {
	data  []byte
	f     *os.File
	path  string
	unmap func([]byte) error
}

// Bytes returns the mapped bytes. The slice is invalid after Close.
func (r *Region) Bytes() []byte { return r.data }

// Size returns the mapped length.
func (r *Region) Size() int { return len(r.data) }

// Path returns the backing file path, or "" for anonymous regions.
func (r *Region) Path() string { return r.path }

// Close unmaps the region and closes the backing file. Closing twice is a no-op.
func (r *Region) Close() error {
	if r == nil || r.data == nil {
		return nil
	}
	data := r.data
	r.data = nil

	var err error
	if r.unmap != nil {
		err = r.unmap(data)
	}
	if r.f != nil {
		if cerr := r.f.Close(); err == nil {
			err = cerr
		}
		r.f = nil
	}
	return err
}

// Remove deletes the backing file. Existing mappings stay valid until closed.
func (r *Region) Remove() error {
	if r.path == "" {
		return nil
	}
	err := os.Remove(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func checkSize(size int64) error {
	if size <= 0 || size > int64(^uint(0)>>1) {
		return ErrSize
	}
	return nil
}
