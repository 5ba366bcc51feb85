//go:build !unix

package mmfile

// Create is unavailable without mmap.
func Create(path string, size int64, opts Options) (*Region, error) {
	return nil, ErrUnsupported
}

// Open is unavailable without mmap.
func Open(path string, opts Options) (*Region, error) {
	return nil, ErrUnsupported
}

// Anonymous returns heap memory. It is only shared between goroutines.
func Anonymous(size int64, opts Options) (*Region, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	if opts.HugePages {
		return nil, ErrHugePagesUnsupported
	}
	return &Region{data: make([]byte, size)}, nil
}

// Sync is a no-op for heap-backed regions.
func (r *Region) Sync() error {
	if r.data == nil {
		return ErrClosed
	}
	return nil
}
