//go:build unix

package mmfile

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Create makes a new backing file of exactly size bytes and maps it shared.
// It fails if path already exists.
func Create(path string, size int64, opts Options) (*Region, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("mmfile: size backing file: %w", err)
	}
	r, err := mapFile(f, path, size, opts)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return r, nil
}

// Open maps an existing backing file shared, read/write.
func Open(path string, opts Options) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := checkSize(info.Size()); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes", err, path, info.Size())
	}
	return mapFile(f, path, info.Size(), opts)
}

// Anonymous maps size bytes of zeroed shared memory with no backing file.
// Only this process (and its goroutines) can reach it.
func Anonymous(size int64, opts Options) (*Region, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	flags := unix.MAP_SHARED | unix.MAP_ANON
	if opts.HugePages {
		huge, err := hugeAnonFlags()
		if err != nil {
			return nil, err
		}
		flags |= huge
	}
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, fmt.Errorf("mmfile: anonymous mmap: %w", err)
	}
	return &Region{data: data, unmap: munmap}, nil
}

func mapFile(f *os.File, path string, size int64, opts Options) (*Region, error) {
	data, err := unix.Mmap(
		int(f.Fd()),
		0,
		int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmfile: mmap %s: %w", path, err)
	}
	if opts.HugePages {
		if err := adviseHuge(data); err != nil {
			_ = munmap(data)
			_ = f.Close()
			return nil, err
		}
	}
	return &Region{data: data, f: f, path: path, unmap: munmap}, nil
}

// Sync flushes a file-backed region to its backing file.
func (r *Region) Sync() error {
	if r.data == nil {
		return ErrClosed
	}
	if r.f == nil {
		return nil
	}
	return unix.Msync(r.data, unix.MS_SYNC)
}

func munmap(data []byte) error {
	err := unix.Munmap(data)
	if errors.Is(err, unix.EINVAL) {
		// Treat double-unmap as no-op for callers.
		return nil
	}
	return err
}
