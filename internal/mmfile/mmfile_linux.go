//go:build linux

package mmfile

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func hugeAnonFlags() (int, error) {
	return unix.MAP_HUGETLB, nil
}

// adviseHuge asks the kernel to back a shared file mapping with transparent
// huge pages. tmpfs honours this when shmem_enabled allows advice.
func adviseHuge(data []byte) error {
	if err := unix.Madvise(data, unix.MADV_HUGEPAGE); err != nil {
		return fmt.Errorf("mmfile: madvise hugepage: %w", err)
	}
	return nil
}
