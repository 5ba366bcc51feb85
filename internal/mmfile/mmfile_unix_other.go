//go:build unix && !linux

package mmfile

func hugeAnonFlags() (int, error) {
	return 0, ErrHugePagesUnsupported
}

func adviseHuge([]byte) error {
	return ErrHugePagesUnsupported
}
