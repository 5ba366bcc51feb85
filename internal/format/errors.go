package format

import "errors"

var (
	// ErrSignatureMismatch indicates the segment magic is missing or wrong.
	ErrSignatureMismatch = errors.New("format: signature mismatch")
	// ErrTruncated indicates the buffer lacked the bytes required for a structure.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrVersion indicates the segment was formatted with another layout version.
	ErrVersion = errors.New("format: unsupported layout version")
)
