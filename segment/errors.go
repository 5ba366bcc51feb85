package segment

import "errors"

var (
	// ErrConfig indicates an invalid Config.
	ErrConfig = errors.New("segment: invalid configuration")

	// ErrNotFormatted indicates the region does not carry a segment header.
	ErrNotFormatted = errors.New("segment: region is not a formatted segment")

	// ErrTornDown indicates the last attachment already detached.
	ErrTornDown = errors.New("segment: segment was torn down")

	// ErrLayout indicates the header does not match the mapping or the limits
	// of this build.
	ErrLayout = errors.New("segment: header does not match mapping")

	// ErrInUse indicates other processes are still attached.
	ErrInUse = errors.New("segment: segment in use")

	// ErrDetached indicates use of a Segment after Detach.
	ErrDetached = errors.New("segment: already detached")
)
