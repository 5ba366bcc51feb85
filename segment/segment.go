package segment

import (
	"bytes"
	"fmt"

	"github.com/joshuapare/shmseg/internal/chunk"
	"github.com/joshuapare/shmseg/internal/format"
	"github.com/joshuapare/shmseg/internal/logger"
	"github.com/joshuapare/shmseg/internal/mmfile"
	"github.com/joshuapare/shmseg/internal/shmlock"
)

const (
	segFlagRemoveOnDetach = 0x2
	segFlagPersistent     = 0x4
)

// Segment is this process's attachment to a shared segment.
type Segment struct {
	region *mmfile.Region
	data   chunk.Space
	lock   *shmlock.Mutex

	// Immutable after formatting; cached so hot paths skip the header.
	size    uint64
	minBits int
	maxBits int
}

// Create makes a file-backed segment at path, formats it and attaches to it.
// path must not exist.
func Create(path string, cfg Config) (*Segment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	region, err := mmfile.Create(path, int64(cfg.SegmentSize), mmfile.Options{HugePages: cfg.HugePages})
	if err != nil {
		return nil, fmt.Errorf("segment: create %s: %w", path, err)
	}
	s, err := initialize(region, cfg)
	if err != nil {
		_ = region.Close()
		_ = region.Remove()
		return nil, err
	}
	logger.Info("segment created", "path", path, "size", cfg.SegmentSize,
		"usable", s.Usable(), "min_bits", cfg.MinBits, "max_bits", cfg.MaxBits)
	return s, nil
}

// New makes an anonymous segment. It can be shared between goroutines of this
// process only; Attach cannot reach it.
func New(cfg Config) (*Segment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	region, err := mmfile.Anonymous(int64(cfg.SegmentSize), mmfile.Options{HugePages: cfg.HugePages})
	if err != nil {
		return nil, fmt.Errorf("segment: anonymous region: %w", err)
	}
	s, err := initialize(region, cfg)
	if err != nil {
		_ = region.Close()
		return nil, err
	}
	return s, nil
}

// Attach maps an existing segment created by Create.
func Attach(path string) (*Segment, error) {
	region, err := mmfile.Open(path, mmfile.Options{})
	if err != nil {
		return nil, fmt.Errorf("segment: attach %s: %w", path, err)
	}
	s, err := bind(region)
	if err != nil {
		_ = region.Close()
		return nil, fmt.Errorf("segment: attach %s: %w", path, err)
	}

	// The creator may detach between our header check and here.
	s.lock.Lock()
	if !s.formatted() {
		s.lock.Unlock()
		_ = region.Close()
		return nil, fmt.Errorf("segment: attach %s: %w", path, ErrTornDown)
	}
	s.adjustAttached(1)
	s.lock.Unlock()

	logger.Info("segment attached", "path", path, "attached", s.Attached())
	return s, nil
}

// bind validates the header of a mapped region and wraps it.
func bind(region *mmfile.Region) (*Segment, error) {
	data := chunk.Space(region.Bytes())
	if len(data) < format.DataStart {
		return nil, fmt.Errorf("%w: %d bytes", format.ErrTruncated, len(data))
	}
	if !bytes.Equal(data[:format.SegMagicSize], format.SegmentMagic) {
		if bytes.Equal(data[:format.SegMagicSize], make([]byte, format.SegMagicSize)) {
			return nil, ErrNotFormatted
		}
		return nil, format.ErrSignatureMismatch
	}
	if v := format.ReadU32(data, format.SegVersionOffset); v != format.LayoutVersion {
		return nil, fmt.Errorf("%w: %d", format.ErrVersion, v)
	}
	size := format.ReadU64(data, format.SegSizeOffset)
	minBits := int(format.ReadU8(data, format.SegMinBitsOffset))
	maxBits := int(format.ReadU8(data, format.SegMaxBitsOffset))
	switch {
	case size != uint64(len(data)):
		return nil, fmt.Errorf("%w: header size %d, mapped %d", ErrLayout, size, len(data))
	case minBits < format.MinClassLimit || maxBits > format.MaxClassLimit || minBits > maxBits:
		return nil, fmt.Errorf("%w: classes %d..%d", ErrLayout, minBits, maxBits)
	}
	lock, err := shmlock.At(data, format.SegLockOffset)
	if err != nil {
		return nil, err
	}
	return &Segment{
		region:  region,
		data:    data,
		lock:    lock,
		size:    size,
		minBits: minBits,
		maxBits: maxBits,
	}, nil
}

// Detach unmaps the segment from this process. The last attachment to
// detach tears the segment down, unless it was created persistent.
func (s *Segment) Detach() error {
	if s.region == nil {
		return ErrDetached
	}

	s.lock.Lock()
	remaining := s.adjustAttached(-1)
	flags := format.ReadU32(s.data, format.SegFlagsOffset)
	teardown := remaining == 0 && flags&segFlagPersistent == 0
	remove := teardown && flags&segFlagRemoveOnDetach != 0
	if teardown {
		clear(s.data[:format.SegMagicSize])
	}
	s.lock.Unlock()

	path := s.region.Path()
	var err error
	if remove {
		err = s.region.Remove()
	}
	if cerr := s.region.Close(); err == nil {
		err = cerr
	}
	s.region = nil
	s.data = nil

	if teardown {
		logger.Info("segment torn down", "path", path, "removed", remove)
	} else {
		logger.Info("segment detached", "path", path, "attached", remaining)
	}
	return err
}

// Destroy tears down the persistent segment at path and removes its file.
// It fails with ErrInUse while any process is attached.
func Destroy(path string) error {
	s, err := Attach(path)
	if err != nil {
		return err
	}

	s.lock.Lock()
	others := s.Attached() - 1
	if others > 0 {
		s.adjustAttached(-1)
		s.lock.Unlock()
		_ = s.region.Close()
		return fmt.Errorf("segment: destroy %s: %w (%d attached)", path, ErrInUse, others)
	}
	s.adjustAttached(-1)
	clear(s.data[:format.SegMagicSize])
	s.lock.Unlock()

	err = s.region.Remove()
	if cerr := s.region.Close(); err == nil {
		err = cerr
	}
	logger.Info("segment destroyed", "path", path)
	return err
}

// Persistent reports whether the segment survives its last detach.
func (s *Segment) Persistent() bool {
	return format.ReadU32(s.data, format.SegFlagsOffset)&segFlagPersistent != 0
}

// Sync flushes a file-backed segment to its backing file.
func (s *Segment) Sync() error {
	if s.region == nil {
		return ErrDetached
	}
	return s.region.Sync()
}

func (s *Segment) formatted() bool {
	return bytes.Equal(s.data[:format.SegMagicSize], format.SegmentMagic)
}
