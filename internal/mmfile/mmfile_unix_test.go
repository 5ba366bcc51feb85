//go:build unix

package mmfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateAndOpenShareBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.bin")

	a, err := Create(path, 8192, Options{})
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, 8192, a.Size())
	require.Equal(t, path, a.Path())

	b, err := Open(path, Options{})
	require.NoError(t, err)
	defer b.Close()

	// Two mappings of one file: writes through one are visible through the other.
	a.Bytes()[100] = 0x42
	require.Equal(t, byte(0x42), b.Bytes()[100])
	require.NotSame(t, &a.Bytes()[0], &b.Bytes()[0])

	require.NoError(t, a.Sync())
}

func TestCreateRefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := Create(path, 4096, Options{})
	require.ErrorIs(t, err, os.ErrExist)
}

func TestOpenRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := Open(path, Options{})
	require.ErrorIs(t, err, ErrSize)
}

func TestAnonymousRegion(t *testing.T) {
	r, err := Anonymous(4096, Options{})
	require.NoError(t, err)
	require.Len(t, r.Bytes(), 4096)
	require.Empty(t, r.Path())
	require.NoError(t, r.Sync())
	require.NoError(t, r.Remove())

	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "second close is a no-op")
	require.ErrorIs(t, r.Sync(), ErrClosed)
}

func TestRemoveKeepsMappingAlive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.bin")
	r, err := Create(path, 4096, Options{})
	require.NoError(t, err)
	defer r.Close()

	r.Bytes()[0] = 7
	require.NoError(t, r.Remove())
	require.NoError(t, r.Remove(), "removing a missing file is a no-op")

	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Equal(t, byte(7), r.Bytes()[0])
}

func TestInvalidSizes(t *testing.T) {
	_, err := Anonymous(0, Options{})
	require.ErrorIs(t, err, ErrSize)
	_, err = Create(filepath.Join(t.TempDir(), "neg.bin"), -1, Options{})
	require.ErrorIs(t, err, ErrSize)
}
