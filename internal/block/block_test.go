package block

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	b := Block{Offset: 4096, Length: 128, TypeTag: 7}
	got, err := Decode(Encode(b))
	require.NoError(t, err)
	require.Equal(t, b, got)
}

func TestDecodeShortBufferIsFatal(t *testing.T) {
	_, err := Decode(make([]byte, Size-1))
	require.Error(t, err)
}

func TestAppendStreamAppendAndReadAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.dat")
	s, err := OpenAppendStream(path)
	require.NoError(t, err)
	defer s.Close()

	off1, err := s.Append([]byte("rambo"))
	require.NoError(t, err)
	require.EqualValues(t, 0, off1)

	off2, err := s.Append([]byte("rocky"))
	require.NoError(t, err)
	require.EqualValues(t, 5, off2)

	got, err := s.ReadAt(off2, 5)
	require.NoError(t, err)
	require.Equal(t, "rocky", string(got))
	require.EqualValues(t, 10, s.Size())
}

func TestAppendStreamWriteAtPatchesInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.dat")
	s, err := OpenAppendStream(path)
	require.NoError(t, err)
	defer s.Close()

	off, err := s.Append([]byte("00000000"))
	require.NoError(t, err)
	require.NoError(t, s.WriteAt([]byte("rambo"), off))

	got, err := s.ReadAt(off, 8)
	require.NoError(t, err)
	require.Equal(t, "rambo000", string(got))
}

func TestAppendStreamReopenPreservesOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.dat")
	s1, err := OpenAppendStream(path)
	require.NoError(t, err)
	off1, err := s1.Append([]byte("rambo"))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := OpenAppendStream(path)
	require.NoError(t, err)
	defer s2.Close()
	off2, err := s2.Append([]byte("rocky"))
	require.NoError(t, err)
	require.Greater(t, off2, off1)

	got, err := s2.ReadAt(off1, 5)
	require.NoError(t, err)
	require.Equal(t, "rambo", string(got))
}

func TestRetryOnceSucceedsAfterOneTransientFailure(t *testing.T) {
	attempts := 0
	err := retryOnce(func() error {
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestRetryOnceReturnsSecondErrorWhenBothAttemptsFail(t *testing.T) {
	attempts := 0
	sentinel := errors.New("still failing")
	err := retryOnce(func() error {
		attempts++
		return sentinel
	})
	require.Equal(t, sentinel, err)
	require.Equal(t, 2, attempts)
}

func TestRetryOnceDoesNotRetryOnFirstSuccess(t *testing.T) {
	attempts := 0
	err := retryOnce(func() error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, attempts)
}
