package common

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpillBufferReadOnlyMemReadsSeed(t *testing.T) {
	a := assert.New(t)
	buf := NewSpillBuffer([]byte("hello world"), 1<<20)
	defer buf.Close()

	r := buf.OpenRead()
	defer r.Close()
	got, err := io.ReadAll(r)
	a.NoError(err)
	a.Equal("hello world", string(got))
}

func TestSpillBufferWritePromotesReadOnlyToReadWrite(t *testing.T) {
	a := assert.New(t)
	buf := NewSpillBuffer([]byte("abc"), 1<<20)
	defer buf.Close()

	w, err := buf.OpenWrite(3)
	a.NoError(err)
	_, err = w.Write([]byte("def"))
	a.NoError(err)
	a.NoError(w.Close())

	r := buf.OpenRead()
	defer r.Close()
	got, err := io.ReadAll(r)
	a.NoError(err)
	a.Equal("abcdef", string(got))
}

func TestSpillBufferPromotesToTempFileOverMaxMemory(t *testing.T) {
	a := assert.New(t)
	buf := NewSpillBuffer(nil, 8)
	defer buf.Close()

	w, err := buf.OpenWrite(0)
	a.NoError(err)
	_, err = w.Write([]byte("this is more than eight bytes"))
	a.NoError(err)
	a.NoError(w.Close())

	a.True(buf.isTempFile())

	r := buf.OpenRead()
	defer r.Close()
	got, err := io.ReadAll(r)
	a.NoError(err)
	a.Equal("this is more than eight bytes", string(got))
}

func TestSpillBufferLimiterForcesEarlySpill(t *testing.T) {
	a := assert.New(t)
	limiter := NewCacheLimiter(4)
	buf := NewSpillBufferWithLimiter(nil, 1<<20, limiter)
	defer buf.Close()

	w, err := buf.OpenWrite(0)
	a.NoError(err)
	_, err = w.Write([]byte("exceeds the shared limiter"))
	a.NoError(err)
	a.NoError(w.Close())

	// maxMemoryBytes alone would never force this buffer to spill, but the
	// shared limiter's budget of 4 bytes is far smaller than the write.
	a.True(buf.isTempFile())
	// Nothing was ever actually reserved (TryAdd failed before the write),
	// so the limiter's full relaxed capacity remains available.
	a.True(limiter.TryAdd(4, true))
}

func TestSpillBufferCloseReleasesLimiterReservation(t *testing.T) {
	a := assert.New(t)
	limiter := NewCacheLimiter(10)
	buf := NewSpillBufferWithLimiter(nil, 1<<20, limiter)

	w, err := buf.OpenWrite(0)
	a.NoError(err)
	_, err = w.Write([]byte("12345"))
	a.NoError(err)
	a.NoError(w.Close())

	// The write reserved 5 bytes against the limiter; closing must give it back.
	a.False(limiter.TryAdd(10, false))
	a.NoError(buf.Close())
	a.True(limiter.TryAdd(7, false)) // 7 == the strict limit (0.75 * 10)
}

func TestSpillBufferOperationsFailAfterClose(t *testing.T) {
	a := assert.New(t)
	buf := NewSpillBuffer([]byte("x"), 1<<20)
	a.NoError(buf.Close())

	_, err := buf.OpenWrite(0)
	a.Error(err)
	gerr, ok := err.(*GridError)
	a.True(ok)
	a.Equal(EErrorKind.Closed(), gerr.Kind())
}

func TestSpillBufferOpenReadRangeValidatesBounds(t *testing.T) {
	a := assert.New(t)
	buf := NewSpillBuffer([]byte("0123456789"), 1<<20)
	defer buf.Close()

	_, err := buf.OpenReadRange(-1, 1)
	a.Error(err)
	_, err = buf.OpenReadRange(5, 100)
	a.Error(err)

	r, err := buf.OpenReadRange(2, 3)
	a.NoError(err)
	defer r.Close()
	got, err := io.ReadAll(r)
	a.NoError(err)
	a.Equal("234", string(got))
}

func TestSpillBufferPosition(t *testing.T) {
	a := assert.New(t)
	buf := NewSpillBuffer([]byte("the quick brown fox jumps over the lazy dog"), 1<<20)
	defer buf.Close()

	pos, err := buf.Position([]byte("fox"), 1)
	a.NoError(err)
	a.Equal(int64(17), pos)

	pos, err = buf.Position([]byte("the"), 5)
	a.NoError(err)
	a.Equal(int64(32), pos)

	pos, err = buf.Position([]byte("cat"), 1)
	a.NoError(err)
	a.Equal(int64(-1), pos)
}

func TestSpillBufferTruncate(t *testing.T) {
	a := assert.New(t)
	buf := NewSpillBuffer([]byte("0123456789"), 1<<20)
	defer buf.Close()

	a.NoError(buf.Truncate(4))
	a.Equal(int64(4), buf.Len())

	err := buf.Truncate(100)
	a.Error(err)
}
