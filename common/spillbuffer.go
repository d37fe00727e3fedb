package common

import (
	"io"
	"os"
	"sync"

	stderrors "errors"
)

// errStorageNotWritable is returned internally by a storage tier that cannot
// accept writes in its current mode (read-only-memory); SpillBuffer catches
// it and performs a one-time promotion to read-write memory before retrying.
var errStorageNotWritable = stderrors.New("storage tier is not writable")

const spillChunkSize = 32 * 1024

// spillStorage is the small sum type described in the design notes:
// ReadOnlyMem (a view over a borrowed array), RwMem (a list of growing
// chunks), or TempFile. Transitions are one-way: ReadOnlyMem -(first
// write)-> RwMem -(size > threshold)-> TempFile, and no transition returns.
type spillStorage interface {
	totalCount() int64
	readAt(pos int64, dst []byte) (int, error)
	writeAt(pos int64, data []byte) error
	truncate(length int64) error
	close() error
}

// readOnlyMemStorage is a view over a borrowed byte array. It never copies
// on construction; the first write promotes it to rwMemStorage.
type readOnlyMemStorage struct {
	data []byte
}

func (s *readOnlyMemStorage) totalCount() int64 { return int64(len(s.data)) }

func (s *readOnlyMemStorage) readAt(pos int64, dst []byte) (int, error) {
	if pos >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(dst, s.data[pos:])
	return n, nil
}

func (s *readOnlyMemStorage) writeAt(int64, []byte) error { return errStorageNotWritable }

func (s *readOnlyMemStorage) truncate(length int64) error {
	if length > int64(len(s.data)) {
		return errStorageNotWritable // would require growth; caller must promote first
	}
	s.data = s.data[:length]
	return nil
}

func (s *readOnlyMemStorage) close() error { s.data = nil; return nil }

// rwMemStorage is a list of growing, fixed-size chunks. Reads and writes are
// split across chunk boundaries the way chunkedFileWriter splits a file's
// bytes into offset-addressed pieces.
type rwMemStorage struct {
	chunks [][]byte
	total  int64
}

func newRwMemStorage(seed []byte) *rwMemStorage {
	s := &rwMemStorage{}
	if len(seed) > 0 {
		_ = s.writeAt(0, seed)
	}
	return s
}

func (s *rwMemStorage) totalCount() int64 { return s.total }

func (s *rwMemStorage) readAt(pos int64, dst []byte) (int, error) {
	if pos >= s.total {
		return 0, io.EOF
	}
	remaining := s.total - pos
	toRead := int64(len(dst))
	if toRead > remaining {
		toRead = remaining
	}
	read := int64(0)
	for read < toRead {
		abs := pos + read
		chunkIdx := int(abs / spillChunkSize)
		chunkOff := abs % spillChunkSize
		chunk := s.chunks[chunkIdx]
		n := copy(dst[read:toRead], chunk[chunkOff:])
		read += int64(n)
		if n == 0 {
			break
		}
	}
	return int(read), nil
}

func (s *rwMemStorage) writeAt(pos int64, data []byte) error {
	end := pos + int64(len(data))
	s.ensureCapacity(end)

	written := int64(0)
	for written < int64(len(data)) {
		abs := pos + written
		chunkIdx := int(abs / spillChunkSize)
		chunkOff := abs % spillChunkSize
		n := copy(s.chunks[chunkIdx][chunkOff:], data[written:])
		written += int64(n)
	}
	if end > s.total {
		s.total = end
	}
	return nil
}

func (s *rwMemStorage) ensureCapacity(length int64) {
	neededChunks := int((length + spillChunkSize - 1) / spillChunkSize)
	for len(s.chunks) < neededChunks {
		s.chunks = append(s.chunks, make([]byte, spillChunkSize))
	}
}

func (s *rwMemStorage) truncate(length int64) error {
	s.total = length
	return nil
}

func (s *rwMemStorage) close() error { s.chunks = nil; return nil }

// tempFileStorage spills to a file in the system temp directory, deleted on
// close(). No cleanup is registered for process exit, so a buffer that is
// never closed leaves its file behind.
type tempFileStorage struct {
	f     *os.File
	total int64
}

func newTempFileStorage() (*tempFileStorage, error) {
	f, err := os.CreateTemp("", "spillbuffer-*.tmp")
	if err != nil {
		return nil, err
	}
	return &tempFileStorage{f: f}, nil
}

func (s *tempFileStorage) totalCount() int64 { return s.total }

func (s *tempFileStorage) readAt(pos int64, dst []byte) (int, error) {
	if pos >= s.total {
		return 0, io.EOF
	}
	remaining := s.total - pos
	if int64(len(dst)) > remaining {
		dst = dst[:remaining]
	}
	return s.f.ReadAt(dst, pos)
}

func (s *tempFileStorage) writeAt(pos int64, data []byte) error {
	if _, err := s.f.WriteAt(data, pos); err != nil {
		return err
	}
	if end := pos + int64(len(data)); end > s.total {
		s.total = end
	}
	return nil
}

func (s *tempFileStorage) truncate(length int64) error {
	if err := s.f.Truncate(length); err != nil {
		return err
	}
	s.total = length
	return nil
}

func (s *tempFileStorage) close() error {
	name := s.f.Name()
	err := s.f.Close()
	_ = os.Remove(name)
	return err
}

// SpillBuffer is a seekable byte sequence that starts in memory and
// transparently migrates to a temporary file once a configured byte
// threshold is exceeded, while in-flight streams opened before the
// migration remain valid (§4.A).
type SpillBuffer struct {
	mu             sync.Mutex
	storage        spillStorage
	maxMemoryBytes int64
	closed         bool

	// memLimiter, if set, is a process-wide RAM budget shared across every
	// SpillBuffer in the process; growth in memory reserves against it so a
	// burst of large buffers spills to disk sooner than any one buffer's own
	// maxMemoryBytes would force, instead of the process running out of RAM.
	memLimiter  CacheLimiter
	memReserved int64
}

// NewSpillBuffer wraps a borrowed byte array in read-only-memory mode, with
// no process-wide RAM budget beyond this buffer's own maxMemoryBytes.
func NewSpillBuffer(initial []byte, maxMemoryBytes int64) *SpillBuffer {
	return NewSpillBufferWithLimiter(initial, maxMemoryBytes, nil)
}

// NewSpillBufferWithLimiter is NewSpillBuffer plus a shared CacheLimiter that
// every memory-resident write reserves against (§4.A scope note: a single
// buffer's maxMemoryBytes bounds *that* buffer, while limiter bounds the
// process's *aggregate* in-memory footprint across every buffer sharing it).
func NewSpillBufferWithLimiter(initial []byte, maxMemoryBytes int64, limiter CacheLimiter) *SpillBuffer {
	// memReserved starts at zero even though initial already occupies
	// len(initial) bytes of memory: nothing was ever reserved against
	// limiter for it, so there is nothing for Close/promote to give back.
	// The first write that grows the buffer reserves the full projected
	// size, which correctly accounts for the seed bytes at that point.
	return &SpillBuffer{
		storage:        &readOnlyMemStorage{data: initial},
		maxMemoryBytes: maxMemoryBytes,
		memLimiter:     limiter,
	}
}

func (b *SpillBuffer) Len() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.storage.totalCount()
}

func (b *SpillBuffer) isTempFile() bool {
	_, ok := b.storage.(*tempFileStorage)
	return ok
}

// OpenRead returns an unbounded reader over the buffer's current content; it
// reflects future appends (§4.A).
func (b *SpillBuffer) OpenRead() *SpillReader {
	return &SpillReader{buf: b, limit: -1}
}

// OpenReadRange returns a bounded reader starting at pos, per the OutOfRange
// rule pos<0 ∨ pos≥total ∨ len<0 ∨ len>total-pos.
func (b *SpillBuffer) OpenReadRange(pos, length int64) (*SpillReader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, NewGridError(EErrorKind.Closed(), "buffer is closed")
	}
	total := b.storage.totalCount()
	if pos < 0 || pos >= total || length < 0 || length > total-pos {
		return nil, NewGridError(EErrorKind.OutOfRange(), "read range out of bounds")
	}
	return &SpillReader{buf: b, pos: pos, start: pos, limit: length}, nil
}

// OpenWrite returns a writer starting at pos; fails with OutOfRange when
// pos<0 ∨ pos>total.
func (b *SpillBuffer) OpenWrite(pos int64) (*SpillWriter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, NewGridError(EErrorKind.Closed(), "buffer is closed")
	}
	if pos < 0 || pos > b.storage.totalCount() {
		return nil, NewGridError(EErrorKind.OutOfRange(), "write position out of bounds")
	}
	return &SpillWriter{buf: b, pos: pos}, nil
}

// Truncate shortens the buffer; fails with OutOfRange outside [0,total].
func (b *SpillBuffer) Truncate(length int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return NewGridError(EErrorKind.Closed(), "buffer is closed")
	}
	if length < 0 || length > b.storage.totalCount() {
		return NewGridError(EErrorKind.OutOfRange(), "truncate length out of bounds")
	}
	if err := b.storage.truncate(length); err != nil {
		if err2 := b.promoteToRwMemLocked(); err2 != nil {
			return WrapGridError(EErrorKind.IoFailed(), "promotion during truncate failed", err2)
		}
		if err := b.storage.truncate(length); err != nil {
			return WrapGridError(EErrorKind.IoFailed(), "truncate failed", err)
		}
	}
	return nil
}

// Close frees resources; subsequent operations fail with Closed.
func (b *SpillBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.releaseMemReservationLocked()
	return b.storage.close()
}

// releaseMemReservationLocked gives back any RAM this buffer has reserved
// against memLimiter; safe to call repeatedly (a no-op once memReserved is 0).
func (b *SpillBuffer) releaseMemReservationLocked() {
	if b.memLimiter == nil || b.memReserved == 0 {
		return
	}
	b.memLimiter.Remove(b.memReserved)
	b.memReserved = 0
}

func (b *SpillBuffer) readAtLocked(pos int64, dst []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, NewGridError(EErrorKind.Closed(), "buffer is closed")
	}
	n, err := b.storage.readAt(pos, dst)
	if err != nil && err != io.EOF {
		return n, WrapGridError(EErrorKind.IoFailed(), "read failed", err)
	}
	return n, err
}

// writeAtLocked implements the promotion algorithm from §4.A: before each
// write, if the projected size would exceed maxMemoryBytes and the buffer
// isn't already spilled, drain the current storage into a new tempfile and
// continue the write there. If the underlying tier rejects the write because
// it is read-only memory, promote to read-write memory once and retry.
func (b *SpillBuffer) writeAtLocked(pos int64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return NewGridError(EErrorKind.Closed(), "buffer is closed")
	}
	if pos < 0 || pos > b.storage.totalCount() {
		return NewGridError(EErrorKind.OutOfRange(), "write position out of bounds")
	}

	projected := pos + int64(len(data))
	if cur := b.storage.totalCount(); cur > projected {
		projected = cur
	}
	mustSpill := !b.isTempFile() && projected > b.maxMemoryBytes
	if !mustSpill && !b.isTempFile() && b.memLimiter != nil {
		if growth := projected - b.memReserved; growth > 0 {
			if b.memLimiter.TryAdd(growth, false) {
				b.memReserved += growth
			} else {
				mustSpill = true // process-wide RAM budget is tight; spill early
			}
		}
	}
	if mustSpill {
		if err := b.promoteToTempFileLocked(); err != nil {
			return WrapGridError(EErrorKind.IoFailed(), "promotion to tempfile failed", err)
		}
	}

	err := b.storage.writeAt(pos, data)
	if stderrors.Is(err, errStorageNotWritable) {
		if err2 := b.promoteToRwMemLocked(); err2 != nil {
			return WrapGridError(EErrorKind.IoFailed(), "promotion to read-write memory failed", err2)
		}
		err = b.storage.writeAt(pos, data)
	}
	if err != nil {
		return WrapGridError(EErrorKind.IoFailed(), "write failed", err)
	}
	return nil
}

func (b *SpillBuffer) promoteToRwMemLocked() error {
	ro, ok := b.storage.(*readOnlyMemStorage)
	if !ok {
		return nil // already promoted past read-only-memory
	}
	seed := make([]byte, len(ro.data))
	copy(seed, ro.data)
	b.storage = newRwMemStorage(seed)
	return nil
}

func (b *SpillBuffer) promoteToTempFileLocked() error {
	dst, err := newTempFileStorage()
	if err != nil {
		return err
	}

	total := b.storage.totalCount()
	buf := make([]byte, spillChunkSize)
	for pos := int64(0); pos < total; {
		n, rerr := b.storage.readAt(pos, buf)
		if n > 0 {
			if werr := dst.writeAt(pos, buf[:n]); werr != nil {
				_ = dst.close()
				return werr
			}
			pos += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = dst.close()
			return rerr
		}
		if n == 0 {
			break
		}
	}

	_ = b.storage.close()
	b.storage = dst
	b.releaseMemReservationLocked()
	return nil
}

// Position performs the mark/reset pattern search described in §4.A: the
// smallest one-based index i >= startOneBased such that the buffer contains
// pattern starting at i, or -1 if no such index exists.
func (b *SpillBuffer) Position(pattern []byte, startOneBased int64) (int64, error) {
	if startOneBased < 1 {
		return -1, NewGridError(EErrorKind.OutOfRange(), "start must be >= 1")
	}
	total := b.Len()
	if len(pattern) == 0 || int64(len(pattern)) > total || startOneBased > total {
		return -1, nil
	}

	r := b.OpenRead()
	defer r.Close()
	if err := r.Skip(startOneBased - 1); err != nil {
		return -1, nil
	}

	searchStart := startOneBased - 1
	window := make([]byte, len(pattern))
	for searchStart+int64(len(pattern)) <= total {
		r.Mark()
		n, err := io.ReadFull(r, window)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return -1, WrapGridError(EErrorKind.IoFailed(), "pattern search read failed", err)
		}
		if n == len(pattern) && equalBytes(window, pattern) {
			return searchStart + 1, nil
		}
		if err := r.Reset(); err != nil {
			return -1, err
		}
		if err := r.Skip(1); err != nil {
			return -1, nil
		}
		searchStart++
	}
	return -1, nil
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SpillReader is a non-thread-safe read cursor over a SpillBuffer. Pointers
// survive storage promotion because they hold a reference to the buffer, not
// to its storage directly (§4.A).
type SpillReader struct {
	buf    *SpillBuffer
	pos    int64
	start  int64
	limit  int64 // -1 means unbounded
	mark   int64
	closed bool
}

func (r *SpillReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, NewGridError(EErrorKind.Closed(), "reader is closed")
	}
	if r.limit >= 0 {
		remaining := r.limit - (r.pos - r.start)
		if remaining <= 0 {
			return 0, io.EOF
		}
		if int64(len(p)) > remaining {
			p = p[:remaining]
		}
	}
	n, err := r.buf.readAtLocked(r.pos, p)
	r.pos += int64(n)
	return n, err
}

// Skip advances the cursor by n bytes without reading them.
func (r *SpillReader) Skip(n int64) error {
	if r.closed {
		return NewGridError(EErrorKind.Closed(), "reader is closed")
	}
	if r.limit >= 0 && (r.pos-r.start)+n > r.limit {
		return NewGridError(EErrorKind.OutOfRange(), "skip exceeds bounded reader range")
	}
	r.pos += n
	return nil
}

// Mark records the current position, honored to at least MaxInt bytes ahead
// since the grid core never seeds a reader with more data than fits in
// memory before spilling.
func (r *SpillReader) Mark() { r.mark = r.pos }

// Reset restores the position most recently recorded by Mark.
func (r *SpillReader) Reset() error {
	if r.closed {
		return NewGridError(EErrorKind.Closed(), "reader is closed")
	}
	r.pos = r.mark
	return nil
}

func (r *SpillReader) Close() error { r.closed = true; return nil }

// SpillWriter is a non-thread-safe write cursor over a SpillBuffer.
type SpillWriter struct {
	buf    *SpillBuffer
	pos    int64
	closed bool
}

func (w *SpillWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, NewGridError(EErrorKind.Closed(), "writer is closed")
	}
	if err := w.buf.writeAtLocked(w.pos, p); err != nil {
		return 0, err
	}
	w.pos += int64(len(p))
	return len(p), nil
}

func (w *SpillWriter) Close() error { w.closed = true; return nil }
