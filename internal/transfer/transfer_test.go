package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Chapsvision-dev/ferry/internal/operator"
	"github.com/Chapsvision-dev/ferry/internal/operator/fs"
	"github.com/Chapsvision-dev/ferry/internal/util"
)

/* ------------------------------ test doubles ------------------------------ */

// spy wraps an operator and records how writers are driven. Faults can be
// injected on open, after a number of written bytes, or on Close.
type spy struct {
	operator.Operator

	readerErr  error
	writerErr  error
	failAfter  int64 // fail writes once this many bytes went through; <0 disables
	closeErr   error
	readFault  io.Reader
	mu         sync.Mutex
	opened     int
	closed     int
	aborted    int
	maxWriteSz int
}

func newSpy(op operator.Operator) *spy {
	return &spy{Operator: op, failAfter: -1}
}

func (s *spy) Reader(ctx context.Context, p string) (io.ReadCloser, error) {
	if s.readerErr != nil {
		return nil, s.readerErr
	}
	if s.readFault != nil {
		return io.NopCloser(s.readFault), nil
	}
	return s.Operator.Reader(ctx, p)
}

func (s *spy) Writer(ctx context.Context, p string) (operator.Writer, error) {
	s.mu.Lock()
	s.opened++
	s.mu.Unlock()
	if s.writerErr != nil {
		return nil, s.writerErr
	}
	w, err := s.Operator.Writer(ctx, p)
	if err != nil {
		return nil, err
	}
	return &spyWriter{Writer: w, spy: s}, nil
}

type spyWriter struct {
	operator.Writer
	spy     *spy
	written int64
}

func (w *spyWriter) Write(p []byte) (int, error) {
	w.spy.mu.Lock()
	if len(p) > w.spy.maxWriteSz {
		w.spy.maxWriteSz = len(p)
	}
	w.spy.mu.Unlock()
	if w.spy.failAfter >= 0 && w.written+int64(len(p)) > w.spy.failAfter {
		n := int(w.spy.failAfter - w.written)
		if n > 0 {
			n, _ = w.Writer.Write(p[:n])
			w.written += int64(n)
		}
		return n, errors.New("disk full")
	}
	n, err := w.Writer.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *spyWriter) Close() error {
	w.spy.mu.Lock()
	w.spy.closed++
	w.spy.mu.Unlock()
	if w.spy.closeErr != nil {
		_ = w.Writer.Abort()
		return w.spy.closeErr
	}
	return w.Writer.Close()
}

func (w *spyWriter) Abort() error {
	w.spy.mu.Lock()
	w.spy.aborted++
	w.spy.mu.Unlock()
	return w.Writer.Abort()
}

// faultReader yields n bytes and then fails.
type faultReader struct {
	n   int
	err error
}

func (r *faultReader) Read(p []byte) (int, error) {
	if r.n == 0 {
		return 0, r.err
	}
	if len(p) > r.n {
		p = p[:r.n]
	}
	for i := range p {
		p[i] = 'x'
	}
	r.n -= len(p)
	return len(p), nil
}

func put(t *testing.T, op operator.Operator, p string, data []byte) {
	t.Helper()
	w, err := op.Writer(context.Background(), p)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func get(t *testing.T, op operator.Operator, p string) []byte {
	t.Helper()
	r, err := op.Reader(context.Background(), p)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return b
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*31 + i/251)
	}
	return b
}

func sum(t *testing.T, b []byte) string {
	t.Helper()
	s, n, err := util.SHA256(bytes.NewReader(b))
	require.NoError(t, err)
	require.EqualValues(t, len(b), n)
	return s
}

/* --------------------------------- tests --------------------------------- */

func TestRunCopiesExactBytes(t *testing.T) {
	sizes := []int{0, 1, BufferSize - 1, BufferSize, BufferSize + 1, 2*BufferSize + 17}
	for _, n := range sizes {
		t.Run(fmt.Sprintf("%d", n), func(t *testing.T) {
			src, dst := fs.NewMemory(), fs.NewMemory()
			data := pattern(n)
			put(t, src, "in.bin", data)

			res, err := Run(context.Background(), src, "in.bin", dst, "out/copy.bin")
			require.NoError(t, err)
			assert.EqualValues(t, n, res.Bytes)
			assert.Equal(t, sum(t, data), res.SHA256)
			assert.True(t, bytes.Equal(data, get(t, dst, "out/copy.bin")))
		})
	}
}

func TestRunWritesAtMostOneBuffer(t *testing.T) {
	src := fs.NewMemory()
	dst := newSpy(fs.NewMemory())
	put(t, src, "big", pattern(3*BufferSize))

	_, err := Run(context.Background(), src, "big", dst, "big")
	require.NoError(t, err)
	assert.Equal(t, BufferSize, dst.maxWriteSz)
}

func TestRunSameOperator(t *testing.T) {
	op := fs.NewMemory()
	put(t, op, "a", []byte("same backend"))

	_, err := Run(context.Background(), op, "a", op, "b")
	require.NoError(t, err)
	assert.Equal(t, "same backend", string(get(t, op, "b")))
	assert.Equal(t, "same backend", string(get(t, op, "a")))
}

func TestRunOverwritesDestination(t *testing.T) {
	src, dst := fs.NewMemory(), fs.NewMemory()
	put(t, src, "new", []byte("short"))
	put(t, dst, "obj", []byte("a much longer previous version"))

	_, err := Run(context.Background(), src, "new", dst, "obj")
	require.NoError(t, err)
	assert.Equal(t, "short", string(get(t, dst, "obj")))
}

func TestRunLocalToLocal(t *testing.T) {
	src, dst := fs.NewLocal(t.TempDir()), fs.NewLocal(t.TempDir())
	put(t, src, "report.csv", []byte("a,b\n1,2\n"))

	res, err := Run(context.Background(), src, "report.csv", dst, "archive/report.csv")
	require.NoError(t, err)
	assert.EqualValues(t, 8, res.Bytes)
	assert.Equal(t, "a,b\n1,2\n", string(get(t, dst, "archive/report.csv")))
}

func TestRunStateSequence(t *testing.T) {
	src, dst := fs.NewMemory(), fs.NewMemory()
	put(t, src, "x", []byte("x"))

	var seen []State
	_, err := Run(context.Background(), src, "x", dst, "y", WithObserver(func(s State) { seen = append(seen, s) }))
	require.NoError(t, err)
	assert.Equal(t, []State{Idle, SourceOpen, DestOpen, Streaming, Finalizing, Complete}, seen)
}

func TestRunDestinationVisibleOnlyAfterFinalize(t *testing.T) {
	src, dst := fs.NewMemory(), fs.NewMemory()
	put(t, src, "x", pattern(BufferSize+5))

	visible := map[State]bool{}
	observer := func(s State) {
		_, err := dst.Reader(context.Background(), "y")
		visible[s] = err == nil
	}
	_, err := Run(context.Background(), src, "x", dst, "y", WithObserver(observer))
	require.NoError(t, err)

	assert.False(t, visible[Streaming])
	assert.False(t, visible[Finalizing])
	assert.True(t, visible[Complete])
}

func TestRunSourceMissing(t *testing.T) {
	src := fs.NewMemory()
	dst := newSpy(fs.NewMemory())

	var seen []State
	res, err := Run(context.Background(), src, "missing", dst, "y", WithObserver(func(s State) { seen = append(seen, s) }))

	var target *SourceOpenError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "missing", target.Path)
	assert.ErrorIs(t, err, operator.ErrNotExist)
	assert.Equal(t, Result{}, res)
	assert.Zero(t, dst.opened, "no destination writer may be opened")
	assert.Equal(t, []State{Idle, Failed}, seen)
}

func TestRunDestinationOpenFails(t *testing.T) {
	src, base := fs.NewMemory(), fs.NewMemory()
	put(t, src, "x", []byte("x"))
	dst := newSpy(base)
	dst.writerErr = errors.New("permission denied")

	_, err := Run(context.Background(), src, "x", dst, "y")

	var target *DestOpenError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "y", target.Path)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestRunWriteFaultAborts(t *testing.T) {
	src, base := fs.NewMemory(), fs.NewMemory()
	put(t, src, "x", pattern(BufferSize+1000))
	put(t, base, "y", []byte("previous"))
	dst := newSpy(base)
	dst.failAfter = 100

	var seen []State
	res, err := Run(context.Background(), src, "x", dst, "y", WithObserver(func(s State) { seen = append(seen, s) }))

	var target *StreamError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "write", target.Op)
	assert.EqualValues(t, 100, target.Written)
	assert.Equal(t, Result{}, res)
	assert.Zero(t, dst.closed, "destination must never be finalized")
	assert.Equal(t, 1, dst.aborted)
	assert.Equal(t, "previous", string(get(t, base, "y")), "staged data must be discarded")
	assert.Equal(t, []State{Idle, SourceOpen, DestOpen, Streaming, Failed}, seen)
}

func TestRunReadFaultAborts(t *testing.T) {
	dst := newSpy(fs.NewMemory())
	src := newSpy(fs.NewMemory())
	cause := errors.New("connection reset")
	src.readFault = &faultReader{n: 42, err: cause}

	_, err := Run(context.Background(), src, "x", dst, "y")

	var target *StreamError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "read", target.Op)
	assert.EqualValues(t, 42, target.Written)
	assert.ErrorIs(t, err, cause)
	assert.Zero(t, dst.closed)
	assert.Equal(t, 1, dst.aborted)

	_, rerr := dst.Reader(context.Background(), "y")
	assert.ErrorIs(t, rerr, operator.ErrNotExist)
}

func TestRunFinalizeFails(t *testing.T) {
	src := fs.NewMemory()
	put(t, src, "x", []byte("payload"))
	dst := newSpy(fs.NewMemory())
	dst.closeErr = errors.New("commit rejected")

	res, err := Run(context.Background(), src, "x", dst, "y")

	var target *FinalizeError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "y", target.Path)
	assert.Equal(t, Result{}, res)
	assert.Equal(t, 1, dst.closed, "finalize is attempted exactly once")
	assert.Zero(t, dst.aborted)
}

func TestRunCancelledContext(t *testing.T) {
	src, base := fs.NewMemory(), fs.NewMemory()
	put(t, src, "x", []byte("payload"))
	dst := newSpy(base)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, src, "x", dst, "y")

	var target *StreamError
	require.ErrorAs(t, err, &target)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, dst.closed)
	assert.Equal(t, 1, dst.aborted)
}

func TestRunConcurrentSessions(t *testing.T) {
	src, dst := fs.NewMemory(), fs.NewMemory()
	const n = 8
	for i := 0; i < n; i++ {
		put(t, src, fmt.Sprintf("in/%d", i), pattern(1000*(i+1)))
	}

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			_, err := Run(context.Background(), src, fmt.Sprintf("in/%d", i), dst, fmt.Sprintf("out/%d", i))
			return err
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < n; i++ {
		assert.Equal(t, pattern(1000*(i+1)), get(t, dst, fmt.Sprintf("out/%d", i)))
	}
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, Idle.canEnter(SourceOpen))
	assert.True(t, Streaming.canEnter(Failed))
	assert.False(t, Idle.canEnter(Streaming))
	assert.False(t, Complete.canEnter(Failed))
	assert.False(t, Failed.canEnter(Failed))
	assert.False(t, Finalizing.canEnter(Streaming))

	s := &session{state: Complete}
	assert.Panics(t, func() { s.enter(Failed) })
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "source_open", SourceOpen.String())
	assert.Equal(t, "complete", Complete.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.True(t, Failed.Terminal())
	assert.False(t, Streaming.Terminal())
}

func TestErrorMessages(t *testing.T) {
	cause := errors.New("boom")
	assert.Equal(t, `open source "a": boom`, (&SourceOpenError{Path: "a", Err: cause}).Error())
	assert.Equal(t, `open destination "b": boom`, (&DestOpenError{Path: "b", Err: cause}).Error())
	assert.Equal(t, "write failed after 7 bytes: boom", (&StreamError{Op: "write", Written: 7, Err: cause}).Error())
	assert.Equal(t, `finalize destination "c": boom`, (&FinalizeError{Path: "c", Err: cause}).Error())
}
