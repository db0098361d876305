package transfer

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"gitlab.com/tozd/go/errors"

	"github.com/Chapsvision-dev/ferry/internal/operator"
	"github.com/Chapsvision-dev/ferry/internal/util"
)

// BufferSize is the size of the buffer interposed between source and
// destination. A transfer never holds more than this in memory.
const BufferSize = 8 << 20

// Result describes a completed transfer.
type Result struct {
	Bytes   int64
	SHA256  string
	Elapsed time.Duration
}

// Option tunes a single Run.
type Option func(*session)

// WithObserver registers fn to be called with every state the session enters,
// Idle included.
func WithObserver(fn func(State)) Option {
	return func(s *session) { s.observe = fn }
}

// session is the state of one Run. It is never shared.
type session struct {
	state   State
	observe func(State)

	srcPath string
	dstPath string

	reader io.ReadCloser
	writer operator.Writer
	buf    []byte
	digest *util.Digest
}

func (s *session) enter(next State) {
	if !s.state.canEnter(next) {
		panic("transfer: illegal transition " + s.state.String() + " -> " + next.String())
	}
	s.state = next
	log.Debug().
		Str("action", "transfer").
		Str("state", next.String()).
		Str("source", s.srcPath).
		Str("destination", s.dstPath).
		Msg("transfer state")
	if s.observe != nil {
		s.observe(next)
	}
}

// Run copies the object at srcPath on src to dstPath on dst.
//
// The source is opened first; if that fails no destination writer is opened.
// Bytes flow through a fixed buffer of BufferSize. Once the source reports end
// of stream the destination is finalized exactly once. On any read or write
// failure the destination writer is aborted instead.
//
// Errors are one of *SourceOpenError, *DestOpenError, *StreamError or
// *FinalizeError. The Result is the zero value on error.
func Run(ctx context.Context, src operator.Operator, srcPath string, dst operator.Operator, dstPath string, opts ...Option) (Result, error) {
	s := &session{srcPath: srcPath, dstPath: dstPath}
	for _, o := range opts {
		o(s)
	}
	if s.observe != nil {
		s.observe(Idle)
	}

	start := time.Now()
	if err := s.run(ctx, src, dst); err != nil {
		s.enter(Failed)
		return Result{}, err
	}

	res := Result{Bytes: s.digest.Size(), SHA256: s.digest.Sum(), Elapsed: time.Since(start)}
	log.Info().
		Str("action", "transfer").
		Str("source", srcPath).
		Str("destination", dstPath).
		Int64("bytes", res.Bytes).
		Str("sha256", res.SHA256).
		Dur("elapsed_ms", res.Elapsed).
		Msg("transfer complete")
	return res, nil
}

func (s *session) run(ctx context.Context, src, dst operator.Operator) error {
	r, err := src.Reader(ctx, s.srcPath)
	if err != nil {
		return &SourceOpenError{Path: s.srcPath, Err: err}
	}
	s.reader = r
	s.enter(SourceOpen)
	defer s.closeReader()

	w, err := dst.Writer(ctx, s.dstPath)
	if err != nil {
		return &DestOpenError{Path: s.dstPath, Err: err}
	}
	s.writer = w
	s.enter(DestOpen)

	s.buf = make([]byte, BufferSize)
	s.digest = util.NewDigest()
	s.enter(Streaming)
	if err := s.stream(ctx); err != nil {
		if aerr := s.writer.Abort(); aerr != nil {
			log.Warn().Err(aerr).Str("action", "transfer").Str("destination", s.dstPath).Msg("abort destination failed")
		}
		return err
	}

	s.enter(Finalizing)
	if err := s.writer.Close(); err != nil {
		return &FinalizeError{Path: s.dstPath, Err: err}
	}
	s.enter(Complete)
	return nil
}

// stream moves bytes until the reader reports io.EOF. Each chunk read is
// written in full before the next read.
func (s *session) stream(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return &StreamError{Op: "read", Written: s.digest.Size(), Err: errors.WithStack(err)}
		}
		n, rerr := s.fill()
		if n > 0 {
			if err := s.write(s.buf[:n]); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return &StreamError{Op: "read", Written: s.digest.Size(), Err: rerr}
		}
	}
}

// fill reads into the buffer until it is full or the reader returns an error.
// Short reads from network bodies would otherwise produce tiny writes.
func (s *session) fill() (int, error) {
	n := 0
	for n < len(s.buf) {
		m, err := s.reader.Read(s.buf[n:])
		n += m
		if err != nil {
			return n, err
		}
		if m == 0 {
			// A reader returning 0, nil repeatedly is misbehaving; hand back
			// what we have and let the next call retry.
			return n, nil
		}
	}
	return n, nil
}

func (s *session) write(p []byte) error {
	for len(p) > 0 {
		n, err := s.writer.Write(p)
		if n > 0 {
			_, _ = s.digest.Write(p[:n])
		}
		if err != nil {
			return &StreamError{Op: "write", Written: s.digest.Size(), Err: err}
		}
		if n == 0 {
			return &StreamError{Op: "write", Written: s.digest.Size(), Err: errors.WithStack(io.ErrShortWrite)}
		}
		p = p[n:]
	}
	return nil
}

func (s *session) closeReader() {
	if err := s.reader.Close(); err != nil {
		log.Warn().Err(err).Str("action", "transfer").Str("source", s.srcPath).Msg("close source failed")
	}
}
