package operator

import (
	"context"
	"io"

	"gitlab.com/tozd/go/errors"
)

// ErrAborted is the read error an upload sees when its writer is aborted.
var ErrAborted = errors.Base("write aborted")

var errWriterDone = errors.Base("writer already closed")

// UploadFunc consumes r until EOF and commits the object. It must not commit
// when r returns an error other than io.EOF.
type UploadFunc func(ctx context.Context, r io.Reader) error

type pipeWriter struct {
	pw     *io.PipeWriter
	cancel context.CancelFunc
	done   chan error
	ended  bool
}

// NewPipeWriter adapts a streaming upload call to a Writer. The upload runs in
// its own goroutine reading from a pipe fed by Write; Close ends the stream and
// waits for the upload result, Abort fails the stream and cancels the upload.
func NewPipeWriter(ctx context.Context, upload UploadFunc) Writer {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	w := &pipeWriter{
		pw:     pw,
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() {
		err := upload(ctx, pr)
		// unblock a pending Write if the upload stopped reading early
		if err != nil {
			_ = pr.CloseWithError(err)
		} else {
			_ = pr.Close()
		}
		w.done <- err
	}()
	return w
}

func (w *pipeWriter) Write(p []byte) (int, error) {
	if w.ended {
		return 0, errWriterDone
	}
	return w.pw.Write(p)
}

func (w *pipeWriter) Close() error {
	if w.ended {
		return errWriterDone
	}
	w.ended = true
	defer w.cancel()
	_ = w.pw.Close()
	if err := <-w.done; err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (w *pipeWriter) Abort() error {
	if w.ended {
		return nil
	}
	w.ended = true
	w.cancel()
	_ = w.pw.CloseWithError(ErrAborted)
	<-w.done
	return nil
}
