// Package fs implements the "fs" (local disk) and "memory" backends on top of
// go-billy filesystems.
//
// Writes are staged in a temporary file next to the target and renamed into
// place on Close, so readers never observe a partially written object.
package fs

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gitlab.com/tozd/go/errors"

	"github.com/Chapsvision-dev/ferry/internal/operator"
)

const (
	KindFS     = "fs"
	KindMemory = "memory"

	tempPrefix = ".ferry-"
	fileMode   = 0o644
)

func init() {
	operator.Register(KindFS, func(_ context.Context, opts operator.Options) (operator.Operator, error) {
		root, err := opts.Require("root")
		if err != nil {
			return nil, err
		}
		return NewLocal(root), nil
	})
	operator.Register(KindMemory, func(context.Context, operator.Options) (operator.Operator, error) {
		return NewMemory(), nil
	})
}

// Operator serves objects from a billy filesystem.
type Operator struct {
	kind string
	fs   billy.Filesystem

	// mu guards namespace changes; memfs keeps its tree in an unsynchronized map.
	mu sync.Mutex
}

// NewLocal returns an operator rooted at dir on the local disk. Paths can not
// escape dir.
func NewLocal(dir string) *Operator {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return New(KindFS, osfs.New(dir))
}

// NewMemory returns an operator over an empty in-memory filesystem.
func NewMemory() *Operator {
	return New(KindMemory, memfs.New())
}

// New wraps an existing billy filesystem under the given kind.
func New(kind string, fs billy.Filesystem) *Operator {
	return &Operator{kind: kind, fs: fs}
}

func (o *Operator) Kind() string { return o.kind }

// Reader opens the file at p.
func (o *Operator) Reader(_ context.Context, p string) (io.ReadCloser, error) {
	name := clean(p)
	if name == "" {
		return nil, errors.Errorf("%s: empty path", o.kind)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	fi, err := o.fs.Stat(name)
	if err != nil {
		return nil, translateError(name, err)
	}
	if fi.IsDir() {
		return nil, errors.Errorf("%s: %q is a directory", o.kind, name)
	}
	f, err := o.fs.Open(name)
	if err != nil {
		return nil, translateError(name, err)
	}
	return f, nil
}

// Writer stages writes in a temporary file beside p. The staging file is
// created with mode 0644 (minus umask) and keeps it through the rename.
func (o *Operator) Writer(_ context.Context, p string) (operator.Writer, error) {
	name := clean(p)
	if name == "" || strings.HasSuffix(p, "/") {
		return nil, errors.Errorf("%s: invalid object path %q", o.kind, p)
	}
	dir := path.Dir(name)

	o.mu.Lock()
	defer o.mu.Unlock()

	if fi, err := o.fs.Stat(name); err == nil && fi.IsDir() {
		return nil, errors.Errorf("%s: %q is a directory", o.kind, name)
	}
	if dir != "." {
		if err := o.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Errorf("%s: mkdir %q: %w", o.kind, dir, err)
		}
	}
	tmpName := path.Join(dir, tempPrefix+uuid.NewString())
	tmp, err := o.fs.OpenFile(tmpName, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fileMode)
	if err != nil {
		return nil, errors.Errorf("%s: create temp file in %q: %w", o.kind, dir, err)
	}
	return &writer{op: o, tmp: tmp, tmpName: tmpName, target: name}, nil
}

type writer struct {
	op      *Operator
	tmp     billy.File
	tmpName string
	target  string
	ended   bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.ended {
		return 0, os.ErrClosed
	}
	return w.tmp.Write(p)
}

// Close flushes the temp file and renames it over the target.
func (w *writer) Close() error {
	if w.ended {
		return os.ErrClosed
	}
	w.ended = true

	if err := w.tmp.Close(); err != nil {
		w.discard()
		return errors.Errorf("%s: close %q: %w", w.op.kind, w.tmpName, err)
	}

	w.op.mu.Lock()
	defer w.op.mu.Unlock()
	if err := w.op.fs.Rename(w.tmpName, w.target); err != nil {
		_ = w.op.fs.Remove(w.tmpName)
		return errors.Errorf("%s: commit %q: %w", w.op.kind, w.target, err)
	}
	return nil
}

// Abort removes the temp file; the target is left as it was.
func (w *writer) Abort() error {
	if w.ended {
		return nil
	}
	w.ended = true
	_ = w.tmp.Close()
	w.discard()
	return nil
}

func (w *writer) discard() {
	w.op.mu.Lock()
	defer w.op.mu.Unlock()
	if err := w.op.fs.Remove(w.tmpName); err != nil {
		log.Warn().Err(err).Str("file", w.tmpName).Msg("failed to remove staged file")
	}
}

func clean(p string) string {
	p = path.Clean("/" + strings.TrimSpace(p))
	return strings.TrimPrefix(p, "/")
}

func translateError(name string, err error) error {
	if os.IsNotExist(err) || errors.Is(err, os.ErrNotExist) {
		return errors.Errorf("%q: %w", name, operator.ErrNotExist)
	}
	return errors.WithStack(err)
}
