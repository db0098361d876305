// Package location resolves "<profile>:<path>" strings into storage operators.
package location

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gitlab.com/tozd/go/errors"

	"github.com/Chapsvision-dev/ferry/internal/config"
	"github.com/Chapsvision-dev/ferry/internal/operator"
	"github.com/Chapsvision-dev/ferry/internal/operator/fs"
)

// Delimiter separates the profile selector from the path.
const Delimiter = ":"

// TypeKey is the profile option naming the backend kind.
const TypeKey = "type"

// Location is a resolved object reference. Profile is empty for bare local
// paths. Raw is the string the location was parsed from.
type Location struct {
	Profile  string
	Operator operator.Operator
	Path     string
	Raw      string
}

func (l Location) String() string {
	switch {
	case l.Raw != "":
		return l.Raw
	case l.Profile == "":
		return l.Path
	}
	return l.Profile + Delimiter + l.Path
}

// SyntaxError reports a location string that can not be split into a
// selector and a path. No backend was contacted.
type SyntaxError struct {
	Raw    string
	Reason string
}

func (e *SyntaxError) Error() string {
	return "invalid location " + quote(e.Raw) + ": " + e.Reason
}

// ProfileNotFoundError reports a selector that names no known profile.
type ProfileNotFoundError struct {
	Name string
}

func (e *ProfileNotFoundError) Error() string {
	return "unknown profile " + quote(e.Name)
}

// OperatorError reports a profile that was found but whose backend could not
// be constructed.
type OperatorError struct {
	Profile string
	Kind    string
	Err     error
}

func (e *OperatorError) Error() string {
	msg := "local path"
	if e.Profile != "" {
		msg = "profile " + quote(e.Profile)
	}
	if e.Kind != "" {
		msg += " (" + e.Kind + ")"
	}
	return msg + ": " + e.Err.Error()
}

func (e *OperatorError) Unwrap() error { return e.Err }

// Factory constructs an operator of the given kind.
type Factory func(ctx context.Context, kind string, opts operator.Options) (operator.Operator, error)

// Resolver turns location strings into Locations. It holds no mutable state;
// every Parse builds a fresh operator.
type Resolver struct {
	store   *config.Store
	factory Factory
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFactory replaces backend construction.
func WithFactory(f Factory) Option {
	return func(r *Resolver) { r.factory = f }
}

// NewResolver returns a resolver over store.
func NewResolver(store *config.Store, opts ...Option) *Resolver {
	r := &Resolver{store: store, factory: operator.New}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Split separates raw at the first delimiter. ok is false when raw has no
// delimiter and should be read as a local path.
func Split(raw string) (selector, path string, ok bool, err error) {
	selector, path, ok = strings.Cut(raw, Delimiter)
	if !ok {
		return "", raw, false, nil
	}
	switch {
	case selector == "":
		return "", "", true, &SyntaxError{Raw: raw, Reason: "empty profile name"}
	case !config.ValidProfileName(selector):
		return "", "", true, &SyntaxError{Raw: raw, Reason: "profile name " + quote(selector) + " contains invalid characters"}
	case path == "":
		return "", "", true, &SyntaxError{Raw: raw, Reason: "empty path"}
	case strings.HasPrefix(path, "//"):
		return "", "", true, &SyntaxError{Raw: raw, Reason: "URL-style locations are not supported, use <profile>:<path>"}
	}
	return selector, path, true, nil
}

// Parse resolves raw. "<profile>:<path>" looks the profile up in the store;
// a string without delimiter is a local file path.
func (r *Resolver) Parse(ctx context.Context, raw string) (Location, error) {
	selector, path, ok, err := Split(raw)
	if err != nil {
		return Location{}, err
	}
	if !ok {
		return r.local(ctx, raw)
	}

	profile, found := r.store.Profile(selector)
	if !found {
		return Location{}, &ProfileNotFoundError{Name: selector}
	}
	kind := strings.TrimSpace(profile.Options[TypeKey])
	if kind == "" {
		return Location{}, &OperatorError{Profile: selector, Err: errors.Errorf("missing %q option", TypeKey)}
	}
	op, err := r.factory(ctx, kind, operator.Options(profile.Options))
	if err != nil {
		return Location{}, &OperatorError{Profile: selector, Kind: kind, Err: err}
	}

	log.Debug().Str("action", "resolve").Str("profile", selector).Str("kind", kind).Str("path", path).
		Msg("location resolved")
	return Location{Profile: selector, Operator: op, Path: path, Raw: raw}, nil
}

// local roots an fs operator at the parent directory of raw. raw must name
// a file: a trailing separator, "." or ".." is rejected before the path is
// made absolute, since Abs would silently turn those into a directory name.
func (r *Resolver) local(ctx context.Context, raw string) (Location, error) {
	if strings.TrimSpace(raw) == "" {
		return Location{}, &SyntaxError{Raw: raw, Reason: "empty path"}
	}
	if strings.HasSuffix(raw, "/") || strings.HasSuffix(raw, string(filepath.Separator)) {
		return Location{}, &SyntaxError{Raw: raw, Reason: "path names a directory"}
	}
	if b := filepath.Base(raw); b == "." || b == ".." {
		return Location{}, &SyntaxError{Raw: raw, Reason: "path does not name a file"}
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return Location{}, &SyntaxError{Raw: raw, Reason: err.Error()}
	}
	dir, base := filepath.Split(abs)
	if base == "" {
		return Location{}, &SyntaxError{Raw: raw, Reason: "path does not name a file"}
	}
	op, err := r.factory(ctx, fs.KindFS, operator.Options{"root": dir})
	if err != nil {
		return Location{}, &OperatorError{Kind: fs.KindFS, Err: err}
	}
	return Location{Operator: op, Path: base, Raw: raw}, nil
}

func quote(s string) string {
	return "`" + s + "`"
}
