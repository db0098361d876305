package operator

import (
	"context"
	"sort"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// Factory builds an operator from a profile's option map.
type Factory func(ctx context.Context, opts Options) (Operator, error)

var registry = map[string]Factory{}

// Register binds a backend kind to its factory.
func Register(kind string, f Factory) {
	registry[kind] = f
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New returns an operator of the given kind.
func New(ctx context.Context, kind string, opts Options) (Operator, error) {
	f, ok := registry[kind]
	if !ok {
		return nil, errors.Errorf("unknown backend %q, options: %s", kind, strings.Join(Kinds(), ", "))
	}
	return f(ctx, opts)
}
