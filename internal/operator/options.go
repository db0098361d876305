package operator

import (
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// Options is the flat key/value map a backend is constructed from.
type Options map[string]string

// Get returns the trimmed value for key, or def when unset or blank.
func (o Options) Get(key, def string) string {
	if v, ok := o[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// Require returns the value for key or an error naming the missing key.
func (o Options) Require(key string) (string, error) {
	v := o.Get(key, "")
	if v == "" {
		return "", errors.Errorf("missing required option %q", key)
	}
	return v, nil
}

// Bool parses a boolean option. Unset means def.
func (o Options) Bool(key string, def bool) (bool, error) {
	v := o.Get(key, "")
	if v == "" {
		return def, nil
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Errorf("option %q: invalid boolean %q", key, v)
	}
	return b, nil
}

// JoinKey joins a root prefix and a relative object path into an object key
// without leading slash.
func JoinKey(root, path string) string {
	root = strings.Trim(root, "/")
	path = strings.TrimPrefix(path, "/")
	if root == "" {
		return path
	}
	return root + "/" + path
}
