// Package config loads named storage profiles.
//
// A profile is a flat string map sufficient to construct one storage operator;
// the "type" key selects the backend. Profiles come from a config file and
// from FERRY_PROFILE_<NAME>_<KEY> environment variables, which win.
package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"gitlab.com/tozd/go/errors"
)

const (
	// EnvConfigPath overrides the default config file location.
	EnvConfigPath = "FERRY_CONFIG"
	// EnvProfilePrefix prefixes per-profile option overrides.
	EnvProfilePrefix = "FERRY_PROFILE_"
)

var profileName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidProfileName reports whether name can be used as a location selector.
func ValidProfileName(name string) bool {
	return profileName.MatchString(name)
}

// Error is returned when the configuration source is unreadable or malformed.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "config: " + e.Err.Error()
	}
	return "config " + e.Path + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Profile is a named option map.
type Profile struct {
	Name    string
	Options map[string]string
}

// Store indexes profiles by name. It is read-only after construction and
// safe for concurrent use.
type Store struct {
	path     string
	profiles map[string]map[string]string
}

// DefaultPath returns $FERRY_CONFIG or <user config dir>/ferry/config.yaml.
func DefaultPath() string {
	if v, ok := os.LookupEnv(EnvConfigPath); ok && strings.TrimSpace(v) != "" {
		return v
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "ferry", "config.yaml")
}

// Load reads profiles from path and applies overrides from the process
// environment.
func Load(path string) (*Store, error) {
	return LoadFrom(path, os.Environ())
}

// LoadFrom reads profiles from path and applies overrides from environ
// (KEY=value pairs). A missing file is an empty source.
func LoadFrom(path string, environ []string) (*Store, error) {
	profiles := map[string]map[string]string{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		profiles, err = parse(path, data)
		if err != nil {
			return nil, &Error{Path: path, Err: err}
		}
	case errors.Is(err, os.ErrNotExist):
		log.Debug().Str("path", path).Msg("config file not found, using environment only")
	default:
		return nil, &Error{Path: path, Err: errors.WithStack(err)}
	}

	applyEnv(profiles, environ)

	s, err := New(profiles)
	if err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			cerr.Path = path
		}
		return nil, err
	}
	s.path = path
	log.Debug().Str("path", path).Int("profiles", len(s.profiles)).Msg("configuration loaded")
	return s, nil
}

// New builds a store from in-memory profiles. The maps are copied.
func New(profiles map[string]map[string]string) (*Store, error) {
	s := &Store{profiles: make(map[string]map[string]string, len(profiles))}
	for name, opts := range profiles {
		if !ValidProfileName(name) {
			return nil, &Error{Err: errors.Errorf("invalid profile name %q: use letters, digits, '.', '_' or '-'", name)}
		}
		s.profiles[name] = copyOptions(opts)
	}
	return s, nil
}

// Path returns the file the store was loaded from, if any.
func (s *Store) Path() string { return s.path }

// ProfileNames returns every profile name in no particular order.
func (s *Store) ProfileNames() []string {
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	return names
}

// Profile returns the named profile. The option map is a copy.
func (s *Store) Profile(name string) (Profile, bool) {
	opts, ok := s.profiles[name]
	if !ok {
		return Profile{}, false
	}
	return Profile{Name: name, Options: copyOptions(opts)}, true
}

// applyEnv merges FERRY_PROFILE_<NAME>_<KEY>=value entries. Name and key are
// split at the first underscore after the prefix. Keys are lower-cased. The
// name matches an existing profile case-insensitively, so FERRY_PROFILE_PROD_*
// overrides a file profile "Prod"; unmatched names create a lower-case
// profile. A name matching several profiles only by case is ignored.
func applyEnv(profiles map[string]map[string]string, environ []string) {
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, EnvProfilePrefix) {
			continue
		}
		name, key, ok := strings.Cut(strings.TrimPrefix(k, EnvProfilePrefix), "_")
		if !ok || name == "" || key == "" {
			log.Warn().Str("env", k).Msg("ignoring malformed profile override")
			continue
		}
		target, ok := matchProfile(profiles, name)
		if !ok {
			log.Warn().Str("env", k).Msg("ignoring profile override matching several profiles")
			continue
		}
		if profiles[target] == nil {
			profiles[target] = map[string]string{}
		}
		profiles[target][strings.ToLower(key)] = v
	}
}

// matchProfile resolves an env name to a profile name. An exact match wins,
// then a unique case-insensitive match, then the lower-cased name.
func matchProfile(profiles map[string]map[string]string, name string) (string, bool) {
	if _, ok := profiles[name]; ok {
		return name, true
	}
	var matches []string
	for existing := range profiles {
		if strings.EqualFold(existing, name) {
			matches = append(matches, existing)
		}
	}
	switch len(matches) {
	case 0:
		return strings.ToLower(name), true
	case 1:
		return matches[0], true
	}
	if _, ok := profiles[strings.ToLower(name)]; ok {
		return strings.ToLower(name), true
	}
	return "", false
}

func copyOptions(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
