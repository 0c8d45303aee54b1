package credstore

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidConfig = errors.New("credstore: invalid config")

// Credentials is the persisted blob set for one messaging identity. Keys are
// driver-chosen names; values are opaque.
type Credentials map[string][]byte

// Empty reports whether no credential material is present. An empty set on
// load is the normal first-run condition and triggers a fresh pairing flow.
func (c Credentials) Empty() bool { return len(c) == 0 }

// Clone returns an independent copy so callers can hold credentials across
// store mutations.
func (c Credentials) Clone() Credentials {
	if c == nil {
		return nil
	}
	out := make(Credentials, len(c))
	for k, v := range c {
		blob := make([]byte, len(v))
		copy(blob, v)
		out[k] = blob
	}
	return out
}

// Store persists credentials across process restarts.
//
// Load returns an empty set when nothing is stored; missing credentials is
// not an error. Save replaces the stored set atomically: a failed save never
// loses previously valid material. Invalidate deletes everything and is
// idempotent.
type Store interface {
	Load() (Credentials, error)
	Save(Credentials) error
	Invalidate() error
}

// Config selects and parameterizes the backing store.
type Config struct {
	// Dir is the directory for the filesystem backend. Used when RedisAddr
	// is empty.
	Dir string

	// RedisAddr enables the Redis backend when non-empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// RedisKey is the hash key holding the blob set. Defaults to
	// "bridgectl:credentials".
	RedisKey string
}

// New creates either a directory-backed or Redis-backed store based on
// configuration.
func New(cfg Config) (Store, error) {
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		return NewRedisStore(cfg)
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("%w: credential dir or redis addr required", ErrInvalidConfig)
	}
	return NewDirStore(cfg.Dir)
}
