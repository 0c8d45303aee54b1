package driver

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkrell/bridgectl/internal/bridge"
)

var ErrUnknownDriver = errors.New("driver: unknown driver")

// Config parameterizes driver construction.
type Config struct {
	Logger zerolog.Logger

	// AutoPairDelay applies to the loopback driver only: how long a fresh
	// identity waits before "scanning" its own challenge.
	AutoPairDelay time.Duration
}

// Factory creates a bridge.Opener from the given configuration. Each driver
// registers its own factory in init().
type Factory func(cfg Config) (bridge.Opener, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a driver factory to the registry. Panics if the name is
// already taken.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("driver %q already registered", name))
	}
	registry[name] = factory
}

// New creates an Opener using the named driver. Returns ErrUnknownDriver for
// unregistered names.
func New(name string, cfg Config) (bridge.Opener, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, name)
	}
	return factory(cfg)
}

// Available returns the registered driver names, sorted for stable output.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a driver is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}
