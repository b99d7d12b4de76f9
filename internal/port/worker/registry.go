package worker

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Options configures an Invoker built through the registry.
type Options struct {
	BaseURL              string
	APIKey               string
	NATSURL              string
	Timeout              time.Duration
	MaxRetries           int
	RetryInitialInterval time.Duration
	BreakerMaxFailures   int
	BreakerTimeout       time.Duration
}

// Factory is a constructor function that creates a new Invoker for a transport.
type Factory func(opts Options) (Invoker, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a transport available by name.
// It is typically called from an init() function in the adapter package.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("worker: duplicate registration for %q", name))
	}
	factories[name] = factory
}

// New creates an Invoker for the named transport using its registered factory.
func New(name string, opts Options) (Invoker, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("worker: unknown transport %q", name)
	}
	return factory(opts)
}

// Available returns the names of all registered transports, sorted.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
