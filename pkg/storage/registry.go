package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownBackend indicates a backend name with no registered driver.
var ErrUnknownBackend = errors.New("unknown storage backend")

// InitFunc constructs a backend from its configuration parameters. Parameter
// keys are lowercase and come straight from the storage configuration
// section for the driver.
type InitFunc func(ctx context.Context, params map[string]any) (Backend, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]InitFunc)
)

// Register makes a backend driver available by name. Drivers call it from
// an init function. Registering a nil InitFunc or the same name twice panics.
func Register(name string, initFunc InitFunc) {
	if initFunc == nil {
		panic("storage: Register called with nil InitFunc")
	}
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[name]; dup {
		panic(fmt.Sprintf("storage: driver %q already registered", name))
	}
	drivers[name] = initFunc
}

// Create instantiates the named driver with the given parameters.
func Create(ctx context.Context, name string, params map[string]any) (Backend, error) {
	driversMu.RLock()
	initFunc, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownBackend, name, Drivers())
	}
	backend, err := initFunc(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("initializing storage backend %q: %w", name, err)
	}
	return backend, nil
}

// Drivers returns the registered driver names in sorted order.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
