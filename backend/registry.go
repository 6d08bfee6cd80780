package backend

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/texvk/native"
)

// DeviceFactory creates a device. It returns an error when the backend
// cannot run on this machine.
type DeviceFactory func() (native.Device, error)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]DeviceFactory)
	// Priority order for backend selection (first available wins).
	backendPriority = []string{Vulkan, Software}
)

// Register registers a device factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory DeviceFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the sorted names of registered backends.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Get creates a device of the named backend.
func Get(name string) (native.Device, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	return factory()
}

// Default creates a device of the best available backend and returns it
// with the backend name. Priority order: vulkan > software, then any other
// registered backend in name order.
func Default() (native.Device, string, error) {
	registryMu.RLock()
	order := slices.Clone(backendPriority)
	extra := make([]string, 0, len(backends))
	for name := range backends {
		if !slices.Contains(order, name) {
			extra = append(extra, name)
		}
	}
	registryMu.RUnlock()
	slices.Sort(extra)

	var errs []error
	for _, name := range append(order, extra...) {
		if !IsRegistered(name) {
			continue
		}
		dev, err := Get(name)
		if err == nil {
			return dev, name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return nil, "", fmt.Errorf("%w: %w", ErrBackendNotAvailable, errors.Join(errs...))
}

// MustDefault returns the default device or panics.
func MustDefault() native.Device {
	dev, _, err := Default()
	if err != nil {
		panic(err)
	}
	return dev
}
