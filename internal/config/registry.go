package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/MrWong99/audiosync/pkg/audio"
)

// ErrBackendNotRegistered is returned by [Registry.CreateDevice] when no
// factory has been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// DeviceFactory builds a host audio device from the audio section.
type DeviceFactory func(cfg AudioConfig, log *slog.Logger) (audio.Device, error)

// Registry maps backend names to device factories. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]DeviceFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]DeviceFactory)}
}

// RegisterDevice registers a device factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterDevice(name string, factory DeviceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[name] = factory
}

// Backends returns the registered backend names in sorted order.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.devices))
	for name := range r.devices {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// CreateDevice instantiates the device registered under cfg.Backend.
// Returns [ErrBackendNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) CreateDevice(cfg AudioConfig, log *slog.Logger) (audio.Device, error) {
	r.mu.RLock()
	factory, ok := r.devices[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotRegistered, cfg.Backend)
	}
	return factory(cfg, log)
}
