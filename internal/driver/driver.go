// Package driver defines the plugin contract for data sources and output
// services, and a registry resolving configured names to implementations.
// Registration happens at startup (typically from init functions); resolving
// an unknown name is a configuration error raised before any retrieval I/O.
package driver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"wxvault/internal/models"
	"wxvault/internal/store"
)

// Retriever is the retrieval entry point: fetch time-indexed records for one
// station and model over the requested range. Implementations live outside
// the engine (MOS, BUFKIT, NWS, observation feeds) and should wrap failures
// in models.RetrievalError.
type Retriever interface {
	Retrieve(ctx context.Context, station models.Station, model models.ModelConfig, dr models.DateRange) ([]models.TimeSeriesRecord, []models.DailyRecord, error)
}

// Outputter renders archived data (plots, web artifacts). It only gets the
// read-only query surface of the store.
type Outputter interface {
	Output(ctx context.Context, reader Reader, stations []models.Station, modelNames []string) error
}

// Reader is the read-only store surface handed to output services.
type Reader interface {
	ReadTimeSeries(stationID, model string, dr models.DateRange) ([]models.TimeSeriesRecord, error)
	ReadDaily(stationID, model string, dr models.DateRange) ([]models.DailyRecord, error)
}

var _ Reader = (*store.Store)(nil)

type Registry struct {
	mu      sync.RWMutex
	drivers map[string]interface{}
}

func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]interface{})}
}

// Register adds a driver under name. Registering a duplicate name panics:
// it is a programming error, matching database/sql driver registration.
func (r *Registry) Register(name string, d interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d == nil {
		panic("driver: Register driver is nil")
	}
	if _, dup := r.drivers[name]; dup {
		panic("driver: Register called twice for " + name)
	}
	r.drivers[name] = d
}

// Retriever resolves name to a retrieval driver.
func (r *Registry) Retriever(name string) (Retriever, error) {
	d, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	ret, ok := d.(Retriever)
	if !ok {
		return nil, &models.ConfigError{Reason: fmt.Sprintf("driver %q has no retrieval entry point", name)}
	}
	return ret, nil
}

// Outputter resolves name to an output service.
func (r *Registry) Outputter(name string) (Outputter, error) {
	d, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	out, ok := d.(Outputter)
	if !ok {
		return nil, &models.ConfigError{Reason: fmt.Sprintf("driver %q is not an output service", name)}
	}
	return out, nil
}

func (r *Registry) lookup(name string) (interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	if !ok {
		return nil, &models.ConfigError{Reason: fmt.Sprintf("unknown driver %q (registered: %v)", name, r.names())}
	}
	return d, nil
}

// names assumes the read lock is held.
func (r *Registry) names() []string {
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// Register adds a driver to the default registry.
func Register(name string, d interface{}) {
	defaultRegistry.Register(name, d)
}

// Default returns the process-wide registry drivers register into.
func Default() *Registry {
	return defaultRegistry
}
