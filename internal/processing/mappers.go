package processing

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/biopipe/internal/observation"
	"github.com/JonMunkholm/biopipe/internal/verbatim"
)

// Mapper converts one verbatim record to a canonical observation. A mapper
// is created per provider run and may be called from many goroutines.
type Mapper interface {
	Map(rec verbatim.Record) (*observation.Observation, error)
}

// MapperFunc adapts a function to Mapper.
type MapperFunc func(rec verbatim.Record) (*observation.Observation, error)

func (f MapperFunc) Map(rec verbatim.Record) (*observation.Observation, error) { return f(rec) }

// MapperFactory builds the mapper for a provider.
type MapperFactory func(provider *observation.DataProvider, lookups *Lookups) Mapper

// Mappers dispatches provider types to mapper factories. It is filled at
// startup and read afterwards.
type Mappers struct {
	mu        sync.RWMutex
	factories map[observation.DataProviderType]MapperFactory
}

// NewMappers returns an empty dispatch table.
func NewMappers() *Mappers {
	return &Mappers{factories: make(map[observation.DataProviderType]MapperFactory)}
}

// DefaultMappers registers the Darwin Core mapper for every known provider
// type. Sources without a dedicated mapper deliver Darwin Core terms.
func DefaultMappers() *Mappers {
	m := NewMappers()
	for t := observation.DwcaProvider; t <= observation.FishDataProvider; t++ {
		m.Register(t, NewDwcMapper)
	}
	return m
}

// Register adds a factory. Registering a type twice panics.
func (m *Mappers) Register(t observation.DataProviderType, f MapperFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.factories[t]; exists {
		panic(fmt.Sprintf("mapper already registered: %s", t))
	}
	m.factories[t] = f
}

// For returns the mapper for provider.
func (m *Mappers) For(provider *observation.DataProvider, lookups *Lookups) (Mapper, error) {
	m.mu.RLock()
	f, ok := m.factories[provider.Type]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no mapper registered for provider type %s", provider.Type)
	}
	return f(provider, lookups), nil
}

// Types returns the registered provider types in ascending order.
func (m *Mappers) Types() []observation.DataProviderType {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]observation.DataProviderType, 0, len(m.factories))
	for t := range m.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
