package store

import (
	"sync"
	"time"

	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"

	"github.com/sebmartin/ve-renogy-rover/internal/core/domain"
	"github.com/sebmartin/ve-renogy-rover/internal/core/mapper"
	"github.com/sebmartin/ve-renogy-rover/internal/settings"
	"github.com/sebmartin/ve-renogy-rover/pkg/rover_modbus"
)

// PublishedValue is one row of the published table.
type PublishedValue struct {
	Path        string
	Value       domain.Value
	LastUpdated time.Time
}

// StoreChangedEvent is published on the eventstream after every batch that
// changed at least one value.
type StoreChangedEvent struct {
	Changes []PublishedValue
}

// PathStore is the single source of truth for the IPC surface: an
// addressable table path → current value. Keys are fixed at construction
// from the mapper's table, only values change at runtime. The poll side and
// the D-Bus dispatch goroutine share exactly this structure.
type PathStore struct {
	mu      sync.RWMutex
	order   []string
	dynamic map[string]bool
	values  map[string]PublishedValue

	eventStream *eventstream.EventStream
	settings    *settings.Store
	logger      *zap.Logger
}

// NewPathStore seeds the full key set: identity paths with their known
// values (custom name included, so the stored name is visible before the
// first poll) and quantity paths as null.
func NewPathStore(id domain.DeviceIdentity, sett *settings.Store, es *eventstream.EventStream, logger *zap.Logger) *PathStore {
	s := &PathStore{
		dynamic:     make(map[string]bool),
		values:      make(map[string]PublishedValue),
		eventStream: es,
		settings:    sett,
		logger:      logger,
	}
	now := time.Now()
	for _, pv := range mapper.IdentityValues(id, sett.Current()) {
		s.order = append(s.order, pv.Path)
		s.values[pv.Path] = PublishedValue{Path: pv.Path, Value: pv.Value, LastUpdated: now}
	}
	for _, path := range mapper.DynamicPaths() {
		s.order = append(s.order, path)
		s.dynamic[path] = true
		s.values[path] = PublishedValue{Path: path, Value: domain.InvalidValue(), LastUpdated: now}
	}
	return s
}

func (s *PathStore) Get(path string) (PublishedValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pv, ok := s.values[path]
	return pv, ok
}

// Apply applies one coherent update batch from the poll side. Timestamps
// refresh on every apply, a change event fires only if at least one value
// actually changed. Applying an identical snapshot twice is a no-op event
// wise.
func (s *PathStore) Apply(updates []domain.PathValue) {
	s.mu.Lock()
	changes := s.apply(updates)
	s.mu.Unlock()
	s.notify(changes)
}

// SetFromExternal routes an inbound write from the bus surface. The path
// must be in the writable allow-list and the value must pass the inverse
// mapping. The accepted value is persisted through the settings store; on a
// persistence failure the in-memory value is still applied and the change
// notification still fires, so the running session stays usable.
func (s *PathStore) SetFromExternal(path string, value domain.Value) error {
	normalized, err := mapper.NormalizeExternalWrite(path, value)
	if err != nil {
		return err
	}
	var persistErr error
	if path == mapper.PathCustomName {
		if persistErr = s.settings.SetCustomName(normalized.Text); persistErr != nil {
			s.logger.Error("could not persist custom name", zap.Error(persistErr))
		}
	}
	s.mu.Lock()
	changes := s.apply([]domain.PathValue{{Path: path, Value: normalized}})
	s.mu.Unlock()
	s.notify(changes)
	return persistErr
}

// InvalidateDynamic nulls every quantity path and drops /Connected to 0 in
// one batch, so observers see a disconnect as a single coherent event.
// Identity paths, /CustomName included, are untouched.
func (s *PathStore) InvalidateDynamic() {
	updates := make([]domain.PathValue, 0, len(s.dynamic)+1)
	for _, path := range s.order {
		if s.dynamic[path] {
			updates = append(updates, domain.PathValue{Path: path, Value: domain.InvalidValue()})
		}
	}
	updates = append(updates, domain.PathValue{Path: mapper.PathConnected, Value: domain.IntValue(0)})
	s.Apply(updates)
}

// ApplyIdentity refreshes the identity paths from a fresh device read and
// caches the result through the settings store. A persistence failure is
// logged, the in-memory identity still updates.
func (s *PathStore) ApplyIdentity(info *rover_modbus.DeviceInfo) {
	if err := s.settings.UpdateFromDevice(info); err != nil {
		s.logger.Error("could not persist device identity", zap.Error(err))
	}
	s.Apply(mapper.DetailsValues(s.settings.Current()))
}

// SetConnected publishes the /Connected transition.
func (s *PathStore) SetConnected(connected bool) {
	v := int64(0)
	if connected {
		v = 1
	}
	s.Apply([]domain.PathValue{{Path: mapper.PathConnected, Value: domain.IntValue(v)}})
}

// Snapshot returns a copy of the full table in registration order.
func (s *PathStore) Snapshot() []PublishedValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make([]PublishedValue, 0, len(s.order))
	for _, path := range s.order {
		snapshot = append(snapshot, s.values[path])
	}
	return snapshot
}

// apply mutates rows under the caller's lock and returns the changed ones.
func (s *PathStore) apply(updates []domain.PathValue) []PublishedValue {
	now := time.Now()
	var changes []PublishedValue
	for _, u := range updates {
		current, ok := s.values[u.Path]
		if !ok {
			s.logger.Warn("update for unknown path dropped", zap.String("path", u.Path))
			continue
		}
		changed := !current.Value.Equal(u.Value)
		next := PublishedValue{Path: u.Path, Value: u.Value, LastUpdated: now}
		s.values[u.Path] = next
		if changed {
			changes = append(changes, next)
		}
	}
	return changes
}

func (s *PathStore) notify(changes []PublishedValue) {
	if len(changes) == 0 {
		return
	}
	s.eventStream.Publish(&StoreChangedEvent{Changes: changes})
}
