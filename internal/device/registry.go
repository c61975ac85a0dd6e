package device

import (
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the in-memory device registry with durable flat-file snapshots.
//
// Every mutating call (Upsert, Delete, Clear, ChangeState, ChangeStates)
// flushes the snapshot before returning, so a completed call is crash-safe.
// A single mutex serializes all access: event volumes are residential-scale,
// so simplicity wins over per-id locking.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	store   Store
	records map[string]*Record
	version string
	logger  Logger
}

// NewRegistry creates a registry backed by the given snapshot store.
// The version string stamps hw/sw versions on newly created records.
func NewRegistry(store Store, version string) *Registry {
	return &Registry{
		store:   store,
		records: make(map[string]*Record),
		version: version,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Load reads the snapshot from the store, replacing in-memory state.
// This should be called once at startup.
func (r *Registry) Load() error {
	records, err := r.store.Load()
	if err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}

	r.mu.Lock()
	r.records = records
	r.mu.Unlock()

	r.logger.Info("device registry loaded", "count", len(records))
	return nil
}

// Save flushes the current registry to the snapshot store.
func (r *Registry) Save() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saveLocked()
}

// saveLocked persists the snapshot. Caller must hold r.mu (read or write).
func (r *Registry) saveLocked() error {
	if err := r.store.Save(r.records); err != nil {
		return fmt.Errorf("saving registry: %w", err)
	}
	return nil
}

// Get retrieves a device by id. The returned record is a deep copy;
// callers can safely modify it.
func (r *Registry) Get(id string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, false
	}
	return rec.DeepCopy(), true
}

// Exists reports whether a device id is present in the registry.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[id]
	return ok
}

// List returns deep copies of all records keyed by id.
func (r *Registry) List() map[string]*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Record, len(r.records))
	for id, rec := range r.records {
		out[id] = rec.DeepCopy()
	}
	return out
}

// IDs returns all device ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of devices in the registry.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Upsert creates or updates a device and flushes the snapshot.
//
// A new record starts from the default attribute set (stamped with the
// build version; category scenario_button seeds an empty button_event
// state) before the update is applied. If the resulting name is empty it is
// backfilled from the friendly name, so the cloud never shows a blank label.
func (r *Registry) Upsert(id string, u Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		r.logger.Info("device not found, creating", "id", id)
		rec = newRecord(r.version, u)
		r.records[id] = rec
	} else {
		u.apply(rec)
	}

	if rec.Name == "" {
		rec.Name = rec.FriendlyName
	}

	return r.saveLocked()
}

// UpdateAttributes applies a partial update to an existing device and
// flushes the snapshot. Unknown ids are a no-op; the return reports whether
// the device existed.
func (r *Registry) UpdateAttributes(id string, u Update) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return false, nil
	}

	u.apply(rec)
	return true, r.saveLocked()
}

// Delete removes a device and flushes the snapshot. Unknown ids are a no-op.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return nil
	}

	delete(r.records, id)
	r.logger.Info("device deleted", "id", id)
	return r.saveLocked()
}

// Clear removes all devices and flushes the snapshot.
func (r *Registry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = make(map[string]*Record)
	r.logger.Info("device registry cleared")
	return r.saveLocked()
}

// ChangeState sets one state key on a device and flushes the snapshot.
//
// A missing device is logged and ignored rather than returned as an error:
// asynchronous event handlers routinely race against deletes, and a stale
// id must never fail the event loop.
func (r *Registry) ChangeState(id, key string, value Value) error {
	return r.ChangeStates(id, map[string]Value{key: value})
}

// ChangeStates sets several state keys on a device in one call, with a
// single snapshot flush. Same unknown-id semantics as ChangeState.
func (r *Registry) ChangeStates(id string, states map[string]Value) error {
	if len(states) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		r.logger.Warn("state change for unknown device", "id", id)
		return nil
	}

	if rec.States == nil {
		rec.States = make(map[string]Value, len(states))
	}
	for key, value := range states {
		rec.States[key] = value
	}

	return r.saveLocked()
}

// GetState returns one state value for a device.
func (r *Registry) GetState(id, key string) (Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok || rec.States == nil {
		return Value{}, false
	}
	v, ok := rec.States[key]
	return v, ok
}

// GetStates returns a copy of all state values for a device. Unknown ids
// return an empty map.
func (r *Registry) GetStates(id string) map[string]Value {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return map[string]Value{}
	}

	out := make(map[string]Value, len(rec.States))
	for k, v := range rec.States {
		out[k] = v
	}
	return out
}

// GenerateID returns the first unused "prefix_NN" id for NN in 01..98.
// Returns ErrIDSpaceExhausted when all 98 slots are taken.
func (r *Registry) GenerateID(prefix string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := 1; i < 99; i++ {
		id := fmt.Sprintf("%s_%02d", prefix, i)
		if _, ok := r.records[id]; !ok {
			return id, nil
		}
	}
	return "", ErrIDSpaceExhausted
}
