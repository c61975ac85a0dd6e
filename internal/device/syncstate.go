package device

import (
	"sync"
	"time"
)

// DebounceWindow is how long after an accepted on/off change further
// toggles of the same device are treated as contact bounce and dropped.
const DebounceWindow = 500 * time.Millisecond

// SyncState is the per-device synchronization state used for echo
// suppression between the cloud command path and the hub event stream.
type SyncState int

const (
	// SyncIdle means no command is pending for the device.
	SyncIdle SyncState = iota

	// SyncAwaitingEcho means a command was issued and the hub is expected
	// to report the commanded value back.
	SyncAwaitingEcho
)

// deviceSync holds transient sync state for one device.
type deviceSync struct {
	state      SyncState
	expected   bool      // commanded on/off value, valid in SyncAwaitingEcho
	armedAt    time.Time // when the expectation was armed
	lastChange time.Time // last accepted on/off change, for debounce
}

// SyncTracker tracks transient per-device synchronization state: the
// pending-echo expectation armed by outbound commands, and the timestamp of
// the last accepted change used for debounce.
//
// This state deliberately lives beside the registry, not inside Record, so
// it can never serialize into the snapshot and survives no restart.
//
// All methods are safe for concurrent use.
type SyncTracker struct {
	mu      sync.Mutex
	devices map[string]*deviceSync
	now     func() time.Time
}

// NewSyncTracker creates an empty tracker.
func NewSyncTracker() *SyncTracker {
	return &SyncTracker{
		devices: make(map[string]*deviceSync),
		now:     time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (t *SyncTracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Arm records that a command was just issued for the device and the hub is
// expected to echo the given on/off value. Arming happens on every command,
// even when the commanded value equals the cached one.
func (t *SyncTracker) Arm(id string, expected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := t.device(id)
	d.state = SyncAwaitingEcho
	d.expected = expected
	d.armedAt = t.now()
}

// Awaiting reports whether the device has a pending echo expectation and,
// if so, the expected on/off value.
func (t *SyncTracker) Awaiting(id string) (expected, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, found := t.devices[id]
	if !found || d.state != SyncAwaitingEcho {
		return false, false
	}
	return d.expected, true
}

// Clear drops any pending echo expectation, returning the device to idle.
func (t *SyncTracker) Clear(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if d, ok := t.devices[id]; ok {
		d.state = SyncIdle
	}
}

// MarkChanged records the time of an accepted state change for debounce.
func (t *SyncTracker) MarkChanged(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.device(id).lastChange = t.now()
}

// WithinDebounce reports whether the last accepted change for the device
// happened less than DebounceWindow ago.
func (t *SyncTracker) WithinDebounce(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.devices[id]
	if !ok || d.lastChange.IsZero() {
		return false
	}
	return t.now().Sub(d.lastChange) < DebounceWindow
}

// Forget drops all tracked state for a device. Called on device delete.
func (t *SyncTracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.devices, id)
}

// device returns the tracked entry for id, creating it if needed.
// Caller must hold t.mu.
func (t *SyncTracker) device(id string) *deviceSync {
	d, ok := t.devices[id]
	if !ok {
		d = &deviceSync{}
		t.devices[id] = d
	}
	return d
}
