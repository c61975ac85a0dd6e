package hub

import (
	"testing"
	"time"

	"github.com/nerrad567/sbergate/internal/device"
)

// memStore is an in-memory device.Store for tests.
type memStore struct {
	records map[string]*device.Record
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*device.Record)}
}

func (s *memStore) Load() (map[string]*device.Record, error) {
	out := make(map[string]*device.Record, len(s.records))
	for id, rec := range s.records {
		out[id] = rec.DeepCopy()
	}
	return out, nil
}

func (s *memStore) Save(records map[string]*device.Record) error {
	out := make(map[string]*device.Record, len(records))
	for id, rec := range records {
		out[id] = rec.DeepCopy()
	}
	s.records = out
	return nil
}

// mockPublisher records status publishes.
type mockPublisher struct {
	published [][]string
}

func (m *mockPublisher) PublishStates(ids []string) {
	m.published = append(m.published, ids)
}

func (m *mockPublisher) publishedFor(id string) int {
	n := 0
	for _, ids := range m.published {
		for _, got := range ids {
			if got == id {
				n++
			}
		}
	}
	return n
}

type eventsFixture struct {
	handler   *EventHandler
	registry  *device.Registry
	tracker   *device.SyncTracker
	publisher *mockPublisher
	now       time.Time
}

func newEventsFixture(t *testing.T) *eventsFixture {
	t.Helper()

	f := &eventsFixture{
		registry:  device.NewRegistry(newMemStore(), "1.0"),
		tracker:   device.NewSyncTracker(),
		publisher: &mockPublisher{},
		now:       time.Unix(1700000000, 0),
	}
	f.tracker.SetClock(func() time.Time { return f.now })
	f.handler = NewEventHandler(f.registry, f.tracker, NewUpdater(f.registry), f.publisher)
	return f
}

func (f *eventsFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *eventsFixture) upsert(t *testing.T, id string, u device.Update) {
	t.Helper()
	if err := f.registry.Upsert(id, u); err != nil {
		t.Fatalf("Upsert(%s): %v", id, err)
	}
}

func (f *eventsFixture) setState(t *testing.T, id, key string, v device.Value) {
	t.Helper()
	if err := f.registry.ChangeState(id, key, v); err != nil {
		t.Fatalf("ChangeState(%s, %s): %v", id, key, err)
	}
}

func boolEvent(id, state string) Entity {
	return Entity{EntityID: id, State: state}
}

func TestHandleStateChanged_UnknownEntityIgnored(t *testing.T) {
	f := newEventsFixture(t)

	f.handler.HandleStateChanged(boolEvent("light.ghost", "on"))

	if len(f.publisher.published) != 0 {
		t.Errorf("unknown entity triggered %d publishes", len(f.publisher.published))
	}
}

func TestEchoSuppression(t *testing.T) {
	f := newEventsFixture(t)
	f.upsert(t, "light_01", device.Update{
		Enabled: boolPtr(true), Category: strPtr("relay"),
		EntityHA: boolPtr(true), EntityType: strPtr("switch"),
	})

	// A cloud command just set on_off=true and armed the expectation.
	f.setState(t, "light_01", "on_off", device.BoolValue(true))
	f.tracker.Arm("light_01", true)

	// The hub echoes the commanded value: consumed silently.
	f.handler.HandleStateChanged(boolEvent("light_01", "on"))
	if n := f.publisher.publishedFor("light_01"); n != 0 {
		t.Errorf("echo was published %d times", n)
	}
	if _, ok := f.tracker.Awaiting("light_01"); ok {
		t.Error("echo did not clear the expectation")
	}

	// A later, independent physical toggle: accepted and published.
	f.advance(2 * time.Second)
	f.handler.HandleStateChanged(boolEvent("light_01", "off"))
	if n := f.publisher.publishedFor("light_01"); n != 1 {
		t.Errorf("physical toggle published %d times, want 1", n)
	}
	if v, ok := f.registry.GetState("light_01", "on_off"); !ok || v.Bool() {
		t.Error("physical toggle did not update on_off to false")
	}
}

func TestEchoSuppression_IntermediateStateIgnored(t *testing.T) {
	f := newEventsFixture(t)
	f.upsert(t, "relay_01", device.Update{
		Enabled: boolPtr(true), Category: strPtr("relay"), EntityType: strPtr("switch"),
	})
	f.setState(t, "relay_01", "on_off", device.BoolValue(true))
	f.tracker.Arm("relay_01", true)

	// A non-matching value while awaiting the echo is transient hardware
	// state: suppressed, expectation stays armed.
	f.handler.HandleStateChanged(boolEvent("relay_01", "off"))
	if len(f.publisher.published) != 0 {
		t.Error("intermediate state was published")
	}
	if expected, ok := f.tracker.Awaiting("relay_01"); !ok || !expected {
		t.Error("intermediate state cleared the expectation")
	}
	if v, _ := f.registry.GetState("relay_01", "on_off"); !v.Bool() {
		t.Error("intermediate state overwrote the cached value")
	}
}

func TestDebounce(t *testing.T) {
	f := newEventsFixture(t)
	f.upsert(t, "relay_01", device.Update{
		Enabled: boolPtr(true), Category: strPtr("relay"), EntityType: strPtr("switch"),
	})
	f.setState(t, "relay_01", "on_off", device.BoolValue(false))

	f.handler.HandleStateChanged(boolEvent("relay_01", "on"))
	if n := f.publisher.publishedFor("relay_01"); n != 1 {
		t.Fatalf("first toggle published %d times, want 1", n)
	}

	// Second toggle 200ms later is contact bounce.
	f.advance(200 * time.Millisecond)
	f.handler.HandleStateChanged(boolEvent("relay_01", "off"))
	if n := f.publisher.publishedFor("relay_01"); n != 1 {
		t.Errorf("bounced toggle was published (total %d)", n)
	}
	if v, _ := f.registry.GetState("relay_01", "on_off"); !v.Bool() {
		t.Error("bounced toggle overwrote on_off")
	}

	// Past the window the toggle is real.
	f.advance(time.Second)
	f.handler.HandleStateChanged(boolEvent("relay_01", "off"))
	if n := f.publisher.publishedFor("relay_01"); n != 2 {
		t.Errorf("post-window toggle published %d times, want 2", n)
	}
}

func TestDuplicateNotificationDropped(t *testing.T) {
	f := newEventsFixture(t)
	f.upsert(t, "relay_01", device.Update{
		Enabled: boolPtr(true), Category: strPtr("relay"), EntityType: strPtr("switch"),
	})
	f.setState(t, "relay_01", "on_off", device.BoolValue(true))

	f.handler.HandleStateChanged(boolEvent("relay_01", "on"))

	if len(f.publisher.published) != 0 {
		t.Error("duplicate notification was published")
	}
}

func TestDisabledDeviceNotPublished(t *testing.T) {
	f := newEventsFixture(t)
	f.upsert(t, "relay_01", device.Update{
		Enabled: boolPtr(false), Category: strPtr("relay"), EntityType: strPtr("switch"),
	})

	f.handler.HandleStateChanged(boolEvent("relay_01", "on"))

	if len(f.publisher.published) != 0 {
		t.Error("disabled device change was published")
	}
	// The state is still cached for later re-enable.
	if v, ok := f.registry.GetState("relay_01", "on_off"); !ok || !v.Bool() {
		t.Error("disabled device state was not cached")
	}
}

func TestLightSubStatesRefreshed(t *testing.T) {
	f := newEventsFixture(t)
	f.upsert(t, "light.kitchen", device.Update{
		Enabled: boolPtr(true), Category: strPtr("light"), EntityType: strPtr("light"),
	})

	brightness := 128.0
	f.handler.HandleStateChanged(Entity{
		EntityID: "light.kitchen",
		State:    "on",
		Attributes: Attributes{
			Brightness: &brightness,
			RGBColor:   []int{255, 0, 0},
		},
	})

	if v, _ := f.registry.GetState("light.kitchen", "light_brightness"); v.Int() != 527 {
		t.Errorf("light_brightness = %d, want 527", v.Int())
	}
	if v, _ := f.registry.GetState("light.kitchen", "light_colour"); v.Colour() != (device.Colour{Red: 255, Green: 0, Blue: 0}) {
		t.Errorf("light_colour = %+v, want red", v.Colour())
	}
	if v, _ := f.registry.GetState("light.kitchen", "light_mode"); v.Enum() != "colour" {
		t.Errorf("light_mode = %q, want colour", v.Enum())
	}
}

func TestSensorFanOut(t *testing.T) {
	f := newEventsFixture(t)
	f.upsert(t, "sensor.unit_temp", device.Update{
		Enabled: boolPtr(true), Category: strPtr("sensor_temp"),
		DeviceClass: strPtr("temperature"), DeviceID: strPtr("dev1"),
	})
	f.upsert(t, "sensor.unit_hum", device.Update{
		Enabled: boolPtr(true), Category: strPtr("sensor_temp"),
		DeviceClass: strPtr("humidity"), DeviceID: strPtr("dev1"),
	})

	f.handler.HandleStateChanged(Entity{
		EntityID:   "sensor.unit_temp",
		State:      "21.5",
		Attributes: Attributes{DeviceClass: "temperature"},
	})

	// The reading lands on both records of the physical device.
	if v, ok := f.registry.GetState("sensor.unit_temp", "temperature"); !ok || v.Float() != 21.5 {
		t.Errorf("source temperature = %v", v)
	}
	if v, ok := f.registry.GetState("sensor.unit_hum", "temperature"); !ok || v.Float() != 21.5 {
		t.Errorf("sibling temperature = %v, want 21.5", v)
	}

	// Both enabled records are published.
	if n := f.publisher.publishedFor("sensor.unit_temp"); n != 1 {
		t.Errorf("source published %d times, want 1", n)
	}
	if n := f.publisher.publishedFor("sensor.unit_hum"); n != 1 {
		t.Errorf("sibling published %d times, want 1", n)
	}
}

func TestSensorUnparseableDropped(t *testing.T) {
	f := newEventsFixture(t)
	f.upsert(t, "sensor.t", device.Update{
		Enabled: boolPtr(true), Category: strPtr("sensor_temp"),
		DeviceClass: strPtr("temperature"),
	})

	f.handler.HandleStateChanged(Entity{
		EntityID:   "sensor.t",
		State:      "unavailable",
		Attributes: Attributes{DeviceClass: "temperature"},
	})

	if _, ok := f.registry.GetState("sensor.t", "temperature"); ok {
		t.Error("unparseable reading was cached")
	}
	if len(f.publisher.published) != 0 {
		t.Error("unparseable reading was published")
	}
}

func TestScenarioButtonMapping(t *testing.T) {
	tests := []struct {
		name       string
		entityType string
		state      string
		want       string
	}{
		{"input_boolean on", "input_boolean", "on", "click"},
		{"input_boolean off", "input_boolean", "off", "double_click"},
		{"input_button", "input_button", "2026-08-29T10:00:00+00:00", "click"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEventsFixture(t)
			f.upsert(t, "button_01", device.Update{
				Enabled: boolPtr(true), Category: strPtr("scenario_button"),
				EntityType: strPtr(tt.entityType),
			})

			f.handler.HandleStateChanged(boolEvent("button_01", tt.state))

			if v, _ := f.registry.GetState("button_01", "button_event"); v.Enum() != tt.want {
				t.Errorf("button_event = %q, want %q", v.Enum(), tt.want)
			}
			if n := f.publisher.publishedFor("button_01"); n != 1 {
				t.Errorf("published %d times, want 1", n)
			}
		})
	}
}

func TestStatelessButton(t *testing.T) {
	f := newEventsFixture(t)
	f.upsert(t, "button.wall", device.Update{
		Enabled: boolPtr(true), Category: strPtr("relay"), EntityType: strPtr("button"),
	})

	// Echo of our own press command: consumed.
	f.tracker.Arm("button.wall", true)
	f.handler.HandleStateChanged(boolEvent("button.wall", "2026-08-29T10:00:00+00:00"))
	if len(f.publisher.published) != 0 {
		t.Error("button echo was published")
	}

	// A real press maps click type to on_off.
	f.handler.HandleStateChanged(Entity{
		EntityID:   "button.wall",
		State:      "2026-08-29T10:00:05+00:00",
		Attributes: Attributes{ClickType: "double_click"},
	})
	if v, _ := f.registry.GetState("button.wall", "on_off"); v.Bool() {
		t.Error("double_click should map to on_off=false")
	}
	if n := f.publisher.publishedFor("button.wall"); n != 1 {
		t.Errorf("real press published %d times, want 1", n)
	}
}

func TestVacuumEvent(t *testing.T) {
	f := newEventsFixture(t)
	f.upsert(t, "vacuum.robo", device.Update{
		Enabled: boolPtr(true), Category: strPtr("vacuum_cleaner"), EntityType: strPtr("vacuum"),
	})

	battery := 80.0
	f.handler.HandleStateChanged(Entity{
		EntityID:   "vacuum.robo",
		State:      "returning",
		Attributes: Attributes{BatteryLevel: &battery},
	})

	if v, _ := f.registry.GetState("vacuum.robo", "vacuum_cleaner_status"); v.Enum() != "returning_to_dock" {
		t.Errorf("status = %q, want returning_to_dock", v.Enum())
	}
	if v, _ := f.registry.GetState("vacuum.robo", "battery_percentage"); v.Int() != 80 {
		t.Errorf("battery = %d, want 80", v.Int())
	}
	if n := f.publisher.publishedFor("vacuum.robo"); n != 1 {
		t.Errorf("published %d times, want 1", n)
	}
}
