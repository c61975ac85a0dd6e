package hub

import (
	"encoding/json"
	"testing"

	"github.com/nerrad567/sbergate/internal/device"
)

func newSocketFixture(t *testing.T) (*Socket, *device.Registry, *mockPublisher) {
	t.Helper()
	registry := device.NewRegistry(newMemStore(), "1.0")
	tracker := device.NewSyncTracker()
	publisher := &mockPublisher{}
	events := NewEventHandler(registry, tracker, NewUpdater(registry), publisher)
	return NewSocket("http://hub.local:8123", "token", registry, events), registry, publisher
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"http base", "http://hub.local:8123", "ws://hub.local:8123/api/websocket"},
		{"https base", "https://hub.local", "wss://hub.local/api/websocket"},
		{"trailing slash", "http://hub.local/", "ws://hub.local/api/websocket"},
		{"already websocket", "ws://supervisor/core/websocket", "ws://supervisor/core/websocket"},
		{"http websocket", "http://supervisor/core/api/websocket", "ws://supervisor/core/api/websocket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := websocketURL(tt.in); got != tt.want {
				t.Errorf("websocketURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHandleResult_AppliesEntityRegistry(t *testing.T) {
	socket, registry, _ := newSocketFixture(t)

	if err := registry.Upsert("light.kitchen", device.Update{
		Category: strPtr("light"), EntityType: strPtr("light"),
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Areas, then hardware devices, then entities: the order the hub
	// answers the startup queries in.
	socket.handleResult(wsMessage{ID: reqAreaRegistry, Result: json.RawMessage(
		`[{"area_id":"a1","name":"Kitchen"}]`)})
	socket.handleResult(wsMessage{ID: reqDeviceRegistry, Result: json.RawMessage(
		`[{"id":"dev1","name":"Ceiling light","area_id":"a1"}]`)})
	socket.handleResult(wsMessage{ID: reqEntityRegistry, Result: json.RawMessage(
		`[{"entity_id":"light.kitchen","device_id":"dev1"},
		  {"entity_id":"light.unbridged","device_id":"dev2"}]`)})

	rec, ok := registry.Get("light.kitchen")
	if !ok {
		t.Fatal("light.kitchen disappeared")
	}
	if rec.DeviceID != "dev1" {
		t.Errorf("device_id = %q, want dev1", rec.DeviceID)
	}
	// Entity has no own area: the hardware device's area wins.
	if rec.Room != "Kitchen" {
		t.Errorf("room = %q, want Kitchen", rec.Room)
	}
	if !rec.EntityHA {
		t.Error("entity_ha not set")
	}
	if registry.Exists("light.unbridged") {
		t.Error("unbridged entity was created by registry application")
	}
}

func TestHandleResult_EntityAreaWinsOverDeviceArea(t *testing.T) {
	socket, registry, _ := newSocketFixture(t)

	if err := registry.Upsert("light.desk", device.Update{Category: strPtr("light")}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	socket.handleResult(wsMessage{ID: reqAreaRegistry, Result: json.RawMessage(
		`[{"area_id":"a1","name":"Kitchen"},{"area_id":"a2","name":"Office"}]`)})
	socket.handleResult(wsMessage{ID: reqDeviceRegistry, Result: json.RawMessage(
		`[{"id":"dev1","name":"Lamp","area_id":"a1"}]`)})
	socket.handleResult(wsMessage{ID: reqEntityRegistry, Result: json.RawMessage(
		`[{"entity_id":"light.desk","device_id":"dev1","area_id":"a2"}]`)})

	rec, _ := registry.Get("light.desk")
	if rec.Room != "Office" {
		t.Errorf("room = %q, want Office (entity area overrides device area)", rec.Room)
	}
}

func TestHandleMessage_EventDispatch(t *testing.T) {
	socket, registry, publisher := newSocketFixture(t)

	if err := registry.Upsert("switch.fan", device.Update{
		Enabled: boolPtr(true), Category: strPtr("relay"), EntityType: strPtr("switch"),
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	socket.handleMessage([]byte(`{
		"type": "event",
		"event": {"data": {
			"entity_id": "switch.fan",
			"old_state": {"entity_id": "switch.fan", "state": "off"},
			"new_state": {"entity_id": "switch.fan", "state": "on", "attributes": {}}
		}}
	}`))

	if v, ok := registry.GetState("switch.fan", "on_off"); !ok || !v.Bool() {
		t.Error("event did not update on_off")
	}
	if n := publisher.publishedFor("switch.fan"); n != 1 {
		t.Errorf("published %d times, want 1", n)
	}
}

func TestHandleMessage_Garbage(t *testing.T) {
	socket, _, publisher := newSocketFixture(t)

	socket.handleMessage([]byte(`not json`))
	socket.handleMessage([]byte(`{"type":"event"}`))
	socket.handleMessage([]byte(`{"type":"event","event":{"data":{}}}`))
	socket.handleMessage([]byte(`{"type":"something_new"}`))

	if len(publisher.published) != 0 {
		t.Errorf("garbage messages triggered %d publishes", len(publisher.published))
	}
}
