package hub

import (
	"strconv"

	"github.com/nerrad567/sbergate/internal/device"
)

// StatusPublisher pushes device state to the cloud side.
// Satisfied by *cloud.Bridge.
type StatusPublisher interface {
	// PublishStates publishes the current state of the given devices.
	PublishStates(ids []string)
}

// TelemetrySink receives accepted numeric sensor readings.
// Satisfied by *telemetry.Writer; optional.
type TelemetrySink interface {
	// RecordSensor records one sensor measurement for a device.
	RecordSensor(id, key string, value float64)
}

// EventHandler consumes hub state-change events and decides, per device,
// whether the change is real (accept, cache, publish) or noise (echo of a
// gateway command, duplicate notification, or contact bounce).
//
// Per-device the handler is a two-state machine tracked by the
// SyncTracker: Idle, where changes are accepted subject to duplicate and
// debounce filtering, and AwaitingEcho, where the next matching boolean
// clears the expectation silently and everything else is treated as a
// transient intermediate state.
//
// Thread Safety: safe for concurrent use; events for the same device must
// be delivered in arrival order (the WebSocket read loop guarantees this).
type EventHandler struct {
	registry  *device.Registry
	tracker   *device.SyncTracker
	updater   *Updater
	publisher StatusPublisher
	telemetry TelemetrySink
	logger    Logger
}

// NewEventHandler creates an event handler. publisher may be nil (changes
// are then cached without outward publishes); telemetry may be nil.
func NewEventHandler(registry *device.Registry, tracker *device.SyncTracker, updater *Updater, publisher StatusPublisher) *EventHandler {
	return &EventHandler{
		registry:  registry,
		tracker:   tracker,
		updater:   updater,
		publisher: publisher,
		logger:    noopLogger{},
	}
}

// SetLogger replaces the handler's logger.
func (h *EventHandler) SetLogger(logger Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// SetTelemetry attaches an optional sensor telemetry sink.
func (h *EventHandler) SetTelemetry(sink TelemetrySink) {
	h.telemetry = sink
}

// HandleStateChanged processes one state_changed event. Events for
// unbridged entities are ignored; accepted changes for enabled devices
// trigger exactly one status publish.
func (h *EventHandler) HandleStateChanged(e Entity) {
	rec, ok := h.registry.Get(e.EntityID)
	if !ok {
		return
	}

	if rec.Enabled {
		h.logger.Debug("hub state change", "entity", e.EntityID, "state", e.State)
	}

	accepted := false
	switch rec.Category {
	case "sensor_temp":
		accepted = h.handleSensor(e, rec)
	case "scenario_button":
		accepted = h.handleScenarioButton(e, rec)
	case "relay", "light":
		accepted = h.handleRelayOrLight(e, rec)
	case "vacuum_cleaner":
		accepted = h.handleVacuum(e)
	}

	if accepted && rec.Enabled {
		h.publish(e.EntityID)
	}
}

// handleSensor parses a numeric sensor reading and fans it out to every
// other sensor record backed by the same physical device. Unparseable
// readings (unavailable, unknown) are dropped silently.
func (h *EventHandler) handleSensor(e Entity, rec *device.Record) bool {
	key, ok := sensorKeyMap[e.Attributes.DeviceClass]
	if !ok {
		return false
	}

	value, err := strconv.ParseFloat(e.State, 64)
	if err != nil {
		h.logger.Debug("unparseable sensor reading dropped", "entity", e.EntityID, "state", e.State)
		return false
	}

	h.changeState(e.EntityID, key, device.FloatValue(value))
	if h.telemetry != nil {
		h.telemetry.RecordSensor(e.EntityID, key, value)
	}

	// Multi-sensor hardware exposes one entity per measurement; keep the
	// sibling records in step so each reports the full reading set.
	if rec.DeviceID != "" {
		for otherID, other := range h.registry.List() {
			if otherID == e.EntityID || other.DeviceID != rec.DeviceID || other.Category != "sensor_temp" {
				continue
			}
			h.changeState(otherID, key, device.FloatValue(value))
			if other.Enabled {
				h.publish(otherID)
			}
		}
	}

	return true
}

// handleScenarioButton maps hub input toggles to the one-shot button_event
// enum: input_boolean on is a click, off a double click; input_button is
// always a click.
func (h *EventHandler) handleScenarioButton(e Entity, rec *device.Record) bool {
	switch rec.EntityType {
	case "input_boolean":
		event := "double_click"
		if e.State == "on" {
			event = "click"
		}
		h.changeState(e.EntityID, "button_event", device.EnumValue(event))
		return true
	case "input_button":
		h.changeState(e.EntityID, "button_event", device.EnumValue("click"))
		return true
	}
	return false
}

// handleRelayOrLight applies the echo-suppression and debounce protocol to
// boolean switching devices. Lights additionally refresh their brightness
// and colour sub-states on every accepted change.
func (h *EventHandler) handleRelayOrLight(e Entity, rec *device.Record) bool {
	if rec.EntityType == "button" {
		return h.handleStatelessButton(e)
	}

	isOn := e.State == "on"

	// AwaitingEcho: a matching value is the echo of our own command and
	// clears the expectation; anything else is a transient intermediate
	// state. Neither is propagated.
	if expected, ok := h.tracker.Awaiting(e.EntityID); ok {
		if isOn == expected {
			h.logger.Debug("command echo suppressed", "entity", e.EntityID, "state", isOn)
			h.tracker.Clear(e.EntityID)
		} else {
			h.logger.Debug("intermediate state ignored", "entity", e.EntityID,
				"state", isOn, "expected", expected)
		}
		return false
	}

	// Idle: drop duplicates, then contact bounce.
	if cur, ok := h.registry.GetState(e.EntityID, "on_off"); ok && cur.Bool() == isOn {
		return false
	}
	if h.tracker.WithinDebounce(e.EntityID) {
		h.logger.Debug("contact bounce suppressed", "entity", e.EntityID, "state", isOn)
		return false
	}

	h.tracker.MarkChanged(e.EntityID)
	h.changeState(e.EntityID, "on_off", device.BoolValue(isOn))

	if rec.Category == "light" {
		h.updater.applyLightAttributes(e.EntityID, e.Attributes, false)
	}
	return true
}

// handleStatelessButton treats physical button events as momentary on_off
// pulses. A pending echo expectation means the pulse came from our own
// press command and is consumed without propagation.
func (h *EventHandler) handleStatelessButton(e Entity) bool {
	if _, ok := h.tracker.Awaiting(e.EntityID); ok {
		h.logger.Debug("button press echo suppressed", "entity", e.EntityID)
		h.tracker.Clear(e.EntityID)
		return false
	}

	click := e.Attributes.ClickType
	if click == "" {
		click = e.Attributes.EventType
	}
	isOn := click != "double_click" && click != "long_press"
	h.changeState(e.EntityID, "on_off", device.BoolValue(isOn))
	return true
}

// handleVacuum refreshes vacuum status and battery from the event.
func (h *EventHandler) handleVacuum(e Entity) bool {
	h.updater.applyVacuumAttributes(e.EntityID, e.State, e.Attributes, false)
	return true
}

func (h *EventHandler) publish(id string) {
	if h.publisher != nil {
		h.publisher.PublishStates([]string{id})
	}
}

func (h *EventHandler) changeState(id, key string, val device.Value) {
	if err := h.registry.ChangeState(id, key, val); err != nil {
		h.logger.Error("failed to update state", "entity", id, "key", key, "error", err)
	}
}
