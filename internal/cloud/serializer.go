package cloud

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/nerrad567/sbergate/internal/convert"
	"github.com/nerrad567/sbergate/internal/device"
	"github.com/nerrad567/sbergate/internal/schema"
)

// deviceModel is the model block every cloud device entry carries.
type deviceModel struct {
	ID           string   `json:"id"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Description  string   `json:"description,omitempty"`
	Category     string   `json:"category"`
	Features     []string `json:"features"`
}

// deviceEntry is one device in the published configuration payload.
type deviceEntry struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	DefaultName *string     `json:"default_name,omitempty"`
	Home        *string     `json:"home,omitempty"`
	Room        *string     `json:"room,omitempty"`
	HWVersion   string      `json:"hw_version"`
	SWVersion   string      `json:"sw_version"`
	Model       deviceModel `json:"model"`
	ModelID     *string     `json:"model_id,omitempty"`
}

// statesEnvelope wraps one device's state list in the status payload.
type statesEnvelope struct {
	States []wireState `json:"states"`
}

// Serializer builds the cloud wire payloads (device list, state list) from
// registry contents. Payload shape is driven by the injected
// category→feature schema, which may be replaced once the cloud schema
// bootstrap completes.
//
// Thread Safety: safe for concurrent use; registry mutation is serialized
// by the registry itself and schema swaps are guarded here.
type Serializer struct {
	registry *device.Registry
	version  string
	logger   Logger

	mu     sync.RWMutex
	schema *schema.Schema
}

// NewSerializer creates a serializer over the given registry and schema.
// version stamps the synthetic root hub entry.
func NewSerializer(registry *device.Registry, sch *schema.Schema, version string) *Serializer {
	return &Serializer{
		registry: registry,
		schema:   sch,
		version:  version,
		logger:   noopLogger{},
	}
}

// SetLogger replaces the serializer's logger. Must be called before the
// serializer is shared across goroutines.
func (s *Serializer) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetSchema replaces the category schema. Called after the schema bootstrap
// completes; the serializer may be constructed with a nil schema before
// the cloud endpoint has been discovered, in which case payloads carry no
// features until the swap.
func (s *Serializer) SetSchema(sch *schema.Schema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = sch
}

// features returns the feature list for a category under the schema lock.
func (s *Serializer) features(category string) []schema.Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.schema == nil {
		return nil
	}
	return s.schema.Features(category)
}

// DeviceListPayload builds the device configuration payload published on
// the uplink config topic: a fixed synthetic root hub entry plus one entry
// per enabled record. Each entry advertises its category's required
// features plus any optional feature that already has a populated state.
func (s *Serializer) DeviceListPayload() ([]byte, error) {
	devices := []deviceEntry{{
		ID:        rootDeviceID,
		Name:      "SberGate Hub",
		HWVersion: s.version,
		SWVersion: s.version,
		Model: deviceModel{
			ID:           rootModelID,
			Manufacturer: modelManufacturer,
			Model:        rootModelName,
			Description:  rootDescription,
			Category:     rootCategory,
			Features:     []string{"online"},
		},
	}}

	records := s.registry.List()
	for _, id := range s.registry.IDs() {
		rec := records[id]
		if rec == nil || !rec.Enabled {
			continue
		}

		category := rec.Category
		if category == "" {
			category = defaultCategory
		}

		features := make([]string, 0)
		for _, f := range s.features(category) {
			if effectiveRequired(category, f) {
				features = append(features, f.Name)
				continue
			}
			if _, ok := rec.States[f.Name]; ok {
				features = append(features, f.Name)
			}
		}

		empty := ""
		devices = append(devices, deviceEntry{
			ID:          id,
			Name:        rec.Name,
			DefaultName: &rec.DefaultName,
			Home:        &rec.Home,
			Room:        &rec.Room,
			HWVersion:   rec.HWVersion,
			SWVersion:   rec.SWVersion,
			Model: deviceModel{
				ID:           "ID_" + category,
				Manufacturer: modelManufacturer,
				Model:        "Model_" + category,
				Category:     category,
				Features:     features,
			},
			ModelID: &empty,
		})
	}

	payload, err := json.Marshal(map[string][]deviceEntry{"devices": devices})
	if err != nil {
		return nil, fmt.Errorf("cloud: marshal device list: %w", err)
	}

	s.logger.Debug("built device list payload", "devices", len(devices))
	return payload, nil
}

// StateListPayload builds the device status payload for the given ids (all
// registry devices when ids is empty). Disabled and unknown ids are
// skipped. Missing required states are synthesized with defaults and
// persisted, so the registry converges toward a fully populated state map.
// button_event is reset after inclusion: a button press is reported to the
// cloud exactly once. An empty result falls back to a root online=true
// entry so the status channel never goes silent.
func (s *Serializer) StateListPayload(ids []string) ([]byte, error) {
	if len(ids) == 0 {
		ids = s.registry.IDs()
	}

	devices := make(map[string]statesEnvelope)
	for _, id := range ids {
		rec, ok := s.registry.Get(id)
		if !ok || !rec.Enabled {
			continue
		}

		category := rec.Category
		if category == "" {
			category = defaultCategory
		}

		states, changes := s.deviceStates(id, category, rec.States)
		if len(changes) > 0 {
			if err := s.registry.ChangeStates(id, changes); err != nil {
				s.logger.Error("failed to persist synthesized defaults", "device", id, "error", err)
			}
		}
		devices[id] = statesEnvelope{States: states}
	}

	if len(devices) == 0 {
		devices[rootDeviceID] = statesEnvelope{States: []wireState{boolState("online", true)}}
	}

	payload, err := json.Marshal(map[string]map[string]statesEnvelope{"devices": devices})
	if err != nil {
		return nil, fmt.Errorf("cloud: marshal state list: %w", err)
	}

	s.logger.Debug("built state list payload", "devices", len(devices))
	return payload, nil
}

// deviceStates formats one device's state list and collects the registry
// mutations it implies: synthesized defaults for missing required features
// and the one-shot button_event reset.
func (s *Serializer) deviceStates(id, category string, current map[string]device.Value) ([]wireState, map[string]device.Value) {
	states := make([]wireState, 0)
	changes := make(map[string]device.Value)

	for _, f := range s.features(category) {
		if commandOnlyFeatures[f.Name] {
			continue
		}

		val, ok := current[f.Name]
		if !ok {
			if !effectiveRequired(category, f) {
				continue
			}
			def, err := defaultFor(f)
			if err != nil {
				s.logger.Error("cannot synthesize default", "device", id, "feature", f.Name, "error", err)
				continue
			}
			s.logger.Debug("synthesizing missing required state", "device", id, "feature", f.Name)
			val = def
			changes[f.Name] = def
		}

		states = append(states, s.formatState(id, f, val))

		if f.Name == "button_event" && val.Enum() != "" {
			changes[f.Name] = device.EnumValue("")
		}
	}

	return states, changes
}

// formatState encodes one state value per the feature's wire data type.
// temperature is transmitted as fixed-point ×10; COLOUR converts the
// internal RGB struct to the cloud HSV encoding.
func (s *Serializer) formatState(id string, f schema.Feature, val device.Value) wireState {
	switch f.DataType {
	case schema.TypeBool:
		return boolState(f.Name, val.Bool())

	case schema.TypeInteger:
		if f.Name == "temperature" {
			return integerState(f.Name, int64(math.Round(val.Float()*10)))
		}
		return integerState(f.Name, val.Int())

	case schema.TypeEnum:
		return enumState(f.Name, val.Enum())

	case schema.TypeColour:
		if val.Kind() != device.KindColour {
			s.logger.Warn("state is not a colour, sending fallback", "device", id, "feature", f.Name, "value", val.String())
			return colourState(f.Name, wireColour{H: 0, S: 0, V: 1000})
		}
		c := val.Colour()
		h, sat, v := convert.RGBToHSV(c.Red, c.Green, c.Blue)
		return colourState(f.Name, wireColour{H: h, S: sat, V: v})

	default:
		s.logger.Warn("unknown data type, sending enum fallback", "device", id, "feature", f.Name, "type", f.DataType)
		return enumState(f.Name, val.String())
	}
}
