package cloud

import (
	"fmt"

	"github.com/nerrad567/sbergate/internal/convert"
	"github.com/nerrad567/sbergate/internal/device"
	"github.com/nerrad567/sbergate/internal/schema"
)

// Cloud model constants. The vendor requires every device to carry a model
// block; the gateway synthesizes one per category.
const (
	modelManufacturer = "TM"
	rootDeviceID      = "root"
	rootModelID       = "ID_root_hub"
	rootModelName     = "VHub"
	rootDescription   = "HA MQTT SberGate HUB"
	rootCategory      = "hub"

	// defaultCategory is assumed for records with an empty or unknown
	// category so they still surface as a plain switch.
	defaultCategory = "relay"
)

// commandOnlyFeatures are features the cloud sends as commands but never
// expects back in a state report.
var commandOnlyFeatures = map[string]bool{
	"vacuum_cleaner_command": true,
}

// sensorMeasurements are the sensor_temp features that must never be
// default-synthesized: a single-purpose sensor (say, temperature only) must
// not fabricate humidity or pressure readings it cannot produce.
var sensorMeasurements = map[string]bool{
	"temperature":  true,
	"humidity":     true,
	"air_pressure": true,
}

// wireColour is the cloud HSV colour encoding: h 0-360, s 0-1000, v 100-1000.
type wireColour struct {
	H int `json:"h"`
	S int `json:"s"`
	V int `json:"v"`
}

// wireValue is the cloud typed-value envelope. Exactly one of the value
// fields is set, selected by Type. Pointers keep zero values (false, 0, "")
// on the wire while omitting the unselected fields.
type wireValue struct {
	Type         string      `json:"type"`
	BoolValue    *bool       `json:"bool_value,omitempty"`
	IntegerValue *int64      `json:"integer_value,omitempty"`
	EnumValue    *string     `json:"enum_value,omitempty"`
	ColourValue  *wireColour `json:"colour_value,omitempty"`
}

// wireState is one {key, value} entry of a device state list.
type wireState struct {
	Key   string    `json:"key"`
	Value wireValue `json:"value"`
}

func boolState(key string, b bool) wireState {
	return wireState{Key: key, Value: wireValue{Type: schema.TypeBool, BoolValue: &b}}
}

func integerState(key string, i int64) wireState {
	return wireState{Key: key, Value: wireValue{Type: schema.TypeInteger, IntegerValue: &i}}
}

func enumState(key, s string) wireState {
	return wireState{Key: key, Value: wireValue{Type: schema.TypeEnum, EnumValue: &s}}
}

func colourState(key string, c wireColour) wireState {
	return wireState{Key: key, Value: wireValue{Type: schema.TypeColour, ColourValue: &c}}
}

// decode converts a received typed wire value into the internal
// representation. Missing value fields decode to the type's zero value, the
// way the vendor's own clients behave. COLOUR arrives as HSV with hue and
// brightness only; saturation is forced to full because the assistant's
// colour picker always selects saturated colours.
func (w wireValue) decode() (device.Value, error) {
	switch w.Type {
	case schema.TypeBool:
		var b bool
		if w.BoolValue != nil {
			b = *w.BoolValue
		}
		return device.BoolValue(b), nil

	case schema.TypeInteger:
		var i int64
		if w.IntegerValue != nil {
			i = *w.IntegerValue
		}
		return device.IntValue(i), nil

	case schema.TypeEnum:
		var s string
		if w.EnumValue != nil {
			s = *w.EnumValue
		}
		return device.EnumValue(s), nil

	case schema.TypeColour:
		h, v := 0, 1000
		if w.ColourValue != nil {
			h = w.ColourValue.H
			v = w.ColourValue.V
		}
		r, g, b := convert.HSVToRGB(h, 1000, v)
		return device.ColourValue(device.Colour{Red: r, Green: g, Blue: b}), nil

	default:
		return device.Value{}, fmt.Errorf("cloud: unknown value type %q", w.Type)
	}
}

// defaultFor synthesizes the default value for a feature that has no state
// yet: BOOL→false except online→true, INTEGER→0, ENUM→"", COLOUR→white.
func defaultFor(f schema.Feature) (device.Value, error) {
	switch f.DataType {
	case schema.TypeBool:
		return device.BoolValue(f.Name == "online"), nil
	case schema.TypeInteger:
		return device.IntValue(0), nil
	case schema.TypeEnum:
		return device.EnumValue(""), nil
	case schema.TypeColour:
		return device.ColourValue(device.White), nil
	default:
		return device.Value{}, fmt.Errorf("cloud: unknown data type %q", f.DataType)
	}
}

// effectiveRequired reports whether a feature must be synthesized when
// absent. The sensor_temp measurement features are never forced, regardless
// of what the vendor schema claims.
func effectiveRequired(category string, f schema.Feature) bool {
	if category == "sensor_temp" && sensorMeasurements[f.Name] {
		return false
	}
	return f.Required
}
