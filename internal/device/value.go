package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind identifies the dynamic type of a state Value.
type ValueKind int

// Value kinds. The set mirrors the cloud schema's data types, with Float
// added for raw sensor readings that arrive as decimals.
const (
	KindBool ValueKind = iota
	KindInt
	KindFloat
	KindEnum
	KindColour
)

// String returns the kind name for logging.
func (k ValueKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindEnum:
		return "enum"
	case KindColour:
		return "colour"
	default:
		return "unknown"
	}
}

// Colour is an RGB triple with 0-255 channels. This is the internal and
// on-disk colour representation; the cloud-side HSV form exists only at the
// serialization boundary.
type Colour struct {
	Red   int `json:"red"`
	Green int `json:"green"`
	Blue  int `json:"blue"`
}

// White is the default colour synthesized for missing required COLOUR states.
var White = Colour{Red: 255, Green: 255, Blue: 255}

// Value is a dynamically-typed device state value: bool, integer, float,
// enum string, or structured colour. The zero Value is a false bool.
//
// Values are immutable; comparison is by Equal. JSON encoding preserves the
// natural shape of each kind (bool, number, string, colour object), so
// snapshots remain readable and compatible across versions.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
	c    Colour
}

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// IntValue returns an integer Value.
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// FloatValue returns a float Value.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// EnumValue returns an enum (string) Value.
func EnumValue(s string) Value { return Value{kind: KindEnum, s: s} }

// ColourValue returns a colour Value.
func ColourValue(c Colour) Value { return Value{kind: KindColour, c: c} }

// Kind returns the dynamic type of the value.
func (v Value) Kind() ValueKind { return v.kind }

// Bool returns the boolean payload. For non-bool kinds it returns false.
func (v Value) Bool() bool { return v.kind == KindBool && v.b }

// Int returns the integer payload. Float values are truncated; other kinds
// return 0.
func (v Value) Int() int64 {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return int64(v.f)
	default:
		return 0
	}
}

// Float returns the numeric payload as a float. Integer values are widened;
// other kinds return 0.
func (v Value) Float() float64 {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInt:
		return float64(v.i)
	default:
		return 0
	}
}

// Enum returns the string payload, or "" for non-enum kinds.
func (v Value) Enum() string {
	if v.kind != KindEnum {
		return ""
	}
	return v.s
}

// Colour returns the colour payload, or the zero Colour for other kinds.
func (v Value) Colour() Colour {
	if v.kind != KindColour {
		return Colour{}
	}
	return v.c
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindEnum:
		return v.s == o.s
	case KindColour:
		return v.c == o.c
	default:
		return false
	}
}

// String returns a human-readable form for logging.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindEnum:
		return v.s
	case KindColour:
		return fmt.Sprintf("rgb(%d,%d,%d)", v.c.Red, v.c.Green, v.c.Blue)
	default:
		return "?"
	}
}

// MarshalJSON encodes the value in its natural JSON shape.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindEnum:
		return json.Marshal(v.s)
	case KindColour:
		return json.Marshal(v.c)
	default:
		return nil, fmt.Errorf("device: cannot marshal value kind %d", v.kind)
	}
}

// UnmarshalJSON decodes a value from its natural JSON shape: booleans,
// numbers (integers stay integral), strings, and {red,green,blue} objects.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("device: decoding value: %w", err)
	}

	switch t := raw.(type) {
	case bool:
		*v = BoolValue(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			*v = IntValue(i)
			return nil
		}
		f, err := t.Float64()
		if err != nil {
			return fmt.Errorf("device: decoding numeric value %q: %w", t.String(), err)
		}
		*v = FloatValue(f)
	case string:
		*v = EnumValue(t)
	case map[string]any:
		var c Colour
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("device: decoding colour value: %w", err)
		}
		*v = ColourValue(c)
	default:
		return fmt.Errorf("device: unsupported value JSON: %s", string(data))
	}
	return nil
}
