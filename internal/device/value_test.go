package device

import (
	"encoding/json"
	"testing"
)

func TestValue_JSONRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		json  string
	}{
		{"bool true", BoolValue(true), `true`},
		{"bool false", BoolValue(false), `false`},
		{"int", IntValue(42), `42`},
		{"negative int", IntValue(-7), `-7`},
		{"float", FloatValue(21.5), `21.5`},
		{"enum", EnumValue("double_click"), `"double_click"`},
		{"empty enum", EnumValue(""), `""`},
		{"colour", ColourValue(Colour{Red: 255, Green: 10, Blue: 0}), `{"red":255,"green":10,"blue":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.value)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.json {
				t.Errorf("Marshal() = %s, want %s", data, tt.json)
			}

			var back Value
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !back.Equal(tt.value) {
				t.Errorf("round trip = %v, want %v", back, tt.value)
			}
		})
	}
}

func TestValue_UnmarshalDetectsKind(t *testing.T) {
	tests := []struct {
		name string
		json string
		kind ValueKind
	}{
		{"bool", `true`, KindBool},
		{"integer stays integral", `10`, KindInt},
		{"decimal becomes float", `10.5`, KindFloat},
		{"string", `"on"`, KindEnum},
		{"colour object", `{"red":1,"green":2,"blue":3}`, KindColour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			if err := json.Unmarshal([]byte(tt.json), &v); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.json, err)
			}
			if v.Kind() != tt.kind {
				t.Errorf("Kind() = %v, want %v", v.Kind(), tt.kind)
			}
		})
	}
}

func TestValue_UnmarshalRejectsGarbage(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`[1,2,3]`), &v); err == nil {
		t.Error("Unmarshal() of array should fail")
	}
}

func TestValue_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same bool", BoolValue(true), BoolValue(true), true},
		{"different bool", BoolValue(true), BoolValue(false), false},
		{"kind mismatch", BoolValue(false), IntValue(0), false},
		{"same colour", ColourValue(White), ColourValue(Colour{255, 255, 255}), true},
		{"different colour", ColourValue(White), ColourValue(Colour{255, 0, 0}), false},
		{"int float mismatch", IntValue(1), FloatValue(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValue_Accessors(t *testing.T) {
	if got := FloatValue(21.9).Int(); got != 21 {
		t.Errorf("FloatValue(21.9).Int() = %d, want 21", got)
	}
	if got := IntValue(21).Float(); got != 21.0 {
		t.Errorf("IntValue(21).Float() = %v, want 21.0", got)
	}
	if got := EnumValue("x").Bool(); got {
		t.Error("EnumValue.Bool() = true, want false")
	}
	if got := BoolValue(true).Enum(); got != "" {
		t.Errorf("BoolValue.Enum() = %q, want empty", got)
	}
}
