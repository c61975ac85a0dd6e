package hub

// Entity is one hub entity state as returned by GET /api/states and
// carried inside state_changed events.
type Entity struct {
	EntityID   string     `json:"entity_id"`
	State      string     `json:"state"`
	Attributes Attributes `json:"attributes"`
}

// Attributes is the subset of hub entity attributes the gateway reads.
// Numeric fields are pointers so absence is distinguishable from zero.
type Attributes struct {
	FriendlyName        string   `json:"friendly_name"`
	DeviceClass         string   `json:"device_class"`
	Brightness          *float64 `json:"brightness"`
	RGBColor            []int    `json:"rgb_color"`
	ColorTemp           *float64 `json:"color_temp"`
	SupportedColorModes []string `json:"supported_color_modes"`
	BatteryLevel        *float64 `json:"battery_level"`
	ClickType           string   `json:"click_type"`
	EventType           string   `json:"event_type"`
}

// entityConfig is the internal classification of one hub entity domain.
type entityConfig struct {
	entityType string
	category   string
}

// entityTypeMap maps hub entity domains to gateway entity types and cloud
// categories. Domains absent here (and not covered by the sensor rule) are
// not bridged.
var entityTypeMap = map[string]entityConfig{
	"switch":        {entityType: "switch", category: "relay"},
	"script":        {entityType: "scr", category: "relay"},
	"button":        {entityType: "button", category: "relay"},
	"input_boolean": {entityType: "input_boolean", category: "scenario_button"},
	"input_button":  {entityType: "input_button", category: "scenario_button"},
	"climate":       {entityType: "climate", category: "hvac_ac"},
	"light":         {entityType: "light", category: "light"},
	"vacuum":        {entityType: "vacuum", category: "vacuum_cleaner"},
}

// sensorKeyMap maps hub sensor device classes to cloud state keys.
var sensorKeyMap = map[string]string{
	"temperature":          "temperature",
	"humidity":             "humidity",
	"pressure":             "air_pressure",
	"atmospheric_pressure": "air_pressure",
}

// vacuumStatusMap maps hub vacuum states to the cloud's closed status
// enum (cleaning / docked / pause / returning_to_dock / charging).
var vacuumStatusMap = map[string]string{
	"cleaning":  "cleaning",
	"paused":    "pause",
	"returning": "returning_to_dock",
	"docked":    "docked",
	"idle":      "pause",
	"error":     "pause",
}

// vacuumFallbackStatus is reported for hub states outside the map
// (unavailable, unknown): a vacuum the hub cannot place is assumed docked.
const vacuumFallbackStatus = "charging"

// resolveEntityConfig classifies a hub entity by domain and device class.
// Returns ok=false for domains the gateway does not bridge.
func resolveEntityConfig(domain, deviceClass string) (entityConfig, bool) {
	if cfg, ok := entityTypeMap[domain]; ok {
		return cfg, true
	}
	if domain == "sensor" {
		if _, ok := sensorKeyMap[deviceClass]; ok {
			return entityConfig{entityType: "sensor_temp", category: "sensor_temp"}, true
		}
	}
	if domain == "hvac_radiator" && deviceClass == "temperature" {
		return entityConfig{entityType: "hvac_radiator", category: "hvac_radiator"}, true
	}
	return entityConfig{}, false
}

// entityDomain returns the domain part of a hub entity id
// ("light.kitchen" → "light"). Ids without a dot return the whole id.
func entityDomain(entityID string) string {
	for i := 0; i < len(entityID); i++ {
		if entityID[i] == '.' {
			return entityID[:i]
		}
	}
	return entityID
}
