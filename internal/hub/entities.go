package hub

import (
	"context"
	"fmt"

	"github.com/nerrad567/sbergate/internal/convert"
	"github.com/nerrad567/sbergate/internal/device"
)

// Logger is the minimal logging interface this package needs.
// Satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StateFetcher provides the bulk entity bootstrap.
// Satisfied by *Client.
type StateFetcher interface {
	FetchStates(ctx context.Context) ([]Entity, error)
}

// Updater maps hub entities into registry records. It runs during the
// REST bootstrap and whenever the entity registry changes; the event path
// reuses its attribute handling for lights and vacuums.
type Updater struct {
	registry *device.Registry
	logger   Logger
}

// NewUpdater creates an updater over the given registry.
func NewUpdater(registry *device.Registry) *Updater {
	return &Updater{registry: registry, logger: noopLogger{}}
}

// SetLogger replaces the updater's logger.
func (u *Updater) SetLogger(logger Logger) {
	if logger != nil {
		u.logger = logger
	}
}

// Bootstrap fetches all hub entities, maps each bridgeable one into the
// registry, and merges sensor readings across entities that share physical
// hardware. A failed fetch leaves existing records untouched.
func (u *Updater) Bootstrap(ctx context.Context, fetcher StateFetcher) error {
	entities, err := fetcher.FetchStates(ctx)
	if err != nil {
		return fmt.Errorf("hub: bootstrap: %w", err)
	}

	for _, e := range entities {
		u.ApplyEntity(e)
	}
	u.MergeSensorStates(entities)

	u.logger.Info("hub bootstrap applied", "entities", len(entities), "devices", u.registry.Count())
	return nil
}

// ApplyEntity upserts one hub entity into the registry and seeds its
// current state. Unbridgeable domains are ignored.
func (u *Updater) ApplyEntity(e Entity) {
	domain := entityDomain(e.EntityID)
	cfg, ok := resolveEntityConfig(domain, e.Attributes.DeviceClass)
	if !ok {
		return
	}

	update := device.Update{
		EntityHA:     boolPtr(true),
		EntityType:   strPtr(cfg.entityType),
		Category:     strPtr(cfg.category),
		FriendlyName: strPtr(e.Attributes.FriendlyName),
	}
	if e.Attributes.DeviceClass != "" {
		update.DeviceClass = strPtr(e.Attributes.DeviceClass)
	}
	if err := u.registry.Upsert(e.EntityID, update); err != nil {
		u.logger.Error("failed to upsert hub entity", "entity", e.EntityID, "error", err)
		return
	}

	switch domain {
	case "switch", "script", "light":
		u.changeState(e.EntityID, "on_off", device.BoolValue(e.State == "on"))
	}

	if domain == "light" {
		u.applyLightAttributes(e.EntityID, e.Attributes, true)
	}
	if domain == "vacuum" {
		u.applyVacuumAttributes(e.EntityID, e.State, e.Attributes, true)
	}
}

// applyLightAttributes refreshes a light's brightness, colour, and colour
// temperature sub-states from hub attributes. checkModes gates colour
// updates on the advertised supported_color_modes; the bootstrap path
// checks them, the event path trusts whatever the event carries.
func (u *Updater) applyLightAttributes(id string, attrs Attributes, checkModes bool) {
	if attrs.Brightness != nil {
		cloud := convert.BrightnessToCloud(int(roundToInt(*attrs.Brightness)))
		u.changeState(id, "light_brightness", device.IntValue(int64(cloud)))
	}

	colourCapable := !checkModes || hasAnyMode(attrs.SupportedColorModes, "rgb", "rgbw", "rgbww")
	if colourCapable && len(attrs.RGBColor) >= 3 {
		u.changeState(id, "light_colour", device.ColourValue(device.Colour{
			Red:   attrs.RGBColor[0],
			Green: attrs.RGBColor[1],
			Blue:  attrs.RGBColor[2],
		}))
		u.changeState(id, "light_mode", device.EnumValue("colour"))
	}

	tempCapable := !checkModes || hasAnyMode(attrs.SupportedColorModes, "color_temp")
	if tempCapable && attrs.ColorTemp != nil {
		cloud := convert.ColourTempToCloud(int(roundToInt(*attrs.ColorTemp)))
		u.changeState(id, "light_colour_temp", device.IntValue(int64(cloud)))
		if _, ok := u.registry.GetState(id, "light_colour"); !ok {
			u.changeState(id, "light_mode", device.EnumValue("white"))
		}
	}
}

// applyVacuumAttributes refreshes a vacuum's status and battery level.
// seedCommand synthesizes an initial vacuum_cleaner_command from the
// current status so the cloud always sees a command value.
func (u *Updater) applyVacuumAttributes(id, state string, attrs Attributes, seedCommand bool) {
	status, ok := vacuumStatusMap[state]
	if !ok {
		status = vacuumFallbackStatus
	}
	u.changeState(id, "vacuum_cleaner_status", device.EnumValue(status))

	if attrs.BatteryLevel != nil {
		u.changeState(id, "battery_percentage", device.IntValue(roundToInt(*attrs.BatteryLevel)))
	}

	if seedCommand {
		if _, ok := u.registry.GetState(id, "vacuum_cleaner_command"); !ok {
			initial := "return_to_dock"
			if state == "cleaning" {
				initial = "start"
			}
			u.changeState(id, "vacuum_cleaner_command", device.EnumValue(initial))
		}
	}
}

// MergeSensorStates combines temperature/humidity/pressure readings across
// sensor entities that report for the same physical device, so every
// record of a multi-sensor unit carries the full reading set.
func (u *Updater) MergeSensorStates(entities []Entity) {
	records := u.registry.List()

	// Group bridged sensor entities by their hub hardware device.
	grouped := make(map[string][]string)
	for _, e := range entities {
		rec, ok := records[e.EntityID]
		if !ok || rec.Category != "sensor_temp" {
			continue
		}
		if _, ok := sensorKeyMap[e.Attributes.DeviceClass]; !ok {
			continue
		}
		if rec.DeviceID != "" {
			grouped[rec.DeviceID] = append(grouped[rec.DeviceID], e.EntityID)
		}
	}

	for deviceID, ids := range grouped {
		if len(ids) < 2 {
			continue
		}

		combined := make(map[string]device.Value)
		for _, id := range ids {
			for key, val := range u.registry.GetStates(id) {
				switch key {
				case "temperature", "humidity", "air_pressure":
					combined[key] = val
				}
			}
		}
		if len(combined) == 0 {
			continue
		}

		u.logger.Debug("merging sensor readings", "device", deviceID, "entities", ids)
		for _, id := range ids {
			if err := u.registry.ChangeStates(id, combined); err != nil {
				u.logger.Error("failed to merge sensor states", "entity", id, "error", err)
			}
		}
	}
}

func (u *Updater) changeState(id, key string, val device.Value) {
	if err := u.registry.ChangeState(id, key, val); err != nil {
		u.logger.Error("failed to update state", "entity", id, "key", key, "error", err)
	}
}

func hasAnyMode(modes []string, wanted ...string) bool {
	for _, m := range modes {
		for _, w := range wanted {
			if m == w {
				return true
			}
		}
	}
	return false
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }
