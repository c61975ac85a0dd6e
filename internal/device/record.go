package device

// Record is one device entry in the registry.
//
// Records are keyed by device id in the snapshot file, so the id itself is
// not part of the persisted record body. Most ids are hub entity ids
// (e.g. "light.kitchen"); administratively created devices get synthetic
// "prefix_NN" ids from Registry.GenerateID.
//
// The States map is dynamically typed: the set of valid keys is determined
// by the record's category via the cloud feature schema, and keys are
// populated lazily. Transient synchronization state (pending echo
// expectation, debounce timestamp) deliberately lives outside the record,
// in SyncTracker, so it can never leak into the snapshot.
type Record struct {
	// Enabled devices are exposed to the cloud; disabled ones are retained
	// for later re-enable but excluded from all outward payloads.
	Enabled bool `json:"enabled"`

	// Descriptive metadata, cloud-display only.
	Name         string   `json:"name"`
	DefaultName  string   `json:"default_name"`
	Nicknames    []string `json:"nicknames"`
	Home         string   `json:"home"`
	Room         string   `json:"room"`
	Groups       []string `json:"groups"`
	FriendlyName string   `json:"friendly_name"`

	// ModelID and Category select the cloud model and feature schema.
	ModelID  string `json:"model_id"`
	Category string `json:"category"`

	// Version stamps set at creation from the build version.
	HWVersion string `json:"hw_version"`
	SWVersion string `json:"sw_version"`

	// Provenance linking back to the hub's entity/device/area graph.
	EntityHA    bool   `json:"entity_ha"`
	EntityType  string `json:"entity_type"`
	DeviceClass string `json:"device_class,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`

	// States maps feature name to its current dynamically-typed value.
	States map[string]Value `json:"States,omitempty"`
}

// DeepCopy returns a full copy of the record. Values are immutable, so the
// States map is copied shallowly per entry.
func (r *Record) DeepCopy() *Record {
	if r == nil {
		return nil
	}

	clone := *r

	if r.Nicknames != nil {
		clone.Nicknames = make([]string, len(r.Nicknames))
		copy(clone.Nicknames, r.Nicknames)
	}
	if r.Groups != nil {
		clone.Groups = make([]string, len(r.Groups))
		copy(clone.Groups, r.Groups)
	}
	if r.States != nil {
		clone.States = make(map[string]Value, len(r.States))
		for k, v := range r.States {
			clone.States[k] = v
		}
	}

	return &clone
}

// Update is a partial set of record attributes for Registry.Upsert.
// Nil pointer fields are left untouched; nil slices likewise.
type Update struct {
	Enabled      *bool     `json:"enabled,omitempty"`
	Name         *string   `json:"name,omitempty"`
	DefaultName  *string   `json:"default_name,omitempty"`
	Nicknames    *[]string `json:"nicknames,omitempty"`
	Home         *string   `json:"home,omitempty"`
	Room         *string   `json:"room,omitempty"`
	Groups       *[]string `json:"groups,omitempty"`
	FriendlyName *string   `json:"friendly_name,omitempty"`
	ModelID      *string   `json:"model_id,omitempty"`
	Category     *string   `json:"category,omitempty"`
	EntityHA     *bool     `json:"entity_ha,omitempty"`
	EntityType   *string   `json:"entity_type,omitempty"`
	DeviceClass  *string   `json:"device_class,omitempty"`
	DeviceID     *string   `json:"device_id,omitempty"`
}

// apply overlays the non-nil fields of the update onto the record.
func (u Update) apply(r *Record) {
	if u.Enabled != nil {
		r.Enabled = *u.Enabled
	}
	if u.Name != nil {
		r.Name = *u.Name
	}
	if u.DefaultName != nil {
		r.DefaultName = *u.DefaultName
	}
	if u.Nicknames != nil {
		r.Nicknames = *u.Nicknames
	}
	if u.Home != nil {
		r.Home = *u.Home
	}
	if u.Room != nil {
		r.Room = *u.Room
	}
	if u.Groups != nil {
		r.Groups = *u.Groups
	}
	if u.FriendlyName != nil {
		r.FriendlyName = *u.FriendlyName
	}
	if u.ModelID != nil {
		r.ModelID = *u.ModelID
	}
	if u.Category != nil {
		r.Category = *u.Category
	}
	if u.EntityHA != nil {
		r.EntityHA = *u.EntityHA
	}
	if u.EntityType != nil {
		r.EntityType = *u.EntityType
	}
	if u.DeviceClass != nil {
		r.DeviceClass = *u.DeviceClass
	}
	if u.DeviceID != nil {
		r.DeviceID = *u.DeviceID
	}
}

// newRecord builds a record with the default attribute set, stamped with the
// build version. Category scenario_button seeds an empty button_event state
// so the one-shot key always exists.
func newRecord(version string, u Update) *Record {
	r := &Record{
		Nicknames: []string{},
		Groups:    []string{},
		HWVersion: "hw:" + version,
		SWVersion: "sw:" + version,
	}
	u.apply(r)

	if r.Category == "scenario_button" {
		r.States = map[string]Value{"button_event": EnumValue("")}
	}

	return r
}
