package cloud

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/sbergate/internal/device"
	"github.com/nerrad567/sbergate/internal/infrastructure/mqtt"
)

// Downlink message kinds, the last segment of the per-account down topics.
const (
	msgCommands      = "commands"
	msgStatusRequest = "status_request"
	msgConfigRequest = "config_request"
	msgErrors        = "errors"
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

// MQTTClient is the broker interface the bridge needs.
// Satisfied by *mqtt.Client; mockable in tests.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Commander forwards decoded cloud commands to the hub side. Send failures
// are logged and dropped by the bridge, never retried: a stale command is
// worse than a missing one.
// Satisfied by *hub.Client.
type Commander interface {
	// Toggle switches a hub-managed device per its cached on_off state,
	// enriched with light parameters where applicable.
	Toggle(id string) error

	// SetClimateTemperature applies the cached target temperature and HVAC
	// mode to a climate entity. changed reports which state keys the
	// triggering command actually modified.
	SetClimateTemperature(id string, changed map[string]bool) error

	// SendVacuumCommand dispatches one vacuum command enum (start, pause,
	// return_to_dock, ...).
	SendVacuumCommand(id, command string) error
}

// OptionsStore persists runtime-discovered configuration values.
// Satisfied by *config.Options.
type OptionsStore interface {
	// Set writes a key if the value differs from the stored one, reporting
	// whether anything changed.
	Set(key, value string) (bool, error)
}

// BridgeOptions configures a cloud Bridge.
type BridgeOptions struct {
	Registry   *device.Registry
	Tracker    *device.SyncTracker
	Serializer *Serializer
	MQTT       MQTTClient
	Topics     mqtt.Topics
	QoS        byte

	// Commander may be nil: commands are then cached locally but not
	// forwarded, which keeps the cloud side usable while the hub is down.
	Commander Commander

	// Options may be nil: the pushed global config endpoint is then only
	// logged, not persisted.
	Options OptionsStore

	// EndpointOption is the options key the global config endpoint is
	// stored under.
	EndpointOption string

	Logger Logger
}

// Bridge handles the cloud-side MQTT traffic: inbound command batches,
// status and config requests, and outbound config/status publishes. It is
// the only component that arms echo-suppression expectations, since every
// hub command it forwards will come back as a hub state-change event.
//
// Thread Safety: all methods are safe for concurrent use; shared mutable
// state lives in the registry and tracker, which serialize internally.
type Bridge struct {
	registry   *device.Registry
	tracker    *device.SyncTracker
	serializer *Serializer
	mqtt       MQTTClient
	topics     mqtt.Topics
	qos        byte
	commander  Commander
	options    OptionsStore
	endpoint   string
	logger     Logger
}

// NewBridge creates a cloud bridge from the given options.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("cloud: registry is required")
	}
	if opts.Tracker == nil {
		return nil, fmt.Errorf("cloud: sync tracker is required")
	}
	if opts.Serializer == nil {
		return nil, fmt.Errorf("cloud: serializer is required")
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("cloud: mqtt client is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Bridge{
		registry:   opts.Registry,
		tracker:    opts.Tracker,
		serializer: opts.Serializer,
		mqtt:       opts.MQTT,
		topics:     opts.Topics,
		qos:        opts.QoS,
		commander:  opts.Commander,
		options:    opts.Options,
		endpoint:   opts.EndpointOption,
		logger:     logger,
	}, nil
}

// Start subscribes to the per-account downlink wildcard and the global
// config topic. The underlying client restores both subscriptions after
// reconnect, so Start is needed only once.
func (b *Bridge) Start() error {
	if err := b.mqtt.Subscribe(b.topics.Downlink(), b.qos, b.routeDownlink); err != nil {
		return fmt.Errorf("cloud: subscribe downlink: %w", err)
	}
	if err := b.mqtt.Subscribe(mqtt.TopicGlobalConfig, b.qos, b.handleGlobalConfig); err != nil {
		return fmt.Errorf("cloud: subscribe global config: %w", err)
	}
	b.logger.Info("cloud bridge subscribed", "downlink", b.topics.Downlink())
	return nil
}

// routeDownlink dispatches a downlink message by its final topic segment.
// The message set is closed; unrecognized kinds are logged and dropped.
func (b *Bridge) routeDownlink(topic string, payload []byte) error {
	kind := topic[strings.LastIndex(topic, "/")+1:]

	switch kind {
	case msgCommands:
		b.handleCommands(payload)
	case msgStatusRequest:
		b.handleStatusRequest(payload)
	case msgConfigRequest:
		b.PublishConfig()
	case msgErrors:
		b.logger.Error("cloud reported error", "topic", topic, "payload", string(payload))
	default:
		b.logger.Debug("unrecognized downlink message", "topic", topic)
	}
	return nil
}

// deviceCommand is one device's slice of a decoded command batch.
type deviceCommand struct {
	ID     string
	States []wireState
}

// decodeCommandBatch parses a commands payload preserving device order.
// Devices arrive as a JSON object keyed by id; a plain map would lose the
// order the cloud sent them in, and batch order determines which device's
// status is published afterwards.
func decodeCommandBatch(payload []byte) ([]deviceCommand, error) {
	var envelope struct {
		Devices json.RawMessage `json:"devices"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Devices) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(envelope.Devices))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok != json.Delim('{') {
		return nil, fmt.Errorf("devices is not an object")
	}

	var batch []deviceCommand
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		id, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("device key is not a string")
		}

		var body struct {
			States []wireState `json:"states"`
		}
		if err := dec.Decode(&body); err != nil {
			return nil, err
		}
		batch = append(batch, deviceCommand{ID: id, States: body.States})
	}
	return batch, nil
}

// handleCommands processes a command batch: decode each typed value, cache
// it in the registry, arm the echo expectation, and forward one equivalent
// command per device to the hub. Status is then published for the last
// device in the batch only, mirroring the cloud's own acknowledgment
// expectations.
func (b *Bridge) handleCommands(payload []byte) {
	batch, err := decodeCommandBatch(payload)
	if err != nil {
		b.logger.Error("failed to decode command batch", "error", err, "payload", string(payload))
		return
	}

	b.logger.Info("received command batch", "devices", len(batch))

	lastID := ""
	for _, cmd := range batch {
		b.applyCommand(cmd)
		lastID = cmd.ID
	}

	if lastID != "" {
		b.PublishStates([]string{lastID})
	}
}

// applyCommand caches one device's commanded states and forwards the
// command to the hub side.
func (b *Bridge) applyCommand(cmd deviceCommand) {
	changed := make(map[string]bool)
	pending := make(map[string]device.Value)

	for _, st := range cmd.States {
		val, err := st.Value.decode()
		if err != nil {
			b.logger.Error("dropping undecodable command value", "device", cmd.ID, "key", st.Key, "error", err)
			continue
		}

		cur, exists := b.registry.GetState(cmd.ID, st.Key)
		changed[st.Key] = !exists || !cur.Equal(val)
		pending[st.Key] = val

		// The hub will echo every boolean we set back as a state-change
		// event; remember what to expect so it is not re-published.
		if val.Kind() == device.KindBool {
			b.tracker.Arm(cmd.ID, val.Bool())
		}
	}

	if len(pending) == 0 {
		return
	}

	if err := b.registry.ChangeStates(cmd.ID, pending); err != nil {
		b.logger.Error("failed to cache commanded state", "device", cmd.ID, "error", err)
	}

	b.forward(cmd.ID, changed, pending)
}

// forward dispatches exactly one hub command for a processed device.
func (b *Bridge) forward(id string, changed map[string]bool, pending map[string]device.Value) {
	rec, ok := b.registry.Get(id)
	if !ok {
		b.logger.Warn("command for unknown device", "device", id)
		return
	}
	if b.commander == nil {
		b.logger.Debug("no hub commander, command cached only", "device", id)
		return
	}

	var err error
	switch {
	case rec.EntityType == "climate":
		err = b.commander.SetClimateTemperature(id, changed)

	case rec.Category == "vacuum_cleaner":
		if cmd, ok := pending["vacuum_cleaner_command"]; ok && cmd.Enum() != "" {
			err = b.commander.SendVacuumCommand(id, cmd.Enum())
		} else {
			err = b.commander.Toggle(id)
		}

	case rec.EntityHA:
		err = b.commander.Toggle(id)

	default:
		b.logger.Warn("device is not hub-managed, command cached only", "device", id)
		return
	}

	if err != nil {
		b.logger.Error("hub command failed, dropping", "device", id, "error", err)
	}
}

// handleStatusRequest answers a cloud status poll. A malformed request
// degrades to a full status report rather than an error.
func (b *Bridge) handleStatusRequest(payload []byte) {
	var request struct {
		Devices []string `json:"devices"`
	}
	if err := json.Unmarshal(payload, &request); err != nil {
		b.logger.Warn("malformed status request, reporting all devices", "error", err)
		request.Devices = nil
	}

	b.logger.Debug("status requested", "devices", request.Devices)
	b.PublishStates(request.Devices)
}

// handleGlobalConfig persists the cloud HTTP API endpoint pushed on the
// global config topic.
func (b *Bridge) handleGlobalConfig(topic string, payload []byte) error {
	var cfg struct {
		HTTPAPIEndpoint string `json:"http_api_endpoint"`
	}
	if err := json.Unmarshal(payload, &cfg); err != nil {
		b.logger.Error("failed to decode global config", "error", err)
		return nil
	}
	if cfg.HTTPAPIEndpoint == "" {
		return nil
	}

	if b.options == nil {
		b.logger.Info("received cloud endpoint", "endpoint", cfg.HTTPAPIEndpoint)
		return nil
	}

	updated, err := b.options.Set(b.endpoint, cfg.HTTPAPIEndpoint)
	if err != nil {
		b.logger.Error("failed to persist cloud endpoint", "error", err)
		return nil
	}
	if updated {
		b.logger.Info("cloud endpoint updated", "endpoint", cfg.HTTPAPIEndpoint)
	}
	return nil
}

// PublishConfig publishes the device configuration payload on the uplink
// config topic.
func (b *Bridge) PublishConfig() {
	payload, err := b.serializer.DeviceListPayload()
	if err != nil {
		b.logger.Error("failed to build device list", "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.UpConfig(), payload, b.qos, false); err != nil {
		b.logger.Error("failed to publish device list", "error", err)
		return
	}
	b.logger.Info("published device configuration")
}

// PublishStates publishes the status payload for the given ids (all
// devices when empty) on the uplink status topic.
func (b *Bridge) PublishStates(ids []string) {
	payload, err := b.serializer.StateListPayload(ids)
	if err != nil {
		b.logger.Error("failed to build state list", "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.UpStatus(), payload, b.qos, false); err != nil {
		b.logger.Error("failed to publish state list", "error", err)
		return
	}
	b.logger.Debug("published device states", "devices", ids)
}
