package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/sbergate/internal/convert"
	"github.com/nerrad567/sbergate/internal/device"
)

// REST client constants.
const (
	// bootstrapAttempts is how many times the initial state fetch is
	// retried before the gateway continues with an empty entity list.
	bootstrapAttempts = 10

	// bootstrapRetryDelay is the pause between bootstrap attempts.
	bootstrapRetryDelay = 5 * time.Second
)

// vacuumServiceMap maps cloud vacuum command enums to hub vacuum services.
// resume maps to start because the hub does not distinguish the two.
var vacuumServiceMap = map[string]string{
	"start":          "start",
	"pause":          "pause",
	"return_to_dock": "return_to_base",
	"resume":         "start",
}

// Client sends commands to the hub's REST API and performs the bulk state
// bootstrap. Commands read their parameters from the registry cache: by the
// time a command is dispatched, the registry already holds the target state
// the cloud asked for.
//
// Send failures are returned to the caller, which logs and drops them; a
// stale command is worse than a missing one, so nothing is retried.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	baseURL  string
	token    string
	registry *device.Registry
	http     *http.Client
	logger   Logger
}

// NewClient creates a hub REST client. timeout bounds every outbound call
// so a slow hub cannot stall event processing.
func NewClient(baseURL, token string, timeout time.Duration, registry *device.Registry) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		registry: registry,
		http:     &http.Client{Timeout: timeout},
		logger:   noopLogger{},
	}
}

// SetLogger replaces the client's logger. Call before sharing the client
// across goroutines.
func (c *Client) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// FetchStates performs the bulk entity bootstrap (GET /api/states),
// retrying connection failures with a fixed delay. A non-200 response is
// not retried: the hub is reachable but refusing, which retrying will not
// fix.
func (c *Client) FetchStates(ctx context.Context) ([]Entity, error) {
	var lastErr error
	for attempt := 1; attempt <= bootstrapAttempts; attempt++ {
		entities, err := c.fetchStatesOnce(ctx)
		if err == nil {
			c.logger.Info("hub entity bootstrap complete", "entities", len(entities))
			return entities, nil
		}
		lastErr = err
		c.logger.Warn("hub bootstrap attempt failed", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bootstrapRetryDelay):
		}
	}
	return nil, fmt.Errorf("hub: bootstrap failed after %d attempts: %w", bootstrapAttempts, lastErr)
}

func (c *Client) fetchStatesOnce(ctx context.Context) ([]Entity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/states", nil)
	if err != nil {
		return nil, fmt.Errorf("hub: build states request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hub: fetch states: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hub: fetch states: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("hub: read states response: %w", err)
	}

	var entities []Entity
	if err := json.Unmarshal(body, &entities); err != nil {
		return nil, fmt.Errorf("hub: decode states response: %w", err)
	}
	return entities, nil
}

// Toggle switches a device on or off per its cached on_off state. Button
// domains are pressed instead. Lights turning on are enriched with the
// cached brightness and either colour or colour temperature (colour wins).
func (c *Client) Toggle(id string) error {
	domain := entityDomain(id)
	payload := map[string]any{"entity_id": id}

	if domain == "button" || domain == "input_button" {
		c.logger.Debug("pressing hub button", "entity", id)
		return c.callService(domain, "press", payload)
	}

	isOn := false
	if v, ok := c.registry.GetState(id, "on_off"); ok {
		isOn = v.Bool()
	}

	service := "turn_off"
	if isOn {
		service = "turn_on"
	}
	if domain == "light" && isOn {
		c.enrichLightPayload(id, payload)
	}

	c.logger.Info("sending hub command", "entity", id, "service", service)
	return c.callService(domain, service, payload)
}

// enrichLightPayload adds cached brightness and colour parameters to a
// light turn_on call. Colour takes precedence over colour temperature: a
// light cannot be told both at once, and a cached RGB value means the user
// last picked a colour.
func (c *Client) enrichLightPayload(id string, payload map[string]any) {
	if v, ok := c.registry.GetState(id, "light_brightness"); ok {
		payload["brightness"] = convert.BrightnessToHub(int(v.Int()))
	}

	if v, ok := c.registry.GetState(id, "light_colour"); ok && v.Kind() == device.KindColour {
		col := v.Colour()
		payload["rgb_color"] = []int{col.Red, col.Green, col.Blue}
		return
	}

	if v, ok := c.registry.GetState(id, "light_colour_temp"); ok {
		payload["color_temp"] = convert.ColourTempToHub(int(v.Int()))
	}
}

// SetClimateTemperature applies the cached target temperature to a climate
// entity, switching HVAC mode by the cached on_off state. changed is the
// set of state keys the triggering command actually modified, logged for
// diagnosis of no-op commands.
func (c *Client) SetClimateTemperature(id string, changed map[string]bool) error {
	domain := entityDomain(id)

	var target float64
	if v, ok := c.registry.GetState(id, "hvac_temp_set"); ok {
		target = v.Float()
	}
	mode := "off"
	if v, ok := c.registry.GetState(id, "on_off"); ok && v.Bool() {
		mode = "cool"
	}

	c.logger.Info("sending hub climate command", "entity", id,
		"temperature", target, "hvac_mode", mode, "changed", changed)

	return c.callService(domain, "set_temperature", map[string]any{
		"entity_id":   id,
		"temperature": target,
		"hvac_mode":   mode,
	})
}

// SendVacuumCommand dispatches one cloud vacuum command enum as a hub
// vacuum service call. Unknown commands are dropped with a warning.
func (c *Client) SendVacuumCommand(id, command string) error {
	service, ok := vacuumServiceMap[command]
	if !ok {
		c.logger.Warn("unknown vacuum command", "entity", id, "command", command)
		return nil
	}

	c.logger.Info("sending hub vacuum command", "entity", id, "command", command, "service", service)
	return c.callService("vacuum", service, map[string]any{"entity_id": id})
}

// callService posts one service call (POST /api/services/{domain}/{service}).
func (c *Client) callService(domain, service string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("hub: marshal service payload: %w", err)
	}

	url := fmt.Sprintf("%s/api/services/%s/%s", c.baseURL, domain, service)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("hub: build service request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hub: call %s/%s: %w", domain, service, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("hub: call %s/%s: unexpected status %d", domain, service, resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
}

// roundToInt converts a hub float attribute to a whole number.
func roundToInt(f float64) int64 {
	return int64(math.Round(f))
}
