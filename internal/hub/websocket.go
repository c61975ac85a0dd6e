package hub

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/sbergate/internal/device"
)

// WebSocket constants.
const (
	// reconnectDelay is the fixed pause between connection attempts.
	// The loop runs forever; only context cancellation stops it.
	reconnectDelay = 5 * time.Second

	// handshakeTimeout bounds the WebSocket dial.
	handshakeTimeout = 10 * time.Second

	// pingInterval keeps the connection alive through proxies.
	pingInterval = 30 * time.Second

	// writeTimeout bounds every outbound frame.
	writeTimeout = 5 * time.Second
)

// Fixed request ids for the post-auth queries. The hub echoes the id in
// each result message, which is how results are matched to queries.
const (
	reqSubscribeEvents = 1
	reqAreaRegistry    = 2
	reqDeviceRegistry  = 3
	reqEntityRegistry  = 4
)

// wsMessage is the envelope of every hub WebSocket message. The type set
// is closed: auth handshake, query results, and events.
type wsMessage struct {
	ID     int             `json:"id,omitempty"`
	Type   string          `json:"type"`
	Result json.RawMessage `json:"result,omitempty"`
	Event  *wsEvent        `json:"event,omitempty"`
}

type wsEvent struct {
	Data struct {
		EntityID string  `json:"entity_id"`
		OldState *Entity `json:"old_state"`
		NewState *Entity `json:"new_state"`
	} `json:"data"`
}

type wsArea struct {
	AreaID string `json:"area_id"`
	Name   string `json:"name"`
}

type wsDevice struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	NameByUser string `json:"name_by_user"`
	AreaID     string `json:"area_id"`
}

type wsEntityEntry struct {
	EntityID string `json:"entity_id"`
	DeviceID string `json:"device_id"`
	AreaID   string `json:"area_id"`
}

// Socket is the persistent hub WebSocket client. It authenticates,
// subscribes to state changes, loads the area/device/entity registries,
// and feeds every state_changed event to the EventHandler.
//
// Thread Safety: Run is the single reader; the ping loop is the only
// concurrent writer and is serialized by writeMu.
type Socket struct {
	url      string
	token    string
	registry *device.Registry
	events   *EventHandler
	logger   Logger

	// Hub topology caches, owned by the read loop.
	areas   map[string]string
	devices map[string]wsDevice

	delay   time.Duration
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewSocket creates a hub WebSocket client. apiURL is the hub's base HTTP
// URL; the WebSocket endpoint is derived from it.
func NewSocket(apiURL, token string, registry *device.Registry, events *EventHandler) *Socket {
	return &Socket{
		url:      websocketURL(apiURL),
		token:    token,
		registry: registry,
		events:   events,
		logger:   noopLogger{},
		delay:    reconnectDelay,
		areas:    make(map[string]string),
		devices:  make(map[string]wsDevice),
	}
}

// SetLogger replaces the socket's logger. Call before Run.
func (s *Socket) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetReconnectDelay overrides the fixed delay between reconnect attempts.
// Call before Run.
func (s *Socket) SetReconnectDelay(d time.Duration) {
	if d > 0 {
		s.delay = d
	}
}

// websocketURL derives the WebSocket endpoint from the hub API URL:
// the scheme flips http→ws and /api/websocket is appended unless the URL
// already points at a websocket path.
func websocketURL(apiURL string) string {
	url := apiURL
	if strings.HasPrefix(url, "http") {
		url = "ws" + strings.TrimPrefix(url, "http")
	}
	if !strings.HasSuffix(url, "/websocket") {
		url = strings.TrimRight(url, "/") + "/api/websocket"
	}
	return url
}

// Run connects and processes messages until ctx is cancelled, reconnecting
// with a fixed delay after every failure or disconnect.
func (s *Socket) Run(ctx context.Context) {
	for {
		s.logger.Info("connecting to hub websocket", "url", s.url)

		if err := s.runOnce(ctx); err != nil {
			s.logger.Error("hub websocket session ended", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.delay):
		}
	}
}

// runOnce runs one connection lifetime: dial, read until error.
func (s *Socket) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	s.conn = conn
	defer conn.Close()

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go s.pingLoop(pingCtx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleMessage(raw)
	}
}

// pingLoop keeps the connection alive with periodic control pings. The
// hub answers with pongs, which the read loop consumes transparently.
func (s *Socket) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("hub websocket ping failed", "error", err)
				return
			}
		}
	}
}

// handleMessage dispatches one inbound message by type. The variant set is
// closed; unknown types are ignored, never an error.
func (s *Socket) handleMessage(raw []byte) {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Warn("undecodable hub websocket message dropped", "error", err)
		return
	}

	switch msg.Type {
	case "auth_required":
		s.authenticate()
	case "auth_ok":
		s.logger.Info("hub websocket authenticated")
		s.subscribeAndQuery()
	case "auth_invalid":
		s.logger.Error("hub websocket authentication rejected, check the API token")
	case "result":
		s.handleResult(msg)
	case "event":
		s.handleEvent(msg)
	default:
		s.logger.Debug("unhandled hub websocket message", "type", msg.Type)
	}
}

func (s *Socket) authenticate() {
	s.send(map[string]any{"type": "auth", "access_token": s.token})
}

// subscribeAndQuery requests the event subscription and the three registry
// listings that drive room and hardware-device linkage.
func (s *Socket) subscribeAndQuery() {
	s.send(map[string]any{"id": reqSubscribeEvents, "type": "subscribe_events", "event_type": "state_changed"})
	s.send(map[string]any{"id": reqAreaRegistry, "type": "config/area_registry/list"})
	s.send(map[string]any{"id": reqDeviceRegistry, "type": "config/device_registry/list"})
	s.send(map[string]any{"id": reqEntityRegistry, "type": "config/entity_registry/list"})
}

func (s *Socket) send(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal hub websocket message", "error", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck // deadline on live conn
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.logger.Error("failed to send hub websocket message", "error", err)
	}
}

// handleResult applies one registry query result, keyed by request id.
func (s *Socket) handleResult(msg wsMessage) {
	switch msg.ID {
	case reqAreaRegistry:
		var areas []wsArea
		if err := json.Unmarshal(msg.Result, &areas); err != nil {
			s.logger.Warn("undecodable area registry result", "error", err)
			return
		}
		s.areas = make(map[string]string, len(areas))
		for _, a := range areas {
			s.areas[a.AreaID] = a.Name
		}
		s.logger.Debug("hub areas loaded", "count", len(s.areas))

	case reqDeviceRegistry:
		var devices []wsDevice
		if err := json.Unmarshal(msg.Result, &devices); err != nil {
			s.logger.Warn("undecodable device registry result", "error", err)
			return
		}
		s.devices = make(map[string]wsDevice, len(devices))
		for _, d := range devices {
			s.devices[d.ID] = d
		}
		s.logger.Debug("hub devices loaded", "count", len(s.devices))

	case reqEntityRegistry:
		var entities []wsEntityEntry
		if err := json.Unmarshal(msg.Result, &entities); err != nil {
			s.logger.Warn("undecodable entity registry result", "error", err)
			return
		}
		s.applyEntityRegistry(entities)
	}
}

// applyEntityRegistry backfills device linkage and room names from the
// hub's entity registry. The entity's own area wins over its hardware
// device's area.
func (s *Socket) applyEntityRegistry(entities []wsEntityEntry) {
	for _, e := range entities {
		rec, ok := s.registry.Get(e.EntityID)
		if !ok {
			continue
		}

		areaID := e.AreaID
		if areaID == "" {
			if d, ok := s.devices[e.DeviceID]; ok {
				areaID = d.AreaID
			}
		}
		room := s.areas[areaID]

		update := device.Update{}
		changed := false
		if e.DeviceID != rec.DeviceID {
			update.EntityHA = boolPtr(true)
			update.DeviceID = strPtr(e.DeviceID)
			changed = true
		}
		if room != rec.Room {
			s.logger.Info("room updated from hub", "entity", e.EntityID, "from", rec.Room, "to", room)
			update.EntityHA = boolPtr(true)
			update.Room = strPtr(room)
			changed = true
		}

		if changed {
			if _, err := s.registry.UpdateAttributes(e.EntityID, update); err != nil {
				s.logger.Error("failed to apply entity registry entry", "entity", e.EntityID, "error", err)
			}
		}
	}
	s.logger.Debug("hub entity registry applied", "entities", len(entities))
}

// handleEvent forwards one state_changed event to the event handler.
// Events with no new state (entity removed) are ignored.
func (s *Socket) handleEvent(msg wsMessage) {
	if msg.Event == nil || msg.Event.Data.NewState == nil {
		return
	}

	e := *msg.Event.Data.NewState
	if e.EntityID == "" {
		e.EntityID = msg.Event.Data.EntityID
	}
	s.events.HandleStateChanged(e)
}
