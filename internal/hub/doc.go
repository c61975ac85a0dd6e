// Package hub implements the Home Assistant side of the gateway: the
// WebSocket event stream, the REST command and bootstrap client, and the
// entity-to-category mapping that decides how hub entities surface as
// cloud devices.
//
// This package manages:
//   - Persistent WebSocket connection with auth handshake and 5s reconnect
//   - state_changed event handling with echo suppression and debounce
//   - Entity/area/device registry queries for room and device linkage
//   - REST bootstrap of all entities and outbound service calls
//   - Sensor fan-out across entities sharing one physical device
//
// # Architecture
//
//	Hub WS  ──▶ Socket ──▶ EventHandler ──▶ Registry ──▶ status publish
//	Hub REST ◀── Client ◀── cloud command dispatch
//
// The event path and the command path are intentionally asymmetric: the
// command path arms an echo expectation (in device.SyncTracker) before
// calling the hub, and the event path consumes that expectation to avoid
// re-publishing state the cloud itself just set.
package hub
