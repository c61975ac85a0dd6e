// Package cloud implements the SberDevices side of the gateway: building
// the device-list and state-list wire payloads from registry contents, and
// handling inbound cloud commands and requests.
//
// This package manages:
//   - Serialization of registry records into the cloud device/state schema
//   - Default-value synthesis for required features that have no state yet
//   - Decoding of typed command values and forwarding to the hub side
//   - Arming echo-suppression expectations before hub commands are sent
//   - Routing of the per-account downlink topics and the global config topic
//
// # Architecture
//
//	Cloud broker ── down/commands ──▶ Bridge ──▶ Registry + SyncTracker ──▶ Hub
//	Cloud broker ◀── up/status ────── Serializer ◀── Registry
//
// The Serializer is schema-driven: the category → feature-list mapping is an
// injected immutable schema.Schema, so payload shape is data, not code. The
// Bridge owns all downlink message dispatch through a single topic switch;
// unrecognized message kinds are logged and dropped, never fatal.
package cloud
