// Package api implements the admin HTTP server for SberGate.
//
// This package provides:
//   - REST endpoints for device registry CRUD and bulk updates
//   - Gateway status reporting for monitoring
//   - Category/model schema endpoints and a cloud API passthrough
//   - Middleware stack (request ID, logging, recovery, body limits)
//   - Static file serving for the bundled web UI
//
// # Architecture
//
// The server sits beside the two gateway bridges rather than between them:
// it reads and mutates the shared device registry, and after any mutation
// that changes the exposed device list it asks the cloud bridge to republish
// the device-list payload so the vendor side stays in sync.
//
// # Graceful Degradation
//
// The server operates without the cloud bridge or schema client — registry
// reads and writes still work, schema endpoints return 503 until the cloud
// endpoint has been discovered and the schema bootstrap has run.
package api
