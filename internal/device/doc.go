// Package device provides the Device Registry for SberGate.
//
// The Device Registry is the central catalogue of every hub entity the
// gateway exposes to the cloud. It manages device lifecycle, dynamically
// typed state values, durable flat-file snapshots, and the transient
// per-device synchronization state used for echo suppression.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                          Device Registry                             │
//	│                                                                      │
//	│  ┌──────────────────┐   ┌──────────────────┐   ┌──────────────────┐  │
//	│  │     Registry     │   │      Store       │   │   SyncTracker    │  │
//	│  │   (registry.go)  │──▶│    (store.go)    │   │  (syncstate.go)  │  │
//	│  │                  │   │                  │   │                  │  │
//	│  │ • CRUD ops       │   │ • JSON snapshot  │   │ • Echo marker    │  │
//	│  │ • State values   │   │ • Atomic rewrite │   │ • Debounce clock │  │
//	│  │ • Thread safety  │   │                  │   │ • Never persisted│  │
//	│  └──────────────────┘   └──────────────────┘   └──────────────────┘  │
//	└──────────────────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Record: one device entry (metadata plus the States map)
//   - Value: dynamically-typed state value (bool, int, float, enum, colour)
//   - Update: partial attribute set applied by Upsert
//   - SyncTracker: transient echo/debounce state held beside the records
//
// # Usage
//
//	store := device.NewFileStore("./data/devices.json")
//	registry := device.NewRegistry(store, version)
//	registry.SetLogger(log)
//
//	if err := registry.Load(); err != nil {
//	    return err
//	}
//
//	// Create or update a device
//	enabled := true
//	registry.Upsert("light.kitchen", device.Update{
//	    Enabled:      &enabled,
//	    Category:     ptr("light"),
//	    FriendlyName: ptr("Kitchen"),
//	})
//
//	// Update state (from an adapter)
//	registry.ChangeState("light.kitchen", "on_off", device.BoolValue(true))
//
// # Thread Safety
//
// The Registry is safe for concurrent use. All operations are protected by
// a single read-write mutex; mutating calls flush the snapshot before
// returning.
package device
