// Package telemetry mirrors accepted sensor readings to InfluxDB.
//
// The registry only holds the latest value per state key; this sink gives
// temperature, humidity, and pressure readings a history. It is entirely
// optional: when disabled (the default), the gateway runs without it and
// the hub event path skips the mirror.
//
// Writes are batched and asynchronous, so a slow or unavailable InfluxDB
// never blocks event processing.
//
// # Usage
//
//	sink, err := telemetry.Connect(cfg.Telemetry)
//	if errors.Is(err, telemetry.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer sink.Close()
//
//	sink.RecordSensor("sensor.outdoor", "temperature", 21.5)
package telemetry
