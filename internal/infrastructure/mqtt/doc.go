// Package mqtt provides MQTT client connectivity for SberGate.
//
// This package manages:
//   - Connection to the cloud vendor broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support and automatic
//     re-subscription after reconnect
//   - Connection health monitoring
//
// # Architecture
//
// The cloud side of the gateway speaks MQTT over a fixed per-account topic
// namespace: commands and requests arrive on {root}/down/*, device state and
// configuration leave on {root}/up/*. A single global topic outside the
// account subtree pushes the cloud HTTP API endpoint.
//
//	Hub ↔ SberGate ↔ Cloud MQTT Broker ↔ Voice assistant
//
// # Security Considerations
//
//   - The vendor broker requires TLS; its certificate chains to a private
//     CA, so verification can be skipped via config
//   - Credentials double as the account topic namespace segment
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.Cloud.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.NewTopics(cfg.Cloud.MQTT.Auth.Login)
//	err = client.Subscribe(topics.Downlink(), 0,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish(topics.UpStatus(), statusPayload, 0, false)
package mqtt
