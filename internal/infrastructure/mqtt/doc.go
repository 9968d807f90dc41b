// Package mqtt provides MQTT client connectivity for Unify Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Unify uses MQTT two ways: local-protocol adapters (zigbee2mqtt) speak
// their vendor topic trees through this client, and Core publishes its
// own canonical device state and events under unify/ for external
// consumers.
//
//	Unify Core ↔ MQTT Broker ↔ zigbee2mqtt / external subscribers
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to a vendor topic tree
//	err = client.Subscribe("zigbee2mqtt/+", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish canonical state
//	topic := mqtt.Topics{}.CoreDeviceState("zigbee:bulb-hall")
//	client.PublishRetained(topic, []byte(`{"on":true}`))
package mqtt
