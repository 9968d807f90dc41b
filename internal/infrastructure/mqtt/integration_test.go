//go:build integration

package mqtt

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/unify-home/unify-core/internal/infrastructure/config"
)

// Integration tests against a live broker at 127.0.0.1:1883, covering
// the two topic trees the process actually uses: Core's own unify/...
// surface and the zigbee2mqtt bridge protocol.
//
// Run with:
//
//	go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func mustConnect(t *testing.T, clientID string) *Client {
	t.Helper()
	client, err := Connect(integrationConfig(clientID))
	if err != nil {
		t.Fatalf("Connect(%s) error = %v", clientID, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// TestIntegration_CanonicalStateFanout publishes a canonical device
// state the way the daemon mirrors adapter events, and verifies a
// consumer watching unify/core/device/+/state receives it. Because
// state topics are retained, a late subscriber must see it too.
func TestIntegration_CanonicalStateFanout(t *testing.T) {
	core := mustConnect(t, "unify-int-core")
	consumer := mustConnect(t, "unify-int-consumer")

	type stateMsg struct {
		topic   string
		payload []byte
	}
	received := make(chan stateMsg, 4)

	err := consumer.Subscribe(Topics{}.AllCoreDeviceStates(), 1, func(topic string, payload []byte) error {
		received <- stateMsg{topic, payload}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	deviceID := fmt.Sprintf("hue:int-%d", time.Now().UnixNano())
	state := []byte(`{"device_id":"` + deviceID + `","state":{"on":true,"brightness":254}}`)
	if err := core.PublishRetained(Topics{}.CoreDeviceState(deviceID), state); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}

	select {
	case msg := <-received:
		if want := Topics{}.CoreDeviceState(deviceID); msg.topic != want {
			t.Errorf("topic = %q, want %q", msg.topic, want)
		}
		var doc map[string]any
		if err := json.Unmarshal(msg.payload, &doc); err != nil {
			t.Fatalf("payload is not JSON: %v", err)
		}
		if doc["device_id"] != deviceID {
			t.Errorf("device_id = %v, want %s", doc["device_id"], deviceID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for canonical state")
	}

	// Retained copy for a subscriber that arrives after the fact.
	late := mustConnect(t, "unify-int-late")
	lateGot := make(chan []byte, 1)
	err = late.Subscribe(Topics{}.CoreDeviceState(deviceID), 1, func(_ string, payload []byte) error {
		select {
		case lateGot <- payload:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("late Subscribe() error = %v", err)
	}

	select {
	case payload := <-lateGot:
		if string(payload) != string(state) {
			t.Errorf("retained payload = %s, want %s", payload, state)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("late subscriber never received the retained state")
	}
}

// TestIntegration_ZigbeeCommandRoundTrip plays both sides of the
// zigbee2mqtt protocol: a fake bridge answers <friendly>/set publishes
// with a state report on <base>/<friendly>, which is exactly what the
// zigbee adapter waits for to settle a command.
func TestIntegration_ZigbeeCommandRoundTrip(t *testing.T) {
	friendly := fmt.Sprintf("int_lamp_%d", time.Now().UnixNano())
	setTopic := "zigbee2mqtt/" + friendly + "/set"
	stateTopic := "zigbee2mqtt/" + friendly

	bridge := mustConnect(t, "unify-int-bridge")
	core := mustConnect(t, "unify-int-adapter")

	// The fake bridge applies the command and reports the new state.
	err := bridge.Subscribe(setTopic, 1, func(_ string, payload []byte) error {
		var cmd map[string]any
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return err
		}
		report, err := json.Marshal(map[string]any{
			"state":       cmd["state"],
			"linkquality": 120,
		})
		if err != nil {
			return err
		}
		return bridge.Publish(stateTopic, report, 1, false)
	})
	if err != nil {
		t.Fatalf("bridge Subscribe() error = %v", err)
	}

	reports := make(chan []byte, 1)
	err = core.Subscribe(stateTopic, 1, func(_ string, payload []byte) error {
		select {
		case reports <- payload:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("core Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := core.Publish(setTopic, []byte(`{"state":"ON"}`), 1, false); err != nil {
		t.Fatalf("Publish(set) error = %v", err)
	}

	select {
	case payload := <-reports:
		var state map[string]any
		if err := json.Unmarshal(payload, &state); err != nil {
			t.Fatalf("state report is not JSON: %v", err)
		}
		if state["state"] != "ON" {
			t.Errorf("state = %v, want ON", state["state"])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for the bridge's state report")
	}
}

// TestIntegration_PresenceRetained verifies the online status document
// is retained under unify/system/status, so monitors that connect later
// still learn the unification layer is up.
func TestIntegration_PresenceRetained(t *testing.T) {
	clientID := fmt.Sprintf("unify-int-presence-%d", time.Now().UnixNano())

	core, err := Connect(integrationConfig(clientID))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer core.Close()
	time.Sleep(200 * time.Millisecond)

	watcher := mustConnect(t, "unify-int-watcher")
	statuses := make(chan []byte, 4)
	err = watcher.Subscribe(Topics{}.SystemStatus(), 1, func(_ string, payload []byte) error {
		statuses <- payload
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case payload := <-statuses:
			var doc presence
			if err := json.Unmarshal(payload, &doc); err != nil {
				t.Fatalf("status payload is not JSON: %v", err)
			}
			// Other test clients publish their own presence; wait for ours.
			if doc.ClientID != clientID {
				continue
			}
			if doc.Status != "online" {
				t.Errorf("status = %q, want online", doc.Status)
			}
			return
		case <-deadline:
			t.Fatal("never saw the retained presence document")
		}
	}
}

// TestIntegration_RouteTracking verifies the route table the client
// replays after a reconnect: the adapter's bridge subscriptions and
// Core's canonical patterns are tracked and dropped exactly once.
func TestIntegration_RouteTracking(t *testing.T) {
	client := mustConnect(t, "unify-int-routes")

	patterns := []string{
		"zigbee2mqtt/bridge/devices",
		"zigbee2mqtt/+",
		Topics{}.AllCoreDeviceStates(),
	}
	handler := func(string, []byte) error { return nil }

	for _, p := range patterns {
		if err := client.Subscribe(p, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", p, err)
		}
	}

	if got := client.SubscriptionCount(); got != len(patterns) {
		t.Errorf("SubscriptionCount() = %d, want %d", got, len(patterns))
	}
	for _, p := range patterns {
		if !client.HasSubscription(p) {
			t.Errorf("HasSubscription(%s) = false", p)
		}
	}

	if err := client.Unsubscribe("zigbee2mqtt/+"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription("zigbee2mqtt/+") {
		t.Error("route still tracked after unsubscribe")
	}
	if got := client.SubscriptionCount(); got != len(patterns)-1 {
		t.Errorf("SubscriptionCount() after unsubscribe = %d, want %d", got, len(patterns)-1)
	}
}
