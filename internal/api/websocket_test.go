package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/unify-home/unify-core/internal/device"
	"github.com/unify-home/unify-core/internal/infrastructure/config"
	"github.com/unify-home/unify-core/internal/infrastructure/logging"
	"github.com/unify-home/unify-core/internal/platform"
)

func newTestHub() *Hub {
	return NewHub(config.WebSocketConfig{MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 60}, logging.Default())
}

func newHubClient(hub *Hub, channels ...string) *WSClient {
	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 4),
		subscriptions: make(map[string]struct{}),
	}
	for _, ch := range channels {
		client.subscriptions[ch] = struct{}{}
	}
	hub.Register(client)
	return client
}

func TestHubBroadcastStateChange(t *testing.T) {
	hub := newTestHub()
	client := newHubClient(hub, ChannelStateChanged)

	hub.Broadcast(platform.Event{
		Type:      platform.EventStateChange,
		DeviceID:  "hue:1",
		Platform:  device.PlatformHue,
		State:     device.State{"on": true, "brightness": float64(200)},
		Timestamp: time.Now().UTC(),
	})

	select {
	case data := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("broadcast is not JSON: %v", err)
		}
		if msg.Type != WSTypeEvent || msg.EventType != ChannelStateChanged {
			t.Errorf("envelope = %s/%s, want %s/%s", msg.Type, msg.EventType, WSTypeEvent, ChannelStateChanged)
		}

		payload, err := json.Marshal(msg.Payload)
		if err != nil {
			t.Fatalf("re-marshal payload: %v", err)
		}
		var evt wsEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			t.Fatalf("payload does not decode as a device event: %v", err)
		}
		if evt.DeviceID != "hue:1" || evt.Platform != device.PlatformHue {
			t.Errorf("event = %+v", evt)
		}
		if evt.State["on"] != true {
			t.Errorf("state = %v, want on=true", evt.State)
		}
	default:
		t.Fatal("subscribed client received nothing")
	}
}

func TestHubBroadcastChannelRouting(t *testing.T) {
	hub := newTestHub()
	stateWatcher := newHubClient(hub, ChannelStateChanged)
	addWatcher := newHubClient(hub, ChannelDeviceAdded)

	hub.Broadcast(platform.Event{
		Type:      platform.EventDeviceAdded,
		DeviceID:  "zigbee:hall_light",
		Platform:  device.PlatformZigbee,
		Device:    &device.Device{ID: "zigbee:hall_light", Name: "Hall Light"},
		Timestamp: time.Now().UTC(),
	})

	select {
	case <-stateWatcher.send:
		t.Error("state watcher received a device_added event")
	default:
	}

	select {
	case data := <-addWatcher.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("broadcast is not JSON: %v", err)
		}
		if msg.EventType != ChannelDeviceAdded {
			t.Errorf("event_type = %q, want %q", msg.EventType, ChannelDeviceAdded)
		}
	default:
		t.Fatal("add watcher received nothing")
	}
}

func TestHubBroadcastUnknownEventType(t *testing.T) {
	hub := newTestHub()
	client := newHubClient(hub, ChannelStateChanged, ChannelDeviceAdded, ChannelDeviceRemoved)

	hub.Broadcast(platform.Event{Type: "vendor_quirk", DeviceID: "hue:1"})

	select {
	case data := <-client.send:
		t.Errorf("unknown event type was broadcast: %s", data)
	default:
	}
}
