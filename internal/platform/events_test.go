package platform

import (
	"testing"

	"github.com/unify-home/unify-core/internal/device"
)

func TestEventBusPublishSubscribe(t *testing.T) {
	bus := NewEventBus()

	var got []Event
	sub := bus.Subscribe(func(e Event) { got = append(got, e) })
	defer sub.Cancel()

	bus.Publish(Event{Type: EventStateChange, DeviceID: "hue:1", Platform: device.PlatformHue})
	bus.Publish(Event{Type: EventDeviceAdded, DeviceID: "hue:2", Platform: device.PlatformHue})

	if len(got) != 2 {
		t.Fatalf("delivered %d events, want 2", len(got))
	}
	if got[0].Type != EventStateChange || got[1].Type != EventDeviceAdded {
		t.Error("events delivered out of publish order")
	}
	if got[0].Timestamp.IsZero() {
		t.Error("zero timestamp should be stamped on publish")
	}
}

func TestEventBusCancel(t *testing.T) {
	bus := NewEventBus()

	count := 0
	sub := bus.Subscribe(func(Event) { count++ })

	bus.Publish(Event{Type: EventStateChange})
	sub.Cancel()
	sub.Cancel() // idempotent
	bus.Publish(Event{Type: EventStateChange})

	if count != 1 {
		t.Errorf("handler ran %d times, want 1", count)
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("subscriber count = %d, want 0", bus.SubscriberCount())
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()

	a, b := 0, 0
	bus.Subscribe(func(Event) { a++ })
	bus.Subscribe(func(Event) { b++ })

	bus.Publish(Event{Type: EventDeviceRemoved, DeviceID: "tuya:x"})

	if a != 1 || b != 1 {
		t.Errorf("delivery counts = %d/%d, want 1/1", a, b)
	}
}

func TestEventBusHandlerMaySubscribe(t *testing.T) {
	bus := NewEventBus()

	// A handler that subscribes during delivery must not deadlock.
	ran := false
	bus.Subscribe(func(Event) {
		bus.Subscribe(func(Event) { ran = true })
	})

	bus.Publish(Event{Type: EventStateChange})
	bus.Publish(Event{Type: EventStateChange})

	if !ran {
		t.Error("handler added during delivery should see the next event")
	}
}
