package mqtt

import (
	"fmt"
)

// Subscribe registers a handler for a topic pattern and tracks the
// route for replay after reconnects. Wildcards work as usual:
// "zigbee2mqtt/+" for one level, "unify/#" for a subtree.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.routeMu.Lock()
	c.routes[topic] = route{topic: topic, qos: qos, handler: handler}
	c.routeMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.guardHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		c.dropRoute(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.dropRoute(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Unsubscribe stops delivery for a topic pattern and untracks its
// route. The pattern must match the one given to Subscribe exactly.
// Messages already in flight may still arrive.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.dropRoute(topic)

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

func (c *Client) dropRoute(topic string) {
	c.routeMu.Lock()
	delete(c.routes, topic)
	c.routeMu.Unlock()
}

// SubscriptionCount returns the number of tracked routes.
func (c *Client) SubscriptionCount() int {
	c.routeMu.RLock()
	defer c.routeMu.RUnlock()
	return len(c.routes)
}

// HasSubscription reports whether an exact topic pattern is tracked.
// No wildcard matching; "zigbee2mqtt/+" and "zigbee2mqtt/lamp" are
// different keys.
func (c *Client) HasSubscription(topic string) bool {
	c.routeMu.RLock()
	defer c.routeMu.RUnlock()
	_, exists := c.routes[topic]
	return exists
}
