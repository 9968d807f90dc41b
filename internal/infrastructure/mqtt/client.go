package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/unify-home/unify-core/internal/infrastructure/config"
)

// Client is the single broker session shared by the whole process. The
// zigbee adapter talks to zigbee2mqtt through it, and Core mirrors
// canonical device state onto the unify/... tree through it.
//
// All methods are safe for concurrent use. Routes (topic -> handler)
// are tracked client-side and replayed after every reconnect, so
// adapter subscriptions survive broker restarts.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	// routes holds the live subscriptions, keyed by topic pattern.
	routes  map[string]route
	routeMu sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the slice of logging.Logger this package needs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// route is one tracked subscription, kept so it can be replayed on
// reconnect.
type route struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one message. Paho invokes handlers on its own
// goroutines; a handler that blocks stalls delivery on its topic, so
// anything slow should hand off. A returned error is logged, never
// redelivered.
type MessageHandler func(topic string, payload []byte) error

// Connect opens the broker session: dial with timeout, register the
// presence will, then retain an online status under
// unify/system/status. Reconnection afterwards is automatic; routes
// and presence are restored by the connect handler.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := brokerOptions(cfg)
	configurePresenceWill(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:     cfg,
		options: opts,
		routes:  make(map[string]route),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The paho connect handler runs asynchronously; mark connected here
	// so IsConnected is true the moment Connect returns.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.replayRoutes()
	c.announcePresence()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// replayRoutes re-subscribes every tracked route after a reconnect.
// Failures here are swallowed; the next reconnect tries again.
func (c *Client) replayRoutes() {
	c.routeMu.RLock()
	defer c.routeMu.RUnlock()

	for _, r := range c.routes {
		c.client.Subscribe(r.topic, r.qos, c.guardHandler(r.handler))
	}
}

// announcePresence retains the online status document.
func (c *Client) announcePresence() {
	c.client.Publish(
		Topics{}.SystemStatus(),
		byte(c.cfg.QoS),
		true,
		presencePayload("online", c.cfg.Broker.ClientID, ""),
	)
}

// Close retains a graceful offline status (distinct from the will's
// crash reason), drains pending publishes, and drops the session.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(
			Topics{}.SystemStatus(),
			byte(c.cfg.QoS),
			true,
			presencePayload("offline", c.cfg.Broker.ClientID, "graceful_shutdown"),
		)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck reports whether the session is up. Feeds the aggregate
// health endpoint alongside the platform adapters.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known session state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnect registers a callback invoked on initial connect and
// every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect registers a callback invoked when the session drops,
// with the reason.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger routes handler errors and recovered panics somewhere
// visible. Without it they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// guardHandler adapts a MessageHandler to paho's signature with panic
// recovery. A panicking vendor-payload parser must not take down the
// shared session.
func (c *Client) guardHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("message handler panicked",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("message handler failed",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
