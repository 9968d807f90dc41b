package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/unify-home/unify-core/internal/infrastructure/config"
)

const (
	// defaultConnectTimeout bounds the initial connect.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds publish/subscribe acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce (ms) lets in-flight publishes drain on Close.
	defaultDisconnectQuiesce = 1000

	// defaultKeepAlive is the session keepalive interval.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the highest MQTT QoS level.
	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// brokerOptions translates the config section into a paho session:
// broker URL, identity, credentials, auto-reconnect with exponential
// backoff, and TLS when enabled. One session carries both zigbee2mqtt
// traffic and Core's own unify/... surface.
func brokerOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Clean session: routes are tracked client-side and replayed on
	// reconnect, so no broker-side session state is needed.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// presence is the document retained under unify/system/status. External
// consumers (dashboards, voice frontends) watch it to know whether the
// unification layer is alive.
type presence struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// presencePayload renders a presence document. Reason is set only on
// offline transitions ("graceful_shutdown" vs the will's
// "unexpected_disconnect").
func presencePayload(status, clientID, reason string) string {
	doc := presence{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return `{"status":"` + status + `"}`
	}
	return string(b)
}

// configurePresenceWill registers the Last Will so the broker flips the
// retained status to offline if Core dies without saying goodbye.
// QoS 1 and retained: late subscribers must still see the last state.
func configurePresenceWill(opts *pahomqtt.ClientOptions, clientID string) {
	opts.SetWill(
		Topics{}.SystemStatus(),
		presencePayload("offline", clientID, "unexpected_disconnect"),
		1,
		true,
	)
}
