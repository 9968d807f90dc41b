package telemetry_test

import (
	"errors"
	"testing"

	"github.com/unify-home/unify-core/internal/infrastructure/config"
	"github.com/unify-home/unify-core/internal/infrastructure/telemetry"
)

// testConfig returns a configuration for the local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "unify-dev-token",
		Org:           "unify",
		Bucket:        "metrics",
		BatchSize:     100,
		FlushInterval: 1, // 1 second for faster test feedback
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := telemetry.Connect(cfg)
	if err == nil {
		t.Fatal("Connect() should return error when disabled")
	}
	if !errors.Is(err, telemetry.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &telemetry.Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v, want nil", err)
	}
}

func TestFlushDisconnected(t *testing.T) {
	// Flush on a zero client must be a safe no-op.
	client := &telemetry.Client{}
	client.Flush()
}

func TestRecordDisconnected(t *testing.T) {
	// Writers on a disconnected client must drop silently rather than
	// block or panic; the recorder hook runs on the command hot path.
	client := &telemetry.Client{}
	client.WriteDeviceState("hue:1", "brightness", 120)
	client.WritePoint("custom", map[string]string{"a": "b"}, map[string]interface{}{"v": 1})
}
