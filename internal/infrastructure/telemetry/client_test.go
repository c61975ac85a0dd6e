package telemetry_test

import (
	"errors"
	"testing"

	"github.com/nerrad567/sbergate/internal/infrastructure/config"
	"github.com/nerrad567/sbergate/internal/infrastructure/telemetry"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := telemetry.Connect(config.TelemetryConfig{Enabled: false})
	if !errors.Is(err, telemetry.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := config.TelemetryConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1", // nothing listens here
		Token:   "token",
		Org:     "org",
		Bucket:  "sensors",
	}

	_, err := telemetry.Connect(cfg)
	if !errors.Is(err, telemetry.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}
