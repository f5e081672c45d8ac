package runtime

import (
	"github.com/mohammad-safakhou/newser-evidence/config"
	"github.com/mohammad-safakhou/newser-evidence/internal/telemetry"
)

// SetupMetrics returns nil when telemetry is disabled; every consumer treats a
// nil *telemetry.Metrics as a no-op.
func SetupMetrics(cfg config.TelemetryConfig) *telemetry.Metrics {
	if !cfg.Enabled {
		return nil
	}
	return telemetry.New()
}
