package telemetry

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(cfg *Config) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("telemetry component is disabled")
	}
	cfg.applyDefaults()
	switch cfg.Exporter {
	case ExporterStdout, ExporterNone:
	case ExporterOTLP:
		if cfg.OTLP == nil || cfg.OTLP.Endpoint == "" {
			return nil, fmt.Errorf("otlp exporter selected but otlp.endpoint empty")
		}
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("telemetry service_name must be set")
	}
	return NewTelemetryComponent(cfg), nil
}
