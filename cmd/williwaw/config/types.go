// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

// WilliwawConfig is the persisted CLI and service configuration,
// stored at ~/.williwaw/williwaw.yaml.
type WilliwawConfig struct {
	// Engine: execution engine settings shared by run and serve.
	Engine EngineConfig `yaml:"engine"`

	// Service: HTTP service settings for the serve command.
	Service ServiceConfig `yaml:"service" validate:"required"`

	// Logging: log destinations and verbosity.
	Logging LoggingConfig `yaml:"logging"`

	// Telemetry: trace and metric exporters.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type EngineConfig struct {
	// StoreDir holds the execute-digest cache between runs. Empty
	// selects an in-memory store that forgets digests on exit.
	// Supports ~ expansion.
	StoreDir string `yaml:"store_dir"`
}

type ServiceConfig struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"required,gte=1,lte=65535"`

	// Debug enables gin debug mode and request logging.
	Debug bool `yaml:"debug"`
}

type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Dir enables file logging when set. Supports ~ expansion.
	Dir string `yaml:"dir"`
}

type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"omitempty,oneof=otlp stdout none"`
	MetricExporter string `yaml:"metric_exporter" validate:"omitempty,oneof=prometheus stdout none"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
}

// DefaultConfig returns the config written on first run.
func DefaultConfig() WilliwawConfig {
	return WilliwawConfig{
		Engine: EngineConfig{
			StoreDir: "~/.williwaw/digests",
		},
		Service: ServiceConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			OTLPEndpoint:   "localhost:4317",
		},
	}
}
