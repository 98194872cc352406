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

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, cfg WilliwawConfig) string {
	t.Helper()
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "williwaw.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestLoadFromRoundTripsDefaults(t *testing.T) {
	path := writeConfig(t, DefaultConfig())

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestLoadFromRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*WilliwawConfig)
	}{
		{"bad port", func(c *WilliwawConfig) { c.Service.Port = 70000 }},
		{"missing host", func(c *WilliwawConfig) { c.Service.Host = "" }},
		{"bad log level", func(c *WilliwawConfig) { c.Logging.Level = "loud" }},
		{"bad exporter", func(c *WilliwawConfig) { c.Telemetry.MetricExporter = "graphite" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			_, err := LoadFrom(writeConfig(t, cfg))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "williwaw.yaml")
	require.NoError(t, os.WriteFile(path, []byte("service: ["), 0644))
	_, err := LoadFrom(path)
	assert.Error(t, err)
}
