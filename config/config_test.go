package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ble-bridge/models"
)

const devicesYAML = `
ruuvitag:
  allow_unknown: true
  devices:
    - id: cb:b8:33:4c:88:4f
      name: Living room
      timeout: 90s
xiaomi:
  timeout: 5m
  decimal_precision: 1
  devices:
    - id: C4:7C:8D:44:55:66
      name: Ficus
      model: HHCCJCY01
`

func validConfig() *Config {
	return &Config{
		WatchdogInterval: 10 * time.Second,
		DecimalPrecision: 2,
		LogFormat:        "json",
		Timeout:          5 * time.Second,
	}
}

func TestParseDevices(t *testing.T) {
	families, err := ParseDevices([]byte(devicesYAML))
	require.NoError(t, err)
	require.Len(t, families, 2)

	ruuvi := families[models.FamilyRuuvi]
	assert.True(t, ruuvi.AllowUnknown)
	require.Len(t, ruuvi.Devices, 1)
	assert.Equal(t, 90*time.Second, ruuvi.Devices[0].Timeout)

	xiaomi := families[models.FamilyXiaomi]
	assert.Equal(t, 5*time.Minute, xiaomi.Timeout)
	require.NotNil(t, xiaomi.DecimalPrecision)
	assert.Equal(t, 1, *xiaomi.DecimalPrecision)
	assert.Equal(t, "HHCCJCY01", xiaomi.Devices[0].Model)
}

func TestParseDevicesUnknownFamily(t *testing.T) {
	_, err := ParseDevices([]byte("govee:\n  allow_unknown: true\n"))
	assert.ErrorContains(t, err, "govee")
}

func TestLoadDevicesMissingFile(t *testing.T) {
	families, err := LoadDevices(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestLoadDevicesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(devicesYAML), 0o600))

	families, err := LoadDevices(path)
	require.NoError(t, err)
	assert.Len(t, families, 2)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "watchdog interval",
			mutate:  func(c *Config) { c.WatchdogInterval = 0 },
			wantErr: "WATCHDOG_INTERVAL",
		},
		{
			name:    "log format",
			mutate:  func(c *Config) { c.LogFormat = "xml" },
			wantErr: "LOG_FORMAT",
		},
		{
			name:    "negative concurrency",
			mutate:  func(c *Config) { c.Concurrency = -1 },
			wantErr: "CONCURRENCY",
		},
		{
			name: "duplicate id",
			mutate: func(c *Config) {
				c.Families = map[models.Family]FamilyConfig{
					models.FamilyRuuvi: {Devices: []DeviceConfig{{ID: "aa:bb"}, {ID: "AA:BB"}}},
				}
			},
			wantErr: "duplicate device id AA:BB",
		},
		{
			name: "unknown model",
			mutate: func(c *Config) {
				c.Families = map[models.Family]FamilyConfig{
					models.FamilyXiaomi: {Devices: []DeviceConfig{{ID: "aa:bb", Model: "RuuviTag"}}},
				}
			},
			wantErr: "unknown model",
		},
		{
			name: "missing id",
			mutate: func(c *Config) {
				c.Families = map[models.Family]FamilyConfig{
					models.FamilyRuuvi: {Devices: []DeviceConfig{{Name: "nameless"}}},
				}
			},
			wantErr: "has no id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestGatewayConfigs(t *testing.T) {
	families, err := ParseDevices([]byte(devicesYAML))
	require.NoError(t, err)
	cfg := validConfig()
	cfg.Families = families

	gws := cfg.GatewayConfigs()

	ruuvi := gws[models.FamilyRuuvi]
	assert.True(t, ruuvi.AllowUnknown)
	assert.Equal(t, 60*time.Second, ruuvi.Timeout)
	assert.Equal(t, 2, ruuvi.DecimalPrecision)
	require.Len(t, ruuvi.Devices, 1)
	assert.Equal(t, models.FamilyRuuvi, ruuvi.Devices[0].Family)
	assert.Equal(t, 90*time.Second, ruuvi.Devices[0].Timeout)

	xiaomi := gws[models.FamilyXiaomi]
	assert.False(t, xiaomi.AllowUnknown)
	assert.Equal(t, 5*time.Minute, xiaomi.Timeout)
	assert.Equal(t, 1, xiaomi.DecimalPrecision)
	assert.Equal(t, models.ModelHHCCJCY01, xiaomi.Devices[0].Model)
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("BB_TEST_INTERVAL", "15")
	assert.Equal(t, 15*time.Second, getEnvDuration("BB_TEST_INTERVAL", time.Second))

	t.Setenv("BB_TEST_INTERVAL", "250ms")
	assert.Equal(t, 250*time.Millisecond, getEnvDuration("BB_TEST_INTERVAL", time.Second))

	t.Setenv("BB_TEST_INTERVAL", "soon")
	assert.Equal(t, time.Second, getEnvDuration("BB_TEST_INTERVAL", time.Second))
}
