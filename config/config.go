package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ble-bridge/internal/gateway"
	"ble-bridge/models"
)

// 패밀리별 기본 타임아웃
var defaultFamilyTimeouts = map[models.Family]time.Duration{
	models.FamilyRuuvi:  60 * time.Second,
	models.FamilyXiaomi: 120 * time.Second,
}

type Config struct {
	// Database
	DBEnabled  bool
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MQTT
	MQTTBroker    string
	MQTTClientID  string
	MQTTUsername  string
	MQTTPassword  string
	MQTTBaseTopic string

	// BLE
	BLEAdapter  string
	DevicesFile string

	// Pipeline
	WatchdogInterval  time.Duration
	AnalyticsInterval time.Duration
	DecimalPrecision  int
	Concurrency       int

	// Application
	HTTPAddr  string
	LogLevel  string
	LogFormat string
	Timeout   time.Duration

	Families map[models.Family]FamilyConfig
}

// FamilyConfig is one top-level entry of the devices file.
type FamilyConfig struct {
	AllowUnknown     bool           `yaml:"allow_unknown"`
	Timeout          time.Duration  `yaml:"timeout"`
	DecimalPrecision *int           `yaml:"decimal_precision"`
	Devices          []DeviceConfig `yaml:"devices"`
}

type DeviceConfig struct {
	ID      string        `yaml:"id"`
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`
	Model   string        `yaml:"model"`
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg := &Config{
		DBEnabled:  getEnvBool("DB_ENABLED", false),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "ble_bridge"),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MQTTBroker:    getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:  getEnv("MQTT_CLIENT_ID", "ble-bridge"),
		MQTTUsername:  getEnv("MQTT_USERNAME", ""),
		MQTTPassword:  getEnv("MQTT_PASSWORD", ""),
		MQTTBaseTopic: strings.TrimSuffix(getEnv("MQTT_BASE_TOPIC", "ble-bridge"), "/"),

		BLEAdapter:  getEnv("BLE_ADAPTER", "hci0"),
		DevicesFile: getEnv("DEVICES_FILE", "devices.yaml"),

		WatchdogInterval:  getEnvDuration("WATCHDOG_INTERVAL", 10*time.Second),
		AnalyticsInterval: getEnvDuration("ANALYTICS_INTERVAL", 0),
		DecimalPrecision:  getEnvInt("DECIMAL_PRECISION", 2),
		Concurrency:       getEnvInt("CONCURRENCY", 0),

		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		Timeout:   time.Duration(getEnvInt("TIMEOUT_SECONDS", 5)) * time.Second,
	}

	families, err := LoadDevices(cfg.DevicesFile)
	if err != nil {
		return nil, err
	}
	cfg.Families = families

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDevices reads the family/device file. A missing file yields no
// families, so nothing is tracked until one is provided.
func LoadDevices(path string) (map[models.Family]FamilyConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: devices file %s not found, no sensor family enabled", path)
		return map[models.Family]FamilyConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read devices file: %w", err)
	}
	return ParseDevices(data)
}

// ParseDevices decodes the YAML devices document.
func ParseDevices(data []byte) (map[models.Family]FamilyConfig, error) {
	var raw map[string]FamilyConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse devices file: %w", err)
	}
	families := make(map[models.Family]FamilyConfig, len(raw))
	for key, fc := range raw {
		family, err := models.ParseFamily(key)
		if err != nil {
			return nil, err
		}
		families[family] = fc
	}
	return families, nil
}

// Validate checks everything the pipeline relies on before it starts.
func (c *Config) Validate() error {
	var errs []error
	if c.WatchdogInterval <= 0 {
		errs = append(errs, fmt.Errorf("WATCHDOG_INTERVAL must be positive, got %s", c.WatchdogInterval))
	}
	if c.AnalyticsInterval < 0 {
		errs = append(errs, fmt.Errorf("ANALYTICS_INTERVAL must not be negative, got %s", c.AnalyticsInterval))
	}
	if c.DecimalPrecision < 0 {
		errs = append(errs, fmt.Errorf("DECIMAL_PRECISION must not be negative, got %d", c.DecimalPrecision))
	}
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("CONCURRENCY must not be negative, got %d", c.Concurrency))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("TIMEOUT_SECONDS must be positive, got %s", c.Timeout))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}

	for family, fc := range c.Families {
		errs = append(errs, fc.validate(family)...)
	}
	return errors.Join(errs...)
}

func (fc FamilyConfig) validate(family models.Family) []error {
	var errs []error
	if fc.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s: timeout must not be negative", family))
	}
	if fc.DecimalPrecision != nil && *fc.DecimalPrecision < 0 {
		errs = append(errs, fmt.Errorf("%s: decimal_precision must not be negative", family))
	}
	seen := make(map[string]bool, len(fc.Devices))
	for i, d := range fc.Devices {
		id := models.NormalizeID(d.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("%s: device #%d has no id", family, i))
			continue
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("%s: duplicate device id %s", family, id))
		}
		seen[id] = true
		if d.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s: device %s timeout must not be negative", family, id))
		}
		if d.Model != "" && !family.Supports(models.Model(d.Model)) {
			errs = append(errs, fmt.Errorf("%s: device %s declares unknown model %q", family, id, d.Model))
		}
	}
	return errs
}

// GatewayConfigs resolves family defaults into the form the gateways take.
func (c *Config) GatewayConfigs() map[models.Family]gateway.Config {
	out := make(map[models.Family]gateway.Config, len(c.Families))
	for family, fc := range c.Families {
		timeout := fc.Timeout
		if timeout == 0 {
			timeout = defaultFamilyTimeouts[family]
		}
		precision := c.DecimalPrecision
		if fc.DecimalPrecision != nil {
			precision = *fc.DecimalPrecision
		}
		devices := make([]models.Device, 0, len(fc.Devices))
		for _, d := range fc.Devices {
			devices = append(devices, models.Device{
				ID:      d.ID,
				Name:    d.Name,
				Family:  family,
				Model:   models.Model(d.Model),
				Timeout: d.Timeout,
			})
		}
		out[family] = gateway.Config{
			AllowUnknown:     fc.AllowUnknown,
			Timeout:          timeout,
			DecimalPrecision: precision,
			Devices:          devices,
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		log.Printf("Warning: invalid %s, using %d", key, defaultValue)
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		log.Printf("Warning: invalid %s, using %t", key, defaultValue)
		return defaultValue
	}
	return v
}

// getEnvDuration accepts "10s" style values or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Warning: invalid %s, using %s", key, defaultValue)
		return defaultValue
	}
	return d
}
