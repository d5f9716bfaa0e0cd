package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "pitbridge.cfg.json"

// RemoteConfig holds the remote strategy websocket settings
type RemoteConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
}

// DispatcherConfig holds strategy queue settings
type DispatcherConfig struct {
	QueueSize int  `json:"queueSize" mapstructure:"queueSize"`
	Blocking  bool `json:"blocking" mapstructure:"blocking"`
}

// NavigationConfig holds pit menu navigation settings
type NavigationConfig struct {
	ConfirmTimeout time.Duration `json:"confirmTimeout" mapstructure:"confirmTimeout"`
}

// KeysConfig holds keystroke delivery settings. Bindings map action names
// (openMenu, up, down, left, right, select) to key names.
type KeysConfig struct {
	Interval time.Duration     `json:"interval" mapstructure:"interval"`
	Bindings map[string]string `json:"bindings" mapstructure:"bindings"`
}

// MonitorConfig holds status file settings. StatusFile is relative to the
// logs directory unless absolute.
type MonitorConfig struct {
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	StatusFile string        `json:"statusFile" mapstructure:"statusFile"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName    string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout   time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
	Endpoint       string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `json:"insecure" mapstructure:"insecure"`
}

// GraylogConfig holds GELF log shipping settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// InfluxConfig holds outcome metrics settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// GreptimeConfig holds the GreptimeDB outcome table settings
type GreptimeConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	Database string `json:"database" mapstructure:"database"`
	Table    string `json:"table" mapstructure:"table"`
}

// URL returns the server URL built from protocol, host and port.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// DefaultBindings are the keys a stock simulator install uses for pit menu
// navigation.
var DefaultBindings = map[string]string{
	"openMenu": "p",
	"up":       "up",
	"down":     "down",
	"left":     "left",
	"right":    "right",
	"select":   "enter",
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. A file that does
// not match the schema is rejected as a whole and only defaults apply.
func Load(configDir string) error {
	setDefaults()

	data, err := os.ReadFile(filepath.Join(configDir, FileName))
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if err := Validate(data); err != nil {
		return fmt.Errorf("invalid config file: %w", err)
	}

	viper.SetConfigType("json")
	if err := viper.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./pitlogs")

	viper.SetDefault("remote.enabled", false)
	viper.SetDefault("remote.url", "ws://localhost:5000/strategy")
	viper.SetDefault("remote.secret", "")

	viper.SetDefault("telemetry.path", "-")

	viper.SetDefault("dispatcher.queueSize", 16)
	viper.SetDefault("dispatcher.blocking", false)

	viper.SetDefault("navigation.confirmTimeout", "500ms")

	viper.SetDefault("keys.interval", "50ms")
	viper.SetDefault("keys.bindings", DefaultBindings)

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "1s")
	viper.SetDefault("monitor.statusFile", "status.json")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "pitbridge")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "30s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("journal.enabled", false)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "pitwall")
	viper.SetDefault("influx.bucket", "pit_strategy")

	viper.SetDefault("greptime.enabled", false)
	viper.SetDefault("greptime.host", "localhost")
	viper.SetDefault("greptime.port", 4001)
	viper.SetDefault("greptime.database", "public")
	viper.SetDefault("greptime.table", "pit_strategy_outcomes")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetRemoteConfig returns the remote strategy client configuration.
func GetRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Enabled: viper.GetBool("remote.enabled"),
		URL:     viper.GetString("remote.url"),
		Secret:  viper.GetString("remote.secret"),
	}
}

// GetDispatcherConfig returns the strategy queue configuration.
func GetDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize: viper.GetInt("dispatcher.queueSize"),
		Blocking:  viper.GetBool("dispatcher.blocking"),
	}
}

// GetNavigationConfig returns the pit menu navigation configuration.
func GetNavigationConfig() NavigationConfig {
	return NavigationConfig{
		ConfirmTimeout: viper.GetDuration("navigation.confirmTimeout"),
	}
}

// GetMonitorConfig returns the status file configuration.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}

// GetKeysConfig returns the keystroke delivery configuration. Bindings not
// set in the file keep their defaults. Binding names are lowercase.
func GetKeysConfig() KeysConfig {
	// viper lowercases map keys read from the file, so both sides are
	// normalised before merging
	bindings := make(map[string]string, len(DefaultBindings))
	for k, v := range DefaultBindings {
		bindings[strings.ToLower(k)] = v
	}
	for k, v := range viper.GetStringMapString("keys.bindings") {
		bindings[strings.ToLower(k)] = v
	}

	return KeysConfig{
		Interval: viper.GetDuration("keys.interval"),
		Bindings: bindings,
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetGraylogConfig returns the Graylog configuration.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetInfluxConfig returns the InfluxDB configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetGreptimeConfig returns the GreptimeDB configuration.
func GetGreptimeConfig() GreptimeConfig {
	return GreptimeConfig{
		Enabled:  viper.GetBool("greptime.enabled"),
		Host:     viper.GetString("greptime.host"),
		Port:     viper.GetInt("greptime.port"),
		Database: viper.GetString("greptime.database"),
		Table:    viper.GetString("greptime.table"),
	}
}
