package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Broker transports understood by the robot bridge.
const (
	TransportRosbridge = "rosbridge"
	TransportMQTT      = "mqtt"
)

// Config is the root configuration structure for the tour guide controller.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	Broker    BrokerConfig    `yaml:"broker"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Audio     AudioConfig     `yaml:"audio"`
	Tour      TourConfig      `yaml:"tour"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig identifies the museum installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// BrokerConfig describes how the controller reaches the robot's message broker.
type BrokerConfig struct {
	// Transport selects the wire protocol: "rosbridge" (websocket) or "mqtt".
	Transport string `yaml:"transport"`

	// URL is the rosbridge websocket endpoint, e.g. ws://robot.local:9090.
	URL string `yaml:"url"`

	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	VerifyTimeout        time.Duration `yaml:"verify_timeout"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`

	Auth BrokerAuthConfig `yaml:"auth"`
}

// BrokerAuthConfig holds the credential fields sent in the broker auth message.
type BrokerAuthConfig struct {
	MAC    string `yaml:"mac"`
	Client string `yaml:"client"`
	Dest   string `yaml:"dest"`
	Rand   string `yaml:"rand"`
	Level  string `yaml:"level"`
	T      int64  `yaml:"t"`
	End    int64  `yaml:"end"`
}

// MQTTConfig contains MQTT broker connection settings.
// Only used when broker.transport is "mqtt".
type MQTTConfig struct {
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// AudioConfig controls how tour narration files are streamed to the robot.
type AudioConfig struct {
	// Dir is the root directory POI audio references are resolved against.
	Dir          string        `yaml:"dir"`
	ChunkSize    int           `yaml:"chunk_size"`
	ChunkDelayMS int           `yaml:"chunk_delay_ms"`
	AckTimeout   time.Duration `yaml:"ack_timeout"`
}

// TourConfig contains tour start settings.
type TourConfig struct {
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains dashboard WebSocket settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings. TTLs are in minutes.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TOURGUIDE_SECTION_KEY
// For example: TOURGUIDE_BROKER_URL, TOURGUIDE_AUDIO_DIR
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "museum-001",
			Name: "Museum",
		},
		Database: DatabaseConfig{
			Path:        "./data/tourguide.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Broker: BrokerConfig{
			Transport:            TransportRosbridge,
			URL:                  "ws://localhost:9090",
			ConnectTimeout:       5 * time.Second,
			VerifyTimeout:        5 * time.Second,
			ReconnectInterval:    5 * time.Second,
			MaxReconnectAttempts: 10,
			Auth: BrokerAuthConfig{
				Client: "tourguide-core",
				Dest:   "robot",
				Level:  "admin",
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tourguide-core",
			},
			QoS:         1,
			TopicPrefix: "tourguide/robot",
		},
		Audio: AudioConfig{
			Dir:          "./data/audio",
			ChunkSize:    16384,
			ChunkDelayMS: 5,
			AckTimeout:   5 * time.Second,
		},
		Tour: TourConfig{
			ConfirmTimeout: 10 * time.Second,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "tourguide",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TOURGUIDE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Broker
	if v := os.Getenv("TOURGUIDE_BROKER_URL"); v != "" {
		cfg.Broker.URL = v
	}
	if v := os.Getenv("TOURGUIDE_BROKER_MAC"); v != "" {
		cfg.Broker.Auth.MAC = v
	}

	// MQTT
	if v := os.Getenv("TOURGUIDE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TOURGUIDE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TOURGUIDE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("TOURGUIDE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("TOURGUIDE_AUDIO_DIR"); v != "" {
		cfg.Audio.Dir = v
	}
	if v := os.Getenv("TOURGUIDE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// JWT secret: always override in production
	if v := os.Getenv("TOURGUIDE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	errs = append(errs, c.Broker.validate()...)

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.Broker.Transport == TransportMQTT && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when broker.transport is mqtt")
	}

	if c.Audio.ChunkSize <= 0 {
		errs = append(errs, "audio.chunk_size must be positive")
	}
	if c.Audio.ChunkDelayMS < 0 {
		errs = append(errs, "audio.chunk_delay_ms must not be negative")
	}
	if c.Audio.AckTimeout <= 0 {
		errs = append(errs, "audio.ack_timeout must be positive")
	}
	if c.Tour.ConfirmTimeout <= 0 {
		errs = append(errs, "tour.confirm_timeout must be positive")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Anyone holding the secret can mint tokens that drive the robot.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set TOURGUIDE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (b BrokerConfig) validate() []string {
	var errs []string

	switch b.Transport {
	case TransportRosbridge:
		u, err := url.Parse(b.URL)
		if b.URL == "" || err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, "broker.url must be a ws:// or wss:// URL")
		}
	case TransportMQTT:
	default:
		errs = append(errs, fmt.Sprintf("broker.transport must be %q or %q", TransportRosbridge, TransportMQTT))
	}

	if b.ConnectTimeout <= 0 {
		errs = append(errs, "broker.connect_timeout must be positive")
	}
	if b.VerifyTimeout <= 0 {
		errs = append(errs, "broker.verify_timeout must be positive")
	}
	if b.ReconnectInterval <= 0 {
		errs = append(errs, "broker.reconnect_interval must be positive")
	}
	if b.MaxReconnectAttempts < 1 {
		errs = append(errs, "broker.max_reconnect_attempts must be at least 1")
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// ChunkDelay returns the pause between audio chunks as a Duration.
func (c *Config) ChunkDelay() time.Duration {
	return time.Duration(c.Audio.ChunkDelayMS) * time.Millisecond
}

// MQTTBrokerURL returns the paho-style broker URL for the configured MQTT broker.
func (c *Config) MQTTBrokerURL() string {
	scheme := "tcp"
	if c.MQTT.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.MQTT.Broker.Host, c.MQTT.Broker.Port)
}
