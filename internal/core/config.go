package core

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort            = 5000
	defaultJPEGQuality     = 90
	defaultSightingLogPath = "pothole_locations.txt"
	defaultStorageDir      = "processed"
	defaultGeocodeTimeout  = 10
	defaultDetectorTimeout = 30
	defaultMaxUploadMB     = 64
	defaultThumbnailWidth  = 320

	CounterScopeGlobal     = "global"
	CounterScopeConnection = "connection"
)

// CommandConfig represents a generic command configuration
type CommandConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:",inline"`
}

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type Detector struct {
	Endpoint            string   `yaml:"endpoint"`
	ClassNames          []string `yaml:"classNames"`
	ConfidenceThreshold float64  `yaml:"confidenceThreshold"`
	// TargetClass is the class id counted by the count endpoints
	TargetClass    int `yaml:"targetClass"`
	TimeoutSeconds int `yaml:"timeoutSeconds"`
}

type Redis struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type Counter struct {
	Backend   string `yaml:"backend"`
	Scope     string `yaml:"scope"`
	MaxFrames int    `yaml:"maxFrames"`
	Redis     Redis  `yaml:"redis"`
}

type Geocoder struct {
	Provider       string `yaml:"provider"`
	URL            string `yaml:"url"`
	UserAgent      string `yaml:"userAgent"`
	Language       string `yaml:"language"`
	APIKey         string `yaml:"apiKey"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type SightingLog struct {
	Path string `yaml:"path"`
}

type Minio struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	UseSSL          bool   `yaml:"useSSL"`
}

type Storage struct {
	Backend   string `yaml:"backend"`
	Directory string `yaml:"directory"`
	Minio     Minio  `yaml:"minio"`
}

type Ledger struct {
	Backend         string `yaml:"backend"`
	RPCURL          string `yaml:"rpcUrl"`
	ContractAddress string `yaml:"contractAddress"`
	PrivateKey      string `yaml:"privateKey"`
	ChainID         int64  `yaml:"chainId"`
	Method          string `yaml:"method"`
	WaitMined       bool   `yaml:"waitMined"`
}

type Events struct {
	Backend  string `yaml:"backend"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"clientId"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
	Retained bool   `yaml:"retained"`
}

type Video struct {
	FrameStride int `yaml:"frameStride"`
	Quality     int `yaml:"quality"`
	MaxUploadMB int `yaml:"maxUploadMB"`
}

type ServiceConfig struct {
	Port        int             `yaml:"port"`
	LogLevel    string          `yaml:"logLevel"`
	JPEGQuality int             `yaml:"jpegQuality"`
	Database    Database        `yaml:"database"`
	Detector    Detector        `yaml:"detector"`
	Counter     Counter         `yaml:"counter"`
	Geocoder    Geocoder        `yaml:"geocoder"`
	SightingLog SightingLog     `yaml:"sightingLog"`
	Storage     Storage         `yaml:"storage"`
	Ledger      Ledger          `yaml:"ledger"`
	Events      Events          `yaml:"events"`
	Video       Video           `yaml:"video"`
	Commands    []CommandConfig `yaml:"commands"`

	// ThumbnailWidth bounds the report previews of the upload page
	ThumbnailWidth int `yaml:"thumbnailWidth"`
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML, fills in defaults and validates the result
func ParseConfig(data []byte) (*ServiceConfig, error) {
	var config ServiceConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *ServiceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.JPEGQuality == 0 {
		c.JPEGQuality = defaultJPEGQuality
	}
	if c.ThumbnailWidth == 0 {
		c.ThumbnailWidth = defaultThumbnailWidth
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.ConnectionString == "" && c.Database.Type == "sqlite" {
		c.Database.ConnectionString = ":memory:"
	}
	if len(c.Detector.ClassNames) == 0 {
		c.Detector.ClassNames = []string{"pothole"}
	}
	if c.Detector.TimeoutSeconds == 0 {
		c.Detector.TimeoutSeconds = defaultDetectorTimeout
	}
	if c.Counter.Backend == "" {
		c.Counter.Backend = "memory"
	}
	if c.Counter.Scope == "" {
		c.Counter.Scope = CounterScopeGlobal
	}
	if c.Counter.Redis.Prefix == "" {
		c.Counter.Redis.Prefix = "roadwatch:counter"
	}
	if c.Geocoder.Provider == "" {
		c.Geocoder.Provider = "nominatim"
	}
	if c.Geocoder.TimeoutSeconds == 0 {
		c.Geocoder.TimeoutSeconds = defaultGeocodeTimeout
	}
	if c.SightingLog.Path == "" {
		c.SightingLog.Path = defaultSightingLogPath
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "filesystem"
	}
	if c.Storage.Directory == "" {
		c.Storage.Directory = defaultStorageDir
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "none"
	}
	if c.Events.Backend == "" {
		c.Events.Backend = "none"
	}
	if c.Video.FrameStride == 0 {
		c.Video.FrameStride = 1
	}
	if c.Video.MaxUploadMB == 0 {
		c.Video.MaxUploadMB = defaultMaxUploadMB
	}
	if c.Commands == nil {
		c.Commands = []CommandConfig{{Name: "NormalizeCommand"}}
	}
}

func (c *ServiceConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpegQuality must be between 1 and 100, got %d", c.JPEGQuality)
	}
	if c.Detector.Endpoint == "" {
		return fmt.Errorf("detector.endpoint must be set")
	}
	if c.Detector.TargetClass < 0 {
		return fmt.Errorf("detector.targetClass must not be negative")
	}
	if c.Video.FrameStride < 1 {
		return fmt.Errorf("video.frameStride must be at least 1")
	}

	choices := []struct {
		field string
		value string
		valid []string
	}{
		{"database.type", c.Database.Type, []string{"sqlite", "postgres"}},
		{"counter.backend", c.Counter.Backend, []string{"memory", "redis"}},
		{"counter.scope", c.Counter.Scope, []string{CounterScopeGlobal, CounterScopeConnection}},
		{"geocoder.provider", c.Geocoder.Provider, []string{"nominatim", "google", "none"}},
		{"storage.backend", c.Storage.Backend, []string{"filesystem", "minio"}},
		{"ledger.backend", c.Ledger.Backend, []string{"none", "ethereum"}},
		{"events.backend", c.Events.Backend, []string{"none", "mqtt"}},
	}
	for _, choice := range choices {
		if !lo.Contains(choice.valid, choice.value) {
			return fmt.Errorf("unsupported %s %q (expected one of %s)", choice.field, choice.value, strings.Join(choice.valid, ", "))
		}
	}

	if c.Counter.Backend == "redis" && c.Counter.Redis.Address == "" {
		return fmt.Errorf("counter.redis.address must be set for the redis backend")
	}
	if c.Geocoder.Provider == "google" && c.Geocoder.APIKey == "" {
		return fmt.Errorf("geocoder.apiKey must be set for the google provider")
	}

	// Validate commands
	if err := validateCommands(c.Commands); err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}
	return nil
}

// ParseLogLevel maps the configured level name to a slog level
func ParseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid logLevel %q: %w", level, err)
	}
	return l, nil
}

// validateCommands ensures all command configurations have required fields
func validateCommands(commands []CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range commands {
		// Validate name is not empty
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}

		// Validate name is unique
		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seenNames[cmd.Name] = true
	}

	return nil
}
