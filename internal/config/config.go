// Package config provides configuration management for the FrameSentry services.
package config

import (
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration with thread-safe access.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Server  ServerConfig  `yaml:"server"`
	Bus     BusConfig     `yaml:"bus"`
	Source  SourceConfig  `yaml:"source"`
	Motion  MotionConfig  `yaml:"motion"`
	Objects ObjectsConfig `yaml:"objects"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Cropper CropperConfig `yaml:"cropper"`
	mu      sync.RWMutex
}

// Snapshot is a read-only snapshot of the current configuration.
type Snapshot struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Bus     BusConfig     `yaml:"bus" json:"bus"`
	Source  SourceConfig  `yaml:"source" json:"source"`
	Motion  MotionConfig  `yaml:"motion" json:"motion"`
	Objects ObjectsConfig `yaml:"objects" json:"objects"`
	MQTT    MQTTConfig    `yaml:"mqtt" json:"mqtt"`
	Cropper CropperConfig `yaml:"cropper" json:"cropper"`
}

// LoggingConfig contains log level settings.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host          string `yaml:"host" json:"host"`
	Port          int    `yaml:"port" json:"port"`
	ProfilingPort int    `yaml:"profiling_port" json:"profiling_port"`
}

// BusConfig contains shared-memory frame bus settings.
type BusConfig struct {
	Name      string `yaml:"name" json:"name"`
	MaxWidth  int    `yaml:"max_width" json:"max_width"`
	MaxHeight int    `yaml:"max_height" json:"max_height"`
	Channels  int    `yaml:"channels" json:"channels"`
	Enabled   bool   `yaml:"enabled" json:"enabled"`
}

// SourceConfig selects and parameterizes the frame source.
type SourceConfig struct {
	Type   string  `yaml:"type" json:"type"` // "synthetic" or "rawfile"
	Path   string  `yaml:"path" json:"path"`
	Width  int     `yaml:"width" json:"width"`
	Height int     `yaml:"height" json:"height"`
	FPS    float64 `yaml:"fps" json:"fps"`
	Loop   bool    `yaml:"loop" json:"loop"`
}

// MotionConfig contains motion detection settings.
type MotionConfig struct {
	Enabled       bool `yaml:"enabled" json:"enabled"`
	Threshold     int  `yaml:"threshold" json:"threshold"`
	MinRegionArea int  `yaml:"min_region_area" json:"min_region_area"`
}

// ObjectsConfig contains object detection merge settings.
type ObjectsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// MQTTConfig contains motion event broker settings.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Broker   string `yaml:"broker" json:"broker"`
	ClientID string `yaml:"client_id" json:"client_id"`
	Topic    string `yaml:"topic" json:"topic"`
	QoS      int    `yaml:"qos" json:"qos"`
}

// CropperConfig contains crop consumer settings.
type CropperConfig struct {
	OutputDir    string  `yaml:"output_dir" json:"output_dir"`
	Format       string  `yaml:"format" json:"format"`
	Quality      int     `yaml:"quality" json:"quality"`
	Padding      int     `yaml:"padding" json:"padding"`
	MinSize      int     `yaml:"min_size" json:"min_size"`
	KeepLatest   bool    `yaml:"keep_latest" json:"keep_latest"`
	MaxImages    int     `yaml:"max_images" json:"max_images"`
	PollHz       float64 `yaml:"poll_hz" json:"poll_hz"`
	IoUThreshold float64 `yaml:"iou_threshold" json:"iou_threshold"`
	TrackTimeout float64 `yaml:"track_timeout" json:"track_timeout"`
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("FRAMESENTRY_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if host := os.Getenv("FRAMESENTRY_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("FRAMESENTRY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if name := os.Getenv("FRAMESENTRY_BUS_NAME"); name != "" {
		c.Bus.Name = name
	}
	if broker := os.Getenv("FRAMESENTRY_MQTT_BROKER"); broker != "" {
		c.MQTT.Broker = broker
	}
	if threshold := os.Getenv("FRAMESENTRY_MOTION_THRESHOLD"); threshold != "" {
		if t, err := strconv.Atoi(threshold); err == nil {
			c.Motion.Threshold = t
		}
	}
	if minArea := os.Getenv("FRAMESENTRY_MIN_REGION_AREA"); minArea != "" {
		if a, err := strconv.Atoi(minArea); err == nil {
			c.Motion.MinRegionArea = a
		}
	}
	if dir := os.Getenv("FRAMESENTRY_CROP_OUTPUT_DIR"); dir != "" {
		c.Cropper.OutputDir = dir
	}
}

// Update atomically updates the configuration.
func (c *Config) Update(updater func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	updater(c)
}

// Get safely retrieves a snapshot of the config without mutex.
func (c *Config) Get() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Logging: c.Logging,
		Server:  c.Server,
		Bus:     c.Bus,
		Source:  c.Source,
		Motion:  c.Motion,
		Objects: c.Objects,
		MQTT:    c.MQTT,
		Cropper: c.Cropper,
	}
}

// Save writes the current configuration to a file.
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func (c *Config) setDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.ProfilingPort <= 0 {
		c.Server.ProfilingPort = 6060
	}
	if c.Bus.Name == "" {
		c.Bus.Name = "cam0"
	}
	if c.Bus.MaxWidth <= 0 {
		c.Bus.MaxWidth = 1920
	}
	if c.Bus.MaxHeight <= 0 {
		c.Bus.MaxHeight = 1080
	}
	if c.Bus.Channels <= 0 {
		c.Bus.Channels = 3
	}
	if c.Source.Type == "" {
		c.Source.Type = "synthetic"
	}
	if c.Source.Width <= 0 {
		c.Source.Width = 640
	}
	if c.Source.Height <= 0 {
		c.Source.Height = 480
	}
	if c.Source.FPS <= 0 {
		c.Source.FPS = 15
	}
	if c.Motion.Threshold <= 0 {
		c.Motion.Threshold = 25
	}
	if c.Motion.MinRegionArea <= 0 {
		c.Motion.MinRegionArea = 500
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "framesentry"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "framesentry/motion"
	}
	if c.Cropper.OutputDir == "" {
		c.Cropper.OutputDir = "./crops"
	}
	if c.Cropper.Format == "" {
		c.Cropper.Format = "jpeg"
	}
	if c.Cropper.Quality <= 0 {
		c.Cropper.Quality = 90
	}
	if c.Cropper.Padding <= 0 {
		c.Cropper.Padding = 10
	}
	if c.Cropper.MinSize <= 0 {
		c.Cropper.MinSize = 32
	}
	if c.Cropper.MaxImages <= 0 {
		c.Cropper.MaxImages = 100
	}
	if c.Cropper.PollHz <= 0 {
		c.Cropper.PollHz = 30
	}
	if c.Cropper.IoUThreshold <= 0 {
		c.Cropper.IoUThreshold = 0.3
	}
	if c.Cropper.TrackTimeout <= 0 {
		c.Cropper.TrackTimeout = 2.0
	}
}
