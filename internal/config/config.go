// Package config loads the daemon configuration from YAML with ADZANTUNE_*
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
)

// Environments.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Config represents the application configuration
type Config struct {
	Environment  string             `yaml:"environment"`
	Log          LogConfig          `yaml:"log"`
	Storage      StorageConfig      `yaml:"storage"`
	Library      LibraryConfig      `yaml:"library"`
	Audio        AudioConfig        `yaml:"audio"`
	Remote       RemoteConfig       `yaml:"remote"`
	Schedule     ScheduleConfig     `yaml:"schedule"`
	Announcement AnnouncementConfig `yaml:"announcement"`
	Ads          AdsConfig          `yaml:"ads"`
	Interruption InterruptionConfig `yaml:"interruption"`
	Notify       NotifyConfig       `yaml:"notify"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// LogConfig represents logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig selects where the played ledger, playback memory and
// credentials live.
type StorageConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db"`
}

// LibraryConfig holds the base directories local identifiers resolve against.
type LibraryConfig struct {
	MusicDir string `yaml:"music_dir"`
	AdsDir   string `yaml:"ads_dir"`
}

// AudioConfig represents local output settings
type AudioConfig struct {
	SampleRate  int     `yaml:"sample_rate"`
	BufferMs    int     `yaml:"buffer_ms"`
	LocalVolume float64 `yaml:"local_volume"`
}

// RemoteConfig represents the streaming session settings
type RemoteConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret,omitempty"`
	RefreshToken string        `yaml:"refresh_token,omitempty"`
	DeviceID     string        `yaml:"device_id,omitempty"`
	DeviceName   string        `yaml:"device_name,omitempty"`
	APIBaseURL   string        `yaml:"api_base_url,omitempty"`
	TokenURL     string        `yaml:"token_url,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ScheduleConfig represents the prayer schedule source
type ScheduleConfig struct {
	LocationID string `yaml:"location_id"`
	APIBaseURL string `yaml:"api_base_url"`
	Timezone   string `yaml:"timezone"`
}

// AnnouncementConfig represents adzan and iqomah settings
type AnnouncementConfig struct {
	Enabled      bool          `yaml:"enabled"`
	AudioPath    string        `yaml:"audio_path"`
	Volume       float64       `yaml:"volume"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Tolerance    time.Duration `yaml:"tolerance"`
	IqomahDelay  time.Duration `yaml:"iqomah_delay"`
}

// AdsConfig represents advertisement settings
type AdsConfig struct {
	Volume float64 `yaml:"volume"`
}

// InterruptionConfig tunes how interruptions hand the speaker back.
type InterruptionConfig struct {
	// ResumeOnDismiss resumes normal playback when an announcement is
	// dismissed mid-clip. Off by default: a dismissed adzan leaves silence.
	ResumeOnDismiss bool `yaml:"resume_on_dismiss"`
}

// NotifyConfig represents notification sinks
type NotifyConfig struct {
	Desktop bool `yaml:"desktop"`
}

// MetricsConfig represents the Prometheus listener
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Environment: EnvProduction,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Backend:   StorageMemory,
			RedisAddr: "localhost:6379",
		},
		Audio: AudioConfig{
			SampleRate:  44100,
			BufferMs:    100,
			LocalVolume: 0.8,
		},
		Remote: RemoteConfig{
			PollInterval: 5 * time.Second,
		},
		Schedule: ScheduleConfig{
			APIBaseURL: "https://api.myquran.com/v3",
			Timezone:   "Asia/Jakarta",
		},
		Announcement: AnnouncementConfig{
			Enabled:      true,
			Volume:       1.0,
			PollInterval: time.Second,
			Tolerance:    60 * time.Second,
			IqomahDelay:  10 * time.Minute,
		},
		Ads: AdsConfig{
			Volume: 0.5,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from ADZANTUNE_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup("ADZANTUNE_" + key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup("ADZANTUNE_" + key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("ENV", &c.Environment)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("REDIS_ADDR", &c.Storage.RedisAddr)
	str("REDIS_PASSWORD", &c.Storage.RedisPassword)
	if v, ok := lookup("ADZANTUNE_REDIS_DB"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Storage.RedisDB = n
		}
	}
	str("MUSIC_DIR", &c.Library.MusicDir)
	str("ADS_DIR", &c.Library.AdsDir)
	boolean("REMOTE_ENABLED", &c.Remote.Enabled)
	str("SPOTIFY_CLIENT_ID", &c.Remote.ClientID)
	str("SPOTIFY_CLIENT_SECRET", &c.Remote.ClientSecret)
	str("SPOTIFY_REFRESH_TOKEN", &c.Remote.RefreshToken)
	str("SPOTIFY_DEVICE_ID", &c.Remote.DeviceID)
	str("LOCATION_ID", &c.Schedule.LocationID)
	str("TIMEZONE", &c.Schedule.Timezone)
	str("ADZAN_AUDIO", &c.Announcement.AudioPath)
	str("METRICS_LISTEN", &c.Metrics.Listen)
}

// IsDevelopment reports whether the development environment is selected.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, EnvDevelopment)
}

// Location returns the configured schedule timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Schedule.Timezone)
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Environment) {
	case EnvProduction, EnvDevelopment:
	default:
		return domain.NewValidationError("environment", c.Environment, "must be production or development")
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageRedis:
		if c.Storage.RedisAddr == "" {
			return domain.NewValidationError("storage.redis_addr", c.Storage.RedisAddr, "required for redis backend")
		}
	default:
		return domain.NewValidationError("storage.backend", c.Storage.Backend, "must be memory or redis")
	}

	if c.Audio.SampleRate <= 0 {
		return domain.NewValidationError("audio.sample_rate", c.Audio.SampleRate, "must be positive")
	}
	for field, v := range map[string]float64{
		"audio.local_volume":  c.Audio.LocalVolume,
		"announcement.volume": c.Announcement.Volume,
		"ads.volume":          c.Ads.Volume,
	} {
		if v < 0 || v > 1 {
			return domain.NewValidationError(field, v, "must be between 0.0 and 1.0")
		}
	}

	if c.Announcement.PollInterval <= 0 {
		return domain.NewValidationError("announcement.poll_interval", c.Announcement.PollInterval, "must be positive")
	}
	if c.Announcement.Tolerance <= 0 {
		return domain.NewValidationError("announcement.tolerance", c.Announcement.Tolerance, "must be positive")
	}
	if c.Announcement.IqomahDelay < 0 {
		return domain.NewValidationError("announcement.iqomah_delay", c.Announcement.IqomahDelay, "must not be negative")
	}

	if c.Remote.Enabled {
		if c.Remote.ClientID == "" {
			return domain.NewValidationError("remote.client_id", "", "required when remote is enabled")
		}
		if c.Remote.PollInterval <= 0 {
			return domain.NewValidationError("remote.poll_interval", c.Remote.PollInterval, "must be positive")
		}
	}

	if _, err := c.Location(); err != nil {
		return domain.NewValidationError("schedule.timezone", c.Schedule.Timezone, err.Error())
	}

	return nil
}
