package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. FIELDMIC_SERVICE_BASE_URL.
const EnvPrefix = "FIELDMIC"

// Config stores runtime configuration.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service" yaml:"service"`
	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Sampler  SamplerConfig  `mapstructure:"sampler" yaml:"sampler"`
	Playback PlaybackConfig `mapstructure:"playback" yaml:"playback"`
	Rules    RulesConfig    `mapstructure:"rules" yaml:"rules"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

type ServiceConfig struct {
	BaseURL          string        `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`
	APIKey           string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" validate:"gte=0"`
	SynthesisTimeout time.Duration `mapstructure:"synthesis_timeout" yaml:"synthesis_timeout" validate:"gte=0"`
}

type AudioConfig struct {
	FFmpegCommand    string `mapstructure:"ffmpeg_command" yaml:"ffmpeg_command" validate:"required"`
	InputFormat      string `mapstructure:"input_format" yaml:"input_format" validate:"required"`
	InputDevice      string `mapstructure:"input_device" yaml:"input_device" validate:"required"`
	EchoCancelSource string `mapstructure:"echo_cancel_source" yaml:"echo_cancel_source,omitempty"`
	SampleRate       int    `mapstructure:"sample_rate" yaml:"sample_rate" validate:"gte=8000,lte=48000"`
	Channels         int    `mapstructure:"channels" yaml:"channels" validate:"gte=1,lte=2"`
	Bitrate          int    `mapstructure:"bitrate" yaml:"bitrate" validate:"gte=6000"`
	EchoCancellation bool   `mapstructure:"echo_cancellation" yaml:"echo_cancellation"`
	NoiseSuppression bool   `mapstructure:"noise_suppression" yaml:"noise_suppression"`
	ChunkSize        int    `mapstructure:"chunk_size" yaml:"chunk_size" validate:"gte=256"`
}

type SamplerConfig struct {
	FPS     int `mapstructure:"fps" yaml:"fps" validate:"gte=1,lte=240"`
	FFTSize int `mapstructure:"fft_size" yaml:"fft_size" validate:"gte=32,lte=32768"`
}

// Cache scopes for synthesized audio.
const (
	CacheScopeText = "text"
	CacheScopeSlot = "slot"
)

type PlaybackConfig struct {
	PlayerCommand string `mapstructure:"player_command" yaml:"player_command,omitempty"`
	CacheScope    string `mapstructure:"cache_scope" yaml:"cache_scope" validate:"oneof=text slot"`
}

type RulesConfig struct {
	Path           string `mapstructure:"path" yaml:"path,omitempty"`
	IterationLimit int    `mapstructure:"iteration_limit" yaml:"iteration_limit" validate:"gte=1"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" validate:"gte=0"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"required"`
}

// DefaultPath is where the optional config file is looked up.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "fieldmic", "config.yaml")
}

// Load resolves configuration from defaults, an optional YAML file and the environment.
// An empty path falls back to DefaultPath; a missing default file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
			if explicit || !missing {
				return Config{}, fmt.Errorf("failed to read config %q: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Rules.Path == "" {
		cfg.Rules.Path = defaultRulesPath()
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.base_url", "http://localhost:5000")
	v.SetDefault("service.api_key", "")
	v.SetDefault("service.request_timeout", 2*time.Minute)
	v.SetDefault("service.synthesis_timeout", time.Duration(0))

	v.SetDefault("audio.ffmpeg_command", "ffmpeg")
	v.SetDefault("audio.input_format", "pulse")
	v.SetDefault("audio.input_device", "default")
	v.SetDefault("audio.echo_cancel_source", "")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.bitrate", 16000)
	v.SetDefault("audio.echo_cancellation", true)
	v.SetDefault("audio.noise_suppression", true)
	v.SetDefault("audio.chunk_size", 4096)

	v.SetDefault("sampler.fps", 60)
	v.SetDefault("sampler.fft_size", 32)

	v.SetDefault("playback.player_command", "")
	v.SetDefault("playback.cache_scope", CacheScopeText)

	v.SetDefault("rules.path", "")
	v.SetDefault("rules.iteration_limit", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("server.addr", "127.0.0.1:8787")
}

func defaultRulesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "fieldmic", "speech.rules")
}
