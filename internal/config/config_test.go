package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Service.BaseURL != "http://localhost:5000" {
		t.Fatalf("unexpected base url: %q", cfg.Service.BaseURL)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Fatalf("unexpected sample/channels: %+v", cfg.Audio)
	}
	if !cfg.Audio.EchoCancellation || !cfg.Audio.NoiseSuppression {
		t.Fatalf("expected echo cancellation and noise suppression on: %+v", cfg.Audio)
	}
	if cfg.Sampler.FFTSize != 32 || cfg.Sampler.FPS != 60 {
		t.Fatalf("unexpected sampler config: %+v", cfg.Sampler)
	}
	if cfg.Playback.CacheScope != CacheScopeText {
		t.Fatalf("expected text cache scope, got %q", cfg.Playback.CacheScope)
	}
	if want := filepath.Join(home, ".config", "fieldmic", "speech.rules"); cfg.Rules.Path != want {
		t.Fatalf("expected default rules path %q, got %q", want, cfg.Rules.Path)
	}
}

func TestLoadRespectsFileAndEnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(home, "fieldmic.yaml")
	contents := []byte(`
service:
  base_url: https://reports.example.com
  synthesis_timeout: 20s
audio:
  input_format: alsa
  input_device: hw:1
playback:
  cache_scope: slot
rules:
  path: /tmp/custom.rules
  iteration_limit: 42
`)
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	t.Setenv("FIELDMIC_AUDIO_FFMPEG_COMMAND", "my-ffmpeg")
	t.Setenv("FIELDMIC_AUDIO_INPUT_DEVICE", "mic0")
	t.Setenv("FIELDMIC_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Service.BaseURL != "https://reports.example.com" || cfg.Service.SynthesisTimeout != 20*time.Second {
		t.Fatalf("unexpected service config: %+v", cfg.Service)
	}
	if cfg.Audio.FFmpegCommand != "my-ffmpeg" || cfg.Audio.InputFormat != "alsa" || cfg.Audio.InputDevice != "mic0" {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Playback.CacheScope != CacheScopeSlot {
		t.Fatalf("expected slot cache scope, got %q", cfg.Playback.CacheScope)
	}
	if cfg.Rules.Path != "/tmp/custom.rules" || cfg.Rules.IterationLimit != 42 {
		t.Fatalf("unexpected rules config: %+v", cfg.Rules)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected env log level, got %q", cfg.Log.Level)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FIELDMIC_PLAYBACK_CACHE_SCOPE", "global")

	if _, err := Load(""); err == nil {
		t.Fatalf("expected validation error for unknown cache scope")
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	if cfg.Audio.Bitrate != 16000 || cfg.Server.Addr == "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
