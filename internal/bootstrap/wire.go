package bootstrap

import (
	"context"
	"fmt"

	"fieldmic/internal/audio"
	"fieldmic/internal/config"
	"fieldmic/internal/domain"
	"fieldmic/internal/frameclock"
	"fieldmic/internal/level"
	"fieldmic/internal/logging"
	"fieldmic/internal/ports"
	"fieldmic/internal/providers/analysis"
	"fieldmic/internal/rules"
	"fieldmic/internal/usecase"
)

// Options selects the configuration file and host integrations.
type Options struct {
	// ConfigPath overrides config.DefaultPath.
	ConfigPath string
	// Clipboard is optional; hosts without one leave it nil.
	Clipboard ports.Clipboard
	// Logger overrides the logger built from configuration.
	Logger logging.Logger
	// LogLevel overrides log.level.
	LogLevel string
	// ConsoleLog mirrors logs to stderr when a log file is configured.
	ConsoleLog bool
}

// Services is the assembled runtime graph.
type Services struct {
	Config   config.Config
	Logger   logging.Logger
	Events   *FanOut
	Frames   *frameclock.Clock
	Sampler  *level.Sampler
	Recorder *usecase.RecordingController
	Playback *usecase.PlaybackManager
	Reports  *usecase.ReportService
	Rules    *rules.Lexicon
	Player   string
}

// Build wires all backend dependencies for the current runtime.
func Build(opts Options) (*Services, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	logger := opts.Logger
	if logger == nil {
		logger, err = logging.New(logging.Config{
			Level:      cfg.Log.Level,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			Console:    opts.ConsoleLog,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
	}

	lexicon, err := rules.Load(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return nil, err
	}

	events := NewFanOut()
	frames := frameclock.New(cfg.Sampler.FPS)
	sampler := level.NewSampler(frames, events.LevelsChanged)

	capture := audio.NewFFMPEGCapture(audio.CaptureOptions{
		Command:   cfg.Audio.FFmpegCommand,
		ChunkSize: cfg.Audio.ChunkSize,
		FFTSize:   cfg.Sampler.FFTSize,
		Logger:    logger.With("component", "capture"),
	})

	client := analysis.NewClient(analysis.Config{
		BaseURL:  cfg.Service.BaseURL,
		APIKey:   cfg.Service.APIKey,
		Timeout:  cfg.Service.RequestTimeout,
		Rewriter: lexicon,
		Logger:   logger.With("component", "analysis"),
	})

	var player ports.Player
	playerName := ""
	if execPlayer, err := audio.NewExecPlayer(cfg.Playback.PlayerCommand); err != nil {
		logger.Warnf("audio playback disabled: %v", err)
		player = unavailablePlayer{cause: err}
	} else {
		player = execPlayer
		playerName = execPlayer.Command()
	}

	recorder := usecase.NewRecordingController(
		capture,
		sampler,
		usecase.SystemClock{},
		events,
		logger.With("component", "recording"),
		usecase.RecordingConfig{
			Constraints: ports.Constraints{
				EchoCancellation: cfg.Audio.EchoCancellation,
				NoiseSuppression: cfg.Audio.NoiseSuppression,
				SampleRate:       cfg.Audio.SampleRate,
				Channels:         cfg.Audio.Channels,
				InputFormat:      cfg.Audio.InputFormat,
				InputDevice:      cfg.Audio.InputDevice,
				EchoCancelSource: cfg.Audio.EchoCancelSource,
			},
			Encoding: ports.EncodingOptions{Bitrate: cfg.Audio.Bitrate},
		},
	)

	playback := usecase.NewPlaybackManager(
		client,
		player,
		events,
		logger.With("component", "playback"),
		usecase.PlaybackConfig{
			CacheScope:       cfg.Playback.CacheScope,
			SynthesisTimeout: cfg.Service.SynthesisTimeout,
		},
	)

	reports := usecase.NewReportService(recorder, client, client, playback, opts.Clipboard, events, logger.With("component", "reports"))

	logger.Infof("services ready service=%s input=%s/%s player=%q rules=%d",
		cfg.Service.BaseURL, cfg.Audio.InputFormat, cfg.Audio.InputDevice, playerName, lexicon.Len())

	return &Services{
		Config:   cfg,
		Logger:   logger,
		Events:   events,
		Frames:   frames,
		Sampler:  sampler,
		Recorder: recorder,
		Playback: playback,
		Reports:  reports,
		Rules:    lexicon,
		Player:   playerName,
	}, nil
}

// Close discards any active recording, halts playback and stops the frame clock.
func (s *Services) Close() {
	if s.Recorder.Abort() {
		s.Logger.Infof("active recording discarded on shutdown")
	}
	s.Playback.Close()
	s.Frames.Close()
	_ = s.Logger.Sync()
}

type unavailablePlayer struct {
	cause error
}

func (p unavailablePlayer) Play(context.Context, domain.Artifact) (ports.Playback, error) {
	return nil, p.cause
}
