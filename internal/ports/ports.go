package ports

import (
	"context"
	"time"

	"fieldmic/internal/domain"
)

// Constraints describes how the microphone should be captured.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	SampleRate       int
	Channels         int
	InputFormat      string
	InputDevice      string
	// EchoCancelSource names an audio-server source that already applies echo cancellation.
	EchoCancelSource string
}

// SpectrumSource exposes the current frequency-domain snapshot of a live input.
type SpectrumSource interface {
	// FrequencyData fills dst with byte magnitudes (0-255) and returns the bins written.
	FrequencyData(dst []byte) int
}

// ChunkFunc receives encoded chunks in arrival order.
type ChunkFunc func(chunk []byte)

// EncodingOptions tunes the encoder started on a device.
type EncodingOptions struct {
	Bitrate int
}

// DeviceHandle is an opened input device. It stays held until Release.
type DeviceHandle interface {
	SpectrumSource
	// BeginEncoding starts an encoder fed by this device. onChunk is registered before
	// the first byte is produced.
	BeginEncoding(ctx context.Context, opts EncodingOptions, onChunk ChunkFunc) (EncoderSession, error)
	// Lost yields an error if the device disappears while held.
	Lost() <-chan error
	// Release frees the device. Safe to call more than once.
	Release() error
}

// EncoderSession is a running encoder.
type EncoderSession interface {
	MimeType() string
	// Failed yields an error if the encoder dies before Stop.
	Failed() <-chan error
	// Stop flushes buffered chunks through the chunk callback and returns once no
	// further callback can happen.
	Stop() error
}

// AudioCapture opens input devices.
type AudioCapture interface {
	Open(ctx context.Context, constraints Constraints) (DeviceHandle, error)
}

// FrameScheduler ticks once per display refresh while the view is visible.
type FrameScheduler interface {
	// Subscribe registers fn for every tick. After unsubscribe returns, fn is not
	// invoked again except for a tick already in progress.
	Subscribe(fn func()) (unsubscribe func())
}

// Ticker is a stoppable periodic channel.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock abstracts wall-clock time for the elapsed counter.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// SpeechSynthesizer turns text into audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (domain.Artifact, error)
}

// RecordingAnalyzer submits a finished recording for transcription and summarization.
type RecordingAnalyzer interface {
	Analyze(ctx context.Context, recording domain.Artifact) (domain.Report, error)
}

// MessageStore reads and deletes persisted reports.
type MessageStore interface {
	ListMessages(ctx context.Context) ([]domain.Report, error)
	DeleteMessage(ctx context.Context, id string) error
}

// Playback is one running audio output.
type Playback interface {
	// Stop halts output immediately. Safe to call more than once.
	Stop() error
	// Done yields the result of playback once it ends, naturally or not.
	Done() <-chan error
}

// Player starts audio output for an artifact.
type Player interface {
	Play(ctx context.Context, artifact domain.Artifact) (Playback, error)
}

// TextRewriter rewrites text deterministically.
type TextRewriter interface {
	Apply(text string) (string, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	ElapsedChanged(seconds int)
	LevelsChanged(frame domain.LevelFrame)
	PlaybackChanged(slot string, state domain.PlaybackState)
	ReportReady(report domain.Report)
	SessionError(code domain.ErrorCode, detail string)
}
