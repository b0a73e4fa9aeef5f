package domain

import (
	"fmt"
	"time"

	"github.com/vincent-petithory/dataurl"
)

// SessionState models the recording lifecycle.
type SessionState string

const (
	SessionStateIdle                 SessionState = "idle"
	SessionStateRequestingPermission SessionState = "requesting_permission"
	SessionStateRecording            SessionState = "recording"
	SessionStateStopping             SessionState = "stopping"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady              SessionStateReason = "ready"
	SessionReasonAwaitingDevice     SessionStateReason = "awaiting_device"
	SessionReasonRecordingStarted   SessionStateReason = "recording_started"
	SessionReasonFinalizing         SessionStateReason = "finalizing"
	SessionReasonRecordingCompleted SessionStateReason = "recording_completed"
	SessionReasonCaptureFailed      SessionStateReason = "capture_failed"
	SessionReasonRecordingAborted   SessionStateReason = "recording_aborted"
)

// ErrorCode identifies recoverable backend errors surfaced to the user.
type ErrorCode string

const (
	ErrorCodeStartup             ErrorCode = "startup"
	ErrorCodePermissionDenied    ErrorCode = "permission_denied"
	ErrorCodeDeviceUnavailable   ErrorCode = "device_unavailable"
	ErrorCodeEncodingUnsupported ErrorCode = "encoding_unsupported"
	ErrorCodeEncoderFailed       ErrorCode = "encoder_failed"
	ErrorCodeNetworkFailure      ErrorCode = "network_failure"
	ErrorCodePlaybackFailure     ErrorCode = "playback_failure"
	ErrorCodeClipboard           ErrorCode = "clipboard"
	ErrorCodeUnknown             ErrorCode = "unknown"
)

// LevelBuckets is the number of loudness buckets in a LevelFrame.
const LevelBuckets = 5

// LevelFrame holds normalized magnitudes in [0,1] for the visualization.
type LevelFrame [LevelBuckets]float64

// IsZero reports whether the frame is the flat baseline.
func (f LevelFrame) IsZero() bool {
	return f == LevelFrame{}
}

// Artifact is an immutable encoded audio payload plus its declared format.
type Artifact struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"-"`
}

// Empty reports whether the artifact carries no audio.
func (a Artifact) Empty() bool {
	return len(a.Data) == 0
}

// DataURL renders the artifact as a playable data source.
func (a Artifact) DataURL() string {
	if a.Empty() {
		return ""
	}
	mime := a.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return dataurl.New(a.Data, mime).String()
}

// PlaybackState is the state of one player handle.
type PlaybackState string

const (
	PlaybackStopped PlaybackState = "stopped"
	PlaybackLoading PlaybackState = "loading"
	PlaybackPlaying PlaybackState = "playing"
)

// Playback slots used by the hosts.
const (
	SlotOriginal = "original"
	SlotSummary  = "summary"
)

// MessageSlot returns the playback slot of a persisted message.
func MessageSlot(id string) string {
	return "message:" + id
}

// StopResult is returned once recording is stopped and the artifact is finalized.
type StopResult struct {
	SessionID string        `json:"sessionId"`
	Artifact  Artifact      `json:"artifact"`
	Elapsed   time.Duration `json:"elapsed"`
	Chunks    int           `json:"chunks"`
}

// Status summarizes the current runtime status.
type Status struct {
	State          SessionState `json:"state"`
	Active         bool         `json:"active"`
	SessionID      string       `json:"sessionId,omitempty"`
	ElapsedSeconds int          `json:"elapsedSeconds"`
	Elapsed        string       `json:"elapsed"`
	Message        string       `json:"message,omitempty"`
}

// FormatElapsed renders seconds as MM:SS. Minutes wrap past 99; the count itself is unbounded.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", (seconds/60)%100, seconds%60)
}
