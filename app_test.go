package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"fieldmic/internal/domain"
)

func TestSessionReasonMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.SessionStateReason]string{
		domain.SessionReasonReady:              "Ready",
		domain.SessionReasonAwaitingDevice:     "Waiting for microphone access...",
		domain.SessionReasonRecordingStarted:   "Recording",
		domain.SessionReasonFinalizing:         "Finishing recording...",
		domain.SessionReasonRecordingCompleted: "Recording complete",
		domain.SessionReasonCaptureFailed:      "Microphone could not be opened",
		domain.SessionReasonRecordingAborted:   "Recording discarded",
	}

	for reason, want := range cases {
		reason := reason
		want := want
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := sessionReasonMessage(reason); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := sessionReasonMessage("unknown"); got != "" {
		t.Fatalf("expected empty unknown reason message, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:             "Startup failed",
		domain.ErrorCodePermissionDenied:    "Microphone access was denied",
		domain.ErrorCodeDeviceUnavailable:   "No microphone is available",
		domain.ErrorCodeEncodingUnsupported: "Audio recording is not supported on this system",
		domain.ErrorCodeEncoderFailed:       "Recording failed",
		domain.ErrorCodeNetworkFailure:      "Could not reach the analysis service",
		domain.ErrorCodePlaybackFailure:     "Audio playback failed",
		domain.ErrorCodeClipboard:           "Clipboard write failed",
	}
	for code, want := range cases {
		code := code
		want := want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected uninitialized error, got %v", err)
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if _, err := app.StartRecording(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error from start, got %v", err)
	}
	if app.AbortRecording() {
		t.Fatalf("abort must be a no-op before startup")
	}
}

func TestGetStatusWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	status := app.GetStatus()
	if status.State != domain.SessionStateIdle || status.Active || status.Elapsed != "00:00" {
		t.Fatalf("unexpected status: %+v", status)
	}

	app.bootErr = errors.New("boot")
	status = app.GetStatus()
	if status.State != domain.SessionStateIdle || status.Active || status.Message != "boot" {
		t.Fatalf("unexpected boot status: %+v", status)
	}
	if info := app.GetRuntimeInfo(); info["error"] != "boot" {
		t.Fatalf("unexpected runtime info: %v", info)
	}
}

type emitted struct {
	name    string
	payload interface{}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingEmitter) emit(_ context.Context, name string, data ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{name: name, payload: data[0]})
}

func TestEventsAreEmittedToFrontend(t *testing.T) {
	t.Parallel()

	rec := &recordingEmitter{}
	app := &App{ctx: context.Background(), emit: rec.emit}

	app.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)
	app.ElapsedChanged(65)
	app.LevelsChanged(domain.LevelFrame{0.5})
	app.PlaybackChanged(domain.SlotSummary, domain.PlaybackLoading)
	app.ReportReady(domain.Report{ID: "1", SummaryAudio: &domain.Artifact{MimeType: "audio/mpeg", Data: []byte("x")}})
	app.SessionError(domain.ErrorCodePermissionDenied, "denied")

	if len(rec.events) != 6 {
		t.Fatalf("expected 6 events, got %d", len(rec.events))
	}
	wantNames := []string{eventSession, eventElapsed, eventLevels, eventPlayback, eventReport, eventError}
	for i, want := range wantNames {
		if rec.events[i].name != want {
			t.Fatalf("event %d: expected %s, got %s", i, want, rec.events[i].name)
		}
	}

	session := rec.events[0].payload.(map[string]string)
	if session["message"] != "Recording" {
		t.Fatalf("unexpected session payload: %v", session)
	}
	elapsed := rec.events[1].payload.(map[string]interface{})
	if elapsed["elapsed"] != "01:05" {
		t.Fatalf("unexpected elapsed payload: %v", elapsed)
	}
	report := rec.events[4].payload.(domain.ReportView)
	if report.SummaryAudioURL == "" {
		t.Fatalf("report should carry a playable audio url")
	}
	failure := rec.events[5].payload.(map[string]string)
	if failure["message"] != "Microphone access was denied" || failure["detail"] != "denied" {
		t.Fatalf("unexpected error payload: %v", failure)
	}
}

func TestEventsBeforeStartupAreDropped(t *testing.T) {
	t.Parallel()

	rec := &recordingEmitter{}
	app := &App{emit: rec.emit}
	app.SessionError(domain.ErrorCodeUnknown, "early")
	if len(rec.events) != 0 {
		t.Fatalf("expected no events without a runtime context")
	}
}
