package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"fieldmic/internal/bootstrap"
	"fieldmic/internal/domain"
)

const (
	eventSession  = "fieldmic:session"
	eventElapsed  = "fieldmic:elapsed"
	eventLevels   = "fieldmic:levels"
	eventPlayback = "fieldmic:playback"
	eventReport   = "fieldmic:report"
	eventError    = "fieldmic:error"
)

var errNotInitialized = errors.New("application is not initialized")

// App is the Wails application root.
type App struct {
	ctx  context.Context
	emit func(ctx context.Context, name string, data ...interface{})

	services *bootstrap.Services
	detach   func()
	bootErr  error
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(bootstrap.Options{Clipboard: &wailsClipboard{}})
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.detach = services.Events.Add(a)
	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)
}

func (a *App) shutdown(context.Context) {
	if a.services == nil {
		return
	}
	if a.detach != nil {
		a.detach()
	}
	a.services.Close()
}

// StartRecording opens the microphone and starts recording.
func (a *App) StartRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if _, err := a.services.Recorder.Start(a.ctx); err != nil {
		return domain.Status{}, err
	}
	return a.services.Recorder.Status(), nil
}

// StopRecording finalizes the recording and submits it for analysis. It returns nil when
// nothing was recording.
func (a *App) StopRecording() (*domain.ReportView, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	report, stopped, err := a.services.Reports.StopAndAnalyze(a.ctx)
	if err != nil || !stopped {
		return nil, err
	}
	view := report.View()
	return &view, nil
}

// AbortRecording discards an in-progress recording.
func (a *App) AbortRecording() bool {
	if a.requireReady() != nil {
		return false
	}
	return a.services.Recorder.Abort()
}

// PlaySummary speaks the latest summary, synthesizing it on first use.
func (a *App) PlaySummary() error {
	return a.playSlot(domain.SlotSummary)
}

func (a *App) StopSummary() {
	a.stopSlot(domain.SlotSummary)
}

// PlayOriginal replays the latest recording.
func (a *App) PlayOriginal() error {
	return a.playSlot(domain.SlotOriginal)
}

func (a *App) StopOriginal() {
	a.stopSlot(domain.SlotOriginal)
}

// PlayMessage speaks the summary of a message from the log.
func (a *App) PlayMessage(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Reports.PlayMessage(a.ctx, id)
}

func (a *App) StopMessage(id string) {
	if a.requireReady() != nil {
		return
	}
	a.services.Reports.StopMessage(id)
}

// ListMessages returns logged reports whose text contains query.
func (a *App) ListMessages(query string) ([]domain.ReportView, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	reports, err := a.services.Reports.Messages(a.ctx, query)
	if err != nil {
		a.SessionError(domain.ErrorCodeNetworkFailure, err.Error())
		return nil, err
	}
	views := make([]domain.ReportView, 0, len(reports))
	for _, report := range reports {
		views = append(views, report.View())
	}
	return views, nil
}

// DeleteMessage removes a report from the log.
func (a *App) DeleteMessage(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Reports.DeleteMessage(a.ctx, id); err != nil {
		a.SessionError(domain.CodeOf(err), err.Error())
		return err
	}
	return nil
}

// CopyText places text on the system clipboard.
func (a *App) CopyText(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Reports.Copy(a.ctx, text)
}

// SetViewVisible pauses level sampling while the window is hidden.
func (a *App) SetViewVisible(visible bool) {
	if a.services == nil {
		return
	}
	a.services.Frames.SetVisible(visible)
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.services == nil {
		status := domain.Status{State: domain.SessionStateIdle, Elapsed: domain.FormatElapsed(0)}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return a.services.Recorder.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}

	cfg := a.services.Config
	return map[string]string{
		"service":          cfg.Service.BaseURL,
		"audioInput":       cfg.Audio.InputDevice,
		"audioInputFormat": cfg.Audio.InputFormat,
		"sampleRate":       fmt.Sprint(cfg.Audio.SampleRate),
		"player":           a.services.Player,
		"rulesFile":        cfg.Rules.Path,
		"cacheScope":       cfg.Playback.CacheScope,
	}
}

func (a *App) playSlot(slot string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Reports.PlaySlot(a.ctx, slot)
}

func (a *App) stopSlot(slot string) {
	if a.requireReady() != nil {
		return
	}
	a.services.Reports.StopSlot(slot)
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return errNotInitialized
	}
	return nil
}

func (a *App) send(name string, payload interface{}) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, payload)
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	a.send(eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// ElapsedChanged emits the recording timer.
func (a *App) ElapsedChanged(seconds int) {
	a.send(eventElapsed, map[string]interface{}{
		"seconds": seconds,
		"elapsed": domain.FormatElapsed(seconds),
	})
}

// LevelsChanged emits one visualization frame.
func (a *App) LevelsChanged(frame domain.LevelFrame) {
	a.send(eventLevels, frame)
}

// PlaybackChanged emits a slot's player state.
func (a *App) PlaybackChanged(slot string, state domain.PlaybackState) {
	a.send(eventPlayback, map[string]string{"slot": slot, "state": string(state)})
}

// ReportReady emits a freshly analyzed report.
func (a *App) ReportReady(report domain.Report) {
	a.send(eventReport, report.View())
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.send(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready"
	case domain.SessionReasonAwaitingDevice:
		return "Waiting for microphone access..."
	case domain.SessionReasonRecordingStarted:
		return "Recording"
	case domain.SessionReasonFinalizing:
		return "Finishing recording..."
	case domain.SessionReasonRecordingCompleted:
		return "Recording complete"
	case domain.SessionReasonCaptureFailed:
		return "Microphone could not be opened"
	case domain.SessionReasonRecordingAborted:
		return "Recording discarded"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodePermissionDenied:
		return "Microphone access was denied"
	case domain.ErrorCodeDeviceUnavailable:
		return "No microphone is available"
	case domain.ErrorCodeEncodingUnsupported:
		return "Audio recording is not supported on this system"
	case domain.ErrorCodeEncoderFailed:
		return "Recording failed"
	case domain.ErrorCodeNetworkFailure:
		return "Could not reach the analysis service"
	case domain.ErrorCodePlaybackFailure:
		return "Audio playback failed"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
