package usecase

import (
	"context"
	"errors"
	"testing"

	"fieldmic/internal/domain"
	"fieldmic/internal/level"
)

type reportFixture struct {
	service   *ReportService
	recording *recordingFixture
	analyzer  *fakeAnalyzer
	store     *fakeStore
	playback  *PlaybackManager
	synth     *fakeSynth
	player    *fakePlayer
	clipboard *fakeClipboard
	events    *fakeEventSink
}

func newReportFixture(t *testing.T, flush ...[]byte) *reportFixture {
	t.Helper()

	rec := newRecordingFixture(flush...)
	synth := &fakeSynth{}
	player := &fakePlayer{}
	playback := NewPlaybackManager(synth, player, rec.events, nil, PlaybackConfig{})
	t.Cleanup(playback.Close)

	analyzer := &fakeAnalyzer{report: domain.Report{
		ID:           "42",
		OriginalText: "enemy at the ridge",
		Summary:      "contact north ridge",
		Status:       domain.ReportProcessed,
	}}
	store := &fakeStore{}
	clipboard := &fakeClipboard{}

	service := NewReportService(rec.controller, analyzer, store, playback, clipboard, rec.events, nil)
	return &reportFixture{
		service:   service,
		recording: rec,
		analyzer:  analyzer,
		store:     store,
		playback:  playback,
		synth:     synth,
		player:    player,
		clipboard: clipboard,
		events:    rec.events,
	}
}

func TestReportStopAndAnalyzeBindsSlots(t *testing.T) {
	t.Parallel()

	fx := newReportFixture(t, []byte("tail"))
	if _, err := fx.recording.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	fx.recording.encoder.emit([]byte("head-"))

	report, stopped, err := fx.service.StopAndAnalyze(context.Background())
	if err != nil || !stopped {
		t.Fatalf("stop and analyze failed: stopped=%v err=%v", stopped, err)
	}
	if report.Summary != "contact north ridge" {
		t.Fatalf("unexpected summary %q", report.Summary)
	}
	if len(fx.analyzer.received) != 1 || string(fx.analyzer.received[0].Data) != "head-tail" {
		t.Fatalf("analyzer did not receive the assembled recording")
	}
	if reports := fx.events.snapshotReports(); len(reports) != 1 || reports[0].ID != "42" {
		t.Fatalf("expected a single report event, got %d", len(reports))
	}
	latest, ok := fx.service.Latest()
	if !ok || latest.ID != "42" {
		t.Fatalf("latest report not recorded")
	}

	if err := fx.service.PlaySlot(context.Background(), domain.SlotOriginal); err != nil {
		t.Fatalf("play original failed: %v", err)
	}
	if plays := fx.player.plays(); len(plays) != 1 || string(plays[0].Data) != "head-tail" {
		t.Fatalf("original slot should replay the recording")
	}
	if fx.synth.count("head-tail") != 0 {
		t.Fatalf("original recording must not be synthesized")
	}

	if err := fx.service.PlaySlot(context.Background(), domain.SlotSummary); err != nil {
		t.Fatalf("play summary failed: %v", err)
	}
	waitFor(t, "summary playing", func() bool {
		return fx.playback.State(domain.SlotSummary) == domain.PlaybackPlaying
	})
	if fx.synth.count("contact north ridge") != 1 {
		t.Fatalf("summary should be synthesized once")
	}

	fx.service.StopSlot(domain.SlotSummary)
	if fx.playback.State(domain.SlotSummary) != domain.PlaybackStopped {
		t.Fatalf("summary slot should be stopped")
	}
}

func TestReportStopAndAnalyzeWithoutRecording(t *testing.T) {
	t.Parallel()

	fx := newReportFixture(t)
	_, stopped, err := fx.service.StopAndAnalyze(context.Background())
	if err != nil || stopped {
		t.Fatalf("expected a no-op, got stopped=%v err=%v", stopped, err)
	}
	if len(fx.analyzer.received) != 0 {
		t.Fatalf("analyzer must not be called")
	}
}

func TestReportAnalysisFailureSurfacesNetworkError(t *testing.T) {
	t.Parallel()

	fx := newReportFixture(t)
	fx.analyzer.err = errBoom

	_, err := fx.service.Finalize(context.Background(), domain.StopResult{
		SessionID: "s",
		Artifact:  domain.Artifact{MimeType: "audio/webm", Data: []byte("rec")},
	})
	if !errors.Is(err, domain.ErrNetworkFailure) {
		t.Fatalf("expected network failure, got %v", err)
	}
	if !fx.events.hasError(domain.ErrorCodeNetworkFailure) {
		t.Fatalf("expected network failure event")
	}
	if len(fx.events.snapshotReports()) != 0 {
		t.Fatalf("no report should be emitted")
	}
	if err := fx.service.PlaySlot(context.Background(), domain.SlotOriginal); err != nil {
		t.Fatalf("original recording should stay playable: %v", err)
	}
}

func TestReportSuppliedSummaryAudioIsNotSynthesized(t *testing.T) {
	t.Parallel()

	fx := newReportFixture(t)
	fx.analyzer.report.SummaryAudio = &domain.Artifact{MimeType: "audio/mpeg", Data: []byte("spoken")}

	if _, err := fx.service.Finalize(context.Background(), domain.StopResult{
		Artifact: domain.Artifact{Data: []byte("rec")},
	}); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if err := fx.service.PlaySlot(context.Background(), domain.SlotSummary); err != nil {
		t.Fatalf("play summary failed: %v", err)
	}
	if fx.synth.count("contact north ridge") != 0 {
		t.Fatalf("supplied audio must not be synthesized")
	}
	if plays := fx.player.plays(); len(plays) != 1 || string(plays[0].Data) != "spoken" {
		t.Fatalf("expected the supplied audio to play")
	}
}

func TestReportMessagesFilterAndPlay(t *testing.T) {
	t.Parallel()

	fx := newReportFixture(t)
	fx.store.reports = []domain.Report{
		{ID: "1", Summary: "convoy moving east", OriginalText: "convoy"},
		{ID: "2", Summary: "all quiet", OriginalText: "nothing to report"},
	}

	all, err := fx.service.Messages(context.Background(), "")
	if err != nil || len(all) != 2 {
		t.Fatalf("expected two messages, got %d err=%v", len(all), err)
	}
	filtered, err := fx.service.Messages(context.Background(), "quiet")
	if err != nil || len(filtered) != 1 || filtered[0].ID != "2" {
		t.Fatalf("unexpected filter result %+v err=%v", filtered, err)
	}

	if err := fx.service.PlayMessage(context.Background(), "1"); err != nil {
		t.Fatalf("play message failed: %v", err)
	}
	slot := domain.MessageSlot("1")
	waitFor(t, "message playing", func() bool { return fx.playback.State(slot) == domain.PlaybackPlaying })

	fx.service.StopMessage("1")
	if fx.playback.State(slot) != domain.PlaybackStopped {
		t.Fatalf("message slot should stop")
	}

	if err := fx.service.PlayMessage(context.Background(), "missing"); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected unknown message, got %v", err)
	}
}

func TestReportDeleteMessage(t *testing.T) {
	t.Parallel()

	fx := newReportFixture(t)
	fx.store.reports = []domain.Report{{ID: "7", Summary: "x"}}
	if _, err := fx.service.Messages(context.Background(), ""); err != nil {
		t.Fatalf("list failed: %v", err)
	}

	if err := fx.service.DeleteMessage(context.Background(), "7"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(fx.store.deleted) != 1 || fx.store.deleted[0] != "7" {
		t.Fatalf("store delete not called")
	}

	fx.store.err = errBoom
	if err := fx.service.DeleteMessage(context.Background(), "7"); !errors.Is(err, domain.ErrNetworkFailure) {
		t.Fatalf("expected network failure, got %v", err)
	}
	if _, err := fx.service.Messages(context.Background(), ""); !errors.Is(err, domain.ErrNetworkFailure) {
		t.Fatalf("expected network failure on list, got %v", err)
	}
}

func TestReportCopy(t *testing.T) {
	t.Parallel()

	fx := newReportFixture(t)
	if err := fx.service.Copy(context.Background(), "summary text"); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if fx.clipboard.lastText != "summary text" {
		t.Fatalf("clipboard not updated")
	}

	fx.clipboard.err = errBoom
	if err := fx.service.Copy(context.Background(), "again"); err == nil {
		t.Fatalf("expected copy error")
	}
	if !fx.events.hasError(domain.ErrorCodeClipboard) {
		t.Fatalf("expected clipboard error event")
	}
}

func TestReportCopyWithoutClipboard(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	sampler := level.NewSampler(&fakeScheduler{}, events.LevelsChanged)
	recorder := NewRecordingController(&fakeCapture{}, sampler, &fakeClock{}, events, nil, RecordingConfig{})
	service := NewReportService(recorder, &fakeAnalyzer{}, &fakeStore{}, nil, nil, events, nil)

	if err := service.Copy(context.Background(), "x"); err == nil {
		t.Fatalf("expected error without clipboard")
	}
}
