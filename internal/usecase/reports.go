package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fieldmic/internal/domain"
	"fieldmic/internal/logging"
	"fieldmic/internal/ports"
)

// ErrUnknownMessage is returned when a message id is not in the last listing.
var ErrUnknownMessage = errors.New("unknown message")

// ReportService ties a finished recording to analysis, the message log and playback slots.
type ReportService struct {
	recorder  *RecordingController
	analyzer  ports.RecordingAnalyzer
	store     ports.MessageStore
	playback  *PlaybackManager
	clipboard ports.Clipboard
	events    ports.EventSink
	logger    logging.Logger

	mu       sync.Mutex
	latest   *domain.Report
	messages map[string]domain.Report
}

func NewReportService(
	recorder *RecordingController,
	analyzer ports.RecordingAnalyzer,
	store ports.MessageStore,
	playback *PlaybackManager,
	clipboard ports.Clipboard,
	events ports.EventSink,
	logger logging.Logger,
) *ReportService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ReportService{
		recorder:  recorder,
		analyzer:  analyzer,
		store:     store,
		playback:  playback,
		clipboard: clipboard,
		events:    events,
		logger:    logger,
		messages:  make(map[string]domain.Report),
	}
}

// StopAndAnalyze stops the active recording and submits it. It reports false when no
// recording was in progress.
func (s *ReportService) StopAndAnalyze(ctx context.Context) (domain.Report, bool, error) {
	result, stopped, err := s.recorder.Stop(ctx)
	if !stopped || err != nil {
		return domain.Report{}, stopped, err
	}
	report, err := s.Finalize(ctx, result)
	return report, true, err
}

// Finalize binds the recording to the original slot, submits it for analysis and binds
// the resulting summary to the summary slot.
func (s *ReportService) Finalize(ctx context.Context, result domain.StopResult) (domain.Report, error) {
	recording := result.Artifact
	s.playback.Bind(domain.SlotOriginal, "", &recording)

	report, err := s.analyzer.Analyze(ctx, recording)
	if err != nil {
		if !errors.Is(err, domain.ErrNetworkFailure) {
			err = fmt.Errorf("%w: %v", domain.ErrNetworkFailure, err)
		}
		s.logger.Errorf("analysis failed session=%s: %v", result.SessionID, err)
		s.events.SessionError(domain.ErrorCodeNetworkFailure, err.Error())
		return domain.Report{}, err
	}

	s.playback.Bind(domain.SlotSummary, report.Summary, report.SummaryAudio)

	s.mu.Lock()
	latest := report
	s.latest = &latest
	if report.ID != "" {
		s.messages[report.ID] = report
	}
	s.mu.Unlock()

	s.logger.Infof("report ready session=%s id=%s status=%s", result.SessionID, report.ID, report.Status)
	s.events.ReportReady(report)
	return report, nil
}

// Latest returns the most recent report, if any.
func (s *ReportService) Latest() (domain.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return domain.Report{}, false
	}
	return *s.latest, true
}

// PlaySlot plays whatever is bound to a slot.
func (s *ReportService) PlaySlot(ctx context.Context, slot string) error {
	return s.playback.Play(ctx, PlayRequest{Slot: slot})
}

// StopSlot halts playback in a slot.
func (s *ReportService) StopSlot(slot string) {
	s.playback.Stop(slot)
}

// Messages lists persisted reports whose summary or original text contains query.
func (s *ReportService) Messages(ctx context.Context, query string) ([]domain.Report, error) {
	reports, err := s.store.ListMessages(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNetworkFailure) {
			err = fmt.Errorf("%w: %v", domain.ErrNetworkFailure, err)
		}
		s.logger.Warnf("message list failed: %v", err)
		return nil, err
	}

	s.mu.Lock()
	for _, report := range reports {
		if report.ID != "" {
			s.messages[report.ID] = report
		}
	}
	s.mu.Unlock()

	return domain.FilterReports(reports, query), nil
}

// DeleteMessage removes a persisted report. Cached audio is content-keyed and stays put.
func (s *ReportService) DeleteMessage(ctx context.Context, id string) error {
	if err := s.store.DeleteMessage(ctx, id); err != nil {
		if !errors.Is(err, domain.ErrNetworkFailure) {
			err = fmt.Errorf("%w: %v", domain.ErrNetworkFailure, err)
		}
		return err
	}

	s.playback.Stop(domain.MessageSlot(id))
	s.mu.Lock()
	delete(s.messages, id)
	s.mu.Unlock()
	return nil
}

// PlayMessage plays the summary of a persisted report in its own slot.
func (s *ReportService) PlayMessage(ctx context.Context, id string) error {
	report, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	return s.playback.Play(ctx, PlayRequest{
		Slot:     domain.MessageSlot(id),
		Text:     report.Summary,
		Artifact: report.SummaryAudio,
	})
}

// StopMessage halts playback of a persisted report.
func (s *ReportService) StopMessage(id string) {
	s.playback.Stop(domain.MessageSlot(id))
}

func (s *ReportService) lookup(ctx context.Context, id string) (domain.Report, error) {
	s.mu.Lock()
	report, ok := s.messages[id]
	s.mu.Unlock()
	if ok {
		return report, nil
	}

	if _, err := s.Messages(ctx, ""); err != nil {
		return domain.Report{}, err
	}
	s.mu.Lock()
	report, ok = s.messages[id]
	s.mu.Unlock()
	if !ok {
		return domain.Report{}, fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	return report, nil
}

// Copy places text on the clipboard.
func (s *ReportService) Copy(ctx context.Context, text string) error {
	if s.clipboard == nil {
		return errors.New("clipboard is not available")
	}
	if err := s.clipboard.SetText(ctx, text); err != nil {
		s.events.SessionError(domain.ErrorCodeClipboard, "text could not be copied to the clipboard")
		return err
	}
	return nil
}
