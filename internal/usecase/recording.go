package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldmic/internal/domain"
	"fieldmic/internal/level"
	"fieldmic/internal/logging"
	"fieldmic/internal/ports"
)

// RecordingConfig controls capture and encoding.
type RecordingConfig struct {
	Constraints ports.Constraints
	Encoding    ports.EncodingOptions
}

// RecordingController runs the idle -> requesting_permission -> recording -> stopping
// lifecycle for one microphone recording at a time.
type RecordingController struct {
	capture ports.AudioCapture
	sampler *level.Sampler
	clock   ports.Clock
	events  ports.EventSink
	logger  logging.Logger
	cfg     RecordingConfig
	newID   func() string

	mu      sync.Mutex
	state   domain.SessionState
	current *recordingSession
}

type recordingSession struct {
	id        string
	startedAt time.Time
	elapsed   int

	channel *captureChannel
	levels  *level.Session
	ticker  ports.Ticker

	quit      chan struct{}
	watchDone chan struct{}
	quitOnce  sync.Once
}

func (s *recordingSession) stopWatching() {
	s.quitOnce.Do(func() {
		close(s.quit)
		if s.ticker != nil {
			s.ticker.Stop()
		}
	})
}

func NewRecordingController(
	capture ports.AudioCapture,
	sampler *level.Sampler,
	clock ports.Clock,
	events ports.EventSink,
	logger logging.Logger,
	cfg RecordingConfig,
) *RecordingController {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &RecordingController{
		capture: capture,
		sampler: sampler,
		clock:   clock,
		events:  events,
		logger:  logger,
		cfg:     cfg,
		newID:   uuid.NewString,
		state:   domain.SessionStateIdle,
	}
}

// Start opens the microphone and begins recording. It reports false without doing
// anything unless the controller is idle.
func (c *RecordingController) Start(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.state != domain.SessionStateIdle {
		c.mu.Unlock()
		return false, nil
	}
	c.state = domain.SessionStateRequestingPermission
	c.mu.Unlock()
	c.events.SessionStateChanged(domain.SessionStateRequestingPermission, domain.SessionReasonAwaitingDevice)

	channel, err := openCaptureChannel(ctx, c.capture, c.cfg.Constraints)
	if err != nil {
		c.failStart(nil, err)
		return true, err
	}

	session := &recordingSession{
		id:        c.newID(),
		channel:   channel,
		quit:      make(chan struct{}),
		watchDone: make(chan struct{}),
	}

	c.mu.Lock()
	c.current = session
	c.mu.Unlock()

	err = channel.begin(ctx, c.cfg.Encoding, func(chunk []byte) {
		c.handle(chunkEvent{session: session, data: chunk})
	})
	if err != nil {
		c.failStart(session, err)
		return true, err
	}

	levels := c.sampler.Attach(channel.device)

	c.mu.Lock()
	session.levels = levels
	session.startedAt = c.clock.Now()
	session.ticker = c.clock.NewTicker(time.Second)
	c.state = domain.SessionStateRecording
	c.mu.Unlock()

	go c.watch(session)

	c.logger.Infof("recording started session=%s mime=%s", session.id, channel.encoder.MimeType())
	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)
	c.events.ElapsedChanged(0)
	return true, nil
}

func (c *RecordingController) failStart(session *recordingSession, err error) {
	if session != nil {
		session.channel.discard()
		if releaseErr := session.channel.release(); releaseErr != nil {
			c.logger.Warnf("device release failed session=%s: %v", session.id, releaseErr)
		}
	}

	c.mu.Lock()
	c.current = nil
	c.state = domain.SessionStateIdle
	c.mu.Unlock()

	c.logger.Warnf("recording could not start: %v", err)
	c.events.SessionError(domain.CodeOf(err), err.Error())
	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonCaptureFailed)
}

// Stop finalizes the recording and returns its artifact. It reports false without doing
// anything unless a recording is in progress.
func (c *RecordingController) Stop(ctx context.Context) (domain.StopResult, bool, error) {
	c.mu.Lock()
	if c.state != domain.SessionStateRecording || c.current == nil {
		c.mu.Unlock()
		return domain.StopResult{}, false, nil
	}
	c.state = domain.SessionStateStopping
	session := c.current
	c.mu.Unlock()
	c.events.SessionStateChanged(domain.SessionStateStopping, domain.SessionReasonFinalizing)

	session.stopWatching()
	<-session.watchDone
	session.levels.Detach()

	artifact, chunks, err := session.channel.finish()
	if releaseErr := session.channel.release(); releaseErr != nil {
		c.logger.Warnf("device release failed session=%s: %v", session.id, releaseErr)
	}

	c.mu.Lock()
	elapsed := session.elapsed
	c.current = nil
	c.state = domain.SessionStateIdle
	c.mu.Unlock()

	if err != nil {
		c.logger.Errorf("recording failed to finalize session=%s: %v", session.id, err)
		c.events.SessionError(domain.CodeOf(err), err.Error())
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingAborted)
		return domain.StopResult{}, true, err
	}

	c.logger.Infof("recording completed session=%s bytes=%d chunks=%d elapsed=%ds", session.id, len(artifact.Data), chunks, elapsed)
	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingCompleted)
	return domain.StopResult{
		SessionID: session.id,
		Artifact:  artifact,
		Elapsed:   time.Duration(elapsed) * time.Second,
		Chunks:    chunks,
	}, true, nil
}

// Abort discards an in-progress recording without producing an artifact.
func (c *RecordingController) Abort() bool {
	c.mu.Lock()
	if c.state != domain.SessionStateRecording || c.current == nil {
		c.mu.Unlock()
		return false
	}
	session := c.current
	c.current = nil
	c.state = domain.SessionStateStopping
	c.mu.Unlock()

	session.stopWatching()
	<-session.watchDone
	c.teardown(session)
	c.finishAbort(session, nil)
	return true
}

// Status returns the current recording status.
func (c *RecordingController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := domain.Status{
		State:   c.state,
		Active:  c.state != domain.SessionStateIdle,
		Elapsed: domain.FormatElapsed(0),
	}
	if c.current != nil {
		status.SessionID = c.current.id
		status.ElapsedSeconds = c.current.elapsed
		status.Elapsed = domain.FormatElapsed(c.current.elapsed)
	}
	return status
}

type sessionEvent interface {
	isSessionEvent()
}

type chunkEvent struct {
	session *recordingSession
	data    []byte
}

type tickEvent struct {
	session *recordingSession
}

type encoderFailedEvent struct {
	session *recordingSession
	err     error
}

type deviceLostEvent struct {
	session *recordingSession
	err     error
}

func (chunkEvent) isSessionEvent()         {}
func (tickEvent) isSessionEvent()          {}
func (encoderFailedEvent) isSessionEvent() {}
func (deviceLostEvent) isSessionEvent()    {}

// handle applies one event under the lock and runs its follow-up, if any, after unlocking.
func (c *RecordingController) handle(ev sessionEvent) {
	c.mu.Lock()
	after := c.apply(ev)
	c.mu.Unlock()

	if after != nil {
		after()
	}
}

func (c *RecordingController) apply(ev sessionEvent) func() {
	switch ev := ev.(type) {
	case chunkEvent:
		if c.current != ev.session {
			return nil
		}
		ev.session.channel.append(ev.data)
		return nil

	case tickEvent:
		if c.current != ev.session || c.state != domain.SessionStateRecording {
			return nil
		}
		ev.session.elapsed++
		seconds := ev.session.elapsed
		return func() { c.events.ElapsedChanged(seconds) }

	case encoderFailedEvent:
		return c.abortLocked(ev.session, ev.err)

	case deviceLostEvent:
		return c.abortLocked(ev.session, ev.err)
	}
	return nil
}

// abortLocked detaches the session from the controller. The returned follow-up tears it
// down and announces idle once the device is released.
func (c *RecordingController) abortLocked(session *recordingSession, err error) func() {
	if c.current != session || c.state != domain.SessionStateRecording {
		return nil
	}
	c.current = nil
	c.state = domain.SessionStateStopping

	return func() {
		session.stopWatching()
		c.teardown(session)
		c.finishAbort(session, err)
	}
}

func (c *RecordingController) teardown(session *recordingSession) {
	if session.levels != nil {
		session.levels.Detach()
	}
	session.channel.discard()
	if releaseErr := session.channel.release(); releaseErr != nil {
		c.logger.Warnf("device release failed session=%s: %v", session.id, releaseErr)
	}
}

func (c *RecordingController) finishAbort(session *recordingSession, err error) {
	c.mu.Lock()
	c.state = domain.SessionStateIdle
	c.mu.Unlock()

	if err != nil {
		c.logger.Errorf("recording aborted session=%s: %v", session.id, err)
		c.events.SessionError(domain.CodeOf(err), err.Error())
	} else {
		c.logger.Infof("recording discarded session=%s", session.id)
	}
	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingAborted)
}

// watch turns ticker, encoder and device signals into session events until quit.
func (c *RecordingController) watch(session *recordingSession) {
	defer close(session.watchDone)

	failed := session.channel.encoderFailed()
	lost := session.channel.device.Lost()
	for {
		select {
		case <-session.quit:
			return
		case <-session.ticker.C():
			c.handle(tickEvent{session: session})
		case err := <-failed:
			c.handle(encoderFailedEvent{session: session, err: err})
			return
		case err := <-lost:
			c.handle(deviceLostEvent{session: session, err: err})
			return
		}
	}
}
