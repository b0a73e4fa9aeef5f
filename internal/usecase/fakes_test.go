package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fieldmic/internal/domain"
	"fieldmic/internal/ports"
)

type fakeCapture struct {
	mu      sync.Mutex
	devices []*fakeDevice
	err     error
	calls   int
}

func (f *fakeCapture) Open(_ context.Context, _ ports.Constraints) (ports.DeviceHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.devices) == 0 {
		return nil, domain.ErrDeviceUnavailable
	}
	device := f.devices[0]
	f.devices = f.devices[1:]
	return device, nil
}

type fakeDevice struct {
	mu           sync.Mutex
	bins         []byte
	encoder      *fakeEncoder
	beginErr     error
	lost         chan error
	releaseCalls int
}

func newFakeDevice(encoder *fakeEncoder) *fakeDevice {
	return &fakeDevice{
		bins:    []byte{255, 128, 0, 64, 32, 12, 12},
		encoder: encoder,
		lost:    make(chan error, 1),
	}
}

func (d *fakeDevice) FrequencyData(dst []byte) int {
	return copy(dst, d.bins)
}

func (d *fakeDevice) BeginEncoding(_ context.Context, _ ports.EncodingOptions, onChunk ports.ChunkFunc) (ports.EncoderSession, error) {
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	d.encoder.mu.Lock()
	d.encoder.onChunk = onChunk
	d.encoder.mu.Unlock()
	return d.encoder, nil
}

func (d *fakeDevice) Lost() <-chan error { return d.lost }

func (d *fakeDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseCalls++
	return nil
}

func (d *fakeDevice) released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.releaseCalls > 0
}

type fakeEncoder struct {
	mu        sync.Mutex
	mime      string
	onChunk   ports.ChunkFunc
	flush     [][]byte
	failed    chan error
	stopErr   error
	stopCalls int
}

func newFakeEncoder(flush ...[]byte) *fakeEncoder {
	return &fakeEncoder{
		mime:   "audio/webm;codecs=opus",
		flush:  flush,
		failed: make(chan error, 1),
	}
}

func (e *fakeEncoder) emit(chunk []byte) {
	e.mu.Lock()
	onChunk := e.onChunk
	e.mu.Unlock()
	onChunk(chunk)
}

func (e *fakeEncoder) MimeType() string      { return e.mime }
func (e *fakeEncoder) Failed() <-chan error { return e.failed }

func (e *fakeEncoder) Stop() error {
	e.mu.Lock()
	e.stopCalls++
	first := e.stopCalls == 1
	flush := e.flush
	onChunk := e.onChunk
	e.mu.Unlock()

	if first {
		for _, chunk := range flush {
			onChunk(chunk)
		}
	}
	return e.stopErr
}

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) ports.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	ticker := &fakeTicker{ch: make(chan time.Time)}
	c.tickers = append(c.tickers, ticker)
	return ticker
}

func (c *fakeClock) last() *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickers[len(c.tickers)-1]
}

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeScheduler struct {
	mu   sync.Mutex
	subs map[int]func()
	next int
}

func (s *fakeScheduler) Subscribe(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]func())
	}
	s.next++
	id := s.next
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *fakeScheduler) tick() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *fakeScheduler) subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

type fakeSynth struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
	gate  chan struct{}
	delay func(ctx context.Context) error
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (domain.Artifact, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[text]++
	gate := f.gate
	err := f.err
	delay := f.delay
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if delay != nil {
		if err := delay(ctx); err != nil {
			return domain.Artifact{}, err
		}
	}
	if err != nil {
		return domain.Artifact{}, err
	}
	return domain.Artifact{MimeType: "audio/mpeg", Data: []byte("tts:" + text)}, nil
}

func (f *fakeSynth) count(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

func (f *fakeSynth) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakePlayer struct {
	mu        sync.Mutex
	err       error
	played    []domain.Artifact
	playbacks []*fakePlayback
}

func (p *fakePlayer) Play(_ context.Context, artifact domain.Artifact) (ports.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	playback := &fakePlayback{done: make(chan error, 1)}
	p.played = append(p.played, artifact)
	p.playbacks = append(p.playbacks, playback)
	return playback, nil
}

func (p *fakePlayer) plays() []domain.Artifact {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Artifact(nil), p.played...)
}

func (p *fakePlayer) lastPlayback() *fakePlayback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playbacks[len(p.playbacks)-1]
}

type fakePlayback struct {
	mu      sync.Mutex
	done    chan error
	stopped int
	ended   bool
}

func (p *fakePlayback) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped++
	if !p.ended {
		p.ended = true
		p.done <- nil
	}
	return nil
}

func (p *fakePlayback) Done() <-chan error { return p.done }

func (p *fakePlayback) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ended {
		p.ended = true
		p.done <- err
	}
}

func (p *fakePlayback) stopCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

type fakeAnalyzer struct {
	mu       sync.Mutex
	report   domain.Report
	err      error
	received []domain.Artifact
}

func (f *fakeAnalyzer) Analyze(_ context.Context, recording domain.Artifact) (domain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, recording)
	if f.err != nil {
		return domain.Report{}, f.err
	}
	return f.report, nil
}

type fakeStore struct {
	mu      sync.Mutex
	reports []domain.Report
	err     error
	deleted []string
}

func (f *fakeStore) ListMessages(context.Context) ([]domain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Report(nil), f.reports...), nil
}

func (f *fakeStore) DeleteMessage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeClipboard struct {
	lastText string
	err      error
}

func (f *fakeClipboard) SetText(_ context.Context, text string) error {
	f.lastText = text
	return f.err
}

type fakeEventSink struct {
	mu sync.Mutex

	states   []stateEvent
	elapsed  []int
	levels   []domain.LevelFrame
	playback []playbackEvt
	reports  []domain.Report
	errors   []errEvent

	onState func(state domain.SessionState)
}

type stateEvent struct {
	state  domain.SessionState
	reason domain.SessionStateReason
}

type playbackEvt struct {
	slot  string
	state domain.PlaybackState
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	f.mu.Lock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
	hook := f.onState
	f.mu.Unlock()
	if hook != nil {
		hook(state)
	}
}

func (f *fakeEventSink) ElapsedChanged(seconds int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.elapsed = append(f.elapsed, seconds)
}

func (f *fakeEventSink) LevelsChanged(frame domain.LevelFrame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, frame)
}

func (f *fakeEventSink) PlaybackChanged(slot string, state domain.PlaybackState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playback = append(f.playback, playbackEvt{slot: slot, state: state})
}

func (f *fakeEventSink) ReportReady(report domain.Report) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateEvent(nil), f.states...)
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errEvent(nil), f.errors...)
}

func (f *fakeEventSink) snapshotElapsed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.elapsed...)
}

func (f *fakeEventSink) snapshotLevels() []domain.LevelFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.LevelFrame(nil), f.levels...)
}

func (f *fakeEventSink) snapshotReports() []domain.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Report(nil), f.reports...)
}

func (f *fakeEventSink) hasError(code domain.ErrorCode) bool {
	for _, e := range f.snapshotErrors() {
		if e.code == code {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errBoom = errors.New("boom")
