package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fieldmic/internal/domain"
	"fieldmic/internal/logging"
	"fieldmic/internal/ports"
)

// ErrNothingToPlay is returned when a slot has neither text nor audio bound to it.
var ErrNothingToPlay = errors.New("nothing to play for this slot")

// Cache scopes understood by PlaybackManager.
const (
	CacheScopeText = "text"
	CacheScopeSlot = "slot"
)

// PlaybackConfig tunes the playback cache.
type PlaybackConfig struct {
	// CacheScope "text" shares synthesized audio between slots with identical text;
	// "slot" keys the cache by slot and text.
	CacheScope string
	// SynthesisTimeout bounds each synthesis fetch. Zero means no timeout.
	SynthesisTimeout time.Duration
}

// PlayRequest asks for audio in one slot. An empty Text plays whatever the slot already
// holds. A non-nil Artifact is played directly without synthesis.
type PlayRequest struct {
	Slot     string
	Text     string
	Artifact *domain.Artifact
}

// PlaybackManager plays original recordings and synthesized speech, fetching each
// distinct text at most once and caching the result for replay.
type PlaybackManager struct {
	synth  ports.SpeechSynthesizer
	player ports.Player
	events ports.EventSink
	logger logging.Logger
	cfg    PlaybackConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu sync.Mutex
	// cache holds resolved audio; pending holds the id of the single in-flight fetch per key.
	cache      map[string]domain.Artifact
	pending    map[string]uint64
	handles    map[string]*playerHandle
	generation uint64
}

type playerHandle struct {
	slot     string
	text     string
	artifact domain.Artifact
	state    domain.PlaybackState
	autoplay bool

	playback ports.Playback
	playID   uint64
}

type playbackNotice struct {
	slot  string
	state domain.PlaybackState
}

func NewPlaybackManager(
	synth ports.SpeechSynthesizer,
	player ports.Player,
	events ports.EventSink,
	logger logging.Logger,
	cfg PlaybackConfig,
) *PlaybackManager {
	if cfg.CacheScope == "" {
		cfg.CacheScope = CacheScopeText
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PlaybackManager{
		synth:   synth,
		player:  player,
		events:  events,
		logger:  logger,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		cache:   make(map[string]domain.Artifact),
		pending: make(map[string]uint64),
		handles: make(map[string]*playerHandle),
	}
}

// Bind associates text and, optionally, ready audio with a slot without playing it.
// Changing a slot's text discards the cached audio of its previous text. A fetch still in
// flight for that text keeps running so other slots can join it.
func (m *PlaybackManager) Bind(slot, text string, artifact *domain.Artifact) {
	m.mu.Lock()
	h := m.handleLocked(slot)
	notices := m.bindLocked(h, text)
	if artifact != nil && !artifact.Empty() {
		h.autoplay = false
		m.haltLocked(h)
		notices = append(notices, m.setStateLocked(h, domain.PlaybackStopped)...)
		h.artifact = *artifact
		if text != "" {
			m.cache[m.key(slot, text)] = *artifact
		}
	}
	m.mu.Unlock()

	m.notify(notices)
}

// Play starts audio for a slot. A cached or supplied artifact plays immediately; otherwise
// the text is synthesized once and played when the fetch completes. A second call while
// that fetch is pending does not fetch again.
func (m *PlaybackManager) Play(ctx context.Context, req PlayRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slot := req.Slot
	if slot == "" {
		slot = req.Text
	}
	if slot == "" {
		return ErrNothingToPlay
	}

	m.mu.Lock()
	h := m.handleLocked(slot)
	var notices []playbackNotice
	if req.Text != "" {
		notices = append(notices, m.bindLocked(h, req.Text)...)
	}

	if req.Artifact != nil && !req.Artifact.Empty() {
		h.artifact = *req.Artifact
		if h.text != "" {
			key := m.key(slot, h.text)
			if _, ok := m.cache[key]; !ok {
				m.cache[key] = *req.Artifact
			}
		}
		started, err := m.startLocked(h, *req.Artifact)
		m.mu.Unlock()
		return m.finishPlay(append(notices, started...), err)
	}

	if h.text == "" {
		if h.artifact.Empty() {
			m.mu.Unlock()
			m.notify(notices)
			return ErrNothingToPlay
		}
		started, err := m.startLocked(h, h.artifact)
		m.mu.Unlock()
		return m.finishPlay(append(notices, started...), err)
	}

	key := m.key(slot, h.text)
	var startErr error
	if artifact, ok := m.cache[key]; ok {
		var started []playbackNotice
		started, startErr = m.startLocked(h, artifact)
		notices = append(notices, started...)
	} else if _, ok := m.pending[key]; ok {
		if !h.autoplay {
			h.autoplay = true
			notices = append(notices, m.setStateLocked(h, domain.PlaybackLoading)...)
		}
	} else {
		m.generation++
		fetchID := m.generation
		m.pending[key] = fetchID
		h.autoplay = true
		notices = append(notices, m.setStateLocked(h, domain.PlaybackLoading)...)

		m.wg.Add(1)
		go m.fetch(key, h.text, fetchID)
		m.logger.Debugf("synthesis fetch issued slot=%s fetch=%d", slot, fetchID)
	}
	m.mu.Unlock()

	return m.finishPlay(notices, startErr)
}

func (m *PlaybackManager) finishPlay(notices []playbackNotice, err error) error {
	m.notify(notices)
	if err != nil {
		m.events.SessionError(domain.ErrorCodePlaybackFailure, err.Error())
	}
	return err
}

// Stop halts output in a slot and rewinds it. Cached audio stays available.
func (m *PlaybackManager) Stop(slot string) {
	m.mu.Lock()
	h, ok := m.handles[slot]
	if !ok {
		m.mu.Unlock()
		return
	}
	h.autoplay = false
	m.haltLocked(h)
	notices := m.setStateLocked(h, domain.PlaybackStopped)
	m.mu.Unlock()

	m.notify(notices)
}

// State returns the playback state of a slot.
func (m *PlaybackManager) State(slot string) domain.PlaybackState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.handles[slot]; ok {
		return h.state
	}
	return domain.PlaybackStopped
}

// Cached reports whether resolved audio for text is cached in the given slot's scope.
func (m *PlaybackManager) Cached(slot, text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cache[m.key(slot, text)]
	return ok
}

// Close stops every slot and waits for in-flight fetches to settle.
func (m *PlaybackManager) Close() {
	m.mu.Lock()
	for _, h := range m.handles {
		h.autoplay = false
		m.haltLocked(h)
		h.state = domain.PlaybackStopped
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

func (m *PlaybackManager) key(slot, text string) string {
	if m.cfg.CacheScope == CacheScopeSlot {
		return slot + "\x00" + text
	}
	return text
}

func (m *PlaybackManager) handleLocked(slot string) *playerHandle {
	h, ok := m.handles[slot]
	if !ok {
		h = &playerHandle{slot: slot, state: domain.PlaybackStopped}
		m.handles[slot] = h
	}
	return h
}

func (m *PlaybackManager) bindLocked(h *playerHandle, text string) []playbackNotice {
	if h.text == text {
		return nil
	}
	if h.text != "" {
		delete(m.cache, m.key(h.slot, h.text))
	}
	h.text = text
	h.artifact = domain.Artifact{}
	h.autoplay = false
	m.haltLocked(h)
	return m.setStateLocked(h, domain.PlaybackStopped)
}

func (m *PlaybackManager) haltLocked(h *playerHandle) {
	if h.playback == nil {
		return
	}
	playback := h.playback
	h.playback = nil
	h.playID++
	if err := playback.Stop(); err != nil {
		m.logger.Warnf("player stop failed slot=%s: %v", h.slot, err)
	}
}

func (m *PlaybackManager) startLocked(h *playerHandle, artifact domain.Artifact) ([]playbackNotice, error) {
	m.haltLocked(h)
	h.autoplay = false

	playback, err := m.player.Play(m.ctx, artifact)
	if err != nil {
		m.logger.Errorf("playback failed to start slot=%s: %v", h.slot, err)
		if !errors.Is(err, domain.ErrPlaybackFailure) {
			err = fmt.Errorf("%w: %v", domain.ErrPlaybackFailure, err)
		}
		return m.setStateLocked(h, domain.PlaybackStopped), err
	}

	h.playback = playback
	h.playID++
	playID := h.playID
	go func() {
		err := <-playback.Done()
		m.handle(playbackEndedEvent{slot: h.slot, playID: playID, err: err})
	}()
	return m.setStateLocked(h, domain.PlaybackPlaying), nil
}

func (m *PlaybackManager) setStateLocked(h *playerHandle, state domain.PlaybackState) []playbackNotice {
	if h.state == state {
		return nil
	}
	h.state = state
	return []playbackNotice{{slot: h.slot, state: state}}
}

func (m *PlaybackManager) notify(notices []playbackNotice) {
	for _, n := range notices {
		m.events.PlaybackChanged(n.slot, n.state)
	}
}

func (m *PlaybackManager) fetch(key, text string, fetchID uint64) {
	defer m.wg.Done()

	ctx := m.ctx
	if m.cfg.SynthesisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.SynthesisTimeout)
		defer cancel()
	}

	artifact, err := m.synth.Synthesize(ctx, text)
	if err == nil && artifact.Empty() {
		err = fmt.Errorf("%w: synthesis returned no audio", domain.ErrNetworkFailure)
	}
	m.handle(fetchResultEvent{key: key, fetchID: fetchID, artifact: artifact, err: err})
}

type playbackEvent interface {
	isPlaybackEvent()
}

type fetchResultEvent struct {
	key      string
	fetchID  uint64
	artifact domain.Artifact
	err      error
}

type playbackEndedEvent struct {
	slot   string
	playID uint64
	err    error
}

func (fetchResultEvent) isPlaybackEvent()   {}
func (playbackEndedEvent) isPlaybackEvent() {}

func (m *PlaybackManager) handle(ev playbackEvent) {
	m.mu.Lock()
	notices, failure := m.apply(ev)
	m.mu.Unlock()

	m.notify(notices)
	if failure != nil {
		m.events.SessionError(domain.CodeOf(failure), failure.Error())
	}
}

func (m *PlaybackManager) apply(ev playbackEvent) ([]playbackNotice, error) {
	switch ev := ev.(type) {
	case fetchResultEvent:
		if id, ok := m.pending[ev.key]; !ok || id != ev.fetchID {
			m.logger.Debugf("discarding stale synthesis result fetch=%d", ev.fetchID)
			return nil, nil
		}
		delete(m.pending, ev.key)

		var notices []playbackNotice
		if ev.err != nil {
			for _, h := range m.waitingLocked(ev.key) {
				h.autoplay = false
				notices = append(notices, m.setStateLocked(h, domain.PlaybackStopped)...)
			}
			m.logger.Warnf("synthesis failed fetch=%d: %v", ev.fetchID, ev.err)
			err := ev.err
			if !errors.Is(err, domain.ErrNetworkFailure) {
				err = fmt.Errorf("%w: %v", domain.ErrNetworkFailure, err)
			}
			return notices, err
		}

		// Audio supplied by a caller while the fetch ran stays in place.
		if _, ok := m.cache[ev.key]; !ok && m.boundLocked(ev.key) {
			m.cache[ev.key] = ev.artifact
		}
		var failure error
		for _, h := range m.waitingLocked(ev.key) {
			started, err := m.startLocked(h, ev.artifact)
			notices = append(notices, started...)
			if err != nil {
				failure = err
			}
		}
		return notices, failure

	case playbackEndedEvent:
		h, ok := m.handles[ev.slot]
		if !ok || h.playID != ev.playID || h.playback == nil {
			return nil, nil
		}
		h.playback = nil
		notices := m.setStateLocked(h, domain.PlaybackStopped)
		if ev.err != nil {
			m.logger.Errorf("playback failed slot=%s: %v", ev.slot, ev.err)
		}
		return notices, nil
	}
	return nil, nil
}

// boundLocked reports whether any slot still holds the text behind key.
func (m *PlaybackManager) boundLocked(key string) bool {
	for _, h := range m.handles {
		if h.text != "" && m.key(h.slot, h.text) == key {
			return true
		}
	}
	return false
}

func (m *PlaybackManager) waitingLocked(key string) []*playerHandle {
	var waiting []*playerHandle
	for _, h := range m.handles {
		if h.autoplay && h.text != "" && m.key(h.slot, h.text) == key {
			waiting = append(waiting, h)
		}
	}
	return waiting
}
