package level

import (
	"sync"

	"fieldmic/internal/domain"
	"fieldmic/internal/ports"
)

// resolutionCeiling is the largest byte magnitude a spectrum bin can hold.
const resolutionCeiling = 255.0

// FrameFromSpectrum normalizes the first LevelBuckets bins into [0,1]. Missing bins stay 0.
func FrameFromSpectrum(bins []byte) domain.LevelFrame {
	var frame domain.LevelFrame
	for i := 0; i < domain.LevelBuckets && i < len(bins); i++ {
		v := float64(bins[i]) / resolutionCeiling
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		frame[i] = v
	}
	return frame
}

// Sampler turns a live spectrum into level frames once per display refresh.
type Sampler struct {
	scheduler ports.FrameScheduler
	onFrame   func(domain.LevelFrame)

	mu     sync.Mutex
	latest domain.LevelFrame
}

// NewSampler creates a sampler. onFrame may be nil.
func NewSampler(scheduler ports.FrameScheduler, onFrame func(domain.LevelFrame)) *Sampler {
	if onFrame == nil {
		onFrame = func(domain.LevelFrame) {}
	}
	return &Sampler{scheduler: scheduler, onFrame: onFrame}
}

// Latest returns the most recently published frame.
func (s *Sampler) Latest() domain.LevelFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *Sampler) publish(frame domain.LevelFrame) {
	s.mu.Lock()
	s.latest = frame
	s.mu.Unlock()
	s.onFrame(frame)
}

// Attach starts sampling source on every scheduler tick.
func (s *Sampler) Attach(source ports.SpectrumSource) *Session {
	session := &Session{
		sampler: s,
		source:  source,
		bins:    make([]byte, 16),
	}
	session.unsubscribe = s.scheduler.Subscribe(session.tick)
	return session
}

// Session is one attachment of a spectrum source.
type Session struct {
	sampler     *Sampler
	source      ports.SpectrumSource
	unsubscribe func()

	mu       sync.Mutex
	bins     []byte
	detached bool
}

func (s *Session) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return
	}
	n := s.source.FrequencyData(s.bins)
	s.sampler.publish(FrameFromSpectrum(s.bins[:n]))
}

// Detach stops sampling and resets the visible frame to zeros. No frame from this
// session is published after Detach returns.
func (s *Session) Detach() {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return
	}
	s.detached = true
	s.mu.Unlock()

	s.unsubscribe()
	s.sampler.publish(domain.LevelFrame{})
}
