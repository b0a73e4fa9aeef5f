package bootstrap

import (
	"sync"

	"fieldmic/internal/domain"
	"fieldmic/internal/ports"
)

// FanOut forwards every event to all registered sinks. Hosts attach their own sink (Wails
// runtime events, the websocket hub, the CLI printer) after Build.
type FanOut struct {
	mu    sync.RWMutex
	next  int
	sinks map[int]ports.EventSink
}

func NewFanOut() *FanOut {
	return &FanOut{sinks: make(map[int]ports.EventSink)}
}

// Add registers sink and returns a func that removes it.
func (f *FanOut) Add(sink ports.EventSink) func() {
	if sink == nil {
		return func() {}
	}
	f.mu.Lock()
	f.next++
	id := f.next
	f.sinks[id] = sink
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.sinks, id)
		f.mu.Unlock()
	}
}

func (f *FanOut) each(fn func(ports.EventSink)) {
	f.mu.RLock()
	sinks := make([]ports.EventSink, 0, len(f.sinks))
	for _, sink := range f.sinks {
		sinks = append(sinks, sink)
	}
	f.mu.RUnlock()

	for _, sink := range sinks {
		fn(sink)
	}
}

func (f *FanOut) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	f.each(func(s ports.EventSink) { s.SessionStateChanged(state, reason) })
}

func (f *FanOut) ElapsedChanged(seconds int) {
	f.each(func(s ports.EventSink) { s.ElapsedChanged(seconds) })
}

func (f *FanOut) LevelsChanged(frame domain.LevelFrame) {
	f.each(func(s ports.EventSink) { s.LevelsChanged(frame) })
}

func (f *FanOut) PlaybackChanged(slot string, state domain.PlaybackState) {
	f.each(func(s ports.EventSink) { s.PlaybackChanged(slot, state) })
}

func (f *FanOut) ReportReady(report domain.Report) {
	f.each(func(s ports.EventSink) { s.ReportReady(report) })
}

func (f *FanOut) SessionError(code domain.ErrorCode, detail string) {
	f.each(func(s ports.EventSink) { s.SessionError(code, detail) })
}

// NopSink ignores every event. Embed it to implement only the events you need.
type NopSink struct{}

func (NopSink) SessionStateChanged(domain.SessionState, domain.SessionStateReason) {}
func (NopSink) ElapsedChanged(int)                                                {}
func (NopSink) LevelsChanged(domain.LevelFrame)                                   {}
func (NopSink) PlaybackChanged(string, domain.PlaybackState)                      {}
func (NopSink) ReportReady(domain.Report)                                         {}
func (NopSink) SessionError(domain.ErrorCode, string)                             {}
