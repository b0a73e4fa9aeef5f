package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"fieldmic/internal/bootstrap"
	"fieldmic/internal/domain"
)

var levelGlyphs = []rune(" ▁▂▃▄▅▆▇█")

// consoleSink renders session progress on a terminal.
type consoleSink struct {
	bootstrap.NopSink

	out io.Writer

	mu         sync.Mutex
	elapsed    int
	levels     domain.LevelFrame
	lastRender time.Time
	recording  bool
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out}
}

func (c *consoleSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording {
		fmt.Fprintln(c.out)
	}
	c.recording = state == domain.SessionStateRecording
	fmt.Fprintf(c.out, "[%s] %s\n", state, reason)
}

func (c *consoleSink) ElapsedChanged(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed = seconds
	c.renderLocked()
}

func (c *consoleSink) LevelsChanged(frame domain.LevelFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levels = frame
	if time.Since(c.lastRender) >= 100*time.Millisecond {
		c.renderLocked()
	}
}

func (c *consoleSink) PlaybackChanged(slot string, state domain.PlaybackState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "playback %s: %s\n", slot, state)
}

func (c *consoleSink) SessionError(code domain.ErrorCode, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "error (%s): %s\n", code, detail)
}

func (c *consoleSink) renderLocked() {
	if !c.recording {
		return
	}
	c.lastRender = time.Now()
	fmt.Fprintf(c.out, "\r● %s %s", domain.FormatElapsed(c.elapsed), levelBar(c.levels))
}

func levelBar(frame domain.LevelFrame) string {
	var b strings.Builder
	top := len(levelGlyphs) - 1
	for _, v := range frame {
		idx := int(v*float64(top) + 0.5)
		if idx < 0 {
			idx = 0
		}
		if idx > top {
			idx = top
		}
		b.WriteRune(levelGlyphs[idx])
	}
	return b.String()
}

// playbackWatcher waits for one slot to finish playing.
type playbackWatcher struct {
	bootstrap.NopSink

	slot string
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	active  bool
	failure error
}

func newPlaybackWatcher(slot string) *playbackWatcher {
	return &playbackWatcher{slot: slot, done: make(chan struct{})}
}

func (w *playbackWatcher) PlaybackChanged(slot string, state domain.PlaybackState) {
	if slot != w.slot {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if state != domain.PlaybackStopped {
		w.active = true
		return
	}
	if w.active {
		w.once.Do(func() { close(w.done) })
	}
}

func (w *playbackWatcher) SessionError(code domain.ErrorCode, detail string) {
	if code != domain.ErrorCodeNetworkFailure && code != domain.ErrorCodePlaybackFailure {
		return
	}
	w.mu.Lock()
	w.failure = fmt.Errorf("%s: %s", code, detail)
	w.mu.Unlock()
	w.once.Do(func() { close(w.done) })
}

// Wait blocks until the slot stops or fails.
func (w *playbackWatcher) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.failure
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printReport(out io.Writer, report domain.Report) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	row := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", label, value)
		}
	}
	row("ID", report.ID)
	row("Time", report.Timestamp.Format("2006-01-02 15:04:05"))
	row("Status", string(report.Status))
	row("Summary", report.Summary)
	row("Original", report.OriginalText)

	ex := report.Extraction
	if ex == nil {
		return
	}
	for _, field := range []struct{ label, value string }{
		{"Command", ex.Command},
		{"Direction", ex.Direction},
		{"Location", ex.Location},
		{"Target", ex.Target},
		{"Notes", ex.Notes},
	} {
		if ex.Mentioned(field.value) {
			row(field.label, field.value)
		}
	}
	row("Urgency", string(ex.Urgency))
	row("Confidence", string(ex.Confidence))
	for _, quote := range ex.OriginalQuotes {
		row("Quote", quote)
	}
	if ex.NeedsReview() {
		row("Review", strings.Join(ex.ValidationIssues, "; "))
	}
}

func printMessages(out io.Writer, reports []domain.Report) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tTIME\tURGENCY\tSUMMARY")
	for _, report := range reports {
		urgency := string(domain.UrgencyUnspecified)
		if report.Extraction != nil {
			urgency = string(report.Extraction.Urgency)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", report.ID, report.Timestamp.Format("01-02 15:04"), urgency, report.Summary)
	}
}
