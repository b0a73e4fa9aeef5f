package frameclock

import (
	"sync"
	"sync/atomic"
	"time"
)

const defaultFPS = 60

// Clock delivers display-refresh ticks to subscribers. It runs a ticker goroutine only
// while the view is visible and at least one subscriber is registered.
type Clock struct {
	interval time.Duration

	mu      sync.Mutex
	subs    map[uint64]*subscription
	nextID  uint64
	visible bool
	stop    chan struct{}
	done    chan struct{}
	closed  bool
}

type subscription struct {
	fn     func()
	active atomic.Bool
}

// New creates a visible clock ticking fps times per second.
func New(fps int) *Clock {
	if fps <= 0 {
		fps = defaultFPS
	}
	return &Clock{
		interval: time.Second / time.Duration(fps),
		subs:     make(map[uint64]*subscription),
		visible:  true,
	}
}

// Subscribe registers fn for every tick. The returned func unsubscribes; it does not
// wait for a tick already in progress, so it is safe to call from inside fn.
func (c *Clock) Subscribe(fn func()) func() {
	sub := &subscription{fn: fn}
	sub.active.Store(true)

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs[id] = sub
	c.reconcileLocked()
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			c.mu.Lock()
			delete(c.subs, id)
			c.reconcileLocked()
			c.mu.Unlock()
		})
	}
}

// SetVisible pauses or resumes ticking as the view is hidden or shown.
func (c *Clock) SetVisible(visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = visible
	c.reconcileLocked()
}

// Visible reports whether the view is currently visible.
func (c *Clock) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// Running reports whether the ticker goroutine is active.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

// Close stops ticking for good and waits for the ticker goroutine to exit.
func (c *Clock) Close() {
	c.mu.Lock()
	c.closed = true
	c.reconcileLocked()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (c *Clock) reconcileLocked() {
	want := !c.closed && c.visible && len(c.subs) > 0
	switch {
	case want && c.stop == nil:
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		go c.run(c.stop, c.done)
	case !want && c.stop != nil:
		close(c.stop)
		c.stop = nil
	}
}

func (c *Clock) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick(stop)
		}
	}
}

func (c *Clock) tick(stop <-chan struct{}) {
	c.mu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		select {
		case <-stop:
			return
		default:
		}
		if sub.active.Load() {
			sub.fn()
		}
	}
}
