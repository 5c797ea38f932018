package alarm

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of Schedule calls into one deferred run
// of fn: each call re-arms the timer, so fn fires once the calls go
// quiet for the full delay.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewDebouncer builds a debouncer; nothing fires until Schedule.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Schedule arms (or re-arms) the deferred run.
func (d *Debouncer) Schedule() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

// Stop cancels any pending run; further Schedule calls are no-ops.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Periodic runs fn on a fixed interval until stopped. It is the
// standing alarm of the pipeline: progress is guaranteed even when a
// debounce timer was lost to a restart.
type Periodic struct {
	interval time.Duration
	fn       func()

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewPeriodic builds a periodic alarm; nothing runs until Start.
func NewPeriodic(interval time.Duration, fn func()) *Periodic {
	return &Periodic{interval: interval, fn: fn}
}

// Start begins the ticking loop. Starting a running alarm is a no-op.
func (p *Periodic) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		return
	}
	p.stopCh = make(chan struct{})
	go p.run(p.stopCh)
}

// Stop halts the loop. The alarm can be started again afterwards.
func (p *Periodic) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh == nil {
		return
	}
	close(p.stopCh)
	p.stopCh = nil
}

func (p *Periodic) run(stop chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.fn()
		case <-stop:
			return
		}
	}
}
