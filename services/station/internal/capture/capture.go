// Package capture turns interrupt edges from pulse sensors (rain gauge
// bucket tips, anemometer rotations) into per-window measurements.
//
// The ISR side only timestamps the edge and does a non-blocking send into a
// bounded Queue. A Counter goroutine drains the queue, debounces, and on each
// window boundary publishes a rate or accumulated value to the sample store.
package capture

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"meteostation/services/station/internal/sample"
	"meteostation/services/station/internal/util"
	"meteostation/x/timex"
)

// MinQueueLen is the smallest edge queue the package will build.
const MinQueueLen = 10

// RawEvent is one interrupt edge, stamped on a monotonic microsecond clock.
type RawEvent struct {
	TimestampUs int64
}

// Queue is the ISR to task hand-off. OnEdge never blocks or allocates.
type Queue struct {
	ch    chan RawEvent
	drops uint32
}

func NewQueue(n int) *Queue {
	if n < MinQueueLen {
		n = MinQueueLen
	}
	return &Queue{ch: make(chan RawEvent, n)}
}

// OnEdge enqueues an event; when the queue is full it is dropped and false
// is returned. Safe to call from interrupt context.
func (q *Queue) OnEdge(tsUs int64) bool {
	select {
	case q.ch <- RawEvent{TimestampUs: tsUs}:
		return true
	default:
		atomic.AddUint32(&q.drops, 1)
		return false
	}
}

func (q *Queue) Events() <-chan RawEvent { return q.ch }
func (q *Queue) Len() int                { return len(q.ch) }
func (q *Queue) Cap() int                { return cap(q.ch) }
func (q *Queue) Drops() uint32           { return atomic.LoadUint32(&q.drops) }

// Debouncer holds the per-source acceptance state. Not safe for concurrent
// use; a Counter owns exactly one.
type Debouncer struct {
	interval int64 // µs
	last     int64
	seen     bool
	count    uint32
	total    uint64
}

func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: timex.Us(interval)}
}

// Offer applies the debounce rule: the first event is always accepted,
// later ones only if at least interval has passed since the last accepted.
func (d *Debouncer) Offer(tsUs int64) bool {
	if d.seen && tsUs-d.last < d.interval {
		return false
	}
	d.seen = true
	d.last = tsUs
	d.count++
	d.total++
	return true
}

// Consume returns the accepted count of the current window and resets it.
func (d *Debouncer) Consume() uint32 {
	n := d.count
	d.count = 0
	return n
}

// Total is the lifetime accepted count.
func (d *Debouncer) Total() uint64 { return d.total }

// Mode selects how a window count becomes a value.
type Mode uint8

const (
	// ModeRate publishes count / window seconds × scale (e.g. Hz → km/h).
	ModeRate Mode = iota
	// ModeAccumulate publishes count × scale (e.g. tips → mm).
	ModeAccumulate
)

func (m Mode) String() string {
	switch m {
	case ModeRate:
		return "rate"
	case ModeAccumulate:
		return "accumulate"
	}
	return "unknown"
}

type CounterConfig struct {
	Name     string
	Field    sample.Field
	Debounce time.Duration
	Window   time.Duration
	Scale    float64
	Mode     Mode
	QueueLen int
}

// Counter is one pulse source: its queue, its debouncer and the goroutine
// that publishes window values.
type Counter struct {
	cfg   CounterConfig
	q     *Queue
	deb   *Debouncer
	store sample.Writer
	log   *slog.Logger

	total   atomic.Uint64
	windows atomic.Uint64
}

func NewCounter(cfg CounterConfig, store sample.Writer, log *slog.Logger) *Counter {
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Counter{
		cfg:   cfg,
		q:     NewQueue(cfg.QueueLen),
		deb:   NewDebouncer(cfg.Debounce),
		store: store,
		log:   log.With("component", "capture", "source", cfg.Name),
	}
}

func (c *Counter) Name() string { return c.cfg.Name }

// OnEdge is the interrupt entry point.
func (c *Counter) OnEdge(tsUs int64) bool { return c.q.OnEdge(tsUs) }

func (c *Counter) Drops() uint32 { return c.q.Drops() }

// Queued is the number of edges waiting to be debounced.
func (c *Counter) Queued() int { return c.q.Len() }

// Total is the lifetime accepted event count.
func (c *Counter) Total() uint64 { return c.total.Load() }

// Windows is the number of window values published so far.
func (c *Counter) Windows() uint64 { return c.windows.Load() }

// Value converts a window count to the published measurement.
func (c *Counter) Value(count uint32) float64 {
	switch c.cfg.Mode {
	case ModeAccumulate:
		return float64(count) * c.cfg.Scale
	default:
		return float64(count) / c.cfg.Window.Seconds() * c.cfg.Scale
	}
}

// Run drains the queue and publishes one value per window until ctx is done.
// A window with no accepted events publishes zero. Boundaries stay on a fixed
// grid from start; time spent waiting on the store does not stretch a window.
func (c *Counter) Run(ctx context.Context) {
	next := time.Now().Add(c.cfg.Window)
	win := time.NewTimer(c.cfg.Window)
	defer win.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.q.Events():
			if c.deb.Offer(ev.TimestampUs) {
				c.total.Add(1)
			}
		case <-win.C:
			next = next.Add(c.cfg.Window)
			c.flush(ctx)
			util.ResetTimer(win, time.Until(next))
		}
	}
}

func (c *Counter) flush(ctx context.Context) {
	n := c.deb.Consume()
	v := c.Value(n)
	c.windows.Add(1)
	if err := c.store.Update(ctx, c.cfg.Field, v); err != nil {
		c.log.Warn("window value dropped", "field", c.cfg.Field.String(), "count", n, "err", err)
		return
	}
	c.log.Debug("window", "field", c.cfg.Field.String(), "count", n, "value", v)
}
