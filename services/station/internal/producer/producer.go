// Package producer polls one sensor Source on a fixed period and writes its
// values into the sample store.
package producer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"meteostation/services/station/internal/sample"
	"meteostation/services/station/internal/sensors"
)

type Config struct {
	Period      time.Duration // default 1 s
	ReadTimeout time.Duration // default 500 ms
}

type Stats struct {
	Reads     uint64
	Failures  uint64
	Dropped   uint64 // store writes lost to lock contention
	LastError string
}

type Producer struct {
	cfg   Config
	src   sensors.Source
	store sample.Writer
	log   *slog.Logger

	reads, failures, dropped atomic.Uint64
	lastErr                  atomic.Value // string
}

func New(cfg Config, src sensors.Source, store sample.Writer, log *slog.Logger) *Producer {
	if cfg.Period <= 0 {
		cfg.Period = time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Producer{
		cfg:   cfg,
		src:   src,
		store: store,
		log:   log.With("component", "producer", "source", src.Name()),
	}
}

func (p *Producer) Name() string { return p.src.Name() }

// Run reads once immediately, then once per period, until ctx is done.
func (p *Producer) Run(ctx context.Context) {
	t := time.NewTicker(p.cfg.Period)
	defer t.Stop()
	for {
		p.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Poll performs one read-and-store cycle. Failures are counted, logged and
// otherwise ignored.
func (p *Producer) Poll(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, p.cfg.ReadTimeout)
	vals, err := p.src.Read(rctx)
	cancel()
	p.reads.Add(1)
	if err != nil {
		p.failures.Add(1)
		p.lastErr.Store(err.Error())
		p.log.Warn("read failed", "err", err)
		return
	}
	if len(vals) == 0 {
		return
	}
	if err := p.store.UpdateMany(ctx, vals...); err != nil {
		p.dropped.Add(1)
		p.log.Warn("store update dropped", "err", err)
	}
}

func (p *Producer) Stats() Stats {
	s := Stats{
		Reads:    p.reads.Load(),
		Failures: p.failures.Load(),
		Dropped:  p.dropped.Load(),
	}
	if v, ok := p.lastErr.Load().(string); ok {
		s.LastError = v
	}
	return s
}
