// Package uplink pushes snapshots to the collector and keeps the station
// authorised, as a three-state machine driven by HTTP status codes.
package uplink

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"meteostation/errcode"
	"meteostation/services/station/internal/sample"
	"meteostation/services/station/internal/util"
)

const (
	DefaultPeriod     = 5 * time.Second
	DefaultStartDelay = 3 * time.Second
)

// Snapshotter is the read side of the sample store.
type Snapshotter interface {
	Snapshot(ctx context.Context) (sample.MeteoSample, error)
}

// Tokens is the token slot as seen by the uplink.
type Tokens interface {
	Current() (string, bool)
	Replace(body []byte) error
}

// Report describes one tick. Skipped ticks carry the skip reason in Err
// and Status 0.
type Report struct {
	At     time.Time
	From   State
	To     State
	Status int
	Sample sample.MeteoSample
	Err    error
}

type Config struct {
	SSID       string
	Period     time.Duration
	StartDelay time.Duration
}

type Machine struct {
	cfg   Config
	store Snapshotter
	toks  Tokens
	tx    Transport
	log   *slog.Logger

	state atomic.Uint32

	// OnTick, when set, is called synchronously after every tick.
	OnTick func(Report)
}

func New(cfg Config, store Snapshotter, toks Tokens, tx Transport, log *slog.Logger) *Machine {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.StartDelay < 0 {
		cfg.StartDelay = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		cfg:   cfg,
		store: store,
		toks:  toks,
		tx:    tx,
		log:   log.With("component", "uplink"),
	}
}

func (m *Machine) State() State { return State(m.state.Load()) }

// Run waits StartDelay, then ticks once per Period until ctx is done.
// There is no immediate retry: a failed tick waits for the next period.
func (m *Machine) Run(ctx context.Context) {
	if !util.Sleep(ctx, m.cfg.StartDelay) {
		return
	}
	t := time.NewTicker(m.cfg.Period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Tick(ctx)
		}
	}
}

// Tick performs one protocol step and returns what happened.
func (m *Machine) Tick(ctx context.Context) Report {
	from := m.State()
	r := m.tick(ctx, from)
	r.At = time.Now()
	r.From = from
	m.state.Store(uint32(r.To))
	if r.To != from {
		m.log.Info("state change", "from", from.String(), "to", r.To.String(), "status", r.Status)
	}
	if m.OnTick != nil {
		m.OnTick(r)
	}
	return r
}

func (m *Machine) tick(ctx context.Context, st State) Report {
	r := Report{To: st}

	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		m.log.Warn("snapshot unavailable, skipping send", "err", err)
		r.Err = err
		return r
	}
	r.Sample = snap

	tok, ok := m.toks.Current()
	if !ok {
		m.log.Warn("no token, skipping send")
		r.Err = &errcode.E{C: errcode.NoToken, Op: "uplink.tick"}
		return r
	}

	body, err := EncodePayload(snap, m.cfg.SSID)
	if err != nil {
		m.log.Warn("encode failed, skipping send", "err", err)
		r.Err = err
		return r
	}

	m.log.Debug("posting", "state", st.String(), "endpoint", st.Endpoint())
	resp, err := m.tx.Post(ctx, st.Endpoint(), tok, body)
	r.Status = resp.Status
	if err != nil && resp.Status <= 0 {
		m.log.Warn("post failed", "endpoint", st.Endpoint(), "err", err)
		r.Status = StatusTransportError
		r.Err = err
		return r
	}

	next, act := Next(st, resp.Status)
	switch act {
	case ActLog:
		m.log.Warn("collector rejected request", "endpoint", st.Endpoint(), "status", resp.Status, "body", string(resp.Body))
	case ActReplaceToken:
		// An empty or unusable body keeps the old token and retries the refresh.
		if err := m.toks.Replace(resp.Body); err != nil {
			m.log.Warn("token refresh rejected, keeping current token", "err", err)
			r.Err = err
			return r
		}
		m.log.Info("token refreshed")
	default:
		if resp.Status == 200 {
			m.log.Debug("ok", "endpoint", st.Endpoint())
		}
	}
	r.To = next
	return r
}
