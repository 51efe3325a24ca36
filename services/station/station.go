// Package station assembles the meteo station: sensors and pulse counters
// feeding the sample store, and the uplink pushing snapshots to the
// collector. Supporting services (config, heartbeat, MQTT mirror) talk over
// the in-process bus.
package station

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"meteostation/bus"
	"meteostation/errcode"
	"meteostation/services/config"
	"meteostation/services/heartbeat"
	"meteostation/services/mirror"
	"meteostation/services/station/internal/capture"
	"meteostation/services/station/internal/platform"
	"meteostation/services/station/internal/producer"
	"meteostation/services/station/internal/sample"
	"meteostation/services/station/internal/sensors"
	"meteostation/services/station/internal/token"
	"meteostation/services/station/internal/uplink"
	"meteostation/types"
)

var (
	TopicInfo        = bus.T("station", "info")
	TopicSnapshot    = bus.T("station", "snapshot")
	TopicUplinkState = bus.T("station", "uplink", "state")
)

// Options carries optional overrides, mostly for tests.
type Options struct {
	Version string
	Bus     *bus.Bus

	Transport uplink.Transport   // replaces the HTTP uplink transport
	Hardware  *platform.Hardware // replaces platform.Open
	MQTTDial  mirror.Dialer      // replaces the paho dialer
}

type Station struct {
	cfg    config.Config
	log    *slog.Logger
	opts   Options
	chipID string

	bus  *bus.Bus
	conn *bus.Connection
	hw   *platform.Hardware

	store     *sample.Store
	counters  []*capture.Counter
	pins      []capture.IRQPin
	sources   []sensors.Source
	producers []*producer.Producer
	toks      *token.Manager
	machine   *uplink.Machine

	cfgSvc *config.Service
	hb     *heartbeat.Service
	mirror *mirror.Service
}

// New builds every component without starting any goroutine.
func New(cfg config.Config, log *slog.Logger, opts Options) (*Station, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Station{cfg: cfg, log: log.With("component", "station"), opts: opts}

	s.bus = opts.Bus
	if s.bus == nil {
		s.bus = bus.NewBus(16)
	}
	s.conn = s.bus.NewConnection("station")

	s.hw = opts.Hardware
	if s.hw == nil {
		hw, err := platform.Open(platform.Pins(cfg.Pins))
		if err != nil {
			return nil, errcode.Wrap(errcode.Unavailable, "platform.open", err)
		}
		s.hw = hw
	}

	s.chipID = cfg.Station.ChipID
	if s.chipID == "" {
		id, err := platform.ChipID()
		if err != nil {
			s.log.Warn("no chip id", "err", err)
		}
		s.chipID = id
	}

	s.store = sample.NewStore(cfg.Station.LockWait)
	s.buildCounters()
	s.buildProducers()
	s.buildUplink()

	s.cfgSvc = config.NewService(cfg)
	s.hb = heartbeat.New(log)
	s.registerProbes()
	s.mirror = mirror.New(s.bus.NewConnection("mirror"), opts.MQTTDial, log)
	return s, nil
}

func (s *Station) buildCounters() {
	for _, c := range []struct {
		name  string
		field sample.Field
		mode  capture.Mode
		p     config.Pulse
		pin   capture.IRQPin
	}{
		{"rain", sample.Rainfall, capture.ModeAccumulate, s.cfg.Capture.Rain, s.hw.Rain},
		{"wind", sample.WindSpeed, capture.ModeRate, s.cfg.Capture.Wind, s.hw.Wind},
	} {
		s.counters = append(s.counters, capture.NewCounter(capture.CounterConfig{
			Name:     c.name,
			Field:    c.field,
			Debounce: c.p.Debounce,
			Window:   c.p.Window,
			Scale:    c.p.Scale,
			Mode:     c.mode,
			QueueLen: c.p.QueueLen,
		}, s.store, s.log))
		s.pins = append(s.pins, c.pin)
	}
}

func (s *Station) buildProducers() {
	sc := s.cfg.Sensors
	pc := producer.Config{Period: sc.Period, ReadTimeout: sc.ReadTimeout}
	var srcs []sensors.Source
	if s.hw.Climate != nil {
		srcs = append(srcs, sensors.NewClimate(s.hw.Climate))
	}
	if s.hw.Pressure != nil {
		srcs = append(srcs, sensors.NewBarometer(s.hw.Pressure, sensors.PressureUnit(sc.PressureUnit), sc.SeaLevelHPa))
	}
	if s.hw.Vane != nil {
		srcs = append(srcs, sensors.NewVane(s.hw.Vane, sc.VaneOffsetDeg, sc.VaneSamples))
	}
	if s.hw.Dust != nil && s.hw.DustLED != nil {
		srcs = append(srcs, sensors.NewDust(s.hw.DustLED, s.hw.Dust, sensors.DustConfig{
			Pulses:        sc.DustPulses,
			PulseInterval: sc.DustPulseInterval,
		}))
	}
	s.sources = srcs
	for _, src := range srcs {
		s.producers = append(s.producers, producer.New(pc, src, s.store, s.log))
	}
}

func (s *Station) buildUplink() {
	s.toks = token.NewManager()
	up := s.cfg.Uplink
	if !up.Enabled {
		s.log.Info("uplink disabled")
		return
	}
	if err := s.toks.Init([]byte(up.Secret), s.chipID); err != nil {
		s.log.Error("token generation failed, uplink not started", "err", err)
		return
	}
	tx := s.opts.Transport
	if tx == nil {
		hopts := []uplink.HTTPOption{uplink.WithHTTPClient(&http.Client{Timeout: up.Timeout})}
		if up.InsecureTLS {
			hopts = append(hopts, uplink.WithInsecureTLS())
		}
		tx = uplink.NewHTTPTransport(up.BaseURL, hopts...)
	}
	s.machine = uplink.New(uplink.Config{
		SSID:       s.cfg.Station.SSID,
		Period:     up.Period,
		StartDelay: up.StartDelay,
	}, s.store, s.toks, tx, s.log)
	s.machine.OnTick = s.publishReport
}

// publishReport mirrors a tick onto the bus.
func (s *Station) publishReport(r uplink.Report) {
	st := types.UplinkStatus{
		TsMs:   r.At.UnixMilli(),
		From:   r.From.String(),
		State:  r.To.String(),
		Status: r.Status,
	}
	if r.Err != nil {
		st.Code = string(errcode.Of(r.Err))
		st.Error = r.Err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(TopicUplinkState, st, true))

	if r.Status == 0 && errors.Is(r.Err, errcode.Timeout) {
		return
	}
	s.conn.Publish(s.conn.NewMessage(TopicSnapshot, snapshotOf(r.At, r.Sample), true))
}

func snapshotOf(at time.Time, m sample.MeteoSample) types.Snapshot {
	return types.Snapshot{
		TsMs:          at.UnixMilli(),
		Temperature:   m.Temperature,
		Humidity:      m.Humidity,
		WindSpeed:     m.WindSpeed,
		WindDirection: m.WindDirection,
		Rainfall:      m.Rainfall,
		Dust:          m.Dust,
		Pressure:      m.Pressure,
		Altitude:      m.Altitude,
	}
}

func (s *Station) registerProbes() {
	s.hb.Register("store", func() any { return s.store.Stats() })
	for _, c := range s.counters {
		s.hb.Register(c.Name(), s.counterProbe(c))
	}
	for _, p := range s.producers {
		s.hb.Register(p.Name(), func() any { return p.Stats() })
	}
	if s.machine != nil {
		s.hb.Register("uplink", func() any { return s.machine.State().String() })
	}
}

// counterProbe reports a counter's stats and warns when edges were dropped
// since the previous beat. Probes only run on the heartbeat goroutine.
func (s *Station) counterProbe(c *capture.Counter) heartbeat.Probe {
	var seen uint32
	return func() any {
		st := types.CounterStats{
			Name:    c.Name(),
			Total:   c.Total(),
			Windows: c.Windows(),
			Drops:   c.Drops(),
			Queued:  c.Queued(),
		}
		if d := st.Drops - seen; d > 0 {
			s.log.Warn("edges dropped", "source", c.Name(), "dropped", d, "err", errcode.QueueFull)
		}
		seen = st.Drops
		return st
	}
}

// Reading is one source's values keyed by field name.
type Reading struct {
	Source string
	Values map[string]float64
	Err    error
}

// ReadSensors reads every sensor source once, bypassing the store. Used for
// board bring-up.
func (s *Station) ReadSensors(ctx context.Context) []Reading {
	out := make([]Reading, 0, len(s.sources))
	for _, src := range s.sources {
		rd := Reading{Source: src.Name(), Values: map[string]float64{}}
		rctx, cancel := context.WithTimeout(ctx, s.cfg.Sensors.ReadTimeout)
		vals, err := src.Read(rctx)
		cancel()
		rd.Err = err
		for _, v := range vals {
			rd.Values[v.Field.String()] = v.V
		}
		out = append(out, rd)
	}
	return out
}

// Store exposes the sample store.
func (s *Station) Store() *sample.Store { return s.store }

func (s *Station) ChipID() string { return s.chipID }

// UplinkState reports the machine state; false when the uplink is not running.
func (s *Station) UplinkState() (uplink.State, bool) {
	if s.machine == nil {
		return 0, false
	}
	return s.machine.State(), true
}

// Run attaches interrupts and runs every component until ctx is done.
func (s *Station) Run(ctx context.Context) error {
	var cancels []func()
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()
	for i, c := range s.counters {
		p := s.cfg.Capture.Rain
		if c.Name() == "wind" {
			p = s.cfg.Capture.Wind
		}
		if s.pins[i] == nil {
			s.log.Warn("no pin for counter", "counter", c.Name())
			continue
		}
		cancel, err := capture.Attach(s.pins[i], capture.ParsePull(p.Pull), capture.ParseEdge(p.Edge), c, s.hw.Clock)
		if err != nil {
			return errcode.Wrap(errcode.InvalidConfig, "capture.attach "+c.Name(), err)
		}
		cancels = append(cancels, cancel)
	}

	var wg sync.WaitGroup
	goRun := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}

	s.conn.Publish(s.conn.NewMessage(TopicInfo, types.StationInfo{
		ChipID:  s.chipID,
		SSID:    s.cfg.Station.SSID,
		Version: s.opts.Version,
		Board:   platform.Board,
	}, true))

	for _, c := range s.counters {
		goRun(c.Run)
	}
	for _, p := range s.producers {
		goRun(p.Run)
	}
	if s.machine != nil {
		goRun(s.machine.Run)
	}
	if s.hw.Simulate != nil {
		goRun(s.hw.Simulate)
	}
	goRun(s.mirror.Run)
	hbConn := s.bus.NewConnection("heartbeat")
	goRun(func(ctx context.Context) { s.hb.Run(ctx, hbConn) })
	s.cfgSvc.Start(ctx, s.bus.NewConnection("config"))

	s.log.Info("station running", "chip_id", s.chipID, "producers", len(s.producers), "uplink", s.machine != nil)
	<-ctx.Done()
	wg.Wait()
	s.log.Info("station stopped")
	return nil
}

// Run builds and runs a station.
func Run(ctx context.Context, cfg config.Config, log *slog.Logger, opts Options) error {
	s, err := New(cfg, log, opts)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}
