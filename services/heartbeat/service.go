// Package heartbeat periodically logs the station's health counters and
// publishes them on station/health.
package heartbeat

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"meteostation/bus"
	"meteostation/services/config"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	TopicHealth          = bus.T("station", "health")
)

const defaultInterval = 30 * time.Second

// Probe returns a point-in-time view of one component's counters.
type Probe func() any

type Service struct {
	log    *slog.Logger
	probes map[string]Probe

	// Beat, if set, is called with each published health map.
	Beat func(map[string]any)
}

func New(log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{log: log.With("component", "heartbeat"), probes: map[string]Probe{}}
}

// Register adds a named probe. Call before Run.
func (s *Service) Register(name string, p Probe) { s.probes[name] = p }

func (s *Service) collect() map[string]any {
	m := make(map[string]any, len(s.probes))
	for k, p := range s.probes {
		m[k] = p()
	}
	return m
}

func (s *Service) beat(conn *bus.Connection, at time.Time) {
	h := s.collect()
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)
	args := make([]any, 0, 2*len(names)+2)
	args = append(args, "at", at.Format("15:04:05"))
	for _, k := range names {
		args = append(args, k, h[k])
	}
	s.log.Info("heartbeat", args...)
	conn.Publish(conn.NewMessage(TopicHealth, h, true))
	if s.Beat != nil {
		s.Beat(h)
	}
}

// interval extracts a heartbeat interval from a config payload.
func interval(p any) (time.Duration, bool) {
	switch v := p.(type) {
	case config.Heartbeat:
		return v.Interval, v.Interval > 0
	case map[string]any:
		if f, ok := v["interval"].(float64); ok && f > 0 {
			return time.Duration(f * float64(time.Second)), true
		}
	}
	return 0, false
}

// Run beats on the configured interval until ctx is done.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(defaultInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("heartbeat service stopping")
			return
		case t := <-tick.C:
			s.beat(conn, t)
		case msg := <-cfgSub.Channel():
			if iv, ok := interval(msg.Payload); ok {
				tick.Reset(iv)
				s.log.Debug("heartbeat interval set", "interval", iv)
			}
		}
	}
}
