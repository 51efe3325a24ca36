// Package mirror forwards station bus traffic to an MQTT broker.
//
// The service waits for its settings on config/mqtt, then supervises one
// broker link: dial with backoff, forward every station/# message, redial on
// failure. Link health is published retained on mirror/state.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"meteostation/bus"
	"meteostation/services/config"
	"meteostation/types"
)

var (
	topicConfig = bus.T("config", "mqtt")
	TopicState  = bus.T("mirror", "state")
	topicSource = bus.T("station", "#")
)

// Link is an established broker session.
type Link interface {
	Publish(topic string, retained bool, payload []byte) error
	Close()
}

// Dialer opens a Link. It should honour ctx while connecting.
type Dialer func(ctx context.Context, cfg config.MQTT) (Link, error)

type Service struct {
	conn *bus.Connection
	dial Dialer
	log  *slog.Logger

	mu     sync.Mutex
	curRun context.CancelFunc
}

func New(conn *bus.Connection, dial Dialer, log *slog.Logger) *Service {
	if dial == nil {
		dial = DialPaho
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{conn: conn, dial: dial, log: log.With("component", "mirror")}
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState(types.LinkIdle, "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState(types.LinkError, "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState(types.LinkError, "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func decodeConfig(p any) (config.MQTT, error) {
	switch v := p.(type) {
	case config.MQTT:
		return v, nil
	case *config.MQTT:
		if v != nil {
			return *v, nil
		}
	}
	return config.MQTT{}, fmt.Errorf("unexpected config payload %T", p)
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg config.MQTT) {
	s.stopCurrent()
	if cfg.Broker == "" {
		s.publishState(types.LinkIdle, "disabled", nil)
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.curRun = cancel
	s.mu.Unlock()
	go s.runLink(ctx, cfg)
}

func (s *Service) runLink(ctx context.Context, cfg config.MQTT) {
	backoff := backoffSeq(250*time.Millisecond, 30*time.Second)
	for ctx.Err() == nil {
		link, err := s.dial(ctx, cfg)
		if err != nil {
			delay := backoff()
			s.publishState(types.LinkDegraded, "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState(types.LinkUp, "link_established", nil)
		s.log.Info("mqtt link up", "broker", cfg.Broker)
		err = s.forward(ctx, link, cfg.TopicPrefix)
		link.Close()
		if err == nil {
			return
		}
		delay := backoff()
		s.publishState(types.LinkDegraded, "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
		if !sleep(ctx, delay) {
			return
		}
	}
}

// forward copies station/# to the link until ctx ends (nil) or a publish
// fails.
func (s *Service) forward(ctx context.Context, link Link, prefix string) error {
	sub := s.conn.Subscribe(topicSource)
	defer s.conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-sub.Channel():
			b, err := encode(msg.Payload)
			if err != nil {
				s.log.Warn("payload not forwarded", "topic", msg.Topic.String(), "err", err)
				continue
			}
			if err := link.Publish(RemoteTopic(prefix, msg.Topic), msg.Retained, b); err != nil {
				return err
			}
		}
	}
}

// RemoteTopic maps a bus topic under prefix.
func RemoteTopic(prefix string, t bus.Topic) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return t.String()
	}
	return prefix + "/" + t.String()
}

func encode(p any) ([]byte, error) {
	switch v := p.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return json.Marshal(p)
}

func (s *Service) publishState(level types.LinkLevel, status string, err error) {
	st := types.LinkState{Level: level, Status: status, TS: time.Now().UnixMilli()}
	if err != nil {
		st.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(TopicState, st, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
