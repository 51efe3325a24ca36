package config

import (
	"context"

	"meteostation/bus"
)

const (
	serviceName  = "config"
	configPrefix = "config"
)

// Service publishes each config section as a retained config/<key> message
// so services can pick up their settings (and later changes) from the bus.
type Service struct {
	Name string
	cfg  Config
}

func NewService(cfg Config) *Service {
	return &Service{Name: serviceName, cfg: cfg}
}

// Sections returns the bus payload for each section.
func (s *Service) Sections() map[string]any {
	c := s.cfg
	up := c.Uplink
	up.Secret = ""
	return map[string]any{
		"station":   c.Station,
		"capture":   c.Capture,
		"sensors":   c.Sensors,
		"uplink":    up,
		"mqtt":      c.MQTT,
		"heartbeat": c.Heartbeat,
	}
}

func (s *Service) publish(conn *bus.Connection) {
	for k, v := range s.Sections() {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), v, true))
	}
}

// Start publishes the retained sections. It does not block.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	if ctx.Err() != nil {
		return
	}
	s.publish(conn)
}
