package mirror

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"meteostation/services/config"
)

const publishTimeout = 5 * time.Second

type pahoLink struct {
	client mqtt.Client
}

// DialPaho connects to cfg.Broker and waits for the session, honouring ctx.
func DialPaho(ctx context.Context, cfg config.MQTT) (Link, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	const poll = 200 * time.Millisecond
	for !tok.WaitTimeout(poll) {
		if err := ctx.Err(); err != nil {
			c.Disconnect(0)
			return nil, err
		}
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return &pahoLink{client: c}, nil
}

// Publish sends at QoS 0.
func (l *pahoLink) Publish(topic string, retained bool, payload []byte) error {
	if !l.client.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}
	tok := l.client.Publish(topic, 0, retained, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (l *pahoLink) Close() { l.client.Disconnect(250) }
