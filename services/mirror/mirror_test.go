package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meteostation/bus"
	"meteostation/services/config"
	"meteostation/types"
)

type published struct {
	topic    string
	retained bool
	payload  string
}

type fakeLink struct {
	mu     sync.Mutex
	out    []published
	failAt int // fail the nth publish (1-based), 0 = never
	closed bool
}

func (l *fakeLink) Publish(topic string, retained bool, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAt > 0 && len(l.out)+1 == l.failAt {
		l.failAt = 0
		return errors.New("broken pipe")
	}
	l.out = append(l.out, published{topic, retained, string(payload)})
	return nil
}

func (l *fakeLink) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

func (l *fakeLink) snapshot() []published {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]published(nil), l.out...)
}

func nextState(t *testing.T, sub *bus.Subscription) types.LinkState {
	t.Helper()
	select {
	case m := <-sub.Channel():
		st, ok := m.Payload.(types.LinkState)
		if !ok {
			t.Fatalf("state payload %T", m.Payload)
		}
		return st
	case <-time.After(time.Second):
		t.Fatal("no mirror state")
	}
	return types.LinkState{}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRemoteTopic(t *testing.T) {
	tp := bus.T("station", "uplink", "state")
	for prefix, want := range map[string]string{
		"":           "station/uplink/state",
		"meteo":      "meteo/station/uplink/state",
		"/meteo/42/": "meteo/42/station/uplink/state",
	} {
		if got := RemoteTopic(prefix, tp); got != want {
			t.Errorf("RemoteTopic(%q) = %q, want %q", prefix, got, want)
		}
	}
}

func TestEncode(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want string
	}{
		{[]byte("raw"), "raw"},
		{"text", "text"},
		{types.UplinkStatus{State: "send", Status: 200}, `{"ts_ms":0,"from":"","state":"send","status":200}`},
	} {
		b, err := encode(tc.in)
		if err != nil || string(b) != tc.want {
			t.Errorf("encode(%v) = %s, %v", tc.in, b, err)
		}
	}
}

func TestBackoffSeq(t *testing.T) {
	next := backoffSeq(10*time.Millisecond, 35*time.Millisecond)
	want := []time.Duration{10, 20, 35, 35}
	for i, w := range want {
		if got := next(); got != w*time.Millisecond {
			t.Fatalf("step %d = %v, want %v", i, got, w*time.Millisecond)
		}
	}
}

func TestMirrorForwardsAndRedials(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("mirror")
	pub := b.NewConnection("station")
	stateSub := pub.Subscribe(TopicState)

	var mu sync.Mutex
	var links []*fakeLink
	dial := func(ctx context.Context, cfg config.MQTT) (Link, error) {
		mu.Lock()
		defer mu.Unlock()
		if cfg.Broker != "tcp://broker:1883" {
			return nil, errors.New("wrong broker")
		}
		l := &fakeLink{}
		if len(links) == 0 {
			l.failAt = 1
		}
		links = append(links, l)
		return l, nil
	}
	linkCount := func() int { mu.Lock(); defer mu.Unlock(); return len(links) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go New(conn, dial, nil).Run(ctx)

	if st := nextState(t, stateSub); st.Level != types.LinkIdle || st.Status != "awaiting_config" {
		t.Fatalf("initial state = %+v", st)
	}
	pub.Publish(pub.NewMessage(topicConfig, config.MQTT{Broker: "tcp://broker:1883", TopicPrefix: "meteo"}, true))
	if st := nextState(t, stateSub); st.Level != types.LinkUp {
		t.Fatalf("state = %+v", st)
	}

	// the first link fails on its first publish; the retained snapshot is replayed to the second
	pub.Publish(pub.NewMessage(bus.T("station", "snapshot"), types.Snapshot{Temperature: 20}, true))
	pub.Publish(pub.NewMessage(bus.T("station", "uplink", "state"), types.UplinkStatus{State: "send"}, false))

	if st := nextState(t, stateSub); st.Level != types.LinkDegraded || st.Status != "link_lost_retrying" {
		t.Fatalf("state = %+v", st)
	}
	waitFor(t, func() bool { return linkCount() == 2 })
	mu.Lock()
	first, second := links[0], links[1]
	mu.Unlock()
	if !first.closed {
		t.Fatal("failed link not closed")
	}
	waitFor(t, func() bool { return len(second.snapshot()) >= 1 })
	got := second.snapshot()[0]
	if got.topic != "meteo/station/snapshot" || !got.retained {
		t.Fatalf("replayed = %+v", got)
	}
}

func TestMirrorDisabledWithoutBroker(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("mirror")
	sub := conn.Subscribe(TopicState)
	dialed := make(chan struct{}, 1)
	dial := func(context.Context, config.MQTT) (Link, error) {
		dialed <- struct{}{}
		return &fakeLink{}, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go New(conn, dial, nil).Run(ctx)
	nextState(t, sub)
	conn.Publish(conn.NewMessage(topicConfig, config.MQTT{}, true))
	if st := nextState(t, sub); st.Status != "disabled" {
		t.Fatalf("state = %+v", st)
	}
	select {
	case <-dialed:
		t.Fatal("dialed with no broker configured")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMirrorBadConfigPayload(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("mirror")
	sub := conn.Subscribe(TopicState)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go New(conn, func(context.Context, config.MQTT) (Link, error) { return nil, errors.New("x") }, nil).Run(ctx)
	nextState(t, sub)
	conn.Publish(conn.NewMessage(topicConfig, map[string]any{"broker": 1}, false))
	if st := nextState(t, sub); st.Level != types.LinkError || st.Status != "config_decode_failed" {
		t.Fatalf("state = %+v", st)
	}
}
