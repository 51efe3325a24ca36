package producer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"meteostation/errcode"
	"meteostation/services/station/internal/sample"
)

type fakeSource struct {
	n    atomic.Int32
	fail bool
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Read(ctx context.Context) ([]sample.Value, error) {
	n := f.n.Add(1)
	if f.fail {
		return nil, errors.New("i2c nack")
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("read without deadline")
	}
	return []sample.Value{{Field: sample.Temperature, V: float64(n)}, {Field: sample.Humidity, V: float64(n)}}, nil
}

func TestPollWritesPairedValues(t *testing.T) {
	st := sample.NewStore(0)
	p := New(Config{}, &fakeSource{}, st, nil)
	p.Poll(context.Background())
	snap, _ := st.Snapshot(context.Background())
	if snap.Temperature != 1 || snap.Humidity != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if s := p.Stats(); s.Reads != 1 || s.Failures != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestPollFailureLeavesStore(t *testing.T) {
	st := sample.NewStore(0)
	_ = st.Update(context.Background(), sample.Temperature, 7)
	p := New(Config{}, &fakeSource{fail: true}, st, nil)
	p.Poll(context.Background())
	snap, _ := st.Snapshot(context.Background())
	if snap.Temperature != 7 {
		t.Fatalf("failed read modified the store: %+v", snap)
	}
	if s := p.Stats(); s.Failures != 1 || s.LastError != "i2c nack" {
		t.Fatalf("stats = %+v", s)
	}
}

type busyStore struct{}

func (busyStore) Update(context.Context, sample.Field, float64) error { return errcode.Timeout }
func (busyStore) UpdateMany(context.Context, ...sample.Value) error   { return errcode.Timeout }

func TestPollCountsDroppedWrites(t *testing.T) {
	p := New(Config{}, &fakeSource{}, busyStore{}, nil)
	p.Poll(context.Background())
	if s := p.Stats(); s.Dropped != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestRunPeriodic(t *testing.T) {
	src := &fakeSource{}
	p := New(Config{Period: 5 * time.Millisecond}, src, sample.NewStore(0), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	deadline := time.After(time.Second)
	for src.n.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d reads", src.n.Load())
		case <-time.After(2 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
