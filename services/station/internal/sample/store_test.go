package sample

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meteostation/errcode"
)

func TestUpdateAndSnapshot(t *testing.T) {
	s := NewStore(0)
	ctx := context.Background()

	if err := s.Update(ctx, Temperature, 21.5); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.UpdateMany(ctx, Value{Pressure, 755.1}, Value{Altitude, 120}); err != nil {
		t.Fatalf("UpdateMany: %v", err)
	}
	got, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	want := MeteoSample{Temperature: 21.5, Pressure: 755.1, Altitude: 120}
	if got != want {
		t.Fatalf("snapshot mismatch: got %+v want %+v", got, want)
	}
	if st := s.Stats(); st.Updates != 2 || st.Snapshots != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	s := NewStore(0)
	err := s.Update(context.Background(), numFields, 1)
	if errcode.Of(err) != errcode.InvalidPayload {
		t.Fatalf("expected invalid_payload, got %v", err)
	}
}

func TestDropOnTimeout(t *testing.T) {
	s := NewStore(10 * time.Millisecond)
	ctx := context.Background()
	_ = s.Update(ctx, Humidity, 40)

	// Hold the lock as a stalled writer would.
	if !s.sem.TryAcquire(1) {
		t.Fatal("lock unexpectedly held")
	}

	start := time.Now()
	err := s.Update(ctx, Humidity, 99)
	if !errors.Is(err, errcode.Timeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if el := time.Since(start); el > 200*time.Millisecond {
		t.Fatalf("update waited too long: %v", el)
	}
	if _, err := s.Snapshot(ctx); !errors.Is(err, errcode.Timeout) {
		t.Fatalf("expected snapshot timeout, got %v", err)
	}

	s.sem.Release(1)

	got, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if got.Humidity != 40 {
		t.Fatalf("dropped update modified the record: humidity=%v", got.Humidity)
	}
	st := s.Stats()
	if st.DroppedUpdates != 1 || st.MissedSnapshots != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestCancelledContextDoesNotBlock(t *testing.T) {
	s := NewStore(time.Hour)
	_ = s.sem.Acquire(context.Background(), 1)
	defer s.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() { done <- s.Update(ctx, Dust, 1) }()
	select {
	case err := <-done:
		if errcode.Of(err) != errcode.Timeout {
			t.Fatalf("expected timeout code, got %v", err)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Update blocked on a cancelled context")
	}
}

// Writers always store the same value in a pair of fields; a torn snapshot
// would show them disagreeing.
func TestSnapshotAtomicity(t *testing.T) {
	s := NewStore(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(base float64) {
			defer wg.Done()
			for i := 0; ctx.Err() == nil; i++ {
				v := base + float64(i)
				_ = s.UpdateMany(ctx, Value{Temperature, v}, Value{Humidity, v})
			}
		}(float64(w) * 1e6)
	}

	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		snap, err := s.Snapshot(ctx)
		if err != nil {
			continue
		}
		if snap.Temperature != snap.Humidity {
			cancel()
			wg.Wait()
			t.Fatalf("torn snapshot: %+v", snap)
		}
	}
	cancel()
	wg.Wait()
}

func TestFieldString(t *testing.T) {
	for f, want := range map[Field]string{
		Temperature:   "temperature",
		WindDirection: "wind_direction_degrees",
		Altitude:      "altitude",
		Field(200):    "unknown",
	} {
		if f.String() != want {
			t.Errorf("Field(%d).String() = %q, want %q", f, f.String(), want)
		}
	}
	var m MeteoSample
	m.set(Rainfall, 0.8)
	if m.Get(Rainfall) != 0.8 || m.Get(Field(200)) != 0 {
		t.Fatalf("Get mismatch: %+v", m)
	}
}
