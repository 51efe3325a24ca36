// Package sample holds the station's single shared measurement record.
//
// Every producer owns one or more fields and writes them through Update or
// UpdateMany; the uplink reads the whole record with Snapshot. All access
// goes through one weight-1 semaphore with a bounded wait: on timeout an
// update is dropped and a snapshot is reported unavailable, so a producer
// never blocks past the bound.
package sample

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"meteostation/errcode"
)

// DefaultLockWait bounds every acquisition of the store lock.
const DefaultLockWait = 100 * time.Millisecond

// Field identifies one member of MeteoSample.
type Field uint8

const (
	Temperature Field = iota
	Humidity
	WindSpeed
	WindDirection
	Rainfall
	Dust
	Pressure
	Altitude
	numFields
)

var fieldNames = [numFields]string{
	Temperature:   "temperature",
	Humidity:      "humidity",
	WindSpeed:     "wind_speed",
	WindDirection: "wind_direction_degrees",
	Rainfall:      "rainfall",
	Dust:          "dust",
	Pressure:      "pressure",
	Altitude:      "altitude",
}

func (f Field) String() string {
	if f < numFields {
		return fieldNames[f]
	}
	return "unknown"
}

// MeteoSample is the shared record. Units: °C, %RH, km/h, degrees [0,360),
// mm per reporting window, µg/m³, pressure in the configured unit, metres.
type MeteoSample struct {
	Temperature   float64
	Humidity      float64
	WindSpeed     float64
	WindDirection float64
	Rainfall      float64
	Dust          float64
	Pressure      float64
	Altitude      float64
}

func (s *MeteoSample) set(f Field, v float64) bool {
	switch f {
	case Temperature:
		s.Temperature = v
	case Humidity:
		s.Humidity = v
	case WindSpeed:
		s.WindSpeed = v
	case WindDirection:
		s.WindDirection = v
	case Rainfall:
		s.Rainfall = v
	case Dust:
		s.Dust = v
	case Pressure:
		s.Pressure = v
	case Altitude:
		s.Altitude = v
	default:
		return false
	}
	return true
}

// Get returns the value of one field.
func (s MeteoSample) Get(f Field) float64 {
	switch f {
	case Temperature:
		return s.Temperature
	case Humidity:
		return s.Humidity
	case WindSpeed:
		return s.WindSpeed
	case WindDirection:
		return s.WindDirection
	case Rainfall:
		return s.Rainfall
	case Dust:
		return s.Dust
	case Pressure:
		return s.Pressure
	case Altitude:
		return s.Altitude
	}
	return 0
}

// Value is one field assignment.
type Value struct {
	Field Field
	V     float64
}

// Writer is the producer-side view of the store.
type Writer interface {
	Update(ctx context.Context, f Field, v float64) error
	UpdateMany(ctx context.Context, vals ...Value) error
}

// Stats counts contention outcomes since start.
type Stats struct {
	Updates         uint64
	DroppedUpdates  uint64
	Snapshots       uint64
	MissedSnapshots uint64
}

type Store struct {
	sem  *semaphore.Weighted
	wait time.Duration
	rec  MeteoSample

	updates, dropped, snaps, missed atomic.Uint64
}

// NewStore returns an empty store. wait <= 0 selects DefaultLockWait.
func NewStore(wait time.Duration) *Store {
	if wait <= 0 {
		wait = DefaultLockWait
	}
	return &Store{sem: semaphore.NewWeighted(1), wait: wait}
}

func (s *Store) acquire(ctx context.Context) bool {
	if s.sem.TryAcquire(1) {
		return true
	}
	wctx, cancel := context.WithTimeout(ctx, s.wait)
	defer cancel()
	return s.sem.Acquire(wctx, 1) == nil
}

// Update writes one field. On lock timeout the write is dropped and
// errcode.Timeout is returned; the record is left untouched.
func (s *Store) Update(ctx context.Context, f Field, v float64) error {
	return s.UpdateMany(ctx, Value{Field: f, V: v})
}

// UpdateMany writes several fields in one critical section.
func (s *Store) UpdateMany(ctx context.Context, vals ...Value) error {
	for _, v := range vals {
		if v.Field >= numFields {
			return &errcode.E{C: errcode.InvalidPayload, Op: "sample.update", Msg: "unknown field"}
		}
	}
	if !s.acquire(ctx) {
		s.dropped.Add(1)
		return &errcode.E{C: errcode.Timeout, Op: "sample.update", Err: ctx.Err()}
	}
	for _, v := range vals {
		s.rec.set(v.Field, v.V)
	}
	s.sem.Release(1)
	s.updates.Add(1)
	return nil
}

// Snapshot copies the whole record. On lock timeout it returns the zero
// record and errcode.Timeout; callers treat that as "unavailable this cycle".
func (s *Store) Snapshot(ctx context.Context) (MeteoSample, error) {
	if !s.acquire(ctx) {
		s.missed.Add(1)
		return MeteoSample{}, &errcode.E{C: errcode.Timeout, Op: "sample.snapshot", Err: ctx.Err()}
	}
	out := s.rec
	s.sem.Release(1)
	s.snaps.Add(1)
	return out, nil
}

func (s *Store) Stats() Stats {
	return Stats{
		Updates:         s.updates.Load(),
		DroppedUpdates:  s.dropped.Load(),
		Snapshots:       s.snaps.Load(),
		MissedSnapshots: s.missed.Load(),
	}
}
