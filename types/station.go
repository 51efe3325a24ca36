// Package types holds the payloads the station publishes on the bus.
package types

// ------------------------
// Station
// ------------------------

type StationInfo struct {
	ChipID  string `json:"chip_id"`
	SSID    string `json:"ssid"`
	Version string `json:"version"`
	Board   string `json:"board"` // "host", "rp2040", ...
}

// ------------------------
// Measurements
// ------------------------

// Snapshot is one consistent read of the sample store.
type Snapshot struct {
	TsMs          int64   `json:"ts_ms"`
	Temperature   float64 `json:"temperature"`    // °C
	Humidity      float64 `json:"humidity"`       // %RH
	WindSpeed     float64 `json:"wind_speed"`     // km/h
	WindDirection float64 `json:"wind_direction"` // degrees
	Rainfall      float64 `json:"rainfall"`       // mm per window
	Dust          float64 `json:"dust"`           // µg/m³
	Pressure      float64 `json:"pressure"`       // configured unit
	Altitude      float64 `json:"altitude"`       // m
}

// ------------------------
// Uplink
// ------------------------

// UplinkStatus reports the outcome of one uplink tick.
type UplinkStatus struct {
	TsMs   int64  `json:"ts_ms"`
	From   string `json:"from"`
	State  string `json:"state"`
	Status int    `json:"status"` // HTTP status, -1 on transport failure, 0 when skipped
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ------------------------
// Pulse capture
// ------------------------

type CounterStats struct {
	Name    string `json:"name"`
	Total   uint64 `json:"total"`
	Windows uint64 `json:"windows"`
	Drops   uint32 `json:"drops"`
	Queued  int    `json:"queued"`
}

// ------------------------
// Links (retained)
// ------------------------

type LinkLevel string

const (
	LinkIdle     LinkLevel = "idle"
	LinkUp       LinkLevel = "up"
	LinkDegraded LinkLevel = "degraded"
	LinkError    LinkLevel = "error"
)

type LinkState struct {
	Level  LinkLevel `json:"level"`
	Status string    `json:"status"` // short machine string
	TS     int64     `json:"ts_ms"`
	Error  string    `json:"error,omitempty"`
}
