// Package platform binds the station to its physical endpoints. Builds for
// rp2040/rp2350 use the TinyGo machine package; every other build gets
// deterministic simulators so the whole station runs on a workstation.
package platform

import (
	"context"
	"encoding/binary"
	"errors"
	"strconv"

	"meteostation/services/station/internal/capture"
	"meteostation/services/station/internal/sensors"
)

// Pins uses the board's GP numbering.
type Pins struct {
	I2CSDA     int    `yaml:"i2c_sda"`
	I2CSCL     int    `yaml:"i2c_scl"`
	I2CFreqKHz uint32 `yaml:"i2c_khz"`
	Rain       int    `yaml:"rain"`
	Wind       int    `yaml:"wind"`
	VaneADC    int    `yaml:"vane_adc"`
	DustLED    int    `yaml:"dust_led"`
	DustADC    int    `yaml:"dust_adc"`
}

// Hardware is what Open hands to the station.
type Hardware struct {
	Climate  sensors.ClimateChip
	Pressure sensors.PressureChip
	Vane     sensors.ADC
	DustLED  sensors.OutputPin
	Dust     sensors.ADC
	Rain     capture.IRQPin
	Wind     capture.IRQPin

	// Clock is the monotonic µs clock used to stamp edges.
	Clock func() int64

	// Simulate drives simulated inputs until ctx is done. Nil on real boards.
	Simulate func(ctx context.Context)
}

var ErrNoChipID = errors.New("platform: no hardware identity available")

// ChipIDFromBytes renders the first six bytes of a hardware identity
// (a MAC address or flash unique ID) as a big-endian unsigned decimal.
func ChipIDFromBytes(b []byte) (string, error) {
	if len(b) < 6 {
		return "", ErrNoChipID
	}
	var buf [8]byte
	copy(buf[2:], b[:6])
	return strconv.FormatUint(binary.BigEndian.Uint64(buf[:]), 10), nil
}
