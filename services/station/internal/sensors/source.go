// Package sensors adapts the station's physical sensors to Sources that
// yield sample values. Every Read is fail-soft: an error means "nothing
// this cycle", never a partial write.
package sensors

import (
	"context"

	"meteostation/services/station/internal/sample"
)

// Source is one polled sensor.
type Source interface {
	Name() string
	Read(ctx context.Context) ([]sample.Value, error)
}

// ADC is a single analog channel. Get returns a left-aligned 16-bit
// reading, as the TinyGo machine.ADC does.
type ADC interface {
	Get() uint16
}

// OutputPin drives one digital output.
type OutputPin interface {
	Set(level bool)
}

// adc12 reduces a 16-bit left-aligned reading to the converter's 12 bits.
func adc12(a ADC) uint16 { return a.Get() >> 4 }

// averageADC returns the mean of n 12-bit readings.
func averageADC(a ADC, n int) float64 {
	if n <= 0 {
		n = 1
	}
	var sum uint32
	for i := 0; i < n; i++ {
		sum += uint32(adc12(a))
	}
	return float64(sum) / float64(n)
}
