package sensors

import (
	"context"
	"time"

	"meteostation/services/station/internal/sample"
	"meteostation/services/station/internal/util"
	"meteostation/x/mathx"
)

// DustConfig describes the optical dust sensor front end.
type DustConfig struct {
	Settle        time.Duration // LED on to sample, default 280 µs
	PulseSamples  int           // ADC reads per LED pulse, default 64
	Pulses        int           // pulses averaged per Read, default 20
	PulseInterval time.Duration // gap between pulses, default 10 ms
	VRef          float64       // ADC full-scale volts, default 3.3
}

// Dust reads a GP2Y-style sensor: pulse the IR LED, sample the output,
// convert the averaged voltage to µg/m³.
type Dust struct {
	led OutputPin
	adc ADC
	cfg DustConfig
}

func NewDust(led OutputPin, adc ADC, cfg DustConfig) *Dust {
	if cfg.Settle <= 0 {
		cfg.Settle = 280 * time.Microsecond
	}
	if cfg.PulseSamples <= 0 {
		cfg.PulseSamples = 64
	}
	if cfg.Pulses <= 0 {
		cfg.Pulses = 20
	}
	if cfg.PulseInterval < 0 {
		cfg.PulseInterval = 0
	}
	if cfg.VRef <= 0 {
		cfg.VRef = 3.3
	}
	led.Set(false)
	return &Dust{led: led, adc: adc, cfg: cfg}
}

func (d *Dust) Name() string { return "dust" }

func (d *Dust) pulse() float64 {
	d.led.Set(true)
	time.Sleep(d.cfg.Settle)
	raw := averageADC(d.adc, d.cfg.PulseSamples)
	d.led.Set(false)
	return raw / 4095 * d.cfg.VRef
}

func (d *Dust) Read(ctx context.Context) ([]sample.Value, error) {
	volts := make([]float64, d.cfg.Pulses)
	for i := range volts {
		if i > 0 && !util.Sleep(ctx, d.cfg.PulseInterval) {
			return nil, ctx.Err()
		}
		volts[i] = d.pulse()
	}
	return []sample.Value{{Field: sample.Dust, V: DustDensity(mathx.Mean(volts))}}, nil
}

// DustDensity converts sensor output volts to µg/m³ (0.17 mg/m³ per volt
// above a 0.1 offset, clamped at zero).
func DustDensity(volts float64) float64 {
	return mathx.Max(0, 0.170*volts-0.1) * 1000
}
