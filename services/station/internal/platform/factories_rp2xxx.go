//go:build rp2040 || rp2350

package platform

import (
	"machine"

	"tinygo.org/x/drivers/bme280"

	"meteostation/drivers/aht20"
	"meteostation/services/station/internal/capture"
	"meteostation/x/timex"
)

// Board names the build target.
const Board = "rp2xxx"

// Open configures I²C0, the ADC channels and the pulse inputs.
func Open(p Pins) (*Hardware, error) {
	khz := p.I2CFreqKHz
	if khz == 0 {
		khz = 400
	}
	bus := machine.I2C0
	if err := bus.Configure(machine.I2CConfig{
		Frequency: khz * machine.KHz,
		SDA:       machine.Pin(p.I2CSDA),
		SCL:       machine.Pin(p.I2CSCL),
	}); err != nil {
		return nil, err
	}

	climate := aht20.New(bus)
	if err := climate.Configure(aht20.Config{CheckCRC: true}); err != nil {
		return nil, err
	}
	baro := bme280.New(bus)
	baro.Configure()

	machine.InitADC()
	vane := machine.ADC{Pin: machine.Pin(p.VaneADC)}
	vane.Configure(machine.ADCConfig{})
	dust := machine.ADC{Pin: machine.Pin(p.DustADC)}
	dust.Configure(machine.ADCConfig{})

	led := &rp2Pin{p: machine.Pin(p.DustLED), n: p.DustLED}
	led.p.Configure(machine.PinConfig{Mode: machine.PinOutput})

	return &Hardware{
		Climate:  &climate,
		Pressure: &baro,
		Vane:     vane,
		DustLED:  led,
		Dust:     dust,
		Rain:     &rp2Pin{p: machine.Pin(p.Rain), n: p.Rain},
		Wind:     &rp2Pin{p: machine.Pin(p.Wind), n: p.Wind},
		Clock:    timex.NowUs,
	}, nil
}

// ChipID reads the flash unique ID.
func ChipID() (string, error) {
	return ChipIDFromBytes(machine.DeviceID())
}

// ---- GPIO implementation (includes IRQ support) ----

type rp2Pin struct {
	p machine.Pin
	n int
}

func (r *rp2Pin) ConfigureInput(pull capture.Pull) error {
	var mode machine.PinMode
	switch pull {
	case capture.PullUp:
		mode = machine.PinInputPullup
	case capture.PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r *rp2Pin) Set(level bool) { r.p.Set(level) }
func (r *rp2Pin) Get() bool      { return r.p.Get() }
func (r *rp2Pin) Number() int    { return r.n }

func (r *rp2Pin) SetIRQ(edge capture.Edge, handler func()) error {
	return r.p.SetInterrupt(toPinChange(edge), func(machine.Pin) { handler() })
}

func (r *rp2Pin) ClearIRQ() error {
	var zero machine.PinChange
	return r.p.SetInterrupt(zero, nil)
}

func toPinChange(e capture.Edge) machine.PinChange {
	switch e {
	case capture.EdgeRising:
		return machine.PinRising
	case capture.EdgeFalling:
		return machine.PinFalling
	case capture.EdgeBoth:
		return machine.PinToggle
	default:
		var zero machine.PinChange
		return zero
	}
}
