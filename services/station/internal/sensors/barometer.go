package sensors

import (
	"context"
	"math"

	"meteostation/errcode"
	"meteostation/services/station/internal/sample"
)

// PressureUnit selects the unit written to sample.Pressure.
type PressureUnit string

const (
	UnitHPa  PressureUnit = "hPa"
	UnitMmHg PressureUnit = "mmHg"
)

const (
	mmHgPerHPa = 0.750061683
	// SeaLevelHPa is the ISA reference pressure used for altitude.
	SeaLevelHPa = 1013.25
)

// PressureChip is satisfied by *bme280.Device; pressure is in milli-pascal.
type PressureChip interface {
	ReadPressure() (int32, error)
}

// Barometer reports pressure and the altitude derived from it.
type Barometer struct {
	chip     PressureChip
	unit     PressureUnit
	seaLevel float64
}

func NewBarometer(chip PressureChip, unit PressureUnit, seaLevelHPa float64) *Barometer {
	if unit == "" {
		unit = UnitMmHg
	}
	if seaLevelHPa <= 0 {
		seaLevelHPa = SeaLevelHPa
	}
	return &Barometer{chip: chip, unit: unit, seaLevel: seaLevelHPa}
}

func (b *Barometer) Name() string { return "barometer" }

func (b *Barometer) Read(ctx context.Context) ([]sample.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mpa, err := b.chip.ReadPressure()
	if err != nil {
		return nil, errcode.Wrap(errcode.SensorRead, "barometer.read", err)
	}
	if mpa <= 0 {
		return nil, &errcode.E{C: errcode.SensorRead, Op: "barometer.read", Msg: "non-positive pressure"}
	}
	hpa := float64(mpa) / 100000
	p := hpa
	if b.unit == UnitMmHg {
		p = hpa * mmHgPerHPa
	}
	return []sample.Value{
		{Field: sample.Pressure, V: p},
		{Field: sample.Altitude, V: Altitude(hpa, b.seaLevel)},
	}, nil
}

// Altitude is the barometric formula 44330·(1−(p/p0)^(1/5.255)), in metres.
func Altitude(hpa, seaLevelHPa float64) float64 {
	return 44330 * (1 - math.Pow(hpa/seaLevelHPa, 1/5.255))
}
