package sensors

import (
	"context"

	"meteostation/services/station/internal/sample"
	"meteostation/x/mathx"
)

// VaneTable holds the 12-bit ADC level for each of the 16 vane positions,
// clockwise from north.
var VaneTable = [16]uint16{
	126, 126, 337, 337, 559, 559, 1196, 1196,
	1630, 1630, 1569, 1569, 1402, 1402, 887, 887,
}

const degPerIndex = 22.5

// Vane reads the resistor-ladder wind vane.
type Vane struct {
	adc     ADC
	offset  float64
	samples int
}

// NewVane takes the mounting offset in degrees and how many readings to
// average per Read.
func NewVane(adc ADC, offsetDeg float64, samples int) *Vane {
	if samples <= 0 {
		samples = 64
	}
	return &Vane{adc: adc, offset: offsetDeg, samples: samples}
}

func (v *Vane) Name() string { return "vane" }

func (v *Vane) Read(ctx context.Context) ([]sample.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw := uint16(averageADC(v.adc, v.samples))
	deg := VaneDegrees(raw, v.offset)
	return []sample.Value{{Field: sample.WindDirection, V: deg}}, nil
}

// VaneIndex returns the table position closest to raw; ties go to the
// lower index.
func VaneIndex(raw uint16) int {
	best, bestDiff := 0, uint16(0xFFFF)
	for i, base := range VaneTable {
		diff := mathx.Abs(int32(raw) - int32(base))
		if uint16(diff) < bestDiff {
			best, bestDiff = i, uint16(diff)
		}
	}
	return best
}

// VaneDegrees maps a 12-bit reading to a heading in [0,360).
func VaneDegrees(raw uint16, offsetDeg float64) float64 {
	return mathx.NormDeg(float64(VaneIndex(raw))*degPerIndex + offsetDeg)
}

var cardinals = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Cardinal names the 45° sector containing deg.
func Cardinal(deg float64) string {
	d := mathx.NormDeg(deg)
	return cardinals[int((d+22.5)/45)%8]
}
