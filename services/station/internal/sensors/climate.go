package sensors

import (
	"context"

	"meteostation/drivers/aht20"
	"meteostation/errcode"
	"meteostation/services/station/internal/sample"
	"meteostation/x/mathx"
)

// ClimateChip is satisfied by *aht20.Device.
type ClimateChip interface {
	Read(ctx context.Context) (aht20.Sample, error)
}

// Climate reports temperature and humidity as one paired update.
type Climate struct {
	chip ClimateChip
}

func NewClimate(chip ClimateChip) *Climate { return &Climate{chip: chip} }

func (c *Climate) Name() string { return "climate" }

func (c *Climate) Read(ctx context.Context) ([]sample.Value, error) {
	s, err := c.chip.Read(ctx)
	if err != nil {
		return nil, errcode.Wrap(errcode.SensorRead, "climate.read", err)
	}
	return []sample.Value{
		{Field: sample.Temperature, V: s.Celsius()},
		{Field: sample.Humidity, V: mathx.Clamp(s.RelHumidity(), 0, 100)},
	}, nil
}
