// Package aht20 drives the AHT20 temperature/humidity sensor used as the
// station's climate source.
//
//	d.Trigger()            // start a conversion
//	s, err := d.Collect()  // ErrNotReady while the chip is busy
//
// Read(ctx) wraps both with bounded polling.
//
// I2C.Tx MUST perform a write followed by a repeated-start read when both
// w and r are provided.
package aht20

import (
	"context"
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

const Address = 0x38

const (
	cmdTrigger    = 0xAC
	cmdInitialize = 0xBE
	cmdSoftReset  = 0xBA
	cmdStatus     = 0x71

	statusBusy       = 0x80
	statusCalibrated = 0x08

	fullScale = 1 << 20
)

var (
	ErrTimeout  = errors.New("aht20: timeout")
	ErrNotReady = errors.New("aht20: not ready")
	ErrCRC      = errors.New("aht20: crc mismatch")
)

// Config is optional; zero fields take defaults.
type Config struct {
	Address      uint16
	PollInterval time.Duration // default 15 ms
	Conversion   time.Duration // nominal conversion time, default 80 ms
	// CheckCRC validates the trailing CRC-8 byte of each frame.
	CheckCRC bool
}

type Device struct {
	bus drivers.I2C
	cfg Config
	buf [7]byte
}

// New creates a device on an already configured bus. It does not touch the
// chip.
func New(bus drivers.I2C) Device {
	return Device{bus: bus, cfg: Config{Address: Address}}
}

// Configure applies cfg and calibrates the chip if its status says it is
// not calibrated yet.
func (d *Device) Configure(cfg Config) error {
	if cfg.Address == 0 {
		cfg.Address = Address
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Millisecond
	}
	if cfg.Conversion <= 0 {
		cfg.Conversion = 80 * time.Millisecond
	}
	d.cfg = cfg

	st, err := d.Status()
	if err == nil && st&statusCalibrated != 0 {
		return nil
	}
	if err := d.bus.Tx(d.cfg.Address, []byte{cmdInitialize, 0x08, 0x00}, nil); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

// Reset issues a soft reset; allow ~20 ms before the next command.
func (d *Device) Reset() error {
	return d.bus.Tx(d.cfg.Address, []byte{cmdSoftReset}, nil)
}

func (d *Device) Status() (byte, error) {
	var b [1]byte
	if err := d.bus.Tx(d.cfg.Address, []byte{cmdStatus}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// Trigger starts one conversion without waiting for it.
func (d *Device) Trigger() error {
	return d.bus.Tx(d.cfg.Address, []byte{cmdTrigger, 0x33, 0x00}, nil)
}

// Collect reads the frame of the last conversion.
func (d *Device) Collect() (Sample, error) {
	if err := d.bus.Tx(d.cfg.Address, nil, d.buf[:]); err != nil {
		return Sample{}, err
	}
	b := d.buf
	if b[0]&statusCalibrated == 0 || b[0]&statusBusy != 0 {
		return Sample{}, ErrNotReady
	}
	if d.cfg.CheckCRC && crc8(b[:6]) != b[6] {
		return Sample{}, ErrCRC
	}
	return Sample{
		RawHumidity: uint32(b[1])<<12 | uint32(b[2])<<4 | uint32(b[3])>>4,
		RawTemp:     uint32(b[3]&0x0F)<<16 | uint32(b[4])<<8 | uint32(b[5]),
	}, nil
}

// Read triggers a conversion and polls until a frame is ready, ctx is done
// or twice the nominal conversion time has passed.
func (d *Device) Read(ctx context.Context) (Sample, error) {
	if err := d.Trigger(); err != nil {
		return Sample{}, err
	}
	conv := d.cfg.Conversion
	if conv <= 0 {
		conv = 80 * time.Millisecond
	}
	poll := d.cfg.PollInterval
	if poll <= 0 {
		poll = 15 * time.Millisecond
	}
	deadline := time.Now().Add(2 * conv)
	wait := conv
	for {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return Sample{}, ctx.Err()
		case <-t.C:
		}
		s, err := d.Collect()
		if !errors.Is(err, ErrNotReady) {
			return s, err
		}
		if time.Now().After(deadline) {
			return Sample{}, ErrTimeout
		}
		wait = poll
	}
}

// Sample holds one raw 20-bit frame.
type Sample struct {
	RawHumidity uint32
	RawTemp     uint32
}

// Celsius converts the raw temperature.
func (s Sample) Celsius() float64 {
	return float64(s.RawTemp)*200/fullScale - 50
}

// RelHumidity converts the raw humidity to %RH.
func (s Sample) RelHumidity() float64 {
	return float64(s.RawHumidity) * 100 / fullScale
}

// crc8: poly 0x31, init 0xFF, no reflection.
func crc8(p []byte) byte {
	c := byte(0xFF)
	for _, b := range p {
		c ^= b
		for i := 0; i < 8; i++ {
			if c&0x80 != 0 {
				c = c<<1 ^ 0x31
			} else {
				c <<= 1
			}
		}
	}
	return c
}
