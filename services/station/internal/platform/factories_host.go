//go:build !rp2040 && !rp2350

package platform

import (
	"context"
	"math"
	"net"
	"sync"
	"time"

	"meteostation/drivers/aht20"
	"meteostation/services/station/internal/capture"
	"meteostation/services/station/internal/sensors"
	"meteostation/x/timex"
)

// Board names the build target.
const Board = "host"

// Open builds simulated hardware. Pin numbers are recorded but not used.
func Open(p Pins) (*Hardware, error) {
	start := time.Now()
	elapsed := func() float64 { return time.Since(start).Seconds() }

	bus := &SimAHT20{Now: elapsed}
	dev := aht20.New(bus)
	if err := dev.Configure(aht20.Config{CheckCRC: true, Conversion: 5 * time.Millisecond}); err != nil {
		return nil, err
	}

	rain := &SimPin{number: p.Rain}
	wind := &SimPin{number: p.Wind}
	hw := &Hardware{
		Climate:  &dev,
		Pressure: simBarometer{now: elapsed},
		Vane:     simVane{now: elapsed},
		DustLED:  &SimPin{number: p.DustLED},
		Dust:     SimADC(func() uint16 { return 1241 }), // ~1.0 V
		Rain:     rain,
		Wind:     wind,
		Clock:    timex.NowUs,
	}
	hw.Simulate = func(ctx context.Context) {
		go pulse(ctx, rain, 20*time.Second)
		pulse(ctx, wind, 200*time.Millisecond)
	}
	return hw, nil
}

// ChipID derives the station identity from the first hardware MAC address.
func ChipID() (string, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, ifc := range ifs {
		if ifc.Flags&net.FlagLoopback != 0 || len(ifc.HardwareAddr) < 6 {
			continue
		}
		return ChipIDFromBytes(ifc.HardwareAddr)
	}
	return "", ErrNoChipID
}

func pulse(ctx context.Context, p *SimPin, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Pulse()
		}
	}
}

// ----------------------------- GPIO (host) -----------------------------------

// SimPin is an input that raises its interrupt on Pulse, and doubles as an
// output pin.
type SimPin struct {
	mu      sync.Mutex
	number  int
	level   bool
	pull    capture.Pull
	irqEdge capture.Edge
	irqFunc func()
}

func (p *SimPin) ConfigureInput(pull capture.Pull) error {
	p.mu.Lock()
	p.pull = pull
	p.level = pull == capture.PullUp
	p.mu.Unlock()
	return nil
}

func (p *SimPin) Set(level bool) {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
}

func (p *SimPin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *SimPin) Number() int { return p.number }

func (p *SimPin) SetIRQ(edge capture.Edge, handler func()) error {
	p.mu.Lock()
	p.irqEdge = edge
	p.irqFunc = handler
	p.mu.Unlock()
	return nil
}

func (p *SimPin) ClearIRQ() error {
	p.mu.Lock()
	p.irqEdge = capture.EdgeNone
	p.irqFunc = nil
	p.mu.Unlock()
	return nil
}

// Pulse simulates one contact closure: a falling then a rising edge. The
// handler runs once if either edge is armed.
func (p *SimPin) Pulse() {
	p.mu.Lock()
	irq := p.irqFunc
	armed := p.irqEdge != capture.EdgeNone
	p.mu.Unlock()
	if armed && irq != nil {
		irq()
	}
}

// ----------------------------- Analog (host) ---------------------------------

// SimADC returns a 12-bit level left-aligned to 16 bits.
type SimADC func() uint16

func (f SimADC) Get() uint16 { return f() << 4 }

// simVane steps clockwise one position every 10 s.
type simVane struct{ now func() float64 }

func (v simVane) Get() uint16 {
	i := int(v.now()/10) % len(sensors.VaneTable)
	return sensors.VaneTable[i] << 4
}

// simBarometer swings ±3 hPa around 1008 hPa over an hour.
type simBarometer struct{ now func() float64 }

func (b simBarometer) ReadPressure() (int32, error) {
	hpa := 1008 + 3*math.Sin(2*math.Pi*b.now()/3600)
	return int32(hpa * 100000), nil
}

// ----------------------------- I²C (host) ------------------------------------

// SimAHT20 emulates an AHT20 on the I²C bus, so the real driver runs on host
// builds. Readings follow a slow sine around 18 °C / 60 %RH.
type SimAHT20 struct {
	Now func() float64

	mu    sync.Mutex
	frame [7]byte
}

func (s *SimAHT20) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case len(w) == 1 && w[0] == 0x71 && len(r) == 1:
		r[0] = 0x18 // calibrated, idle
	case len(w) == 3 && w[0] == 0xAC:
		s.latch()
	case len(w) == 0 && len(r) > 0:
		copy(r, s.frame[:])
	}
	return nil
}

func (s *SimAHT20) latch() {
	t := 0.0
	if s.Now != nil {
		t = s.Now()
	}
	phase := 2 * math.Pi * t / 600
	c := 18 + 4*math.Sin(phase)
	rh := 60 - 10*math.Sin(phase)

	h := uint32(rh / 100 * (1 << 20))
	tr := uint32((c + 50) / 200 * (1 << 20))
	f := [7]byte{
		0x18,
		byte(h >> 12),
		byte(h >> 4),
		byte(h<<4) | byte(tr>>16&0x0F),
		byte(tr >> 8),
		byte(tr),
	}
	f[6] = crc8(f[:6])
	s.frame = f
}

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
