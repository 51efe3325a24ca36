package capture

import "errors"

// Edge selection for IRQ.
type Edge uint8

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	}
	return "none"
}

// ParseEdge maps a config string to an Edge; unknown names yield EdgeNone.
func ParseEdge(s string) Edge {
	switch s {
	case "rising":
		return EdgeRising
	case "falling":
		return EdgeFalling
	case "both":
		return EdgeBoth
	}
	return EdgeNone
}

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// ParsePull maps a config string to a Pull; unknown names yield PullNone.
func ParsePull(s string) Pull {
	switch s {
	case "up":
		return PullUp
	case "down":
		return PullDown
	}
	return PullNone
}

// IRQPin is the subset of a GPIO input the capture path needs.
type IRQPin interface {
	ConfigureInput(pull Pull) error
	Get() bool
	Number() int
	SetIRQ(edge Edge, handler func()) error
	ClearIRQ() error
}

var ErrNoEdge = errors.New("capture: no edge selected")

// Attach configures pin as an input and routes its interrupts to c.
// clock must be monotonic and callable from interrupt context.
// The returned cancel clears the interrupt.
func Attach(pin IRQPin, pull Pull, edge Edge, c *Counter, clock func() int64) (cancel func(), err error) {
	if edge == EdgeNone {
		return nil, ErrNoEdge
	}
	if err := pin.ConfigureInput(pull); err != nil {
		return nil, err
	}
	// ISR handler: timestamp + non-blocking send, nothing else.
	handler := func() {
		c.OnEdge(clock())
	}
	if err := pin.SetIRQ(edge, handler); err != nil {
		return nil, err
	}
	return func() { _ = pin.ClearIRQ() }, nil
}
