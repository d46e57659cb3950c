package periph

// PinChange tells a pin observer which way the pins moved.
type PinChange int

// Pin changes.
const (
	PinsSet PinChange = iota
	PinsCleared
)

func (c PinChange) String() string {
	if c == PinsCleared {
		return "cleared"
	}
	return "set"
}

// PinObserver receives the pins changed by an OUTSET or OUTCLR write.
type PinObserver func(change PinChange, pins []int)

// NumPins is the number of pins of a GPIO port.
const NumPins = 32

// GPIO models a GPIO port. Output changes are reported to observers.
type GPIO struct {
	device

	out, outSet, outClr *Register
	dir, dirSet, dirClr *Register

	observers []PinObserver
}

// NewGPIO creates GPIO port P0 at base.
func NewGPIO(base uint32, opts ...Option) (*GPIO, error) {
	regs := []Register{
		{Name: "OUT", Addr: base + 0x504},
		{Name: "OUTSET", Addr: base + 0x508},
		{Name: "OUTCLR", Addr: base + 0x50C},
		{Name: "IN", Addr: base + 0x510},
		{Name: "DIR", Addr: base + 0x514},
		{Name: "DIRSET", Addr: base + 0x518},
		{Name: "DIRCLR", Addr: base + 0x51C},
		{Name: "LATCH", Addr: base + 0x520},
		{Name: "DETECTMODE", Addr: base + 0x524},
	}
	regs = append(regs, regArray("PIN_CNF", NumPins, base+0x700, 4)...)

	d, err := newDevice("P0", base, buildOptions(opts), regs)
	if err != nil {
		return nil, err
	}

	g := &GPIO{device: d}
	g.out = g.regs.reg("OUT")
	g.outSet = g.regs.reg("OUTSET")
	g.outClr = g.regs.reg("OUTCLR")
	g.dir = g.regs.reg("DIR")
	g.dirSet = g.regs.reg("DIRSET")
	g.dirClr = g.regs.reg("DIRCLR")

	return g, nil
}

// OnPins registers an observer for output pin changes.
func (g *GPIO) OnPins(observer PinObserver) {
	g.observers = append(g.observers, observer)
}

// Out returns the output register.
func (g *GPIO) Out() uint32 {
	return g.out.Value
}

// SetInput drives the input register, as an external circuit would.
func (g *GPIO) SetInput(value uint32) {
	g.regs.reg("IN").Value = value
}

// Write implements Device.
func (g *GPIO) Write(addr, value uint32) {
	g.regs.SetByAddress(addr, value)

	switch addr {
	case g.outSet.Addr:
		g.out.Value |= value
		g.notify(PinsSet, value)
	case g.outClr.Addr:
		g.out.Value &^= value
		g.notify(PinsCleared, value)
	case g.dirSet.Addr:
		g.dir.Value |= value
	case g.dirClr.Addr:
		g.dir.Value &^= value
	}
}

func (g *GPIO) notify(change PinChange, value uint32) {
	pins := Pins(value)
	g.log.Info("gpio pins "+change.String(), "pins", pins)

	for _, observer := range g.observers {
		observer(change, pins)
	}
}
