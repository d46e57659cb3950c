package periph

// Clock models the CLOCK peripheral. Starting a clock completes at once.
type Clock struct {
	device

	hfStart, hfStop, lfStart, lfStop *Register
	hfStarted, lfStarted             *Register
	hfStat, lfStat                   *Register
}

// clockRunning is the STATE bit of HFCLKSTAT and LFCLKSTAT.
const clockRunning = 1 << 16

// NewClock creates the CLOCK peripheral at base.
func NewClock(base uint32, opts ...Option) (*Clock, error) {
	d, err := newDevice("CLOCK", base, buildOptions(opts), []Register{
		{Name: "TASKS_HFCLKSTART", Addr: base + 0x000},
		{Name: "TASKS_HFCLKSTOP", Addr: base + 0x004},
		{Name: "TASKS_LFCLKSTART", Addr: base + 0x008},
		{Name: "TASKS_LFCLKSTOP", Addr: base + 0x00C},
		{Name: "EVENTS_HFCLKSTARTED", Addr: base + 0x100, Reset: 1},
		{Name: "EVENTS_LFCLKSTARTED", Addr: base + 0x104},
		{Name: "INTENSET", Addr: base + 0x304},
		{Name: "INTENCLR", Addr: base + 0x308},
		{Name: "HFCLKSTAT", Addr: base + 0x40C},
		{Name: "LFCLKSTAT", Addr: base + 0x418},
		{Name: "LFCLKSRC", Addr: base + 0x518},
	})
	if err != nil {
		return nil, err
	}

	c := &Clock{device: d}
	c.hfStart = c.regs.reg("TASKS_HFCLKSTART")
	c.hfStop = c.regs.reg("TASKS_HFCLKSTOP")
	c.lfStart = c.regs.reg("TASKS_LFCLKSTART")
	c.lfStop = c.regs.reg("TASKS_LFCLKSTOP")
	c.hfStarted = c.regs.reg("EVENTS_HFCLKSTARTED")
	c.lfStarted = c.regs.reg("EVENTS_LFCLKSTARTED")
	c.hfStat = c.regs.reg("HFCLKSTAT")
	c.lfStat = c.regs.reg("LFCLKSTAT")

	return c, nil
}

// Write implements Device.
func (c *Clock) Write(addr, value uint32) {
	c.regs.SetByAddress(addr, value)

	switch addr {
	case c.hfStart.Addr:
		c.hfStarted.Value = 1
		c.hfStat.Value |= clockRunning
	case c.hfStop.Addr:
		c.hfStarted.Value = 0
		c.hfStat.Value &^= clockRunning
	case c.lfStart.Addr:
		c.lfStarted.Value = 1
		c.lfStat.Value |= clockRunning
	case c.lfStop.Addr:
		c.lfStat.Value &^= clockRunning
	}
}
