package periph

// NumRTCCompare is the number of RTC compare registers.
const NumRTCCompare = 4

// RTC models a real-time counter. The counter only moves when firmware or
// a script writes it; START and STOP track the running state.
type RTC struct {
	device

	start, stop, clear *Register
	counter            *Register

	running bool
}

// NewRTC creates the RTC1 peripheral at base.
func NewRTC(base uint32, opts ...Option) (*RTC, error) {
	regs := []Register{
		{Name: "TASKS_START", Addr: base + 0x000},
		{Name: "TASKS_STOP", Addr: base + 0x004},
		{Name: "TASKS_CLEAR", Addr: base + 0x008},
		{Name: "TASKS_TRIGOVRFLW", Addr: base + 0x00C},
		{Name: "EVENTS_TICK", Addr: base + 0x100},
		{Name: "EVENTS_OVRFLW", Addr: base + 0x104},
	}
	regs = append(regs, regArray("EVENTS_COMPARE", NumRTCCompare, base+0x140, 4)...)
	regs = append(regs,
		Register{Name: "INTENSET", Addr: base + 0x304},
		Register{Name: "INTENCLR", Addr: base + 0x308},
		Register{Name: "EVTEN", Addr: base + 0x340},
		Register{Name: "EVTENSET", Addr: base + 0x344},
		Register{Name: "EVTENCLR", Addr: base + 0x348},
		Register{Name: "COUNTER", Addr: base + 0x504},
		Register{Name: "PRESCALER", Addr: base + 0x508},
	)
	regs = append(regs, regArray("CC", NumRTCCompare, base+0x540, 4)...)

	d, err := newDevice("RTC1", base, buildOptions(opts), regs)
	if err != nil {
		return nil, err
	}

	r := &RTC{device: d}
	r.start = r.regs.reg("TASKS_START")
	r.stop = r.regs.reg("TASKS_STOP")
	r.clear = r.regs.reg("TASKS_CLEAR")
	r.counter = r.regs.reg("COUNTER")

	return r, nil
}

// Running reports whether the counter was started.
func (r *RTC) Running() bool {
	return r.running
}

// Write implements Device.
func (r *RTC) Write(addr, value uint32) {
	r.regs.SetByAddress(addr, value)

	switch addr {
	case r.start.Addr:
		r.running = true
	case r.stop.Addr:
		r.running = false
	case r.clear.Addr:
		r.counter.Value = 0
	}
}
