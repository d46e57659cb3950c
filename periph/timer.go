package periph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTimerStuck is returned when a timer's tick task does not exit within
// the join timeout.
var ErrTimerStuck = errors.New("timer tick task did not stop")

// NumCC is the number of timer capture/compare registers.
const NumCC = 6

// CaptureScale converts the tick counter to the value latched into CC. The
// product is a 32-bit register value and wraps once the counter passes
// 4294 ticks.
const CaptureScale = 1_000_000

// Timer models a TIMER peripheral whose counter advances once per tick
// interval of wall-clock time, independent of instruction execution. The
// counter is the only state shared with the tick task.
type Timer struct {
	device

	tickInterval time.Duration
	joinTimeout  time.Duration
	onTick       func(counter uint32)

	counter atomic.Uint32

	start, stop, count, clear *Register
	capture, cc               [NumCC]*Register

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTimer creates a timer peripheral. name is TIMER0 for the instance at
// Timer0Base.
func NewTimer(name string, base uint32, opts ...Option) (*Timer, error) {
	o := buildOptions(opts)
	if o.tickInterval <= 0 {
		return nil, fmt.Errorf("%s: tick interval must be positive", name)
	}

	regs := []Register{
		{Name: "TASKS_START", Addr: base + 0x000},
		{Name: "TASKS_STOP", Addr: base + 0x004},
		{Name: "TASKS_COUNT", Addr: base + 0x008},
		{Name: "TASKS_CLEAR", Addr: base + 0x00C},
		{Name: "TASKS_SHUTDOWN", Addr: base + 0x010},
	}
	regs = append(regs, regArray("TASKS_CAPTURE", NumCC, base+0x040, 4)...)
	regs = append(regs, regArray("EVENTS_COMPARE", NumCC, base+0x140, 4)...)
	regs = append(regs,
		Register{Name: "SHORTS", Addr: base + 0x200},
		Register{Name: "INTENSET", Addr: base + 0x304},
		Register{Name: "INTENCLR", Addr: base + 0x308},
		Register{Name: "MODE", Addr: base + 0x504},
		Register{Name: "BITMODE", Addr: base + 0x508},
		Register{Name: "PRESCALER", Addr: base + 0x510, Reset: 4},
	)
	regs = append(regs, regArray("CC", NumCC, base+0x540, 4)...)

	d, err := newDevice(name, base, o, regs)
	if err != nil {
		return nil, err
	}

	t := &Timer{
		device:       d,
		tickInterval: o.tickInterval,
		joinTimeout:  o.joinTimeout,
		onTick:       o.onTick,
	}
	t.start = t.regs.reg("TASKS_START")
	t.stop = t.regs.reg("TASKS_STOP")
	t.count = t.regs.reg("TASKS_COUNT")
	t.clear = t.regs.reg("TASKS_CLEAR")
	for i := 0; i < NumCC; i++ {
		t.capture[i] = t.regs.reg(fmt.Sprintf("TASKS_CAPTURE[%d]", i))
		t.cc[i] = t.regs.reg(fmt.Sprintf("CC[%d]", i))
	}

	return t, nil
}

// Counter returns the number of ticks since the last clear.
func (t *Timer) Counter() uint32 {
	return t.counter.Load()
}

// Running reports whether the tick task is active.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cancel != nil
}

// Start launches the tick task. It does not block and does nothing if the
// timer is already running.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done

	go t.tick(ctx, done)

	t.log.Info("timer started", "interval", t.tickInterval)
}

func (t *Timer) tick(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := t.counter.Add(1)
			if t.onTick != nil {
				t.onTick(n)
			}
		}
	}
}

// Stop cancels the tick task and waits for it to exit. Once Stop returns
// nil the counter no longer changes on its own. Stop on a stopped timer
// returns nil.
func (t *Timer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel == nil {
		return nil
	}

	t.cancel()

	select {
	case <-t.done:
	case <-time.After(t.joinTimeout):
		return fmt.Errorf("%s after %s: %w", t.name, t.joinTimeout, ErrTimerStuck)
	}

	t.cancel = nil
	t.done = nil

	t.log.Info("timer stopped", "counter", t.counter.Load())
	return nil
}

// Write implements Device.
func (t *Timer) Write(addr, value uint32) {
	t.regs.SetByAddress(addr, value)

	switch addr {
	case t.start.Addr:
		t.Start()
		return
	case t.stop.Addr:
		if err := t.Stop(); err != nil {
			t.log.Error(err, "stopping timer")
		}
		return
	case t.count.Addr:
		t.counter.Add(1)
		return
	case t.clear.Addr:
		t.counter.Store(0)
		return
	}

	for i, capture := range t.capture {
		if addr == capture.Addr {
			t.cc[i].Value = t.counter.Load() * CaptureScale
			return
		}
	}
}
