package periph

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"
)

// Device is a memory-mapped peripheral. Read and Write are total: an
// address the device does not recognize reads as absent and writes to it
// are dropped.
type Device interface {
	// Name is the peripheral name used by the device register database.
	Name() string
	// Base is the first address of the device's region.
	Base() uint32
	// Size is the length of the device's region in bytes.
	Size() uint32
	Registers() *RegisterFile

	// Read returns the register value at addr.
	Read(addr uint32) (uint32, bool)
	// Write stores value at addr and runs the side effects of the write
	// before returning.
	Write(addr, value uint32)
}

// Default nRF52840 peripheral addresses.
const (
	ClockBase  = 0x40000000
	RadioBase  = 0x40001000
	Timer0Base = 0x40008000
	RTC1Base   = 0x40011000
	P0Base     = 0x50000000

	// RegionSize is the size of every peripheral region.
	RegionSize = 0x1000
)

// Timer defaults.
const (
	DefaultTickInterval = time.Second
	DefaultJoinTimeout  = 5 * time.Second
)

type options struct {
	log          logr.Logger
	tickInterval time.Duration
	joinTimeout  time.Duration
	onTick       func(counter uint32)
}

// Option configures a device. Options that do not apply to a device are
// ignored.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithTickInterval sets the timer tick interval.
func WithTickInterval(d time.Duration) Option {
	return func(o *options) {
		o.tickInterval = d
	}
}

// WithJoinTimeout sets how long stopping a timer waits for its tick task
// to exit.
func WithJoinTimeout(d time.Duration) Option {
	return func(o *options) {
		o.joinTimeout = d
	}
}

// WithTickObserver sets a function called from the timer's tick task after
// every tick. It runs concurrently with the execution goroutine.
func WithTickObserver(fn func(counter uint32)) Option {
	return func(o *options) {
		o.onTick = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{
		log:          logr.Discard(),
		tickInterval: DefaultTickInterval,
		joinTimeout:  DefaultJoinTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// device holds the state shared by every peripheral.
type device struct {
	name string
	base uint32
	regs *RegisterFile
	log  logr.Logger
}

func newDevice(name string, base uint32, o options, regs []Register) (device, error) {
	rf, err := NewRegisterFile(regs...)
	if err != nil {
		return device{}, fmt.Errorf("%s: %w", name, err)
	}

	return device{
		name: name,
		base: base,
		regs: rf,
		log:  o.log.WithValues("device", name),
	}, nil
}

func (d *device) Name() string { return d.name }

func (d *device) Base() uint32 { return d.base }

func (d *device) Size() uint32 { return RegionSize }

func (d *device) Registers() *RegisterFile { return d.regs }

func (d *device) Read(addr uint32) (uint32, bool) {
	return d.regs.ByAddress(addr)
}

// Pins returns the numbers of the bits set in value, lowest first.
func Pins(value uint32) []int {
	pins := []int{}
	for i := 0; i < 32; i++ {
		if value&(1<<i) != 0 {
			pins = append(pins, i)
		}
	}
	return pins
}

func hex(v uint32) string {
	return fmt.Sprintf("0x%08x", v)
}
