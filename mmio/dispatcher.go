package mmio

import (
	"encoding/binary"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/nrfsim/emu"
	"github.com/sarchlab/nrfsim/periph"
)

// Stats counts the accesses seen by a Dispatcher.
type Stats struct {
	Reads   uint64
	Writes  uint64
	Unowned uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. Every routed access is logged at V(1).
func WithLogger(log logr.Logger) Option {
	return func(d *Dispatcher) {
		d.log = log
	}
}

// Dispatcher forwards bus accesses to the device models. Accesses are
// handled synchronously on the execution goroutine; a device's side
// effects complete before the access returns.
type Dispatcher struct {
	db      Database
	mem     emu.MemoryAccess
	devices map[string]periph.Device
	order   []periph.Device
	log     logr.Logger
	stats   Stats
}

// NewDispatcher creates a dispatcher that resolves addresses through db
// and mirrors device reads into mem.
func NewDispatcher(
	db Database,
	mem emu.MemoryAccess,
	devices []periph.Device,
	opts ...Option,
) (*Dispatcher, error) {
	d := &Dispatcher{
		db:      db,
		mem:     mem,
		devices: make(map[string]periph.Device, len(devices)),
		log:     logr.Discard(),
	}

	for _, dev := range devices {
		if _, dup := d.devices[dev.Name()]; dup {
			return nil, fmt.Errorf("%s: %w", dev.Name(), ErrDuplicateDevice)
		}
		d.devices[dev.Name()] = dev
		d.order = append(d.order, dev)
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// Devices returns the modeled devices in registration order.
func (d *Dispatcher) Devices() []periph.Device {
	return d.order
}

// Device returns the modeled device with the given name.
func (d *Dispatcher) Device(name string) (periph.Device, bool) {
	dev, ok := d.devices[name]
	return dev, ok
}

// Stats returns the access counters.
func (d *Dispatcher) Stats() Stats {
	return d.stats
}

// Access has the shape of emu.MemHook and routes one access.
func (d *Dispatcher) Access(kind emu.AccessKind, addr uint32, _ int, value uint32) {
	if kind == emu.AccessWrite {
		d.Write(addr, value)
		return
	}
	d.Read(addr)
}

// Read refreshes backing memory at addr from the owning device so the
// pending load observes the device's register value. The whole word
// holding addr is mirrored, so byte and halfword loads at any offset see
// the register. Addresses no device model owns are left alone.
func (d *Dispatcher) Read(addr uint32) {
	addr &^= 3

	entry, dev, ok := d.resolve(addr)
	if !ok {
		return
	}
	d.stats.Reads++

	value, ok := dev.Read(addr)
	if !ok {
		d.log.V(1).Info("mmio read of unknown register", "entry", entry)
		return
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	if err := d.mem.WriteMem(addr, buf[:]); err != nil {
		d.log.Error(err, "mirroring register into memory", "entry", entry)
		return
	}

	d.log.V(1).Info("mmio read", "entry", entry, "value", value)
}

// Write passes value to the owning device, which stores it and runs its
// side effects.
func (d *Dispatcher) Write(addr, value uint32) {
	entry, dev, ok := d.resolve(addr)
	if !ok {
		return
	}
	d.stats.Writes++

	d.log.V(1).Info("mmio write", "entry", entry, "value", value)
	dev.Write(addr, value)
}

func (d *Dispatcher) resolve(addr uint32) (Entry, periph.Device, bool) {
	entry, ok := d.db.Lookup(addr)
	if !ok {
		d.stats.Unowned++
		return Entry{}, nil, false
	}

	dev, ok := d.devices[entry.Device]
	if !ok {
		d.stats.Unowned++
		return entry, nil, false
	}

	return entry, dev, true
}
