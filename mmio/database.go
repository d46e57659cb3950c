// Package mmio routes memory-mapped I/O accesses reported by the execution
// substrate to the peripheral that owns the address.
package mmio

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sarchlab/nrfsim/periph"
)

var (
	// ErrOverlap is returned when two devices claim the same addresses.
	ErrOverlap = errors.New("device regions overlap")

	// ErrDuplicateDevice is returned when two devices share a name.
	ErrDuplicateDevice = errors.New("duplicate device name")
)

// Entry describes the register that lives at an address.
type Entry struct {
	// Device is the name of the owning peripheral.
	Device string

	// Register is the register name, empty when the address falls inside
	// the device's region but matches no known register.
	Register string

	Addr uint32
}

func (e Entry) String() string {
	if e.Register == "" {
		return fmt.Sprintf("%s@0x%08x", e.Device, e.Addr)
	}
	return fmt.Sprintf("%s.%s@0x%08x", e.Device, e.Register, e.Addr)
}

// Database maps an address to the register found there. It is populated
// once before execution starts and only read afterwards.
type Database interface {
	Lookup(addr uint32) (Entry, bool)
}

type deviceRange struct {
	base, end uint32 // end is exclusive
	device    periph.Device
}

// RangeTable is a Database built from the address regions of a fixed set
// of devices.
type RangeTable struct {
	ranges []deviceRange
}

// NewRangeTable builds the table eagerly. Overlapping regions and
// duplicate device names are rejected.
func NewRangeTable(devices ...periph.Device) (*RangeTable, error) {
	t := &RangeTable{}
	names := make(map[string]bool, len(devices))

	for _, d := range devices {
		if names[d.Name()] {
			return nil, fmt.Errorf("%s: %w", d.Name(), ErrDuplicateDevice)
		}
		names[d.Name()] = true

		t.ranges = append(t.ranges, deviceRange{
			base:   d.Base(),
			end:    d.Base() + d.Size(),
			device: d,
		})
	}

	sort.Slice(t.ranges, func(i, j int) bool {
		return t.ranges[i].base < t.ranges[j].base
	})

	for i := 1; i < len(t.ranges); i++ {
		prev, cur := t.ranges[i-1], t.ranges[i]
		if cur.base < prev.end {
			return nil, fmt.Errorf("%s and %s at 0x%08x: %w",
				prev.device.Name(), cur.device.Name(), cur.base, ErrOverlap)
		}
	}

	return t, nil
}

// Lookup implements Database.
func (t *RangeTable) Lookup(addr uint32) (Entry, bool) {
	i := sort.Search(len(t.ranges), func(i int) bool {
		return t.ranges[i].end > addr
	})
	if i == len(t.ranges) || addr < t.ranges[i].base {
		return Entry{}, false
	}

	d := t.ranges[i].device
	e := Entry{Device: d.Name(), Addr: addr}
	if reg, ok := d.Registers().RegisterAt(addr); ok {
		e.Register = reg.Name
	}

	return e, true
}
