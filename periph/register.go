// Package periph provides the peripheral register model and the simulated
// nRF52840 devices (clock, GPIO, RTC, radio and timer).
package periph

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDuplicateRegister is returned when a register file is built with two
// registers sharing a name or an address.
var ErrDuplicateRegister = errors.New("duplicate register")

// Register is a 32-bit memory-mapped register.
type Register struct {
	Name  string
	Addr  uint32
	Reset uint32
	Value uint32
}

// Bit reports whether bit n of the value is set.
func (r *Register) Bit(n uint) bool {
	return r.Value&(1<<n) != 0
}

// Bits returns bits start through end, inclusive, shifted down to bit 0.
func (r *Register) Bits(start, end uint) uint32 {
	mask := (uint64(1)<<(end-start+1) - 1) << start
	return uint32((uint64(r.Value) & mask) >> start)
}

func (r *Register) String() string {
	return fmt.Sprintf("%s@0x%08x=0x%08x", r.Name, r.Addr, r.Value)
}

// RegisterFile indexes a device's registers by name and by address. Both
// indexes share the same Register values.
type RegisterFile struct {
	regs   []*Register
	byName map[string]*Register
	byAddr map[uint32]*Register
}

// NewRegisterFile builds a register file. Every register starts at its
// reset value.
func NewRegisterFile(regs ...Register) (*RegisterFile, error) {
	rf := &RegisterFile{
		byName: make(map[string]*Register, len(regs)),
		byAddr: make(map[uint32]*Register, len(regs)),
	}

	for i := range regs {
		r := regs[i]
		r.Value = r.Reset

		if _, dup := rf.byName[r.Name]; dup {
			return nil, fmt.Errorf("name %s: %w", r.Name, ErrDuplicateRegister)
		}
		if other, dup := rf.byAddr[r.Addr]; dup {
			return nil, fmt.Errorf("%s and %s at 0x%08x: %w",
				other.Name, r.Name, r.Addr, ErrDuplicateRegister)
		}

		reg := &r
		rf.regs = append(rf.regs, reg)
		rf.byName[r.Name] = reg
		rf.byAddr[r.Addr] = reg
	}

	sort.Slice(rf.regs, func(i, j int) bool {
		return rf.regs[i].Addr < rf.regs[j].Addr
	})

	return rf, nil
}

// ByName returns the register with the given name.
func (rf *RegisterFile) ByName(name string) (*Register, bool) {
	r, ok := rf.byName[name]
	return r, ok
}

// ByAddress returns the value of the register at addr. ok is false when
// no register lives there.
func (rf *RegisterFile) ByAddress(addr uint32) (value uint32, ok bool) {
	r, ok := rf.byAddr[addr]
	if !ok {
		return 0, false
	}
	return r.Value, true
}

// RegisterAt returns the register at addr.
func (rf *RegisterFile) RegisterAt(addr uint32) (*Register, bool) {
	r, ok := rf.byAddr[addr]
	return r, ok
}

// SetByAddress stores value in the register at addr. Unknown addresses
// are ignored.
func (rf *RegisterFile) SetByAddress(addr, value uint32) {
	if r, ok := rf.byAddr[addr]; ok {
		r.Value = value
	}
}

// Registers returns the registers in address order.
func (rf *RegisterFile) Registers() []*Register {
	return rf.regs
}

// Reset restores every register to its reset value.
func (rf *RegisterFile) Reset() {
	for _, r := range rf.regs {
		r.Value = r.Reset
	}
}

// reg returns a register that the device definition guarantees exists.
func (rf *RegisterFile) reg(name string) *Register {
	r, ok := rf.byName[name]
	if !ok {
		panic(fmt.Sprintf("register %s not defined", name))
	}
	return r
}

// regArray returns n registers named name[i], stride bytes apart.
func regArray(name string, n int, addr, stride uint32) []Register {
	regs := make([]Register, n)
	for i := range regs {
		regs[i] = Register{
			Name: fmt.Sprintf("%s[%d]", name, i),
			Addr: addr + uint32(i)*stride,
		}
	}
	return regs
}
