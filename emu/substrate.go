package emu

import "context"

// AccessKind tags a memory access reported to a MemHook.
type AccessKind uint8

// Memory access kinds.
const (
	AccessRead AccessKind = iota
	AccessWrite
)

func (k AccessKind) String() string {
	if k == AccessWrite {
		return "write"
	}
	return "read"
}

// CodeHook is called before each instruction executes.
type CodeHook func(addr uint32, size uint32)

// MemHook is called before a data access is performed. For reads, value
// is zero.
type MemHook func(kind AccessKind, addr uint32, size int, value uint32)

// BlockHook is called when execution reaches the start of a new basic
// block whose address lies within the hook's range.
type BlockHook func(addr uint32)

// InterruptHook is called when an instruction raises a processor
// exception (SVC, BKPT, UDF). excNo uses the unicorn numbering: 2 for SVC,
// 7 for BKPT, 1 for undefined instructions.
type InterruptHook func(excNo int)

// Exception numbers reported to InterruptHook.
const (
	ExcUndefined = 1
	ExcSVC       = 2
	ExcBKPT      = 7
)

// RegisterAccess reads and writes registers by symbolic id.
type RegisterAccess interface {
	ReadReg(reg Reg) uint32
	WriteReg(reg Reg, value uint32)
}

// MemoryAccess reads and writes emulated memory by absolute address. These
// accesses do not trigger memory hooks.
type MemoryAccess interface {
	ReadMem(addr uint32, n int) ([]byte, error)
	WriteMem(addr uint32, data []byte) error
}

// Machine is the register and memory view of the substrate that the
// interrupt controller and the devices operate on.
type Machine interface {
	RegisterAccess
	MemoryAccess
}

// Substrate is the instruction execution engine the harness drives.
//
// All hooks run synchronously on the goroutine that called Run and may
// freely access registers and memory. A hook that moves PC redirects
// execution to the new address.
type Substrate interface {
	Machine

	// MapRegion makes a region of the address space accessible.
	MapRegion(region Region) error

	OnCode(hook CodeHook)
	OnMemAccess(hook MemHook)
	OnBlock(begin, end uint32, hook BlockHook)
	OnInterrupt(hook InterruptHook)

	// Run executes from begin until PC reaches until, count instructions
	// have executed (0 means unlimited), Stop is called or ctx is done.
	Run(ctx context.Context, begin, until uint32, count uint64) error

	// Stop halts a running Run at the next instruction boundary.
	Stop()
}
