package emu

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/sarchlab/nrfsim/insts"
)

// ErrHalted is returned when the program executes BKPT with no interrupt
// hook installed to handle it.
var ErrHalted = errors.New("breakpoint halt")

// ctxCheckInterval is the number of instructions between context checks.
const ctxCheckInterval = 1024

type blockHook struct {
	begin, end uint32
	hook       BlockHook
}

// Emulator executes Thumb instructions functionally and implements
// Substrate.
type Emulator struct {
	regFile *RegFile
	memory  *Memory
	decoder *insts.Decoder
	log     logr.Logger

	// Execution units
	alu        *ALU
	lsu        *LoadStoreUnit
	branchUnit *BranchUnit

	// Hooks
	codeHooks      []CodeHook
	memHooks       []MemHook
	blockHooks     []blockHook
	interruptHooks []InterruptHook

	// Execution state
	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
	stopped          atomic.Bool
	newBlock         bool
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithStackPointer sets the initial main stack pointer value.
func WithStackPointer(sp uint32) EmulatorOption {
	return func(e *Emulator) {
		e.regFile.WriteReg(MSP, sp)
	}
}

// WithMaxInstructions sets the instruction budget used when Run is called
// with a count of 0. A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) EmulatorOption {
	return func(e *Emulator) {
		e.log = log
	}
}

// NewEmulator creates a new Thumb emulator with no memory mapped.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: NewRegFile(),
		memory:  NewMemory(),
		decoder: insts.NewDecoder(),
		log:     logr.Discard(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.alu = NewALU(e.regFile)
	e.lsu = NewLoadStoreUnit(e.memory, &e.memHooks)
	e.branchUnit = NewBranchUnit(e.regFile)

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// ReadReg implements RegisterAccess.
func (e *Emulator) ReadReg(reg Reg) uint32 {
	return e.regFile.ReadReg(reg)
}

// WriteReg implements RegisterAccess.
func (e *Emulator) WriteReg(reg Reg, value uint32) {
	e.regFile.WriteReg(reg, value)
}

// ReadMem implements MemoryAccess.
func (e *Emulator) ReadMem(addr uint32, n int) ([]byte, error) {
	return e.memory.Read(addr, n)
}

// WriteMem implements MemoryAccess.
func (e *Emulator) WriteMem(addr uint32, data []byte) error {
	return e.memory.Write(addr, data)
}

// MapRegion implements Substrate.
func (e *Emulator) MapRegion(region Region) error {
	return e.memory.Map(region)
}

// OnCode implements Substrate.
func (e *Emulator) OnCode(hook CodeHook) {
	e.codeHooks = append(e.codeHooks, hook)
}

// OnMemAccess implements Substrate.
func (e *Emulator) OnMemAccess(hook MemHook) {
	e.memHooks = append(e.memHooks, hook)
}

// OnBlock implements Substrate.
func (e *Emulator) OnBlock(begin, end uint32, hook BlockHook) {
	e.blockHooks = append(e.blockHooks, blockHook{begin: begin, end: end, hook: hook})
}

// OnInterrupt implements Substrate.
func (e *Emulator) OnInterrupt(hook InterruptHook) {
	e.interruptHooks = append(e.interruptHooks, hook)
}

// Stop implements Substrate. It is safe to call from any goroutine.
func (e *Emulator) Stop() {
	e.stopped.Store(true)
}

// Run implements Substrate. Reaching until, exhausting the budget or a
// call to Stop end the run without error; a done context returns the
// context's error.
func (e *Emulator) Run(ctx context.Context, begin, until uint32, count uint64) error {
	if count == 0 {
		count = e.maxInstructions
	}

	e.stopped.Store(false)
	e.regFile.PC = begin &^ 1
	e.newBlock = true

	var executed uint64
	for {
		if e.stopped.Load() {
			return nil
		}
		if executed%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if count > 0 && executed >= count {
			return nil
		}

		pc := e.regFile.PC
		if until != 0 && pc == until&^1 {
			return nil
		}

		if e.newBlock {
			e.newBlock = false
			e.fireBlockHooks(pc)
			if e.regFile.PC != pc {
				e.newBlock = true
				continue
			}
			if e.stopped.Load() {
				return nil
			}
		}

		inst, err := e.fetch(pc)
		if err != nil {
			return fmt.Errorf("fetch at 0x%08x: %w", pc, err)
		}

		for _, hook := range e.codeHooks {
			hook(pc, inst.Size)
		}
		if e.regFile.PC != pc {
			// a hook redirected execution
			e.newBlock = true
			continue
		}
		if e.stopped.Load() {
			return nil
		}

		if err := e.execute(inst); err != nil {
			return fmt.Errorf("%s at 0x%08x: %w", inst.Op, pc, err)
		}

		executed++
		e.instructionCount++
	}
}

// Step executes a single instruction at PC without firing block hooks.
func (e *Emulator) Step() error {
	pc := e.regFile.PC
	inst, err := e.fetch(pc)
	if err != nil {
		return fmt.Errorf("fetch at 0x%08x: %w", pc, err)
	}

	if err := e.execute(inst); err != nil {
		return fmt.Errorf("%s at 0x%08x: %w", inst.Op, pc, err)
	}
	e.instructionCount++

	return nil
}

// fetch reads and decodes the instruction at addr. Instruction fetches do
// not trigger memory hooks.
func (e *Emulator) fetch(addr uint32) (*insts.Instruction, error) {
	hw1, err := e.memory.Read16(addr)
	if err != nil {
		return nil, err
	}

	var hw2 uint16
	if insts.Is32Bit(hw1) {
		hw2, err = e.memory.Read16(addr + 2)
		if err != nil {
			return nil, err
		}
	}

	return e.decoder.Decode(hw1, hw2), nil
}

func (e *Emulator) fireBlockHooks(addr uint32) {
	for _, bh := range e.blockHooks {
		if addr >= bh.begin && addr <= bh.end {
			bh.hook(addr)
		}
	}
}

// raise reports a processor exception to the interrupt hooks. It returns
// false if no hook is installed.
func (e *Emulator) raise(excNo int) bool {
	for _, hook := range e.interruptHooks {
		hook(excNo)
	}
	return len(e.interruptHooks) > 0
}
