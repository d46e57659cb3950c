package emu

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/sarchlab/nrfsim/insts"
)

var (
	// ErrUndefined is returned for undefined encodings when no interrupt
	// hook is installed.
	ErrUndefined = errors.New("undefined instruction")

	// ErrUnsupported is returned for valid encodings the engine does not
	// implement.
	ErrUnsupported = errors.New("unsupported instruction")
)

// execute runs one decoded instruction. PC still holds the address of the
// instruction; it is advanced here unless the instruction branched.
func (e *Emulator) execute(inst *insts.Instruction) error {
	pc := e.regFile.PC

	branched, err := e.dispatch(inst)
	if err != nil {
		return err
	}

	if branched {
		e.newBlock = true
		return nil
	}

	if e.regFile.PC == pc {
		e.regFile.PC = pc + inst.Size
	} else {
		// an interrupt hook redirected execution
		e.newBlock = true
	}

	return nil
}

func (e *Emulator) dispatch(inst *insts.Instruction) (bool, error) {
	switch inst.Format {
	case insts.FormatShiftImm:
		e.executeShiftImm(inst)
	case insts.FormatAddSubReg, insts.FormatAddSubImm:
		e.executeAddSub(inst)
	case insts.FormatImm8:
		e.executeImm8(inst)
	case insts.FormatDataProc:
		e.executeDataProc(inst)
	case insts.FormatHiReg:
		return e.executeHiReg(inst), nil
	case insts.FormatBranchExchange:
		e.executeBranchExchange(inst)
		return true, nil
	case insts.FormatLoadStore:
		return false, e.executeLoadStore(inst)
	case insts.FormatAddress:
		e.executeAddress(inst)
	case insts.FormatExtend:
		e.executeExtend(inst)
	case insts.FormatPushPop:
		return e.executePushPop(inst)
	case insts.FormatMultiple:
		return false, e.executeMultiple(inst)
	case insts.FormatCompareBranch:
		return e.executeCompareBranch(inst), nil
	case insts.FormatBranchCond, insts.FormatBranch:
		if !e.branchUnit.CheckCondition(inst.Cond) {
			return false, nil
		}
		e.branchUnit.B(inst.BranchOffset)
		return true, nil
	case insts.FormatBranchLink:
		e.branchUnit.BL(inst.BranchOffset, inst.Size)
		return true, nil
	case insts.FormatException:
		return false, e.executeException(inst)
	case insts.FormatSystem:
		return false, e.executeSystem(inst)
	case insts.FormatSkipped:
		e.log.V(1).Info("skipping instruction", "pc", fmt.Sprintf("0x%08x", e.regFile.PC))
	default:
		return false, ErrUndefined
	}

	return false, nil
}

func (e *Emulator) executeShiftImm(inst *insts.Instruction) {
	rm := e.regFile.ReadGPR(inst.Rm)

	if inst.Op == insts.OpMOV {
		e.regFile.WriteGPR(inst.Rd, e.alu.Logic(rm, true))
		return
	}

	e.regFile.WriteGPR(inst.Rd, e.alu.Shift(inst.Op, rm, inst.Imm, true))
}

func (e *Emulator) executeAddSub(inst *insts.Instruction) {
	rn := e.regFile.ReadGPR(inst.Rn)

	operand := inst.Imm
	if inst.Format == insts.FormatAddSubReg {
		operand = e.regFile.ReadGPR(inst.Rm)
	}

	var result uint32
	if inst.Op == insts.OpSUB {
		result = e.alu.Sub(rn, operand, true)
	} else {
		result = e.alu.Add(rn, operand, true)
	}
	e.regFile.WriteGPR(inst.Rd, result)
}

func (e *Emulator) executeImm8(inst *insts.Instruction) {
	rdn := e.regFile.ReadGPR(inst.Rn)

	switch inst.Op {
	case insts.OpMOV:
		e.regFile.WriteGPR(inst.Rd, e.alu.Logic(inst.Imm, true))
	case insts.OpCMP:
		e.alu.Sub(rdn, inst.Imm, true)
	case insts.OpADD:
		e.regFile.WriteGPR(inst.Rd, e.alu.Add(rdn, inst.Imm, true))
	case insts.OpSUB:
		e.regFile.WriteGPR(inst.Rd, e.alu.Sub(rdn, inst.Imm, true))
	}
}

func (e *Emulator) executeDataProc(inst *insts.Instruction) {
	rdn := e.regFile.ReadGPR(inst.Rn)
	rm := e.regFile.ReadGPR(inst.Rm)

	var result uint32
	write := true

	switch inst.Op {
	case insts.OpAND:
		result = e.alu.Logic(rdn&rm, true)
	case insts.OpEOR:
		result = e.alu.Logic(rdn^rm, true)
	case insts.OpORR:
		result = e.alu.Logic(rdn|rm, true)
	case insts.OpBIC:
		result = e.alu.Logic(rdn&^rm, true)
	case insts.OpMVN:
		result = e.alu.Logic(^rm, true)
	case insts.OpTST:
		e.alu.Logic(rdn&rm, true)
		write = false
	case insts.OpLSL, insts.OpLSR, insts.OpASR, insts.OpROR:
		result = e.alu.Shift(inst.Op, rdn, rm, true)
	case insts.OpADC:
		result = e.alu.Adc(rdn, rm, true)
	case insts.OpSBC:
		result = e.alu.Sbc(rdn, rm, true)
	case insts.OpNEG:
		result = e.alu.Sub(0, rm, true)
	case insts.OpCMP:
		e.alu.Sub(rdn, rm, true)
		write = false
	case insts.OpCMN:
		e.alu.Add(rdn, rm, true)
		write = false
	case insts.OpMUL:
		result = e.alu.Logic(rdn*rm, true)
	}

	if write {
		e.regFile.WriteGPR(inst.Rd, result)
	}
}

// executeHiReg runs ADD, CMP and MOV on the full register set. Writing PC
// is a branch.
func (e *Emulator) executeHiReg(inst *insts.Instruction) bool {
	rm := e.regFile.ReadGPR(inst.Rm)

	var result uint32
	switch inst.Op {
	case insts.OpCMP:
		e.alu.Sub(e.regFile.ReadGPR(inst.Rn), rm, true)
		return false
	case insts.OpADD:
		result = e.regFile.ReadGPR(inst.Rn) + rm
	case insts.OpMOV:
		result = rm
	}

	if inst.Rd == insts.RegPC {
		e.branchUnit.BX(result)
		return true
	}

	e.regFile.WriteGPR(inst.Rd, result)
	return false
}

func (e *Emulator) executeBranchExchange(inst *insts.Instruction) {
	target := e.regFile.ReadGPR(inst.Rm)

	if inst.Op == insts.OpBLX {
		e.branchUnit.BLX(target, inst.Size)
		return
	}
	e.branchUnit.BX(target)
}

// baseAddress returns the base for an addressing computation. PC-relative
// forms use the word-aligned pipeline PC.
func (e *Emulator) baseAddress(rn uint8) uint32 {
	if rn == insts.RegPC {
		return (e.regFile.PC + 4) &^ 3
	}
	return e.regFile.ReadGPR(rn)
}

func (e *Emulator) executeLoadStore(inst *insts.Instruction) error {
	offset := inst.Imm
	if inst.RegOffset {
		offset = e.regFile.ReadGPR(inst.Rm)
	}
	addr := e.baseAddress(inst.Rn) + offset

	if inst.Op == insts.OpSTR {
		return e.lsu.Store(addr, inst.Width, e.regFile.ReadGPR(inst.Rd))
	}

	value, err := e.lsu.Load(addr, inst.Width, inst.Signed)
	if err != nil {
		return err
	}
	e.regFile.WriteGPR(inst.Rd, value)

	return nil
}

func (e *Emulator) executeAddress(inst *insts.Instruction) {
	base := e.baseAddress(inst.Rn)

	if inst.Op == insts.OpSUB {
		e.regFile.WriteGPR(inst.Rd, base-inst.Imm)
		return
	}
	e.regFile.WriteGPR(inst.Rd, base+inst.Imm)
}

func (e *Emulator) executeExtend(inst *insts.Instruction) {
	rm := e.regFile.ReadGPR(inst.Rm)

	var result uint32
	switch inst.Op {
	case insts.OpSXTH:
		result = uint32(int32(int16(rm)))
	case insts.OpSXTB:
		result = uint32(int32(int8(rm)))
	case insts.OpUXTH:
		result = rm & 0xffff
	case insts.OpUXTB:
		result = rm & 0xff
	}
	e.regFile.WriteGPR(inst.Rd, result)
}

// executePushPop handles PUSH and POP. Registers are stored in ascending
// order from the lowest address. Popping PC is a branch.
func (e *Emulator) executePushPop(inst *insts.Instruction) (bool, error) {
	n := uint32(bits.OnesCount16(inst.RegList))
	sp := e.regFile.ReadReg(SP)

	if inst.Op == insts.OpPUSH {
		addr := sp - 4*n
		for r := uint8(0); r < 16; r++ {
			if inst.RegList&(1<<r) == 0 {
				continue
			}
			if err := e.lsu.Store(addr, 4, e.regFile.ReadGPR(r)); err != nil {
				return false, err
			}
			addr += 4
		}
		e.regFile.WriteReg(SP, sp-4*n)
		return false, nil
	}

	addr := sp
	var target uint32
	popsPC := false
	for r := uint8(0); r < 16; r++ {
		if inst.RegList&(1<<r) == 0 {
			continue
		}
		value, err := e.lsu.Load(addr, 4, false)
		if err != nil {
			return false, err
		}
		if r == insts.RegPC {
			target, popsPC = value, true
		} else {
			e.regFile.WriteGPR(r, value)
		}
		addr += 4
	}
	e.regFile.WriteReg(SP, sp+4*n)

	if popsPC {
		e.branchUnit.BX(target)
	}
	return popsPC, nil
}

func (e *Emulator) executeMultiple(inst *insts.Instruction) error {
	addr := e.regFile.ReadGPR(inst.Rn)
	n := uint32(bits.OnesCount16(inst.RegList))
	end := addr + 4*n

	for r := uint8(0); r < 8; r++ {
		if inst.RegList&(1<<r) == 0 {
			continue
		}

		if inst.Op == insts.OpSTM {
			if err := e.lsu.Store(addr, 4, e.regFile.ReadGPR(r)); err != nil {
				return err
			}
		} else {
			value, err := e.lsu.Load(addr, 4, false)
			if err != nil {
				return err
			}
			e.regFile.WriteGPR(r, value)
		}
		addr += 4
	}

	if inst.Writeback {
		e.regFile.WriteGPR(inst.Rn, end)
	}
	return nil
}

func (e *Emulator) executeCompareBranch(inst *insts.Instruction) bool {
	zero := e.regFile.ReadGPR(inst.Rn) == 0
	if zero != (inst.Op == insts.OpCBZ) {
		return false
	}
	e.branchUnit.B(inst.BranchOffset)
	return true
}

func (e *Emulator) executeException(inst *insts.Instruction) error {
	switch inst.Op {
	case insts.OpSVC:
		e.raise(ExcSVC)
	case insts.OpBKPT:
		if !e.raise(ExcBKPT) {
			return ErrHalted
		}
	case insts.OpUDF:
		if !e.raise(ExcUndefined) {
			return ErrUndefined
		}
	}
	return nil
}

func (e *Emulator) executeSystem(inst *insts.Instruction) error {
	switch inst.Op {
	case insts.OpNOP:
	case insts.OpCPS:
		if inst.Disable {
			e.regFile.PRIMASK = 1
		} else {
			e.regFile.PRIMASK = 0
		}
	case insts.OpMRS:
		e.regFile.WriteGPR(inst.Rd, e.readSpecial(inst.SYSm))
	case insts.OpMSR:
		e.writeSpecial(inst.SYSm, e.regFile.ReadGPR(inst.Rn))
	case insts.OpIT:
		return ErrUnsupported
	default:
		return ErrUndefined
	}
	return nil
}

func (e *Emulator) readSpecial(sysm uint8) uint32 {
	switch sysm {
	case insts.SysAPSR:
		return e.regFile.XPSR & xpsrFlags
	case insts.SysIAPSR, insts.SysIPSR:
		return e.regFile.XPSR & (xpsrFlags | xpsrIPSRMask)
	case insts.SysEAPSR, insts.SysXPSR, insts.SysEPSR, insts.SysIEPSR:
		// EPSR reads as zero
		return e.regFile.XPSR &^ XPSRThumb
	case insts.SysMSP:
		return e.regFile.MSP
	case insts.SysPSP:
		return e.regFile.PSP
	case insts.SysPRIMASK:
		return e.regFile.PRIMASK
	case insts.SysCONTROL:
		return e.regFile.CONTROL
	}
	return 0
}

func (e *Emulator) writeSpecial(sysm uint8, value uint32) {
	switch sysm {
	case insts.SysAPSR, insts.SysIAPSR, insts.SysEAPSR, insts.SysXPSR:
		e.regFile.XPSR = (e.regFile.XPSR &^ xpsrFlags) | (value & xpsrFlags)
	case insts.SysMSP:
		e.regFile.WriteReg(MSP, value)
	case insts.SysPSP:
		e.regFile.WriteReg(PSP, value)
	case insts.SysPRIMASK:
		e.regFile.WriteReg(PRIMASK, value)
	case insts.SysCONTROL:
		// FPCA is only changed by floating-point activity
		mask := ControlNPRIV
		if e.regFile.XPSR&xpsrIPSRMask == 0 {
			// SPSEL is ignored in handler mode
			mask |= ControlSPSEL
		}
		e.regFile.CONTROL = (e.regFile.CONTROL &^ mask) | (value & mask)
	}
}
