package emu

import "github.com/sarchlab/nrfsim/insts"

// BranchUnit implements Thumb branch operations. Every branch reports the
// target so the emulator can start a new block there.
type BranchUnit struct {
	regFile *RegFile
}

// NewBranchUnit creates a new BranchUnit connected to the given register file.
func NewBranchUnit(regFile *RegFile) *BranchUnit {
	return &BranchUnit{regFile: regFile}
}

// B performs a PC-relative branch. The offset is relative to the Thumb
// PC value, the instruction address plus 4.
func (b *BranchUnit) B(offset int32) uint32 {
	target := uint32(int32(b.regFile.PC+4) + offset)
	b.regFile.PC = target &^ 1
	return b.regFile.PC
}

// BL performs a branch with link. The return address, with the Thumb bit
// set, goes to LR.
func (b *BranchUnit) BL(offset int32, size uint32) uint32 {
	b.regFile.LR = (b.regFile.PC + size) | 1
	return b.B(offset)
}

// BX branches to an address held in a register. Exception return values
// pass through unchanged apart from bit 0.
func (b *BranchUnit) BX(target uint32) uint32 {
	b.regFile.PC = target &^ 1
	return b.regFile.PC
}

// BLX branches to an address held in a register and links.
func (b *BranchUnit) BLX(target uint32, size uint32) uint32 {
	b.regFile.LR = (b.regFile.PC + size) | 1
	return b.BX(target)
}

// CheckCondition evaluates a condition code against the current APSR flags.
func (b *BranchUnit) CheckCondition(cond insts.Cond) bool {
	n, z, c, v := b.regFile.Flags()

	switch cond {
	case insts.CondEQ:
		return z
	case insts.CondNE:
		return !z
	case insts.CondCS:
		return c
	case insts.CondCC:
		return !c
	case insts.CondMI:
		return n
	case insts.CondPL:
		return !n
	case insts.CondVS:
		return v
	case insts.CondVC:
		return !v
	case insts.CondHI:
		return c && !z
	case insts.CondLS:
		return !c || z
	case insts.CondGE:
		return n == v
	case insts.CondLT:
		return n != v
	case insts.CondGT:
		return !z && n == v
	case insts.CondLE:
		return z || n != v
	case insts.CondAL:
		return true
	default:
		return false
	}
}
