package emu

import (
	"math/bits"

	"github.com/sarchlab/nrfsim/insts"
)

// ALU implements Thumb arithmetic, logic and shift operations.
type ALU struct {
	regFile *RegFile
}

// NewALU creates a new ALU connected to the given register file.
func NewALU(regFile *RegFile) *ALU {
	return &ALU{regFile: regFile}
}

// AddWithCarry returns x + y + carry together with the carry out and the
// signed overflow of the addition.
func AddWithCarry(x, y uint32, carry bool) (result uint32, carryOut, overflow bool) {
	var c uint32
	if carry {
		c = 1
	}

	sum, c1 := bits.Add32(x, y, c)
	result = sum
	carryOut = c1 == 1

	// Overflow occurs when both operands have the same sign and the
	// result's sign differs
	overflow = (^(x ^ y)&(x^result))>>31 == 1

	return result, carryOut, overflow
}

// Add returns x + y.
func (a *ALU) Add(x, y uint32, setFlags bool) uint32 {
	return a.addc(x, y, false, setFlags)
}

// Adc returns x + y + C.
func (a *ALU) Adc(x, y uint32, setFlags bool) uint32 {
	_, _, c, _ := a.regFile.Flags()
	return a.addc(x, y, c, setFlags)
}

// Sub returns x - y. C is set when no borrow occurred.
func (a *ALU) Sub(x, y uint32, setFlags bool) uint32 {
	return a.addc(x, ^y, true, setFlags)
}

// Sbc returns x - y - NOT(C).
func (a *ALU) Sbc(x, y uint32, setFlags bool) uint32 {
	_, _, c, _ := a.regFile.Flags()
	return a.addc(x, ^y, c, setFlags)
}

func (a *ALU) addc(x, y uint32, carry, setFlags bool) uint32 {
	result, c, v := AddWithCarry(x, y, carry)
	if setFlags {
		a.regFile.SetFlags(result>>31 == 1, result == 0, c, v)
	}
	return result
}

// Logic sets N and Z from a logical result, leaving C and V unchanged.
func (a *ALU) Logic(result uint32, setFlags bool) uint32 {
	if setFlags {
		a.regFile.SetNZ(result)
	}
	return result
}

// Shift applies a shift or rotate to value. Only the bottom byte of
// amount is used. An amount of 0 leaves value and the carry flag
// unchanged.
func (a *ALU) Shift(op insts.Op, value, amount uint32, setFlags bool) uint32 {
	amount &= 0xff
	_, _, carry, _ := a.regFile.Flags()
	result := value

	if amount != 0 {
		switch op {
		case insts.OpLSL:
			switch {
			case amount < 32:
				carry = (value>>(32-amount))&1 == 1
				result = value << amount
			case amount == 32:
				carry = value&1 == 1
				result = 0
			default:
				carry = false
				result = 0
			}
		case insts.OpLSR:
			switch {
			case amount < 32:
				carry = (value>>(amount-1))&1 == 1
				result = value >> amount
			case amount == 32:
				carry = value>>31 == 1
				result = 0
			default:
				carry = false
				result = 0
			}
		case insts.OpASR:
			if amount >= 32 {
				carry = value>>31 == 1
				result = uint32(int32(value) >> 31)
			} else {
				carry = (value>>(amount-1))&1 == 1
				result = uint32(int32(value) >> amount)
			}
		case insts.OpROR:
			result = bits.RotateLeft32(value, -int(amount%32))
			carry = result>>31 == 1
		}
	}

	if setFlags {
		a.regFile.SetNZC(result, carry)
	}

	return result
}
