// Package emu provides the execution substrate used to run Cortex-M
// firmware: register and memory access, hooks and a bounded run loop.
package emu

import "fmt"

// Reg identifies a processor register by symbolic id.
type Reg int

// Core registers.
const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	SP
	LR
	PC
	MSP
	PSP
	XPSR
	IPSR
	CONTROL
	PRIMASK
	FPSCR
	S0
)

// Single-precision floating-point registers S1-S31 follow S0.
const (
	S1 Reg = S0 + 1 + iota
	S2
	S3
	S4
	S5
	S6
	S7
	S8
	S9
	S10
	S11
	S12
	S13
	S14
	S15
	S16
	S17
	S18
	S19
	S20
	S21
	S22
	S23
	S24
	S25
	S26
	S27
	S28
	S29
	S30
	S31
)

// NumFPRegs is the number of single-precision registers.
const NumFPRegs = 32

var regNames = map[Reg]string{
	SP: "sp", LR: "lr", PC: "pc", MSP: "msp", PSP: "psp", XPSR: "xpsr",
	IPSR: "ipsr", CONTROL: "control", PRIMASK: "primask", FPSCR: "fpscr",
}

func (r Reg) String() string {
	switch {
	case r >= R0 && r <= R12:
		return fmt.Sprintf("r%d", int(r))
	case r >= S0 && r <= S31:
		return fmt.Sprintf("s%d", int(r-S0))
	}
	if s, ok := regNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reg(%d)", int(r))
}

// CONTROL register bits.
const (
	ControlNPRIV uint32 = 1 << 0
	ControlSPSEL uint32 = 1 << 1
	ControlFPCA  uint32 = 1 << 2
)

// xPSR fields.
const (
	xpsrN        uint32 = 1 << 31
	xpsrZ        uint32 = 1 << 30
	xpsrC        uint32 = 1 << 29
	xpsrV        uint32 = 1 << 28
	xpsrFlags           = xpsrN | xpsrZ | xpsrC | xpsrV
	xpsrIPSRMask uint32 = 0x1ff

	// XPSRThumb is the EPSR T bit, always set on Cortex-M.
	XPSRThumb uint32 = 1 << 24
)

// RegFile represents the Cortex-M register file.
// It contains the general-purpose registers R0-R12, both banked stack
// pointers, LR, PC, the combined program status register and the
// special-purpose and floating-point registers.
type RegFile struct {
	// R holds general-purpose registers R0-R12.
	R [13]uint32

	// MSP and PSP are the banked main and process stack pointers.
	MSP uint32
	PSP uint32

	// LR is the link register.
	LR uint32

	// PC is the program counter. Bit 0 is always clear.
	PC uint32

	// XPSR combines APSR flags, EPSR and the IPSR exception number.
	XPSR uint32

	CONTROL uint32
	PRIMASK uint32

	// S holds single-precision floating-point registers S0-S31.
	S     [NumFPRegs]uint32
	FPSCR uint32
}

// NewRegFile returns a register file in the reset state.
func NewRegFile() *RegFile {
	return &RegFile{XPSR: XPSRThumb}
}

// usesPSP reports whether SP currently aliases PSP. Handler mode always
// uses MSP.
func (r *RegFile) usesPSP() bool {
	return r.CONTROL&ControlSPSEL != 0 && r.XPSR&xpsrIPSRMask == 0
}

// ReadReg reads a register value. Unknown ids read as 0.
func (r *RegFile) ReadReg(reg Reg) uint32 {
	switch {
	case reg >= R0 && reg <= R12:
		return r.R[reg-R0]
	case reg >= S0 && reg <= S31:
		return r.S[reg-S0]
	}

	switch reg {
	case SP:
		if r.usesPSP() {
			return r.PSP
		}
		return r.MSP
	case LR:
		return r.LR
	case PC:
		return r.PC
	case MSP:
		return r.MSP
	case PSP:
		return r.PSP
	case XPSR:
		return r.XPSR
	case IPSR:
		return r.XPSR & xpsrIPSRMask
	case CONTROL:
		return r.CONTROL
	case PRIMASK:
		return r.PRIMASK
	case FPSCR:
		return r.FPSCR
	}
	return 0
}

// WriteReg writes a register value. Writes to unknown ids are ignored.
func (r *RegFile) WriteReg(reg Reg, value uint32) {
	switch {
	case reg >= R0 && reg <= R12:
		r.R[reg-R0] = value
		return
	case reg >= S0 && reg <= S31:
		r.S[reg-S0] = value
		return
	}

	switch reg {
	case SP:
		if r.usesPSP() {
			r.PSP = value &^ 3
		} else {
			r.MSP = value &^ 3
		}
	case LR:
		r.LR = value
	case PC:
		r.PC = value &^ 1
	case MSP:
		r.MSP = value &^ 3
	case PSP:
		r.PSP = value &^ 3
	case XPSR:
		r.XPSR = value
	case IPSR:
		r.XPSR = (r.XPSR &^ xpsrIPSRMask) | (value & xpsrIPSRMask)
	case CONTROL:
		r.CONTROL = value & (ControlNPRIV | ControlSPSEL | ControlFPCA)
	case PRIMASK:
		r.PRIMASK = value & 1
	case FPSCR:
		r.FPSCR = value
	}
}

// ReadGPR reads a register by its instruction encoding number (0-15).
// Reading PC returns the Thumb pipeline value (address of the current
// instruction plus 4).
func (r *RegFile) ReadGPR(n uint8) uint32 {
	switch n {
	case 13:
		return r.ReadReg(SP)
	case 14:
		return r.LR
	case 15:
		return r.PC + 4
	}
	return r.R[n&0xf]
}

// WriteGPR writes a register by its instruction encoding number (0-15).
func (r *RegFile) WriteGPR(n uint8, value uint32) {
	switch n {
	case 13:
		r.WriteReg(SP, value)
	case 14:
		r.LR = value
	case 15:
		r.PC = value &^ 1
	default:
		r.R[n&0xf] = value
	}
}

// Flags returns the N, Z, C and V condition flags.
func (r *RegFile) Flags() (n, z, c, v bool) {
	return r.XPSR&xpsrN != 0, r.XPSR&xpsrZ != 0, r.XPSR&xpsrC != 0, r.XPSR&xpsrV != 0
}

// SetFlags sets all four condition flags.
func (r *RegFile) SetFlags(n, z, c, v bool) {
	flags := uint32(0)
	if n {
		flags |= xpsrN
	}
	if z {
		flags |= xpsrZ
	}
	if c {
		flags |= xpsrC
	}
	if v {
		flags |= xpsrV
	}
	r.XPSR = (r.XPSR &^ xpsrFlags) | flags
}

// SetNZ sets N and Z from result, leaving C and V unchanged.
func (r *RegFile) SetNZ(result uint32) {
	_, _, c, v := r.Flags()
	r.SetFlags(result>>31 == 1, result == 0, c, v)
}

// SetNZC sets N and Z from result and C from carry, leaving V unchanged.
func (r *RegFile) SetNZC(result uint32, carry bool) {
	_, _, _, v := r.Flags()
	r.SetFlags(result>>31 == 1, result == 0, carry, v)
}
