package irq

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/nrfsim/emu"
)

// Frame sizes in bytes.
const (
	BaseFrameSize     = 4 * len(baseFrame)
	ExtendedFrameSize = 4 * len(extendedFrame)
)

// baseFrame lists the base frame registers in push order. Each push
// decrements the stack pointer first, so xPSR ends up at the highest
// address and R0 at the lowest.
var baseFrame = [...]emu.Reg{
	emu.XPSR, emu.PC, emu.LR, emu.R12, emu.R3, emu.R2, emu.R1, emu.R0,
}

// extendedFrame lists the floating-point context in push order. It is
// pushed before the base frame and popped after it.
var extendedFrame = [...]emu.Reg{
	emu.FPSCR,
	emu.S15, emu.S14, emu.S13, emu.S12, emu.S11, emu.S10, emu.S9, emu.S8,
	emu.S7, emu.S6, emu.S5, emu.S4, emu.S3, emu.S2, emu.S1, emu.S0,
}

// FrameSize returns the number of bytes an exception frame occupies.
func FrameSize(fpca bool) uint32 {
	if fpca {
		return uint32(BaseFrameSize + ExtendedFrameSize)
	}
	return uint32(BaseFrameSize)
}

func stackReg(spsel bool) emu.Reg {
	if spsel {
		return emu.PSP
	}
	return emu.MSP
}

// pushContext saves the context on the selected stack and returns the new
// stack pointer.
func pushContext(m emu.Machine, spsel, fpca bool) (uint32, error) {
	spReg := stackReg(spsel)
	sp := m.ReadReg(spReg)

	push := func(regs []emu.Reg) error {
		var word [4]byte
		for _, reg := range regs {
			sp -= 4
			binary.LittleEndian.PutUint32(word[:], m.ReadReg(reg))
			if err := m.WriteMem(sp, word[:]); err != nil {
				return fmt.Errorf("push %s: %w", reg, err)
			}
		}
		return nil
	}

	if fpca {
		if err := push(extendedFrame[:]); err != nil {
			return 0, err
		}
	}
	if err := push(baseFrame[:]); err != nil {
		return 0, err
	}

	m.WriteReg(spReg, sp)
	return sp, nil
}

// popContext restores the context from the selected stack, the exact
// mirror of pushContext, and returns the restored stack pointer.
func popContext(m emu.Machine, spsel, fpca bool) (uint32, error) {
	spReg := stackReg(spsel)
	sp := m.ReadReg(spReg)

	pop := func(regs []emu.Reg) error {
		for i := len(regs) - 1; i >= 0; i-- {
			data, err := m.ReadMem(sp, 4)
			if err != nil {
				return fmt.Errorf("pop %s: %w", regs[i], err)
			}
			m.WriteReg(regs[i], binary.LittleEndian.Uint32(data))
			sp += 4
		}
		return nil
	}

	if err := pop(baseFrame[:]); err != nil {
		return 0, err
	}
	if fpca {
		if err := pop(extendedFrame[:]); err != nil {
			return 0, err
		}
	}

	m.WriteReg(spReg, sp)
	return sp, nil
}
