package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nrfsim/emu"
)

var _ = Describe("RegFile", func() {
	var regFile *emu.RegFile

	BeforeEach(func() {
		regFile = emu.NewRegFile()
		regFile.WriteReg(emu.MSP, 0x20001000)
		regFile.WriteReg(emu.PSP, 0x20002000)
	})

	It("should reset with the Thumb bit set", func() {
		Expect(regFile.ReadReg(emu.XPSR)).To(Equal(emu.XPSRThumb))
	})

	Describe("SP aliasing", func() {
		It("should alias MSP by default", func() {
			Expect(regFile.ReadReg(emu.SP)).To(Equal(uint32(0x20001000)))
		})

		It("should alias PSP in thread mode with SPSEL set", func() {
			regFile.WriteReg(emu.CONTROL, emu.ControlSPSEL)

			Expect(regFile.ReadReg(emu.SP)).To(Equal(uint32(0x20002000)))

			regFile.WriteReg(emu.SP, 0x20001F00)
			Expect(regFile.PSP).To(Equal(uint32(0x20001F00)))
			Expect(regFile.MSP).To(Equal(uint32(0x20001000)))
		})

		It("should always use MSP in handler mode", func() {
			regFile.WriteReg(emu.CONTROL, emu.ControlSPSEL)
			regFile.WriteReg(emu.IPSR, 17)

			Expect(regFile.ReadReg(emu.SP)).To(Equal(uint32(0x20001000)))
		})

		It("should word-align stack pointer writes", func() {
			regFile.WriteReg(emu.SP, 0x20000FFF)

			Expect(regFile.MSP).To(Equal(uint32(0x20000FFC)))
		})
	})

	It("should replace only the exception number on IPSR writes", func() {
		regFile.SetFlags(true, false, false, false)
		regFile.WriteReg(emu.IPSR, 0x11)

		Expect(regFile.ReadReg(emu.IPSR)).To(Equal(uint32(0x11)))
		n, _, _, _ := regFile.Flags()
		Expect(n).To(BeTrue())
		Expect(regFile.XPSR & emu.XPSRThumb).NotTo(BeZero())
	})

	It("should clear bit 0 on PC writes", func() {
		regFile.WriteReg(emu.PC, 0x1001)

		Expect(regFile.ReadReg(emu.PC)).To(Equal(uint32(0x1000)))
	})

	It("should mask CONTROL to its defined bits", func() {
		regFile.WriteReg(emu.CONTROL, 0xFF)

		Expect(regFile.ReadReg(emu.CONTROL)).To(Equal(uint32(0x7)))
	})

	It("should read PC as the pipeline value through ReadGPR", func() {
		regFile.PC = 0x200

		Expect(regFile.ReadGPR(15)).To(Equal(uint32(0x204)))
	})

	It("should address floating-point registers", func() {
		regFile.WriteReg(emu.S15, 0x3F800000)

		Expect(regFile.S[15]).To(Equal(uint32(0x3F800000)))
		Expect(emu.S15.String()).To(Equal("s15"))
	})
})
