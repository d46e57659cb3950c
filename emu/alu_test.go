package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nrfsim/emu"
	"github.com/sarchlab/nrfsim/insts"
)

var _ = Describe("ALU", func() {
	var (
		regFile *emu.RegFile
		alu     *emu.ALU
	)

	BeforeEach(func() {
		regFile = emu.NewRegFile()
		alu = emu.NewALU(regFile)
	})

	DescribeTable("AddWithCarry",
		func(x, y uint32, carry bool, result uint32, c, v bool) {
			r, cOut, vOut := emu.AddWithCarry(x, y, carry)
			Expect(r).To(Equal(result))
			Expect(cOut).To(Equal(c))
			Expect(vOut).To(Equal(v))
		},
		Entry("simple add", uint32(1), uint32(2), false, uint32(3), false, false),
		Entry("carry in", uint32(1), uint32(2), true, uint32(4), false, false),
		Entry("unsigned wrap", uint32(0xFFFFFFFF), uint32(1), false, uint32(0), true, false),
		Entry("signed overflow", uint32(0x7FFFFFFF), uint32(1), false, uint32(0x80000000), false, true),
	)

	Describe("Sub", func() {
		It("should set C when no borrow occurs", func() {
			Expect(alu.Sub(5, 3, true)).To(Equal(uint32(2)))
			_, z, c, _ := regFile.Flags()
			Expect(z).To(BeFalse())
			Expect(c).To(BeTrue())
		})

		It("should set Z and C for equal operands", func() {
			alu.Sub(7, 7, true)
			n, z, c, v := regFile.Flags()
			Expect([]bool{n, z, c, v}).To(Equal([]bool{false, true, true, false}))
		})

		It("should clear C on borrow", func() {
			Expect(alu.Sub(0, 1, true)).To(Equal(uint32(0xFFFFFFFF)))
			n, _, c, _ := regFile.Flags()
			Expect(n).To(BeTrue())
			Expect(c).To(BeFalse())
		})

		It("should leave flags alone when not asked to set them", func() {
			alu.Sub(0, 1, false)
			n, z, c, v := regFile.Flags()
			Expect([]bool{n, z, c, v}).To(Equal([]bool{false, false, false, false}))
		})
	})

	Describe("Logic", func() {
		It("should keep C and V", func() {
			regFile.SetFlags(false, false, true, true)
			alu.Logic(0, true)
			n, z, c, v := regFile.Flags()
			Expect([]bool{n, z, c, v}).To(Equal([]bool{false, true, true, true}))
		})
	})

	Describe("Shift", func() {
		It("should shift left and carry out the last bit", func() {
			Expect(alu.Shift(insts.OpLSL, 0x80000001, 1, true)).To(Equal(uint32(2)))
			_, _, c, _ := regFile.Flags()
			Expect(c).To(BeTrue())
		})

		It("should treat LSR by 32 as zero with bit 31 as carry", func() {
			Expect(alu.Shift(insts.OpLSR, 0x80000000, 32, true)).To(Equal(uint32(0)))
			_, z, c, _ := regFile.Flags()
			Expect(z).To(BeTrue())
			Expect(c).To(BeTrue())
		})

		It("should sign-fill on ASR", func() {
			Expect(alu.Shift(insts.OpASR, 0x80000000, 4, false)).To(Equal(uint32(0xF8000000)))
		})

		It("should rotate right", func() {
			Expect(alu.Shift(insts.OpROR, 0x1, 1, true)).To(Equal(uint32(0x80000000)))
			_, _, c, _ := regFile.Flags()
			Expect(c).To(BeTrue())
		})

		It("should leave value and carry unchanged for a zero amount", func() {
			regFile.SetFlags(false, false, true, false)
			Expect(alu.Shift(insts.OpLSR, 0x10, 0, true)).To(Equal(uint32(0x10)))
			_, _, c, _ := regFile.Flags()
			Expect(c).To(BeTrue())
		})
	})
})
