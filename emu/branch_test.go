package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nrfsim/emu"
	"github.com/sarchlab/nrfsim/insts"
)

var _ = Describe("BranchUnit", func() {
	var (
		regFile    *emu.RegFile
		branchUnit *emu.BranchUnit
	)

	BeforeEach(func() {
		regFile = emu.NewRegFile()
		regFile.PC = 0x1000
		branchUnit = emu.NewBranchUnit(regFile)
	})

	Describe("B", func() {
		It("should branch relative to the pipeline PC", func() {
			branchUnit.B(100)

			Expect(regFile.PC).To(Equal(uint32(0x1000 + 4 + 100)))
		})

		It("should branch backward", func() {
			branchUnit.B(-4)

			Expect(regFile.PC).To(Equal(uint32(0x1000)))
		})
	})

	Describe("BL", func() {
		It("should set LR to the next instruction with the Thumb bit", func() {
			branchUnit.BL(0x20, 4)

			Expect(regFile.LR).To(Equal(uint32(0x1005)))
			Expect(regFile.PC).To(Equal(uint32(0x1024)))
		})
	})

	Describe("BX", func() {
		It("should clear bit 0 of the target", func() {
			branchUnit.BX(0x2001)

			Expect(regFile.PC).To(Equal(uint32(0x2000)))
		})

		It("should pass exception return values through", func() {
			branchUnit.BX(0xFFFFFFF9)

			Expect(regFile.PC).To(Equal(uint32(0xFFFFFFF8)))
		})
	})

	Describe("BLX", func() {
		It("should link and branch", func() {
			branchUnit.BLX(0x3001, 2)

			Expect(regFile.LR).To(Equal(uint32(0x1003)))
			Expect(regFile.PC).To(Equal(uint32(0x3000)))
		})
	})

	Describe("CheckCondition", func() {
		It("should evaluate EQ and NE from Z", func() {
			regFile.SetFlags(false, true, false, false)

			Expect(branchUnit.CheckCondition(insts.CondEQ)).To(BeTrue())
			Expect(branchUnit.CheckCondition(insts.CondNE)).To(BeFalse())
		})

		It("should evaluate signed comparisons", func() {
			regFile.SetFlags(true, false, false, false)

			Expect(branchUnit.CheckCondition(insts.CondLT)).To(BeTrue())
			Expect(branchUnit.CheckCondition(insts.CondGE)).To(BeFalse())
			Expect(branchUnit.CheckCondition(insts.CondGT)).To(BeFalse())
			Expect(branchUnit.CheckCondition(insts.CondLE)).To(BeTrue())
		})

		It("should evaluate unsigned comparisons", func() {
			regFile.SetFlags(false, false, true, false)

			Expect(branchUnit.CheckCondition(insts.CondHI)).To(BeTrue())
			Expect(branchUnit.CheckCondition(insts.CondLS)).To(BeFalse())
		})

		It("should always take AL", func() {
			Expect(branchUnit.CheckCondition(insts.CondAL)).To(BeTrue())
		})
	})
})
