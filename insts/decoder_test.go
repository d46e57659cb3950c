package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nrfsim/insts"
)

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	Describe("Data processing", func() {
		// MOVS R0, #42 -> 0x202A
		It("should decode MOVS R0, #42", func() {
			inst := decoder.Decode(0x202A, 0)

			Expect(inst.Op).To(Equal(insts.OpMOV))
			Expect(inst.Format).To(Equal(insts.FormatImm8))
			Expect(inst.Size).To(Equal(uint32(2)))
			Expect(inst.SetFlags).To(BeTrue())
			Expect(inst.Rd).To(Equal(uint8(0)))
			Expect(inst.Imm).To(Equal(uint32(42)))
		})

		// ADDS R0, R0, R1 -> 0x1840
		It("should decode ADDS with a register", func() {
			inst := decoder.Decode(0x1840, 0)

			Expect(inst.Op).To(Equal(insts.OpADD))
			Expect(inst.Format).To(Equal(insts.FormatAddSubReg))
			Expect(inst.Rn).To(Equal(uint8(0)))
			Expect(inst.Rm).To(Equal(uint8(1)))
		})

		// SUBS R2, R3, #5 -> 0x1F5A
		It("should decode SUBS with a 3-bit immediate", func() {
			inst := decoder.Decode(0x1F5A, 0)

			Expect(inst.Op).To(Equal(insts.OpSUB))
			Expect(inst.Format).To(Equal(insts.FormatAddSubImm))
			Expect(inst.Rd).To(Equal(uint8(2)))
			Expect(inst.Rn).To(Equal(uint8(3)))
			Expect(inst.Imm).To(Equal(uint32(5)))
		})

		// LSRS R1, R2, #32 is encoded with imm5 = 0 -> 0x0811
		It("should decode a zero LSR shift as 32", func() {
			inst := decoder.Decode(0x0811, 0)

			Expect(inst.Op).To(Equal(insts.OpLSR))
			Expect(inst.Imm).To(Equal(uint32(32)))
		})

		// MOVS R1, R2 -> 0x0011
		It("should decode LSLS #0 as MOVS", func() {
			inst := decoder.Decode(0x0011, 0)

			Expect(inst.Op).To(Equal(insts.OpMOV))
			Expect(inst.Rm).To(Equal(uint8(2)))
		})

		// MULS R0, R1, R0 -> 0x4348
		It("should decode the register ALU group", func() {
			inst := decoder.Decode(0x4348, 0)

			Expect(inst.Op).To(Equal(insts.OpMUL))
			Expect(inst.Format).To(Equal(insts.FormatDataProc))
			Expect(inst.Rm).To(Equal(uint8(1)))
		})

		// MOV R8, SP -> 0x46E8
		It("should decode high register moves", func() {
			inst := decoder.Decode(0x46E8, 0)

			Expect(inst.Op).To(Equal(insts.OpMOV))
			Expect(inst.Format).To(Equal(insts.FormatHiReg))
			Expect(inst.Rd).To(Equal(uint8(8)))
			Expect(inst.Rm).To(Equal(insts.RegSP))
		})

		// UXTB R0, R1 -> 0xB2C8
		It("should decode extends", func() {
			inst := decoder.Decode(0xB2C8, 0)

			Expect(inst.Op).To(Equal(insts.OpUXTB))
			Expect(inst.Rm).To(Equal(uint8(1)))
		})
	})

	Describe("Loads and stores", func() {
		// LDR R3, [PC, #8] -> 0x4B02
		It("should decode PC-relative loads", func() {
			inst := decoder.Decode(0x4B02, 0)

			Expect(inst.Op).To(Equal(insts.OpLDR))
			Expect(inst.Rd).To(Equal(uint8(3)))
			Expect(inst.Rn).To(Equal(insts.RegPC))
			Expect(inst.Imm).To(Equal(uint32(8)))
		})

		// LDR R2, [R0, #4] -> 0x6842
		It("should scale word immediate offsets", func() {
			inst := decoder.Decode(0x6842, 0)

			Expect(inst.Op).To(Equal(insts.OpLDR))
			Expect(inst.Width).To(Equal(uint8(4)))
			Expect(inst.Imm).To(Equal(uint32(4)))
		})

		// STRH R1, [R0, #6] -> 0x80C1
		It("should decode halfword stores", func() {
			inst := decoder.Decode(0x80C1, 0)

			Expect(inst.Op).To(Equal(insts.OpSTR))
			Expect(inst.Width).To(Equal(uint8(2)))
			Expect(inst.Imm).To(Equal(uint32(6)))
		})

		// LDRSB R0, [R1, R2] -> 0x5688
		It("should decode signed register-offset loads", func() {
			inst := decoder.Decode(0x5688, 0)

			Expect(inst.Op).To(Equal(insts.OpLDR))
			Expect(inst.RegOffset).To(BeTrue())
			Expect(inst.Signed).To(BeTrue())
			Expect(inst.Width).To(Equal(uint8(1)))
			Expect(inst.Rm).To(Equal(uint8(2)))
		})

		// STR R0, [SP, #4] -> 0x9001
		It("should decode SP-relative stores", func() {
			inst := decoder.Decode(0x9001, 0)

			Expect(inst.Op).To(Equal(insts.OpSTR))
			Expect(inst.Rn).To(Equal(insts.RegSP))
			Expect(inst.Imm).To(Equal(uint32(4)))
		})

		// PUSH {R4, R5, LR} -> 0xB530
		It("should decode PUSH with LR", func() {
			inst := decoder.Decode(0xB530, 0)

			Expect(inst.Op).To(Equal(insts.OpPUSH))
			Expect(inst.RegList).To(Equal(uint16(1<<4 | 1<<5 | 1<<14)))
		})

		// POP {R4, PC} -> 0xBD10
		It("should decode POP with PC", func() {
			inst := decoder.Decode(0xBD10, 0)

			Expect(inst.Op).To(Equal(insts.OpPOP))
			Expect(inst.RegList).To(Equal(uint16(1<<4 | 1<<15)))
		})

		// LDMIA R0, {R0, R1} -> 0xC803
		It("should not write back when the base is loaded", func() {
			inst := decoder.Decode(0xC803, 0)

			Expect(inst.Op).To(Equal(insts.OpLDM))
			Expect(inst.Writeback).To(BeFalse())
		})

		// SUB SP, SP, #16 -> 0xB084
		It("should decode stack adjustments", func() {
			inst := decoder.Decode(0xB084, 0)

			Expect(inst.Op).To(Equal(insts.OpSUB))
			Expect(inst.Format).To(Equal(insts.FormatAddress))
			Expect(inst.Rd).To(Equal(insts.RegSP))
			Expect(inst.Imm).To(Equal(uint32(16)))
		})
	})

	Describe("Branches", func() {
		// B . -> 0xE7FE
		It("should decode an unconditional branch to itself", func() {
			inst := decoder.Decode(0xE7FE, 0)

			Expect(inst.Op).To(Equal(insts.OpB))
			Expect(inst.Format).To(Equal(insts.FormatBranch))
			Expect(inst.BranchOffset).To(Equal(int32(-4)))
		})

		// BNE -6 -> 0xD1FD
		It("should decode conditional branches", func() {
			inst := decoder.Decode(0xD1FD, 0)

			Expect(inst.Op).To(Equal(insts.OpB))
			Expect(inst.Cond).To(Equal(insts.CondNE))
			Expect(inst.BranchOffset).To(Equal(int32(-6)))
		})

		// CBZ R2, +8 -> 0xB122
		It("should decode CBZ", func() {
			inst := decoder.Decode(0xB122, 0)

			Expect(inst.Op).To(Equal(insts.OpCBZ))
			Expect(inst.Rn).To(Equal(uint8(2)))
			Expect(inst.BranchOffset).To(Equal(int32(8)))
		})

		// BX LR -> 0x4770
		It("should decode BX LR", func() {
			inst := decoder.Decode(0x4770, 0)

			Expect(inst.Op).To(Equal(insts.OpBX))
			Expect(inst.Rm).To(Equal(insts.RegLR))
		})

		// BL +6 -> 0xF000 0xF803
		It("should decode a forward BL", func() {
			inst := decoder.Decode(0xF000, 0xF803)

			Expect(inst.Op).To(Equal(insts.OpBL))
			Expect(inst.Size).To(Equal(uint32(4)))
			Expect(inst.BranchOffset).To(Equal(int32(6)))
		})

		// BL -4 -> 0xF7FF 0xFFFE
		It("should decode a backward BL", func() {
			inst := decoder.Decode(0xF7FF, 0xFFFE)

			Expect(inst.Op).To(Equal(insts.OpBL))
			Expect(inst.BranchOffset).To(Equal(int32(-4)))
		})
	})

	Describe("System", func() {
		It("should decode SVC and UDF from the conditional branch space", func() {
			Expect(decoder.Decode(0xDF05, 0).Op).To(Equal(insts.OpSVC))
			Expect(decoder.Decode(0xDE00, 0).Op).To(Equal(insts.OpUDF))
		})

		// CPSIE i -> 0xB662
		It("should decode CPSIE", func() {
			inst := decoder.Decode(0xB662, 0)

			Expect(inst.Op).To(Equal(insts.OpCPS))
			Expect(inst.Disable).To(BeFalse())
		})

		// MRS R3, PSP -> 0xF3EF 0x8309
		It("should decode MRS", func() {
			inst := decoder.Decode(0xF3EF, 0x8309)

			Expect(inst.Op).To(Equal(insts.OpMRS))
			Expect(inst.Rd).To(Equal(uint8(3)))
			Expect(inst.SYSm).To(Equal(insts.SysPSP))
		})

		// MSR CONTROL, R1 -> 0xF381 0x8814
		It("should decode MSR", func() {
			inst := decoder.Decode(0xF381, 0x8814)

			Expect(inst.Op).To(Equal(insts.OpMSR))
			Expect(inst.Rn).To(Equal(uint8(1)))
			Expect(inst.SYSm).To(Equal(insts.SysCONTROL))
		})

		// DSB SY -> 0xF3BF 0x8F4F
		It("should treat barriers as NOP", func() {
			Expect(decoder.Decode(0xF3BF, 0x8F4F).Op).To(Equal(insts.OpNOP))
		})

		// VMSR FPSCR, R0 -> 0xEEE1 0x0A10
		It("should skip unsupported 32-bit encodings", func() {
			inst := decoder.Decode(0xEEE1, 0x0A10)

			Expect(inst.Op).To(Equal(insts.OpSkip))
			Expect(inst.Size).To(Equal(uint32(4)))
		})
	})
})
