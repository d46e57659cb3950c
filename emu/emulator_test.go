package emu_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nrfsim/emu"
)

// loadThumb writes halfwords starting at addr.
func loadThumb(e *emu.Emulator, addr uint32, code ...uint16) {
	for i, hw := range code {
		Expect(e.Memory().Write16(addr+uint32(2*i), hw)).To(Succeed())
	}
}

var _ = Describe("Emulator", func() {
	var (
		e   *emu.Emulator
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		e = emu.NewEmulator(
			emu.WithStackPointer(0x20001000),
			emu.WithLogger(GinkgoLogr),
		)
		Expect(e.MapRegion(emu.Region{Name: "flash", Base: 0, Size: 0x1000})).To(Succeed())
		Expect(e.MapRegion(emu.Region{Name: "sram", Base: 0x20000000, Size: 0x2000})).To(Succeed())
	})

	Describe("NewEmulator", func() {
		It("should create an emulator with initialized components", func() {
			Expect(e.RegFile()).NotTo(BeNil())
			Expect(e.Memory()).NotTo(BeNil())
			Expect(e.ReadReg(emu.SP)).To(Equal(uint32(0x20001000)))
		})
	})

	Describe("Run", func() {
		BeforeEach(func() {
			loadThumb(e, 0x100,
				0x2003, // movs r0, #3
				0x3801, // subs r0, #1
				0xD1FD, // bne 0x102
				0xE7FE, // b .
			)
		})

		It("should execute until the stop address", func() {
			Expect(e.Run(ctx, 0x100, 0x106, 0)).To(Succeed())

			Expect(e.ReadReg(emu.R0)).To(BeZero())
			Expect(e.ReadReg(emu.PC)).To(Equal(uint32(0x106)))
			Expect(e.InstructionCount()).To(Equal(uint64(7)))
		})

		It("should honor the instruction budget", func() {
			Expect(e.Run(ctx, 0x100, 0, 2)).To(Succeed())

			Expect(e.ReadReg(emu.R0)).To(Equal(uint32(2)))
			Expect(e.ReadReg(emu.PC)).To(Equal(uint32(0x104)))
		})

		It("should fire block hooks at the start and after taken branches", func() {
			var blocks []uint32
			e.OnBlock(0, 0xFFF, func(addr uint32) {
				blocks = append(blocks, addr)
			})

			Expect(e.Run(ctx, 0x100, 0x106, 0)).To(Succeed())

			Expect(blocks).To(Equal([]uint32{0x100, 0x102, 0x102}))
		})

		It("should fire code hooks before every instruction", func() {
			var addrs []uint32
			e.OnCode(func(addr, size uint32) {
				Expect(size).To(Equal(uint32(2)))
				addrs = append(addrs, addr)
			})

			Expect(e.Run(ctx, 0x100, 0x106, 0)).To(Succeed())

			Expect(addrs).To(HaveLen(7))
			Expect(addrs[0]).To(Equal(uint32(0x100)))
		})

		It("should follow a PC change made by a code hook", func() {
			e.OnCode(func(addr, _ uint32) {
				if addr == 0x102 {
					e.WriteReg(emu.PC, 0x106)
				}
			})

			Expect(e.Run(ctx, 0x100, 0x106, 0)).To(Succeed())

			Expect(e.ReadReg(emu.R0)).To(Equal(uint32(3)))
		})

		It("should end the run when a hook calls Stop", func() {
			e.OnCode(func(addr, _ uint32) {
				if addr == 0x106 {
					e.Stop()
				}
			})

			Expect(e.Run(ctx, 0x100, 0, 0)).To(Succeed())
			Expect(e.ReadReg(emu.PC)).To(Equal(uint32(0x106)))
		})

		It("should return the context error once cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			Expect(e.Run(cancelled, 0x100, 0, 0)).To(MatchError(context.Canceled))
		})

		It("should fail when fetching from unmapped memory", func() {
			err := e.Run(ctx, 0x10000000, 0, 0)

			Expect(err).To(MatchError(emu.ErrUnmapped))
		})
	})

	Describe("memory access", func() {
		BeforeEach(func() {
			loadThumb(e, 0x100,
				0x4801, // ldr r0, [pc, #4]
				0x6801, // ldr r1, [r0, #0]
				0xE7FE, // b .
				0xBF00, // nop
				0x0000, 0x2000, // .word 0x20000000
			)
		})

		It("should let a memory hook update memory before a load", func() {
			var kinds []emu.AccessKind
			e.OnMemAccess(func(kind emu.AccessKind, addr uint32, size int, _ uint32) {
				if addr < 0x20000000 {
					// literal pool
					return
				}
				kinds = append(kinds, kind)
				Expect(addr).To(Equal(uint32(0x20000000)))
				Expect(size).To(Equal(4))
				Expect(e.WriteMem(addr, []byte{0x34, 0x12, 0, 0})).To(Succeed())
			})

			Expect(e.Run(ctx, 0x100, 0x104, 0)).To(Succeed())

			Expect(e.ReadReg(emu.R0)).To(Equal(uint32(0x20000000)))
			Expect(e.ReadReg(emu.R1)).To(Equal(uint32(0x1234)))
			Expect(kinds).To(Equal([]emu.AccessKind{emu.AccessRead}))
		})

		It("should report stores with their value", func() {
			loadThumb(e, 0x200,
				0x4801, // ldr r0, [pc, #4]
				0x2155, // movs r1, #0x55
				0x7001, // strb r1, [r0, #0]
				0xE7FE, // b .
				0x0010, 0x2000, // .word 0x20000010
			)

			var written uint32
			e.OnMemAccess(func(kind emu.AccessKind, addr uint32, size int, value uint32) {
				if kind == emu.AccessWrite {
					Expect(size).To(Equal(1))
					written = value
				}
			})

			Expect(e.Run(ctx, 0x200, 0x206, 0)).To(Succeed())

			Expect(written).To(Equal(uint32(0x55)))
			Expect(e.Memory().Read8(0x20000010)).To(Equal(uint8(0x55)))
		})
	})

	Describe("calls and the stack", func() {
		It("should branch with link and return", func() {
			loadThumb(e, 0x100,
				0xF000, 0xF803, // bl 0x10a
				0xE7FE, // b .
				0xBF00, // nop
				0xBF00, // nop
				0x2007, // movs r0, #7
				0x4770, // bx lr
			)

			Expect(e.Run(ctx, 0x100, 0x104, 0)).To(Succeed())

			Expect(e.ReadReg(emu.R0)).To(Equal(uint32(7)))
			Expect(e.ReadReg(emu.LR)).To(Equal(uint32(0x105)))
		})

		It("should push and pop registers in ascending order", func() {
			loadThumb(e, 0x100,
				0x2409, // movs r4, #9
				0xB510, // push {r4, lr}
				0x2400, // movs r4, #0
				0xBC10, // pop {r4}
				0xE7FE, // b .
			)

			Expect(e.Run(ctx, 0x100, 0x108, 0)).To(Succeed())

			Expect(e.ReadReg(emu.R4)).To(Equal(uint32(9)))
			Expect(e.ReadReg(emu.SP)).To(Equal(uint32(0x20000FFC)))
			Expect(e.Memory().Read32(0x20000FF8)).To(Equal(uint32(9)))
		})
	})

	Describe("system instructions", func() {
		It("should move CONTROL through MSR and MRS", func() {
			e.WriteReg(emu.PSP, 0x20001800)
			loadThumb(e, 0x100,
				0x2002,         // movs r0, #2
				0xF380, 0x8814, // msr control, r0
				0xF3EF, 0x8114, // mrs r1, control
				0xE7FE,         // b .
			)

			Expect(e.Run(ctx, 0x100, 0x10A, 0)).To(Succeed())

			Expect(e.ReadReg(emu.R1)).To(Equal(uint32(2)))
			Expect(e.ReadReg(emu.SP)).To(Equal(uint32(0x20001800)))
		})

		It("should set PRIMASK on CPSID", func() {
			loadThumb(e, 0x100, 0xB672, 0xE7FE)

			Expect(e.Run(ctx, 0x100, 0x102, 0)).To(Succeed())

			Expect(e.ReadReg(emu.PRIMASK)).To(Equal(uint32(1)))
		})

		It("should report SVC to the interrupt hooks and continue", func() {
			loadThumb(e, 0x100, 0xDF00, 0x2001, 0xE7FE)

			var excs []int
			e.OnInterrupt(func(excNo int) {
				excs = append(excs, excNo)
			})

			Expect(e.Run(ctx, 0x100, 0x104, 0)).To(Succeed())

			Expect(excs).To(Equal([]int{emu.ExcSVC}))
			Expect(e.ReadReg(emu.R0)).To(Equal(uint32(1)))
		})

		It("should halt on BKPT without an interrupt hook", func() {
			loadThumb(e, 0x100, 0xBE00)

			Expect(e.Run(ctx, 0x100, 0, 0)).To(MatchError(emu.ErrHalted))
		})

		It("should refuse IT blocks", func() {
			loadThumb(e, 0x100, 0xBF08)

			Expect(e.Run(ctx, 0x100, 0, 0)).To(MatchError(emu.ErrUnsupported))
		})
	})

	Describe("exception return addresses", func() {
		It("should start a block at the EXC_RETURN address", func() {
			Expect(e.MapRegion(emu.Region{Name: "excreturn", Base: 0xFFFFF000, Size: 0x1000})).To(Succeed())
			loadThumb(e, 0x100,
				0x4770, // bx lr
				0xBF00, // nop
				0xE7FE, // b .
			)
			e.WriteReg(emu.LR, 0xFFFFFFF9)

			var hit uint32
			e.OnBlock(0xFFFFF000, 0xFFFFFFFF, func(addr uint32) {
				hit = addr
				e.WriteReg(emu.PC, 0x104)
			})

			Expect(e.Run(ctx, 0x100, 0x104, 0)).To(Succeed())

			Expect(hit).To(Equal(uint32(0xFFFFFFF8)))
		})
	})
})
