// Package insts provides Thumb instruction definitions and decoding for the
// ARMv7-M profile.
//
// This package implements decoding of Thumb machine code into structured
// instruction representations. It supports:
//   - 16-bit data processing: shifts, ADD/SUB/MOV/CMP, the register ALU group
//     and the high-register forms
//   - Loads and stores: literal, register offset, immediate offset,
//     SP-relative, PUSH/POP, LDM/STM
//   - Branches: B, B<cond>, CBZ/CBNZ, BX, BLX and the 32-bit BL
//   - System: SVC, BKPT, CPS, hints, barriers, MRS and MSR
//
// Other 32-bit encodings are decoded as OpSkip so that the execution engine
// can step over them.
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x202a, 0) // MOVS R0, #42
//	fmt.Printf("Op: %v, Rd: %d, Imm: %d\n", inst.Op, inst.Rd, inst.Imm)
package insts
