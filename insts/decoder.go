// Package insts provides Thumb instruction definitions and decoding.
package insts

// Op represents a Thumb opcode.
type Op uint16

// Thumb opcodes.
const (
	OpUnknown Op = iota
	OpLSL
	OpLSR
	OpASR
	OpADD
	OpADC
	OpSUB
	OpSBC
	OpNEG
	OpMOV
	OpCMP
	OpCMN
	OpAND
	OpEOR
	OpORR
	OpBIC
	OpMVN
	OpTST
	OpROR
	OpMUL
	OpSXTH
	OpSXTB
	OpUXTH
	OpUXTB
	OpLDR
	OpSTR
	OpPUSH
	OpPOP
	OpLDM
	OpSTM
	OpB
	OpBL
	OpBX
	OpBLX
	OpCBZ
	OpCBNZ
	OpSVC
	OpBKPT
	OpUDF
	OpCPS
	OpNOP
	OpMRS
	OpMSR
	OpIT
	OpSkip
)

var opNames = map[Op]string{
	OpUnknown: "???", OpLSL: "lsl", OpLSR: "lsr", OpASR: "asr", OpADD: "add",
	OpADC: "adc", OpSUB: "sub", OpSBC: "sbc", OpNEG: "neg", OpMOV: "mov",
	OpCMP: "cmp", OpCMN: "cmn", OpAND: "and", OpEOR: "eor", OpORR: "orr",
	OpBIC: "bic", OpMVN: "mvn", OpTST: "tst", OpROR: "ror", OpMUL: "mul",
	OpSXTH: "sxth", OpSXTB: "sxtb", OpUXTH: "uxth", OpUXTB: "uxtb",
	OpLDR: "ldr", OpSTR: "str", OpPUSH: "push", OpPOP: "pop", OpLDM: "ldm",
	OpSTM: "stm", OpB: "b", OpBL: "bl", OpBX: "bx", OpBLX: "blx",
	OpCBZ: "cbz", OpCBNZ: "cbnz", OpSVC: "svc", OpBKPT: "bkpt", OpUDF: "udf",
	OpCPS: "cps", OpNOP: "nop", OpMRS: "mrs", OpMSR: "msr", OpIT: "it",
	OpSkip: "skip",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return "???"
}

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown        Format = iota
	FormatShiftImm              // LSL/LSR/ASR Rd, Rm, #imm5
	FormatAddSubReg             // ADDS/SUBS Rd, Rn, Rm
	FormatAddSubImm             // ADDS/SUBS Rd, Rn, #imm3
	FormatImm8                  // MOVS/CMP/ADDS/SUBS Rdn, #imm8
	FormatDataProc              // register ALU group, Rdn op= Rm
	FormatHiReg                 // ADD/CMP/MOV with high registers
	FormatBranchExchange        // BX/BLX Rm
	FormatLoadStore             // LDR*/STR* with immediate or register offset
	FormatAddress               // ADR, ADD Rd, SP, #imm, ADD/SUB SP, SP, #imm
	FormatExtend                // SXTH/SXTB/UXTH/UXTB
	FormatPushPop               // PUSH/POP
	FormatMultiple              // LDM/STM
	FormatCompareBranch         // CBZ/CBNZ
	FormatBranchCond            // B<cond>
	FormatBranch                // B
	FormatBranchLink            // BL (32-bit)
	FormatException             // SVC, BKPT, UDF
	FormatSystem                // CPS, hints, barriers, MRS, MSR, IT
	FormatSkipped               // 32-bit encodings stepped over
)

// Cond represents a Thumb condition code.
type Cond uint8

// Thumb condition codes.
const (
	CondEQ Cond = 0b0000 // Equal (Z == 1)
	CondNE Cond = 0b0001 // Not Equal (Z == 0)
	CondCS Cond = 0b0010 // Carry Set / Unsigned higher or same (C == 1)
	CondCC Cond = 0b0011 // Carry Clear / Unsigned lower (C == 0)
	CondMI Cond = 0b0100 // Minus / Negative (N == 1)
	CondPL Cond = 0b0101 // Plus / Positive or zero (N == 0)
	CondVS Cond = 0b0110 // Overflow (V == 1)
	CondVC Cond = 0b0111 // No overflow (V == 0)
	CondHI Cond = 0b1000 // Unsigned higher (C == 1 && Z == 0)
	CondLS Cond = 0b1001 // Unsigned lower or same (C == 0 || Z == 1)
	CondGE Cond = 0b1010 // Signed greater than or equal (N == V)
	CondLT Cond = 0b1011 // Signed less than (N != V)
	CondGT Cond = 0b1100 // Signed greater than (Z == 0 && N == V)
	CondLE Cond = 0b1101 // Signed less than or equal (Z == 1 || N != V)
	CondAL Cond = 0b1110 // Always (unconditional)
)

// Register numbers with a fixed role.
const (
	RegSP uint8 = 13
	RegLR uint8 = 14
	RegPC uint8 = 15
)

// Special register numbers (SYSm) used by MRS and MSR.
const (
	SysAPSR    uint8 = 0
	SysIAPSR   uint8 = 1
	SysEAPSR   uint8 = 2
	SysXPSR    uint8 = 3
	SysIPSR    uint8 = 5
	SysEPSR    uint8 = 6
	SysIEPSR   uint8 = 7
	SysMSP     uint8 = 8
	SysPSP     uint8 = 9
	SysPRIMASK uint8 = 16
	SysBASEPRI uint8 = 17
	SysFAULT   uint8 = 19
	SysCONTROL uint8 = 20
)

// Instruction represents a decoded Thumb instruction.
type Instruction struct {
	Op     Op     // Operation code
	Format Format // Encoding format
	Size   uint32 // Encoding size in bytes (2 or 4)

	SetFlags bool  // true if the instruction updates the APSR flags
	Rd       uint8 // Destination register (Rt for loads and stores)
	Rn       uint8 // Base or first source register
	Rm       uint8 // Second source register

	// Immediate operand
	Imm uint32

	// Load/store fields
	Width     uint8 // Access width in bytes (1, 2 or 4)
	Signed    bool  // Sign-extend loaded value
	RegOffset bool  // Offset comes from Rm instead of Imm
	Writeback bool  // Base register is updated (LDM/STM)

	// Register list for PUSH/POP/LDM/STM, bit n selects Rn
	RegList uint16

	// Branch fields
	BranchOffset int32 // Signed branch offset relative to PC+4
	Cond         Cond  // Condition code for conditional branches

	// System fields
	SYSm    uint8 // Special register for MRS/MSR
	Disable bool  // CPSID when true, CPSIE otherwise
}

// Decoder decodes Thumb machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new Thumb instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Is32Bit reports whether hw is the first halfword of a 32-bit encoding.
func Is32Bit(hw uint16) bool {
	top := hw >> 11
	return top == 0b11101 || top == 0b11110 || top == 0b11111
}

// Decode decodes a Thumb instruction. The second halfword is only consulted
// when the first one starts a 32-bit encoding.
func (d *Decoder) Decode(hw1, hw2 uint16) *Instruction {
	if Is32Bit(hw1) {
		return d.decode32(hw1, hw2)
	}

	inst := &Instruction{Op: OpUnknown, Format: FormatUnknown, Size: 2}

	switch {
	case hw1>>13 == 0b000 && (hw1>>11)&0b11 != 0b11:
		d.decodeShiftImm(hw1, inst)
	case hw1>>11 == 0b00011:
		d.decodeAddSub(hw1, inst)
	case hw1>>13 == 0b001:
		d.decodeImm8(hw1, inst)
	case hw1>>10 == 0b010000:
		d.decodeDataProc(hw1, inst)
	case hw1>>10 == 0b010001:
		d.decodeSpecial(hw1, inst)
	case hw1>>11 == 0b01001:
		d.decodeLoadLiteral(hw1, inst)
	case hw1>>12 == 0b0101:
		d.decodeLoadStoreReg(hw1, inst)
	case hw1>>13 == 0b011 || hw1>>12 == 0b1000:
		d.decodeLoadStoreImm(hw1, inst)
	case hw1>>12 == 0b1001:
		d.decodeLoadStoreSP(hw1, inst)
	case hw1>>12 == 0b1010:
		d.decodeAddress(hw1, inst)
	case hw1>>12 == 0b1011:
		d.decodeMisc(hw1, inst)
	case hw1>>12 == 0b1100:
		d.decodeMultiple(hw1, inst)
	case hw1>>12 == 0b1101:
		d.decodeBranchCond(hw1, inst)
	case hw1>>11 == 0b11100:
		inst.Op = OpB
		inst.Format = FormatBranch
		inst.Cond = CondAL
		inst.BranchOffset = signExtend(uint32(hw1&0x7ff)<<1, 12)
	}

	return inst
}

// decodeShiftImm decodes LSL/LSR/ASR (immediate).
// Format: 000 | op(2) | imm5 | Rm | Rd
func (d *Decoder) decodeShiftImm(hw uint16, inst *Instruction) {
	inst.Format = FormatShiftImm
	inst.SetFlags = true
	inst.Rd = uint8(hw & 0x7)
	inst.Rm = uint8((hw >> 3) & 0x7)
	inst.Imm = uint32((hw >> 6) & 0x1f)

	switch (hw >> 11) & 0b11 {
	case 0b00:
		inst.Op = OpLSL
		if inst.Imm == 0 {
			// LSLS Rd, Rm, #0 is the encoding of MOVS Rd, Rm
			inst.Op = OpMOV
		}
	case 0b01:
		inst.Op = OpLSR
	case 0b10:
		inst.Op = OpASR
	}

	// a shift of 0 encodes a shift of 32 for LSR and ASR
	if (inst.Op == OpLSR || inst.Op == OpASR) && inst.Imm == 0 {
		inst.Imm = 32
	}
}

// decodeAddSub decodes ADDS/SUBS with a register or a 3-bit immediate.
// Format: 00011 | I | op | Rm/imm3 | Rn | Rd
func (d *Decoder) decodeAddSub(hw uint16, inst *Instruction) {
	inst.SetFlags = true
	inst.Rd = uint8(hw & 0x7)
	inst.Rn = uint8((hw >> 3) & 0x7)
	field := uint8((hw >> 6) & 0x7)

	inst.Op = OpADD
	if hw&(1<<9) != 0 {
		inst.Op = OpSUB
	}

	if hw&(1<<10) != 0 {
		inst.Format = FormatAddSubImm
		inst.Imm = uint32(field)
	} else {
		inst.Format = FormatAddSubReg
		inst.Rm = field
	}
}

// decodeImm8 decodes MOVS/CMP/ADDS/SUBS with an 8-bit immediate.
// Format: 001 | op(2) | Rdn | imm8
func (d *Decoder) decodeImm8(hw uint16, inst *Instruction) {
	inst.Format = FormatImm8
	inst.SetFlags = true
	inst.Rd = uint8((hw >> 8) & 0x7)
	inst.Rn = inst.Rd
	inst.Imm = uint32(hw & 0xff)

	switch (hw >> 11) & 0b11 {
	case 0b00:
		inst.Op = OpMOV
	case 0b01:
		inst.Op = OpCMP
	case 0b10:
		inst.Op = OpADD
	case 0b11:
		inst.Op = OpSUB
	}
}

var dataProcOps = [16]Op{
	OpAND, OpEOR, OpLSL, OpLSR, OpASR, OpADC, OpSBC, OpROR,
	OpTST, OpNEG, OpCMP, OpCMN, OpORR, OpMUL, OpBIC, OpMVN,
}

// decodeDataProc decodes the register ALU group.
// Format: 010000 | op(4) | Rm | Rdn
func (d *Decoder) decodeDataProc(hw uint16, inst *Instruction) {
	inst.Format = FormatDataProc
	inst.SetFlags = true
	inst.Rd = uint8(hw & 0x7)
	inst.Rn = inst.Rd
	inst.Rm = uint8((hw >> 3) & 0x7)
	inst.Op = dataProcOps[(hw>>6)&0xf]
}

// decodeSpecial decodes high register operations and branch exchange.
// Format: 010001 | op(2) | DN | Rm(4) | Rdn(3)
func (d *Decoder) decodeSpecial(hw uint16, inst *Instruction) {
	rm := uint8((hw >> 3) & 0xf)
	rdn := uint8(hw&0x7) | uint8((hw>>4)&0x8)

	switch (hw >> 8) & 0b11 {
	case 0b00:
		inst.Op = OpADD
		inst.Format = FormatHiReg
	case 0b01:
		inst.Op = OpCMP
		inst.Format = FormatHiReg
		inst.SetFlags = true
	case 0b10:
		inst.Op = OpMOV
		inst.Format = FormatHiReg
	case 0b11:
		inst.Format = FormatBranchExchange
		inst.Op = OpBX
		if hw&(1<<7) != 0 {
			inst.Op = OpBLX
		}
		inst.Rm = rm
		return
	}

	inst.Rd = rdn
	inst.Rn = rdn
	inst.Rm = rm
}

// decodeLoadLiteral decodes LDR Rt, [PC, #imm8*4].
func (d *Decoder) decodeLoadLiteral(hw uint16, inst *Instruction) {
	inst.Op = OpLDR
	inst.Format = FormatLoadStore
	inst.Width = 4
	inst.Rd = uint8((hw >> 8) & 0x7)
	inst.Rn = RegPC
	inst.Imm = uint32(hw&0xff) << 2
}

// decodeLoadStoreReg decodes loads and stores with a register offset.
// Format: 0101 | opB(3) | Rm | Rn | Rt
func (d *Decoder) decodeLoadStoreReg(hw uint16, inst *Instruction) {
	inst.Format = FormatLoadStore
	inst.RegOffset = true
	inst.Rd = uint8(hw & 0x7)
	inst.Rn = uint8((hw >> 3) & 0x7)
	inst.Rm = uint8((hw >> 6) & 0x7)

	switch (hw >> 9) & 0x7 {
	case 0b000:
		inst.Op, inst.Width = OpSTR, 4
	case 0b001:
		inst.Op, inst.Width = OpSTR, 2
	case 0b010:
		inst.Op, inst.Width = OpSTR, 1
	case 0b011:
		inst.Op, inst.Width, inst.Signed = OpLDR, 1, true
	case 0b100:
		inst.Op, inst.Width = OpLDR, 4
	case 0b101:
		inst.Op, inst.Width = OpLDR, 2
	case 0b110:
		inst.Op, inst.Width = OpLDR, 1
	case 0b111:
		inst.Op, inst.Width, inst.Signed = OpLDR, 2, true
	}
}

// decodeLoadStoreImm decodes word, byte and halfword loads and stores with
// a 5-bit immediate offset scaled by the access width.
func (d *Decoder) decodeLoadStoreImm(hw uint16, inst *Instruction) {
	inst.Format = FormatLoadStore
	inst.Rd = uint8(hw & 0x7)
	inst.Rn = uint8((hw >> 3) & 0x7)
	imm5 := uint32((hw >> 6) & 0x1f)

	switch {
	case hw>>12 == 0b0110:
		inst.Width = 4
	case hw>>12 == 0b0111:
		inst.Width = 1
	default:
		inst.Width = 2
	}
	inst.Imm = imm5 * uint32(inst.Width)

	inst.Op = OpSTR
	if hw&(1<<11) != 0 {
		inst.Op = OpLDR
	}
}

// decodeLoadStoreSP decodes LDR/STR Rt, [SP, #imm8*4].
func (d *Decoder) decodeLoadStoreSP(hw uint16, inst *Instruction) {
	inst.Format = FormatLoadStore
	inst.Width = 4
	inst.Rd = uint8((hw >> 8) & 0x7)
	inst.Rn = RegSP
	inst.Imm = uint32(hw&0xff) << 2

	inst.Op = OpSTR
	if hw&(1<<11) != 0 {
		inst.Op = OpLDR
	}
}

// decodeAddress decodes ADR and ADD Rd, SP, #imm8*4.
func (d *Decoder) decodeAddress(hw uint16, inst *Instruction) {
	inst.Op = OpADD
	inst.Format = FormatAddress
	inst.Rd = uint8((hw >> 8) & 0x7)
	inst.Imm = uint32(hw&0xff) << 2

	inst.Rn = RegPC
	if hw&(1<<11) != 0 {
		inst.Rn = RegSP
	}
}

// decodeMisc decodes the miscellaneous 16-bit group (1011 xxxx).
func (d *Decoder) decodeMisc(hw uint16, inst *Instruction) {
	switch {
	case hw&0xff00 == 0xb000:
		// ADD/SUB SP, SP, #imm7*4
		inst.Format = FormatAddress
		inst.Op = OpADD
		if hw&(1<<7) != 0 {
			inst.Op = OpSUB
		}
		inst.Rd = RegSP
		inst.Rn = RegSP
		inst.Imm = uint32(hw&0x7f) << 2

	case hw&0xf500 == 0xb100:
		// CBZ/CBNZ Rn, label
		inst.Format = FormatCompareBranch
		inst.Op = OpCBZ
		if hw&(1<<11) != 0 {
			inst.Op = OpCBNZ
		}
		inst.Rn = uint8(hw & 0x7)
		offset := uint32((hw>>3)&0x1f)<<1 | uint32((hw>>9)&1)<<6
		inst.BranchOffset = int32(offset)

	case hw&0xff00 == 0xb200:
		inst.Format = FormatExtend
		inst.Rd = uint8(hw & 0x7)
		inst.Rm = uint8((hw >> 3) & 0x7)
		switch (hw >> 6) & 0b11 {
		case 0b00:
			inst.Op = OpSXTH
		case 0b01:
			inst.Op = OpSXTB
		case 0b10:
			inst.Op = OpUXTH
		case 0b11:
			inst.Op = OpUXTB
		}

	case hw&0xfe00 == 0xb400:
		// PUSH {reglist, LR}
		inst.Format = FormatPushPop
		inst.Op = OpPUSH
		inst.RegList = hw & 0xff
		if hw&(1<<8) != 0 {
			inst.RegList |= 1 << RegLR
		}

	case hw&0xfe00 == 0xbc00:
		// POP {reglist, PC}
		inst.Format = FormatPushPop
		inst.Op = OpPOP
		inst.RegList = hw & 0xff
		if hw&(1<<8) != 0 {
			inst.RegList |= 1 << RegPC
		}

	case hw&0xffe8 == 0xb660:
		inst.Format = FormatSystem
		inst.Op = OpCPS
		inst.Disable = hw&(1<<4) != 0

	case hw&0xff00 == 0xbe00:
		inst.Format = FormatException
		inst.Op = OpBKPT
		inst.Imm = uint32(hw & 0xff)

	case hw&0xff00 == 0xbf00:
		inst.Format = FormatSystem
		inst.Op = OpNOP
		if hw&0xf != 0 {
			// IT blocks are not supported by the execution engine
			inst.Op = OpIT
			inst.Imm = uint32(hw & 0xff)
		}
	}
}

// decodeMultiple decodes LDMIA/STMIA Rn!, {reglist}.
func (d *Decoder) decodeMultiple(hw uint16, inst *Instruction) {
	inst.Format = FormatMultiple
	inst.Rn = uint8((hw >> 8) & 0x7)
	inst.RegList = hw & 0xff

	inst.Op = OpSTM
	inst.Writeback = true
	if hw&(1<<11) != 0 {
		inst.Op = OpLDM
		// no writeback when the base register is in the list
		inst.Writeback = inst.RegList&(1<<inst.Rn) == 0
	}
}

// decodeBranchCond decodes B<cond>, UDF and SVC.
// Format: 1101 | cond(4) | imm8
func (d *Decoder) decodeBranchCond(hw uint16, inst *Instruction) {
	cond := uint8((hw >> 8) & 0xf)

	switch cond {
	case 0b1110:
		inst.Format = FormatException
		inst.Op = OpUDF
		inst.Imm = uint32(hw & 0xff)
	case 0b1111:
		inst.Format = FormatException
		inst.Op = OpSVC
		inst.Imm = uint32(hw & 0xff)
	default:
		inst.Format = FormatBranchCond
		inst.Op = OpB
		inst.Cond = Cond(cond)
		inst.BranchOffset = signExtend(uint32(hw&0xff)<<1, 9)
	}
}

// decode32 decodes the supported 32-bit encodings. Anything else is
// returned as OpSkip.
func (d *Decoder) decode32(hw1, hw2 uint16) *Instruction {
	inst := &Instruction{Op: OpSkip, Format: FormatSkipped, Size: 4}

	switch {
	case hw1&0xf800 == 0xf000 && hw2&0xd000 == 0xd000:
		d.decodeBL(hw1, hw2, inst)

	case hw1 == 0xf3ef && hw2&0xf000 == 0x8000:
		// MRS Rd, spec_reg
		inst.Op = OpMRS
		inst.Format = FormatSystem
		inst.Rd = uint8((hw2 >> 8) & 0xf)
		inst.SYSm = uint8(hw2 & 0xff)

	case hw1&0xfff0 == 0xf380 && hw2&0xff00 == 0x8800:
		// MSR spec_reg, Rn
		inst.Op = OpMSR
		inst.Format = FormatSystem
		inst.Rn = uint8(hw1 & 0xf)
		inst.SYSm = uint8(hw2 & 0xff)

	case hw1 == 0xf3bf && hw2&0xff00 == 0x8f00:
		// DSB, DMB, ISB
		inst.Op = OpNOP
		inst.Format = FormatSystem
	}

	return inst
}

// decodeBL decodes BL <label>.
// Format: 11110 | S | imm10 || 11 | J1 | 1 | J2 | imm11
func (d *Decoder) decodeBL(hw1, hw2 uint16, inst *Instruction) {
	inst.Op = OpBL
	inst.Format = FormatBranchLink

	s := uint32(hw1>>10) & 1
	imm10 := uint32(hw1 & 0x3ff)
	j1 := uint32(hw2>>13) & 1
	j2 := uint32(hw2>>11) & 1
	imm11 := uint32(hw2 & 0x7ff)

	i1 := ^(j1 ^ s) & 1
	i2 := ^(j2 ^ s) & 1

	imm := s<<24 | i1<<23 | i2<<22 | imm10<<12 | imm11<<1
	inst.BranchOffset = signExtend(imm, 25)
}

// signExtend sign-extends the low bits of value.
func signExtend(value uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(value<<shift) >> shift
}
