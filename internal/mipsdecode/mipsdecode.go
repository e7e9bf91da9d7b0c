// Package mipsdecode is the instruction-disassembly external collaborator
// spec.md section 1 names at the core's boundary: it turns one big-endian
// MIPS III 32-bit word into a decoded instruction record. Pseudo-instruction
// expansion (move, beqz, bnez, ...) is deliberately not performed; callers
// see true MIPS opcodes only, per spec.md section 3.
package mipsdecode

import "fmt"

// Op identifies the true MIPS III opcode of a decoded instruction. Zero
// value Invalid marks a word this decoder does not recognize.
type Op int

const (
	Invalid Op = iota

	// Integer ALU (operate on the low 32 bits, sign-extend the result).
	OpADDU
	OpADDIU
	OpSUBU
	OpAND
	OpANDI
	OpOR
	OpORI
	OpXOR
	OpXORI
	OpNOR
	OpSLT
	OpSLTI
	OpSLTU
	OpSLTIU
	OpSLL
	OpSRL
	OpSRA
	OpSLLV
	OpSRLV
	OpSRAV
	OpLUI

	// Trap-on-overflow opcodes, lowered as their U-suffixed siblings; see
	// spec.md section 4.C and the Open Question in SPEC_FULL.md.
	OpADD
	OpADDI
	OpSUB

	// 64-bit ALU. DADD/DADDI/DSUB are the trap-on-overflow siblings of
	// DADDU/DADDIU/DSUBU and are lowered identically to them; see the
	// Open Question in SPEC_FULL.md.
	OpDADD
	OpDADDI
	OpDADDU
	OpDADDIU
	OpDSUB
	OpDSUBU
	OpDSLL
	OpDSRL
	OpDSRA
	OpDSLL32
	OpDSRA32
	OpDSRL32
	OpDSLLV
	OpDSRLV
	OpDSRAV

	// Multiply / divide.
	OpMULT
	OpMULTU
	OpDIV
	OpDIVU
	OpDMULT
	OpDMULTU
	OpDDIV
	OpDDIVU
	OpMFHI
	OpMFLO
	OpMTHI
	OpMTLO

	// Loads / stores.
	OpLB
	OpLBU
	OpLH
	OpLHU
	OpLW
	OpLWU
	OpLD
	OpSB
	OpSH
	OpSW
	OpSD

	// Unaligned loads / stores.
	OpLWL
	OpLWR
	OpSWL
	OpSWR
	OpLDL
	OpLDR
	OpSDL
	OpSDR

	// Branches.
	OpBEQ
	OpBNE
	OpBLEZ
	OpBGTZ
	OpBLTZ
	OpBGEZ
	OpBLTZAL
	OpBGEZAL
	OpBEQL
	OpBNEL
	OpBLEZL
	OpBGTZL
	OpBLTZL
	OpBGEZL

	// Jumps / calls.
	OpJ
	OpJAL
	OpJR
	OpJALR

	// Misc.
	OpSYSCALL
	OpBREAK
	OpSYNC
	OpCACHE
	OpNOP

	// Coprocessor 1 (FPU).
	OpMTC1
	OpMFC1
	OpDMTC1
	OpDMFC1
	OpCTC1
	OpCFC1
	OpLWC1
	OpSWC1
	OpLDC1
	OpSDC1
	OpBC1T
	OpBC1F
	OpBC1TL
	OpBC1FL
	OpADDfmt
	OpSUBfmt
	OpMULfmt
	OpDIVfmt
	OpSQRTfmt
	OpNEGfmt
	OpABSfmt
	OpMOVfmt
	OpTRUNCfmt
	OpCEILfmt
	OpFLOORfmt
	OpROUNDfmt
	OpCVTfmt
	OpCcondfmt
)

// Fmt identifies the cop1 operand format (single, double, word, long).
type Fmt int

const (
	FmtNone Fmt = iota
	FmtS
	FmtD
	FmtW
	FmtL
)

// Inst is the decoded form of one 32-bit MIPS word, fixed at its vram.
type Inst struct {
	Addr uint32
	Raw  uint32
	Op   Op

	Rs, Rt, Rd uint8
	Shamt      uint8

	// Imm is the sign-extended 16-bit immediate; ImmU is its raw bit
	// pattern, used by logical-immediate opcodes (ANDI/ORI/XORI/LUI).
	Imm  int32
	ImmU uint32

	// JumpTarget holds the absolute vram for J/JAL, computed from the
	// 26-bit target field and the delay slot's own address segment.
	JumpTarget uint32

	// BranchTarget holds the absolute vram a conditional/unconditional
	// PC-relative branch transfers control to.
	BranchTarget uint32

	// Cop1 fields. Fmt, Fd and CCond apply to the Opxxxfmt values; Fs
	// also names the FPU register of MTC1/MFC1/DMTC1/DMFC1, and Ft the
	// FPU register of LWC1/SWC1/LDC1/SDC1.
	Fmt   Fmt
	Ft    uint8
	Fs    uint8
	Fd    uint8
	CCond uint8 // low 4 bits of a C.cond.fmt funct field
	CC    uint8 // FP condition-code number (always 0 for MIPS III)

	// CvtFmt is the destination format for OpCVTfmt (decoded from which
	// of the four CVT.S/D/W/L funct values matched) and for the
	// OpTRUNCfmt/OpCEILfmt/OpFLOORfmt/OpROUNDfmt family (decoded from
	// the .L vs .W funct variant), since the funct field alone only
	// tells Decode the operation, not the destination width.
	CvtFmt Fmt
}

// HasDelaySlot reports whether the instruction is followed by a delay
// slot instruction that always (or, for *L branch-likely forms,
// conditionally) executes before control transfers.
func (in Inst) HasDelaySlot() bool {
	switch in.Op {
	case OpBEQ, OpBNE, OpBLEZ, OpBGTZ, OpBLTZ, OpBGEZ, OpBLTZAL, OpBGEZAL,
		OpBEQL, OpBNEL, OpBLEZL, OpBGTZL, OpBLTZL, OpBGEZL,
		OpJ, OpJAL, OpJR, OpJALR,
		OpBC1T, OpBC1F, OpBC1TL, OpBC1FL:
		return true
	}
	return false
}

// IsBranchLikely reports whether the delay-slot instruction only executes
// on the taken path (the "L" branch family plus BC1TL/BC1FL).
func (in Inst) IsBranchLikely() bool {
	switch in.Op {
	case OpBEQL, OpBNEL, OpBLEZL, OpBGTZL, OpBLTZL, OpBGEZL, OpBC1TL, OpBC1FL:
		return true
	}
	return false
}

// IsConditionalBranch reports whether Op is one of the PC-relative
// conditional branch forms (including branch-likely and BC1T/F forms).
func (in Inst) IsConditionalBranch() bool {
	switch in.Op {
	case OpBEQ, OpBNE, OpBLEZ, OpBGTZ, OpBLTZ, OpBGEZ, OpBLTZAL, OpBGEZAL,
		OpBEQL, OpBNEL, OpBLEZL, OpBGTZL, OpBLTZL, OpBGEZL,
		OpBC1T, OpBC1F, OpBC1TL, OpBC1FL:
		return true
	}
	return false
}

// Decode decodes one big-endian MIPS III word fetched from vram addr.
func Decode(word uint32, addr uint32) Inst {
	in := Inst{Addr: addr, Raw: word}

	opcode := (word >> 26) & 0x3F
	rs := uint8((word >> 21) & 0x1F)
	rt := uint8((word >> 16) & 0x1F)
	rd := uint8((word >> 11) & 0x1F)
	shamt := uint8((word >> 6) & 0x1F)
	funct := word & 0x3F
	imm16 := uint16(word & 0xFFFF)
	target26 := word & 0x03FFFFFF

	in.Rs, in.Rt, in.Rd, in.Shamt = rs, rt, rd, shamt
	in.ImmU = uint32(imm16)
	in.Imm = int32(int16(imm16))

	nextAddr := addr + 4
	in.BranchTarget = uint32(int32(nextAddr) + (in.Imm << 2))
	in.JumpTarget = (nextAddr & 0xF0000000) | (target26 << 2)

	switch opcode {
	case 0x00: // SPECIAL
		decodeSpecial(&in, funct)
	case 0x01: // REGIMM
		decodeRegimm(&in)
	case 0x02:
		in.Op = OpJ
	case 0x03:
		in.Op = OpJAL
	case 0x04:
		in.Op = OpBEQ
	case 0x05:
		in.Op = OpBNE
	case 0x06:
		in.Op = OpBLEZ
	case 0x07:
		in.Op = OpBGTZ
	case 0x08:
		in.Op = OpADDI
	case 0x09:
		in.Op = OpADDIU
	case 0x0A:
		in.Op = OpSLTI
	case 0x0B:
		in.Op = OpSLTIU
	case 0x0C:
		in.Op = OpANDI
	case 0x0D:
		in.Op = OpORI
	case 0x0E:
		in.Op = OpXORI
	case 0x0F:
		in.Op = OpLUI
	case 0x11: // COP1
		decodeCop1(&in, rs, rt, rd, shamt, funct)
	case 0x14:
		in.Op = OpBEQL
	case 0x15:
		in.Op = OpBNEL
	case 0x16:
		in.Op = OpBLEZL
	case 0x17:
		in.Op = OpBGTZL
	case 0x18:
		in.Op = OpDADDI
	case 0x19:
		in.Op = OpDADDIU
	case 0x1A:
		in.Op = OpLDL
	case 0x1B:
		in.Op = OpLDR
	case 0x20:
		in.Op = OpLB
	case 0x21:
		in.Op = OpLH
	case 0x22:
		in.Op = OpLWL
	case 0x23:
		in.Op = OpLW
	case 0x24:
		in.Op = OpLBU
	case 0x25:
		in.Op = OpLHU
	case 0x26:
		in.Op = OpLWR
	case 0x27:
		in.Op = OpLWU
	case 0x28:
		in.Op = OpSB
	case 0x29:
		in.Op = OpSH
	case 0x2A:
		in.Op = OpSWL
	case 0x2B:
		in.Op = OpSW
	case 0x2C:
		in.Op = OpSDL
	case 0x2D:
		in.Op = OpSDR
	case 0x2E:
		in.Op = OpSWR
	case 0x2F:
		in.Op = OpCACHE
	case 0x31:
		in.Op = OpLWC1
	case 0x35:
		in.Op = OpLDC1
	case 0x37:
		in.Op = OpLD
	case 0x39:
		in.Op = OpSWC1
	case 0x3D:
		in.Op = OpSDC1
	case 0x3F:
		in.Op = OpSD
	default:
		in.Op = Invalid
	}

	if in.Op == OpSLL && rd == 0 && rt == 0 && shamt == 0 {
		in.Op = OpNOP
	}

	switch in.Op {
	case OpLWC1, OpSWC1, OpLDC1, OpSDC1:
		in.Ft = rt
	}

	return in
}

func decodeSpecial(in *Inst, funct uint32) {
	switch funct {
	case 0x00:
		in.Op = OpSLL
	case 0x02:
		in.Op = OpSRL
	case 0x03:
		in.Op = OpSRA
	case 0x04:
		in.Op = OpSLLV
	case 0x06:
		in.Op = OpSRLV
	case 0x07:
		in.Op = OpSRAV
	case 0x08:
		in.Op = OpJR
	case 0x09:
		in.Op = OpJALR
	case 0x0C:
		in.Op = OpSYSCALL
	case 0x0D:
		in.Op = OpBREAK
	case 0x0F:
		in.Op = OpSYNC
	case 0x10:
		in.Op = OpMFHI
	case 0x11:
		in.Op = OpMTHI
	case 0x12:
		in.Op = OpMFLO
	case 0x13:
		in.Op = OpMTLO
	case 0x14:
		in.Op = OpDSLLV
	case 0x16:
		in.Op = OpDSRLV
	case 0x17:
		in.Op = OpDSRAV
	case 0x18:
		in.Op = OpMULT
	case 0x19:
		in.Op = OpMULTU
	case 0x1A:
		in.Op = OpDIV
	case 0x1B:
		in.Op = OpDIVU
	case 0x1C:
		in.Op = OpDMULT
	case 0x1D:
		in.Op = OpDMULTU
	case 0x1E:
		in.Op = OpDDIV
	case 0x1F:
		in.Op = OpDDIVU
	case 0x20:
		in.Op = OpADD
	case 0x21:
		in.Op = OpADDU
	case 0x22:
		in.Op = OpSUB
	case 0x23:
		in.Op = OpSUBU
	case 0x24:
		in.Op = OpAND
	case 0x25:
		in.Op = OpOR
	case 0x26:
		in.Op = OpXOR
	case 0x27:
		in.Op = OpNOR
	case 0x2A:
		in.Op = OpSLT
	case 0x2B:
		in.Op = OpSLTU
	case 0x2C:
		in.Op = OpDADD
	case 0x2D:
		in.Op = OpDADDU
	case 0x2E:
		in.Op = OpDSUB
	case 0x2F:
		in.Op = OpDSUBU
	case 0x38:
		in.Op = OpDSLL
	case 0x3A:
		in.Op = OpDSRL
	case 0x3B:
		in.Op = OpDSRA
	case 0x3C:
		in.Op = OpDSLL32
	case 0x3E:
		in.Op = OpDSRL32
	case 0x3F:
		in.Op = OpDSRA32
	default:
		in.Op = Invalid
	}
}

func decodeRegimm(in *Inst) {
	switch in.Rt {
	case 0x00:
		in.Op = OpBLTZ
	case 0x01:
		in.Op = OpBGEZ
	case 0x02:
		in.Op = OpBLTZL
	case 0x03:
		in.Op = OpBGEZL
	case 0x10:
		in.Op = OpBLTZAL
	case 0x11:
		in.Op = OpBGEZAL
	default:
		in.Op = Invalid
	}
}

func decodeCop1(in *Inst, rs, rt, rd, shamt uint8, funct uint32) {
	in.Ft, in.Fs, in.Fd = rt, rd, shamt

	switch rs {
	case 0x00:
		in.Op = OpMFC1
		return
	case 0x01:
		in.Op = OpDMFC1
		return
	case 0x02:
		in.Op = OpCFC1
		return
	case 0x04:
		in.Op = OpMTC1
		return
	case 0x05:
		in.Op = OpDMTC1
		return
	case 0x06:
		in.Op = OpCTC1
		return
	case 0x08: // BC1
		cc := rt >> 2
		in.CC = cc
		switch rt & 0x3 {
		case 0x00:
			in.Op = OpBC1F
		case 0x01:
			in.Op = OpBC1T
		case 0x02:
			in.Op = OpBC1FL
		case 0x03:
			in.Op = OpBC1TL
		default:
			in.Op = Invalid
		}
		return
	}

	switch rs {
	case 16:
		in.Fmt = FmtS
	case 17:
		in.Fmt = FmtD
	case 20:
		in.Fmt = FmtW
	case 21:
		in.Fmt = FmtL
	default:
		in.Op = Invalid
		return
	}

	switch funct {
	case 0x00:
		in.Op = OpADDfmt
	case 0x01:
		in.Op = OpSUBfmt
	case 0x02:
		in.Op = OpMULfmt
	case 0x03:
		in.Op = OpDIVfmt
	case 0x04:
		in.Op = OpSQRTfmt
	case 0x05:
		in.Op = OpABSfmt
	case 0x06:
		in.Op = OpMOVfmt
	case 0x07:
		in.Op = OpNEGfmt

	// ROUND/TRUNC/CEIL/FLOOR each have an .L and a .W destination-format
	// funct variant; the destination rides on CvtFmt since the Op alone
	// only names the rounding mode.
	case 0x08:
		in.Op = OpROUNDfmt
		in.CvtFmt = FmtL
	case 0x09:
		in.Op = OpTRUNCfmt
		in.CvtFmt = FmtL
	case 0x0A:
		in.Op = OpCEILfmt
		in.CvtFmt = FmtL
	case 0x0B:
		in.Op = OpFLOORfmt
		in.CvtFmt = FmtL
	case 0x0C:
		in.Op = OpROUNDfmt
		in.CvtFmt = FmtW
	case 0x0D:
		in.Op = OpTRUNCfmt
		in.CvtFmt = FmtW
	case 0x0E:
		in.Op = OpCEILfmt
		in.CvtFmt = FmtW
	case 0x0F:
		in.Op = OpFLOORfmt
		in.CvtFmt = FmtW

	// CVT.S/D/W/L.fmt: the funct value itself names the destination
	// format, unlike every other cop1 opcode where rs (already decoded
	// into in.Fmt above) is the source format.
	case 0x20:
		in.Op = OpCVTfmt
		in.CvtFmt = FmtS
	case 0x21:
		in.Op = OpCVTfmt
		in.CvtFmt = FmtD
	case 0x24:
		in.Op = OpCVTfmt
		in.CvtFmt = FmtW
	case 0x25:
		in.Op = OpCVTfmt
		in.CvtFmt = FmtL

	default:
		if funct >= 0x30 {
			in.Op = OpCcondfmt
			in.CCond = uint8(funct & 0x0F)
			return
		}
		in.Op = Invalid
	}
}

// Mnemonic returns a human-readable mnemonic for diagnostics, e.g. for the
// UnknownOpcode error message. It does not attempt to render operands.
func (op Op) Mnemonic() string {
	if m, ok := mnemonics[op]; ok {
		return m
	}
	return fmt.Sprintf("op(%d)", int(op))
}

var mnemonics = map[Op]string{
	OpADDU: "addu", OpADDIU: "addiu", OpSUBU: "subu", OpAND: "and", OpANDI: "andi",
	OpOR: "or", OpORI: "ori", OpXOR: "xor", OpXORI: "xori", OpNOR: "nor",
	OpSLT: "slt", OpSLTI: "slti", OpSLTU: "sltu", OpSLTIU: "sltiu",
	OpSLL: "sll", OpSRL: "srl", OpSRA: "sra", OpSLLV: "sllv", OpSRLV: "srlv", OpSRAV: "srav",
	OpLUI: "lui", OpADD: "add", OpADDI: "addi", OpSUB: "sub",
	OpDADD: "dadd", OpDADDI: "daddi", OpDADDU: "daddu", OpDADDIU: "daddiu",
	OpDSUB: "dsub", OpDSUBU: "dsubu",
	OpDSLL: "dsll", OpDSRL: "dsrl", OpDSRA: "dsra",
	OpDSLL32: "dsll32", OpDSRA32: "dsra32", OpDSRL32: "dsrl32",
	OpDSLLV: "dsllv", OpDSRLV: "dsrlv", OpDSRAV: "dsrav",
	OpMULT: "mult", OpMULTU: "multu", OpDIV: "div", OpDIVU: "divu",
	OpDMULT: "dmult", OpDMULTU: "dmultu", OpDDIV: "ddiv", OpDDIVU: "ddivu",
	OpMFHI: "mfhi", OpMFLO: "mflo", OpMTHI: "mthi", OpMTLO: "mtlo",
	OpLB: "lb", OpLBU: "lbu", OpLH: "lh", OpLHU: "lhu", OpLW: "lw", OpLWU: "lwu", OpLD: "ld",
	OpSB: "sb", OpSH: "sh", OpSW: "sw", OpSD: "sd",
	OpLWL: "lwl", OpLWR: "lwr", OpSWL: "swl", OpSWR: "swr",
	OpLDL: "ldl", OpLDR: "ldr", OpSDL: "sdl", OpSDR: "sdr",
	OpBEQ: "beq", OpBNE: "bne", OpBLEZ: "blez", OpBGTZ: "bgtz",
	OpBLTZ: "bltz", OpBGEZ: "bgez", OpBLTZAL: "bltzal", OpBGEZAL: "bgezal",
	OpBEQL: "beql", OpBNEL: "bnel", OpBLEZL: "blezl", OpBGTZL: "bgtzl",
	OpBLTZL: "bltzl", OpBGEZL: "bgezl",
	OpJ: "j", OpJAL: "jal", OpJR: "jr", OpJALR: "jalr",
	OpSYSCALL: "syscall", OpBREAK: "break", OpSYNC: "sync", OpCACHE: "cache", OpNOP: "nop",
	OpMTC1: "mtc1", OpMFC1: "mfc1", OpDMTC1: "dmtc1", OpDMFC1: "dmfc1",
	OpCTC1: "ctc1", OpCFC1: "cfc1", OpLWC1: "lwc1", OpSWC1: "swc1", OpLDC1: "ldc1", OpSDC1: "sdc1",
	OpBC1T: "bc1t", OpBC1F: "bc1f", OpBC1TL: "bc1tl", OpBC1FL: "bc1fl",
	OpADDfmt: "add.fmt", OpSUBfmt: "sub.fmt", OpMULfmt: "mul.fmt", OpDIVfmt: "div.fmt",
	OpSQRTfmt: "sqrt.fmt", OpNEGfmt: "neg.fmt", OpABSfmt: "abs.fmt", OpMOVfmt: "mov.fmt",
	OpTRUNCfmt: "trunc.fmt", OpCEILfmt: "ceil.fmt", OpFLOORfmt: "floor.fmt", OpROUNDfmt: "round.fmt",
	OpCVTfmt: "cvt.fmt", OpCcondfmt: "c.cond.fmt",
}
