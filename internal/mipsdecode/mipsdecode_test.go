package mipsdecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeADDU(t *testing.T) {
	// addu $t0, $t1, $t2 -> opcode 0, rs=$t1(9), rt=$t2(10), rd=$t0(8), funct=0x21
	word := uint32(0)<<26 | 9<<21 | 10<<16 | 8<<11 | 0<<6 | 0x21
	in := Decode(word, 0x1000)

	require.Equal(t, OpADDU, in.Op)
	assert.EqualValues(t, 9, in.Rs)
	assert.EqualValues(t, 10, in.Rt)
	assert.EqualValues(t, 8, in.Rd)
	assert.False(t, in.HasDelaySlot())
}

func TestDecodeADDIUSignExtendsImmediate(t *testing.T) {
	// addiu $t0, $zero, -1
	word := uint32(0x09)<<26 | 0<<21 | 8<<16 | 0xFFFF
	in := Decode(word, 0x1000)

	require.Equal(t, OpADDIU, in.Op)
	assert.EqualValues(t, -1, in.Imm)
	assert.EqualValues(t, 0xFFFF, in.ImmU)
}

func TestDecodeBEQComputesBranchTarget(t *testing.T) {
	// beq $zero, $zero, 4  (branch 4 instructions forward of the delay slot)
	word := uint32(0x04)<<26 | 0<<21 | 0<<16 | 4
	in := Decode(word, 0x1000)

	require.Equal(t, OpBEQ, in.Op)
	assert.True(t, in.HasDelaySlot())
	assert.True(t, in.IsConditionalBranch())
	assert.False(t, in.IsBranchLikely())
	// BranchTarget = addr + 4 (next instruction) + imm*4
	assert.EqualValues(t, 0x1000+4+4*4, in.BranchTarget)
}

func TestDecodeJComputesAbsoluteTarget(t *testing.T) {
	word := uint32(0x02)<<26 | 0x100
	in := Decode(word, 0xF0000000)

	require.Equal(t, OpJ, in.Op)
	assert.EqualValues(t, 0xF0000000|(0x100<<2), in.JumpTarget)
}

func TestDecodeNOP(t *testing.T) {
	in := Decode(0, 0x1000)
	assert.Equal(t, OpNOP, in.Op)
}

func TestDecodeSLLUsesRsRtRdFromSpecial(t *testing.T) {
	// sll $v0, $v1, 3 -> opcode 0, rs=0, rt=$v1(3), rd=$v0(2), shamt=3, funct=0
	word := uint32(0)<<26 | 0<<21 | 3<<16 | 2<<11 | 3<<6 | 0x00
	in := Decode(word, 0x2000)

	require.Equal(t, OpSLL, in.Op)
	assert.EqualValues(t, 0, in.Rs)
	assert.EqualValues(t, 3, in.Rt)
	assert.EqualValues(t, 2, in.Rd)
	assert.EqualValues(t, 3, in.Shamt)
}

func TestDecodeCop1AddS(t *testing.T) {
	// add.s $f2, $f0, $f1 -> cop1, fmt=S(16), ft=f1(1), fs=f0(0), fd=f2(2), funct=0
	word := uint32(0x11)<<26 | 16<<21 | 1<<16 | 0<<11 | 2<<6 | 0x00
	in := Decode(word, 0x3000)

	require.Equal(t, OpADDfmt, in.Op)
	assert.Equal(t, FmtS, in.Fmt)
	assert.EqualValues(t, 1, in.Ft)
	assert.EqualValues(t, 0, in.Fs)
	assert.EqualValues(t, 2, in.Fd)
}

func TestDecodeCop1RoundTruncCeilFloorFunctVariants(t *testing.T) {
	// Each of round/trunc/ceil/floor has a .L (low nibble 0x8-0xB) and a
	// .W (0xC-0xF) funct variant; fmt(rs) is always the float source, S here.
	cases := []struct {
		name   string
		funct  uint32
		wantOp Op
		wantFmt Fmt
	}{
		{"round.l.s", 0x08, OpROUNDfmt, FmtL},
		{"trunc.l.s", 0x09, OpTRUNCfmt, FmtL},
		{"ceil.l.s", 0x0A, OpCEILfmt, FmtL},
		{"floor.l.s", 0x0B, OpFLOORfmt, FmtL},
		{"round.w.s", 0x0C, OpROUNDfmt, FmtW},
		{"trunc.w.s", 0x0D, OpTRUNCfmt, FmtW},
		{"ceil.w.s", 0x0E, OpCEILfmt, FmtW},
		{"floor.w.s", 0x0F, OpFLOORfmt, FmtW},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			word := uint32(0x11)<<26 | 16<<21 | 1<<16 | 0<<11 | 2<<6 | c.funct
			in := Decode(word, 0x3000)
			require.Equal(t, c.wantOp, in.Op)
			assert.Equal(t, FmtS, in.Fmt)
			assert.Equal(t, c.wantFmt, in.CvtFmt)
		})
	}
}

func TestDecodeCop1CvtFunctVariants(t *testing.T) {
	// CVT.fmt's funct value names the destination format directly; here
	// the source format (rs) is always D and each funct maps to a distinct
	// destination (cvt.d.d, the identity case, included).
	cases := []struct {
		name    string
		funct   uint32
		wantFmt Fmt
	}{
		{"cvt.s.d", 0x20, FmtS},
		{"cvt.d.d", 0x21, FmtD},
		{"cvt.w.d", 0x24, FmtW},
		{"cvt.l.d", 0x25, FmtL},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			word := uint32(0x11)<<26 | 17<<21 | 1<<16 | 0<<11 | 2<<6 | c.funct
			in := Decode(word, 0x3000)
			require.Equal(t, OpCVTfmt, in.Op)
			assert.Equal(t, FmtD, in.Fmt)
			assert.Equal(t, c.wantFmt, in.CvtFmt)
		})
	}
}

func TestDecodeBranchLikely(t *testing.T) {
	word := uint32(0x14)<<26 | 0<<21 | 0<<16 | 1 // BEQL
	in := Decode(word, 0x1000)

	require.Equal(t, OpBEQL, in.Op)
	assert.True(t, in.IsBranchLikely())
	assert.True(t, in.IsConditionalBranch())
}

func TestMnemonicFallback(t *testing.T) {
	assert.Equal(t, "addu", OpADDU.Mnemonic())
	assert.Contains(t, Invalid.Mnemonic(), "op(")
}

func TestDecodeInvalidOpcode(t *testing.T) {
	word := uint32(0x3A) << 26 // unused major opcode
	in := Decode(word, 0x1000)
	assert.Equal(t, Invalid, in.Op)
}
