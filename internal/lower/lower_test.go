package lower

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n64recomp/recomp/internal/mipsdecode"
	"github.com/n64recomp/recomp/internal/recompctx"
	"github.com/n64recomp/recomp/internal/recomperr"
)

func addu(rd, rs, rt uint8) mipsdecode.Inst {
	word := uint32(0)<<26 | uint32(rs)<<21 | uint32(rt)<<16 | uint32(rd)<<11 | 0x21
	return mipsdecode.Decode(word, 0x1000)
}

func jr(rs uint8) mipsdecode.Inst {
	word := uint32(0)<<26 | uint32(rs)<<21 | 0x08
	return mipsdecode.Decode(word, 0x1000)
}

func TestLowerInstADDUAssignsSignExtended(t *testing.T) {
	lw := New(nil)
	lines, err := lw.LowerInst(addu(8, 9, 10))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "ctx->r[8].ud64 =")
	assert.Contains(t, lines[0], "ctx->r[9].uw32")
	assert.Contains(t, lines[0], "ctx->r[10].uw32")
}

func TestLowerInstADDUToZeroRegisterIsDiscarded(t *testing.T) {
	lw := New(nil)
	lines, err := lw.LowerInst(addu(0, 9, 10))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Empty(t, lines[0])
}

func cop1(fmtBits, ft, fs, fd uint8, funct uint32) mipsdecode.Inst {
	word := uint32(0x11)<<26 | uint32(fmtBits)<<21 | uint32(ft)<<16 | uint32(fs)<<11 | uint32(fd)<<6 | funct
	return mipsdecode.Decode(word, 0x1000)
}

func TestLowerInstTruncWSDestFormatMatchesFunct(t *testing.T) {
	// trunc.w.s $f2, $f0 -> fmt=S(16), funct=0x0D (the .W variant)
	lw := New(nil)
	lines, err := lw.LowerInst(cop1(16, 0, 0, 2, 0x0D))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "ctx->f[2].w =")
	assert.Contains(t, lines[0], "recomp_trunc_s_to_w(")
}

func TestLowerInstCeilLSDestFormatMatchesFunct(t *testing.T) {
	// ceil.l.s $f2, $f0 -> fmt=S(16), funct=0x0A (the .L variant)
	lw := New(nil)
	lines, err := lw.LowerInst(cop1(16, 0, 0, 2, 0x0A))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "ctx->f[2].l =")
	assert.Contains(t, lines[0], "recomp_ceil_s_to_l(")
}

func TestLowerInstCvtDToSUsesDestFromFunct(t *testing.T) {
	// cvt.s.d $f2, $f0 -> fmt=D(17), funct=0x20 (CVT.S)
	lw := New(nil)
	lines, err := lw.LowerInst(cop1(17, 0, 0, 2, 0x20))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "ctx->f[2].s =")
	assert.Contains(t, lines[0], "recomp_cvt_d_to_s(")
}

func TestLowerInstCvtWToLUsesDestFromFunct(t *testing.T) {
	// cvt.l.w $f2, $f0 -> fmt=W(20), funct=0x25 (CVT.L)
	lw := New(nil)
	lines, err := lw.LowerInst(cop1(20, 0, 0, 2, 0x25))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "ctx->f[2].l =")
	assert.Contains(t, lines[0], "recomp_cvt_w_to_l(")
}

func TestLowerInstUnknownOpcodeErrors(t *testing.T) {
	lw := New(nil)
	bogus := mipsdecode.Decode(uint32(0x3A)<<26, 0x2000)
	_, err := lw.LowerInst(bogus)
	require.Error(t, err)
	kind, ok := recomperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, recomperr.KindUnknownOpcode, kind)
}

func TestLowerInstDIVUGuardsDivideByZero(t *testing.T) {
	word := uint32(0)<<26 | 9<<21 | 10<<16 | 0x1B // divu $t1, $t2
	in := mipsdecode.Decode(word, 0x1000)
	lw := New(nil)
	lines, err := lw.LowerInst(in)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "== 0")
	assert.Contains(t, lines[0], "0xFFFFFFFFu")
}

func TestLowerTerminatorJRRaReturns(t *testing.T) {
	lw := New(nil)
	delay := addu(0, 0, 0)
	lines, err := lw.LowerTerminator(jr(31), 0x1008, &delay, nil)
	require.NoError(t, err)
	assert.Equal(t, "return;", lines[len(lines)-1])
}

func TestLowerTerminatorJRNonRaLooksUpIndirectly(t *testing.T) {
	lw := New(nil)
	delay := addu(0, 0, 0)
	lines, err := lw.LowerTerminator(jr(8), 0x1008, &delay, nil)
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "LOOKUP_FUNC(ctx->r[8].uw32)")
	assert.Contains(t, joined, "return;")
}

func TestLowerTerminatorJALCallsDirectSymbolWhenKnown(t *testing.T) {
	const callee = 0x80100100
	ctx := &recompctx.Context{
		VRAMIndex: map[uint32][]int{callee: {0}},
		Functions: []recompctx.FunctionRecord{{VRAM: callee, Name: "some_func", NumWords: 1}},
	}
	lw := New(ctx)

	word := uint32(0x03)<<26 | (callee>>2)&0x03FFFFFF
	in := mipsdecode.Decode(word, 0x1000)
	delay := addu(0, 0, 0)

	lines, err := lw.LowerTerminator(in, 0x1008, &delay, nil)
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "ctx->r[31].ud64 = (uint64_t)((int64_t)(int32_t)0x00001008);")
	assert.Contains(t, joined, "some_func(rdram, ctx);")
}

func TestLowerTerminatorJALFallsBackToLookupWhenUnknown(t *testing.T) {
	ctx := &recompctx.Context{VRAMIndex: map[uint32][]int{}}
	lw := New(ctx)

	const callee = 0x80200000
	word := uint32(0x03)<<26 | (callee>>2)&0x03FFFFFF
	in := mipsdecode.Decode(word, 0x1000)
	delay := addu(0, 0, 0)

	lines, err := lw.LowerTerminator(in, 0x1008, &delay, nil)
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "LOOKUP_FUNC(0x80200000u)")
}

func TestLowerTerminatorBranchGotoLabel(t *testing.T) {
	word := uint32(0x04)<<26 | 0<<21 | 0<<16 | 1 // beq $0,$0,1
	in := mipsdecode.Decode(word, 0x1000)
	delay := addu(0, 0, 0)
	lw := New(nil)

	label := func(vram uint32) (string, bool) {
		if vram == in.BranchTarget {
			return "L_DEADBEEF", true
		}
		return "", false
	}

	lines, err := lw.LowerTerminator(in, 0x1008, &delay, label)
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "if (")
	assert.Contains(t, joined, "goto L_DEADBEEF;")
}

func TestLowerTerminatorNestedBranchInDelaySlotErrors(t *testing.T) {
	word := uint32(0x04)<<26 | 1 // beq as the "delay slot" instruction
	nestedBranch := mipsdecode.Decode(word, 0x1004)
	in := jr(31)
	lw := New(nil)

	_, err := lw.LowerTerminator(in, 0x1008, &nestedBranch, nil)
	require.Error(t, err)
	kind, ok := recomperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, recomperr.KindNestedBranchInDelaySlot, kind)
}

func TestLowerTerminatorSyscallHasNoDelaySlotLines(t *testing.T) {
	word := uint32(0)<<26 | 0x0C // syscall
	in := mipsdecode.Decode(word, 0x1000)
	lw := New(nil)

	lines, err := lw.LowerTerminator(in, 0x1004, nil, nil)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "recomp_trap(rdram, ctx, 0x00001000u);")
}
