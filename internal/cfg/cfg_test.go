package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n64recomp/recomp/internal/mipsdecode"
	"github.com/n64recomp/recomp/internal/recompctx"
)

func addu(rd, rs, rt uint8) uint32 {
	return uint32(0)<<26 | uint32(rs)<<21 | uint32(rt)<<16 | uint32(rd)<<11 | 0x21
}

func jr(rs uint8) uint32 {
	return uint32(0)<<26 | uint32(rs)<<21 | 0x08
}

func beq(rs, rt uint8, offset int16) uint32 {
	return uint32(0x04)<<26 | uint32(rs)<<21 | uint32(rt)<<16 | uint32(uint16(offset))
}

func jal(target uint32) uint32 {
	return uint32(0x03)<<26 | (target>>2)&0x03FFFFFF
}

func decodeAll(words []uint32, base uint32) []mipsdecode.Inst {
	insts := make([]mipsdecode.Inst, len(words))
	for i, w := range words {
		insts[i] = mipsdecode.Decode(w, base+uint32(4*i))
	}
	return insts
}

func TestAnalyzeStraightLineFunctionIsOneReturnBlock(t *testing.T) {
	const base = 0x80100000
	words := []uint32{
		addu(8, 9, 10),
		jr(31),
		addu(0, 0, 0), // delay slot
	}
	insts := decodeAll(words, base)
	fr := recompctx.FunctionRecord{VRAM: base, NumWords: len(words)}

	an := Analyze(fr, insts, &recompctx.Context{VRAMIndex: map[uint32][]int{}}, Diagnostics{FuncName: "f"})

	require.Len(t, an.Blocks, 1)
	b := an.Blocks[0]
	assert.Equal(t, 0, b.Start)
	assert.Equal(t, len(words), b.Len)
	assert.Equal(t, Return, b.Term.Kind)
	assert.False(t, b.NeedsLabel)
}

func TestAnalyzeConditionalBranchSplitsIntoBlocks(t *testing.T) {
	const base = 0x80100000
	// beq $0,$0,1 ; delay slot ; block at index 2 that is both the branch
	// target and the fallthrough
	words := []uint32{
		beq(0, 0, 1),
		addu(0, 0, 0), // delay slot
		addu(8, 8, 8), // branch target (index 2)
		jr(31),
		addu(0, 0, 0),
	}
	insts := decodeAll(words, base)
	fr := recompctx.FunctionRecord{VRAM: base, NumWords: len(words)}

	an := Analyze(fr, insts, &recompctx.Context{VRAMIndex: map[uint32][]int{}}, Diagnostics{FuncName: "f"})

	require.Len(t, an.Blocks, 2)
	b0 := an.Blocks[0]
	assert.Equal(t, 0, b0.Start)
	assert.Equal(t, 2, b0.Len) // branch + delay slot
	assert.Equal(t, BranchConditional, b0.Term.Kind)
	assert.EqualValues(t, base+4*2, b0.Term.Target)
	assert.EqualValues(t, base+4*2, b0.Term.FallthroughVRAM)

	b1 := an.Blocks[1]
	assert.Equal(t, 2, b1.Start)
	assert.True(t, b1.NeedsLabel, "branch target must get a goto label")
}

func TestAnalyzeJALMarksCallAndFallthroughButNoLabel(t *testing.T) {
	const base = 0x80100000
	words := []uint32{
		jal(base + 0x100),
		addu(0, 0, 0), // delay slot
		addu(8, 8, 8), // fallthrough, reached only sequentially
	}
	insts := decodeAll(words, base)
	fr := recompctx.FunctionRecord{VRAM: base, NumWords: len(words)}
	ctx := &recompctx.Context{VRAMIndex: map[uint32][]int{
		base + 0x100: {0},
	}, Functions: []recompctx.FunctionRecord{{VRAM: base + 0x100, Name: "callee", NumWords: 1}}}

	an := Analyze(fr, insts, ctx, Diagnostics{FuncName: "f"})

	require.Len(t, an.Blocks, 2)
	assert.Equal(t, Call, an.Blocks[0].Term.Kind)
	assert.EqualValues(t, base+0x100, an.Blocks[0].Term.Target)
	assert.False(t, an.Blocks[1].NeedsLabel, "a pure post-call fallthrough split needs no goto label")
}

func TestAnalyzeSyscallBlockHasNoDelaySlotTrailer(t *testing.T) {
	const base = 0x80100000
	words := []uint32{
		uint32(0)<<26 | 0x0C, // syscall
		addu(8, 8, 8),
	}
	insts := decodeAll(words, base)
	fr := recompctx.FunctionRecord{VRAM: base, NumWords: len(words)}

	an := Analyze(fr, insts, &recompctx.Context{VRAMIndex: map[uint32][]int{}}, Diagnostics{FuncName: "f"})

	require.Len(t, an.Blocks, 1)
	assert.Equal(t, Syscall, an.Blocks[0].Term.Kind)
	assert.Equal(t, 1, an.Blocks[0].Len)
}

func TestAnalyzeOutOfRangeJIsTailCall(t *testing.T) {
	const base = 0x80100000
	far := uint32(0x80200000)
	words := []uint32{
		uint32(0x02)<<26 | (far>>2)&0x03FFFFFF,
		addu(0, 0, 0),
	}
	insts := decodeAll(words, base)
	fr := recompctx.FunctionRecord{VRAM: base, NumWords: len(words)}

	an := Analyze(fr, insts, &recompctx.Context{VRAMIndex: map[uint32][]int{}}, Diagnostics{FuncName: "f"})

	require.Len(t, an.Blocks, 1)
	assert.Equal(t, TailCall, an.Blocks[0].Term.Kind)
	assert.EqualValues(t, far, an.Blocks[0].Term.Target)
}
