// Package cfg implements the Function Analyzer (spec.md section 4.B): given
// one function's decoded instruction stream, it reconstructs an ordered
// list of basic blocks, classifying each block's terminator so the Function
// Emitter can drive delay-slot-aware C emission.
package cfg

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/n64recomp/recomp/internal/mipsdecode"
	"github.com/n64recomp/recomp/internal/recompctx"
)

// TerminatorKind is one of the terminator shapes spec.md section 4.B names.
type TerminatorKind int

const (
	Fallthrough TerminatorKind = iota
	BranchConditional
	BranchUnconditional
	Jump
	Return
	Call
	TailCall
	Syscall
)

func (k TerminatorKind) String() string {
	switch k {
	case Fallthrough:
		return "Fallthrough"
	case BranchConditional:
		return "BranchConditional"
	case BranchUnconditional:
		return "BranchUnconditional"
	case Jump:
		return "Jump"
	case Return:
		return "Return"
	case Call:
		return "Call"
	case TailCall:
		return "TailCall"
	case Syscall:
		return "Syscall"
	default:
		return "Unknown"
	}
}

// Terminator carries a terminator kind plus whichever of its fields apply.
type Terminator struct {
	Kind TerminatorKind

	// Target is the branch/call/tail-call target vram, valid for
	// BranchConditional, BranchUnconditional, Call, TailCall.
	Target uint32

	// FallthroughVRAM is the vram execution continues at when a
	// BranchConditional is not taken.
	FallthroughVRAM uint32

	// Reg is the register holding an indirect-jump target, valid for Jump.
	Reg uint8

	// Likely marks a branch-likely terminator, whose delay-slot
	// instruction only executes on the taken path.
	Likely bool
}

// Block is one basic block: a contiguous run of instruction-stream indices
// ending at a control-transfer point (or at the boundary of a block another
// jump targets the middle of).
type Block struct {
	Label int
	Start int
	Len   int
	Term  Terminator

	// NeedsLabel is true when some branch in this function actually
	// transfers control to Start — as opposed to a block boundary that
	// exists only because a preceding terminator's fallthrough lands
	// here, which C's natural statement order already satisfies.
	NeedsLabel bool
}

// End returns the index one past the block's last instruction.
func (b Block) End() int { return b.Start + b.Len }

// Analysis is the Function Analyzer's output for one function.
type Analysis struct {
	Blocks []Block

	// BlockAt maps an instruction index that begins a block (index 0, a
	// branch target, or a fallthrough split) to that block's index in Blocks.
	BlockAt map[int]int
}

// Diagnostics collects the Function Analyzer's non-fatal findings, per
// spec.md section 7's JumpTargetOutsideAnyFunction.
type Diagnostics struct {
	FuncName string
}

// JumpTargetOutsideAnyFunction logs a non-fatal diagnostic for a call or
// tail-call target vram that resolves to no function record at analysis
// time. The actual resolution happens at runtime through the lookup table
// built by the Linkage Emitter, so this is advisory only.
func (d Diagnostics) JumpTargetOutsideAnyFunction(vram uint32) {
	logrus.WithFields(logrus.Fields{
		"function": d.FuncName,
		"target":   vram,
	}).Warn("jump target outside any known function")
}

// Analyze runs the Function Analyzer procedure of spec.md section 4.B over
// insts, the decoded instruction stream of fr (fr.VRAM .. fr.VRAM+4*len(insts)).
// ctx is consulted to classify call/tail-call targets that escape this
// function's own address range.
func Analyze(fr recompctx.FunctionRecord, insts []mipsdecode.Inst, ctx *recompctx.Context, diag Diagnostics) *Analysis {
	n := len(insts)
	loVRAM := fr.VRAM
	hiVRAM := fr.VRAM + uint32(4*n)

	inRange := func(vram uint32) (int, bool) {
		if vram < loVRAM || vram >= hiVRAM || (vram-loVRAM)%4 != 0 {
			return 0, false
		}
		return int((vram - loVRAM) / 4), true
	}

	// Step 1: seed the target set with index 0. jumpTarget records which
	// of these block starts are reached by an actual control transfer
	// (as opposed to a plain post-terminator fallthrough split).
	targets := map[int]struct{}{0: {}}
	jumpTarget := make(map[int]bool)
	termAt := make(map[int]Terminator, n)

	// Step 2-3: classify each instruction.
	for i := 0; i < n; i++ {
		in := insts[i]

		switch {
		case in.Op == mipsdecode.OpJR && in.Rs == 31:
			termAt[i] = Terminator{Kind: Return}

		case in.Op == mipsdecode.OpJR || in.Op == mipsdecode.OpJALR:
			termAt[i] = Terminator{Kind: Jump, Reg: in.Rs}

		case in.Op == mipsdecode.OpJAL:
			termAt[i] = Terminator{Kind: Call, Target: in.JumpTarget}
			if fallIdx := i + 2; fallIdx <= n {
				targets[fallIdx] = struct{}{}
			}
			if _, ok := ctx.FuncsAt(in.JumpTarget); !ok {
				diag.JumpTargetOutsideAnyFunction(in.JumpTarget)
			}

		case in.Op == mipsdecode.OpJ:
			if tgt, ok := inRange(in.JumpTarget); ok {
				termAt[i] = Terminator{Kind: BranchUnconditional, Target: in.JumpTarget}
				targets[tgt] = struct{}{}
				jumpTarget[tgt] = true
			} else {
				termAt[i] = Terminator{Kind: TailCall, Target: in.JumpTarget}
				if _, ok := ctx.FuncsAt(in.JumpTarget); !ok {
					diag.JumpTargetOutsideAnyFunction(in.JumpTarget)
				}
			}

		case in.Op == mipsdecode.OpSYSCALL, in.Op == mipsdecode.OpBREAK:
			termAt[i] = Terminator{Kind: Syscall}

		case in.IsConditionalBranch():
			t := Terminator{
				Kind:   BranchConditional,
				Target: in.BranchTarget,
				Likely: in.IsBranchLikely(),
			}
			if fallIdx := i + 2; fallIdx <= n {
				t.FallthroughVRAM = loVRAM + uint32(4*fallIdx)
				targets[fallIdx] = struct{}{}
			}
			if tgt, ok := inRange(in.BranchTarget); ok {
				targets[tgt] = struct{}{}
				jumpTarget[tgt] = true
			}
			termAt[i] = t
		}
	}

	// Build the ordered block list from the target set.
	sortedTargets := make([]int, 0, len(targets))
	for t := range targets {
		sortedTargets = append(sortedTargets, t)
	}
	sort.Ints(sortedTargets)

	analysis := &Analysis{BlockAt: make(map[int]int, len(sortedTargets))}
	for bi, start := range sortedTargets {
		next := n
		if bi+1 < len(sortedTargets) {
			next = sortedTargets[bi+1]
		}

		end := next
		term := Terminator{Kind: Fallthrough}
		for i := start; i < next; i++ {
			if t, ok := termAt[i]; ok {
				delaySlot := 0
				if insts[i].HasDelaySlot() {
					delaySlot = 1
				}
				end = i + 1 + delaySlot
				if end > next {
					end = next
				}
				term = t
				break
			}
		}

		block := Block{Label: bi, Start: start, Len: end - start, Term: term, NeedsLabel: jumpTarget[start]}
		analysis.BlockAt[start] = len(analysis.Blocks)
		analysis.Blocks = append(analysis.Blocks, block)
	}

	return analysis
}
