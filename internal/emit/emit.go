// Package emit is the Function Emitter (spec.md section 4.D): it drives
// the Context Builder's function records through the Function Analyzer and
// Instruction Lowerer to produce one C translation unit per function, and
// runs that drive across every function on a bounded worker pool, per the
// concurrency model of spec.md section 5.
//
// The single-driver-dispatching-per-unit shape is the teacher's own
// GenerateELF/generateIRText pattern, read in the opposite direction: the
// teacher emits one target-architecture text per IR function, this package
// emits one C text per MIPS function. See DESIGN.md.
package emit

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/n64recomp/recomp/internal/cfg"
	"github.com/n64recomp/recomp/internal/lower"
	"github.com/n64recomp/recomp/internal/mipsdecode"
	"github.com/n64recomp/recomp/internal/recompctx"
)

// Result is one function's emission outcome.
type Result struct {
	FuncIndex int // index into Context.Functions, for deterministic merge
	Name      string
	VRAM      uint32
	SymIndex  int
	Source    string // full .c file text; empty when Skipped
	Skipped   bool   // ignored or zero-instruction: no body to emit

	// Ignored mirrors FunctionRecord.Ignored. A Skipped-but-not-Ignored
	// result is an admitted STT_OBJECT/zero-instruction record: it still
	// gets no body and no forward declaration, but internal/link gives it
	// a lookup-table entry so its vram stays resolvable (the Ignored ones
	// rely entirely on a hand-written external symbol instead).
	Ignored bool
}

func label(vram uint32) string {
	return fmt.Sprintf("L_%08X", vram)
}

// EmitFunction runs the Function Analyzer and Instruction Lowerer over one
// function record and renders its .c file text. Ignored functions and
// stub/object records with no instruction window produce a Skipped result
// with no error.
func EmitFunction(funcIndex int, fr recompctx.FunctionRecord, ctx *recompctx.Context) (Result, error) {
	res := Result{FuncIndex: funcIndex, Name: fr.Name, VRAM: fr.VRAM, SymIndex: fr.SymIndex, Ignored: fr.Ignored}

	if fr.Ignored || fr.NumWords == 0 {
		res.Skipped = true
		return res, nil
	}

	words := fr.Words(ctx.ROM)
	insts := make([]mipsdecode.Inst, len(words))
	for i, w := range words {
		insts[i] = mipsdecode.Decode(w, fr.VRAM+uint32(4*i))
	}

	diag := cfg.Diagnostics{FuncName: fr.Name}
	analysis := cfg.Analyze(fr, insts, ctx, diag)
	lw := lower.New(ctx)

	labelFor := func(vram uint32) (string, bool) {
		if vram < fr.VRAM || (vram-fr.VRAM)%4 != 0 {
			return "", false
		}
		idx := int((vram - fr.VRAM) / 4)
		if _, ok := analysis.BlockAt[idx]; !ok {
			return "", false
		}
		return label(vram), true
	}

	var body strings.Builder
	for _, block := range analysis.Blocks {
		if block.NeedsLabel {
			fmt.Fprintf(&body, "%s:\n", label(fr.VRAM+uint32(4*block.Start)))
		}

		straightEnd := block.End()
		hasTerm := block.Term.Kind != cfg.Fallthrough
		if hasTerm {
			// Syscall/Break have no delay slot, occupying one trailing
			// slot; every other terminator kind occupies two (itself
			// plus its delay slot).
			trailing := 2
			if block.Term.Kind == cfg.Syscall {
				trailing = 1
			}
			straightEnd = block.End() - trailing
			if straightEnd < block.Start {
				straightEnd = block.Start
			}
		}

		for i := block.Start; i < straightEnd; i++ {
			lines, err := lw.LowerInst(insts[i])
			if err != nil {
				return Result{}, errors.Wrapf(err, "function %s", fr.Name)
			}
			writeLines(&body, lines)
		}

		if !hasTerm {
			continue
		}

		// The terminator instruction is the one that actually carries the
		// control transfer: for kinds with a delay slot it sits at
		// End()-2 and the delay slot follows at End()-1; Syscall has no
		// delay slot and sits at End()-1 directly.
		var termInstIdx int
		var delayPtr *mipsdecode.Inst
		if block.Term.Kind == cfg.Syscall {
			termInstIdx = block.End() - 1
		} else {
			termInstIdx = block.End() - 2
			if termInstIdx < block.Start {
				termInstIdx = block.Start
			}
			d := insts[termInstIdx+1]
			delayPtr = &d
		}

		nextPC := fr.VRAM + uint32(4*(termInstIdx+2))
		lines, err := lw.LowerTerminator(insts[termInstIdx], nextPC, delayPtr, labelFor)
		if err != nil {
			return Result{}, errors.Wrapf(err, "function %s", fr.Name)
		}
		writeLines(&body, lines)
	}

	var out strings.Builder
	fmt.Fprintf(&out, "#include \"recomp.h\"\n\n")
	fmt.Fprintf(&out, "void %s(uint8_t* restrict rdram, recomp_context* restrict ctx) {\n", fr.Name)
	out.WriteString("    gpr tmp, tmp2;\n")
	out.WriteString("    (void)tmp; (void)tmp2;\n")
	for _, line := range strings.Split(strings.TrimRight(body.String(), "\n"), "\n") {
		if line == "" {
			continue
		}
		out.WriteString("    ")
		out.WriteString(line)
		out.WriteString("\n")
	}
	out.WriteString("}\n")

	res.Source = out.String()
	return res, nil
}

func writeLines(b *strings.Builder, lines []string) {
	for _, l := range lines {
		if l == "" {
			continue
		}
		b.WriteString(l)
		b.WriteString("\n")
	}
}

// EmitAll drives EmitFunction across every function record in ctx on a
// bounded worker pool (spec.md section 5: embarrassingly parallel, merged
// deterministically by vram then symbol index). A lowering failure in any
// worker makes EmitAll return that error and no results; EmitAll itself
// writes no files, so a failure here leaves nothing on disk.
func EmitAll(ctx *recompctx.Context, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	type job struct {
		idx int
		fr  recompctx.FunctionRecord
	}

	jobs := make(chan job)
	results := make([]Result, len(ctx.Functions))
	errs := make([]error, len(ctx.Functions))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res, err := EmitFunction(j.idx, j.fr, ctx)
				results[j.idx] = res
				errs[j.idx] = err
				if err != nil {
					logrus.WithFields(logrus.Fields{
						"function": j.fr.Name,
						"vram":     j.fr.VRAM,
					}).Error("function emission failed")
				}
			}
		}()
	}

	for i, fr := range ctx.Functions {
		jobs <- job{idx: i, fr: fr}
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	// Deterministic merge: ascending vram, ties broken by symbol index.
	sort.Slice(results, func(a, b int) bool {
		if results[a].VRAM != results[b].VRAM {
			return results[a].VRAM < results[b].VRAM
		}
		return results[a].SymIndex < results[b].SymIndex
	})

	return results, nil
}
