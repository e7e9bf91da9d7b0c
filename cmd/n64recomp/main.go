// Command n64recomp drives the Context Builder, Function Analyzer,
// Instruction Lowerer, Function Emitter, and Linkage Emitter end to end:
// given an ELF and an entrypoint vram, it writes one .c file per emitted
// function plus the header and lookup table that link them together.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/n64recomp/recomp/internal/emit"
	"github.com/n64recomp/recomp/internal/link"
	"github.com/n64recomp/recomp/internal/policy"
	"github.com/n64recomp/recomp/internal/recompctx"
	"github.com/n64recomp/recomp/internal/recomperr"
)

// policyFileEnv names the optional environment variable pointing at a
// policy file (ignored/renamed/unsized-size sets). Invocation otherwise
// follows spec.md section 6's exact two-positional-argument contract, so
// policy data is threaded in out-of-band rather than as a third argument.
const policyFileEnv = "N64RECOMP_POLICY"

const outputDirEnv = "N64RECOMP_OUTPUT_DIR"

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <elf-path> <entrypoint-vram>\n", os.Args[0])
}

func main() {
	if len(os.Args) != 3 {
		usage()
		os.Exit(0)
	}

	elfPath := os.Args[1]
	entrypoint, err := strconv.ParseUint(os.Args[2], 0, 32)
	if err != nil {
		fatal(recomperr.Newf(recomperr.KindBadEntrypoint, "invalid entrypoint literal %q: %s", os.Args[2], err))
	}

	cfg, err := policy.Load(os.Getenv(policyFileEnv))
	if err != nil {
		fatal(err)
	}
	sets := cfg.Resolve()

	ctx, err := recompctx.Build(elfPath, uint32(entrypoint), sets)
	if err != nil {
		fatal(err)
	}
	logrus.WithFields(logrus.Fields{
		"functions":  len(ctx.Functions),
		"entrypoint": fmt.Sprintf("0x%08X", ctx.Entrypoint),
	}).Info("context built")

	results, err := emit.EmitAll(ctx, 0)
	if err != nil {
		fatal(err)
	}

	outDir := os.Getenv(outputDirEnv)
	if outDir == "" {
		outDir = "recomp_out"
	}
	if err := writeOutput(outDir, elfPath, ctx, results); err != nil {
		fatal(err)
	}

	logrus.WithField("emitted", countEmitted(results)).Info("recompilation complete")
}

func countEmitted(results []emit.Result) int {
	n := 0
	for _, r := range results {
		if !r.Skipped {
			n++
		}
	}
	return n
}

func writeOutput(outDir, elfPath string, ctx *recompctx.Context, results []emit.Result) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return recomperr.Wrap(recomperr.KindElfLoadFailed, err, "creating output directory")
	}

	for _, r := range results {
		if r.Skipped {
			continue
		}
		path := filepath.Join(outDir, r.Name+".c")
		if err := os.WriteFile(path, []byte(r.Source), 0o644); err != nil {
			os.Remove(path)
			return recomperr.Wrap(recomperr.KindElfLoadFailed, err, "writing "+path)
		}
	}

	headerPath := filepath.Join(outDir, "recomp_functions.h")
	if err := os.WriteFile(headerPath, []byte(link.Header(results)), 0o644); err != nil {
		return recomperr.Wrap(recomperr.KindElfLoadFailed, err, "writing "+headerPath)
	}

	lookupPath := filepath.Join(outDir, "recomp_lookup.c")
	if err := os.WriteFile(lookupPath, []byte(link.LookupTable(results, ctx, elfPath)), 0o644); err != nil {
		return recomperr.Wrap(recomperr.KindElfLoadFailed, err, "writing "+lookupPath)
	}

	return nil
}

// fatal writes the single diagnostic line spec.md section 7 mandates and
// exits 1. There is no retry and no cleanup: partial output is left as-is.
func fatal(err error) {
	if kind, ok := recomperr.KindOf(err); ok {
		logrus.WithField("kind", kind.String()).Errorf("%s", err)
	} else {
		logrus.Errorf("%s", err)
	}
	os.Exit(1)
}
