// Package link is the Linkage Emitter (spec.md section 4.E): once every
// function has been emitted, it produces the two cross-function artifacts
// that glue the emitted translation units together — a forward-declaration
// header and a vram→function-pointer lookup table, both in deterministic
// (vram, then symbol-table index) order per spec.md section 5.
package link

import (
	"fmt"
	"strings"

	"github.com/n64recomp/recomp/internal/emit"
	"github.com/n64recomp/recomp/internal/recompctx"
)

// Header renders the forward-declaration header: one declaration per
// emitted (non-ignored, non-empty) function, wrapped in a C-linkage guard.
func Header(results []emit.Result) string {
	var b strings.Builder
	b.WriteString("#ifndef RECOMP_FUNCTIONS_H\n")
	b.WriteString("#define RECOMP_FUNCTIONS_H\n\n")
	b.WriteString("#include \"recomp.h\"\n\n")
	b.WriteString("#ifdef __cplusplus\n")
	b.WriteString("extern \"C\" {\n")
	b.WriteString("#endif\n\n")

	for _, r := range results {
		// Neither ignored symbols (declared externally by hand) nor
		// zero-instruction object records (no body at all) get a
		// declaration here; the latter still get a lookup-table entry
		// below so their vram stays resolvable.
		if r.Skipped {
			continue
		}
		fmt.Fprintf(&b, "void %s(uint8_t* restrict rdram, recomp_context* restrict ctx);\n", r.Name)
	}

	b.WriteString("\n#ifdef __cplusplus\n")
	b.WriteString("}\n")
	b.WriteString("#endif\n\n")
	b.WriteString("#endif // RECOMP_FUNCTIONS_H\n")
	return b.String()
}

// LookupTable renders the {vram, function-pointer} table and the two
// accessor functions get_entrypoint_address() and get_rom_name().
func LookupTable(results []emit.Result, ctx *recompctx.Context, elfPath string) string {
	var b strings.Builder
	b.WriteString("#include \"recomp_functions.h\"\n\n")

	b.WriteString("const recomp_lookup_entry_t recomp_lookup_table[] = {\n")
	count := 0
	for _, r := range results {
		if r.Ignored {
			// Relies entirely on a hand-written external <name>_recomp;
			// no vram of ours to publish for it.
			continue
		}
		if r.Skipped {
			// Admitted STT_OBJECT/zero-instruction record: no function
			// body exists, but its vram must still resolve through the
			// table, so the entry points at nothing.
			fmt.Fprintf(&b, "    { 0x%08Xu, NULL },\n", r.VRAM)
			count++
			continue
		}
		fmt.Fprintf(&b, "    { 0x%08Xu, %s },\n", r.VRAM, r.Name)
		count++
	}
	b.WriteString("};\n\n")
	fmt.Fprintf(&b, "const size_t recomp_lookup_table_size = %d;\n\n", count)

	fmt.Fprintf(&b, "int64_t get_entrypoint_address(void) {\n    return (int64_t)(int32_t)0x%08Xu;\n}\n\n", ctx.Entrypoint)

	romName := recompctx.RomName(elfPath)
	fmt.Fprintf(&b, "const char* get_rom_name(void) {\n    return %q;\n}\n", romName)

	return b.String()
}
