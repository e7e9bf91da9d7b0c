// Package lower is the Instruction Lowerer (spec.md section 4.C): it turns
// one decoded MIPS III instruction into the C statements that mutate the
// emitted register context or RDRAM. Straight-line instructions lower via
// LowerInst; branches, calls, jumps, returns, and traps — which also need
// to know their own delay-slot instruction and the target block's label —
// lower via LowerTerminator.
//
// The dispatch shape (one switch case per opcode or opcode family, keyed on
// mipsdecode.Op) mirrors a machine-instruction to IR-text lowerer elsewhere
// in this codebase's lineage; see DESIGN.md.
package lower

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/n64recomp/recomp/internal/mipsdecode"
	"github.com/n64recomp/recomp/internal/recompctx"
	"github.com/n64recomp/recomp/internal/recomperr"
)

// LabelFunc resolves a branch/jump target vram to the C label the Function
// Emitter assigned to the block starting there.
type LabelFunc func(vram uint32) (label string, ok bool)

// Lowerer lowers instructions in the context of one Context, so direct
// calls can be resolved to their target symbol's C function name.
type Lowerer struct {
	Ctx *recompctx.Context
}

// New builds a Lowerer bound to ctx.
func New(ctx *recompctx.Context) *Lowerer {
	return &Lowerer{Ctx: ctx}
}

// --- register / immediate text helpers -------------------------------------

func useU(n uint8) string {
	if n == 0 {
		return "0u"
	}
	return fmt.Sprintf("ctx->r[%d].uw32", n)
}

func useS(n uint8) string {
	if n == 0 {
		return "0"
	}
	return fmt.Sprintf("ctx->r[%d].sw32", n)
}

func use64U(n uint8) string {
	if n == 0 {
		return "0ull"
	}
	return fmt.Sprintf("ctx->r[%d].ud64", n)
}

func use64S(n uint8) string {
	if n == 0 {
		return "0ll"
	}
	return fmt.Sprintf("ctx->r[%d].sd64", n)
}

// defReg emits an assignment to register n, discarding writes to $0 per
// spec.md invariant 2 ("writes to $0 are discarded at emit time").
func defReg(n uint8, cExpr string) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("ctx->r[%d].ud64 = (uint64_t)(%s);", n, cExpr)
}

func defFloatReg(n uint8, fmtKind mipsdecode.Fmt, cExpr string) string {
	field := cop1Field(fmtKind)
	return fmt.Sprintf("ctx->f[%d].%s = %s;", n, field, cExpr)
}

func cop1Field(f mipsdecode.Fmt) string {
	switch f {
	case mipsdecode.FmtS:
		return "s"
	case mipsdecode.FmtD:
		return "d"
	case mipsdecode.FmtW:
		return "w"
	case mipsdecode.FmtL:
		return "l"
	default:
		return "d"
	}
}

func useFloat(n uint8, f mipsdecode.Fmt) string {
	return fmt.Sprintf("ctx->f[%d].%s", n, cop1Field(f))
}

// LowerInst lowers a single non-terminator instruction into zero or more C
// statements. Branch, jump, call, return, and trap opcodes must go through
// LowerTerminator instead; passing one here returns an error.
func (lw *Lowerer) LowerInst(in mipsdecode.Inst) ([]string, error) {
	switch in.Op {
	case mipsdecode.OpNOP, mipsdecode.OpSYNC, mipsdecode.OpCACHE:
		return []string{"(void)0;"}, nil

	// --- integer ALU: low 32 bits, sign-extended result ---
	case mipsdecode.OpADDU, mipsdecode.OpADD:
		return []string{defReg(in.Rd, sext32(fmt.Sprintf("%s + %s", useU(in.Rs), useU(in.Rt))))}, nil
	case mipsdecode.OpADDIU, mipsdecode.OpADDI:
		return []string{defReg(in.Rt, sext32(fmt.Sprintf("%s + %d", useU(in.Rs), in.Imm)))}, nil
	case mipsdecode.OpSUBU, mipsdecode.OpSUB:
		return []string{defReg(in.Rd, sext32(fmt.Sprintf("%s - %s", useU(in.Rs), useU(in.Rt))))}, nil
	case mipsdecode.OpAND:
		return []string{defReg(in.Rd, sext32(fmt.Sprintf("%s & %s", useU(in.Rs), useU(in.Rt))))}, nil
	case mipsdecode.OpANDI:
		return []string{defReg(in.Rt, sext32(fmt.Sprintf("%s & %du", useU(in.Rs), in.ImmU)))}, nil
	case mipsdecode.OpOR:
		return []string{defReg(in.Rd, sext32(fmt.Sprintf("%s | %s", useU(in.Rs), useU(in.Rt))))}, nil
	case mipsdecode.OpORI:
		return []string{defReg(in.Rt, sext32(fmt.Sprintf("%s | %du", useU(in.Rs), in.ImmU)))}, nil
	case mipsdecode.OpXOR:
		return []string{defReg(in.Rd, sext32(fmt.Sprintf("%s ^ %s", useU(in.Rs), useU(in.Rt))))}, nil
	case mipsdecode.OpXORI:
		return []string{defReg(in.Rt, sext32(fmt.Sprintf("%s ^ %du", useU(in.Rs), in.ImmU)))}, nil
	case mipsdecode.OpNOR:
		return []string{defReg(in.Rd, sext32(fmt.Sprintf("~(%s | %s)", useU(in.Rs), useU(in.Rt))))}, nil
	case mipsdecode.OpSLT:
		return []string{defReg(in.Rd, fmt.Sprintf("(%s < %s) ? 1 : 0", useS(in.Rs), useS(in.Rt)))}, nil
	case mipsdecode.OpSLTI:
		return []string{defReg(in.Rt, fmt.Sprintf("(%s < %d) ? 1 : 0", useS(in.Rs), in.Imm))}, nil
	case mipsdecode.OpSLTU:
		return []string{defReg(in.Rd, fmt.Sprintf("(%s < %s) ? 1 : 0", useU(in.Rs), useU(in.Rt)))}, nil
	case mipsdecode.OpSLTIU:
		return []string{defReg(in.Rt, fmt.Sprintf("(%s < %du) ? 1 : 0", useU(in.Rs), in.ImmU))}, nil
	case mipsdecode.OpSLL:
		return []string{defReg(in.Rd, sext32(fmt.Sprintf("%s << %d", useU(in.Rt), in.Shamt&0x1F)))}, nil
	case mipsdecode.OpSRL:
		return []string{defReg(in.Rd, sext32(fmt.Sprintf("%s >> %d", useU(in.Rt), in.Shamt&0x1F)))}, nil
	case mipsdecode.OpSRA:
		return []string{defReg(in.Rd, sext32(fmt.Sprintf("%s >> %d", useS(in.Rt), in.Shamt&0x1F)))}, nil
	case mipsdecode.OpSLLV:
		return []string{defReg(in.Rd, sext32(fmt.Sprintf("%s << (%s & 0x1F)", useU(in.Rt), useU(in.Rs))))}, nil
	case mipsdecode.OpSRLV:
		return []string{defReg(in.Rd, sext32(fmt.Sprintf("%s >> (%s & 0x1F)", useU(in.Rt), useU(in.Rs))))}, nil
	case mipsdecode.OpSRAV:
		return []string{defReg(in.Rd, sext32(fmt.Sprintf("%s >> (%s & 0x1F)", useS(in.Rt), useU(in.Rs))))}, nil
	case mipsdecode.OpLUI:
		return []string{defReg(in.Rt, sext32(fmt.Sprintf("%du << 16", in.ImmU)))}, nil

	// --- 64-bit ALU: full-width result ---
	case mipsdecode.OpDADDU, mipsdecode.OpDADD:
		return []string{defReg(in.Rd, fmt.Sprintf("%s + %s", use64U(in.Rs), use64U(in.Rt)))}, nil
	case mipsdecode.OpDADDIU, mipsdecode.OpDADDI:
		return []string{defReg(in.Rt, fmt.Sprintf("%s + (int64_t)%d", use64U(in.Rs), in.Imm))}, nil
	case mipsdecode.OpDSUBU, mipsdecode.OpDSUB:
		return []string{defReg(in.Rd, fmt.Sprintf("%s - %s", use64U(in.Rs), use64U(in.Rt)))}, nil
	case mipsdecode.OpDSLL:
		return []string{defReg(in.Rd, fmt.Sprintf("%s << %d", use64U(in.Rt), in.Shamt&0x3F))}, nil
	case mipsdecode.OpDSLL32:
		return []string{defReg(in.Rd, fmt.Sprintf("%s << %d", use64U(in.Rt), (in.Shamt&0x1F)+32))}, nil
	case mipsdecode.OpDSRL:
		return []string{defReg(in.Rd, fmt.Sprintf("%s >> %d", use64U(in.Rt), in.Shamt&0x3F))}, nil
	case mipsdecode.OpDSRL32:
		return []string{defReg(in.Rd, fmt.Sprintf("%s >> %d", use64U(in.Rt), (in.Shamt&0x1F)+32))}, nil
	case mipsdecode.OpDSRA:
		return []string{defReg(in.Rd, fmt.Sprintf("%s >> %d", use64S(in.Rt), in.Shamt&0x3F))}, nil
	case mipsdecode.OpDSRA32:
		return []string{defReg(in.Rd, fmt.Sprintf("%s >> %d", use64S(in.Rt), (in.Shamt&0x1F)+32))}, nil
	case mipsdecode.OpDSLLV:
		return []string{defReg(in.Rd, fmt.Sprintf("%s << (%s & 0x3F)", use64U(in.Rt), useU(in.Rs)))}, nil
	case mipsdecode.OpDSRLV:
		return []string{defReg(in.Rd, fmt.Sprintf("%s >> (%s & 0x3F)", use64U(in.Rt), useU(in.Rs)))}, nil
	case mipsdecode.OpDSRAV:
		return []string{defReg(in.Rd, fmt.Sprintf("%s >> (%s & 0x3F)", use64S(in.Rt), useU(in.Rs)))}, nil

	// --- multiply / divide ---
	case mipsdecode.OpMULT:
		return []string{fmt.Sprintf(
			"{ int64_t recomp_prod = (int64_t)%s * (int64_t)%s; ctx->lo.ud64 = (uint64_t)(int64_t)(int32_t)recomp_prod; ctx->hi.ud64 = (uint64_t)(int64_t)(int32_t)(recomp_prod >> 32); }",
			useS(in.Rs), useS(in.Rt))}, nil
	case mipsdecode.OpMULTU:
		return []string{fmt.Sprintf(
			"{ uint64_t recomp_prod = (uint64_t)%s * (uint64_t)%s; ctx->lo.ud64 = (uint64_t)(int64_t)(int32_t)(uint32_t)recomp_prod; ctx->hi.ud64 = (uint64_t)(int64_t)(int32_t)(uint32_t)(recomp_prod >> 32); }",
			useU(in.Rs), useU(in.Rt))}, nil
	case mipsdecode.OpDMULT:
		return []string{fmt.Sprintf(
			"{ __int128 recomp_prod = (__int128)%s * (__int128)%s; ctx->lo.ud64 = (uint64_t)recomp_prod; ctx->hi.ud64 = (uint64_t)(recomp_prod >> 64); }",
			use64S(in.Rs), use64S(in.Rt))}, nil
	case mipsdecode.OpDMULTU:
		return []string{fmt.Sprintf(
			"{ unsigned __int128 recomp_prod = (unsigned __int128)%s * (unsigned __int128)%s; ctx->lo.ud64 = (uint64_t)recomp_prod; ctx->hi.ud64 = (uint64_t)(recomp_prod >> 64); }",
			use64U(in.Rs), use64U(in.Rt))}, nil
	case mipsdecode.OpDIV:
		return []string{fmt.Sprintf(
			"if (%s == 0) { ctx->lo.ud64 = (uint64_t)(int64_t)-1; ctx->hi.ud64 = (uint64_t)(int64_t)%s; } else { ctx->lo.ud64 = (uint64_t)(int64_t)(%s / %s); ctx->hi.ud64 = (uint64_t)(int64_t)(%s %% %s); }",
			useS(in.Rt), useS(in.Rs), useS(in.Rs), useS(in.Rt), useS(in.Rs), useS(in.Rt))}, nil
	case mipsdecode.OpDIVU:
		return []string{fmt.Sprintf(
			"if (%s == 0) { ctx->lo.ud64 = (uint64_t)(int64_t)(int32_t)0xFFFFFFFFu; ctx->hi.ud64 = (uint64_t)(int64_t)(int32_t)%s; } else { ctx->lo.ud64 = (uint64_t)(int64_t)(int32_t)(%s / %s); ctx->hi.ud64 = (uint64_t)(int64_t)(int32_t)(%s %% %s); }",
			useU(in.Rt), useU(in.Rs), useU(in.Rs), useU(in.Rt), useU(in.Rs), useU(in.Rt))}, nil
	case mipsdecode.OpDDIV:
		return []string{fmt.Sprintf(
			"if (%s == 0) { ctx->lo.ud64 = (uint64_t)-1; ctx->hi.ud64 = (uint64_t)%s; } else { ctx->lo.ud64 = (uint64_t)(%s / %s); ctx->hi.ud64 = (uint64_t)(%s %% %s); }",
			use64S(in.Rt), use64S(in.Rs), use64S(in.Rs), use64S(in.Rt), use64S(in.Rs), use64S(in.Rt))}, nil
	case mipsdecode.OpDDIVU:
		return []string{fmt.Sprintf(
			"if (%s == 0) { ctx->lo.ud64 = 0xFFFFFFFFFFFFFFFFull; ctx->hi.ud64 = %s; } else { ctx->lo.ud64 = %s / %s; ctx->hi.ud64 = %s %% %s; }",
			use64U(in.Rt), use64U(in.Rs), use64U(in.Rs), use64U(in.Rt), use64U(in.Rs), use64U(in.Rt))}, nil
	case mipsdecode.OpMFHI:
		return []string{defReg(in.Rd, "ctx->hi.ud64")}, nil
	case mipsdecode.OpMFLO:
		return []string{defReg(in.Rd, "ctx->lo.ud64")}, nil
	case mipsdecode.OpMTHI:
		return []string{fmt.Sprintf("ctx->hi.ud64 = %s;", use64U(in.Rs))}, nil
	case mipsdecode.OpMTLO:
		return []string{fmt.Sprintf("ctx->lo.ud64 = %s;", use64U(in.Rs))}, nil

	// --- loads / stores ---
	case mipsdecode.OpLB:
		return loadLine(in, "S8", true), nil
	case mipsdecode.OpLBU:
		return loadLine(in, "U8", false), nil
	case mipsdecode.OpLH:
		return loadLine(in, "S16", true), nil
	case mipsdecode.OpLHU:
		return loadLine(in, "U16", false), nil
	case mipsdecode.OpLW:
		return loadLine(in, "S32", true), nil
	case mipsdecode.OpLWU:
		return loadLine(in, "U32", false), nil
	case mipsdecode.OpLD:
		return loadLine(in, "U64", false), nil
	case mipsdecode.OpSB:
		return storeLine(in, "U8"), nil
	case mipsdecode.OpSH:
		return storeLine(in, "U16"), nil
	case mipsdecode.OpSW:
		return storeLine(in, "U32"), nil
	case mipsdecode.OpSD:
		return storeLine(in, "U64"), nil

	// --- unaligned loads / stores: shared helper per spec.md section 4.C ---
	case mipsdecode.OpLWL:
		return []string{defReg(in.Rt, fmt.Sprintf("(int64_t)(int32_t)recomp_lwl(rdram, %s, %s)", addrExpr(in), useU(in.Rt)))}, nil
	case mipsdecode.OpLWR:
		return []string{defReg(in.Rt, fmt.Sprintf("(int64_t)(int32_t)recomp_lwr(rdram, %s, %s)", addrExpr(in), useU(in.Rt)))}, nil
	case mipsdecode.OpSWL:
		return []string{fmt.Sprintf("recomp_swl(rdram, %s, %s);", addrExpr(in), useU(in.Rt))}, nil
	case mipsdecode.OpSWR:
		return []string{fmt.Sprintf("recomp_swr(rdram, %s, %s);", addrExpr(in), useU(in.Rt))}, nil
	case mipsdecode.OpLDL:
		return []string{defReg(in.Rt, fmt.Sprintf("(int64_t)recomp_ldl(rdram, %s, %s)", addrExpr(in), use64U(in.Rt)))}, nil
	case mipsdecode.OpLDR:
		return []string{defReg(in.Rt, fmt.Sprintf("(int64_t)recomp_ldr(rdram, %s, %s)", addrExpr(in), use64U(in.Rt)))}, nil
	case mipsdecode.OpSDL:
		return []string{fmt.Sprintf("recomp_sdl(rdram, %s, %s);", addrExpr(in), use64U(in.Rt))}, nil
	case mipsdecode.OpSDR:
		return []string{fmt.Sprintf("recomp_sdr(rdram, %s, %s);", addrExpr(in), use64U(in.Rt))}, nil

	// --- COP1 register moves ---
	case mipsdecode.OpMTC1:
		return []string{fmt.Sprintf("ctx->f[%d].w = %s;", in.Fs, useU(in.Rt))}, nil
	case mipsdecode.OpMFC1:
		return []string{defReg(in.Rt, fmt.Sprintf("(int64_t)(int32_t)ctx->f[%d].w", in.Fs))}, nil
	case mipsdecode.OpDMTC1:
		return []string{fmt.Sprintf("ctx->f[%d].l = %s;", in.Fs, use64U(in.Rt))}, nil
	case mipsdecode.OpDMFC1:
		return []string{defReg(in.Rt, fmt.Sprintf("(int64_t)ctx->f[%d].l", in.Fs))}, nil
	case mipsdecode.OpCTC1:
		return []string{fmt.Sprintf("ctx->fcsr = %s;", useU(in.Rt))}, nil
	case mipsdecode.OpCFC1:
		return []string{defReg(in.Rt, "(int64_t)(int32_t)ctx->fcsr")}, nil
	case mipsdecode.OpLWC1:
		return []string{fmt.Sprintf("ctx->f[%d].w = MEM_LOAD_U32(rdram, %s);", in.Ft, addrExpr(in))}, nil
	case mipsdecode.OpSWC1:
		return []string{fmt.Sprintf("MEM_STORE_U32(rdram, %s, ctx->f[%d].w);", addrExpr(in), in.Ft)}, nil
	case mipsdecode.OpLDC1:
		return []string{fmt.Sprintf("ctx->f[%d].l = MEM_LOAD_U64(rdram, %s);", in.Ft, addrExpr(in))}, nil
	case mipsdecode.OpSDC1:
		return []string{fmt.Sprintf("MEM_STORE_U64(rdram, %s, ctx->f[%d].l);", addrExpr(in), in.Ft)}, nil

	// --- COP1 arithmetic ---
	case mipsdecode.OpADDfmt:
		return []string{defFloatReg(in.Fd, in.Fmt, fmt.Sprintf("%s + %s", useFloat(in.Fs, in.Fmt), useFloat(in.Ft, in.Fmt)))}, nil
	case mipsdecode.OpSUBfmt:
		return []string{defFloatReg(in.Fd, in.Fmt, fmt.Sprintf("%s - %s", useFloat(in.Fs, in.Fmt), useFloat(in.Ft, in.Fmt)))}, nil
	case mipsdecode.OpMULfmt:
		return []string{defFloatReg(in.Fd, in.Fmt, fmt.Sprintf("%s * %s", useFloat(in.Fs, in.Fmt), useFloat(in.Ft, in.Fmt)))}, nil
	case mipsdecode.OpDIVfmt:
		return []string{defFloatReg(in.Fd, in.Fmt, fmt.Sprintf("%s / %s", useFloat(in.Fs, in.Fmt), useFloat(in.Ft, in.Fmt)))}, nil
	case mipsdecode.OpSQRTfmt:
		return []string{defFloatReg(in.Fd, in.Fmt, fmt.Sprintf("recomp_sqrt_%s(%s)", cop1Field(in.Fmt), useFloat(in.Fs, in.Fmt)))}, nil
	case mipsdecode.OpABSfmt:
		return []string{defFloatReg(in.Fd, in.Fmt, fmt.Sprintf("recomp_fabs_%s(%s)", cop1Field(in.Fmt), useFloat(in.Fs, in.Fmt)))}, nil
	case mipsdecode.OpNEGfmt:
		return []string{defFloatReg(in.Fd, in.Fmt, fmt.Sprintf("-%s", useFloat(in.Fs, in.Fmt)))}, nil
	case mipsdecode.OpMOVfmt:
		return []string{defFloatReg(in.Fd, in.Fmt, useFloat(in.Fs, in.Fmt))}, nil
	case mipsdecode.OpTRUNCfmt:
		return []string{cvtLine(in, "trunc")}, nil
	case mipsdecode.OpCEILfmt:
		return []string{cvtLine(in, "ceil")}, nil
	case mipsdecode.OpFLOORfmt:
		return []string{cvtLine(in, "floor")}, nil
	case mipsdecode.OpROUNDfmt:
		return []string{cvtLine(in, "round")}, nil
	case mipsdecode.OpCVTfmt:
		return []string{cvtLine(in, "cvt")}, nil
	case mipsdecode.OpCcondfmt:
		return []string{fmt.Sprintf("ctx->cop1cc = recomp_c_cond_%s(%d, %s, %s);", cop1Field(in.Fmt), in.CCond, useFloat(in.Fs, in.Fmt), useFloat(in.Ft, in.Fmt))}, nil

	default:
		return nil, recomperr.UnknownOpcode(in.Op.Mnemonic(), in.Addr)
	}
}

// sext32 wraps a 32-bit unsigned expression so assigning it through
// defReg's (uint64_t) cast sign-extends the low word into the full
// register, per spec.md section 4.C's "sign-extend the 32-bit result".
func sext32(cExpr string) string {
	return fmt.Sprintf("(int64_t)(int32_t)(%s)", cExpr)
}

func addrExpr(in mipsdecode.Inst) string {
	return fmt.Sprintf("(uint32_t)(%s + %d)", useU(in.Rs), in.Imm)
}

func loadLine(in mipsdecode.Inst, width string, signed bool) []string {
	cast := "uint64_t"
	expr := fmt.Sprintf("MEM_LOAD_%s(rdram, %s)", width, addrExpr(in))
	if signed {
		cast = "int64_t"
		expr = fmt.Sprintf("(%s)(%s)", cast, expr)
	}
	return []string{defReg(in.Rt, expr)}
}

func storeLine(in mipsdecode.Inst, width string) []string {
	var val string
	switch width {
	case "U64":
		val = use64U(in.Rt)
	default:
		val = useU(in.Rt)
	}
	return []string{fmt.Sprintf("MEM_STORE_%s(rdram, %s, %s);", width, addrExpr(in), val)}
}

// cvtLine renders CVT.fmt and the TRUNC/CEIL/FLOOR/ROUND family, whose
// destination format mipsdecode decodes onto in.CvtFmt (the funct field
// alone only names the operation, not the width it converts to).
func cvtLine(in mipsdecode.Inst, op string) string {
	destFmt := in.CvtFmt
	return defFloatRegCast(in.Fd, destFmt, fmt.Sprintf("recomp_%s_%s_to_%s(%s)", op, cop1Field(in.Fmt), cop1Field(destFmt), useFloat(in.Fs, in.Fmt)))
}

func defFloatRegCast(n uint8, f mipsdecode.Fmt, cExpr string) string {
	return fmt.Sprintf("ctx->f[%d].%s = %s;", n, cop1Field(f), cExpr)
}

// LowerTerminator lowers a block-ending instruction: branches, J/JAL, JR/
// JALR, SYSCALL/BREAK. delaySlot is the instruction immediately following
// in in program order (nil only for SYSCALL/BREAK, which have none).
// nextPC is the vram of the instruction after the delay slot — the value
// $ra (or JALR's rd) is set to.
func (lw *Lowerer) LowerTerminator(in mipsdecode.Inst, nextPC uint32, delaySlot *mipsdecode.Inst, labelFor LabelFunc) ([]string, error) {
	if delaySlot != nil && delaySlot.HasDelaySlot() {
		return nil, recomperr.NestedBranchInDelaySlot(in.Addr)
	}

	var delayLines []string
	if delaySlot != nil {
		lines, err := lw.LowerInst(*delaySlot)
		if err != nil {
			return nil, errors.Wrapf(err, "lowering delay slot at vram 0x%08X", delaySlot.Addr)
		}
		delayLines = lines
	}

	switch in.Op {
	case mipsdecode.OpJR:
		if in.Rs == 31 {
			return append(delayLines, "return;"), nil
		}
		return append(delayLines, fmt.Sprintf("LOOKUP_FUNC(%s)(rdram, ctx);", useU(in.Rs)), "return;"), nil

	case mipsdecode.OpJALR:
		setRA := defReg(in.Rd, fmt.Sprintf("(int64_t)(int32_t)0x%08X", nextPC))
		lines := []string{setRA}
		lines = append(lines, delayLines...)
		lines = append(lines, fmt.Sprintf("LOOKUP_FUNC(%s)(rdram, ctx);", useU(in.Rs)))
		return lines, nil

	case mipsdecode.OpJAL:
		setRA := defReg(31, fmt.Sprintf("(int64_t)(int32_t)0x%08X", nextPC))
		lines := []string{setRA}
		lines = append(lines, delayLines...)
		lines = append(lines, lw.callTarget(in.JumpTarget))
		return lines, nil

	case mipsdecode.OpJ:
		if label, ok := labelFor(in.JumpTarget); ok {
			return append(delayLines, fmt.Sprintf("goto %s;", label)), nil
		}
		// Tail call: target resolved as a call followed by a return.
		lines := append(delayLines, lw.callTarget(in.JumpTarget))
		return append(lines, "return;"), nil

	case mipsdecode.OpSYSCALL, mipsdecode.OpBREAK:
		return []string{fmt.Sprintf("recomp_trap(rdram, ctx, 0x%08Xu);", in.Addr)}, nil

	case mipsdecode.OpBLTZAL, mipsdecode.OpBGEZAL:
		setRA := defReg(31, fmt.Sprintf("(int64_t)(int32_t)0x%08X", nextPC))
		cond := branchCond(in)
		label, _ := labelFor(in.BranchTarget)
		lines := []string{setRA}
		if in.IsBranchLikely() {
			lines = append(lines, fmt.Sprintf("if (%s) {", cond))
			lines = append(lines, delayLines...)
			lines = append(lines, fmt.Sprintf("goto %s;", label), "}")
			return lines, nil
		}
		lines = append(lines, delayLines...)
		lines = append(lines, fmt.Sprintf("if (%s) goto %s;", cond, label))
		return lines, nil

	default:
		if in.IsConditionalBranch() {
			cond := branchCond(in)
			label, _ := labelFor(in.BranchTarget)
			if in.IsBranchLikely() {
				lines := []string{fmt.Sprintf("if (%s) {", cond)}
				lines = append(lines, delayLines...)
				lines = append(lines, fmt.Sprintf("goto %s;", label), "}")
				return lines, nil
			}
			lines := append([]string{}, delayLines...)
			lines = append(lines, fmt.Sprintf("if (%s) goto %s;", cond, label))
			return lines, nil
		}
		return nil, recomperr.UnknownOpcode(in.Op.Mnemonic(), in.Addr)
	}
}

// callTarget resolves a JAL/J(tail) target vram to either a direct C call
// on the known symbol or the runtime indirect-lookup helper.
func (lw *Lowerer) callTarget(vram uint32) string {
	if lw.Ctx != nil {
		if fr, ok := lw.Ctx.FuncsAt(vram); ok {
			return fmt.Sprintf("%s(rdram, ctx);", fr.Name)
		}
	}
	return fmt.Sprintf("LOOKUP_FUNC(0x%08Xu)(rdram, ctx);", vram)
}

func branchCond(in mipsdecode.Inst) string {
	switch in.Op {
	case mipsdecode.OpBEQ, mipsdecode.OpBEQL:
		return fmt.Sprintf("%s == %s", use64S(in.Rs), use64S(in.Rt))
	case mipsdecode.OpBNE, mipsdecode.OpBNEL:
		return fmt.Sprintf("%s != %s", use64S(in.Rs), use64S(in.Rt))
	case mipsdecode.OpBLEZ, mipsdecode.OpBLEZL:
		return fmt.Sprintf("%s <= 0", use64S(in.Rs))
	case mipsdecode.OpBGTZ, mipsdecode.OpBGTZL:
		return fmt.Sprintf("%s > 0", use64S(in.Rs))
	case mipsdecode.OpBLTZ, mipsdecode.OpBLTZL, mipsdecode.OpBLTZAL:
		return fmt.Sprintf("%s < 0", use64S(in.Rs))
	case mipsdecode.OpBGEZ, mipsdecode.OpBGEZL, mipsdecode.OpBGEZAL:
		return fmt.Sprintf("%s >= 0", use64S(in.Rs))
	case mipsdecode.OpBC1T, mipsdecode.OpBC1TL:
		return "ctx->cop1cc"
	case mipsdecode.OpBC1F, mipsdecode.OpBC1FL:
		return "!ctx->cop1cc"
	default:
		return "0"
	}
}
