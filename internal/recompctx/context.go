// Package recompctx implements the Context Builder (spec.md section 4.A):
// it assembles the ROM image, the section→ROM offset table, the per-function
// records, and the vram→function-index multimap that every other component
// in this module reads from.
//
// ELF parsing itself is spec.md's one genuinely out-of-scope external
// collaborator; see DESIGN.md for why this boundary, alone, is implemented
// with the standard library's debug/elf rather than a pack dependency.
package recompctx

import (
	"debug/elf"
	"encoding/binary"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/n64recomp/recomp/internal/policy"
	"github.com/n64recomp/recomp/internal/recomperr"
)

// entrypointSize is the size forced onto a zero-sized entrypoint symbol,
// per spec.md section 4.A step 2.
const entrypointSize = 0x50

// FunctionRecord is an immutable-after-construction function entry: spec.md
// section 3's vram, ROM offset, instruction-word window, name, and ignored
// flag. Words are a view into the owning Context's ROM buffer, never a
// private copy — see the "Ownership of the ROM" design note.
type FunctionRecord struct {
	VRAM      uint32
	ROMOffset uint32
	NumWords  int
	Name      string
	Ignored   bool

	// SymIndex is the declaration order within the ELF symbol table; it
	// is the tiebreak spec.md section 3 (Invariant on the function index)
	// uses to choose among aliased symbols sharing one vram.
	SymIndex int
}

// Words returns the big-endian 32-bit instruction words of fr, reading them
// out of the owning Context's ROM buffer. Returns nil for stub/object
// records with NumWords == 0.
func (fr FunctionRecord) Words(rom []byte) []uint32 {
	if fr.NumWords == 0 {
		return nil
	}
	words := make([]uint32, fr.NumWords)
	for i := 0; i < fr.NumWords; i++ {
		off := fr.ROMOffset + uint32(i*4)
		words[i] = binary.BigEndian.Uint32(rom[off : off+4])
	}
	return words
}

// Context is the fully-built, read-only-after-construction product of the
// Context Builder: the ROM image, function records, and the vram index.
type Context struct {
	ElfPath string
	ROM     []byte

	// SectionROMOffset[i] is the ROM byte offset section i's bytes begin
	// at (section-index order), computed even for sections that did not
	// contribute bytes (non-allocated or bss).
	SectionROMOffset []uint32

	Functions []FunctionRecord

	// VRAMIndex maps a vram to every function-record index sharing it;
	// multiple entries mean aliased symbols, per spec.md section 3.
	VRAMIndex map[uint32][]int

	Entrypoint uint32
}

// FuncsAt resolves a JAL/J target vram to the function record callers
// should use: the first non-stub (non-ignored, non-zero-instruction) entry
// by declaration order, per spec.md's aliased-symbol tie-break rule. The
// second return is false if vram names no function record at all.
func (c *Context) FuncsAt(vram uint32) (FunctionRecord, bool) {
	indices, ok := c.VRAMIndex[vram]
	if !ok || len(indices) == 0 {
		return FunctionRecord{}, false
	}
	best := c.Functions[indices[0]]
	for _, idx := range indices {
		fr := c.Functions[idx]
		if !fr.Ignored && fr.NumWords > 0 {
			return fr, true
		}
	}
	return best, true
}

// Build runs the Context Builder algorithm of spec.md section 4.A over the
// ELF at elfPath, given the guest entrypoint vram and the resolved external
// policy data.
func Build(elfPath string, entrypoint uint32, sets *policy.Sets) (*Context, error) {
	f, err := elf.Open(elfPath)
	if err != nil {
		return nil, recomperr.Wrap(recomperr.KindElfLoadFailed, err, "opening ELF")
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS32 {
		return nil, recomperr.Newf(recomperr.KindWrongElfClass, "expected ELFCLASS32, got %s", f.Class)
	}
	if f.Data != elf.ELFDATA2MSB {
		return nil, recomperr.Newf(recomperr.KindWrongEndianness, "expected big-endian (ELFDATA2MSB), got %s", f.Data)
	}

	hasSymtab := false
	for _, sec := range f.Sections {
		if sec.Type == elf.SHT_SYMTAB {
			hasSymtab = true
			break
		}
	}
	if !hasSymtab {
		return nil, recomperr.New(recomperr.KindNoSymbolTable, "ELF has no SHT_SYMTAB section")
	}

	c := &Context{
		ElfPath:    elfPath,
		Entrypoint: entrypoint,
		VRAMIndex:  make(map[uint32][]int),
	}

	// Step 1: walk sections in index order, concatenating allocated
	// non-bss sections into the ROM image.
	c.SectionROMOffset = make([]uint32, len(f.Sections))
	for i, sec := range f.Sections {
		c.SectionROMOffset[i] = uint32(len(c.ROM))
		if sec.Flags&elf.SHF_ALLOC == 0 || sec.Type == elf.SHT_NOBITS {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return nil, recomperr.Wrap(recomperr.KindElfLoadFailed, err, "reading section "+sec.Name)
		}
		c.ROM = append(c.ROM, data...)
	}

	// Step 2-4: walk symbols, apply size recovery and name rewriting,
	// admit qualifying symbols.
	symbols, err := f.Symbols()
	if err != nil {
		return nil, recomperr.Wrap(recomperr.KindNoSymbolTable, err, "reading symbol table")
	}

	foundEntrypoint := false
	for symIdx, sym := range symbols {
		typ := elf.ST_TYPE(sym.Info)
		name := sym.Name
		size := sym.Size
		isFunc := typ == elf.STT_FUNC

		if size == 0 && uint32(sym.Value) == entrypoint && isFunc {
			size = entrypointSize
			name = "recomp_entrypoint"
			foundEntrypoint = true
		} else if size == 0 {
			if recovered, ok := sets.UnsizedLookup(name); ok {
				size = uint64(recovered)
				isFunc = true
				typ = elf.STT_FUNC
			}
		}

		ignored := false
		if sets.IsIgnored(name) {
			name += "_recomp"
			ignored = true
		} else if sets.IsRenamed(name) {
			name = "_" + name
		}

		admit := isFunc || typ == elf.STT_NOTYPE || typ == elf.STT_OBJECT || ignored
		if !admit {
			continue
		}

		secIdx := int(sym.Section)
		var romOffset uint32
		var numWords int
		if secIdx >= 0 && secIdx < len(f.Sections) && sym.Section != elf.SHN_UNDEF {
			sec := f.Sections[secIdx]
			romOffset = c.SectionROMOffset[secIdx] + (uint32(sym.Value) - uint32(sec.Addr))
			// Only STT_FUNC symbols get a real instruction window; an
			// admitted STT_OBJECT/STT_NOTYPE record exists so its vram is
			// resolvable, not to be decoded as MIPS words.
			if isFunc {
				numWords = int(size / 4)
			}
		}

		fr := FunctionRecord{
			VRAM:      uint32(sym.Value),
			ROMOffset: romOffset,
			NumWords:  numWords,
			Name:      name,
			Ignored:   ignored,
			SymIndex:  symIdx,
		}
		idx := len(c.Functions)
		c.Functions = append(c.Functions, fr)
		c.VRAMIndex[fr.VRAM] = append(c.VRAMIndex[fr.VRAM], idx)

		logrus.WithFields(logrus.Fields{
			"name": fr.Name,
			"vram": fr.VRAM,
			"words": fr.NumWords,
		}).Debug("admitted function record")
	}

	if !foundEntrypoint {
		return nil, recomperr.Newf(recomperr.KindMissingEntrypoint, "no zero-sized function symbol at entrypoint vram 0x%08X", entrypoint)
	}

	return c, nil
}

// OrderedIndices returns function-record indices sorted ascending by vram,
// ties broken by symbol-table index, per spec.md section 5's deterministic
// ordering guarantee.
func (c *Context) OrderedIndices() []int {
	idxs := make([]int, len(c.Functions))
	for i := range idxs {
		idxs[i] = i
	}
	sort.Slice(idxs, func(a, b int) bool {
		fa, fb := c.Functions[idxs[a]], c.Functions[idxs[b]]
		if fa.VRAM != fb.VRAM {
			return fa.VRAM < fb.VRAM
		}
		return fa.SymIndex < fb.SymIndex
	})
	return idxs
}

// RomName returns the ELF path with its extension replaced by ".z64", the
// value get_rom_name() in the Linkage Emitter returns.
func RomName(elfPath string) string {
	i := lastDot(elfPath)
	if i < 0 {
		return elfPath + ".z64"
	}
	return elfPath[:i] + ".z64"
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
		if s[i] == '/' {
			break
		}
	}
	return -1
}
