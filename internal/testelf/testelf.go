// Package testelf builds minimal, big-endian ELFCLASS32 images in memory
// for exercising internal/recompctx and cmd/n64recomp without a real N64
// ROM on disk. It is test-support infrastructure only, imported solely
// from _test.go files elsewhere in this module.
package testelf

import (
	"encoding/binary"
)

// Symbol type constants (ELF st_info low nibble).
const (
	SttNotype = 0
	SttObject = 1
	SttFunc   = 2
)

// FuncSpec describes one symbol to embed in the built ELF. Words, if
// non-empty, are appended to the single .text section in declaration
// order; VRAM must not be below the running .text address at that point,
// and Build zero-pads any gap up to it.
type FuncSpec struct {
	Name  string
	VRAM  uint32
	Words []uint32 // nil/empty for a zero-sized (stub) symbol
	Type  uint8     // SttFunc, SttNotype, SttObject
}

// Build renders a complete ELF32 big-endian MIPS image containing one
// PROGBITS .text section (the concatenation of every non-empty FuncSpec's
// words, in order, starting at funcs[0].VRAM) and a symbol table with one
// entry per FuncSpec. funcs must be given in ascending VRAM order: each
// entry's words are placed at its vram-relative offset, padding forward
// from whatever the previous entries wrote.

func Build(entry uint32, funcs []FuncSpec) []byte {
	be := binary.BigEndian

	var text []byte
	textBase := uint32(0)
	if len(funcs) > 0 {
		textBase = funcs[0].VRAM
	}
	for _, f := range funcs {
		// Pad up to f's vram-relative byte offset so a symbol's declared
		// VRAM always lines up with where its words actually land, even
		// when a preceding symbol's Words don't cover its full declared
		// size (e.g. a zero-sized stub with a forced-size neighbor).
		want := int(f.VRAM - textBase)
		for len(text) < want {
			text = append(text, 0)
		}
		for _, w := range f.Words {
			var buf [4]byte
			be.PutUint32(buf[:], w)
			text = append(text, buf[:]...)
		}
	}

	const shstrtab = "\x00.text\x00.symtab\x00.strtab\x00.shstrtab\x00"
	nameText := uint32(1)
	nameSymtab := uint32(7)
	nameStrtab := uint32(15)
	nameShstrtab := uint32(23)

	var strtab []byte
	strtab = append(strtab, 0)
	nameOffsets := make([]uint32, len(funcs))
	for i, f := range funcs {
		nameOffsets[i] = uint32(len(strtab))
		strtab = append(strtab, []byte(f.Name)...)
		strtab = append(strtab, 0)
	}

	var symtab []byte
	// Symbol 0 is always the null symbol.
	symtab = append(symtab, make([]byte, 16)...)
	for i, f := range funcs {
		var sym [16]byte
		be.PutUint32(sym[0:4], nameOffsets[i])
		be.PutUint32(sym[4:8], f.VRAM)
		be.PutUint32(sym[8:12], uint32(len(f.Words)*4))
		sym[12] = (1 << 4) | (f.Type & 0xF) // STB_GLOBAL, stt
		sym[13] = 0
		be.PutUint16(sym[14:16], 1) // st_shndx: .text is section 1
		symtab = append(symtab, sym[:]...)
	}

	const ehdrSize = 52
	const shdrSize = 40

	// Section layout: [0]=NULL [1]=.text [2]=.symtab [3]=.strtab [4]=.shstrtab
	shoff := uint32(ehdrSize)
	// Section file contents follow immediately after all section headers.
	dataStart := shoff + shdrSize*5
	textOff := dataStart
	symtabOff := textOff + uint32(len(text))
	strtabOff := symtabOff + uint32(len(symtab))
	shstrtabOff := strtabOff + uint32(len(strtab))

	total := shstrtabOff + uint32(len(shstrtab))
	buf := make([]byte, total)
	copy(buf[textOff:], text)
	copy(buf[symtabOff:], symtab)
	copy(buf[strtabOff:], strtab)
	copy(buf[shstrtabOff:], shstrtab)

	// e_ident
	buf[0], buf[1], buf[2], buf[3] = 0x7F, 'E', 'L', 'F'
	buf[4] = 1 // ELFCLASS32
	buf[5] = 2 // ELFDATA2MSB
	buf[6] = 1 // EV_CURRENT

	be.PutUint16(buf[16:18], 2)  // e_type = ET_EXEC
	be.PutUint16(buf[18:20], 8)  // e_machine = EM_MIPS
	be.PutUint32(buf[20:24], 1)  // e_version
	be.PutUint32(buf[24:28], entry)
	be.PutUint32(buf[28:32], 0) // e_phoff
	be.PutUint32(buf[32:36], shoff)
	be.PutUint32(buf[36:40], 0) // e_flags
	be.PutUint16(buf[40:42], ehdrSize)
	be.PutUint16(buf[42:44], 32) // e_phentsize
	be.PutUint16(buf[44:46], 0)  // e_phnum
	be.PutUint16(buf[46:48], shdrSize)
	be.PutUint16(buf[48:50], 5) // e_shnum
	be.PutUint16(buf[50:52], 4) // e_shstrndx

	writeShdr := func(idx int, name, typ, flags, addr, off, size, link, entsize uint32) {
		base := int(shoff) + idx*shdrSize
		be.PutUint32(buf[base+0:base+4], name)
		be.PutUint32(buf[base+4:base+8], typ)
		be.PutUint32(buf[base+8:base+12], flags)
		be.PutUint32(buf[base+12:base+16], addr)
		be.PutUint32(buf[base+16:base+20], off)
		be.PutUint32(buf[base+20:base+24], size)
		be.PutUint32(buf[base+24:base+28], link)
		be.PutUint32(buf[base+28:base+32], 0) // sh_info
		be.PutUint32(buf[base+32:base+36], 4) // sh_addralign
		be.PutUint32(buf[base+36:base+40], entsize)
	}

	const shtNull = 0
	const shtProgbits = 1
	const shtSymtab = 2
	const shtStrtab = 3
	const shfAlloc = 0x2
	const shfExecinstr = 0x4

	writeShdr(0, 0, shtNull, 0, 0, 0, 0, 0, 0)
	writeShdr(1, nameText, shtProgbits, shfAlloc|shfExecinstr, textBase, textOff, uint32(len(text)), 0, 0)
	writeShdr(2, nameSymtab, shtSymtab, 0, 0, symtabOff, uint32(len(symtab)), 3, 16)
	writeShdr(3, nameStrtab, shtStrtab, 0, 0, strtabOff, uint32(len(strtab)), 0, 1)
	writeShdr(4, nameShstrtab, shtStrtab, 0, 0, shstrtabOff, uint32(len(shstrtab)), 0, 1)

	return buf
}
