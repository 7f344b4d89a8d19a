package macho

// relScattered marks the high bit of a relocation's addr field,
// which must never be set by accident (it would otherwise be
// mistaken for a scattered relocation — unsupported by this back
// end).
const relScattered = 0x80000000

// RelocKind selects which Mach-O relocation type add_reloc produces.
type RelocKind int

const (
	RelAbs RelocKind = iota
	RelRel
	RelSub
	RelGot
	RelGotLoad
)

// Relocation is one x86/x86-64 relocation_info record, still carrying
// its *initial* symbol number (snum) until the relocation fix-up pass
// rewrites it to the symbol's final, sorted position.
type Relocation struct {
	Addr   int32
	Snum   int32
	Pcrel  bool
	Length uint8 // 0=byte, 1=word, 2=int32, 3=int64
	Ext    bool
	Type   uint8
}

func bitLength(bytes int) uint8 {
	n := uint8(0)
	for bytes > 1 {
		bytes >>= 1
		n++
	}
	return n
}

// addReloc implements add_reloc (C4): build and prepend a relocation
// record for a reference at reloff within sect to the symbol or
// section identified by section, and return the adjustment the
// caller must subtract from the value it's about to write (the
// referenced symbol's own offset, for locally bound references).
//
// Every relocation this engine creates is external (ext=1) — section-
// relative (ext=0) relocations are never produced by this path, which
// keeps the relocation fix-up pass's ext==0 branch dormant but still
// correct if ever exercised.
func (b *Backend) addReloc(sect *Section, section int32, kind RelocKind, bytes int, reloff int64) int64 {
	r := &Relocation{
		Addr:   int32(uint32(sect.Size) &^ relScattered),
		Ext:    true,
		Length: bitLength(bytes),
	}

	var adjustment int64

	switch kind {
	case RelAbs, RelRel:
		// An absolute or PC-relative reference with no section at
		// all crosses nothing and needs no relocation — unlike GOT
		// references, which carry no local section of their own.
		if section == NoSeg {
			return 0
		}
		if kind == RelRel {
			r.Pcrel = true
			r.Type = 1 // X86_64_RELOC_SIGNED
		}
		fi := b.sections.fileIndex(section, b.diag)
		if fi == NoSect {
			if kind == RelRel {
				sect.ExtReloc = true
			}
			r.Snum = b.symbols.extsyms.Read(section)
		} else {
			sym := b.closestSectionSymbol(fi, reloff)
			r.Snum = sym.InitialSnum
			adjustment = int64(sym.Value)
		}

	case RelSub:
		r.Type = 5 // X86_64_RELOC_SUBTRACTOR

	case RelGot:
		r.Pcrel = true
		r.Type = 4 // X86_64_RELOC_GOT
		r.Snum = b.gotpcrelSect

	case RelGotLoad:
		r.Pcrel = true
		r.Type = 3 // X86_64_RELOC_GOT_LOAD
		r.Snum = b.gotpcrelSect
	}

	// Relocations are prepended (head insertion), so the list ends up
	// in reverse emission order — matching how a native Mach-O
	// assembler lays them out.
	sect.Relocs = append([]*Relocation{r}, sect.Relocs...)
	sect.NReloc++

	return adjustment
}

// closestSectionSymbol finds the last symbol defined in the section
// with in-file index fi whose value does not exceed offset, the
// anchor a relocation rebinds itself against when it can't reference
// its target symbol directly.
func (b *Backend) closestSectionSymbol(fi uint8, offset int64) *Symbol {
	var nearest *Symbol
	for _, sym := range b.symbols.symbols {
		if sym.Sect != NoSect && sym.Sect == fi {
			if int64(sym.Value) > offset {
				break
			}
			nearest = sym
		}
	}
	if nearest == nil {
		// Nothing downstream can anchor a relocation without a
		// symbol, so this has to stop the run here rather than hand
		// a caller a nil Symbol to dereference.
		b.panicf("no section for index %#x offset %#x found", fi, offset)
	}
	return nearest
}
