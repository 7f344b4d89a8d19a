package macho

// OutKind selects which emission event Out is handling, mirroring
// the five `out_type` values a real assembler back end dispatches on.
type OutKind int

const (
	OutReserve OutKind = iota
	OutRawData
	OutAddress
	OutRel2Adr
	OutRel4Adr
)

// Backend is the Mach-O object-file back end: it owns the section and
// symbol tables for one object file and drives them through section/
// sectalign/symdef/Out calls from a front end, then Finalize and
// WriteTo to lay out and emit the final byte-exact file.
type Backend struct {
	descriptor FormatDescriptor
	diag       Diag

	sections *SectionTable
	symbols  *SymbolTable

	gotpcrelSect       int32
	defaultTextSection *Section
	nextSeg            int32
	layout             *layoutState

	// SegAlloc and DefineLabel are the host callbacks a real front
	// end supplies (§6.5): SegAlloc hands out a fresh segment id for
	// each new section, DefineLabel registers a label in the front
	// end's own symbol table. Both default to a self-contained
	// implementation so Backend works standalone; set them to hook
	// into an actual front end.
	SegAlloc    func() int32
	DefineLabel func(name string, section int32, offset uint64)
}

// New constructs a Backend for the given profile, implementing the
// FormatDescriptor Init operation (C1): selecting the bit-width
// profile and, for the 64-bit profile only, allocating the synthetic
// "..gotpcrel" segment a WRT reference recognizes to request a
// GOT-relative relocation.
func New(profile Profile, diag Diag) *Backend {
	b := &Backend{
		descriptor: describeProfile(profile),
		diag:       diag,
		sections:   newSectionTable(),
		symbols:    newSymbolTable(),
		nextSeg:    0,
	}
	b.SegAlloc = b.defaultSegAlloc
	b.DefineLabel = func(string, int32, uint64) {}

	if profile == Profile64 {
		b.gotpcrelSect = b.allocSeg() + 1
		b.DefineLabel("..gotpcrel", b.gotpcrelSect, 0)
	} else {
		b.gotpcrelSect = NoSeg
	}
	return b
}

// defaultSegAlloc hands out even ids only: Out treats an odd operand
// section as a section-base reference, and the 64-bit gotpcrelSect is
// an allocated id plus one.
func (b *Backend) defaultSegAlloc() int32 {
	id := b.nextSeg
	b.nextSeg += 2
	return id
}

func (b *Backend) allocSeg() int32 {
	return b.SegAlloc()
}

// Descriptor returns the profile this Backend was constructed with.
func (b *Backend) Descriptor() FormatDescriptor { return b.descriptor }

func realSize(kind OutKind, size int) int {
	switch kind {
	case OutAddress:
		if size < 0 {
			return -size
		}
		return size
	case OutRel2Adr:
		return 2
	case OutRel4Adr:
		return 4
	default:
		return size
	}
}

func (b *Backend) sectWrite(s *Section, data []byte) {
	s.Payload.Append(data)
	s.Size += uint64(len(data))
}

func writeLE(v int64, n int) []byte {
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
	return buf
}

// Out implements the Emitter operation (C5): route one front-end
// emission event — a reservation, raw bytes, an absolute address, or
// a 2- or 4-byte PC-relative reference — into the target section's
// payload, creating a relocation record when the reference crosses a
// section or symbol boundary.
func (b *Backend) Out(secto int32, kind OutKind, value int64, size int, section, wrt int32, raw []byte) {
	if secto == NoSeg {
		if kind != OutReserve {
			b.nonfatalf("attempt to assemble code in [ABSOLUTE] space")
		}
		return
	}

	s := b.sections.byFrontendIndex(secto)
	if s == nil {
		b.warnf("attempt to assemble code in section %d: defaulting to `.text'", secto)
		s = b.defaultTextSection
		if s == nil {
			b.panicf("text section not found")
		}
	}

	sbss := b.sections.byName("__DATA", "__bss")
	if s == sbss && kind != OutReserve {
		b.warnf("attempt to initialize memory in the BSS section: ignored")
		s.Size += uint64(realSize(kind, size))
		return
	}

	switch kind {
	case OutReserve:
		if s != sbss {
			b.warnf("uninitialized space declared in %s section: zeroing", s.SectName)
			b.sectWrite(s, make([]byte, size))
		} else {
			s.Size += uint64(size)
		}

	case OutRawData:
		if section != NoSeg {
			b.panicf("OUT_RAWDATA with other than NO_SEG")
		}
		b.sectWrite(s, raw)

	case OutAddress:
		asize := size
		if asize < 0 {
			asize = -asize
		}
		addr := value
		if section != NoSeg {
			if section%2 != 0 {
				b.nonfatalf("Mach-O format does not support section base references")
			} else if wrt == NoSeg {
				if b.descriptor.PtrSize == 8 && asize != 8 {
					b.nonfatalf("Mach-O 64-bit format does not support 32-bit absolute addresses")
				} else {
					addr -= b.addReloc(s, section, RelAbs, asize, addr)
				}
			} else {
				b.nonfatalf("Mach-O format does not support this use of WRT")
			}
		}
		b.sectWrite(s, writeLE(addr, asize))

	case OutRel2Adr:
		if section == secto {
			b.panicf("OUT_REL2ADR: reference section must differ from its own section")
		}
		addr := value + 2 - int64(size)
		if section != NoSeg && section%2 != 0 {
			b.nonfatalf("Mach-O format does not support section base references")
		} else if b.descriptor.PtrSize == 8 {
			b.nonfatalf("unsupported non-32-bit Mach-O relocation [2]")
		} else if wrt != NoSeg {
			b.nonfatalf("Mach-O format does not support this use of WRT")
		} else {
			addr -= b.addReloc(s, section, RelRel, 2, addr)
		}
		b.sectWrite(s, writeLE(addr, 2))

	case OutRel4Adr:
		if section == secto {
			b.panicf("OUT_REL4ADR: reference section must differ from its own section")
		}
		addr := value + 4 - int64(size)
		if section != NoSeg && section%2 != 0 {
			b.nonfatalf("Mach-O format does not support section base references")
		} else if wrt == NoSeg {
			addr -= b.addReloc(s, section, RelRel, 4, addr)
		} else if wrt == b.gotpcrelSect {
			var gotload byte
			if s.Payload.Len() > 1 {
				buf := make([]byte, 1)
				_ = s.Payload.ReadAt(buf, s.Payload.Len()-2)
				gotload = buf[0]
			}
			if gotload == 0x8B {
				addr -= b.addReloc(s, section, RelGotLoad, 4, addr)
			} else {
				addr -= b.addReloc(s, section, RelGot, 4, addr)
			}
		} else {
			b.nonfatalf("Mach-O format does not support this use of WRT")
		}
		b.sectWrite(s, writeLE(addr, 4))
	}
}

// Diag exposes the diagnostics sink this Backend was constructed
// with, so callers (and tests) can swap in their own.
func (b *Backend) Diag() Diag { return b.diag }

// Filename derives the output file name for inname, the Filename
// operation: replace any extension with ".o".
func Filename(inname string) string {
	for i := len(inname) - 1; i >= 0 && inname[i] != '/'; i-- {
		if inname[i] == '.' {
			return inname[:i] + ".o"
		}
	}
	return inname + ".o"
}
