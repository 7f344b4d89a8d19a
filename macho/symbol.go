package macho

import "github.com/segasm/machobe/internal/raa"

// Symbol type bits (uint8 n_type field of a Mach-O nlist entry).
const (
	nExt  = 0x01
	nUndf = 0x0
	nAbs  = 0x2
	nSect = 0xe
	nType = 0xe
)

// Linkage classifies how a symdef call should expose a name, mapping
// directly onto the assembler's is_global argument.
type Linkage int

const (
	LinkageLocal Linkage = iota
	LinkageGlobal
	LinkageCommon
	linkageForwardRef // rejected: forward-reference fixups unsupported
)

// Symbol is one entry destined for the object file's symbol table.
// InitialSnum is the symbol number assigned when the symbol was first
// registered; relocations record it, and the fix-up pass rewrites it
// to Snum (the symbol's final, sorted position) once layout has run.
type Symbol struct {
	Name        string
	InitialSnum int32
	Snum        int32

	Strx  uint32
	Type  uint8
	Sect  uint8
	Desc  int16
	Value uint64
}

// SymbolTable owns every registered symbol plus the bookkeeping
// macho_layout_symbols produces: the local/external/undefined symbol
// counts and starting indices, the sorted external-symbol arrays, and
// the accumulated string table.
type SymbolTable struct {
	symbols []*Symbol
	extsyms *raa.Map

	NLocalSym, NExtDefSym, NUndefSym    uint32
	ILocalSym, IExtDefSym, IUndefSym    uint32
	extdefsyms, undefsyms               []*Symbol
	strtab                              []byte
	byInitialSnum                       map[int32]*Symbol
}

func newSymbolTable() *SymbolTable {
	return &SymbolTable{
		extsyms: raa.New(64),
		strtab:  []byte{0}, // index 0 is the reserved empty string
	}
}

func (t *SymbolTable) nsyms() uint32 { return uint32(len(t.symbols)) }

// Symdef implements the `symdef` operation (C3): register a symbol
// definition or reference. special symbol types are rejected
// (NONFATAL); forward-reference fixups (is_global == 3) are rejected
// (NONFATAL); names beginning with ".." are assembler-private and are
// silently dropped, except "..gotpcrel" which FormatDescriptor
// registers directly during Init and which symdef itself never adds.
func (b *Backend) Symdef(name string, section int32, offset uint64, linkage Linkage, special string) error {
	if special != "" {
		b.nonfatalf("the Mach-O output format does not support any special symbol types")
		return nil
	}
	if linkage == linkageForwardRef {
		b.nonfatalf("the Mach-O format does not (yet) support forward reference fixups")
		return nil
	}
	if len(name) >= 2 && name[0] == '.' && name[1] == '.' && (len(name) < 3 || name[2] != '@') {
		if name != "..gotpcrel" {
			b.nonfatalf("unrecognized special symbol `%s'", name)
		}
		return nil
	}

	sym := &Symbol{
		Name:        name,
		Value:       offset,
		InitialSnum: -1,
	}
	if linkage != LinkageLocal {
		sym.Type |= nExt
	}

	if section == NoSeg {
		sym.Type |= nAbs
		sym.Sect = NoSect
	} else {
		sym.Type |= nSect
		sym.Sect = b.sections.fileIndex(section, b.diag)
		sym.InitialSnum = int32(b.symbols.nsyms())

		if sym.Sect == NoSect {
			b.symbols.extsyms.Write(section, sym.InitialSnum)
			switch linkage {
			case LinkageGlobal, LinkageCommon:
				sym.Type = nExt
			default:
				b.panicf("in-file index for section %d not found", section)
			}
		}
	}

	b.symbols.symbols = append(b.symbols.symbols, sym)
	return nil
}
