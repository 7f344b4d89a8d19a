package macho

import (
	"strconv"
	"strings"

	"github.com/segasm/machobe/internal/saa"
)

// Section-type and attribute bits (the low byte of a section's flags
// word is its type; the rest are attribute bits).
const (
	sectionTypeMask       = 0x000000ff
	sRegular              = 0x0
	sZerofill             = 0x1
	sAttrPureInstructions = 0x80000000
	sAttrSomeInstructions = 0x00000400
	sAttrLocReloc         = 0x00000100
	sAttrExtReloc         = 0x00000200
)

// NoSeg and NoSect are the sentinel front-end segment index and
// on-disk section-table index meaning "absent" throughout this
// package, matching the assembler convention of -1 / 0.
const (
	NoSeg  int32 = -1
	NoSect uint8 = 0
)

// defaultSectionAlignment is the alignment (as a log2 exponent) a
// section gets when the front end never specifies one: byte-aligned.
const defaultSectionAlignment = 0

// Section is one section of the single implicit segment a Mach-O
// relocatable object file carries. Its payload accumulates through
// Emitter calls in front-end emission order; Addr, Offset and Pad are
// filled in once by the layout pass, and Relocs gets its snum fields
// rewritten once by the relocation fix-up pass.
type Section struct {
	Index    int32 // front-end segment id, assigned at creation
	SegName  string
	SectName string
	Flags    uint32

	Align int // log2 of the byte alignment; -1 means unset
	Size  uint64
	Addr  uint64

	// Pad/Offset are computed by the layout pass. The writer uses Pad
	// (the zero padding written before the section's payload) but not
	// Offset: it recomputes the running absolute file offset from Pad
	// and Size as it walks the section list, so Offset exists for
	// layout bookkeeping and for tests to assert against.
	Pad    uint32
	Offset uint64

	NReloc   int
	ExtReloc bool
	Relocs   []*Relocation

	Payload *saa.Store
}

func (s *Section) isZerofill() bool {
	return s.Flags&sectionTypeMask == sZerofill
}

type sectmapEntry struct {
	nasmName string
	segName  string
	sectName string
	flags    uint32
}

var sectmap = []sectmapEntry{
	{".text", "__TEXT", "__text", sRegular | sAttrSomeInstructions | sAttrPureInstructions},
	{".data", "__DATA", "__data", sRegular},
	{".rodata", "__DATA", "__const", sRegular},
	{".bss", "__DATA", "__bss", sZerofill},
}

// SectionTable owns the ordered list of sections that make up the
// object file's single implicit segment, and resolves the front-end
// segment ids and recognized names used throughout layout,
// relocation and emission.
type SectionTable struct {
	sections []*Section
	byIndex  map[int32]*Section
}

func newSectionTable() *SectionTable {
	return &SectionTable{byIndex: make(map[int32]*Section)}
}

func (t *SectionTable) byName(segName, sectName string) *Section {
	for _, s := range t.sections {
		if s.SegName == segName && s.SectName == sectName {
			return s
		}
	}
	return nil
}

func (t *SectionTable) byFrontendIndex(index int32) *Section {
	return t.byIndex[index]
}

// fileIndex returns the 1-based position of the section with the
// given front-end index within the section list, or NoSect if it
// can't be found or the 255-section ceiling was exceeded.
func (t *SectionTable) fileIndex(index int32, diag Diag) uint8 {
	i := 1
	for _, s := range t.sections {
		if i >= 255 {
			diag.Report(Warning, "too many sections (>255) - clipped by fileindex")
			return NoSect
		}
		if s.Index == index {
			return uint8(i)
		}
		i++
	}
	return NoSect
}

func (t *SectionTable) len() int { return len(t.sections) }

// section implements the `section` operation (C2): resolve or create
// the named section, applying any attribute tokens ("align=N", the
// no-op "data" keyword) that follow the name, separated by
// whitespace. Unknown names/attributes, conflicting re-alignment, and
// non-power-of-two alignments are PANIC-class invariant violations —
// callers are expected to have already validated these against a
// real front end's section directive grammar.
func (b *Backend) Section(spec string) (int32, error) {
	fields := strings.Fields(spec)
	var name string
	var attrs []string
	if len(fields) == 0 {
		name = ".text"
	} else {
		name, attrs = fields[0], fields[1:]
	}

	var entry *sectmapEntry
	for i := range sectmap {
		if sectmap[i].nasmName == name {
			entry = &sectmap[i]
			break
		}
	}
	if entry == nil {
		b.panicf("invalid section name %s", name)
	}

	existing := b.sections.byName(entry.segName, entry.sectName)
	s := existing
	if s == nil {
		s = &Section{
			Index:    b.allocSeg(),
			SegName:  entry.segName,
			SectName: entry.sectName,
			Flags:    entry.flags,
			Align:    -1,
			Pad:      ^uint32(0),
			Payload:  saa.New(),
		}
		b.sections.sections = append(b.sections.sections, s)
		b.sections.byIndex[s.Index] = s
		if s.SegName == "__TEXT" && s.SectName == "__text" {
			b.defaultTextSection = s
		}
	}

	for _, attr := range attrs {
		if attr == "" {
			continue
		}
		switch {
		case strings.HasPrefix(attr, "align="):
			value, err := strconv.ParseUint(attr[len("align="):], 0, 32)
			if err != nil {
				b.panicf("unknown or missing alignment value %q specified for section %s", attr[len("align="):], name)
			}
			if !isPowerOfTwo(uint32(value)) {
				b.panicf("alignment of %d (for section %q) is not a power of two", value, name)
			}
			newAlign := log2Uint32(uint32(value))
			if existing != nil && s.Align != -1 && s.Align != newAlign {
				b.panicf("section %q has already been specified with alignment %d, conflicts with new alignment of %d", name, 1<<uint(s.Align), value)
			}
			s.Align = newAlign
		case attr == "data":
			// implicit, no-op
		default:
			b.panicf("unknown section attribute %s for section %s", attr, name)
		}
	}

	return s.Index, nil
}

// Sectalign implements the `sectalign` operation: raise a section's
// minimum alignment if value is a larger power of two, silently
// ignoring anything else (a non-power-of-two request is the caller's
// own invariant to uphold, per spec — not reported here).
func (b *Backend) Sectalign(seg int32, value uint32) {
	s := b.sections.byFrontendIndex(seg)
	if s == nil || !isPowerOfTwo(value) {
		return
	}
	align := log2Uint32(value)
	if s.Align < align {
		s.Align = align
	}
}
