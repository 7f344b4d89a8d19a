package macho

import (
	"fmt"
	"testing"
)

type collectDiag struct {
	msgs []string
}

func (d *collectDiag) Report(sev Severity, format string, args ...any) {
	d.msgs = append(d.msgs, sev.String()+": "+fmt.Sprintf(format, args...))
}

func TestNewDescribesProfile(t *testing.T) {
	b32 := New(Profile32, &collectDiag{})
	d32 := b32.Descriptor()
	if d32.PtrSize != 4 || d32.Magic != magicI386 || d32.HeaderSize != 28 {
		t.Fatalf("unexpected 32-bit descriptor: %+v", d32)
	}
	if b32.gotpcrelSect != NoSeg {
		t.Fatalf("32-bit profile should leave gotpcrelSect at NoSeg, got %d", b32.gotpcrelSect)
	}

	b64 := New(Profile64, &collectDiag{})
	d64 := b64.Descriptor()
	if d64.PtrSize != 8 || d64.Magic != magicX8664 || d64.HeaderSize != 32 {
		t.Fatalf("unexpected 64-bit descriptor: %+v", d64)
	}
	if b64.gotpcrelSect == NoSeg {
		t.Fatalf("64-bit profile should allocate a real gotpcrelSect")
	}
}

func TestSectionCreatesAndReuses(t *testing.T) {
	b := New(Profile64, &collectDiag{})
	idx1, err := b.Section(".text")
	if err != nil {
		t.Fatal(err)
	}
	idx2, err := b.Section(".text align=16")
	if err != nil {
		t.Fatal(err)
	}
	if idx1 != idx2 {
		t.Fatalf("expected .text to resolve to the same section twice, got %d and %d", idx1, idx2)
	}
	s := b.sections.byFrontendIndex(idx1)
	if s.Align != 4 {
		t.Fatalf("expected align=16 to set log2 align 4, got %d", s.Align)
	}
	if b.defaultTextSection != s {
		t.Fatalf("expected __TEXT,__text to become the default text section")
	}
}

func TestSectionConflictingAlignPanics(t *testing.T) {
	b := New(Profile64, &collectDiag{})
	if _, err := b.Section(".text align=16"); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on conflicting alignment")
		}
	}()
	b.Section(".text align=32")
}

func TestSectionUnknownNamePanics(t *testing.T) {
	b := New(Profile64, &collectDiag{})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on unrecognized section name")
		}
	}()
	b.Section(".weird")
}

func TestSymdefLocalVersusGlobal(t *testing.T) {
	b := New(Profile64, &collectDiag{})
	sect, _ := b.Section(".text")

	if err := b.Symdef("local_fn", sect, 0, LinkageLocal, ""); err != nil {
		t.Fatal(err)
	}
	if err := b.Symdef("global_fn", sect, 16, LinkageGlobal, ""); err != nil {
		t.Fatal(err)
	}

	if len(b.symbols.symbols) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(b.symbols.symbols))
	}
	local := b.symbols.symbols[0]
	global := b.symbols.symbols[1]
	if local.Type&nExt != 0 {
		t.Fatalf("local symbol should not carry N_EXT")
	}
	if global.Type&nExt == 0 {
		t.Fatalf("global symbol should carry N_EXT")
	}
}

func TestSymdefDotDotNameDropped(t *testing.T) {
	b := New(Profile64, &collectDiag{})
	sect, _ := b.Section(".text")
	if err := b.Symdef("..localsymbol", sect, 0, LinkageLocal, ""); err != nil {
		t.Fatal(err)
	}
	if len(b.symbols.symbols) != 0 {
		t.Fatalf("expected `..' prefixed name to be dropped, got %d symbols", len(b.symbols.symbols))
	}
}

func TestOutRawDataAppendsBytes(t *testing.T) {
	b := New(Profile64, &collectDiag{})
	sect, _ := b.Section(".text")
	b.Out(sect, OutRawData, 0, 4, NoSeg, NoSeg, []byte{0x90, 0x90, 0xc3, 0x00})

	s := b.sections.byFrontendIndex(sect)
	if s.Size != 4 {
		t.Fatalf("expected section size 4, got %d", s.Size)
	}
	if got := s.Payload.Bytes(); len(got) != 4 || got[2] != 0xc3 {
		t.Fatalf("unexpected payload %v", got)
	}
}

func TestOutReserveGrowsBSSWithoutWriting(t *testing.T) {
	b := New(Profile64, &collectDiag{})
	sect, _ := b.Section(".bss")
	b.Out(sect, OutReserve, 0, 64, NoSeg, NoSeg, nil)

	s := b.sections.byFrontendIndex(sect)
	if s.Size != 64 {
		t.Fatalf("expected bss size 64, got %d", s.Size)
	}
	if s.Payload.Len() != 0 {
		t.Fatalf("bss should never actually be written to, got %d bytes", s.Payload.Len())
	}
}

func TestOutInitializedDataInBSSIsIgnored(t *testing.T) {
	d := &collectDiag{}
	b := New(Profile64, d)
	sect, _ := b.Section(".bss")
	b.Out(sect, OutRawData, 0, 4, NoSeg, NoSeg, []byte{1, 2, 3, 4})

	s := b.sections.byFrontendIndex(sect)
	if s.Size != 4 {
		t.Fatalf("expected ignored write to still grow bss size, got %d", s.Size)
	}
	if s.Payload.Len() != 0 {
		t.Fatalf("expected no bytes actually written into bss, got %d", s.Payload.Len())
	}
}

func TestFilename(t *testing.T) {
	cases := map[string]string{
		"foo.asm":       "foo.o",
		"dir/foo.asm":   "dir/foo.o",
		"noextension":   "noextension.o",
		"dir.ext/noext": "dir.ext/noext.o",
	}
	for in, want := range cases {
		if got := Filename(in); got != want {
			t.Errorf("Filename(%q) = %q, want %q", in, got, want)
		}
	}
}
