package macho

import "testing"

func TestLayoutSymbolsExternalPrecedesLocalInStringTable(t *testing.T) {
	b := New(Profile64, &collectDiag{})
	text, _ := b.Section(".text")

	if err := b.Symdef("local_one", text, 0, LinkageLocal, ""); err != nil {
		t.Fatal(err)
	}
	if err := b.Symdef("global_one", text, 0, LinkageGlobal, ""); err != nil {
		t.Fatal(err)
	}
	if err := b.Symdef("local_two", text, 0, LinkageLocal, ""); err != nil {
		t.Fatal(err)
	}

	b.layoutSymbols()

	strtab := b.symbols.strtab
	globalOffset := indexOfCString(strtab, "global_one")
	localOneOffset := indexOfCString(strtab, "local_one")
	localTwoOffset := indexOfCString(strtab, "local_two")

	if globalOffset < 0 || localOneOffset < 0 || localTwoOffset < 0 {
		t.Fatalf("expected all three names present in string table, got %q", strtab)
	}
	if globalOffset > localOneOffset || globalOffset > localTwoOffset {
		t.Fatalf("expected external names to precede local names in the string table")
	}
}

func TestLayoutSymbolsAssignsLocalSnumInDefinitionOrder(t *testing.T) {
	b := New(Profile64, &collectDiag{})
	text, _ := b.Section(".text")

	b.Symdef("first", text, 0, LinkageLocal, "")
	b.Symdef("second", text, 0, LinkageLocal, "")

	b.layoutSymbols()

	if b.symbols.symbols[0].Snum != 0 || b.symbols.symbols[1].Snum != 1 {
		t.Fatalf("expected locals numbered in definition order, got %d, %d",
			b.symbols.symbols[0].Snum, b.symbols.symbols[1].Snum)
	}
}

func TestLayoutSymbolsSortsExternalsByName(t *testing.T) {
	b := New(Profile64, &collectDiag{})
	text, _ := b.Section(".text")

	b.Symdef("zeta", text, 0, LinkageGlobal, "")
	b.Symdef("alpha", text, 0, LinkageGlobal, "")

	b.layoutSymbols()

	if b.symbols.extdefsyms[0].Name != "alpha" || b.symbols.extdefsyms[1].Name != "zeta" {
		t.Fatalf("expected externals sorted by name, got %q, %q",
			b.symbols.extdefsyms[0].Name, b.symbols.extdefsyms[1].Name)
	}
}

func TestCalculateSizesAlignsAndPads(t *testing.T) {
	b := New(Profile64, &collectDiag{})
	text, _ := b.Section(".text align=4")
	data, _ := b.Section(".data")

	b.Out(text, OutRawData, 0, 3, NoSeg, NoSeg, []byte{1, 2, 3})
	b.Out(data, OutRawData, 0, 5, NoSeg, NoSeg, []byte{1, 2, 3, 4, 5})

	st := b.calculateSizes()

	ts := b.sections.byFrontendIndex(text)
	ds := b.sections.byFrontendIndex(data)

	if ts.Addr != 0 {
		t.Fatalf("expected first section to start at VM address 0, got %d", ts.Addr)
	}
	if ds.Addr != ts.Size {
		t.Fatalf("expected second section's VM address to follow the first's size, got %d want %d", ds.Addr, ts.Size)
	}
	if ds.Pad != 1 {
		t.Fatalf("expected a 1-byte pad after a 3-byte section to reach 4-byte file alignment, got %d", ds.Pad)
	}
	if st.segNSects != 2 {
		t.Fatalf("expected 2 sections counted, got %d", st.segNSects)
	}
}

func indexOfCString(buf []byte, s string) int {
	target := append([]byte(s), 0)
	for i := 0; i+len(target) <= len(buf); i++ {
		match := true
		for j := range target {
			if buf[i+j] != target[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
