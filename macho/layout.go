package macho

import "sort"

// layoutSymbols implements macho_layout_symbols (C6): assign every
// local symbol its final index immediately, collect external symbols
// into the defined/undefined buckets, sort each bucket by name, then
// assign externals their final indices after all locals. The string
// table is built in the same two passes: external names are appended
// first (during the first pass, as soon as a symbol is classified
// external), then local names are appended in the second pass — so
// external names precede local names in the final string table,
// exactly as the byte-exact writer expects.
func (b *Backend) layoutSymbols() {
	t := b.symbols
	var nextLocal uint32

	for _, sym := range t.symbols {
		if sym.Type == nUndf {
			sym.Type |= nExt
		}
		if sym.Type&nExt == 0 {
			sym.Snum = int32(nextLocal)
			nextLocal++
			t.NLocalSym++
			continue
		}
		if sym.Type&nType != nUndf {
			t.NExtDefSym++
		} else {
			t.NUndefSym++
		}
		sym.Strx = uint32(len(t.strtab))
		t.strtab = append(t.strtab, []byte(sym.Name)...)
		t.strtab = append(t.strtab, 0)
	}

	t.ILocalSym = 0
	t.IExtDefSym = t.NLocalSym
	t.IUndefSym = t.NLocalSym + t.NExtDefSym

	t.extdefsyms = make([]*Symbol, 0, t.NExtDefSym)
	t.undefsyms = make([]*Symbol, 0, t.NUndefSym)

	for _, sym := range t.symbols {
		if sym.Type&nExt == 0 {
			sym.Strx = uint32(len(t.strtab))
			t.strtab = append(t.strtab, []byte(sym.Name)...)
			t.strtab = append(t.strtab, 0)
			continue
		}
		if sym.Type&nType != nUndf {
			t.extdefsyms = append(t.extdefsyms, sym)
		} else {
			t.undefsyms = append(t.undefsyms, sym)
		}
	}

	sort.Slice(t.extdefsyms, func(i, j int) bool { return t.extdefsyms[i].Name < t.extdefsyms[j].Name })
	sort.Slice(t.undefsyms, func(i, j int) bool { return t.undefsyms[i].Name < t.undefsyms[j].Name })

	next := nextLocal
	for _, sym := range t.extdefsyms {
		sym.Snum = int32(next)
		next++
	}
	for _, sym := range t.undefsyms {
		sym.Snum = int32(next)
		next++
	}

	t.byInitialSnum = make(map[int32]*Symbol, len(t.symbols))
	for _, sym := range t.symbols {
		if sym.InitialSnum >= 0 {
			t.byInitialSnum[sym.InitialSnum] = sym
		}
	}
}

// layoutState carries the running totals macho_calculate_sizes
// accumulates across the section list.
type layoutState struct {
	headNCmds      uint32
	headSizeOfCmds uint32
	segFileSize    uint64
	segVMSize      uint64
	segNSects      uint32
	relPadCnt      uint64
}

// calculateSizes implements macho_calculate_sizes (C6): assign every
// section its final VM address and, for non-zerofill sections, its
// final file offset and 4-byte alignment pad, then total up the load
// command sizes the header needs.
func (b *Backend) calculateSizes() *layoutState {
	st := &layoutState{}
	for _, s := range b.sections.sections {
		if s.Align == -1 {
			s.Align = defaultSectionAlignment
		}
		s.Addr = alignUp(st.segVMSize, 1<<uint(s.Align))
		st.segVMSize = s.Addr + s.Size

		if !s.isZerofill() {
			s.Pad = uint32(alignUp(st.segFileSize, 4) - st.segFileSize)
			s.Offset = st.segFileSize + uint64(s.Pad)
			st.segFileSize += s.Size + uint64(s.Pad)
		}
		st.segNSects++
	}

	if st.segNSects > 0 {
		st.headNCmds++
		st.headSizeOfCmds += b.descriptor.SegCmdSize + st.segNSects*b.descriptor.SectCmdSize
	}
	if b.symbols.nsyms() > 0 {
		st.headNCmds++
		st.headSizeOfCmds += symCmdSize
	}

	base := uint64(b.descriptor.HeaderSize) + uint64(st.headSizeOfCmds)
	total := base + st.segFileSize
	st.relPadCnt = alignUp(total, uint64(b.descriptor.PtrSize)) - total

	return st
}

// Finalize runs the layout and relocation fix-up passes (C6, C7) in
// the order a real assembler's cleanup routine does: sort and place
// symbols first, then rewrite every relocation's snum from its
// initial value to its final sorted position, then compute section
// and load-command sizes. Call it exactly once, after all section/
// symdef/Out calls and before WriteTo.
func (b *Backend) Finalize() *layoutState {
	b.layoutSymbols()
	b.fixupRelocs()
	b.layout = b.calculateSizes()
	return b.layout
}
