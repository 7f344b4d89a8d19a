package macho

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// ErrNotFinalized is returned by WriteTo when Finalize has not been
// called yet: the layout pass is what assigns every section its final
// address and file offset, and the symbol table its final ordering.
var ErrNotFinalized = errors.New("macho: WriteTo called before Finalize")

func putName16(dst []byte, name string) {
	n := copy(dst, name)
	for ; n < 16; n++ {
		dst[n] = 0
	}
}

func (b *Backend) putPtr(buf *bytes.Buffer, v uint64) {
	if b.descriptor.PtrSize == 8 {
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], v)
		buf.Write(tmp[:])
	} else {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(v))
		buf.Write(tmp[:])
	}
}

func putU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func putI32(buf *bytes.Buffer, v int32) { putU32(buf, uint32(v)) }

func putU16(buf *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	buf.Write(tmp[:])
}

func putI16(buf *bytes.Buffer, v int16) { putU16(buf, uint16(v)) }

func putZero(buf *bytes.Buffer, n int) {
	if n <= 0 {
		return
	}
	buf.Write(make([]byte, n))
}

// WriteTo implements the Writer operation (C8): serialize the fully
// laid-out object file — header, the single implicit segment and its
// section commands, the symbol table command, section payloads and
// their relocations, the symbol table itself, and the string table —
// in the exact order and byte layout a real linker expects of a
// Mach-O relocatable object file. Finalize must have already run.
func (b *Backend) WriteTo(w io.Writer) (int64, error) {
	if b.layout == nil {
		return 0, ErrNotFinalized
	}
	st := b.layout
	d := b.descriptor

	var buf bytes.Buffer

	// Header.
	putU32(&buf, d.Magic)
	putU32(&buf, d.CPUType)
	putU32(&buf, d.CPUSubtype)
	putU32(&buf, MHObject)
	putU32(&buf, st.headNCmds)
	putU32(&buf, st.headSizeOfCmds)
	putU32(&buf, 0) // flags
	putZero(&buf, int(d.HeaderSize)-7*4)

	base := uint64(d.HeaderSize) + uint64(st.headSizeOfCmds)
	relBase := base + st.segFileSize + st.relPadCnt

	var symoff uint64

	if st.segNSects > 0 {
		putU32(&buf, d.LCSegment)
		putU32(&buf, d.SegCmdSize+st.segNSects*d.SectCmdSize)
		putZero(&buf, 16) // segname: anonymous segment
		b.putPtr(&buf, 0) // vmaddr
		b.putPtr(&buf, st.segVMSize)
		b.putPtr(&buf, base)
		b.putPtr(&buf, st.segFileSize)
		putU32(&buf, vmProtDefault)
		putU32(&buf, vmProtDefault)
		putU32(&buf, st.segNSects)
		putU32(&buf, 0) // flags

		offset := base
		var relOff uint64

		for _, s := range b.sections.sections {
			var name [16]byte
			putName16(name[:], s.SectName)
			buf.Write(name[:])
			var seg [16]byte
			putName16(seg[:], s.SegName)
			buf.Write(seg[:])
			b.putPtr(&buf, s.Addr)
			b.putPtr(&buf, s.Size)

			if !s.isZerofill() {
				offset += uint64(s.Pad)
				putU32(&buf, uint32(offset))
				offset += s.Size
				putU32(&buf, uint32(s.Align))
				if s.NReloc > 0 {
					putU32(&buf, uint32(relBase+relOff))
				} else {
					putU32(&buf, 0)
				}
				putU32(&buf, uint32(s.NReloc))
				relOff += uint64(s.NReloc) * relInfoSize
			} else {
				putU32(&buf, 0)
				putU32(&buf, uint32(s.Align))
				putU32(&buf, 0)
				putU32(&buf, 0)
			}

			flags := s.Flags
			if s.NReloc > 0 {
				flags |= sAttrLocReloc
			}
			if s.ExtReloc {
				flags |= sAttrExtReloc
			}
			putU32(&buf, flags)
			putU32(&buf, 0) // reserved1
			b.putPtr(&buf, 0) // reserved2 (and, on the 64-bit profile, reserved3)
		}

		symoff = relBase + relOff
	} else {
		b.warnf("no sections?")
		symoff = base
	}

	nsyms := b.symbols.nsyms()

	if nsyms > 0 {
		putU32(&buf, lcSymtab)
		putU32(&buf, symCmdSize)
		putU32(&buf, uint32(symoff))
		putU32(&buf, nsyms)
		stroff := symoff + uint64(nsyms)*uint64(d.NlistSize)
		strsize := uint32(len(b.symbols.strtab))
		putU32(&buf, uint32(stroff))
		putU32(&buf, strsize)
	}

	if st.segNSects > 0 {
		for _, s := range b.sections.sections {
			if s.isZerofill() {
				continue
			}
			b.rebaseInternalRelocs(s)
			putZero(&buf, int(s.Pad))
			buf.Write(s.Payload.Bytes())
		}
		putZero(&buf, int(st.relPadCnt))
		for _, s := range b.sections.sections {
			if s.isZerofill() {
				continue
			}
			for _, r := range s.Relocs {
				putI32(&buf, r.Addr)
				word := uint32(r.Snum) & 0x00ffffff
				if r.Pcrel {
					word |= 1 << 24
				}
				word |= uint32(r.Length) << 25
				if r.Ext {
					word |= 1 << 27
				}
				word |= uint32(r.Type) << 28
				putU32(&buf, word)
			}
		}
	}

	if nsyms > 0 {
		writeSym := func(sym *Symbol) {
			putU32(&buf, sym.Strx)
			buf.WriteByte(sym.Type)
			buf.WriteByte(sym.Sect)
			putI16(&buf, sym.Desc)
			value := sym.Value
			if sym.Type&nType == nSect && sym.Sect != NoSect {
				value += b.sections.sections[sym.Sect-1].Addr
			}
			b.putPtr(&buf, value)
		}
		for _, sym := range b.symbols.symbols {
			if sym.Type&nExt == 0 {
				writeSym(sym)
			}
		}
		for _, sym := range b.symbols.extdefsyms {
			writeSym(sym)
		}
		for _, sym := range b.symbols.undefsyms {
			writeSym(sym)
		}
	}

	buf.Write(b.symbols.strtab)

	return buf.WriteTo(w)
}
