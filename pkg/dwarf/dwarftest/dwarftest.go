// Package dwarftest encodes small debug sections for tests. It deals in raw
// DWARF codes so that it can be used from tests of any package.
package dwarftest

import (
	"encoding/binary"
)

// Buf is an append-only little endian encoder.
type Buf struct {
	b []byte
}

func (b *Buf) Bytes() []byte { return b.b }

func (b *Buf) Len() int { return len(b.b) }

func (b *Buf) U8(v uint8) *Buf {
	b.b = append(b.b, v)
	return b
}

func (b *Buf) U16(v uint16) *Buf {
	b.b = binary.LittleEndian.AppendUint16(b.b, v)
	return b
}

func (b *Buf) U32(v uint32) *Buf {
	b.b = binary.LittleEndian.AppendUint32(b.b, v)
	return b
}

func (b *Buf) U64(v uint64) *Buf {
	b.b = binary.LittleEndian.AppendUint64(b.b, v)
	return b
}

// Uint appends v using width bytes (1, 2, 3, 4 or 8).
func (b *Buf) Uint(width int, v uint64) *Buf {
	for i := 0; i < width; i++ {
		b.b = append(b.b, byte(v>>(8*i)))
	}
	return b
}

func (b *Buf) ULEB(v uint64) *Buf {
	b.b = AppendULEB128(b.b, v)
	return b
}

func (b *Buf) SLEB(v int64) *Buf {
	b.b = AppendSLEB128(b.b, v)
	return b
}

// CString appends s and its NUL terminator.
func (b *Buf) CString(s string) *Buf {
	b.b = append(b.b, s...)
	b.b = append(b.b, 0)
	return b
}

func (b *Buf) Raw(p ...byte) *Buf {
	b.b = append(b.b, p...)
	return b
}

func AppendULEB128(dst []byte, v uint64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		dst = append(dst, c)
		if v == 0 {
			return dst
		}
	}
}

func AppendSLEB128(dst []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(dst, c)
		}
		dst = append(dst, c|0x80)
	}
}

// Sections is an in-memory set of named sections.
type Sections map[string][]byte

func (s Sections) Section(name string) ([]byte, bool) {
	b, ok := s[name]
	return b, ok
}

// Spec is one (attribute, form) pair of an abbreviation declaration.
type Spec struct {
	Attr     uint64
	Form     uint64
	Implicit int64
}

// Abbrevs builds a .debug_abbrev table.
type Abbrevs struct {
	buf Buf
}

func (a *Abbrevs) Decl(code, tag uint64, children bool, specs ...Spec) *Abbrevs {
	a.buf.ULEB(code).ULEB(tag)
	if children {
		a.buf.U8(1)
	} else {
		a.buf.U8(0)
	}
	for _, s := range specs {
		a.buf.ULEB(s.Attr).ULEB(s.Form)
		if s.Form == FormImplicitConst {
			a.buf.SLEB(s.Implicit)
		}
	}
	a.buf.ULEB(0).ULEB(0)
	return a
}

// Bytes returns the table with its terminating zero code.
func (a *Abbrevs) Bytes() []byte {
	out := append([]byte(nil), a.buf.Bytes()...)
	return append(out, 0)
}

// Unit builds one 32-bit format .debug_info unit. Entries are written to
// Body; Bytes prepends the header with the final length.
type Unit struct {
	Version      uint16
	UnitType     uint8
	AddrSize     uint8
	AbbrevOffset uint32
	Body         Buf
}

func NewUnit(version uint16, addrSize uint8, abbrevOffset uint32) *Unit {
	return &Unit{Version: version, UnitType: 1, AddrSize: addrSize, AbbrevOffset: abbrevOffset}
}

// HeaderSize is the size of the unit header, length field included.
func (u *Unit) HeaderSize() int {
	if u.Version >= 5 {
		return 12
	}
	return 11
}

// Next returns the unit-relative offset of the next entry to be written,
// the value a DW_FORM_ref* attribute uses to point at it.
func (u *Unit) Next() uint64 { return uint64(u.HeaderSize() + u.Body.Len()) }

// Entry starts an entry with the given abbreviation code and returns the
// body for its attribute values.
func (u *Unit) Entry(code uint64) *Buf {
	return u.Body.ULEB(code)
}

// Close writes the zero code that ends a list of children.
func (u *Unit) Close() *Unit {
	u.Body.U8(0)
	return u
}

func (u *Unit) Bytes() []byte {
	var b Buf
	b.U32(uint32(u.HeaderSize() - 4 + u.Body.Len()))
	b.U16(u.Version)
	if u.Version >= 5 {
		b.U8(u.UnitType).U8(u.AddrSize).U32(u.AbbrevOffset)
	} else {
		b.U32(u.AbbrevOffset).U8(u.AddrSize)
	}
	return b.Raw(u.Body.Bytes()...).Bytes()
}

// LineProgram builds a version 2 to 4 .debug_line program with the
// standard opcode set (opcode_base 13).
type LineProgram struct {
	Version       uint16
	MinInstLength uint8
	MaxOps        uint8
	DefaultIsStmt bool
	LineBase      int8
	LineRange     uint8
	Dirs          []string
	Files         []LineFile
	Program       Buf
}

type LineFile struct {
	Name string
	Dir  uint64
}

func NewLineProgram(version uint16) *LineProgram {
	return &LineProgram{
		Version:       version,
		MinInstLength: 1,
		MaxOps:        1,
		DefaultIsStmt: true,
		LineBase:      -5,
		LineRange:     14,
	}
}

var standardOpcodeLengths = []byte{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1}

func (p *LineProgram) Bytes() []byte {
	var hdr Buf
	hdr.U8(p.MinInstLength)
	if p.Version >= 4 {
		hdr.U8(p.MaxOps)
	}
	if p.DefaultIsStmt {
		hdr.U8(1)
	} else {
		hdr.U8(0)
	}
	hdr.U8(uint8(p.LineBase)).U8(p.LineRange).U8(13).Raw(standardOpcodeLengths...)
	for _, d := range p.Dirs {
		hdr.CString(d)
	}
	hdr.U8(0)
	for _, f := range p.Files {
		hdr.CString(f.Name).ULEB(f.Dir).ULEB(0).ULEB(0)
	}
	hdr.U8(0)

	var b Buf
	b.U32(uint32(2 + 4 + hdr.Len() + p.Program.Len()))
	b.U16(p.Version)
	b.U32(uint32(hdr.Len()))
	b.Raw(hdr.Bytes()...)
	return b.Raw(p.Program.Bytes()...).Bytes()
}

// SetAddress appends DW_LNE_set_address with an 8-byte address.
func (p *LineProgram) SetAddress(addr uint64) *LineProgram {
	p.Program.U8(0).ULEB(9).U8(LneSetAddress).U64(addr)
	return p
}

func (p *LineProgram) EndSequence() *LineProgram {
	p.Program.U8(0).ULEB(1).U8(LneEndSequence)
	return p
}

// Special appends the special opcode advancing the address by addrDelta and
// the line by lineDelta.
func (p *LineProgram) Special(addrDelta uint64, lineDelta int) *LineProgram {
	op := (lineDelta - int(p.LineBase)) + int(p.LineRange)*int(addrDelta) + 13
	p.Program.U8(uint8(op))
	return p
}

func (p *LineProgram) Op(op uint8) *Buf {
	return p.Program.U8(op)
}
