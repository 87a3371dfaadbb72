package dwarf

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
)

// Unit is one unit of .debug_info. Header fields are decoded when the Index
// is created; the entry tree and the line table are decoded on first use.
type Unit struct {
	Offset       Offset
	Length       uint64
	Dwarf64      bool
	Version      uint16
	UnitType     UnitType
	AddrSize     int
	AbbrevOffset uint64

	// Set for skeleton and split compile units.
	DWOID uint64
	// Set for type units.
	TypeSignature uint64
	TypeOffset    uint64

	idx     *Index
	data    *Cursor
	hdrErr  error
	once    sync.Once
	entries []Entry
	err     error

	lineOnce sync.Once
	lines    *LineTable
	lineErr  error
}

func (u *Unit) initialLengthSize() uint64 {
	if u.Dwarf64 {
		return 12
	}
	return 4
}

// Span returns the number of bytes the unit occupies in .debug_info,
// length field included.
func (u *Unit) Span() uint64 { return u.initialLengthSize() + u.Length }

// End returns the offset of the byte following the unit.
func (u *Unit) End() Offset { return u.Offset + Offset(u.Span()) }

func (u *Unit) format() unitFormat {
	return unitFormat{
		version:    u.Version,
		addrSize:   u.AddrSize,
		dwarf64:    u.Dwarf64,
		unitOffset: u.Offset,
	}
}

// Err returns the error that prevents the unit from being decoded, if any.
// It decodes the entry tree when that has not happened yet.
func (u *Unit) Err() error { return u.build() }

func (u *Unit) build() error {
	if u.hdrErr != nil {
		return u.hdrErr
	}
	u.once.Do(func() {
		abbrevs, err := u.idx.abbrevs.get(u.idx.abbrev, u.AbbrevOffset, u.idx.order)
		if err != nil {
			u.err = fmt.Errorf("abbreviation table at %#x: %w", u.AbbrevOffset, err)
			return
		}
		c := *u.data
		entries, err := u.buildEntries(&c, abbrevs, &u.idx.opts)
		if err != nil {
			u.err = err
			return
		}
		u.entries = entries
	})
	return u.err
}

// Root returns the unit's top-level entry.
func (u *Unit) Root() (*Entry, error) {
	if err := u.build(); err != nil {
		return nil, err
	}
	return &u.entries[0], nil
}

// Entries returns the unit's entries in section order. The slice is shared
// and must not be modified.
func (u *Unit) Entries() ([]Entry, error) {
	if err := u.build(); err != nil {
		return nil, err
	}
	return u.entries, nil
}

// EntryAt returns the entry that starts at the given .debug_info offset.
func (u *Unit) EntryAt(off Offset) (*Entry, error) {
	if err := u.build(); err != nil {
		return nil, err
	}
	i := sort.Search(len(u.entries), func(i int) bool { return u.entries[i].Offset >= off })
	if i == len(u.entries) || u.entries[i].Offset != off {
		return nil, &FormatError{Section: SectionInfo, Offset: int64(off), Err: ErrDanglingReference, Detail: fmt.Sprintf("no entry in unit %#x", uint64(u.Offset))}
	}
	return &u.entries[i], nil
}

// Deref returns the entry a reference value points at. The target may be
// in another unit.
func (u *Unit) Deref(v Value) (*Entry, error) {
	off, ok := v.Ref()
	if !ok {
		return nil, fmt.Errorf("%s value is not a reference", v.Kind)
	}
	if off >= u.Offset && off < u.End() {
		return u.EntryAt(off)
	}
	return u.idx.EntryAt(off)
}

func (u *Unit) rootString(attr Attr) string {
	root, err := u.Root()
	if err != nil {
		return ""
	}
	v, ok := root.Val(attr)
	if !ok {
		return ""
	}
	s, err := u.String(v)
	if err != nil {
		return ""
	}
	return s
}

func (u *Unit) Name() string     { return u.rootString(AttrName) }
func (u *Unit) CompDir() string  { return u.rootString(AttrCompDir) }
func (u *Unit) Producer() string { return u.rootString(AttrProducer) }

// Language returns the DW_LANG_* code of the unit, or 0 if absent.
func (u *Unit) Language() uint64 {
	root, err := u.Root()
	if err != nil {
		return 0
	}
	v, ok := root.Val(AttrLanguage)
	if !ok {
		return 0
	}
	n, _ := v.Unsigned()
	return n
}

// rootOffset returns a section offset stored on the root entry, such as
// DW_AT_str_offsets_base.
func (u *Unit) rootOffset(attrs ...Attr) (uint64, bool) {
	root, err := u.Root()
	if err != nil {
		return 0, false
	}
	for _, a := range attrs {
		if v, ok := root.Val(a); ok {
			switch v.Kind {
			case KindSectionOffset, KindUnsigned:
				return v.Uint, true
			}
		}
	}
	return 0, false
}

// String resolves a string-class value to its text.
func (u *Unit) String(v Value) (string, error) {
	switch v.Kind {
	case KindString:
		return v.Str, nil
	case KindStringRef:
		return u.idx.ResolveString(v.Uint)
	case KindLineStringRef:
		return u.idx.ResolveLineString(v.Uint)
	case KindStringIndex:
		off, err := u.strOffset(v.Uint)
		if err != nil {
			return "", err
		}
		return u.idx.ResolveString(off)
	}
	return "", fmt.Errorf("%s value is not a string", v.Kind)
}

func (u *Unit) offsetSize() int { return u.format().offsetSize() }

func (u *Unit) strOffset(i uint64) (uint64, error) {
	base, ok := u.rootOffset(AttrStrOffsetsBase)
	if !ok {
		// Units produced before DW_AT_str_offsets_base existed index the
		// table right after its header.
		base = 8
		if u.Dwarf64 {
			base = 16
		}
	}
	tab := u.idx.section(SectionStrOffsets)
	at := base + i*uint64(u.offsetSize())
	if at >= uint64(len(tab)) {
		return 0, &FormatError{Section: SectionStrOffsets, Offset: int64(at), Err: ErrBadStringOffset, Detail: fmt.Sprintf("string index %d", i)}
	}
	c := NewCursor(SectionStrOffsets, tab[at:], int64(at), u.idx.order)
	off, err := c.Uint(u.offsetSize())
	if err != nil {
		return 0, &FormatError{Section: SectionStrOffsets, Offset: int64(at), Err: ErrBadStringOffset, Cause: err}
	}
	return off, nil
}

// Address resolves an address-class value. Indexed addresses are looked up
// in .debug_addr relative to the unit's DW_AT_addr_base.
func (u *Unit) Address(v Value) (uint64, error) {
	switch v.Kind {
	case KindAddress:
		return v.Uint, nil
	case KindAddressIndex:
		return u.addrAt(v.Uint)
	}
	return 0, fmt.Errorf("%s value is not an address", v.Kind)
}

func (u *Unit) addrAt(i uint64) (uint64, error) {
	base, ok := u.rootOffset(AttrAddrBase, AttrGNUAddrBase)
	if !ok {
		base = 8
		if u.Dwarf64 {
			base = 16
		}
	}
	tab := u.idx.section(SectionAddr)
	at := base + i*uint64(u.AddrSize)
	if at >= uint64(len(tab)) {
		return 0, &FormatError{Section: SectionAddr, Offset: int64(at), Err: ErrOutOfBounds, Detail: fmt.Sprintf("address index %d", i)}
	}
	return NewCursor(SectionAddr, tab[at:], int64(at), u.idx.order).Uint(u.AddrSize)
}

// LocationAddress recovers the address of a variable whose location is a
// single DW_OP_addr or DW_OP_addrx operation. Anything else reports false.
func (u *Unit) LocationAddress(v Value) (uint64, bool) {
	if v.Kind != KindExprLoc && v.Kind != KindBlock {
		return 0, false
	}
	if len(v.Bytes) == 0 {
		return 0, false
	}
	c := NewCursor("", v.Bytes[1:], 0, u.idx.order)
	switch v.Bytes[0] {
	case opAddr:
		addr, err := c.Uint(u.AddrSize)
		if err != nil || c.Remaining() != 0 {
			return 0, false
		}
		return addr, true
	case opAddrx, opGNUAddrIndex:
		i, err := c.ULEB128()
		if err != nil || c.Remaining() != 0 {
			return 0, false
		}
		addr, err := u.addrAt(i)
		if err != nil {
			return 0, false
		}
		return addr, true
	}
	return 0, false
}

// LineTable decodes the line number program referenced by the root's
// DW_AT_stmt_list. The result is cached. A unit without one yields nil.
func (u *Unit) LineTable() (*LineTable, error) {
	u.lineOnce.Do(func() {
		u.lines, u.lineErr = u.parseLineTable()
	})
	return u.lines, u.lineErr
}

func (u *Unit) parseLineTable() (*LineTable, error) {
	off, ok := u.rootOffset(AttrStmtList)
	if !ok {
		if err := u.build(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	sec := u.idx.section(SectionLine)
	if off >= uint64(len(sec)) {
		return nil, &FormatError{Section: SectionLine, Offset: int64(off), Err: ErrOutOfBounds, Detail: fmt.Sprintf("DW_AT_stmt_list of unit %#x", uint64(u.Offset))}
	}
	t, err := ParseLineTable(NewCursor(SectionLine, sec[off:], int64(off), u.idx.order), LineOptions{
		AddrSize: u.AddrSize,
		CompDir:  u.CompDir(),
		CompName: u.Name(),
		String:   u.String,
	})
	if err != nil {
		return nil, fmt.Errorf("line table of unit %#x: %w", uint64(u.Offset), err)
	}
	return t, nil
}

func cstringAt(section string, data []byte, off uint64) (string, error) {
	if off >= uint64(len(data)) {
		return "", &FormatError{Section: section, Offset: int64(off), Err: ErrBadStringOffset, Detail: fmt.Sprintf("section size %#x", len(data))}
	}
	n := bytes.IndexByte(data[off:], 0)
	if n < 0 {
		return "", &FormatError{Section: section, Offset: int64(off), Err: ErrBadStringOffset, Detail: "unterminated string"}
	}
	return string(data[off : off+uint64(n)]), nil
}
