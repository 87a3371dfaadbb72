package dwarf

import "fmt"

// Range is a half-open address range [Low, High).
type Range struct {
	Low, High uint64
}

func (r Range) Contains(addr uint64) bool { return r.Low <= addr && addr < r.High }

// Ranges returns the address ranges covered by an entry, from
// DW_AT_low_pc/DW_AT_high_pc or DW_AT_ranges. Empty ranges are dropped. An
// entry without either yields nil.
func (u *Unit) Ranges(e *Entry) ([]Range, error) {
	if v, ok := e.Val(AttrRanges); ok {
		return u.rangeList(v)
	}
	lowv, ok := e.Val(AttrLowpc)
	if !ok {
		return nil, nil
	}
	highv, ok := e.Val(AttrHighpc)
	if !ok {
		return nil, nil
	}
	low, err := u.Address(lowv)
	if err != nil {
		return nil, fmt.Errorf("DW_AT_low_pc of %s: %w", e, err)
	}
	var high uint64
	switch highv.Kind {
	case KindAddress, KindAddressIndex:
		if high, err = u.Address(highv); err != nil {
			return nil, fmt.Errorf("DW_AT_high_pc of %s: %w", e, err)
		}
	default:
		n, ok := highv.Unsigned()
		if !ok {
			return nil, fmt.Errorf("DW_AT_high_pc of %s: unexpected %s value", e, highv.Kind)
		}
		high = low + n
	}
	if high <= low {
		return nil, nil
	}
	return []Range{{Low: low, High: high}}, nil
}

// baseAddress is the unit's DW_AT_low_pc, the default base of its range
// lists.
func (u *Unit) baseAddress() uint64 {
	root, err := u.Root()
	if err != nil {
		return 0
	}
	v, ok := root.Val(AttrLowpc)
	if !ok {
		return 0
	}
	addr, err := u.Address(v)
	if err != nil {
		return 0
	}
	return addr
}

func (u *Unit) rangeList(v Value) ([]Range, error) {
	if u.Version < 5 {
		if v.Kind != KindSectionOffset && v.Kind != KindUnsigned {
			return nil, fmt.Errorf("DW_AT_ranges: unexpected %s value", v.Kind)
		}
		off := v.Uint
		if base, ok := u.rootOffset(AttrGNURangesBase); ok && u.UnitType == UnitTypeSkeleton {
			off += base
		}
		return u.debugRanges(off)
	}
	off := v.Uint
	if v.Form == FormRnglistx {
		var err error
		if off, err = u.rnglistOffset(v.Uint); err != nil {
			return nil, err
		}
	} else if v.Kind != KindSectionOffset {
		return nil, fmt.Errorf("DW_AT_ranges: unexpected %s value", v.Kind)
	}
	return u.rnglist(off)
}

// debugRanges decodes a pre-version 5 range list: pairs of address-sized
// values, with an all-ones start selecting a new base address.
func (u *Unit) debugRanges(off uint64) ([]Range, error) {
	sec := u.idx.section(SectionRanges)
	if off >= uint64(len(sec)) {
		return nil, &FormatError{Section: SectionRanges, Offset: int64(off), Err: ErrOutOfBounds}
	}
	c := NewCursor(SectionRanges, sec[off:], int64(off), u.idx.order)
	maxAddr := ^uint64(0)
	if u.AddrSize == 4 {
		maxAddr = 0xffffffff
	}
	base := u.baseAddress()
	var out []Range
	for {
		start, err := c.Uint(u.AddrSize)
		if err != nil {
			return nil, err
		}
		end, err := c.Uint(u.AddrSize)
		if err != nil {
			return nil, err
		}
		switch {
		case start == 0 && end == 0:
			return out, nil
		case start == maxAddr:
			base = end
		case end > start:
			out = append(out, Range{Low: base + start, High: base + end})
		}
	}
}

// rnglistOffset maps a DW_FORM_rnglistx index through the offset table that
// follows the .debug_rnglists header of this unit.
func (u *Unit) rnglistOffset(i uint64) (uint64, error) {
	base, ok := u.rootOffset(AttrRnglistsBase)
	if !ok {
		base = 12
		if u.Dwarf64 {
			base = 20
		}
	}
	sec := u.idx.section(SectionRnglists)
	at := base + i*uint64(u.offsetSize())
	if at >= uint64(len(sec)) {
		return 0, &FormatError{Section: SectionRnglists, Offset: int64(at), Err: ErrOutOfBounds, Detail: fmt.Sprintf("range list index %d", i)}
	}
	rel, err := NewCursor(SectionRnglists, sec[at:], int64(at), u.idx.order).Uint(u.offsetSize())
	if err != nil {
		return 0, err
	}
	return base + rel, nil
}

func (u *Unit) rnglist(off uint64) ([]Range, error) {
	sec := u.idx.section(SectionRnglists)
	if off >= uint64(len(sec)) {
		return nil, &FormatError{Section: SectionRnglists, Offset: int64(off), Err: ErrOutOfBounds}
	}
	c := NewCursor(SectionRnglists, sec[off:], int64(off), u.idx.order)
	base := u.baseAddress()
	var out []Range
	add := func(low, high uint64) {
		if high > low {
			out = append(out, Range{Low: low, High: high})
		}
	}
	for {
		at := c.Offset()
		kind, err := c.U8()
		if err != nil {
			return nil, err
		}
		switch kind {
		case rleEndOfList:
			return out, nil
		case rleBaseAddressx:
			i, err := c.ULEB128()
			if err != nil {
				return nil, err
			}
			if base, err = u.addrAt(i); err != nil {
				return nil, err
			}
		case rleStartxEndx:
			si, err := c.ULEB128()
			if err != nil {
				return nil, err
			}
			ei, err := c.ULEB128()
			if err != nil {
				return nil, err
			}
			low, err := u.addrAt(si)
			if err != nil {
				return nil, err
			}
			high, err := u.addrAt(ei)
			if err != nil {
				return nil, err
			}
			add(low, high)
		case rleStartxLength:
			si, err := c.ULEB128()
			if err != nil {
				return nil, err
			}
			n, err := c.ULEB128()
			if err != nil {
				return nil, err
			}
			low, err := u.addrAt(si)
			if err != nil {
				return nil, err
			}
			add(low, low+n)
		case rleOffsetPair:
			a, err := c.ULEB128()
			if err != nil {
				return nil, err
			}
			b, err := c.ULEB128()
			if err != nil {
				return nil, err
			}
			add(base+a, base+b)
		case rleBaseAddress:
			if base, err = c.Uint(u.AddrSize); err != nil {
				return nil, err
			}
		case rleStartEnd:
			low, err := c.Uint(u.AddrSize)
			if err != nil {
				return nil, err
			}
			high, err := c.Uint(u.AddrSize)
			if err != nil {
				return nil, err
			}
			add(low, high)
		case rleStartLength:
			low, err := c.Uint(u.AddrSize)
			if err != nil {
				return nil, err
			}
			n, err := c.ULEB128()
			if err != nil {
				return nil, err
			}
			add(low, low+n)
		default:
			return nil, &FormatError{Section: SectionRnglists, Offset: at, Err: ErrMalformedRanges, Detail: fmt.Sprintf("entry kind %#x", kind)}
		}
	}
}
