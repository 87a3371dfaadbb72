package dwarf

import (
	"encoding/binary"
	"fmt"
)

// Cursor reads sequentially from a byte range of a debug section. Every read
// is bounds checked; a read that fails leaves the cursor where it was.
type Cursor struct {
	section string
	data    []byte
	base    int64
	pos     int
	order   binary.ByteOrder
}

// NewCursor returns a cursor over data, which starts at offset base within
// the named section. A nil order means little endian.
func NewCursor(section string, data []byte, base int64, order binary.ByteOrder) *Cursor {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Cursor{section: section, data: data, base: base, order: order}
}

// Offset returns the section offset of the next byte to be read.
func (c *Cursor) Offset() int64 { return c.base + int64(c.pos) }

func (c *Cursor) Remaining() int { return len(c.data) - c.pos }

func (c *Cursor) Section() string { return c.section }

func (c *Cursor) ByteOrder() binary.ByteOrder { return c.order }

func (c *Cursor) errorf(at int, kind error, format string, args ...any) error {
	return &FormatError{
		Section: c.section,
		Offset:  c.base + int64(at),
		Err:     kind,
		Detail:  fmt.Sprintf(format, args...),
	}
}

func (c *Cursor) need(n int) error {
	if n < 0 || n > c.Remaining() {
		return c.errorf(c.pos, ErrOutOfBounds, "need %d bytes, %d remaining", n, c.Remaining())
	}
	return nil
}

func (c *Cursor) U8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.data[c.pos]
	c.pos++
	return v, nil
}

func (c *Cursor) U16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := c.order.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *Cursor) U32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := c.order.Uint32(c.data[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *Cursor) U64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := c.order.Uint64(c.data[c.pos:])
	c.pos += 8
	return v, nil
}

// Uint reads an unsigned integer of the given width in bytes. Widths 1, 2,
// 3, 4 and 8 are supported; 3 is used by the strx3 and addrx3 forms.
func (c *Cursor) Uint(width int) (uint64, error) {
	switch width {
	case 1:
		v, err := c.U8()
		return uint64(v), err
	case 2:
		v, err := c.U16()
		return uint64(v), err
	case 3:
		if err := c.need(3); err != nil {
			return 0, err
		}
		b := c.data[c.pos : c.pos+3]
		c.pos += 3
		if c.order == binary.BigEndian {
			return uint64(b[0])<<16 | uint64(b[1])<<8 | uint64(b[2]), nil
		}
		return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16, nil
	case 4:
		v, err := c.U32()
		return uint64(v), err
	case 8:
		return c.U64()
	}
	return 0, c.errorf(c.pos, ErrOutOfBounds, "unsupported integer width %d", width)
}

// ULEB128 reads an unsigned LEB128 number. Payload bits that do not fit in
// 64 bits are reported as ErrOverflow rather than dropped.
func (c *Cursor) ULEB128() (uint64, error) {
	var (
		result uint64
		shift  uint
	)
	for i := c.pos; i < len(c.data); i++ {
		b := c.data[i]
		payload := uint64(b & 0x7f)
		switch {
		case shift >= 64:
			if payload != 0 {
				return 0, c.errorf(c.pos, ErrOverflow, "unsigned LEB128")
			}
		case shift == 63 && payload > 1:
			return 0, c.errorf(c.pos, ErrOverflow, "unsigned LEB128")
		default:
			result |= payload << shift
		}
		shift += 7
		if b&0x80 == 0 {
			c.pos = i + 1
			return result, nil
		}
	}
	return 0, c.errorf(c.pos, ErrOutOfBounds, "unterminated LEB128")
}

// SLEB128 reads a signed LEB128 number. Bytes past the 64th bit must only
// repeat the sign.
func (c *Cursor) SLEB128() (int64, error) {
	var (
		result int64
		shift  uint
	)
	for i := c.pos; i < len(c.data); i++ {
		b := c.data[i]
		payload := b & 0x7f
		switch {
		case shift >= 64:
			sign := byte(0)
			if result < 0 {
				sign = 0x7f
			}
			if payload != sign {
				return 0, c.errorf(c.pos, ErrOverflow, "signed LEB128")
			}
		case shift == 63:
			if payload != 0 && payload != 0x7f {
				return 0, c.errorf(c.pos, ErrOverflow, "signed LEB128")
			}
			result |= int64(payload) << shift
		default:
			result |= int64(payload) << shift
		}
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && payload&0x40 != 0 {
				result |= -1 << shift
			}
			c.pos = i + 1
			return result, nil
		}
	}
	return 0, c.errorf(c.pos, ErrOutOfBounds, "unterminated LEB128")
}

// CString reads a NUL terminated string and returns it without the
// terminator. The result aliases the section data.
func (c *Cursor) CString() ([]byte, error) {
	for i := c.pos; i < len(c.data); i++ {
		if c.data[i] == 0 {
			s := c.data[c.pos:i]
			c.pos = i + 1
			return s, nil
		}
	}
	return nil, c.errorf(c.pos, ErrOutOfBounds, "unterminated string")
}

func (c *Cursor) Skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.pos += n
	return nil
}

// Bytes returns the next n bytes, aliasing the section data.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.data[c.pos : c.pos+n : c.pos+n]
	c.pos += n
	return b, nil
}

// Slice returns a cursor over the next n bytes and advances past them.
func (c *Cursor) Slice(n int) (*Cursor, error) {
	start := c.Offset()
	b, err := c.Bytes(n)
	if err != nil {
		return nil, err
	}
	return &Cursor{section: c.section, data: b, base: start, order: c.order}, nil
}

// readInitialLength reads a unit length field, returning the length and
// whether the 64-bit format is in use.
func (c *Cursor) readInitialLength() (uint64, bool, error) {
	start := c.pos
	l, err := c.U32()
	if err != nil {
		return 0, false, err
	}
	switch {
	case l == 0xffffffff:
		l64, err := c.U64()
		if err != nil {
			c.pos = start
			return 0, false, err
		}
		return l64, true, nil
	case l >= 0xfffffff0:
		c.pos = start
		return 0, false, c.errorf(start, ErrCorruptSectionLength, "reserved initial length %#x", l)
	}
	return uint64(l), false, nil
}

// checkedSlice slices off a length-delimited structure, reporting a length
// that runs past the end as ErrCorruptSectionLength.
func (c *Cursor) checkedSlice(length uint64) (*Cursor, error) {
	if length > uint64(c.Remaining()) {
		return nil, &FormatError{
			Section: c.section,
			Offset:  c.Offset(),
			Err:     ErrCorruptSectionLength,
			Cause:   ErrOutOfBounds,
			Detail:  fmt.Sprintf("length %#x exceeds the %#x bytes remaining", length, c.Remaining()),
		}
	}
	return c.Slice(int(length))
}
