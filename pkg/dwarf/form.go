package dwarf

import "fmt"

// unitFormat carries the header fields that decide how wide address- and
// offset-sized values are.
type unitFormat struct {
	version  uint16
	addrSize int
	dwarf64  bool
	// unitOffset is added to unit-relative references.
	unitOffset Offset
}

func (f unitFormat) offsetSize() int {
	if f.dwarf64 {
		return 8
	}
	return 4
}

// readValue decodes one attribute value of the given spec.
func readValue(c *Cursor, spec AttrSpec, f unitFormat) (Value, error) {
	return readForm(c, spec.Form, spec.ImplicitConst, f, true)
}

func readForm(c *Cursor, form Form, implicit int64, f unitFormat, allowIndirect bool) (Value, error) {
	at := c.Offset()
	v := Value{Form: form}
	var err error

	switch form {
	case FormData1, FormData2, FormData4, FormData8:
		v.Kind = KindUnsigned
		v.Uint, err = c.Uint(fixedWidth(form))
	case FormUdata:
		v.Kind = KindUnsigned
		v.Uint, err = c.ULEB128()
	case FormSdata:
		v.Kind = KindSigned
		v.Int, err = c.SLEB128()
	case FormImplicitConst:
		v.Kind = KindSigned
		v.Int = implicit
	case FormData16:
		v.Kind = KindConstant16
		v.Bytes, err = c.Bytes(16)
	case FormLoclistx, FormRnglistx:
		v.Kind = KindUnsigned
		v.Uint, err = c.ULEB128()

	case FormAddr:
		v.Kind = KindAddress
		v.Uint, err = c.Uint(f.addrSize)
	case FormAddrx, FormGNUAddrIndex:
		v.Kind = KindAddressIndex
		v.Uint, err = c.ULEB128()
	case FormAddrx1, FormAddrx2, FormAddrx3, FormAddrx4:
		v.Kind = KindAddressIndex
		v.Uint, err = c.Uint(fixedWidth(form))

	case FormBlock1, FormBlock2, FormBlock4:
		v.Kind = KindBlock
		var n uint64
		if n, err = c.Uint(fixedWidth(form)); err == nil {
			v.Bytes, err = blockBytes(c, n)
		}
	case FormBlock, FormExprloc:
		v.Kind = KindBlock
		if form == FormExprloc {
			v.Kind = KindExprLoc
		}
		var n uint64
		if n, err = c.ULEB128(); err == nil {
			v.Bytes, err = blockBytes(c, n)
		}

	case FormString:
		v.Kind = KindString
		var b []byte
		if b, err = c.CString(); err == nil {
			v.Str = string(b)
		}
	case FormStrp:
		v.Kind = KindStringRef
		v.Uint, err = c.Uint(f.offsetSize())
	case FormLineStrp:
		v.Kind = KindLineStringRef
		v.Uint, err = c.Uint(f.offsetSize())
	case FormStrx, FormGNUStrIndex:
		v.Kind = KindStringIndex
		v.Uint, err = c.ULEB128()
	case FormStrx1, FormStrx2, FormStrx3, FormStrx4:
		v.Kind = KindStringIndex
		v.Uint, err = c.Uint(fixedWidth(form))

	case FormRef1, FormRef2, FormRef4, FormRef8, FormRefUdata:
		v.Kind = KindReference
		var rel uint64
		if form == FormRefUdata {
			rel, err = c.ULEB128()
		} else {
			rel, err = c.Uint(fixedWidth(form))
		}
		v.Uint = uint64(f.unitOffset) + rel
	case FormRefAddr:
		v.Kind = KindReference
		width := f.offsetSize()
		if f.version <= 2 {
			width = f.addrSize
		}
		v.Uint, err = c.Uint(width)
	case FormRefSig8:
		v.Kind = KindSignature
		v.Uint, err = c.U64()
	case FormSecOffset:
		v.Kind = KindSectionOffset
		v.Uint, err = c.Uint(f.offsetSize())

	case FormFlag:
		v.Kind = KindFlag
		var b uint8
		if b, err = c.U8(); err == nil && b != 0 {
			v.Uint = 1
		}
	case FormFlagPresent:
		v.Kind = KindFlag
		v.Uint = 1

	case FormIndirect:
		if !allowIndirect {
			return Value{}, &FormatError{Section: c.Section(), Offset: at, Err: ErrMalformedUnit, Detail: "nested DW_FORM_indirect"}
		}
		code, err := c.ULEB128()
		if err != nil {
			return Value{}, err
		}
		actual := Form(code)
		if actual == FormImplicitConst {
			return Value{}, &FormatError{Section: c.Section(), Offset: at, Err: ErrMalformedUnit, Detail: "DW_FORM_implicit_const through DW_FORM_indirect"}
		}
		return readForm(c, actual, 0, f, false)

	case FormRefSup4, FormRefSup8, FormStrpSup, FormGNURefAlt, FormGNUStrpAlt:
		// The size is known, so the value can be stepped over even though
		// the supplementary file it points into is not available.
		width := f.offsetSize()
		switch form {
		case FormRefSup4:
			width = 4
		case FormRefSup8:
			width = 8
		}
		if err := c.Skip(width); err != nil {
			return Value{}, err
		}
		return Value{}, &FormatError{Section: c.Section(), Offset: at, Err: ErrUnsupportedForm, Detail: form.String()}

	default:
		return Value{}, &FormatError{Section: c.Section(), Offset: at, Err: ErrMalformedUnit, Detail: fmt.Sprintf("unknown form %s", form)}
	}

	if err != nil {
		return Value{}, fmt.Errorf("decode %s: %w", form, err)
	}
	return v, nil
}

func fixedWidth(form Form) int {
	switch form {
	case FormData1, FormRef1, FormAddrx1, FormStrx1, FormBlock1:
		return 1
	case FormData2, FormRef2, FormAddrx2, FormStrx2, FormBlock2:
		return 2
	case FormAddrx3, FormStrx3:
		return 3
	case FormData4, FormRef4, FormAddrx4, FormStrx4, FormBlock4:
		return 4
	case FormData8, FormRef8:
		return 8
	}
	return 0
}

func blockBytes(c *Cursor, n uint64) ([]byte, error) {
	if n > uint64(c.Remaining()) {
		return nil, &FormatError{
			Section: c.Section(),
			Offset:  c.Offset(),
			Err:     ErrOutOfBounds,
			Detail:  fmt.Sprintf("block of %d bytes, %d remaining", n, c.Remaining()),
		}
	}
	return c.Bytes(int(n))
}
