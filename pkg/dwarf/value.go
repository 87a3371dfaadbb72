package dwarf

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

// ValueKind classifies a decoded attribute value.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindUnsigned
	KindSigned
	KindAddress
	KindAddressIndex
	KindFlag
	KindBlock
	KindExprLoc
	KindString
	KindStringRef
	KindLineStringRef
	KindStringIndex
	KindReference
	KindSectionOffset
	KindSignature
	KindConstant16
)

var kindNames = [...]string{
	KindInvalid:       "invalid",
	KindUnsigned:      "unsigned",
	KindSigned:        "signed",
	KindAddress:       "address",
	KindAddressIndex:  "address_index",
	KindFlag:          "flag",
	KindBlock:         "block",
	KindExprLoc:       "exprloc",
	KindString:        "string",
	KindStringRef:     "string_ref",
	KindLineStringRef: "line_string_ref",
	KindStringIndex:   "string_index",
	KindReference:     "reference",
	KindSectionOffset: "section_offset",
	KindSignature:     "signature",
	KindConstant16:    "constant16",
}

func (k ValueKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a decoded attribute value. Which field holds the payload depends
// on Kind:
//
//	Uint:  Unsigned, Address, AddressIndex, Flag (0 or 1), StringRef,
//	       LineStringRef, StringIndex, Reference (section offset),
//	       SectionOffset, Signature
//	Int:   Signed
//	Bytes: Block, ExprLoc, Constant16 (aliases the section data)
//	Str:   String
//
// String-class and address-index values are resolved through the owning
// Unit, see Unit.String and Unit.Address.
type Value struct {
	Kind  ValueKind
	Form  Form
	Uint  uint64
	Int   int64
	Bytes []byte
	Str   string
}

// Unsigned returns the value as an unsigned constant. Non-negative signed
// constants are accepted too.
func (v Value) Unsigned() (uint64, bool) {
	switch v.Kind {
	case KindUnsigned:
		return v.Uint, true
	case KindSigned:
		if v.Int >= 0 {
			return uint64(v.Int), true
		}
	}
	return 0, false
}

// Signed returns the value as a signed constant. Unsigned constants are
// reinterpreted as two's complement of their encoded width.
func (v Value) Signed() (int64, bool) {
	switch v.Kind {
	case KindSigned:
		return v.Int, true
	case KindUnsigned:
		switch v.Form {
		case FormData1:
			return int64(int8(v.Uint)), true
		case FormData2:
			return int64(int16(v.Uint)), true
		case FormData4:
			return int64(int32(v.Uint)), true
		}
		return int64(v.Uint), true
	}
	return 0, false
}

func (v Value) Flag() bool { return v.Kind == KindFlag && v.Uint != 0 }

// Ref returns the .debug_info offset a reference value points at.
func (v Value) Ref() (Offset, bool) {
	if v.Kind != KindReference {
		return 0, false
	}
	return Offset(v.Uint), true
}

func (v Value) IsConstant() bool {
	return v.Kind == KindUnsigned || v.Kind == KindSigned
}

func (v Value) String() string {
	switch v.Kind {
	case KindUnsigned:
		return strconv.FormatUint(v.Uint, 10)
	case KindSigned:
		return strconv.FormatInt(v.Int, 10)
	case KindAddress, KindSectionOffset:
		return fmt.Sprintf("%#x", v.Uint)
	case KindAddressIndex:
		return fmt.Sprintf("addrx[%d]", v.Uint)
	case KindFlag:
		return strconv.FormatBool(v.Uint != 0)
	case KindBlock, KindExprLoc, KindConstant16:
		return "[" + hex.EncodeToString(v.Bytes) + "]"
	case KindString:
		return strconv.Quote(v.Str)
	case KindStringRef:
		return fmt.Sprintf("strp[%#x]", v.Uint)
	case KindLineStringRef:
		return fmt.Sprintf("line_strp[%#x]", v.Uint)
	case KindStringIndex:
		return fmt.Sprintf("strx[%d]", v.Uint)
	case KindReference:
		return fmt.Sprintf("<%#x>", v.Uint)
	case KindSignature:
		return fmt.Sprintf("sig8:%016x", v.Uint)
	}
	return "<invalid>"
}
