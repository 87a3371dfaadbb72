package dwarf

import (
	"encoding/binary"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

type AttrSpec struct {
	Attr Attr
	Form Form
	// ImplicitConst is the value carried by the declaration itself when
	// Form is FormImplicitConst.
	ImplicitConst int64
}

// Abbrev is a template shared by every entry that names its code.
type Abbrev struct {
	Code     uint64
	Tag      Tag
	Children bool
	Specs    []AttrSpec
}

// AbbrevTable maps abbreviation codes to their declarations. Tables are
// immutable once parsed and may be shared between units.
type AbbrevTable map[uint64]*Abbrev

// ParseAbbrevTable decodes one abbreviation table, stopping at the
// terminating zero code. Duplicate codes are rejected.
func ParseAbbrevTable(c *Cursor) (AbbrevTable, error) {
	table := make(AbbrevTable)
	for {
		at := c.Offset()
		code, err := c.ULEB128()
		if err != nil {
			return nil, malformedAbbrev(c, at, err, "reading code")
		}
		if code == 0 {
			return table, nil
		}
		if _, dup := table[code]; dup {
			return nil, malformedAbbrev(c, at, nil, fmt.Sprintf("duplicate code %d", code))
		}
		tag, err := c.ULEB128()
		if err != nil {
			return nil, malformedAbbrev(c, at, err, fmt.Sprintf("reading tag of code %d", code))
		}
		children, err := c.U8()
		if err != nil {
			return nil, malformedAbbrev(c, at, err, fmt.Sprintf("reading children flag of code %d", code))
		}
		if children > 1 {
			return nil, malformedAbbrev(c, at, nil, fmt.Sprintf("children flag %d of code %d", children, code))
		}
		a := &Abbrev{Code: code, Tag: Tag(tag), Children: children == 1}
		for {
			specAt := c.Offset()
			attr, err := c.ULEB128()
			if err != nil {
				return nil, malformedAbbrev(c, specAt, err, fmt.Sprintf("reading attribute of code %d", code))
			}
			form, err := c.ULEB128()
			if err != nil {
				return nil, malformedAbbrev(c, specAt, err, fmt.Sprintf("reading form of code %d", code))
			}
			if attr == 0 && form == 0 {
				break
			}
			spec := AttrSpec{Attr: Attr(attr), Form: Form(form)}
			if !spec.Form.known() {
				return nil, malformedAbbrev(c, specAt, nil, fmt.Sprintf("unknown form %s in code %d", spec.Form, code))
			}
			if spec.Form == FormImplicitConst {
				if spec.ImplicitConst, err = c.SLEB128(); err != nil {
					return nil, malformedAbbrev(c, specAt, err, fmt.Sprintf("reading implicit constant of code %d", code))
				}
			}
			a.Specs = append(a.Specs, spec)
		}
		table[code] = a
	}
}

func malformedAbbrev(c *Cursor, at int64, cause error, detail string) error {
	return &FormatError{
		Section: c.Section(),
		Offset:  at,
		Err:     ErrMalformedAbbrev,
		Cause:   cause,
		Detail:  detail,
	}
}

// abbrevCache shares decoded tables between units that point at the same
// .debug_abbrev offset. A nil cache decodes every time.
type abbrevCache struct {
	lru *lru.Cache[uint64, AbbrevTable]
}

func newAbbrevCache(size int) (*abbrevCache, error) {
	if size <= 0 {
		return &abbrevCache{}, nil
	}
	c, err := lru.New[uint64, AbbrevTable](size)
	if err != nil {
		return nil, fmt.Errorf("create abbreviation cache: %w", err)
	}
	return &abbrevCache{lru: c}, nil
}

func (a *abbrevCache) get(data []byte, offset uint64, order binary.ByteOrder) (AbbrevTable, error) {
	if a.lru != nil {
		if t, ok := a.lru.Get(offset); ok {
			return t, nil
		}
	}
	if offset >= uint64(len(data)) {
		return nil, &FormatError{
			Section: SectionAbbrev,
			Offset:  int64(offset),
			Err:     ErrMalformedAbbrev,
			Cause:   ErrOutOfBounds,
			Detail:  fmt.Sprintf("offset beyond section size %#x", len(data)),
		}
	}
	t, err := ParseAbbrevTable(NewCursor(SectionAbbrev, data[offset:], int64(offset), order))
	if err != nil {
		return nil, err
	}
	if a.lru != nil {
		a.lru.Add(offset, t)
	}
	return t, nil
}
