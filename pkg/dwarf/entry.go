package dwarf

import (
	"errors"
	"fmt"

	"github.com/go-kit/log/level"
)

type Field struct {
	Attr Attr
	Val  Value
}

// Entry is a debugging information entry. Entries of a unit live in one
// arena in section order; tree links are arena indexes, so an Entry stays
// valid for as long as its Unit.
type Entry struct {
	Offset      Offset
	Tag         Tag
	HasChildren bool
	Fields      []Field

	unit     *Unit
	index    int
	parent   int
	depth    int
	sibling  int
	children []int
}

func (e *Entry) Unit() *Unit { return e.unit }

// RelOffset returns the offset of the entry relative to its unit header,
// the value unit-relative reference forms encode.
func (e *Entry) RelOffset() uint64 { return uint64(e.Offset - e.unit.Offset) }

// Parent returns nil for the unit root.
func (e *Entry) Parent() *Entry {
	if e.parent < 0 {
		return nil
	}
	return &e.unit.entries[e.parent]
}

// Depth is zero for the unit root.
func (e *Entry) Depth() int { return e.depth }

func (e *Entry) NumChildren() int { return len(e.children) }

func (e *Entry) Child(i int) *Entry {
	if i < 0 || i >= len(e.children) {
		return nil
	}
	return &e.unit.entries[e.children[i]]
}

// Children returns the direct children in section order.
func (e *Entry) Children() []*Entry {
	out := make([]*Entry, len(e.children))
	for i, idx := range e.children {
		out[i] = &e.unit.entries[idx]
	}
	return out
}

func (e *Entry) NextSibling() *Entry {
	p := e.Parent()
	if p == nil {
		return nil
	}
	return p.Child(e.sibling + 1)
}

func (e *Entry) PrevSibling() *Entry {
	p := e.Parent()
	if p == nil {
		return nil
	}
	return p.Child(e.sibling - 1)
}

func (e *Entry) Field(attr Attr) (Field, bool) {
	for _, f := range e.Fields {
		if f.Attr == attr {
			return f, true
		}
	}
	return Field{}, false
}

func (e *Entry) Val(attr Attr) (Value, bool) {
	f, ok := e.Field(attr)
	return f.Val, ok
}

// Name resolves DW_AT_name, returning an empty string when the entry has
// none or it cannot be resolved.
func (e *Entry) Name() string {
	v, ok := e.Val(AttrName)
	if !ok {
		return ""
	}
	s, err := e.unit.String(v)
	if err != nil {
		return ""
	}
	return s
}

func (e *Entry) String() string {
	return fmt.Sprintf("<%#x> %s", uint64(e.Offset), e.Tag)
}

// buildEntries decodes the entry stream of a unit into an arena. The stream
// is flat; a zero code closes the innermost open entry, and trailing zero
// codes after the root is closed are padding.
func (u *Unit) buildEntries(c *Cursor, abbrevs AbbrevTable, opts *options) ([]Entry, error) {
	var (
		entries = make([]Entry, 0, c.Remaining()/8+1)
		stack   []int
		rooted  bool
		f       = u.format()
	)
	for c.Remaining() > 0 {
		at := c.Offset()
		code, err := c.ULEB128()
		if err != nil {
			return nil, err
		}
		if code == 0 {
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}
		a, ok := abbrevs[code]
		if !ok {
			return nil, &FormatError{Section: SectionInfo, Offset: at, Err: ErrUnknownAbbreviationCode, Detail: fmt.Sprintf("code %d", code)}
		}
		if len(stack) == 0 && rooted {
			return nil, &FormatError{Section: SectionInfo, Offset: at, Err: ErrMalformedUnit, Detail: "second top-level entry"}
		}

		fields := make([]Field, 0, len(a.Specs))
		for _, spec := range a.Specs {
			v, err := readValue(c, spec, f)
			if err != nil {
				if opts.bestEffort && errors.Is(err, ErrUnsupportedForm) {
					level.Debug(opts.logger).Log("msg", "dropping attribute", "entry", fmt.Sprintf("%#x", at), "attr", spec.Attr, "form", spec.Form)
					continue
				}
				return nil, fmt.Errorf("entry %#x attribute %s: %w", at, spec.Attr, err)
			}
			fields = append(fields, Field{Attr: spec.Attr, Val: v})
		}

		e := Entry{
			Offset:      Offset(at),
			Tag:         a.Tag,
			HasChildren: a.Children,
			Fields:      fields,
			unit:        u,
			index:       len(entries),
			parent:      -1,
		}
		if n := len(stack); n > 0 {
			p := &entries[stack[n-1]]
			e.parent = p.index
			e.depth = p.depth + 1
			e.sibling = len(p.children)
			p.children = append(p.children, e.index)
		}
		rooted = true
		entries = append(entries, e)
		if a.Children {
			stack = append(stack, e.index)
		}
	}

	if !rooted {
		return nil, &FormatError{Section: SectionInfo, Offset: c.Offset(), Err: ErrTruncatedUnit, Detail: "unit has no entries"}
	}
	if len(stack) > 0 {
		return nil, &FormatError{Section: SectionInfo, Offset: c.Offset(), Err: ErrTruncatedUnit, Detail: fmt.Sprintf("%d entries left open", len(stack))}
	}
	return entries, nil
}
