package dwarf

import (
	"testing"

	"github.com/stretchr/testify/require"

	dt "github.com/grafana/dwarfreader/pkg/dwarf/dwarftest"
)

func newIndex(t *testing.T, s Sections, opts ...Option) *Index {
	t.Helper()
	x, err := New(s, opts...)
	require.NoError(t, err)
	return x
}

func collectUnits(t *testing.T, x *Index, opts ...IterOption) []*Unit {
	t.Helper()
	var units []*Unit
	require.NoError(t, x.ForEachUnit(func(u *Unit) error {
		units = append(units, u)
		return nil
	}, opts...))
	return units
}

func TestSingleCompileUnitWithStringName(t *testing.T) {
	var a dt.Abbrevs
	a.Decl(1, dt.TagCompileUnit, false, dt.Spec{Attr: dt.AttrName, Form: dt.FormStrp})
	u := dt.NewUnit(4, 8, 0)
	u.Entry(1).U32(0)

	x := newIndex(t, dt.Sections{
		SectionInfo:   u.Bytes(),
		SectionAbbrev: a.Bytes(),
		SectionStr:    []byte("main.c\x00"),
	})
	units := collectUnits(t, x)
	require.Len(t, units, 1)

	entries, err := units[0].Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	root := &entries[0]
	require.Equal(t, TagCompileUnit, root.Tag)
	require.Equal(t, 0, root.NumChildren())
	v, ok := root.Val(AttrName)
	require.True(t, ok)
	require.Equal(t, KindStringRef, v.Kind)
	name, err := units[0].String(v)
	require.NoError(t, err)
	require.Equal(t, "main.c", name)
	require.Equal(t, "main.c", units[0].Name())
}

func TestRootWithOneChild(t *testing.T) {
	var a dt.Abbrevs
	a.Decl(1, dt.TagCompileUnit, true)
	a.Decl(2, dt.TagSubprogram, false)
	u := dt.NewUnit(4, 8, 0)
	u.Body.ULEB(1).ULEB(2).U8(0).U8(0)

	x := newIndex(t, dt.Sections{SectionInfo: u.Bytes(), SectionAbbrev: a.Bytes()})
	units := collectUnits(t, x)
	require.Len(t, units, 1)

	root, err := units[0].Root()
	require.NoError(t, err)
	require.Equal(t, 1, root.NumChildren())
	child := root.Child(0)
	require.Equal(t, TagSubprogram, child.Tag)
	require.Equal(t, 0, child.NumChildren())
	require.Same(t, root, child.Parent())
	require.Equal(t, 1, child.Depth())
	require.Nil(t, child.NextSibling())
	require.Nil(t, child.PrevSibling())
	require.Nil(t, root.Parent())
}

func TestTreeNavigation(t *testing.T) {
	var a dt.Abbrevs
	a.Decl(1, dt.TagCompileUnit, true)
	a.Decl(2, dt.TagSubprogram, true, dt.Spec{Attr: dt.AttrName, Form: dt.FormString})
	a.Decl(3, dt.TagVariable, false, dt.Spec{Attr: dt.AttrName, Form: dt.FormString})

	u := dt.NewUnit(4, 8, 0)
	rootOff := u.Next()
	u.Entry(1)
	fOff := u.Next()
	u.Entry(2).CString("f")
	u.Entry(3).CString("x")
	u.Entry(3).CString("y")
	u.Close()
	gOff := u.Next()
	u.Entry(2).CString("g")
	u.Close()
	u.Close()

	x := newIndex(t, dt.Sections{SectionInfo: u.Bytes(), SectionAbbrev: a.Bytes()})
	unit := x.Units()[0]
	root, err := unit.Root()
	require.NoError(t, err)
	require.Equal(t, rootOff, root.RelOffset())
	require.Equal(t, 2, root.NumChildren())

	f := root.Child(0)
	g := root.Child(1)
	require.Equal(t, "f", f.Name())
	require.Equal(t, fOff, f.RelOffset())
	require.Equal(t, "g", g.Name())
	require.Equal(t, gOff, g.RelOffset())
	require.Same(t, g, f.NextSibling())
	require.Same(t, f, g.PrevSibling())
	require.Equal(t, 0, g.NumChildren())

	vars := f.Children()
	require.Len(t, vars, 2)
	require.Equal(t, "x", vars[0].Name())
	require.Equal(t, "y", vars[1].Name())
	require.Equal(t, 2, vars[1].Depth())
	require.Same(t, f, vars[1].Parent())
	require.Nil(t, root.Child(2))

	byOffset, err := unit.EntryAt(g.Offset)
	require.NoError(t, err)
	require.Same(t, g, byOffset)
	_, err = unit.EntryAt(g.Offset + 1)
	require.ErrorIs(t, err, ErrDanglingReference)

	checkTreeInvariants(t, unit)
}

// checkTreeInvariants verifies that every non-root entry appears exactly
// once among its parent's children and that parent chains end at the root.
func checkTreeInvariants(t *testing.T, u *Unit) {
	t.Helper()
	entries, err := u.Entries()
	require.NoError(t, err)
	maxDepth := 0
	for i := range entries {
		maxDepth = max(maxDepth, entries[i].Depth())
	}
	for i := range entries {
		e := &entries[i]
		if i == 0 {
			require.Nil(t, e.Parent())
			continue
		}
		p := e.Parent()
		require.NotNil(t, p, "entry %s has no parent", e)
		seen := 0
		for _, c := range p.Children() {
			if c == e {
				seen++
			}
		}
		require.Equal(t, 1, seen, "entry %s among the children of %s", e, p)

		steps := 0
		for q := e; q.Parent() != nil; q = q.Parent() {
			steps++
			require.LessOrEqual(t, steps, maxDepth)
		}
		require.Equal(t, e.Depth(), steps)
	}
}

func TestBuildEntries_Errors(t *testing.T) {
	var a dt.Abbrevs
	a.Decl(1, dt.TagCompileUnit, true)
	a.Decl(2, dt.TagSubprogram, false, dt.Spec{Attr: dt.AttrName, Form: dt.FormStrp})
	a.Decl(3, dt.TagCompileUnit, false)

	tests := []struct {
		name  string
		build func(u *dt.Unit)
		err   error
	}{
		{
			name:  "unknown code",
			build: func(u *dt.Unit) { u.Body.ULEB(1).ULEB(9).U8(0) },
			err:   ErrUnknownAbbreviationCode,
		},
		{
			name:  "children left open",
			build: func(u *dt.Unit) { u.Body.ULEB(1).ULEB(2).U32(0) },
			err:   ErrTruncatedUnit,
		},
		{
			name:  "no entries",
			build: func(u *dt.Unit) { u.Body.U8(0).U8(0) },
			err:   ErrTruncatedUnit,
		},
		{
			name:  "attribute cut short",
			build: func(u *dt.Unit) { u.Body.ULEB(1).ULEB(2).U16(0) },
			err:   ErrOutOfBounds,
		},
		{
			name:  "second top-level entry",
			build: func(u *dt.Unit) { u.Body.ULEB(3).ULEB(3) },
			err:   ErrMalformedUnit,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := dt.NewUnit(4, 8, 0)
			tt.build(u)
			x := newIndex(t, dt.Sections{SectionInfo: u.Bytes(), SectionAbbrev: a.Bytes()})
			err := x.ForEachUnit(func(*Unit) error {
				t.Fatal("bad unit must not be visited")
				return nil
			})
			require.ErrorIs(t, err, tt.err)
			var uerr *UnitError
			require.ErrorAs(t, err, &uerr)
			require.Equal(t, Offset(0), uerr.Offset)
		})
	}
}

func TestBuildEntries_TrailingPadding(t *testing.T) {
	var a dt.Abbrevs
	a.Decl(1, dt.TagCompileUnit, false)
	u := dt.NewUnit(4, 8, 0)
	u.Body.ULEB(1).U8(0).U8(0).U8(0)

	x := newIndex(t, dt.Sections{SectionInfo: u.Bytes(), SectionAbbrev: a.Bytes()})
	entries, err := x.Units()[0].Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestUnsupportedForm(t *testing.T) {
	var a dt.Abbrevs
	a.Decl(1, dt.TagCompileUnit, false,
		dt.Spec{Attr: dt.AttrName, Form: dt.FormString},
		dt.Spec{Attr: dt.AttrType, Form: dt.FormRefSup4},
		dt.Spec{Attr: dt.AttrLanguage, Form: dt.FormData1},
	)
	u := dt.NewUnit(4, 8, 0)
	u.Entry(1).CString("a.c").U32(0xdeadbeef).U8(0x0c)
	sections := dt.Sections{SectionInfo: u.Bytes(), SectionAbbrev: a.Bytes()}

	t.Run("strict", func(t *testing.T) {
		x := newIndex(t, sections)
		err := x.ForEachUnit(func(*Unit) error { return nil })
		require.ErrorIs(t, err, ErrUnsupportedForm)
	})

	t.Run("best effort", func(t *testing.T) {
		x := newIndex(t, sections, WithBestEffort())
		units := collectUnits(t, x)
		root, err := units[0].Root()
		require.NoError(t, err)
		require.Len(t, root.Fields, 2)
		require.Equal(t, "a.c", root.Name())
		_, ok := root.Val(AttrType)
		require.False(t, ok)
		require.Equal(t, uint64(0x0c), units[0].Language())
	})
}

func TestFormDecoding(t *testing.T) {
	var a dt.Abbrevs
	a.Decl(1, dt.TagCompileUnit, false,
		dt.Spec{Attr: dt.AttrLanguage, Form: dt.FormIndirect},
		dt.Spec{Attr: dt.AttrDeclLine, Form: dt.FormImplicitConst, Implicit: 42},
		dt.Spec{Attr: dt.AttrExternal, Form: dt.FormFlagPresent},
		dt.Spec{Attr: dt.AttrByteSize, Form: dt.FormSdata},
		dt.Spec{Attr: dt.AttrLocation, Form: dt.FormBlock1},
		dt.Spec{Attr: dt.AttrHighpc, Form: dt.FormData16},
		dt.Spec{Attr: dt.AttrLowpc, Form: dt.FormAddr},
	)
	u := dt.NewUnit(4, 8, 0)
	u.Entry(1).
		ULEB(dt.FormData1).U8(0x1d).
		SLEB(-8).
		U8(2).Raw(0x91, 0x08).
		Raw(make([]byte, 16)...).
		U64(0x401000)

	x := newIndex(t, dt.Sections{SectionInfo: u.Bytes(), SectionAbbrev: a.Bytes()})
	root, err := x.Units()[0].Root()
	require.NoError(t, err)

	lang, _ := root.Val(AttrLanguage)
	require.Equal(t, FormData1, lang.Form)
	require.Equal(t, KindUnsigned, lang.Kind)
	require.Equal(t, uint64(0x1d), lang.Uint)

	line, _ := root.Val(AttrDeclLine)
	n, ok := line.Signed()
	require.True(t, ok)
	require.Equal(t, int64(42), n)

	ext, _ := root.Val(AttrExternal)
	require.True(t, ext.Flag())

	size, _ := root.Val(AttrByteSize)
	require.Equal(t, int64(-8), size.Int)
	_, ok = size.Unsigned()
	require.False(t, ok)

	loc, _ := root.Val(AttrLocation)
	require.Equal(t, KindBlock, loc.Kind)
	require.Equal(t, []byte{0x91, 0x08}, loc.Bytes)
	_, ok = x.Units()[0].LocationAddress(loc)
	require.False(t, ok)

	c16, _ := root.Val(AttrHighpc)
	require.Equal(t, KindConstant16, c16.Kind)
	require.Len(t, c16.Bytes, 16)

	low, _ := root.Val(AttrLowpc)
	addr, err := x.Units()[0].Address(low)
	require.NoError(t, err)
	require.Equal(t, uint64(0x401000), addr)
}
