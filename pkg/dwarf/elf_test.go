package dwarf

import (
	stddwarf "debug/dwarf"
	"debug/elf"
	"encoding/binary"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var fixtures = []string{
	"testdata/hello-dwarf4",
	"testdata/hello-dwarf5",
	"testdata/hello-dwarf5-zlib",
}

// elfSections serves sections straight from debug/elf, which inflates
// compressed sections on read.
type elfSections struct {
	f *elf.File
}

func (s elfSections) Section(name string) ([]byte, bool) {
	sec := s.f.Section(name)
	if sec == nil {
		return nil, false
	}
	b, err := sec.Data()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (s elfSections) ByteOrder() binary.ByteOrder { return s.f.ByteOrder }

func openFixture(t *testing.T, name string) (*Index, *stddwarf.Data) {
	t.Helper()
	f, err := elf.Open(name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	x, err := New(elfSections{f: f})
	require.NoError(t, err)
	std, err := f.DWARF()
	require.NoError(t, err)
	return x, std
}

func TestFixtures_EntriesMatchStdlib(t *testing.T) {
	for _, name := range fixtures {
		t.Run(path.Base(name), func(t *testing.T) {
			x, std := openFixture(t, name)
			require.NoError(t, x.Err())

			var want []*stddwarf.Entry
			r := std.Reader()
			for {
				e, err := r.Next()
				require.NoError(t, err)
				if e == nil {
					break
				}
				if e.Tag != 0 {
					want = append(want, e)
				}
			}

			var got []*Entry
			for _, u := range collectUnits(t, x) {
				entries, err := u.Entries()
				require.NoError(t, err)
				for i := range entries {
					got = append(got, &entries[i])
				}
				checkTreeInvariants(t, u)
			}

			require.Len(t, got, len(want))
			for i, w := range want {
				g := got[i]
				require.Equal(t, uint64(w.Offset), uint64(g.Offset))
				require.Equal(t, uint64(w.Tag), uint64(g.Tag), "entry %s", g)
				require.Equal(t, w.Children, g.HasChildren, "entry %s", g)
				require.Len(t, g.Fields, len(w.Field), "entry %s", g)
				for j, f := range w.Field {
					require.Equal(t, uint64(f.Attr), uint64(g.Fields[j].Attr), "entry %s", g)
				}
				if n, ok := w.Val(stddwarf.AttrName).(string); ok {
					require.Equal(t, n, g.Name())
				}

				wr, err := std.Ranges(w)
				require.NoError(t, err)
				var wantRanges []Range
				for _, r := range wr {
					if r[1] > r[0] {
						wantRanges = append(wantRanges, Range{Low: r[0], High: r[1]})
					}
				}
				gr, err := g.Unit().Ranges(g)
				require.NoError(t, err)
				require.Equal(t, wantRanges, gr, "entry %s", g)
			}
		})
	}
}

func TestFixtures_LinesMatchStdlib(t *testing.T) {
	for _, name := range fixtures {
		t.Run(path.Base(name), func(t *testing.T) {
			x, std := openFixture(t, name)
			for _, u := range collectUnits(t, x) {
				se, err := stdUnitEntry(std, u)
				require.NoError(t, err)
				lr, err := std.LineReader(se)
				require.NoError(t, err)

				lt, err := u.LineTable()
				require.NoError(t, err)
				require.NotNil(t, lt)

				var le stddwarf.LineEntry
				for i, row := range lt.Rows {
					require.NoError(t, lr.Next(&le), "row %d", i)
					require.Equal(t, le.Address, row.Address, "row %d", i)
					require.Equal(t, le.Line, row.Line, "row %d", i)
					require.Equal(t, le.IsStmt, row.IsStmt, "row %d", i)
					require.Equal(t, le.EndSequence, row.EndSequence, "row %d", i)
					if !le.EndSequence {
						require.Equal(t, path.Base(le.File.Name), path.Base(lt.FilePath(row.File)), "row %d", i)
					}
				}
			}
		})
	}
}

// stdUnitEntry returns the root entry of u as decoded by debug/dwarf. Its
// reader only seeks to entry offsets, not to unit headers.
func stdUnitEntry(std *stddwarf.Data, u *Unit) (*stddwarf.Entry, error) {
	root, err := u.Root()
	if err != nil {
		return nil, err
	}
	r := std.Reader()
	r.Seek(stddwarf.Offset(root.Offset))
	return r.Next()
}

func TestFixture_DWARF5(t *testing.T) {
	x, _ := openFixture(t, "testdata/hello-dwarf5")
	units := x.Units()
	require.Len(t, units, 2)
	require.Equal(t, Offset(0), units[0].Offset)
	require.Equal(t, uint64(0x179), units[0].Length)
	require.Equal(t, Offset(0x17d), units[1].Offset)
	require.Equal(t, uint64(0x132), units[1].AbbrevOffset)
	require.Equal(t, Offset(0x1e2), units[1].End())

	mainCU, util := units[0], units[1]
	require.Equal(t, uint16(5), mainCU.Version)
	require.Equal(t, UnitTypeCompile, mainCU.UnitType)
	require.Equal(t, "main.c", mainCU.Name())
	require.Equal(t, "/src", mainCU.CompDir())
	require.True(t, strings.HasPrefix(mainCU.Producer(), "GNU C17 12.2.0"))
	require.Equal(t, "util.c", util.Name())

	root, err := mainCU.Root()
	require.NoError(t, err)
	ranges, err := mainCU.Ranges(root)
	require.NoError(t, err)
	require.ElementsMatch(t, []Range{{Low: 0x1150, High: 0x119f}, {Low: 0x1040, High: 0x105d}}, ranges)

	counter, err := x.EntryAt(0x2a)
	require.NoError(t, err)
	require.Equal(t, TagVariable, counter.Tag)
	require.Equal(t, "global_counter", counter.Name())
	loc, ok := counter.Val(AttrLocation)
	require.True(t, ok)
	addr, ok := mainCU.LocationAddress(loc)
	require.True(t, ok)
	require.Equal(t, uint64(0x4010), addr)

	compute, err := x.EntryAt(0xc9)
	require.NoError(t, err)
	require.Equal(t, "compute", compute.Name())
	ranges, err = mainCU.Ranges(compute)
	require.NoError(t, err)
	require.Equal(t, []Range{{Low: 0x1150, High: 0x119f}}, ranges)

	inlined, err := x.EntryAt(0x127)
	require.NoError(t, err)
	require.Equal(t, TagInlinedSubroutine, inlined.Tag)
	require.Equal(t, TagLexicalBlock, inlined.Parent().Tag)
	require.Same(t, compute, inlined.Parent().Parent())
	ranges, err = mainCU.Ranges(inlined)
	require.NoError(t, err)
	require.Equal(t, []Range{{Low: 0x1168, High: 0x116b}, {Low: 0x1172, High: 0x1176}}, ranges)
	origin, ok := inlined.Val(AttrAbstractOrigin)
	require.True(t, ok)
	square, err := mainCU.Deref(origin)
	require.NoError(t, err)
	require.Equal(t, Offset(0x164), square.Offset)
	require.Equal(t, "square", square.Name())
	line, ok := inlined.Val(AttrCallLine)
	require.True(t, ok)
	require.Equal(t, uint64(14), line.Uint)

	helper, err := x.EntryAt(0x1ab)
	require.NoError(t, err)
	require.Same(t, util, helper.Unit())
	ranges, err = util.Ranges(helper)
	require.NoError(t, err)
	require.Equal(t, []Range{{Low: 0x11a0, High: 0x11a5}}, ranges)

	lt, err := mainCU.LineTable()
	require.NoError(t, err)
	require.Equal(t, uint16(5), lt.Version)
	require.Equal(t, int8(-5), lt.LineBase)
	require.Equal(t, uint8(14), lt.LineRange)
	require.Equal(t, uint8(13), lt.OpcodeBase)
	require.Equal(t, []string{"/src"}, lt.Dirs)
	require.Len(t, lt.Files, 3)
	require.Equal(t, "util.h", lt.Files[2].Name)

	lookups := []struct {
		unit *Unit
		addr uint64
		file string
		line int
	}{
		{unit: mainCU, addr: 0x1169, file: "/src/main.c", line: 7},
		{unit: mainCU, addr: 0x1045, file: "/src/main.c", line: 20},
		{unit: util, addr: 0x11a2, file: "/src/util.c", line: 3},
	}
	for _, l := range lookups {
		lt, err := l.unit.LineTable()
		require.NoError(t, err)
		row, ok := lt.Sorted().Lookup(l.addr)
		require.True(t, ok, "%#x", l.addr)
		require.Equal(t, l.line, row.Line, "%#x", l.addr)
		require.Equal(t, l.file, lt.FilePath(row.File), "%#x", l.addr)
	}
}

func TestFixture_Truncated(t *testing.T) {
	f, err := elf.Open("testdata/hello-dwarf5")
	require.NoError(t, err)
	defer f.Close()
	s := elfSections{f: f}
	info, _ := s.Section(SectionInfo)
	abbrev, _ := s.Section(SectionAbbrev)

	x := newIndex(t, mapSections{
		SectionInfo:   info[:len(info)-1],
		SectionAbbrev: abbrev,
	})
	require.Len(t, x.Units(), 1)
	err = x.ForEachUnit(func(*Unit) error { return nil })
	require.ErrorIs(t, err, ErrOutOfBounds)
	require.ErrorIs(t, err, ErrCorruptSectionLength)

	visited := 0
	err = x.ForEachUnit(func(*Unit) error {
		visited++
		return nil
	}, SkipBadUnits())
	require.Error(t, err)
	require.Equal(t, 1, visited)
}

type mapSections map[string][]byte

func (m mapSections) Section(name string) ([]byte, bool) {
	b, ok := m[name]
	return b, ok
}
