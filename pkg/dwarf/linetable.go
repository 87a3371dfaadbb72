package dwarf

import (
	"slices"
	"sort"
)

// SortedLines is a copy of a line table's rows ordered by address.
type SortedLines []LineRow

// Sorted returns the rows ordered by address. The sort is stable, and an
// end_sequence row sorts before other rows at the same address so that it
// cannot shadow the first row of the following sequence.
func (t *LineTable) Sorted() SortedLines {
	rows := slices.Clone(t.Rows)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Address != rows[j].Address {
			return rows[i].Address < rows[j].Address
		}
		return rows[i].EndSequence && !rows[j].EndSequence
	})
	return rows
}

// Lookup returns the row covering addr: the last row at or below addr,
// unless that row ends a sequence.
func (s SortedLines) Lookup(addr uint64) (LineRow, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].Address > addr }) - 1
	if i < 0 || s[i].EndSequence {
		return LineRow{}, false
	}
	return s[i], true
}
