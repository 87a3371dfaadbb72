package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/samber/lo"

	"github.com/grafana/dwarfreader/pkg/dwarf"
	"github.com/grafana/dwarfreader/pkg/symbolizer"
)

var errNoDebugInfo = errors.New("binary has no debug information")

type parseError struct {
	arg string
	err error
}

func (e *parseError) Error() string { return fmt.Sprintf("%q: %v", e.arg, e.err) }

func (e *parseError) Unwrap() error { return e.err }

// parseAddress accepts 0x-prefixed hexadecimal, octal and decimal.
func parseAddress(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, &parseError{arg: s, err: err}
	}
	return v, nil
}

type tool struct {
	logger log.Logger
	cfg    symbolizer.Config
	sym    *symbolizer.Symbolizer
}

func newToolWithConfig(_ context.Context, logger log.Logger, c symbolizer.Config) (*tool, error) {
	sym, err := symbolizer.New(logger, c, nil)
	if err != nil {
		return nil, err
	}
	return &tool{logger: logger, cfg: c, sym: sym}, nil
}

func (t *tool) close() { t.sym.Close() }

func (t *tool) open(ctx context.Context, path string) (*symbolizer.Binary, *dwarf.Index, error) {
	b, err := t.sym.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	if b.Index() == nil {
		return b, nil, fmt.Errorf("%s: %w", path, errNoDebugInfo)
	}
	return b, b.Index(), nil
}

func (t *tool) iterOptions() []dwarf.IterOption {
	if !t.cfg.SkipBadUnits {
		return nil
	}
	return []dwarf.IterOption{dwarf.SkipBadUnits()}
}

func (t *tool) unitAt(x *dwarf.Index, s string) (*dwarf.Unit, error) {
	off, err := parseAddress(s)
	if err != nil {
		return nil, err
	}
	u, err := x.UnitAt(dwarf.Offset(off))
	if err != nil {
		return nil, err
	}
	if u.Offset != dwarf.Offset(off) {
		return nil, &parseError{arg: s, err: fmt.Errorf("unit at %#x starts at %#x", off, uint64(u.Offset))}
	}
	return u, u.Err()
}

func (t *tool) units(ctx context.Context, path string) error {
	_, x, err := t.open(ctx, path)
	if err != nil {
		return err
	}
	out := output(ctx)
	table := newTable(out, "Offset", "Version", "Type", "Format", "AddrSize", "Length", "Name", "Producer")
	for _, u := range x.Units() {
		format := "DWARF32"
		if u.Dwarf64 {
			format = "DWARF64"
		}
		row := []string{
			offsetColor(fmt.Sprintf("%#x", uint64(u.Offset))),
			strconv.Itoa(int(u.Version)),
			u.UnitType.String(),
			format,
			strconv.Itoa(u.AddrSize),
			humanize.IBytes(u.Length),
		}
		if err := u.Err(); err != nil {
			row = append(row, "", errorColor(err.Error()))
		} else {
			row = append(row, u.Name(), u.Producer())
		}
		table.Append(row)
	}
	table.Render()
	if err := x.Err(); err != nil {
		fmt.Fprintln(out, errorColor(err.Error()))
	}
	return nil
}

func (t *tool) dies(ctx context.Context, path, unit string, maxDepth int) error {
	_, x, err := t.open(ctx, path)
	if err != nil {
		return err
	}
	out := output(ctx)
	if unit != "" {
		u, err := t.unitAt(x, unit)
		if err != nil {
			return err
		}
		return printEntries(out, u, maxDepth)
	}
	return x.ForEachUnit(func(u *dwarf.Unit) error {
		return printEntries(out, u, maxDepth)
	}, append(t.iterOptions(), dwarf.OnBadUnit(func(uerr *dwarf.UnitError) {
		fmt.Fprintf(out, "%s %s\n", offsetColor(fmt.Sprintf("<%#x>", uint64(uerr.Offset))), errorColor(uerr.Err.Error()))
	}))...)
}

func printEntries(w io.Writer, u *dwarf.Unit, maxDepth int) error {
	entries, err := u.Entries()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "unit %s version %d %s\n", offsetColor(fmt.Sprintf("%#x", uint64(u.Offset))), u.Version, u.UnitType)
	for i := range entries {
		e := &entries[i]
		if maxDepth >= 0 && e.Depth() > maxDepth {
			continue
		}
		indent := strings.Repeat("  ", e.Depth())
		fmt.Fprintf(w, "%s%s %s\n", indent, offsetColor(fmt.Sprintf("<%#x>", uint64(e.Offset))), tagColor(e.Tag.String()))
		for _, f := range e.Fields {
			fmt.Fprintf(w, "%s    %-24s %s\n", indent, attrColor(f.Attr.String()), formatValue(u, f.Val))
		}
	}
	return nil
}

// formatValue resolves indirect strings and addresses so the output does
// not need the string and address tables to be read.
func formatValue(u *dwarf.Unit, v dwarf.Value) string {
	switch v.Kind {
	case dwarf.KindStringRef, dwarf.KindLineStringRef, dwarf.KindStringIndex:
		s, err := u.String(v)
		if err != nil {
			return v.String() + " " + errorColor(err.Error())
		}
		return strconv.Quote(s)
	case dwarf.KindAddressIndex:
		addr, err := u.Address(v)
		if err != nil {
			return v.String() + " " + errorColor(err.Error())
		}
		return fmt.Sprintf("%#x", addr)
	}
	return v.String()
}

func (t *tool) lines(ctx context.Context, path, unit string) error {
	_, x, err := t.open(ctx, path)
	if err != nil {
		return err
	}
	u, err := t.unitAt(x, unit)
	if err != nil {
		return err
	}
	lt, err := u.LineTable()
	if err != nil {
		return err
	}
	out := output(ctx)
	if lt == nil {
		fmt.Fprintf(out, "unit %#x has no line table\n", uint64(u.Offset))
		return nil
	}

	fmt.Fprintf(out, "line table %s version %d\n", offsetColor(fmt.Sprintf("%#x", uint64(lt.Offset))), lt.Version)
	files := newTable(out, "File", "Path")
	for i := range lt.Files {
		files.Append([]string{strconv.Itoa(i), lt.FilePath(i)})
	}
	files.Render()
	fmt.Fprintln(out)

	rows := newTable(out, "Address", "File", "Line", "Column", "Flags")
	for _, r := range lt.Rows {
		flags := lo.Compact([]string{
			lo.Ternary(r.IsStmt, "is_stmt", ""),
			lo.Ternary(r.BasicBlock, "basic_block", ""),
			lo.Ternary(r.PrologueEnd, "prologue_end", ""),
			lo.Ternary(r.EpilogueBegin, "epilogue_begin", ""),
			lo.Ternary(r.EndSequence, "end_sequence", ""),
		})
		rows.Append([]string{
			fmt.Sprintf("%#x", r.Address),
			strconv.Itoa(r.File),
			strconv.Itoa(r.Line),
			strconv.Itoa(r.Column),
			strings.Join(flags, " "),
		})
	}
	rows.Render()
	return nil
}

func (t *tool) lookup(ctx context.Context, path string, addrs []string) error {
	parsed := make([]uint64, 0, len(addrs))
	for _, s := range addrs {
		addr, err := parseAddress(s)
		if err != nil {
			return err
		}
		parsed = append(parsed, addr)
	}
	b, err := t.sym.Open(ctx, path)
	if err != nil {
		return err
	}
	if err := b.Err(); err != nil {
		level.Warn(t.logger).Log("msg", "debug information unusable", "err", err)
	}
	out := output(ctx)
	for _, addr := range parsed {
		fmt.Fprintln(out, offsetColor(fmt.Sprintf("%#x", addr)))
		for _, f := range b.Resolve(addr) {
			if f.FilePath == "" {
				fmt.Fprintf(out, "  %s\n", functionColor(f.FunctionName))
				continue
			}
			fmt.Fprintf(out, "  %s at %s:%d\n", functionColor(f.FunctionName), f.FilePath, f.LineNumber)
		}
	}
	return nil
}

func (t *tool) function(ctx context.Context, path, name string) error {
	b, _, err := t.open(ctx, path)
	if err != nil {
		return err
	}
	ranges, err := b.LookupFunction(name)
	if err != nil {
		return err
	}
	out := output(ctx)
	table := newTable(out, "Low", "High", "Size")
	for _, r := range ranges {
		table.Append([]string{fmt.Sprintf("%#x", r.Low), fmt.Sprintf("%#x", r.High), strconv.FormatUint(r.High-r.Low, 10)})
	}
	table.Render()
	return nil
}
