package symbolizer

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/pyroscope/lidia"
	"github.com/hashicorp/go-multierror"
	"github.com/ianlancetaylor/demangle"

	"github.com/grafana/dwarfreader/pkg/dwarf"
	"github.com/grafana/dwarfreader/pkg/elfimage"
)

var ErrFunctionNotFound = errors.New("function not found")

// Frame is one level of a resolved call chain.
type Frame = lidia.SourceInfoFrame

// maxOriginDepth bounds how many abstract_origin and specification links
// are followed to name a function.
const maxOriginDepth = 8

type function struct {
	dwarf.Range
	entry *dwarf.Entry
	unit  *unitLines
}

type unitLines struct {
	unit  *dwarf.Unit
	once  sync.Once
	table *dwarf.LineTable
	rows  dwarf.SortedLines
}

func (ul *unitLines) sorted(logger log.Logger) (*dwarf.LineTable, dwarf.SortedLines) {
	ul.once.Do(func() {
		t, err := ul.unit.LineTable()
		if err != nil {
			level.Warn(logger).Log("msg", "failed to decode line table", "unit", fmt.Sprintf("%#x", uint64(ul.unit.Offset)), "err", err)
			return
		}
		if t != nil {
			ul.table = t
			ul.rows = t.Sorted()
		}
	})
	return ul.table, ul.rows
}

// Binary resolves link-time addresses of one ELF image to source frames.
// Its function index is built on first use. A Binary is safe for
// concurrent use.
type Binary struct {
	Name    string
	BuildID elfimage.BuildID
	Layout  Layout

	img      *elfimage.Image
	index    *dwarf.Index
	logger   log.Logger
	cfg      Config
	demangle []demangle.Option

	once  sync.Once
	funcs []function
	// reach[i] is the highest end address among funcs[:i+1].
	reach   []uint64
	skipped []*dwarf.UnitError
	err     error

	symtabOnce sync.Once
	symtab     *lidia.Table
	symtabErr  error
}

// NewBinary prepares img for symbolization. Images without debug
// information are accepted and resolve through the symbol table only.
func NewBinary(logger log.Logger, cfg Config, img *elfimage.Image, name string) (*Binary, error) {
	b := &Binary{
		Name:     name,
		Layout:   LayoutOf(img),
		img:      img,
		logger:   log.With(logger, "binary", name),
		cfg:      cfg,
		demangle: demangleModes[cfg.Demangle],
	}
	id, err := img.BuildID()
	if err != nil && !errors.Is(err, elfimage.ErrNoBuildIDSection) {
		level.Debug(b.logger).Log("msg", "failed to read build ID", "err", err)
	}
	b.BuildID = id

	if !img.HasDebugInfo() {
		return b, nil
	}
	opts := []dwarf.Option{
		dwarf.WithLogger(b.logger),
		dwarf.WithAbbrevCacheSize(cfg.AbbrevCacheSize),
	}
	if cfg.BestEffort {
		opts = append(opts, dwarf.WithBestEffort())
	}
	if b.index, err = dwarf.New(img, opts...); err != nil {
		return nil, fmt.Errorf("reading debug info of %s: %w", name, err)
	}
	return b, nil
}

// Index returns the debug information index, or nil when the image has
// none.
func (b *Binary) Index() *dwarf.Index { return b.index }

// Skipped returns the units left out of the function index because they
// could not be decoded.
func (b *Binary) Skipped() []*dwarf.UnitError {
	b.once.Do(b.build)
	return b.skipped
}

func (b *Binary) build() {
	if b.index == nil {
		return
	}
	var iterOpts []dwarf.IterOption
	if b.cfg.SkipBadUnits {
		iterOpts = append(iterOpts, dwarf.SkipBadUnits(), dwarf.OnBadUnit(func(uerr *dwarf.UnitError) {
			b.skipped = append(b.skipped, uerr)
		}))
	}
	err := b.index.ForEachUnit(func(u *dwarf.Unit) error {
		ul := &unitLines{unit: u}
		entries, err := u.Entries()
		if err != nil {
			return err
		}
		for i := range entries {
			e := &entries[i]
			if e.Tag != dwarf.TagSubprogram {
				continue
			}
			ranges, err := u.Ranges(e)
			if err != nil {
				level.Debug(b.logger).Log("msg", "skipping function with bad ranges", "entry", e, "err", err)
				continue
			}
			for _, r := range ranges {
				b.funcs = append(b.funcs, function{Range: r, entry: e, unit: ul})
			}
		}
		return nil
	}, iterOpts...)
	if b.err = b.indexError(err); b.err != nil {
		return
	}
	if err != nil {
		level.Warn(b.logger).Log("msg", "some units were skipped", "count", len(b.skipped))
	}

	sort.SliceStable(b.funcs, func(i, j int) bool { return b.funcs[i].Low < b.funcs[j].Low })
	b.reach = make([]uint64, len(b.funcs))
	var high uint64
	for i, f := range b.funcs {
		high = max(high, f.High)
		b.reach[i] = high
	}
}

// indexError filters the result of indexing the units. With SkipBadUnits
// the combined error of the skipped units is already recorded in skipped;
// anything else still fails the index.
func (b *Binary) indexError(err error) error {
	if err == nil {
		return nil
	}
	if merr, ok := err.(*multierror.Error); ok && b.cfg.SkipBadUnits {
		for _, e := range merr.Errors {
			var uerr *dwarf.UnitError
			if !errors.As(e, &uerr) {
				return err
			}
		}
		return nil
	}
	return err
}

// Err reports why the function index could not be built.
func (b *Binary) Err() error {
	b.once.Do(b.build)
	return b.err
}

// function returns the innermost concrete subprogram covering addr.
func (b *Binary) function(addr uint64) (function, bool) {
	i := sort.Search(len(b.funcs), func(i int) bool { return b.funcs[i].Low > addr }) - 1
	var (
		best  function
		found bool
	)
	for ; i >= 0 && b.reach[i] > addr; i-- {
		f := b.funcs[i]
		if !f.Contains(addr) {
			continue
		}
		if !found || f.High-f.Low < best.High-best.Low {
			best, found = f, true
		}
	}
	return best, found
}

// Resolve returns the frames covering the link-time address addr,
// innermost first. Inlined calls produce one frame per level. Addresses
// without debug information fall back to the symbol table, and finally to
// a synthetic frame naming the binary and the address.
func (b *Binary) Resolve(addr uint64) []Frame {
	frames, _ := b.resolve(nil, addr)
	return frames
}

// resolve reuses dst and also reports which source produced the frames.
func (b *Binary) resolve(dst []Frame, addr uint64) ([]Frame, string) {
	dst = dst[:0]
	if b.Err() == nil {
		if fn, ok := b.function(addr); ok {
			return b.inlineChain(dst, fn, addr), sourceDWARF
		}
	}
	if b.cfg.SymtabFallback {
		if frames := b.lookupSymtab(dst, addr); len(frames) > 0 {
			return frames, sourceSymtab
		}
	}
	return append(dst, Frame{FunctionName: fmt.Sprintf("%s!0x%x", b.Name, addr)}), sourceFallback
}

func (b *Binary) inlineChain(dst []Frame, fn function, addr uint64) []Frame {
	u := fn.unit.unit
	chain := []*dwarf.Entry{fn.entry}
	for e := fn.entry; ; {
		next := b.innerScope(u, e, addr)
		if next == nil {
			break
		}
		if next.Tag == dwarf.TagInlinedSubroutine {
			chain = append(chain, next)
		}
		e = next
	}

	table, rows := fn.unit.sorted(b.logger)
	file, line := "", 0
	if row, ok := rows.Lookup(addr); ok {
		file, line = table.FilePath(row.File), row.Line
	}
	for i := len(chain) - 1; i >= 0; i-- {
		dst = append(dst, Frame{
			FunctionName: b.functionName(chain[i]),
			FilePath:     file,
			LineNumber:   uint64(max(line, 0)),
		})
		file, line = callSite(table, chain[i])
	}
	return dst
}

// innerScope returns the child of e that covers addr and can hold inlined
// calls. Lexical blocks without ranges are transparent.
func (b *Binary) innerScope(u *dwarf.Unit, e *dwarf.Entry, addr uint64) *dwarf.Entry {
	for _, c := range e.Children() {
		if c.Tag != dwarf.TagInlinedSubroutine && c.Tag != dwarf.TagLexicalBlock {
			continue
		}
		ranges, err := u.Ranges(c)
		if err != nil {
			continue
		}
		if len(ranges) == 0 && c.Tag == dwarf.TagLexicalBlock {
			if inner := b.innerScope(u, c, addr); inner != nil {
				return inner
			}
			continue
		}
		for _, r := range ranges {
			if r.Contains(addr) {
				return c
			}
		}
	}
	return nil
}

func callSite(table *dwarf.LineTable, e *dwarf.Entry) (string, int) {
	var file string
	if v, ok := e.Val(dwarf.AttrCallFile); ok && table != nil {
		if i, ok := v.Unsigned(); ok {
			file = table.FilePath(int(i))
		}
	}
	var line int
	if v, ok := e.Val(dwarf.AttrCallLine); ok {
		if n, ok := v.Unsigned(); ok {
			line = int(n)
		}
	}
	return file, line
}

// functionName names a subprogram or inlined call. Linkage names are
// demangled; entries without a name of their own borrow it from their
// abstract origin or specification.
func (b *Binary) functionName(e *dwarf.Entry) string {
	for depth := 0; e != nil && depth < maxOriginDepth; depth++ {
		if name := e.Name(); name != "" {
			return name
		}
		for _, attr := range []dwarf.Attr{dwarf.AttrLinkageName, dwarf.AttrMIPSLinkageName} {
			v, ok := e.Val(attr)
			if !ok {
				continue
			}
			if name, err := e.Unit().String(v); err == nil && name != "" {
				return b.demangleName(name)
			}
		}
		e = origin(e)
	}
	return ""
}

func origin(e *dwarf.Entry) *dwarf.Entry {
	for _, attr := range []dwarf.Attr{dwarf.AttrAbstractOrigin, dwarf.AttrSpecification} {
		v, ok := e.Val(attr)
		if !ok {
			continue
		}
		target, err := e.Unit().Deref(v)
		if err != nil {
			return nil
		}
		return target
	}
	return nil
}

func (b *Binary) demangleName(name string) string {
	if b.cfg.Demangle == "none" {
		return name
	}
	return demangle.Filter(name, b.demangle...)
}

func (b *Binary) lookupSymtab(dst []Frame, addr uint64) []Frame {
	b.symtabOnce.Do(func() {
		b.symtab, b.symtabErr = b.buildSymtab()
		if b.symtabErr != nil {
			level.Warn(b.logger).Log("msg", "symbol table unavailable", "err", b.symtabErr)
		}
	})
	if b.symtab == nil {
		return dst
	}
	frames, err := b.symtab.Lookup(dst, addr)
	if err != nil {
		level.Debug(b.logger).Log("msg", "symbol table lookup failed", "addr", fmt.Sprintf("0x%x", addr), "err", err)
		return dst[:0]
	}
	for i := range frames {
		frames[i].FunctionName = b.demangleName(frames[i].FunctionName)
	}
	return frames
}

// buildSymtab converts the ELF symbol table into a lidia table held in
// memory. The lidia writer only accepts an *os.File, so the table goes
// through a temporary file that is removed once read back.
func (b *Binary) buildSymtab() (*lidia.Table, error) {
	f, err := os.CreateTemp("", "dwarfreader-symtab-*")
	if err != nil {
		return nil, fmt.Errorf("create symbol table file: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()
	if err := lidia.CreateLidiaFromELF(b.img.File(), f, lidia.WithCRC(), lidia.WithFiles(), lidia.WithLines()); err != nil {
		return nil, fmt.Errorf("create symbol table: %w", err)
	}
	data, err := os.ReadFile(f.Name())
	if err != nil {
		return nil, fmt.Errorf("read symbol table: %w", err)
	}
	t, err := lidia.OpenReader(NewReaderAtCloser(data), lidia.WithCRC())
	if err != nil {
		return nil, fmt.Errorf("open symbol table: %w", err)
	}
	return t, nil
}

// LookupFunction returns the address ranges of every concrete function
// with the given name.
func (b *Binary) LookupFunction(name string) ([]dwarf.Range, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	var out []dwarf.Range
	for _, f := range b.funcs {
		if b.functionName(f.entry) == name {
			out = append(out, f.Range)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%q: %w", name, ErrFunctionNotFound)
	}
	return out, nil
}

// Functions calls fn for every indexed function range in address order.
func (b *Binary) Functions(fn func(name string, r dwarf.Range) bool) error {
	if err := b.Err(); err != nil {
		return err
	}
	for _, f := range b.funcs {
		if !fn(b.functionName(f.entry), f.Range) {
			return nil
		}
	}
	return nil
}

// Close releases the symbol table. A Binary obtained from a Symbolizer is
// never closed by it, so it stays usable after being evicted from the
// cache; only binaries built with NewBinary need closing.
func (b *Binary) Close() error {
	b.symtabOnce.Do(func() {})
	if b.symtab != nil {
		b.symtab.Close()
	}
	return nil
}
