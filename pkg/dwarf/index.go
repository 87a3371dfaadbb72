package dwarf

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// Sections gives access to the raw bytes of debug sections by name. The
// returned slices must stay valid and unmodified for the lifetime of the
// Index.
type Sections interface {
	Section(name string) ([]byte, bool)
}

// byteOrderer is implemented by section providers that know the byte order
// of their image.
type byteOrderer interface {
	ByteOrder() binary.ByteOrder
}

// Index is the entry point to the debug information of one image. Unit
// headers are decoded when the Index is created; everything else is decoded
// on demand. An Index is safe for concurrent use.
type Index struct {
	sections Sections
	order    binary.ByteOrder
	opts     options
	logger   log.Logger
	abbrevs  *abbrevCache

	info   []byte
	abbrev []byte
	str    []byte
	lstr   []byte

	units []*Unit
	// tail is set when partitioning stopped before the end of .debug_info.
	tail *UnitError
}

// New creates an Index over the given sections. .debug_info and
// .debug_abbrev are required.
func New(s Sections, opts ...Option) (*Index, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	x := &Index{
		sections: s,
		opts:     o,
		logger:   o.logger,
		order:    o.order,
	}
	if x.order == nil {
		if bo, ok := s.(byteOrderer); ok {
			x.order = bo.ByteOrder()
		}
	}
	if x.order == nil {
		x.order = binary.LittleEndian
	}

	var ok bool
	if x.info, ok = s.Section(SectionInfo); !ok {
		return nil, fmt.Errorf("%s: %w", SectionInfo, ErrSectionNotFound)
	}
	if x.abbrev, ok = s.Section(SectionAbbrev); !ok {
		return nil, fmt.Errorf("%s: %w", SectionAbbrev, ErrSectionNotFound)
	}
	x.str, _ = s.Section(SectionStr)
	x.lstr, _ = s.Section(SectionLineStr)

	var err error
	if x.abbrevs, err = newAbbrevCache(o.abbrevCacheSize); err != nil {
		return nil, err
	}
	x.partition()
	return x, nil
}

// partition splits .debug_info into units. A unit whose header cannot be
// understood is kept with its error as long as its length is sound; a bad
// length ends partitioning since nothing after it can be located.
func (x *Index) partition() {
	c := NewCursor(SectionInfo, x.info, 0, x.order)
	for c.Remaining() > 0 {
		start := c.Offset()
		u, err := x.parseUnitHeader(c)
		if err != nil {
			x.tail = &UnitError{Offset: Offset(start), Err: err}
			level.Warn(x.logger).Log("msg", "stopped reading units", "offset", start, "err", err)
			return
		}
		x.units = append(x.units, u)
	}
}

func (x *Index) parseUnitHeader(c *Cursor) (*Unit, error) {
	start := c.Offset()
	length, dwarf64, err := c.readInitialLength()
	if err != nil {
		return nil, err
	}
	body, err := c.checkedSlice(length)
	if err != nil {
		return nil, err
	}
	u := &Unit{
		Offset:  Offset(start),
		Length:  length,
		Dwarf64: dwarf64,
		idx:     x,
	}
	if err := u.parseHeader(body); err != nil {
		u.hdrErr = &UnitError{Offset: u.Offset, Err: err}
		level.Debug(x.logger).Log("msg", "bad unit header", "offset", start, "err", err)
	}
	u.data = body
	return u, nil
}

func (u *Unit) parseHeader(c *Cursor) error {
	var err error
	if u.Version, err = c.U16(); err != nil {
		return err
	}
	if u.Version < 2 || u.Version > 5 {
		return &FormatError{Section: SectionInfo, Offset: int64(u.Offset), Err: ErrUnsupportedVersion, Detail: fmt.Sprintf("version %d", u.Version)}
	}
	offSize := u.offsetSize()
	var addrSize uint8
	if u.Version >= 5 {
		var ut uint8
		if ut, err = c.U8(); err != nil {
			return err
		}
		u.UnitType = UnitType(ut)
		if addrSize, err = c.U8(); err != nil {
			return err
		}
		if u.AbbrevOffset, err = c.Uint(offSize); err != nil {
			return err
		}
		switch u.UnitType {
		case UnitTypeCompile, UnitTypePartial:
		case UnitTypeSkeleton, UnitTypeSplitCompile:
			if u.DWOID, err = c.U64(); err != nil {
				return err
			}
		case UnitTypeType, UnitTypeSplitType:
			if u.TypeSignature, err = c.U64(); err != nil {
				return err
			}
			if u.TypeOffset, err = c.Uint(offSize); err != nil {
				return err
			}
		default:
			return &FormatError{Section: SectionInfo, Offset: int64(u.Offset), Err: ErrMalformedUnit, Detail: fmt.Sprintf("unit type %s", u.UnitType)}
		}
	} else {
		u.UnitType = UnitTypeCompile
		if u.AbbrevOffset, err = c.Uint(offSize); err != nil {
			return err
		}
		if addrSize, err = c.U8(); err != nil {
			return err
		}
	}
	u.AddrSize = int(addrSize)
	if u.AddrSize != 4 && u.AddrSize != 8 {
		return &FormatError{Section: SectionInfo, Offset: int64(u.Offset), Err: ErrMalformedUnit, Detail: fmt.Sprintf("address size %d", u.AddrSize)}
	}
	return nil
}

// Units returns every unit in section order, including units whose header
// could not be decoded.
func (x *Index) Units() []*Unit { return x.units }

// Err reports why partitioning stopped early, if it did.
func (x *Index) Err() error {
	if x.tail == nil {
		return nil
	}
	return x.tail
}

// ForEachUnit calls visit for every unit in section order with its entry
// tree decoded. By default the first unit that fails to decode ends the
// iteration with its error. Iteration can be repeated.
func (x *Index) ForEachUnit(visit func(*Unit) error, opts ...IterOption) error {
	var o iterOptions
	for _, opt := range opts {
		opt(&o)
	}
	var skipped *multierror.Error
	fail := func(uerr *UnitError) error {
		if !o.skipBad {
			return uerr
		}
		level.Warn(x.logger).Log("msg", "skipping unit", "offset", fmt.Sprintf("%#x", uint64(uerr.Offset)), "err", uerr.Err)
		if o.onBad != nil {
			o.onBad(uerr)
		}
		skipped = multierror.Append(skipped, uerr)
		return nil
	}

	for _, u := range x.units {
		if err := u.build(); err != nil {
			if ferr := fail(asUnitError(u.Offset, err)); ferr != nil {
				return ferr
			}
			continue
		}
		if err := visit(u); err != nil {
			return err
		}
	}
	if x.tail != nil {
		if err := fail(x.tail); err != nil {
			return err
		}
	}
	return skipped.ErrorOrNil()
}

func asUnitError(off Offset, err error) *UnitError {
	var uerr *UnitError
	if errors.As(err, &uerr) {
		return uerr
	}
	return &UnitError{Offset: off, Err: err}
}

// Build decodes the entry trees of all units up front, using at most
// parallelism goroutines. Failures are returned combined, in section order.
func (x *Index) Build(ctx context.Context, parallelism int) error {
	if parallelism <= 0 {
		parallelism = 1
	}
	errs := make([]error, len(x.units))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, u := range x.units {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := u.build(); err != nil {
				errs[i] = asUnitError(u.Offset, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	var merr *multierror.Error
	for _, err := range errs {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if x.tail != nil {
		merr = multierror.Append(merr, x.tail)
	}
	return merr.ErrorOrNil()
}

// UnitAt returns the unit whose byte range contains off.
func (x *Index) UnitAt(off Offset) (*Unit, error) {
	i := sort.Search(len(x.units), func(i int) bool { return x.units[i].End() > off })
	if i == len(x.units) || x.units[i].Offset > off {
		return nil, &FormatError{Section: SectionInfo, Offset: int64(off), Err: ErrDanglingReference, Detail: "offset is not inside any unit"}
	}
	return x.units[i], nil
}

// EntryAt returns the entry starting at off, in whichever unit holds it.
func (x *Index) EntryAt(off Offset) (*Entry, error) {
	u, err := x.UnitAt(off)
	if err != nil {
		return nil, err
	}
	return u.EntryAt(off)
}

// Section returns the named section as provided to New.
func (x *Index) Section(name string) ([]byte, bool) {
	return x.sections.Section(name)
}

func (x *Index) section(name string) []byte {
	b, _ := x.sections.Section(name)
	return b
}

// ResolveString returns the NUL terminated string at off in .debug_str.
func (x *Index) ResolveString(off uint64) (string, error) {
	return cstringAt(SectionStr, x.str, off)
}

// ResolveLineString returns the NUL terminated string at off in
// .debug_line_str.
func (x *Index) ResolveLineString(off uint64) (string, error) {
	return cstringAt(SectionLineStr, x.lstr, off)
}

func (x *Index) ByteOrder() binary.ByteOrder { return x.order }
