package dwarf

import (
	"fmt"
	"path"
)

type LineFile struct {
	Name   string
	Dir    int
	MTime  uint64
	Length uint64
	MD5    []byte
}

// LineRow is one row of the line number matrix.
type LineRow struct {
	Address       uint64
	OpIndex       uint64
	File          int
	Line          int
	Column        int
	IsStmt        bool
	BasicBlock    bool
	PrologueEnd   bool
	EpilogueBegin bool
	ISA           uint64
	Discriminator uint64
	EndSequence   bool
}

// LineTable is a decoded line number program. File and directory indexes
// in rows refer to Files and Dirs directly: entry 0 is the compilation
// directory and the primary source file in every version.
type LineTable struct {
	Offset        Offset
	Version       uint16
	Dwarf64       bool
	AddrSize      int
	MinInstLength uint8
	MaxOpsPerInst uint8
	DefaultIsStmt bool
	LineBase      int8
	LineRange     uint8
	OpcodeBase    uint8
	StdOpLengths  []uint8

	Dirs  []string
	Files []LineFile
	// Rows in the order the program emitted them.
	Rows []LineRow
}

// LineOptions supplies the unit context a line number program depends on.
type LineOptions struct {
	// AddrSize is used by programs older than version 5, whose header does
	// not record it.
	AddrSize int
	CompDir  string
	CompName string
	// String resolves string-class values found in version 5 headers.
	String func(Value) (string, error)
}

// FilePath returns the path of file i joined with its directory, or an
// empty string when i is out of range.
func (t *LineTable) FilePath(i int) string {
	if i < 0 || i >= len(t.Files) {
		return ""
	}
	f := t.Files[i]
	if path.IsAbs(f.Name) || f.Dir < 0 || f.Dir >= len(t.Dirs) {
		return f.Name
	}
	dir := t.Dirs[f.Dir]
	if f.Dir != 0 && !path.IsAbs(dir) {
		dir = path.Join(t.Dirs[0], dir)
	}
	return path.Join(dir, f.Name)
}

// ParseLineTable decodes the line number program at the cursor position.
func ParseLineTable(c *Cursor, opts LineOptions) (*LineTable, error) {
	t := &LineTable{Offset: Offset(c.Offset())}
	length, dwarf64, err := c.readInitialLength()
	if err != nil {
		return nil, err
	}
	t.Dwarf64 = dwarf64
	prog, err := c.checkedSlice(length)
	if err != nil {
		return nil, err
	}
	if t.Version, err = prog.U16(); err != nil {
		return nil, err
	}
	if t.Version < 2 || t.Version > 5 {
		return nil, &FormatError{Section: c.Section(), Offset: int64(t.Offset), Err: ErrUnsupportedVersion, Detail: fmt.Sprintf("line table version %d", t.Version)}
	}
	f := unitFormat{version: t.Version, addrSize: opts.AddrSize, dwarf64: dwarf64}
	if t.Version >= 5 {
		addrSize, err := prog.U8()
		if err != nil {
			return nil, err
		}
		if _, err := prog.U8(); err != nil { // segment selector size
			return nil, err
		}
		f.addrSize = int(addrSize)
	}
	t.AddrSize = f.addrSize

	headerLength, err := prog.Uint(f.offsetSize())
	if err != nil {
		return nil, err
	}
	hdr, err := prog.checkedSlice(headerLength)
	if err != nil {
		return nil, err
	}
	if err := t.parseHeader(hdr, f, opts); err != nil {
		return nil, err
	}
	if err := t.run(prog); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *LineTable) parseHeader(c *Cursor, f unitFormat, opts LineOptions) error {
	var err error
	if t.MinInstLength, err = c.U8(); err != nil {
		return err
	}
	t.MaxOpsPerInst = 1
	if t.Version >= 4 {
		if t.MaxOpsPerInst, err = c.U8(); err != nil {
			return err
		}
	}
	defaultIsStmt, err := c.U8()
	if err != nil {
		return err
	}
	t.DefaultIsStmt = defaultIsStmt != 0
	lineBase, err := c.U8()
	if err != nil {
		return err
	}
	t.LineBase = int8(lineBase)
	if t.LineRange, err = c.U8(); err != nil {
		return err
	}
	if t.OpcodeBase, err = c.U8(); err != nil {
		return err
	}
	switch {
	case t.MaxOpsPerInst == 0:
		return &FormatError{Section: c.Section(), Offset: int64(t.Offset), Err: ErrMalformedUnit, Detail: "maximum_operations_per_instruction is 0"}
	case t.LineRange == 0:
		return &FormatError{Section: c.Section(), Offset: int64(t.Offset), Err: ErrMalformedUnit, Detail: "line_range is 0"}
	case t.OpcodeBase == 0:
		return &FormatError{Section: c.Section(), Offset: int64(t.Offset), Err: ErrMalformedUnit, Detail: "opcode_base is 0"}
	}
	if t.StdOpLengths, err = c.Bytes(int(t.OpcodeBase) - 1); err != nil {
		return err
	}
	if t.Version >= 5 {
		return t.parseEntriesV5(c, f, opts)
	}
	return t.parseEntries(c, opts)
}

// parseEntries reads the include_directories and file_names lists of
// version 2 to 4 headers. Index 0, implicit in those versions, is filled in
// from the unit.
func (t *LineTable) parseEntries(c *Cursor, opts LineOptions) error {
	t.Dirs = append(t.Dirs, opts.CompDir)
	for {
		dir, err := c.CString()
		if err != nil {
			return err
		}
		if len(dir) == 0 {
			break
		}
		t.Dirs = append(t.Dirs, string(dir))
	}
	t.Files = append(t.Files, LineFile{Name: opts.CompName})
	for {
		name, err := c.CString()
		if err != nil {
			return err
		}
		if len(name) == 0 {
			return nil
		}
		file, err := readFileEntry(c, string(name))
		if err != nil {
			return err
		}
		t.Files = append(t.Files, file)
	}
}

func readFileEntry(c *Cursor, name string) (LineFile, error) {
	file := LineFile{Name: name}
	dir, err := c.ULEB128()
	if err != nil {
		return file, err
	}
	file.Dir = int(dir)
	if file.MTime, err = c.ULEB128(); err != nil {
		return file, err
	}
	if file.Length, err = c.ULEB128(); err != nil {
		return file, err
	}
	return file, nil
}

type entryFormat struct {
	content uint64
	form    Form
}

func (t *LineTable) parseEntriesV5(c *Cursor, f unitFormat, opts LineOptions) error {
	dirs, err := readEntriesV5(c, f, opts)
	if err != nil {
		return fmt.Errorf("directories: %w", err)
	}
	for _, d := range dirs {
		t.Dirs = append(t.Dirs, d.Name)
	}
	if t.Files, err = readEntriesV5(c, f, opts); err != nil {
		return fmt.Errorf("file names: %w", err)
	}
	return nil
}

func readEntriesV5(c *Cursor, f unitFormat, opts LineOptions) ([]LineFile, error) {
	n, err := c.U8()
	if err != nil {
		return nil, err
	}
	formats := make([]entryFormat, n)
	for i := range formats {
		content, err := c.ULEB128()
		if err != nil {
			return nil, err
		}
		form, err := c.ULEB128()
		if err != nil {
			return nil, err
		}
		formats[i] = entryFormat{content: content, form: Form(form)}
	}
	count, err := c.ULEB128()
	if err != nil {
		return nil, err
	}
	if count > uint64(c.Remaining()) {
		return nil, &FormatError{Section: c.Section(), Offset: c.Offset(), Err: ErrOutOfBounds, Detail: fmt.Sprintf("%d entries", count)}
	}
	entries := make([]LineFile, 0, count)
	for i := uint64(0); i < count; i++ {
		var e LineFile
		for _, ef := range formats {
			v, err := readForm(c, ef.form, 0, f, true)
			if err != nil {
				return nil, err
			}
			switch ef.content {
			case lnctPath:
				if e.Name, err = lineString(v, opts); err != nil {
					return nil, err
				}
			case lnctDirectoryIndex:
				n, _ := v.Unsigned()
				e.Dir = int(n)
			case lnctTimestamp:
				if v.Kind == KindBlock {
					e.MTime = leUint(v.Bytes)
				} else {
					e.MTime, _ = v.Unsigned()
				}
			case lnctSize:
				e.Length, _ = v.Unsigned()
			case lnctMD5:
				e.MD5 = v.Bytes
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func lineString(v Value, opts LineOptions) (string, error) {
	if v.Kind == KindString {
		return v.Str, nil
	}
	if opts.String == nil {
		return "", fmt.Errorf("cannot resolve %s value without a unit", v.Kind)
	}
	return opts.String(v)
}

func leUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// lineState is the line number state machine.
type lineState struct {
	t   *LineTable
	row LineRow
}

func (s *lineState) reset() {
	s.row = LineRow{
		File:   1,
		Line:   1,
		IsStmt: s.t.DefaultIsStmt,
	}
}

func (s *lineState) emit() {
	s.t.Rows = append(s.t.Rows, s.row)
	s.row.BasicBlock = false
	s.row.PrologueEnd = false
	s.row.EpilogueBegin = false
	s.row.Discriminator = 0
}

// advance moves the address by the given operation advance.
func (s *lineState) advance(n uint64) {
	minInst := uint64(s.t.MinInstLength)
	if s.t.MaxOpsPerInst == 1 {
		s.row.Address += minInst * n
		return
	}
	maxOps := uint64(s.t.MaxOpsPerInst)
	s.row.Address += minInst * ((s.row.OpIndex + n) / maxOps)
	s.row.OpIndex = (s.row.OpIndex + n) % maxOps
}

func (t *LineTable) run(c *Cursor) error {
	s := &lineState{t: t}
	s.reset()
	for c.Remaining() > 0 {
		at := c.Offset()
		op, err := c.U8()
		if err != nil {
			return err
		}
		if op >= t.OpcodeBase {
			adjusted := int(op - t.OpcodeBase)
			s.advance(uint64(adjusted / int(t.LineRange)))
			s.row.Line += int(t.LineBase) + adjusted%int(t.LineRange)
			s.emit()
			continue
		}
		switch op {
		case 0:
			if err := s.extended(c, at); err != nil {
				return err
			}
		case lnsCopy:
			s.emit()
		case lnsAdvancePC:
			n, err := c.ULEB128()
			if err != nil {
				return err
			}
			s.advance(n)
		case lnsAdvanceLine:
			n, err := c.SLEB128()
			if err != nil {
				return err
			}
			s.row.Line += int(n)
		case lnsSetFile:
			n, err := c.ULEB128()
			if err != nil {
				return err
			}
			s.row.File = int(n)
		case lnsSetColumn:
			n, err := c.ULEB128()
			if err != nil {
				return err
			}
			s.row.Column = int(n)
		case lnsNegateStmt:
			s.row.IsStmt = !s.row.IsStmt
		case lnsSetBasicBlock:
			s.row.BasicBlock = true
		case lnsConstAddPC:
			s.advance(uint64((255 - int(t.OpcodeBase)) / int(t.LineRange)))
		case lnsFixedAdvancePC:
			n, err := c.U16()
			if err != nil {
				return err
			}
			s.row.Address += uint64(n)
			s.row.OpIndex = 0
		case lnsSetPrologueEnd:
			s.row.PrologueEnd = true
		case lnsSetEpilogueBegin:
			s.row.EpilogueBegin = true
		case lnsSetISA:
			n, err := c.ULEB128()
			if err != nil {
				return err
			}
			s.row.ISA = n
		default:
			// Unknown standard opcode: skip its declared ULEB operands.
			for i := uint8(0); i < t.StdOpLengths[op-1]; i++ {
				if _, err := c.ULEB128(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *lineState) extended(c *Cursor, at int64) error {
	n, err := c.ULEB128()
	if err != nil {
		return err
	}
	if n == 0 {
		return &FormatError{Section: c.Section(), Offset: at, Err: ErrMalformedUnit, Detail: "empty extended opcode"}
	}
	if n > uint64(c.Remaining()) {
		return &FormatError{Section: c.Section(), Offset: at, Err: ErrOutOfBounds, Detail: fmt.Sprintf("extended opcode of %d bytes, %d remaining", n, c.Remaining())}
	}
	op, err := c.Slice(int(n))
	if err != nil {
		return err
	}
	sub, _ := op.U8()
	switch sub {
	case lneEndSequence:
		s.row.EndSequence = true
		s.emit()
		s.reset()
	case lneSetAddress:
		addr, err := op.Uint(op.Remaining())
		if err != nil {
			return err
		}
		s.row.Address = addr
		s.row.OpIndex = 0
	case lneDefineFile:
		name, err := op.CString()
		if err != nil {
			return err
		}
		file, err := readFileEntry(op, string(name))
		if err != nil {
			return err
		}
		s.t.Files = append(s.t.Files, file)
	case lneSetDiscriminator:
		d, err := op.ULEB128()
		if err != nil {
			return err
		}
		s.row.Discriminator = d
	}
	return nil
}
