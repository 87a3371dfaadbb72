// Package elfimage gives access to the debug sections of an ELF image held
// in memory or behind an io.ReaderAt. It implements dwarf.Sections.
package elfimage

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/grafana/dwarfreader/pkg/dwarf"
)

var ErrSectionBounds = errors.New("section outside of image")

// Image is an opened ELF file. Section contents are read once and cached;
// uncompressed sections of images built from a byte slice are sub-slices of
// it. An Image is safe for concurrent use.
type Image struct {
	file *elf.File
	r    io.ReaderAt
	raw  []byte
	size int64

	mu       sync.Mutex
	sections map[string]sectionData
}

type sectionData struct {
	data []byte
	err  error
}

// Open reads the file at path into memory. gzip and zstd wrapped images are
// decompressed first.
func Open(path string) (*Image, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := FromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// FromBytes opens an image held in memory. The slice must not be modified
// while the Image is in use.
func FromBytes(b []byte) (*Image, error) {
	data, err := detectCompression(b)
	if err != nil {
		return nil, fmt.Errorf("detect compression: %w", err)
	}
	img, err := NewImage(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	img.raw = data
	return img, nil
}

// NewImage opens an image of the given size read through r.
func NewImage(r io.ReaderAt, size int64) (*Image, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("parse ELF file: %w", err)
	}
	img := &Image{
		file:     f,
		r:        r,
		size:     size,
		sections: make(map[string]sectionData),
	}
	for _, s := range f.Sections {
		if s.Type == elf.SHT_NOBITS || s.Type == elf.SHT_NULL {
			continue
		}
		if s.Offset > uint64(size) || s.FileSize > uint64(size)-s.Offset {
			return nil, fmt.Errorf("%s [%#x, %#x) in image of %#x bytes: %w",
				s.Name, s.Offset, s.Offset+s.FileSize, size, ErrSectionBounds)
		}
	}
	return img, nil
}

func (img *Image) File() *elf.File { return img.file }

func (img *Image) ByteOrder() binary.ByteOrder { return img.file.ByteOrder }

func (img *Image) Type() elf.Type { return img.file.Type }

// LoadSegments returns the PT_LOAD program headers.
func (img *Image) LoadSegments() []elf.ProgHeader {
	var out []elf.ProgHeader
	for _, p := range img.file.Progs {
		if p.Type == elf.PT_LOAD {
			out = append(out, p.ProgHeader)
		}
	}
	return out
}

// HasDebugInfo reports whether the image carries .debug_info in any form.
func (img *Image) HasDebugInfo() bool {
	return img.lookup(dwarf.SectionInfo) != nil
}

// Section implements dwarf.Sections. A section that is missing or cannot
// be decompressed is reported as absent; SectionData returns the reason.
func (img *Image) Section(name string) ([]byte, bool) {
	b, err := img.SectionData(name)
	if err != nil {
		return nil, false
	}
	return b, true
}

// SectionData returns the contents of the named section, decompressed. A
// .debug_* name also finds the legacy .zdebug_* variant.
func (img *Image) SectionData(name string) ([]byte, error) {
	img.mu.Lock()
	defer img.mu.Unlock()
	if sd, ok := img.sections[name]; ok {
		return sd.data, sd.err
	}
	data, err := img.load(name)
	img.sections[name] = sectionData{data: data, err: err}
	return data, err
}

func (img *Image) lookup(name string) *elf.Section {
	if s := img.file.Section(name); s != nil {
		return s
	}
	if rest, ok := strings.CutPrefix(name, ".debug_"); ok {
		return img.file.Section(".zdebug_" + rest)
	}
	return nil
}

func (img *Image) load(name string) ([]byte, error) {
	s := img.lookup(name)
	if s == nil {
		return nil, fmt.Errorf("%s: %w", name, dwarf.ErrSectionNotFound)
	}
	if s.Type == elf.SHT_NOBITS {
		return nil, nil
	}
	raw, err := img.read(s.Offset, s.FileSize)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Name, err)
	}
	switch {
	case s.Flags&elf.SHF_COMPRESSED != 0:
		data, err := decompressSection(raw, img.file.Class, img.file.ByteOrder)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name, err)
		}
		return data, nil
	case strings.HasPrefix(s.Name, ".zdebug_"):
		data, err := decompressZdebug(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name, err)
		}
		return data, nil
	}
	return raw, nil
}

func (img *Image) read(off, n uint64) ([]byte, error) {
	if img.raw != nil {
		return img.raw[off : off+n : off+n], nil
	}
	buf := make([]byte, n)
	if _, err := img.r.ReadAt(buf, int64(off)); err != nil {
		return nil, err
	}
	return buf, nil
}
