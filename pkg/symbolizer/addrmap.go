package symbolizer

import (
	"debug/elf"
	"fmt"

	"github.com/google/pprof/profile"

	"github.com/grafana/dwarfreader/pkg/elfimage"
)

// Layout holds what is needed to translate runtime addresses of a loaded
// image into the link-time addresses its debug information uses. Position
// independent images can be loaded anywhere, so their runtime addresses
// carry a base that has to be subtracted.
type Layout struct {
	Type     elf.Type
	Segments []elf.ProgHeader
}

func LayoutOf(img *elfimage.Image) Layout {
	return Layout{
		Type:     img.Type(),
		Segments: img.LoadSegments(),
	}
}

// Normalize translates a runtime address within mapping m. A nil mapping,
// or one that spans the whole address space, means the address is already
// a link-time address.
func (l Layout) Normalize(addr uint64, m *profile.Mapping) (uint64, error) {
	if m == nil || (m.Start == 0 && m.Offset == 0 && (m.Limit == 0 || m.Limit == ^uint64(0))) {
		return addr, nil
	}
	if addr < m.Start || addr >= m.Limit {
		return 0, fmt.Errorf("address 0x%x out of range for mapping [0x%x-0x%x]", addr, m.Start, m.Limit)
	}
	base, err := l.base(addr, m)
	if err != nil {
		return 0, fmt.Errorf("calculate base offset: %w", err)
	}
	return addr - base, nil
}

func (l Layout) base(addr uint64, m *profile.Mapping) (uint64, error) {
	switch l.Type {
	case elf.ET_EXEC:
		return 0, nil
	case elf.ET_DYN:
	default:
		return 0, fmt.Errorf("unsupported ELF type: %v", l.Type)
	}

	// Kernel or otherwise unrelocatable mappings.
	if m.Limit >= 1<<63 {
		return 0, nil
	}
	h := l.segment(addr - m.Start + m.Offset)
	if h == nil {
		return m.Start - m.Offset, nil
	}
	if h.Off == 0 {
		return m.Start - h.Vaddr, nil
	}
	return m.Start - m.Offset - (h.Vaddr - h.Off), nil
}

// segment returns the load segment containing the file offset off. When
// segments overlap in the file the one starting last wins.
func (l Layout) segment(off uint64) *elf.ProgHeader {
	var best *elf.ProgHeader
	for i := range l.Segments {
		h := &l.Segments[i]
		if off < h.Off || off >= h.Off+h.Memsz {
			continue
		}
		if best == nil || h.Off > best.Off {
			best = h
		}
	}
	return best
}
