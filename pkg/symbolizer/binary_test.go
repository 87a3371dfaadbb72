package symbolizer

import (
	"debug/elf"
	"errors"
	"os"
	"testing"

	"github.com/go-kit/log"
	"github.com/google/pprof/profile"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"

	"github.com/grafana/dwarfreader/pkg/dwarf"
	"github.com/grafana/dwarfreader/pkg/elfimage"
)

func openImage(t *testing.T, path string) *elfimage.Image {
	t.Helper()
	img, err := elfimage.Open(path)
	require.NoError(t, err)
	return img
}

func openBinary(t *testing.T, path string, mutate ...func(*Config)) *Binary {
	t.Helper()
	cfg := DefaultConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	b, err := NewBinary(log.NewNopLogger(), cfg, openImage(t, path), "hello")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBinary_Resolve(t *testing.T) {
	tests := []struct {
		addr   uint64
		source string
		want   []Frame
	}{
		{
			addr:   0x1169,
			source: sourceDWARF,
			want: []Frame{
				{FunctionName: "square", FilePath: "/src/main.c", LineNumber: 7},
				{FunctionName: "compute", FilePath: "/src/main.c", LineNumber: 14},
			},
		},
		{
			addr:   0x1150,
			source: sourceDWARF,
			want:   []Frame{{FunctionName: "compute", FilePath: "/src/main.c", LineNumber: 11}},
		},
		{
			addr:   0x1040,
			source: sourceDWARF,
			want:   []Frame{{FunctionName: "main", FilePath: "/src/main.c", LineNumber: 19}},
		},
		{
			addr:   0x1045,
			source: sourceDWARF,
			want:   []Frame{{FunctionName: "main", FilePath: "/src/main.c", LineNumber: 20}},
		},
		{
			addr:   0x11a2,
			source: sourceDWARF,
			want:   []Frame{{FunctionName: "helper", FilePath: "/src/util.c", LineNumber: 3}},
		},
		{
			addr:   0x9000,
			source: sourceFallback,
			want:   []Frame{{FunctionName: "hello!0x9000"}},
		},
	}

	for _, fixture := range []string{dwarf4Fixture, dwarf5Fixture} {
		b := openBinary(t, fixture)
		for _, tt := range tests {
			t.Run(fixture, func(t *testing.T) {
				got, source := b.resolve(nil, tt.addr)
				require.Equal(t, tt.source, source, "0x%x", tt.addr)
				require.Equal(t, tt.want, got, "0x%x", tt.addr)
			})
		}
	}
}

func TestBinary_SymtabFallback(t *testing.T) {
	// _start comes from the C runtime, which carries no debug information.
	b := openBinary(t, dwarf5Fixture)
	got, source := b.resolve(nil, 0x1070)
	require.Equal(t, sourceSymtab, source)
	require.Len(t, got, 1)
	require.Equal(t, "_start", got[0].FunctionName)

	b = openBinary(t, dwarf5Fixture, func(cfg *Config) { cfg.SymtabFallback = false })
	got, source = b.resolve(nil, 0x1070)
	require.Equal(t, got, b.Resolve(0x1070))
	require.Equal(t, sourceFallback, source)
	require.Equal(t, []Frame{{FunctionName: "hello!0x1070"}}, got)
}

func TestBinary_BuildSymtab(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)

	b := openBinary(t, dwarf5Fixture)
	table, err := b.buildSymtab()
	require.NoError(t, err)
	defer table.Close()

	frames, err := table.Lookup(nil, 0x1070)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, "_start", frames[0].FunctionName)

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestBinary_IndexError(t *testing.T) {
	visitErr := errors.New("visit failed")
	skipped := multierror.Append(nil, &dwarf.UnitError{Offset: 0x10, Err: dwarf.ErrTruncatedUnit})

	tests := []struct {
		name     string
		skipBad  bool
		err      error
		expected error
	}{
		{name: "no error", skipBad: true},
		{name: "skipped units", skipBad: true, err: skipped},
		{name: "skipped units in strict mode", skipBad: false, err: skipped, expected: skipped},
		{name: "visitor error", skipBad: true, err: visitErr, expected: visitErr},
		{name: "visitor error among skipped units", skipBad: true, err: multierror.Append(nil, &dwarf.UnitError{Offset: 0x10, Err: dwarf.ErrTruncatedUnit}, visitErr), expected: visitErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Binary{cfg: Config{SkipBadUnits: tt.skipBad}}
			err := b.indexError(tt.err)
			if tt.expected == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestBinary_LookupFunction(t *testing.T) {
	b := openBinary(t, dwarf5Fixture)

	r, err := b.LookupFunction("compute")
	require.NoError(t, err)
	require.Equal(t, []dwarf.Range{{Low: 0x1150, High: 0x119f}}, r)

	r, err = b.LookupFunction("main")
	require.NoError(t, err)
	require.Equal(t, []dwarf.Range{{Low: 0x1040, High: 0x105d}}, r)

	// Only ever inlined, so it has no concrete instance.
	_, err = b.LookupFunction("square")
	require.ErrorIs(t, err, ErrFunctionNotFound)

	var names []string
	require.NoError(t, b.Functions(func(name string, _ dwarf.Range) bool {
		names = append(names, name)
		return true
	}))
	require.Equal(t, []string{"main", "compute", "helper"}, names)
	require.Empty(t, b.Skipped())
}

func TestBinary_DemangleName(t *testing.T) {
	const mangled = "_ZN3foo3barEi"
	tests := []struct {
		mode string
		want string
	}{
		{mode: "none", want: mangled},
		{mode: "simplified", want: "foo::bar"},
		{mode: "templates", want: "foo::bar"},
		{mode: "full", want: "foo::bar(int)"},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			b := &Binary{cfg: Config{Demangle: tt.mode}, demangle: demangleModes[tt.mode]}
			require.Equal(t, tt.want, b.demangleName(mangled))
			require.Equal(t, "plain_c_name", b.demangleName("plain_c_name"))
		})
	}
}

func TestLayout_Normalize(t *testing.T) {
	pie := Layout{
		Type: elf.ET_DYN,
		Segments: []elf.ProgHeader{
			{Type: elf.PT_LOAD, Off: 0, Vaddr: 0, Memsz: 0x628},
			{Type: elf.PT_LOAD, Off: 0x1000, Vaddr: 0x1000, Memsz: 0x1b5},
			{Type: elf.PT_LOAD, Off: 0x2000, Vaddr: 0x2000, Memsz: 0xfc},
			{Type: elf.PT_LOAD, Off: 0x2e00, Vaddr: 0x3e00, Memsz: 0x218},
		},
	}
	exec := Layout{Type: elf.ET_EXEC, Segments: pie.Segments}

	tests := []struct {
		name    string
		layout  Layout
		mapping *profile.Mapping
		addr    uint64
		want    uint64
		wantErr bool
	}{
		{
			name:    "text segment of a PIE",
			layout:  pie,
			mapping: &profile.Mapping{Start: pieStart, Limit: pieStart + 0x1000, Offset: 0x1000},
			addr:    pieStart + 0x169,
			want:    0x1169,
		},
		{
			name:    "first segment of a PIE",
			layout:  pie,
			mapping: &profile.Mapping{Start: 0x555555554000, Limit: 0x555555555000},
			addr:    0x555555554100,
			want:    0x100,
		},
		{
			name:    "segment with vaddr ahead of its offset",
			layout:  pie,
			mapping: &profile.Mapping{Start: 0x555555557e00, Limit: 0x555555558018, Offset: 0x2e00},
			addr:    0x555555557e10,
			want:    0x3e10,
		},
		{
			name:    "executable",
			layout:  exec,
			mapping: &profile.Mapping{Start: 0x401000, Limit: 0x402000, Offset: 0x1000},
			addr:    0x401234,
			want:    0x401234,
		},
		{
			name:   "no mapping",
			layout: pie,
			addr:   0x1169,
			want:   0x1169,
		},
		{
			name:    "outside the mapping",
			layout:  pie,
			mapping: &profile.Mapping{Start: pieStart, Limit: pieStart + 0x1000, Offset: 0x1000},
			addr:    pieStart + 0x1000,
			wantErr: true,
		},
		{
			name:    "relocatable object",
			layout:  Layout{Type: elf.ET_REL},
			mapping: &profile.Mapping{Start: 0x1000, Limit: 0x2000},
			addr:    0x1100,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.layout.Normalize(tt.addr, tt.mapping)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLayoutOf(t *testing.T) {
	l := LayoutOf(openImage(t, dwarf5Fixture))
	require.Equal(t, elf.ET_DYN, l.Type)
	require.Len(t, l.Segments, 4)
	require.Equal(t, uint64(0x3e00), l.Segments[3].Vaddr)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "no cache", mutate: func(c *Config) { c.MaxCachedBinaries = 0 }, wantErr: true},
		{name: "no concurrency", mutate: func(c *Config) { c.MaxConcurrency = 0 }, wantErr: true},
		{name: "negative abbrev cache", mutate: func(c *Config) { c.AbbrevCacheSize = -1 }, wantErr: true},
		{name: "disabled abbrev cache", mutate: func(c *Config) { c.AbbrevCacheSize = 0 }},
		{name: "unknown demangle mode", mutate: func(c *Config) { c.Demangle = "fancy" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if tt.wantErr {
				require.Error(t, cfg.Validate())
			} else {
				require.NoError(t, cfg.Validate())
			}
		})
	}
}
