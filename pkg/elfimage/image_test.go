package elfimage

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/grafana/dwarfreader/pkg/dwarf"
)

const (
	dwarf4Fixture     = "../dwarf/testdata/hello-dwarf4"
	dwarf5Fixture     = "../dwarf/testdata/hello-dwarf5"
	dwarf5ZlibFixture = "../dwarf/testdata/hello-dwarf5-zlib"
	zdebugFixture     = "testdata/hello-zdebug"
	zstdFixture       = "testdata/hello-zstd"

	dwarf5BuildID = "34de895c9111f413938ecf9d946183d0366c4c6a"
)

var debugSections = []string{
	dwarf.SectionInfo,
	dwarf.SectionAbbrev,
	dwarf.SectionLine,
	dwarf.SectionStr,
}

func stdlibSection(t *testing.T, path, name string) []byte {
	t.Helper()
	f, err := elf.Open(path)
	require.NoError(t, err)
	defer f.Close()
	s := f.Section(name)
	require.NotNil(t, s, "%s in %s", name, path)
	b, err := s.Data()
	require.NoError(t, err)
	return b
}

func TestOpen(t *testing.T) {
	img, err := Open(dwarf5Fixture)
	require.NoError(t, err)
	require.Equal(t, elf.ET_DYN, img.Type())
	require.Equal(t, binary.LittleEndian, img.ByteOrder())
	require.Len(t, img.LoadSegments(), 4)
	require.True(t, img.HasDebugInfo())

	id, err := img.BuildID()
	require.NoError(t, err)
	require.True(t, id.GNU())
	require.Equal(t, dwarf5BuildID, id.ID)

	info, ok := img.Section(dwarf.SectionInfo)
	require.True(t, ok)
	require.Len(t, info, 0x1e2)
	again, _ := img.Section(dwarf.SectionInfo)
	require.Same(t, &info[0], &again[0])

	_, ok = img.Section(".debug_nonexistent")
	require.False(t, ok)
	_, err = img.SectionData(".debug_nonexistent")
	require.ErrorIs(t, err, dwarf.ErrSectionNotFound)

	_, err = Open("testdata/does-not-exist")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCompressedSections(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		reference string
	}{
		{name: "SHF_COMPRESSED zlib", path: dwarf5ZlibFixture, reference: dwarf5ZlibFixture},
		{name: "SHF_COMPRESSED zstd", path: zstdFixture, reference: dwarf5Fixture},
		{name: "zdebug", path: zdebugFixture, reference: dwarf4Fixture},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Open(tt.path)
			require.NoError(t, err)
			for _, name := range debugSections {
				got, err := img.SectionData(name)
				require.NoError(t, err, name)
				require.Equal(t, stdlibSection(t, tt.reference, name), got, name)
			}

			x, err := dwarf.New(img)
			require.NoError(t, err)
			require.Len(t, x.Units(), 2)
			require.NoError(t, x.ForEachUnit(func(u *dwarf.Unit) error {
				_, err := u.LineTable()
				return err
			}))
		})
	}
}

func TestFromBytes_Wrapped(t *testing.T) {
	raw, err := os.ReadFile(dwarf5Fixture)
	require.NoError(t, err)

	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, err = w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zst := enc.EncodeAll(raw, nil)
	require.NoError(t, enc.Close())

	for name, b := range map[string][]byte{"plain": raw, "gzip": gz.Bytes(), "zstd": zst} {
		t.Run(name, func(t *testing.T) {
			img, err := FromBytes(b)
			require.NoError(t, err)
			id, err := img.BuildID()
			require.NoError(t, err)
			require.Equal(t, dwarf5BuildID, id.ID)
		})
	}

	_, err = FromBytes([]byte{0x1f, 0x8b, 0x00})
	require.Error(t, err)
	_, err = FromBytes([]byte("not an elf file"))
	require.Error(t, err)
}

func TestNewImage_ReaderAt(t *testing.T) {
	raw, err := os.ReadFile(dwarf5Fixture)
	require.NoError(t, err)
	img, err := NewImage(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	got, err := img.SectionData(dwarf.SectionStr)
	require.NoError(t, err)
	require.Equal(t, stdlibSection(t, dwarf5Fixture, dwarf.SectionStr), got)
}

func TestNewImage_SectionOutOfBounds(t *testing.T) {
	raw, err := os.ReadFile(dwarf5Fixture)
	require.NoError(t, err)

	// The section header table sits at the end of the file, a couple of
	// bytes after .shstrtab ends. Claiming a size that stops well short of it
	// leaves .shstrtab hanging past the end of the image.
	shoff := binary.LittleEndian.Uint64(raw[0x28:])
	_, err = NewImage(bytes.NewReader(raw), int64(shoff)-0x10)
	require.ErrorIs(t, err, ErrSectionBounds)
}

func TestDecompressSection_Errors(t *testing.T) {
	hdr := make([]byte, 24)
	binary.LittleEndian.PutUint32(hdr, 7)
	_, err := decompressSection(hdr, elf.ELFCLASS64, binary.LittleEndian)
	require.ErrorIs(t, err, ErrUnsupportedCompression)

	_, err = decompressSection(hdr[:10], elf.ELFCLASS64, binary.LittleEndian)
	require.Error(t, err)

	_, err = decompressZdebug([]byte("ZLIX\x00\x00\x00\x00\x00\x00\x00\x01"))
	require.ErrorIs(t, err, ErrUnsupportedCompression)
}
