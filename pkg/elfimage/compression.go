package elfimage

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

var ErrUnsupportedCompression = errors.New("unsupported section compression")

// detectCompression checks if data is compressed and decompresses it if needed
func detectCompression(data []byte) ([]byte, error) {
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		defer r.Close()

		decompressed, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("decompress gzip data: %w", err)
		}
		return decompressed, nil
	}

	// zstd frame magic: 0x28, 0xb5, 0x2f, 0xfd
	if len(data) >= 4 && data[0] == 0x28 && data[1] == 0xb5 && data[2] == 0x2f && data[3] == 0xfd {
		return decodeZstd(data, 0)
	}

	return data, nil
}

// decompressSection inflates a SHF_COMPRESSED section: an Elf_Chdr followed
// by the compressed stream.
func decompressSection(raw []byte, class elf.Class, order binary.ByteOrder) ([]byte, error) {
	var (
		typ  elf.CompressionType
		size uint64
		hdr  int
	)
	switch class {
	case elf.ELFCLASS32:
		if len(raw) < 12 {
			return nil, fmt.Errorf("compression header: %w", io.ErrUnexpectedEOF)
		}
		typ = elf.CompressionType(order.Uint32(raw))
		size = uint64(order.Uint32(raw[4:]))
		hdr = 12
	default:
		if len(raw) < 24 {
			return nil, fmt.Errorf("compression header: %w", io.ErrUnexpectedEOF)
		}
		typ = elf.CompressionType(order.Uint32(raw))
		size = order.Uint64(raw[8:])
		hdr = 24
	}

	var (
		out []byte
		err error
	)
	switch typ {
	case elf.COMPRESS_ZLIB:
		out, err = inflate(raw[hdr:], size)
	case elf.COMPRESS_ZSTD:
		out, err = decodeZstd(raw[hdr:], size)
	default:
		return nil, fmt.Errorf("%w: type %d", ErrUnsupportedCompression, typ)
	}
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) != size {
		return nil, fmt.Errorf("decompressed %d bytes, header says %d", len(out), size)
	}
	return out, nil
}

// decompressZdebug inflates a legacy .zdebug_* section: "ZLIB", a 64-bit
// big endian size, then a zlib stream.
func decompressZdebug(raw []byte) ([]byte, error) {
	if len(raw) < 12 || !bytes.Equal(raw[:4], []byte("ZLIB")) {
		return nil, fmt.Errorf("%w: missing ZLIB header", ErrUnsupportedCompression)
	}
	size := binary.BigEndian.Uint64(raw[4:12])
	out, err := inflate(raw[12:], size)
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) != size {
		return nil, fmt.Errorf("decompressed %d bytes, header says %d", len(out), size)
	}
	return out, nil
}

func inflate(data []byte, sizeHint uint64) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create zlib reader: %w", err)
	}
	defer r.Close()
	buf := bytes.NewBuffer(make([]byte, 0, capHint(sizeHint, len(data))))
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("decompress zlib data: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeZstd(data []byte, sizeHint uint64) ([]byte, error) {
	d, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer d.Close()
	out, err := d.DecodeAll(data, make([]byte, 0, capHint(sizeHint, len(data))))
	if err != nil {
		return nil, fmt.Errorf("decompress zstd data: %w", err)
	}
	return out, nil
}

// capHint bounds a size taken from an untrusted header.
func capHint(hint uint64, compressed int) int {
	const maxRatio = 64
	if limit := uint64(compressed) * maxRatio; hint > limit {
		return int(limit)
	}
	return int(hint)
}
