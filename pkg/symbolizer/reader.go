package symbolizer

import (
	"bytes"
	"io"
)

func NewReaderAtCloser(data []byte) interface {
	io.ReadCloser
	io.ReaderAt
} {
	bytesReader := bytes.NewReader(data)
	return struct {
		io.ReadCloser
		io.ReaderAt
	}{
		ReadCloser: io.NopCloser(bytesReader),
		ReaderAt:   bytesReader,
	}
}
