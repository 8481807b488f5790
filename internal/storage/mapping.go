package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// File read buffer pool for the buffered fallback
var bufferPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 32*1024)
		return &b
	},
}

// mapFile maps f read-only. Tests replace it to force the buffered path.
var mapFile = func(f *os.File) (mmap.MMap, error) {
	return mmap.Map(f, mmap.RDONLY, 0)
}

// SourceMapping holds the bytes of one input file: a read-only memory
// mapping, or a heap copy when mapping was not possible.
type SourceMapping struct {
	path string
	data []byte
	mm   mmap.MMap
}

// MapFile builds a SourceMapping from an open file. The mapping outlives f,
// so the caller may close f as soon as MapFile returns. When mapping fails
// (zero length, unsupported filesystem, permissions) the file is read into
// memory instead; an error is returned only if that also fails.
func MapFile(f *os.File, path string) (*SourceMapping, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: is a directory", path)
	}

	if info.Size() > 0 {
		mm, err := mapFile(f)
		if err == nil {
			return &SourceMapping{path: path, data: mm, mm: mm}, nil
		}
	}

	data, err := readBuffered(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &SourceMapping{path: path, data: data}, nil
}

// NewBufferedMapping wraps bytes that are already in memory.
func NewBufferedMapping(path string, data []byte) *SourceMapping {
	return &SourceMapping{path: path, data: data}
}

// readBuffered copies the whole file into one heap buffer
func readBuffered(f *os.File, size int64) ([]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	bufp := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufp)

	var out bytes.Buffer
	if size > 0 {
		out.Grow(int(size))
	}
	if _, err := io.CopyBuffer(&out, f, *bufp); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Path returns the file path the mapping was built from.
func (m *SourceMapping) Path() string {
	return m.path
}

// Bytes returns the full content of the source.
func (m *SourceMapping) Bytes() []byte {
	return m.data
}

// Size returns the content length in bytes.
func (m *SourceMapping) Size() int64 {
	return int64(len(m.data))
}

// Mapped reports whether the content is memory mapped rather than buffered.
func (m *SourceMapping) Mapped() bool {
	return m.mm != nil
}

// Close releases the mapping. Views into it become invalid.
func (m *SourceMapping) Close() error {
	m.data = nil
	if m.mm == nil {
		return nil
	}
	err := m.mm.Unmap()
	m.mm = nil
	return err
}
