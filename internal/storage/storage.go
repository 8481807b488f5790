// Package storage keeps log files as memory mappings plus a compact line
// index, and serves zero-copy views of individual lines.
//
// A Storage is built in two phases. While loading, sources are appended one
// at a time and lines keep discovery order. Seal then orders all lines
// chronologically and freezes the Storage; from then on it is read-only and
// may be shared by any number of readers without locking.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"os"
	"strings"
)

var (
	// ErrIndexOutOfRange is the panic value cause for Get on a bad index.
	ErrIndexOutOfRange = errors.New("storage: line index out of range")
	// ErrSealed is the panic value cause for Append after Seal.
	ErrSealed = errors.New("storage: append to sealed storage")
)

// Storage owns every SourceMapping and the ordered line index across them.
type Storage struct {
	sources []*SourceMapping
	lines   []LogLine
	size    int64
	sealed  bool
}

// New returns an empty Storage ready for Append.
func New() *Storage {
	return &Storage{}
}

// Open loads paths sequentially and seals the result. Files that cannot be
// opened or read are skipped; they are reported in a *LoadError returned
// alongside the usable Storage, which is never nil.
func Open(paths []string) (*Storage, error) {
	s := New()
	var failures []FileError
	for _, path := range paths {
		if err := s.appendPath(path); err != nil {
			failures = append(failures, FileError{Path: path, Err: err})
		}
	}
	s.Seal()
	if len(failures) > 0 {
		return s, &LoadError{Failures: failures}
	}
	return s, nil
}

func (s *Storage) appendPath(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	src, err := MapFile(f, path)
	f.Close()
	if err != nil {
		return err
	}
	s.Append(src)
	return nil
}

// Append takes ownership of src, indexes its lines with timestamps and
// returns the number of lines added. It panics if the Storage is sealed.
func (s *Storage) Append(src *SourceMapping) int {
	if s.sealed {
		panic(ErrSealed)
	}
	id := uint32(len(s.sources))
	s.sources = append(s.sources, src)
	s.size += src.Size()

	before := len(s.lines)
	s.lines = indexLines(s.lines, src.Bytes(), id)
	return len(s.lines) - before
}

// indexLines scans data for line terminators and appends one LogLine per
// line. The terminator is "\n" with an optional preceding "\r"; a final line
// without terminator is kept.
func indexLines(lines []LogLine, data []byte, source uint32) []LogLine {
	var start uint64
	n := uint64(len(data))
	for start < n {
		end := n
		next := n
		if i := bytes.IndexByte(data[start:], '\n'); i >= 0 {
			end = start + uint64(i)
			next = end + 1
			if end > start && data[end-1] == '\r' {
				end--
			}
		}
		lines = appendLine(lines, data, start, end, source)
		start = next
	}
	return lines
}

// appendLine records [start, end) as one or more LogLines, splitting at
// MaxLineLength.
func appendLine(lines []LogLine, data []byte, start, end uint64, source uint32) []LogLine {
	ts, _ := DetectTimestamp(data[start:end])
	for {
		length := end - start
		if length > MaxLineLength {
			length = MaxLineLength
		}
		lines = append(lines, LogLine{Offset: start, Length: uint32(length), Source: source, Timestamp: ts})
		start += length
		if start >= end {
			return lines
		}
		// continuation chunks carry no timestamp of their own
		ts = NoTimestamp
	}
}

// Seal orders lines chronologically and freezes the Storage. Calling Seal
// more than once is a no-op.
func (s *Storage) Seal() {
	if s.sealed {
		return
	}
	s.lines = chronological(s.lines)
	s.sealed = true
}

// Sealed reports whether Seal has run.
func (s *Storage) Sealed() bool {
	return s.sealed
}

// Len returns the number of lines.
func (s *Storage) Len() int {
	return len(s.lines)
}

// Get returns a view of line i. It panics with ErrIndexOutOfRange when i is
// not in [0, Len()).
func (s *Storage) Get(i int) LineView {
	l := s.line(i)
	data := s.sources[l.Source].data
	return LineView{data: data[l.Offset:l.End():l.End()], ts: l.Timestamp}
}

// Bytes returns the raw bytes of line i; it is Get(i).Bytes().
func (s *Storage) Bytes(i int) []byte {
	return s.Get(i).Bytes()
}

// Line returns the index entry of line i.
func (s *Storage) Line(i int) LogLine {
	return s.line(i)
}

// SourcePath returns the path of the file line i came from.
func (s *Storage) SourcePath(i int) string {
	return s.sources[s.line(i).Source].path
}

func (s *Storage) line(i int) LogLine {
	if i < 0 || i >= len(s.lines) {
		panic(fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(s.lines)))
	}
	return s.lines[i]
}

// All yields every line with its index in storage order. The sequence is
// lazy and may be ranged over any number of times.
func (s *Storage) All() iter.Seq2[int, LineView] {
	return func(yield func(int, LineView) bool) {
		for i := range s.lines {
			if !yield(i, s.Get(i)) {
				return
			}
		}
	}
}

// Lines yields every line view in storage order.
func (s *Storage) Lines() iter.Seq[LineView] {
	return func(yield func(LineView) bool) {
		for i := range s.lines {
			if !yield(s.Get(i)) {
				return
			}
		}
	}
}

// Sources returns the number of sources held.
func (s *Storage) Sources() int {
	return len(s.sources)
}

// Source returns source i.
func (s *Storage) Source(i int) *SourceMapping {
	return s.sources[i]
}

// Size returns the total number of source bytes held.
func (s *Storage) Size() int64 {
	return s.size
}

// Close releases every mapping. All views become invalid and the Storage is
// left empty.
func (s *Storage) Close() error {
	var errs []error
	for _, src := range s.sources {
		if err := src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("unmap %s: %w", src.path, err))
		}
	}
	s.sources = nil
	s.lines = nil
	s.size = 0
	return errors.Join(errs...)
}

// FileError records one file that could not be loaded.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e FileError) Unwrap() error {
	return e.Err
}

// LoadError lists the files Open skipped.
type LoadError struct {
	Failures []FileError
}

func (e *LoadError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%d file(s) could not be loaded: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *LoadError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}
