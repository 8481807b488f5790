package storage

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// NoTimestamp marks a LogLine without a detected timestamp.
const NoTimestamp int64 = math.MinInt64

// MaxLineLength is the longest byte range a single LogLine can describe.
// Longer physical lines are split into consecutive LogLines.
const MaxLineLength = math.MaxUint32

// LogLine locates one line inside its source mapping. It never owns bytes.
type LogLine struct {
	Offset    uint64
	Length    uint32
	Source    uint32
	Timestamp int64 // Unix nanoseconds or NoTimestamp
}

// HasTimestamp reports whether a timestamp was detected for the line.
func (l LogLine) HasTimestamp() bool {
	return l.Timestamp != NoTimestamp
}

// End returns the exclusive end offset of the line.
func (l LogLine) End() uint64 {
	return l.Offset + uint64(l.Length)
}

// LineView is a zero-copy view of one line. The bytes belong to the Storage
// that produced the view and are only valid until that Storage is closed.
type LineView struct {
	data []byte
	ts   int64
}

// Bytes returns the raw line bytes without the terminator. Callers must not
// modify or retain them past the lifetime of the Storage.
func (v LineView) Bytes() []byte {
	return v.data
}

// Len returns the line length in bytes.
func (v LineView) Len() int {
	return len(v.data)
}

// Text renders the line as a string, replacing each invalid UTF-8 byte with
// U+FFFD. It never fails.
func (v LineView) Text() string {
	return lossy(v.data)
}

// Timestamp returns the detected timestamp of the line, if any.
func (v LineView) Timestamp() (time.Time, bool) {
	if v.ts == NoTimestamp {
		return time.Time{}, false
	}
	return time.Unix(0, v.ts).UTC(), true
}

func lossy(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b) + 8)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
		} else {
			sb.Write(b[:size])
		}
		b = b[size:]
	}
	return sb.String()
}
