// Package match implements Boyer-Moore-Horspool substring search over byte
// slices. It is shared by the text filters and the interactive search.
//
// Case folding is ASCII only: A-Z map to a-z and every other byte, including
// the bytes of multi-byte UTF-8 sequences, passes through unchanged. A pattern
// such as "é" therefore only matches its exact byte sequence.
package match

// Span is a half-open byte range [Start, End) of one occurrence.
type Span struct {
	Start int
	End   int
}

// Len returns the span length in bytes.
func (s Span) Len() int {
	return s.End - s.Start
}

// Matcher holds a preprocessed pattern. A Matcher reuses an internal scratch
// buffer for case-insensitive scans and must not be used from more than one
// goroutine at a time.
type Matcher struct {
	pattern    []byte
	skip       [256]int
	ignoreCase bool
	scratch    []byte
}

// New preprocesses pattern into a Matcher. When ignoreCase is set the pattern
// is lowered once here and every haystack is lowered before scanning.
func New(pattern []byte, ignoreCase bool) *Matcher {
	p := make([]byte, len(pattern))
	copy(p, pattern)
	if ignoreCase {
		Fold(p, p)
	}

	m := &Matcher{pattern: p, ignoreCase: ignoreCase}
	n := len(p)
	for i := range m.skip {
		m.skip[i] = n
	}
	// The last pattern byte is excluded so a mismatch never shifts by zero.
	for i := 0; i < n-1; i++ {
		m.skip[p[i]] = n - 1 - i
	}
	return m
}

// NewString is New for string patterns.
func NewString(pattern string, ignoreCase bool) *Matcher {
	return New([]byte(pattern), ignoreCase)
}

// Pattern returns the preprocessed pattern (lowered if the matcher ignores case).
func (m *Matcher) Pattern() []byte {
	return m.pattern
}

// IgnoreCase reports whether the matcher folds case.
func (m *Matcher) IgnoreCase() bool {
	return m.ignoreCase
}

// FindFirst returns the offset of the first occurrence of the pattern in
// haystack, or -1. An empty pattern matches at offset 0.
func (m *Matcher) FindFirst(haystack []byte) int {
	return m.IndexPrepared(m.prepare(haystack))
}

// Contains reports whether the pattern occurs in haystack.
func (m *Matcher) Contains(haystack []byte) bool {
	return m.FindFirst(haystack) >= 0
}

// FindAll returns every occurrence of the pattern in haystack, sorted by
// start offset. Overlapping occurrences are all reported: "aa" in "aaaa"
// yields three spans. An empty pattern yields no spans.
func (m *Matcher) FindAll(haystack []byte) []Span {
	return m.FindAllPrepared(m.prepare(haystack))
}

// IndexPrepared is FindFirst for a haystack the caller has already folded
// with Fold when the matcher ignores case. It never allocates.
func (m *Matcher) IndexPrepared(h []byte) int {
	p := m.pattern
	n := len(p)
	if n == 0 {
		return 0
	}
	if n > len(h) {
		return -1
	}

	last := n - 1
	for i := 0; i+n <= len(h); {
		if h[i+last] == p[last] && equalTail(h[i:i+last], p[:last]) {
			return i
		}
		i += m.skip[h[i+last]]
	}
	return -1
}

// FindAllPrepared is FindAll for a haystack already folded by the caller.
func (m *Matcher) FindAllPrepared(h []byte) []Span {
	p := m.pattern
	n := len(p)
	if n == 0 || n > len(h) {
		return nil
	}

	var spans []Span
	last := n - 1
	for i := 0; i+n <= len(h); {
		if h[i+last] == p[last] && equalTail(h[i:i+last], p[:last]) {
			spans = append(spans, Span{Start: i, End: i + n})
			// Step one byte after a hit so overlapping occurrences are kept.
			i++
			continue
		}
		i += m.skip[h[i+last]]
	}
	return spans
}

// CountPrepared returns len(FindAllPrepared(h)) without building the spans.
func (m *Matcher) CountPrepared(h []byte) int {
	p := m.pattern
	n := len(p)
	if n == 0 || n > len(h) {
		return 0
	}

	count := 0
	last := n - 1
	for i := 0; i+n <= len(h); {
		if h[i+last] == p[last] && equalTail(h[i:i+last], p[:last]) {
			count++
			i++
			continue
		}
		i += m.skip[h[i+last]]
	}
	return count
}

// prepare lowers haystack into the scratch buffer when the matcher ignores
// case. The buffer grows to the longest haystack seen and is never shrunk.
func (m *Matcher) prepare(haystack []byte) []byte {
	if !m.ignoreCase {
		return haystack
	}
	if cap(m.scratch) < len(haystack) {
		m.scratch = make([]byte, len(haystack))
	}
	m.scratch = m.scratch[:len(haystack)]
	Fold(m.scratch, haystack)
	return m.scratch
}

func equalTail(a, b []byte) bool {
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
