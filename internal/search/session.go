// Package search runs an interactive, case-insensitive text search over a
// line source and keeps a wrap-around cursor on its matches.
package search

import (
	"strings"

	"go.uber.org/zap"

	"comoview/internal/match"
)

// Source is the line sequence a Session searches. Both storage.Storage and
// filter.View satisfy it; line numbers reported by a Session are indices
// into the Source.
type Source interface {
	Len() int
	Bytes(i int) []byte
}

// Direction selects the cursor movement of Advance.
type Direction int

const (
	Next Direction = iota
	Previous
)

// Position is one match.
type Position struct {
	Line  int        // index into the Source
	Span  match.Span // byte range within the line
	Index int        // rank among all matches, from 0
}

// Session is one search over a Source. It is owned by a single goroutine.
type Session struct {
	src   Source
	log   *zap.Logger
	cache *spanCache

	query   string
	matcher *match.Matcher
	scratch []byte

	lines  []int // source indices of lines with at least one match
	before []int // matches on lines[:k], parallel to lines
	total  int

	k, j int // cursor: lines[k], span j
}

// NewSession returns an idle Session over src. cacheSize bounds the number
// of lines whose spans are cached; <= 0 uses DefaultCacheSize.
func NewSession(src Source, cacheSize int, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{src: src, log: log, cache: newSpanCache(cacheSize)}
}

// Start runs query over the whole source and puts the cursor on the first
// match. An empty query clears the session instead.
func (s *Session) Start(query string) {
	s.Clear()
	if query == "" {
		return
	}
	s.query = query
	s.matcher = match.NewString(strings.ToLower(query), true)

	for i, n := 0, s.src.Len(); i < n; i++ {
		s.scratch = match.FoldInto(s.scratch, s.src.Bytes(i))
		if c := s.matcher.CountPrepared(s.scratch); c > 0 {
			s.lines = append(s.lines, i)
			s.before = append(s.before, s.total)
			s.total += c
		}
	}
	s.log.Debug("search started",
		zap.String("query", query),
		zap.Int("matches", s.total),
		zap.Int("lines", len(s.lines)))
}

// Clear drops the query, matches, cursor and cache.
func (s *Session) Clear() {
	s.query = ""
	s.matcher = nil
	s.lines = nil
	s.before = nil
	s.total = 0
	s.k, s.j = 0, 0
	s.cache.purge()
}

// SetSource switches to a new source, for instance after the filters
// changed, and clears the session since its line numbers are stale.
func (s *Session) SetSource(src Source) {
	s.src = src
	s.Clear()
}

// Query returns the active query, or "" when idle.
func (s *Session) Query() string {
	return s.query
}

// Active reports whether a query is running.
func (s *Session) Active() bool {
	return s.matcher != nil
}

// Count returns the total number of matches.
func (s *Session) Count() int {
	return s.total
}

// MatchesFor returns the match spans of a source line, sorted by start. The
// result is cached; callers must not modify it.
func (s *Session) MatchesFor(line int) []match.Span {
	if s.matcher == nil {
		return nil
	}
	if spans, ok := s.cache.get(line); ok {
		return spans
	}
	spans := s.matcher.FindAll(s.src.Bytes(line))
	s.cache.set(line, spans)
	return spans
}

// Current returns the match under the cursor. ok is false without matches.
func (s *Session) Current() (Position, bool) {
	if s.total == 0 {
		return Position{}, false
	}
	line := s.lines[s.k]
	return Position{
		Line:  line,
		Span:  s.MatchesFor(line)[s.j],
		Index: s.before[s.k] + s.j,
	}, true
}

// Advance moves the cursor one match forward or back, wrapping around at
// either end, and returns the new position. It does nothing when there are
// no matches.
func (s *Session) Advance(dir Direction) (Position, bool) {
	if s.total == 0 {
		return Position{}, false
	}
	switch dir {
	case Next:
		s.j++
		if s.j >= len(s.MatchesFor(s.lines[s.k])) {
			s.k = (s.k + 1) % len(s.lines)
			s.j = 0
		}
	case Previous:
		s.j--
		if s.j < 0 {
			s.k = (s.k - 1 + len(s.lines)) % len(s.lines)
			s.j = len(s.MatchesFor(s.lines[s.k])) - 1
		}
	}
	return s.Current()
}

// IsCurrent reports whether the match at line and start is under the cursor.
func (s *Session) IsCurrent(line, start int) bool {
	p, ok := s.Current()
	return ok && p.Line == line && p.Span.Start == start
}
