package storage

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edsrzf/mmap-go"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func openAll(t *testing.T, paths ...string) *Storage {
	t.Helper()
	s, err := Open(paths)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func texts(s *Storage) []string {
	var out []string
	for v := range s.Lines() {
		out = append(out, string(v.Bytes()))
	}
	return out
}

func TestOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	content := "first line\nsecond line\r\n\nfourth\n"
	path := writeFile(t, dir, "app.log", content)

	s := openAll(t, path)
	want := []string{"first line", "second line", "", "fourth"}
	if s.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", s.Len(), len(want))
	}
	for i, w := range want {
		if got := string(s.Get(i).Bytes()); got != w {
			t.Errorf("Get(%d) = %q, want %q", i, got, w)
		}
		if got := s.SourcePath(i); got != path {
			t.Errorf("SourcePath(%d) = %q, want %q", i, got, path)
		}
	}
	if s.Size() != int64(len(content)) {
		t.Fatalf("Size() = %d, want %d", s.Size(), len(content))
	}
}

func TestOpenLineRangesStayInsideSource(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.log", "x\nyy\nzzz")
	b := writeFile(t, dir, "b.log", "\n\n1234\n")

	s := openAll(t, a, b)
	for i := 0; i < s.Len(); i++ {
		l := s.Line(i)
		if l.End() > uint64(s.Source(int(l.Source)).Size()) {
			t.Fatalf("line %d range [%d,%d) exceeds source size %d", i, l.Offset, l.End(), s.Source(int(l.Source)).Size())
		}
	}
}

func TestOpenBoundaries(t *testing.T) {
	dir := t.TempDir()

	t.Run("zero byte file", func(t *testing.T) {
		s := openAll(t, writeFile(t, dir, "empty.log", ""))
		if s.Len() != 0 {
			t.Fatalf("Len() = %d, want 0", s.Len())
		}
		if s.Source(0).Mapped() {
			t.Fatal("zero byte file should not be mapped")
		}
	})

	t.Run("no trailing newline", func(t *testing.T) {
		s := openAll(t, writeFile(t, dir, "tail.log", "one\ntwo"))
		if got := texts(s); len(got) != 2 || got[1] != "two" {
			t.Fatalf("lines = %q, want [one two]", got)
		}
	})

	t.Run("lone carriage return is content", func(t *testing.T) {
		s := openAll(t, writeFile(t, dir, "cr.log", "a\rb\r\nc\r"))
		want := []string{"a\rb", "c\r"}
		if got := texts(s); strings.Join(got, "|") != strings.Join(want, "|") {
			t.Fatalf("lines = %q, want %q", got, want)
		}
	})
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.log", "2026-01-01 00:00:02 b\n2026-01-01 00:00:01 a\nplain\n")
	b := writeFile(t, dir, "b.log", "hello\nworld\n")

	first := openAll(t, a, b)
	second := openAll(t, a, b)
	if first.Len() != second.Len() {
		t.Fatalf("line counts differ: %d vs %d", first.Len(), second.Len())
	}
	for i := 0; i < first.Len(); i++ {
		if !bytes.Equal(first.Bytes(i), second.Bytes(i)) {
			t.Fatalf("line %d differs: %q vs %q", i, first.Bytes(i), second.Bytes(i))
		}
	}
}

func TestOpenSkipsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.log", "ok\n")
	missing := filepath.Join(dir, "missing.log")

	s, err := Open([]string{missing, good, dir})
	if s == nil {
		t.Fatal("Open returned nil storage")
	}
	defer s.Close()

	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("err = %v, want *LoadError", err)
	}
	if len(loadErr.Failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(loadErr.Failures))
	}
	if loadErr.Failures[0].Path != missing {
		t.Fatalf("first failure = %q, want %q", loadErr.Failures[0].Path, missing)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("errors.Is(err, fs.ErrNotExist) = false for %v", err)
	}
	if s.Len() != 1 || string(s.Bytes(0)) != "ok" {
		t.Fatalf("lines = %q, want [ok]", texts(s))
	}
}

func TestOpenAllFailYieldsEmptyStorage(t *testing.T) {
	s, err := Open([]string{filepath.Join(t.TempDir(), "nope.log")})
	if err == nil {
		t.Fatal("expected a load error")
	}
	if s.Len() != 0 || !s.Sealed() {
		t.Fatalf("Len() = %d sealed = %v, want 0 and sealed", s.Len(), s.Sealed())
	}
	if n := len(texts(s)); n != 0 {
		t.Fatalf("iteration yielded %d lines", n)
	}
}

func TestMapFileFallsBackToBufferedRead(t *testing.T) {
	orig := mapFile
	mapFile = func(*os.File) (mmap.MMap, error) { return nil, errors.New("mapping unsupported") }
	t.Cleanup(func() { mapFile = orig })

	path := writeFile(t, t.TempDir(), "fallback.log", "alpha\nbeta\n")
	s := openAll(t, path)
	if s.Source(0).Mapped() {
		t.Fatal("source reports mapped after forced mapping failure")
	}
	if got := texts(s); strings.Join(got, ",") != "alpha,beta" {
		t.Fatalf("lines = %q, want [alpha beta]", got)
	}
}

func TestMapFileUsesMapping(t *testing.T) {
	path := writeFile(t, t.TempDir(), "mapped.log", "mapped\n")
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	src, err := MapFile(f, path)
	f.Close()
	if err != nil {
		t.Fatalf("MapFile: %v", err)
	}
	defer src.Close()

	if !src.Mapped() {
		t.Fatal("regular file was not mapped")
	}
	if got := string(src.Bytes()); got != "mapped\n" {
		t.Fatalf("Bytes() = %q, want %q", got, "mapped\n")
	}
}

func TestGetOutOfRangePanics(t *testing.T) {
	s := New()
	s.Append(NewBufferedMapping("mem", []byte("only\n")))
	s.Seal()

	for _, i := range []int{-1, 1, 100} {
		func() {
			defer func() {
				r := recover()
				err, ok := r.(error)
				if !ok || !errors.Is(err, ErrIndexOutOfRange) {
					t.Fatalf("Get(%d) panic = %v, want ErrIndexOutOfRange", i, r)
				}
			}()
			s.Get(i)
		}()
	}
}

func TestAppendAfterSealPanics(t *testing.T) {
	s := New()
	s.Seal()
	defer func() {
		if r := recover(); r != ErrSealed {
			t.Fatalf("panic = %v, want ErrSealed", r)
		}
	}()
	s.Append(NewBufferedMapping("late", []byte("x")))
}

func TestLineViewTextIsLossy(t *testing.T) {
	s := New()
	s.Append(NewBufferedMapping("mem", []byte("ok \xff\xfe end\nvalid é\n")))
	s.Seal()

	if got, want := s.Get(0).Text(), "ok �� end"; got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
	if got, want := s.Get(1).Text(), "valid é"; got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestIterationIsRestartable(t *testing.T) {
	s := New()
	s.Append(NewBufferedMapping("mem", []byte("a\nb\nc\n")))
	s.Seal()

	for round := 0; round < 2; round++ {
		var got []string
		for i, v := range s.All() {
			if !bytes.Equal(v.Bytes(), s.Bytes(i)) {
				t.Fatalf("All() yielded %q at %d, Get gives %q", v.Bytes(), i, s.Bytes(i))
			}
			got = append(got, string(v.Bytes()))
		}
		if strings.Join(got, "") != "abc" {
			t.Fatalf("round %d: got %q", round, got)
		}
	}

	count := 0
	for range s.All() {
		count++
		break
	}
	if count != 1 {
		t.Fatalf("early break visited %d lines", count)
	}
}

func TestSealOrdersChronologically(t *testing.T) {
	s := New()
	s.Append(NewBufferedMapping("a.log", []byte(
		"2026-01-01 00:00:03 a1\n"+
			"   continuation of a1\n"+
			"2026-01-01 00:00:05 a2\n")))
	s.Append(NewBufferedMapping("b.log", []byte(
		"2026-01-01 00:00:04 b1\n"+
			"2026-01-01 00:00:01 b0\n")))
	s.Append(NewBufferedMapping("c.log", []byte("no stamp c\n")))
	s.Seal()

	want := []string{
		"2026-01-01 00:00:01 b0",
		"no stamp c",
		"2026-01-01 00:00:03 a1",
		"   continuation of a1",
		"2026-01-01 00:00:04 b1",
		"2026-01-01 00:00:05 a2",
	}
	got := texts(s)
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("order:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestSealLeadingUndatedLinesTakeFirstTimestamp(t *testing.T) {
	s := New()
	s.Append(NewBufferedMapping("a.log", []byte("2026-01-01 00:00:01 early\n2026-01-01 00:00:03 late\n")))
	s.Append(NewBufferedMapping("b.log", []byte("banner\n2026-01-01 00:00:02 middle\n")))
	s.Seal()

	want := "2026-01-01 00:00:01 early|banner|2026-01-01 00:00:02 middle|2026-01-01 00:00:03 late"
	if got := strings.Join(texts(s), "|"); got != want {
		t.Fatalf("order = %q, want %q", got, want)
	}
}

func TestSealKeepsUndatedFilesInDiscoveryOrder(t *testing.T) {
	s := New()
	s.Append(NewBufferedMapping("one", []byte("1a\n1b\n")))
	s.Append(NewBufferedMapping("two", []byte("2a\n")))
	s.Append(NewBufferedMapping("three", []byte("3a\n3b\n")))
	s.Seal()
	s.Seal()

	if got := strings.Join(texts(s), ","); got != "1a,1b,2a,3a,3b" {
		t.Fatalf("order = %q, want discovery order", got)
	}
}

func TestAppendSplitsNothingBelowLimit(t *testing.T) {
	lines := indexLines(nil, []byte("abc\ndef"), 3)
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[1] != (LogLine{Offset: 4, Length: 3, Source: 3, Timestamp: NoTimestamp}) {
		t.Fatalf("second line = %+v", lines[1])
	}
}
