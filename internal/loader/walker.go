package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Directories never worth descending into
var skipDirs = map[string]bool{
	".git": true, ".svn": true, ".hg": true,
	"node_modules": true, "__pycache__": true,
}

var errStopWalk = errors.New("walk stopped")

// DirReader reads a directory in batches, like *os.File.
type DirReader interface {
	ReadDir(n int) ([]fs.DirEntry, error)
	Close() error
}

// FS is the directory access used by discovery.
type FS interface {
	Stat(name string) (fs.FileInfo, error)
	OpenDir(name string) (DirReader, error)
}

// OSFS reads the real filesystem.
type OSFS struct{}

func (OSFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

func (OSFS) OpenDir(name string) (DirReader, error) { return os.Open(name) }

// Discovery streams the files below a set of roots while holding at most
// MaxOpenDirs directory handles.
//
// A root may be a file (always yielded), a directory (walked depth first,
// keeping files whose base name matches one of the patterns) or a glob such
// as "logs/**/*.log". Each file is yielded once.
type Discovery struct {
	fsys     FS
	patterns []string
	sem      *semaphore.Weighted
	retry    *Retrier
	log      *zap.Logger
	seen     map[uint64]struct{}
}

// NewDiscovery returns a Discovery over fsys. Invalid patterns are rejected.
func NewDiscovery(fsys FS, maxOpenDirs int, patterns []string, retry *Retrier, log *zap.Logger) (*Discovery, error) {
	if maxOpenDirs <= 0 {
		maxOpenDirs = DefaultMaxOpenDirs
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid file pattern %q", p)
		}
	}
	if retry == nil {
		retry = NewRetrier(DefaultRetryPolicy(), nil, log)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Discovery{
		fsys:     fsys,
		patterns: patterns,
		sem:      semaphore.NewWeighted(int64(maxOpenDirs)),
		retry:    retry,
		log:      log,
		seen:     make(map[uint64]struct{}),
	}, nil
}

// Paths yields every discovered file. Unreadable roots and directories are
// yielded with a non-nil error and skipped. The sequence stops when ctx is
// done and can be ranged over only once.
func (d *Discovery) Paths(ctx context.Context, roots []string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, root := range roots {
			if ctx.Err() != nil {
				return
			}
			if !d.root(ctx, root, yield) {
				return
			}
		}
	}
}

func (d *Discovery) root(ctx context.Context, root string, yield func(string, error) bool) bool {
	info, err := d.fsys.Stat(root)
	if err != nil {
		if isGlob(root) {
			return d.glob(ctx, root, yield)
		}
		return yield(root, err)
	}
	if !info.IsDir() {
		return d.emit(root, yield)
	}
	return d.walk(ctx, root, yield)
}

func isGlob(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

// emit yields path unless it was seen before.
func (d *Discovery) emit(path string, yield func(string, error) bool) bool {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	h := xxhash.Sum64String(key)
	if _, dup := d.seen[h]; dup {
		d.log.Debug("skipping duplicate path", zap.String("path", path))
		return true
	}
	d.seen[h] = struct{}{}
	return yield(path, nil)
}

func (d *Discovery) wanted(name string) bool {
	for _, p := range d.patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// glob streams the matches of a glob root. doublestar reads each directory
// completely before descending, so it holds one handle at a time.
func (d *Discovery) glob(ctx context.Context, root string, yield func(string, error) bool) bool {
	base, pattern := doublestar.SplitPattern(filepath.ToSlash(root))
	fsys := os.DirFS(filepath.FromSlash(base))

	stopped := false
	err := doublestar.GlobWalk(fsys, pattern, func(p string, _ fs.DirEntry) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.emit(filepath.Join(filepath.FromSlash(base), filepath.FromSlash(p)), yield) {
			stopped = true
			return errStopWalk
		}
		return nil
	}, doublestar.WithFilesOnly())

	switch {
	case stopped:
		return false
	case err != nil && ctx.Err() == nil:
		return yield(root, fmt.Errorf("glob %s: %w", root, err))
	}
	return ctx.Err() == nil
}

// frame is one directory on the walk stack. While dir is non-nil the frame
// holds a directory handle and a semaphore unit; a spilled frame has read its
// remaining entries into pending and released both.
type frame struct {
	path    string
	dir     DirReader
	pending []fs.DirEntry
	done    bool
}

func (f *frame) next() (fs.DirEntry, error) {
	for len(f.pending) == 0 {
		if f.dir == nil || f.done {
			return nil, io.EOF
		}
		batch, err := f.dir.ReadDir(readDirBatch)
		slices.SortFunc(batch, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
		f.pending = batch
		if err != nil {
			f.done = true
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
		}
	}
	e := f.pending[0]
	f.pending = f.pending[1:]
	return e, nil
}

// walk visits root depth first.
func (d *Discovery) walk(ctx context.Context, root string, yield func(string, error) bool) bool {
	var stack []*frame
	defer func() {
		for _, f := range stack {
			d.release(f)
		}
	}()

	push := func(path string) error {
		if !d.sem.TryAcquire(1) {
			d.spill(stack)
			if err := d.sem.Acquire(ctx, 1); err != nil {
				return err
			}
		}
		var dir DirReader
		_, err := d.retry.Do(ctx, path, func() error {
			var err error
			dir, err = d.fsys.OpenDir(path)
			return err
		})
		if err != nil {
			d.sem.Release(1)
			return err
		}
		stack = append(stack, &frame{path: path, dir: dir})
		return nil
	}

	if err := push(root); err != nil {
		return ctx.Err() == nil && yield(root, err)
	}

	for len(stack) > 0 {
		if ctx.Err() != nil {
			return false
		}
		top := stack[len(stack)-1]
		entry, err := top.next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				d.log.Warn("failed to read directory", zap.String("dir", top.path), zap.Error(err))
				if !yield(top.path, err) {
					return false
				}
			}
			d.release(top)
			stack = stack[:len(stack)-1]
			continue
		}

		path := filepath.Join(top.path, entry.Name())
		switch {
		case entry.IsDir():
			if skipDirs[entry.Name()] {
				d.log.Debug("skipping directory", zap.String("dir", path))
				continue
			}
			if err := push(path); err != nil {
				if ctx.Err() != nil {
					return false
				}
				d.log.Warn("failed to open directory", zap.String("dir", path), zap.Error(err))
				if !yield(path, err) {
					return false
				}
			}
		case entry.Type()&fs.ModeSymlink != 0:
			// links are followed to files only, never into directories
			info, err := d.fsys.Stat(path)
			if err != nil || info.IsDir() || !d.wanted(entry.Name()) {
				continue
			}
			if !d.emit(path, yield) {
				return false
			}
		case entry.Type().IsRegular() && d.wanted(entry.Name()):
			if !d.emit(path, yield) {
				return false
			}
		}
	}
	return true
}

// spill frees one directory handle by reading the deepest open frame to the
// end and closing it.
func (d *Discovery) spill(stack []*frame) {
	for i := len(stack) - 1; i >= 0; i-- {
		f := stack[i]
		if f.dir == nil {
			continue
		}
		for !f.done {
			batch, err := f.dir.ReadDir(readDirBatch)
			slices.SortFunc(batch, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
			f.pending = append(f.pending, batch...)
			if err != nil {
				f.done = true
				if !errors.Is(err, io.EOF) {
					d.log.Warn("failed to read directory", zap.String("dir", f.path), zap.Error(err))
				}
			}
		}
		d.release(f)
		return
	}
}

// release closes a frame's handle, if it still holds one.
func (d *Discovery) release(f *frame) {
	if f.dir == nil {
		return
	}
	f.dir.Close()
	f.dir = nil
	d.sem.Release(1)
}
