// Package loader discovers log files and loads them into a storage.Storage
// one file at a time, on a background goroutine.
//
// Open handles stay bounded regardless of input size: discovery holds at
// most MaxOpenDirs directory handles and the loader holds one file handle,
// released as soon as the file is mapped. Opens that fail because the process
// ran out of descriptors are retried with exponential backoff; any other
// per-file failure skips that file and the load goes on.
package loader

import (
	"context"

	"go.uber.org/zap"

	"comoview/internal/storage"
)

// Loader loads files into a fresh Storage per call to Start.
type Loader struct {
	opts  Options
	log   *zap.Logger
	retry *Retrier
}

// New returns a Loader. Invalid file patterns surface on Start as a
// Failure for every input path.
func New(opts Options) *Loader {
	opts = opts.withDefaults()
	return &Loader{
		opts:  opts,
		log:   opts.Logger,
		retry: NewRetrier(opts.Retry, opts.Sleeper, opts.Logger),
	}
}

// Start loads paths in the background. Events arrive in discovery order and
// end with a Summary, after which the channel is closed. The consumer must
// drain the channel until it is closed.
//
// Cancelling ctx stops the load between files; the Summary then carries
// whatever was loaded so far with Cancelled set.
func (l *Loader) Start(ctx context.Context, paths []string) <-chan Event {
	events := make(chan Event, l.opts.EventBuffer)
	go l.run(ctx, paths, events)
	return events
}

// Load runs a load to completion and returns its Summary. onEvent, when not
// nil, sees every Progress and Failure event.
func (l *Loader) Load(ctx context.Context, paths []string, onEvent func(Event)) Summary {
	for ev := range l.Start(ctx, paths) {
		if sum, ok := ev.(Summary); ok {
			return sum
		}
		if onEvent != nil {
			onEvent(ev)
		}
	}
	panic("loader: event stream closed without a summary")
}

func (l *Loader) run(ctx context.Context, paths []string, events chan<- Event) {
	st := storage.New()
	rp := newResultProcessor(events, l.log)
	l.log.Info("load started", zap.Strings("paths", paths), zap.Int("max_open_dirs", l.opts.MaxOpenDirs))

	disc, err := NewDiscovery(l.opts.FS, l.opts.MaxOpenDirs, l.opts.FilePatterns, l.retry, l.log)
	if err != nil {
		for _, p := range paths {
			rp.skipped(ctx, p, err)
		}
		st.Seal()
		rp.finish(st, ctx.Err() != nil)
		return
	}

	for path, err := range disc.Paths(ctx, paths) {
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			rp.skipped(ctx, path, err)
			continue
		}

		src, err := l.mapFile(ctx, path)
		if err != nil {
			rp.skipped(ctx, path, err)
			continue
		}
		lines := st.Append(src)
		rp.loaded(ctx, path, lines, src.Size())
		l.opts.Monitor.Tick()
	}

	st.Seal()
	rp.finish(st, ctx.Err() != nil)
}

// mapFile opens path, maps it and closes the handle again. Opening is
// retried while descriptors are exhausted.
func (l *Loader) mapFile(ctx context.Context, path string) (*storage.SourceMapping, error) {
	var src *storage.SourceMapping
	attempts, err := l.retry.Do(ctx, path, func() error {
		f, err := l.opts.OpenFile(path)
		if err != nil {
			return err
		}
		defer f.Close()

		src, err = storage.MapFile(f, path)
		return err
	})
	if err != nil {
		return nil, err
	}
	if attempts > 1 {
		l.log.Info("file opened after retry", zap.String("path", path), zap.Int("attempts", attempts))
	}
	return src, nil
}
