package loader

import (
	"context"
	"time"

	"go.uber.org/zap"

	"comoview/internal/storage"
)

// resultProcessor turns per-file outcomes into events and keeps the running
// totals for the final Summary.
type resultProcessor struct {
	events chan<- Event
	log    *zap.Logger
	start  time.Time

	succeeded int
	failed    int
	lines     int
	bytes     int64
	examples  []string
}

func newResultProcessor(events chan<- Event, log *zap.Logger) *resultProcessor {
	return &resultProcessor{
		events:   events,
		log:      log,
		start:    time.Now(),
		examples: make([]string, 0, MaxFailedExamples),
	}
}

// loaded records a file that made it into storage.
func (rp *resultProcessor) loaded(ctx context.Context, path string, lines int, size int64) {
	rp.succeeded++
	rp.lines += lines
	rp.bytes += size
	rp.log.Debug("loaded file", zap.String("path", path), zap.Int("lines", lines), zap.Int64("bytes", size))
	rp.send(ctx, Progress{Path: path, FilesDone: rp.succeeded, LinesDone: rp.lines, Bytes: rp.bytes})
}

// skipped records a file that could not be loaded.
func (rp *resultProcessor) skipped(ctx context.Context, path string, err error) {
	rp.failed++
	if len(rp.examples) < MaxFailedExamples {
		rp.examples = append(rp.examples, path)
	}
	rp.log.Warn("skipping file", zap.String("path", path), zap.Error(err))
	rp.send(ctx, Failure{Path: path, Err: err})
}

// send delivers an incremental event unless the load was cancelled.
func (rp *resultProcessor) send(ctx context.Context, ev Event) {
	select {
	case rp.events <- ev:
	case <-ctx.Done():
	}
}

// finish delivers the Summary and closes the event channel. The Summary is
// sent even after cancellation so the consumer always gets the storage.
func (rp *resultProcessor) finish(st *storage.Storage, cancelled bool) Summary {
	sum := Summary{
		Succeeded:      rp.succeeded,
		Failed:         rp.failed,
		FailedExamples: rp.examples,
		Lines:          rp.lines,
		Bytes:          rp.bytes,
		Cancelled:      cancelled,
		Elapsed:        time.Since(rp.start),
		Storage:        st,
	}
	rp.log.Info("load finished",
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("lines", sum.Lines),
		zap.Bool("cancelled", sum.Cancelled),
		zap.Duration("elapsed", sum.Elapsed))
	rp.events <- sum
	close(rp.events)
	return sum
}
