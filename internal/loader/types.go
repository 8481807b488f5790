package loader

import (
	"os"
	"time"

	"go.uber.org/zap"

	"comoview/internal/storage"
)

const (
	// DefaultMaxOpenDirs caps concurrently open directory handles.
	DefaultMaxOpenDirs = 10
	// MaxFailedExamples bounds Summary.FailedExamples.
	MaxFailedExamples = 5

	defaultEventBuffer  = 64
	defaultMonitorEvery = 100
	readDirBatch        = 256
)

// DefaultFilePatterns selects files inside walked directories.
var DefaultFilePatterns = []string{"*.log"}

// Options configures a Loader. Zero values take the defaults noted per field.
type Options struct {
	MaxOpenDirs  int           // directory handle cap, DefaultMaxOpenDirs
	FilePatterns []string      // base-name globs for walked directories, DefaultFilePatterns
	Retry        RetryPolicy   // DefaultRetryPolicy
	EventBuffer  int           // event channel capacity
	MonitorEvery int           // sample descriptor usage every N files
	Logger       *zap.Logger   // nil logs nothing
	Sleeper      Sleeper       // backoff sleep, real timers by default
	FS           FS            // directory access, the OS by default
	Monitor      *Monitor      // descriptor monitor, NewMonitor by default

	// OpenFile opens a discovered file for mapping; os.Open by default.
	OpenFile func(name string) (*os.File, error)
}

func (o Options) withDefaults() Options {
	if o.MaxOpenDirs <= 0 {
		o.MaxOpenDirs = DefaultMaxOpenDirs
	}
	if len(o.FilePatterns) == 0 {
		o.FilePatterns = DefaultFilePatterns
	}
	if o.Retry == (RetryPolicy{}) {
		o.Retry = DefaultRetryPolicy()
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = defaultEventBuffer
	}
	if o.MonitorEvery <= 0 {
		o.MonitorEvery = defaultMonitorEvery
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Sleeper == nil {
		o.Sleeper = TimerSleeper{}
	}
	if o.FS == nil {
		o.FS = OSFS{}
	}
	if o.OpenFile == nil {
		o.OpenFile = os.Open
	}
	if o.Monitor == nil {
		o.Monitor = NewMonitor(o.Logger, o.MonitorEvery)
	}
	return o
}

// Event is delivered on the channel returned by Loader.Start. It is one of
// Progress, Failure or Summary; Summary is always last.
type Event interface {
	event()
}

// Progress reports one loaded file.
type Progress struct {
	Path      string
	FilesDone int // files loaded so far
	LinesDone int // lines indexed so far
	Bytes     int64
}

// Failure reports one file or directory that was skipped.
type Failure struct {
	Path string
	Err  error
}

// Summary closes a load.
type Summary struct {
	Succeeded      int      // files loaded
	Failed         int      // files skipped
	FailedExamples []string // first MaxFailedExamples skipped paths
	Lines          int
	Bytes          int64
	Cancelled      bool
	Elapsed        time.Duration
	// Storage is sealed and read-only. It is never nil, even when every
	// file failed or the load was cancelled.
	Storage *storage.Storage
}

func (Progress) event() {}
func (Failure) event()  {}
func (Summary) event()  {}
