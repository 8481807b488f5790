package loader

import (
	"go.uber.org/zap"
)

// Pressure classifies descriptor usage against the process limit.
type Pressure int

const (
	PressureLow      Pressure = iota // below 50%
	PressureModerate                 // 50% to 80%
	PressureHigh                     // above 80%
	PressureUnknown
)

const (
	moderateUsage = 0.5
	highUsage     = 0.8
)

func classifyUsage(open int, limit uint64) Pressure {
	if limit == 0 {
		return PressureUnknown
	}
	ratio := float64(open) / float64(limit)
	switch {
	case ratio > highUsage:
		return PressureHigh
	case ratio >= moderateUsage:
		return PressureModerate
	}
	return PressureLow
}

// Monitor samples descriptor usage while a load runs. It only logs; it never
// stops a load.
type Monitor struct {
	log   *zap.Logger
	every int
	ticks int

	limit func() (uint64, error)
	count func() (int, error)
}

// NewMonitor returns a Monitor that samples on every n-th Tick.
func NewMonitor(log *zap.Logger, n int) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	if n <= 0 {
		n = defaultMonitorEvery
	}
	return &Monitor{log: log, every: n, limit: descriptorLimit, count: openDescriptors}
}

// Tick counts one processed file and samples when due.
func (m *Monitor) Tick() Pressure {
	m.ticks++
	if m.ticks%m.every != 0 {
		return PressureUnknown
	}
	return m.Sample()
}

// Sample reads the current usage and logs it: a warning above 80% of the
// limit, a debug record from 50%, nothing below.
func (m *Monitor) Sample() Pressure {
	limit, err := m.limit()
	if err != nil {
		m.log.Debug("descriptor limit unavailable", zap.Error(err))
		return PressureUnknown
	}
	open, err := m.count()
	if err != nil {
		m.log.Debug("descriptor count unavailable", zap.Error(err))
		return PressureUnknown
	}

	p := classifyUsage(open, limit)
	switch p {
	case PressureHigh:
		m.log.Warn("file descriptor usage is high",
			zap.Int("open", open), zap.Uint64("limit", limit))
	case PressureModerate:
		m.log.Debug("file descriptor usage",
			zap.Int("open", open), zap.Uint64("limit", limit))
	}
	return p
}
