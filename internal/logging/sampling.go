// internal/logging/sampling.go
package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore applies rate limiting to entries below error level. Errors
// and above always pass; a prune run that trips the sampler must not lose
// its failure entries.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	errorBand := bandCore{Core: core, min: zapcore.ErrorLevel, max: zapcore.FatalLevel}
	routineBand := bandCore{Core: core, min: zapcore.DebugLevel, max: zapcore.WarnLevel}

	sampled := zapcore.NewSamplerWithOptions(
		routineBand,
		cfg.Tick.Duration(),
		cfg.Initial,
		cfg.Thereafter,
	)

	return zapcore.NewTee(errorBand, sampled)
}

// bandCore passes entries whose level falls in [min, max].
type bandCore struct {
	zapcore.Core
	min, max zapcore.Level
}

func (c bandCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && lvl <= c.max && c.Core.Enabled(lvl)
}

func (c bandCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

// With keeps the band on derived cores; the embedded implementation would
// return the unfiltered inner core.
func (c bandCore) With(fields []zapcore.Field) zapcore.Core {
	return bandCore{Core: c.Core.With(fields), min: c.min, max: c.max}
}
