package xpath

import (
	"log/slog"
)

type Tracer interface {
	Enter(string)
	Leave(string)
	Error(string, error)
}

type discardTracer struct{}

func (_ discardTracer) Enter(_ string)          {}
func (_ discardTracer) Leave(_ string)          {}
func (_ discardTracer) Error(_ string, _ error) {}

type logTracer struct {
	logger   *slog.Logger
	depth    int
	errcount int
}

// TraceLogger reports the progress of the compiler to logger at debug level.
func TraceLogger(logger *slog.Logger) Tracer {
	tracer := logTracer{
		logger: logger,
	}
	return &tracer
}

func (t *logTracer) Enter(rule string) {
	t.depth++
	t.logger.Debug("start compile expr", "expression", rule, "depth", t.depth)
}

func (t *logTracer) Leave(rule string) {
	t.depth--
	t.logger.Debug("done compile expr", "expression", rule, "depth", t.depth)
}

func (t *logTracer) Error(rule string, err error) {
	t.errcount++
	t.logger.Error("compile expr failed", "expression", rule, "err", err, "count", t.errcount)
}
