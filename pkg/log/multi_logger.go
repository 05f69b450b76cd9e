package log

// MultiLogger fans each event out to several loggers in order, typically
// the rotated capture file and the debug slog mirror.
type MultiLogger []Logger

// NewMultiLogger drops nil loggers and returns the rest.
func NewMultiLogger(loggers ...Logger) MultiLogger {
	m := make(MultiLogger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			m = append(m, l)
		}
	}
	return m
}

// Log implements Logger.
func (m MultiLogger) Log(event Event) {
	for _, l := range m {
		l.Log(event)
	}
}

// Len returns the number of loggers.
func (m MultiLogger) Len() int {
	return len(m)
}

var _ Logger = MultiLogger(nil)
