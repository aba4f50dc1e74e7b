package log

// MultiLogger fans one trace out to several sinks, so a session can
// land in a .bhlog file and on the console at the same time.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger wraps the given sinks in a single Logger.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log hands the event to every sink in registration order.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
