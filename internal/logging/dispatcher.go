package logging

import "github.com/rs/zerolog"

// DispatcherLogger adapts zerolog.Logger to the dispatcher.Logger interface.
type DispatcherLogger struct {
	logger zerolog.Logger
}

func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger}
}

func (l *DispatcherLogger) Debug(msg string, keysAndValues ...any) {
	withFields(l.logger.Debug(), keysAndValues).Msg(msg)
}

func (l *DispatcherLogger) Info(msg string, keysAndValues ...any) {
	withFields(l.logger.Info(), keysAndValues).Msg(msg)
}

func (l *DispatcherLogger) Error(msg string, keysAndValues ...any) {
	withFields(l.logger.Error(), keysAndValues).Msg(msg)
}

// withFields attaches key-value pairs to e. Error values are stored under the
// zerolog error key regardless of their key name; non-string keys and a
// trailing odd value are dropped.
func withFields(e *zerolog.Event, keysAndValues []any) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		switch v := keysAndValues[i+1].(type) {
		case error:
			if key == "error" || key == "err" {
				e = e.Err(v)
			} else {
				e = e.AnErr(key, v)
			}
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}
