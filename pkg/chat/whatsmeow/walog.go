package whatsmeow

import (
	"fmt"
	"log/slog"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// waLogger routes whatsmeow's internal logging through the process slog.
type waLogger struct {
	log *slog.Logger
}

func newWALogger(log *slog.Logger) waLog.Logger {
	return &waLogger{log: log}
}

func (l *waLogger) Errorf(msg string, args ...any) {
	l.log.Error(fmt.Sprintf(msg, args...))
}

func (l *waLogger) Warnf(msg string, args ...any) {
	l.log.Warn(fmt.Sprintf(msg, args...))
}

func (l *waLogger) Infof(msg string, args ...any) {
	l.log.Info(fmt.Sprintf(msg, args...))
}

func (l *waLogger) Debugf(msg string, args ...any) {
	l.log.Debug(fmt.Sprintf(msg, args...))
}

func (l *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{log: l.log.With("module", module)}
}
