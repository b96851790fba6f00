package server

import "log/slog"

// ConsoleSink receives device-originated serial/console text: each
// Serial(11) payload as it arrives, and each keepalive-sweep flush of a
// device's SerialBuffer. A production host might forward these
// lines to its own log viewer; the default implementation here just
// logs them.
type ConsoleSink interface {
	WriteLine(line string)
}

// slogConsoleSink is the default ConsoleSink: every line becomes a log
// record at info level.
type slogConsoleSink struct {
	logger *slog.Logger
}

// NewSlogConsoleSink returns a ConsoleSink that logs each line via logger.
func NewSlogConsoleSink(logger *slog.Logger) ConsoleSink {
	return &slogConsoleSink{logger: logger.With(slog.String("component", "console"))}
}

func (s *slogConsoleSink) WriteLine(line string) {
	s.logger.Info(line)
}
