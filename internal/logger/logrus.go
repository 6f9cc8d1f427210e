package logger

import (
	"github.com/sirupsen/logrus"
	"io"
)

// LogrusLogger writes progress as structured logrus entries
type LogrusLogger struct {
	*logrus.Logger
	sql bool
}

var _ Logger = (*LogrusLogger)(nil)

// NewLogrus creates a logrus backed logger, level is one of the logrus level names
func NewLogrus(out io.Writer, level string, sql bool) (*LogrusLogger, error) {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if level == "" {
		level = logrus.InfoLevel.String()
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l.SetLevel(lvl)

	return &LogrusLogger{Logger: l, sql: sql}, nil
}

func (l *LogrusLogger) Successf(format string, args ...interface{}) {
	l.WithField("status", "ok").Infof(format, args...)
}

func (l *LogrusLogger) Error(err error) {
	l.WithError(err).Error("operation failed")
}

func (l *LogrusLogger) SQL(query string, args ...interface{}) {
	if l.sql {
		l.WithFields(logrus.Fields{"query": query, "args": args}).Debug("running sql")
	}
}
