// Package logger builds the process-wide logrus logger. Components receive
// *logrus.Entry values scoped with a "component" field instead of reaching
// for a global.
package logger

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New creates a configured logger. An unknown level falls back to info;
// format "json" is for log aggregation, anything else gets human-readable
// text.
func New(level, format string) *logrus.Logger {
	log := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	switch format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
		})
	}

	log.SetOutput(os.Stdout)
	return log
}
