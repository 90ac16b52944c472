// Package log provides logrus formatting shared by all submitq components.
package log

import (
	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// NewFormatter returns the formatter used for every log entry.
// JSON output is meant for log collectors, text output for terminals.
func NewFormatter(json bool) logrus.Formatter {
	if json {
		return &logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
				logrus.FieldKeyMsg:  "message",
			},
		}
	}
	return &logrus.TextFormatter{
		FullTimestamp:          true,
		TimestampFormat:        timestampFormat,
		DisableLevelTruncation: true,
		PadLevelText:           true,
		QuoteEmptyFields:       true,
	}
}

// WithComponent returns an entry tagged with the component name
func WithComponent(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
