package app

import "github.com/sirupsen/logrus"

// Diagnostics receives failures that are deliberately not surfaced to
// the user, such as result-persistence errors and best-effort transport
// calls. Swallowed never means discarded: every such failure lands here.
type Diagnostics interface {
	Report(op string, err error, fields map[string]interface{})
}

// LogrusDiagnostics reports swallowed failures as structured log entries.
type LogrusDiagnostics struct {
	Entry *logrus.Entry
}

func (d *LogrusDiagnostics) Report(op string, err error, fields map[string]interface{}) {
	entry := d.Entry.WithField("op", op)
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.WithError(err).Warn("Best-effort operation failed")
}
