package log

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// BadgerLogrusAdapter implements badger.Logger interface using logrus.
// Badger is chatty at info level, so its info lines are demoted to debug.
type BadgerLogrusAdapter struct {
	*logrus.Entry
}

// NewBadgerLogrusAdapter creates a new adapter tagged with component=badger
func NewBadgerLogrusAdapter(entry *logrus.Entry) *BadgerLogrusAdapter {
	return &BadgerLogrusAdapter{entry.WithField("component", "badger")}
}

// Errorf logs an error message
func (l *BadgerLogrusAdapter) Errorf(f string, v ...interface{}) {
	l.Entry.Errorf(strings.TrimSuffix(f, "\n"), v...)
}

// Warningf logs a warning message
func (l *BadgerLogrusAdapter) Warningf(f string, v ...interface{}) {
	l.Entry.Warnf(strings.TrimSuffix(f, "\n"), v...)
}

// Infof logs at debug level
func (l *BadgerLogrusAdapter) Infof(f string, v ...interface{}) {
	l.Entry.Debugf(strings.TrimSuffix(f, "\n"), v...)
}

// Debugf logs at trace level
func (l *BadgerLogrusAdapter) Debugf(f string, v ...interface{}) {
	l.Entry.Tracef(strings.TrimSuffix(f, "\n"), v...)
}

// ChromeLogfFunc is the printf-style signature chromedp accepts for its
// WithLogf, WithErrorf and WithDebugf context options.
type ChromeLogfFunc func(format string, args ...interface{})

// ChromeLoggers routes chromedp's three log streams into logrus
type ChromeLoggers struct {
	Logf   ChromeLogfFunc
	Errorf ChromeLogfFunc
	Debugf ChromeLogfFunc
}

// NewChromeLoggers creates logrus-backed chromedp loggers tagged with component=chromedp.
// Protocol-level debug output goes to trace, it is one line per CDP message.
func NewChromeLoggers(entry *logrus.Entry) ChromeLoggers {
	e := entry.WithField("component", "chromedp")
	return ChromeLoggers{
		Logf:   func(f string, v ...interface{}) { e.Debugf(f, v...) },
		Errorf: func(f string, v ...interface{}) { e.Warnf(f, v...) },
		Debugf: func(f string, v ...interface{}) { e.Tracef(f, v...) },
	}
}
