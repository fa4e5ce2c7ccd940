package ratel

import (
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	"rocktree.lol/lol"
)

// NewLogger creates a new badger logger.
func NewLogger(logLevel int, label string) (l *logger) {
	log.T.Ln("getting logger for", label)
	l = &logger{Label: label}
	l.Level.Store(int32(logLevel))
	return
}

type logger struct {
	Level atomic.Int32
	Label string
}

// SetLogLevel atomically adjusts the log level to the given log level code.
func (l *logger) SetLogLevel(level int) {
	l.Level.Store(int32(level))
}

func (l *logger) print(level int32, p lol.LevelPrinter, s string, i ...any) {
	if l.Level.Load() < level {
		return
	}
	txt := fmt.Sprintf(l.Label+": "+s, i...)
	_, file, line, _ := runtime.Caller(2)
	p.F("%s\n%s:%d", strings.TrimSpace(txt), file, line)
}

// Errorf is a log printer for this level of message.
func (l *logger) Errorf(s string, i ...any) { l.print(lol.Error, log.E, s, i...) }

// Warningf is a log printer for this level of message.
func (l *logger) Warningf(s string, i ...any) { l.print(lol.Warn, log.W, s, i...) }

// Infof is a log printer for this level of message.
func (l *logger) Infof(s string, i ...any) { l.print(lol.Info, log.D, s, i...) }

// Debugf is a log printer for this level of message.
func (l *logger) Debugf(s string, i ...any) { l.print(lol.Debug, log.T, s, i...) }
