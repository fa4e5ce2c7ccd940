// Package lol (log of location) is a leveled logger that prints a timestamp,
// a colored level tag and the source location of every line, so that a fetch
// or decode failure can be traced straight back to the call site.
package lol

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
)

const (
	Off = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Trace
)

var LevelNames = []string{
	"off",
	"fatal",
	"error",
	"warn",
	"info",
	"debug",
	"trace",
}

type (
	// Ln prints its arguments separated by spaces.
	Ln func(a ...any)
	// F prints like fmt.Printf.
	F func(format string, a ...any)
	// S prints a spew dump of its arguments.
	S func(a ...any)
	// C evaluates the closure only when the level is enabled.
	C func(closure func() string)
	// Chk prints a non-nil error and reports whether it was non-nil.
	Chk func(e error) bool
	// Err builds an error with fmt.Errorf, prints it and returns it.
	Err func(format string, a ...any) error

	// LevelPrinter is the set of printers for one level.
	LevelPrinter struct {
		Ln
		F
		S
		C
		Chk
		Err
	}

	// LevelSpec is the id, tag and colorizer of a level.
	LevelSpec struct {
		ID        int
		Name      string
		Colorizer func(a ...any) string
	}
)

var (
	LevelSpecs = []LevelSpec{
		{Off, "", NoSprint},
		{Fatal, "FTL", color.New(color.BgRed, color.FgHiWhite).Sprint},
		{Error, "ERR", color.New(color.FgHiRed).Sprint},
		{Warn, "WRN", color.New(color.FgHiYellow).Sprint},
		{Info, "INF", color.New(color.FgHiGreen).Sprint},
		{Debug, "DBG", color.New(color.FgHiBlue).Sprint},
		{Trace, "TRC", color.New(color.FgHiMagenta).Sprint},
	}
	// NoTimeStamp suppresses the timestamp prefix, used by tests.
	NoTimeStamp atomic.Bool

	msgCol = color.New(color.FgBlue).Sprint
)

// NoSprint returns nothing no matter what is given to it.
func NoSprint(a ...any) string { return "" }

// Log is a set of printers, one per level.
type Log struct {
	F, E, W, I, D, T LevelPrinter
}

// Check is the set of error checkers, one per level.
type Check struct {
	F, E, W, I, D, T Chk
}

// Errorf is the set of error constructors, one per level.
type Errorf struct {
	F, E, W, I, D, T Err
}

// Logger bundles the printers, checkers and error constructors.
type Logger struct {
	*Log
	*Check
	*Errorf
}

// Level is the current maximum level that is printed.
var Level atomic.Int32

// Main is the process logger.
var Main = &Logger{}

func init() {
	Main.Log, Main.Check, Main.Errorf = New(&writer)
	SetLoggers(Info)
}

// writer serializes whole lines onto the current output.
var writer lockedWriter

type lockedWriter struct {
	sync.Mutex
	w io.Writer
}

func (l *lockedWriter) Write(p []byte) (n int, err error) {
	l.Lock()
	defer l.Unlock()
	if l.w == nil {
		return os.Stderr.Write(p)
	}
	return l.w.Write(p)
}

// SetWriter redirects the output of Main, nil restores stderr.
func SetWriter(w io.Writer) {
	writer.Lock()
	writer.w = w
	writer.Unlock()
}

// SetLoggers sets the level by number.
func SetLoggers(level int) {
	if level < Off || level > Trace {
		level = Info
	}
	Level.Store(int32(level))
	Main.Log.T.F("log level %s", LevelSpecs[level].Colorizer(LevelNames[level]))
}

// GetLogLevel returns the level number of a level name, Info if unknown.
func GetLogLevel(level string) (i int) {
	level = strings.ToLower(strings.TrimSpace(level))
	for i = range LevelNames {
		if level == LevelNames[i] {
			return i
		}
	}
	return Info
}

// SetLogLevel sets the level by name.
func SetLogLevel(level string) { SetLoggers(GetLogLevel(level)) }

// JoinStrings joins anything into a string with spaces between the items.
func JoinStrings(a ...any) string {
	var b strings.Builder
	for i := range a {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprint(&b, a[i])
	}
	return b.String()
}

func line(w io.Writer, l int32, text string) {
	fmt.Fprintf(w, "%s%s %s %s\n",
		msgCol(TimeStamper()),
		LevelSpecs[l].Colorizer(LevelSpecs[l].Name),
		text,
		msgCol(GetLoc(3)),
	)
}

// GetPrinter returns the printers for level l writing to w.
func GetPrinter(l int32, w io.Writer) LevelPrinter {
	on := func() bool { return Level.Load() >= l }
	return LevelPrinter{
		Ln: func(a ...any) {
			if on() {
				line(w, l, JoinStrings(a...))
			}
		},
		F: func(format string, a ...any) {
			if on() {
				line(w, l, fmt.Sprintf(format, a...))
			}
		},
		S: func(a ...any) {
			if on() {
				line(w, l, spew.Sdump(a...))
			}
		},
		C: func(closure func() string) {
			if on() {
				line(w, l, closure())
			}
		},
		Chk: func(e error) bool {
			if e == nil {
				return false
			}
			if on() {
				line(w, l, e.Error())
			}
			return true
		},
		Err: func(format string, a ...any) error {
			err := fmt.Errorf(format, a...)
			if on() {
				line(w, l, err.Error())
			}
			return err
		},
	}
}

// GetNullPrinter is a printer that discards everything.
func GetNullPrinter() LevelPrinter {
	return LevelPrinter{
		Ln:  func(a ...any) {},
		F:   func(format string, a ...any) {},
		S:   func(a ...any) {},
		C:   func(closure func() string) {},
		Chk: func(e error) bool { return e != nil },
		Err: func(format string, a ...any) error { return fmt.Errorf(format, a...) },
	}
}

// New creates printers, checkers and error constructors writing to w.
func New(w io.Writer) (l *Log, c *Check, errorf *Errorf) {
	l = &Log{
		T: GetPrinter(Trace, w),
		D: GetPrinter(Debug, w),
		I: GetPrinter(Info, w),
		W: GetPrinter(Warn, w),
		E: GetPrinter(Error, w),
		F: GetPrinter(Fatal, w),
	}
	c = &Check{F: l.F.Chk, E: l.E.Chk, W: l.W.Chk, I: l.I.Chk, D: l.D.Chk, T: l.T.Chk}
	errorf = &Errorf{F: l.F.Err, E: l.E.Err, W: l.W.Err, I: l.I.Err, D: l.D.Err, T: l.T.Err}
	return
}

// TimeStamper generates the timestamp prefix.
func TimeStamper() (s string) {
	if NoTimeStamp.Load() {
		return
	}
	return time.Now().Format("2006-01-02T15:04:05.000Z07:00 ")
}

// GetLoc returns file:line of the caller skip frames up.
func GetLoc(skip int) (output string) {
	_, file, ln, _ := runtime.Caller(skip)
	return fmt.Sprintf("%s:%d", file, ln)
}
