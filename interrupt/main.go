// Package interrupt runs registered handlers once when the process receives
// an interrupt or termination signal, or when shutdown is requested.
package interrupt

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"rocktree.lol/log"
)

var (
	mx       sync.Mutex
	handlers []func()
	once     sync.Once
	started  sync.Once
	// HandlersDone is closed after every handler has run.
	HandlersDone = make(chan struct{})
	signals      = make(chan os.Signal, 1)
)

// AddHandler registers f to run on shutdown and starts the signal listener
// on first use. Handlers run in reverse order of registration.
func AddHandler(f func()) {
	started.Do(func() {
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		go listen()
	})
	mx.Lock()
	handlers = append(handlers, f)
	mx.Unlock()
}

func listen() {
	sig := <-signals
	log.I.F("received %s, shutting down", sig)
	Request()
}

// Request runs the shutdown handlers. Only the first call has an effect.
func Request() {
	once.Do(func() {
		mx.Lock()
		h := append([]func(){}, handlers...)
		mx.Unlock()
		for i := len(h) - 1; i >= 0; i-- {
			h[i]()
		}
		close(HandlersDone)
	})
}

// Requested reports whether shutdown has completed.
func Requested() bool {
	select {
	case <-HandlersDone:
		return true
	default:
		return false
	}
}
