package fault

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var errUnknownClass = errors.New("unknown fault class")

// Handler is invoked with a fault recovered while its Guard is active. It
// reports whether it consumed the fault; a declined fault is forwarded to
// whatever was configured before the Guard was installed.
type Handler func(f *Fault) bool

// Guard owns the fault configuration that was active immediately before it
// was installed and reinstalls it on Release.
//
// The configuration is goroutine scoped: a Guard must be released by the
// goroutine that installed it.
type Guard struct {
	class    Class
	handler  Handler
	prev     bool
	released bool
}

// ConfigError is returned by Install when faults of a class cannot be made
// recoverable in this process. Callers must treat it as fatal.
type ConfigError struct {
	Class Class
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cannot trap %s faults: %v", e.Class, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Install makes faults of class c raised by the calling goroutine
// recoverable and routes them to h, capturing the previous configuration.
func Install(c Class, h Handler) (*Guard, error) {
	if err := checkDisposition(c); err != nil {
		return nil, err
	}
	g := &Guard{class: c, handler: h}
	g.prev = debug.SetPanicOnFault(true)
	return g, nil
}

// Release reinstalls the configuration captured by Install, whatever the
// current configuration is. Releasing a Guard more than once is a no-op.
func (g *Guard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	debug.SetPanicOnFault(g.prev)
}

func (g *Guard) handle(f *Fault) bool {
	if g == nil || g.released || g.handler == nil {
		return false
	}
	return g.handler(f)
}

// Enabled reports whether faults raised by the calling goroutine are
// currently turned into panics.
func Enabled() bool {
	on := debug.SetPanicOnFault(false)
	debug.SetPanicOnFault(on)
	return on
}

// Dispatch hands a value obtained from recover to the handlers of guards,
// in order. It returns the fault if a handler consumed it. Otherwise v is
// panicked again unchanged, so that the configuration that preceded the
// guards observes it exactly as it was raised.
func Dispatch(v interface{}, guards ...*Guard) *Fault {
	if f, ok := FromPanic(v); ok {
		for _, g := range guards {
			if g.handle(f) {
				return f
			}
		}
	}
	panic(v)
}

func checkDisposition(c Class) error {
	if !c.known() {
		return &ConfigError{Class: c, Err: errUnknownClass}
	}
	act, err := Disposition(c)
	switch {
	case err == ErrDispositionUnsupported:
		return nil
	case err != nil:
		return &ConfigError{Class: c, Err: err}
	case !act.RuntimeOwned():
		return &ConfigError{Class: c, Err: fmt.Errorf("%v is not handled by the Go runtime (%s)", c.Signal(), act)}
	}
	return nil
}
