package fault

import (
	"errors"
	"fmt"
)

// ErrDispositionUnsupported is returned by Disposition on platforms where
// the kernel's signal disposition cannot be queried.
var ErrDispositionUnsupported = errors.New("signal disposition query not supported on this platform")

const (
	sigDefault = 0
	sigIgnore  = 1

	saSiginfo = 0x4
	saOnstack = 0x08000000
)

// Action is a snapshot of the operating system's disposition for the
// signal of a fault class.
type Action struct {
	Handler uintptr
	Flags   uint64
	Mask    uint64
}

// RuntimeOwned reports whether a three-argument handler is installed, as
// the Go runtime installs for synchronous signals. Faults can only be
// recovered while the runtime owns the disposition.
func (a Action) RuntimeOwned() bool {
	return a.Handler != sigDefault && a.Handler != sigIgnore && a.Flags&saSiginfo != 0
}

func (a Action) String() string {
	switch a.Handler {
	case sigDefault:
		return "SIG_DFL"
	case sigIgnore:
		return "SIG_IGN"
	}
	s := fmt.Sprintf("handler=%#x flags=%#x mask=%#x", a.Handler, a.Flags, a.Mask)
	if a.Flags&saOnstack != 0 {
		s += " onstack"
	}
	return s
}
