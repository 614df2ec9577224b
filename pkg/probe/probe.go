// Package probe reads single bytes from arbitrary addresses of the current
// process without crashing on addresses that are not readable.
package probe

import (
	"sync/atomic"
	"unsafe"

	"github.com/NH5pml30/virtual-machines/pkg/fault"
)

// armed is set only while a probe performs its load. A fault delivered
// while it is clear was not caused by a probe and is forwarded.
var armed atomic.Bool

// Read returns the byte stored at addr and true, or false if reading addr
// raised a memory fault (SIGSEGV or SIGBUS). Any address is accepted.
//
// At most one Read may be in flight in the process at any time; callers
// that probe from several goroutines must serialize the calls themselves.
//
// Read panics with a *fault.ConfigError if the process is configured so
// that faults cannot be recovered, for example because foreign code has
// replaced the runtime's signal handlers.
func Read(addr uintptr) (b byte, ok bool) {
	segv, err := fault.Install(fault.InvalidAddress, trap)
	if err != nil {
		panic(err)
	}
	defer segv.Release()
	bus, err := fault.Install(fault.Bus, trap)
	if err != nil {
		panic(err)
	}
	defer bus.Release()

	defer func() {
		if r := recover(); r != nil {
			fault.Dispatch(r, bus, segv)
			b, ok = 0, false
		}
	}()

	armed.Store(true)
	b = load(addr)
	armed.Store(false)
	return b, true
}

// Armed reports whether a probe is currently waiting for its load to
// complete. Outside of Read it is always false.
func Armed() bool {
	return armed.Load()
}

// trap consumes a fault only if a probe armed for it, disarming in the
// same step so that a second fault is forwarded.
func trap(*fault.Fault) bool {
	return armed.CompareAndSwap(true, false)
}

//go:noinline
//go:norace
//go:nocheckptr
func load(addr uintptr) byte {
	return *(*byte)(unsafe.Pointer(addr))
}
