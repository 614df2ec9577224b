package fault

import (
	"fmt"
	"runtime"
	"strings"
)

const memoryErrorPrefix = "runtime error: invalid memory address"

// Fault is a memory fault recovered from a panic.
type Fault struct {
	Err runtime.Error
	// Addr is the faulting address. It is only meaningful when HasAddr is
	// set: the runtime does not report an address for faults near zero.
	Addr    uintptr
	HasAddr bool
}

func (f *Fault) Error() string {
	if f.HasAddr {
		return fmt.Sprintf("%v (addr=%#x)", f.Err, f.Addr)
	}
	return f.Err.Error()
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// FromPanic reports whether v, a value obtained from recover, is a memory
// fault, and returns it as a Fault.
func FromPanic(v interface{}) (*Fault, bool) {
	re, ok := v.(runtime.Error)
	if !ok {
		return nil, false
	}
	if a, ok := re.(interface{ Addr() uintptr }); ok {
		return &Fault{Err: re, Addr: a.Addr(), HasAddr: true}, true
	}
	if strings.HasPrefix(re.Error(), memoryErrorPrefix) {
		return &Fault{Err: re}, true
	}
	return nil, false
}
