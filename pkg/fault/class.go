package fault

import (
	"fmt"

	sys "golang.org/x/sys/unix"
)

// Class is a category of memory fault reported by the operating system.
type Class uint8

const (
	// InvalidAddress is an access to an unmapped address or to a page
	// whose protection forbids the access (SIGSEGV).
	InvalidAddress Class = iota
	// Bus is an access the memory system cannot complete, such as a read
	// past the end of the object backing a shared mapping (SIGBUS).
	Bus
)

// Classes lists every fault class a probe recovers from.
var Classes = []Class{InvalidAddress, Bus}

func (c Class) known() bool {
	return c == InvalidAddress || c == Bus
}

// Signal returns the signal the operating system delivers for c.
func (c Class) Signal() sys.Signal {
	switch c {
	case InvalidAddress:
		return sys.SIGSEGV
	case Bus:
		return sys.SIGBUS
	}
	panic(fmt.Sprintf("unknown fault class %d", uint8(c)))
}

func (c Class) String() string {
	switch c {
	case InvalidAddress:
		return "invalid-address"
	case Bus:
		return "bus"
	}
	return fmt.Sprintf("Class(%d)", uint8(c))
}
