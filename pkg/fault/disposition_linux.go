//go:build linux && (amd64 || arm64)

package fault

import (
	"fmt"
	"unsafe"

	sys "golang.org/x/sys/unix"
)

// sigactiont is the kernel's struct sigaction, which differs from the C
// library's.
type sigactiont struct {
	handler  uintptr
	flags    uint64
	restorer uintptr
	mask     uint64
}

// Disposition returns the disposition the kernel currently holds for the
// signal of c. It does not modify it.
func Disposition(c Class) (Action, error) {
	var sa sigactiont
	_, _, errno := sys.RawSyscall6(sys.SYS_RT_SIGACTION, uintptr(c.Signal()), 0, uintptr(unsafe.Pointer(&sa)), unsafe.Sizeof(sa.mask), 0, 0)
	if errno != 0 {
		return Action{}, fmt.Errorf("rt_sigaction(%v): %v", c.Signal(), errno)
	}
	return Action{Handler: sa.handler, Flags: sa.flags, Mask: sa.mask}, nil
}
