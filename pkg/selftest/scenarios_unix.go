//go:build unix

package selftest

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"time"
	"unsafe"

	"github.com/google/uuid"
	sys "golang.org/x/sys/unix"

	"github.com/NH5pml30/virtual-machines/pkg/config"
	"github.com/NH5pml30/virtual-machines/pkg/fault"
	"github.com/NH5pml30/virtual-machines/pkg/probe"
)

const (
	deliveryTimeout = 2 * time.Second
	duplicateWindow = 50 * time.Millisecond
)

func platformScenarios() []Scenario {
	return []Scenario{
		{Name: "no-access", Run: noAccess},
		{Name: "boundary", Run: regionBoundary},
		{Name: "bus", Run: busError},
		{Name: "transparency", Run: transparency},
		{Name: "outer-recovery", Run: outerRecovery},
		{Name: "balance", Run: balance},
	}
}

func anonymous(pages, prot int) ([]byte, error) {
	mem, err := sys.Mmap(-1, 0, pages*sys.Getpagesize(), prot, sys.MAP_PRIVATE|sys.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap: %v", err)
	}
	return mem, nil
}

func addrOf(mem []byte, i int) uintptr {
	return uintptr(unsafe.Pointer(&mem[i]))
}

// noAccess reads a byte, removes read permission from its page and reads
// it again.
func noAccess(*config.Config) ([]Check, error) {
	mem, err := anonymous(1, sys.PROT_READ|sys.PROT_WRITE)
	if err != nil {
		return nil, err
	}
	defer sys.Munmap(mem)

	mem[0] = 'a'
	checks := []Check{expect(addrOf(mem, 0), Some('a'))}
	if err := sys.Mprotect(mem, sys.PROT_NONE); err != nil {
		return checks, fmt.Errorf("mprotect: %v", err)
	}
	return append(checks, expect(addrOf(mem, 0), None)), nil
}

// regionBoundary reads the last byte of a page followed by a page without
// access, then the first byte of that page.
func regionBoundary(*config.Config) ([]Check, error) {
	mem, err := anonymous(2, sys.PROT_READ|sys.PROT_WRITE)
	if err != nil {
		return nil, err
	}
	defer sys.Munmap(mem)

	page := sys.Getpagesize()
	mem[page-1] = 'z'
	if err := sys.Mprotect(mem[page:], sys.PROT_NONE); err != nil {
		return nil, fmt.Errorf("mprotect: %v", err)
	}
	return []Check{
		expect(addrOf(mem, page-1), Some('z')),
		expect(addrOf(mem, page), None),
	}, nil
}

// busError maps a shared memory object that has no storage behind the
// mapping. Touching it raises SIGBUS instead of SIGSEGV.
func busError(cfg *config.Config) ([]Check, error) {
	name := filepath.Join(cfg.ShmDir, "memprobe-"+uuid.NewString())
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("shared memory object: %v", err)
	}
	defer os.Remove(name)
	defer f.Close()

	mem, err := sys.Mmap(int(f.Fd()), 0, 1, sys.PROT_READ|sys.PROT_WRITE, sys.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %v", name, err)
	}
	defer sys.Munmap(mem)

	return []Check{expect(addrOf(mem, 0), None)}, nil
}

// transparency installs an external handler for each fault class, probes
// faulting addresses, then raises the signal outside of any probe. The
// external handler must see it exactly once.
func transparency(*config.Config) ([]Check, error) {
	mem, err := anonymous(1, sys.PROT_NONE)
	if err != nil {
		return nil, err
	}
	defer sys.Munmap(mem)

	var checks []Check
	for _, c := range fault.Classes {
		n, err := deliveries(c.Signal(), func() {
			checks = append(checks, expect(addrOf(mem, 0), None), expect(0, None))
		})
		if err != nil {
			return checks, err
		}
		checks = append(checks, compare(fmt.Sprintf("external %v handler calls", c.Signal()), 1, n))
	}
	return checks, nil
}

// outerRecovery touches a page without access under the caller's own
// panic-on-fault recovery, once after a read of the same page. The read must
// leave that recovery in place, and the fault it catches must name the page.
func outerRecovery(*config.Config) ([]Check, error) {
	mem, err := anonymous(1, sys.PROT_NONE)
	if err != nil {
		return nil, err
	}
	defer sys.Munmap(mem)

	addr := addrOf(mem, 0)
	prev := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(prev)

	checks := []Check{expect(addr, None)}
	f := touch(addr)
	if f == nil {
		return append(checks, compare("outer recovery", "fault", "none")), nil
	}
	got := "unknown"
	if f.HasAddr {
		got = fmt.Sprintf("%#x", f.Addr)
	}
	return append(checks, compare("outer recovery address", fmt.Sprintf("%#x", addr), got)), nil
}

var touched byte

// touch loads the byte at addr and returns the fault it raised, if any.
// Panics that are not memory faults propagate.
//
//go:noinline
//go:nocheckptr
func touch(addr uintptr) (f *fault.Fault) {
	defer func() {
		if r := recover(); r != nil {
			var ok bool
			if f, ok = fault.FromPanic(r); !ok {
				panic(r)
			}
		}
	}()
	touched = *(*byte)(unsafe.Pointer(addr))
	return nil
}

// deliveries counts how often sig reaches a handler installed with
// signal.Notify when sig is raised once after probes has run.
func deliveries(sig sys.Signal, probes func()) (int, error) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, sig)
	defer signal.Stop(ch)

	probes()
	if err := sys.Kill(os.Getpid(), sig); err != nil {
		return 0, fmt.Errorf("raise %v: %v", sig, err)
	}

	n := 0
	timeout := deliveryTimeout
	for {
		select {
		case <-ch:
			n++
			timeout = duplicateWindow
		case <-time.After(timeout):
			return n, nil
		}
	}
}

// balance checks that many probes leave the fault configuration exactly
// as they found it.
func balance(cfg *config.Config) ([]Check, error) {
	mem, err := anonymous(2, sys.PROT_READ)
	if err != nil {
		return nil, err
	}
	defer sys.Munmap(mem)
	page := sys.Getpagesize()
	if err := sys.Mprotect(mem[page:], sys.PROT_NONE); err != nil {
		return nil, fmt.Errorf("mprotect: %v", err)
	}

	enabled := fault.Enabled()
	before, err := dispositions()
	if err != nil {
		return nil, err
	}

	addrs := []uintptr{0, addrOf(mem, 0), addrOf(mem, page), uintptr(unsafe.Pointer(&global)), addrOf(mem, page-1)}
	faults := 0
	for i := 0; i < cfg.BalanceIterations; i++ {
		if _, ok := probe.Read(addrs[i%len(addrs)]); !ok {
			faults++
		}
	}

	after, err := dispositions()
	if err != nil {
		return nil, err
	}
	checks := []Check{
		compare("faults trapped", expectedFaults(cfg.BalanceIterations, len(addrs)), faults),
		compare("panic-on-fault", enabled, fault.Enabled()),
		compare("trap armed", false, probe.Armed()),
	}
	for i, c := range fault.Classes {
		if i < len(before) {
			checks = append(checks, compare(fmt.Sprintf("%v disposition", c.Signal()), before[i], after[i]))
		}
	}
	return checks, nil
}

// expectedFaults is the number of probes hitting the two faulting entries
// (0 and the no-access page) at the head of the address list.
func expectedFaults(iterations, n int) int {
	full := iterations / n * 2
	switch rem := iterations % n; {
	case rem >= 3:
		return full + 2
	case rem >= 1:
		return full + 1
	}
	return full
}

func dispositions() ([]fault.Action, error) {
	var acts []fault.Action
	for _, c := range fault.Classes {
		act, err := fault.Disposition(c)
		if err == fault.ErrDispositionUnsupported {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		acts = append(acts, act)
	}
	return acts, nil
}
