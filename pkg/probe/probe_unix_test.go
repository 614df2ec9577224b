//go:build unix

package probe

import (
	"os"
	"os/signal"
	"runtime/debug"
	"testing"
	"time"
	"unsafe"

	sys "golang.org/x/sys/unix"

	"github.com/NH5pml30/virtual-machines/pkg/fault"
)

func mmap(t *testing.T, pages int, prot int) []byte {
	t.Helper()
	mem, err := sys.Mmap(-1, 0, pages*sys.Getpagesize(), prot, sys.MAP_PRIVATE|sys.MAP_ANON)
	if err != nil {
		t.Fatalf("mmap: %v", err)
	}
	t.Cleanup(func() {
		sys.Munmap(mem)
	})
	return mem
}

func addrOf(mem []byte, i int) uintptr {
	return uintptr(unsafe.Pointer(&mem[i]))
}

func TestReadProtectionChange(t *testing.T) {
	mem := mmap(t, 1, sys.PROT_READ|sys.PROT_WRITE)
	mem[0] = 'a'
	expectValue(t, addrOf(mem, 0), 'a')

	if err := sys.Mprotect(mem, sys.PROT_NONE); err != nil {
		t.Fatalf("mprotect: %v", err)
	}
	expectNone(t, addrOf(mem, 0))

	if err := sys.Mprotect(mem, sys.PROT_READ); err != nil {
		t.Fatalf("mprotect: %v", err)
	}
	expectValue(t, addrOf(mem, 0), 'a')
}

func TestReadUnmapped(t *testing.T) {
	mem, err := sys.Mmap(-1, 0, sys.Getpagesize(), sys.PROT_READ, sys.MAP_PRIVATE|sys.MAP_ANON)
	if err != nil {
		t.Fatalf("mmap: %v", err)
	}
	addr := addrOf(mem, 0)
	if err := sys.Munmap(mem); err != nil {
		t.Fatalf("munmap: %v", err)
	}
	expectNone(t, addr)
}

func TestReadRegionBoundary(t *testing.T) {
	page := sys.Getpagesize()
	mem := mmap(t, 2, sys.PROT_READ|sys.PROT_WRITE)
	mem[page-1] = 0x7f
	if err := sys.Mprotect(mem[page:], sys.PROT_NONE); err != nil {
		t.Fatalf("mprotect: %v", err)
	}
	expectValue(t, addrOf(mem, page-1), 0x7f)
	expectNone(t, addrOf(mem, page))
}

func TestReadBalanced(t *testing.T) {
	var before []fault.Action
	for _, c := range fault.Classes {
		act, err := fault.Disposition(c)
		if err == fault.ErrDispositionUnsupported {
			break
		}
		if err != nil {
			t.Fatalf("Disposition(%v): %v", c, err)
		}
		before = append(before, act)
	}
	enabled := fault.Enabled()

	mem := mmap(t, 2, sys.PROT_READ|sys.PROT_WRITE)
	page := sys.Getpagesize()
	if err := sys.Mprotect(mem[page:], sys.PROT_NONE); err != nil {
		t.Fatalf("mprotect: %v", err)
	}
	addrs := []uintptr{0, addrOf(mem, 0), addrOf(mem, page), uintptr(unsafe.Pointer(&global)), addrOf(mem, page-1)}
	for i := 0; i < 10000; i++ {
		Read(addrs[i%len(addrs)])
	}

	if got := fault.Enabled(); got != enabled {
		t.Fatalf("expected panic-on-fault %v after probing, got %v", enabled, got)
	}
	if Armed() {
		t.Fatal("trap left armed after probing")
	}
	for i, act := range before {
		after, _ := fault.Disposition(fault.Classes[i])
		if after != act {
			t.Fatalf("disposition of %v changed: %s -> %s", fault.Classes[i].Signal(), act, after)
		}
	}
}

func TestExternalHandlerTransparency(t *testing.T) {
	for _, c := range fault.Classes {
		t.Run(c.String(), func(t *testing.T) {
			ch := make(chan os.Signal, 4)
			signal.Notify(ch, c.Signal())
			defer signal.Stop(ch)

			mem := mmap(t, 1, sys.PROT_NONE)
			expectNone(t, addrOf(mem, 0))
			expectNone(t, 0)
			expectValue(t, uintptr(unsafe.Pointer(&global)), global)

			if err := sys.Kill(os.Getpid(), c.Signal()); err != nil {
				t.Fatalf("kill: %v", err)
			}
			select {
			case sig := <-ch:
				if sig != c.Signal() {
					t.Fatalf("expected %v, got %v", c.Signal(), sig)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("external handler never saw %v", c.Signal())
			}
			select {
			case sig := <-ch:
				t.Fatalf("external handler saw %v twice", sig)
			case <-time.After(100 * time.Millisecond):
			}
		})
	}
}

func TestReadWithOuterPanicOnFault(t *testing.T) {
	// The caller's own fault recovery still works after a probe returns.
	prev := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(prev)

	mem := mmap(t, 1, sys.PROT_NONE)
	expectNone(t, addrOf(mem, 0))

	func() {
		defer func() {
			if _, ok := fault.FromPanic(recover()); !ok {
				t.Fatal("expected the caller's fault to reach the caller's recover")
			}
		}()
		global = mem[0]
	}()
}
