package probe

import (
	"testing"

	sys "golang.org/x/sys/unix"
)

func TestReadBusError(t *testing.T) {
	fd, err := sys.MemfdCreate("probe", 0)
	if err != nil {
		t.Fatalf("memfd_create: %v", err)
	}
	defer sys.Close(fd)

	// The object is empty, so touching the mapping raises SIGBUS rather
	// than SIGSEGV.
	mem, err := sys.Mmap(fd, 0, 1, sys.PROT_READ|sys.PROT_WRITE, sys.MAP_SHARED)
	if err != nil {
		t.Fatalf("mmap: %v", err)
	}
	defer sys.Munmap(mem)

	expectNone(t, addrOf(mem, 0))
	if Armed() {
		t.Fatal("trap left armed after a bus error")
	}
}
