//go:build unix

package selftest

import (
	"runtime/debug"
	"testing"
	"unsafe"

	"github.com/NH5pml30/virtual-machines/pkg/config"
)

func TestExpectedFaults(t *testing.T) {
	for _, tc := range []struct{ iterations, want int }{
		{0, 0}, {1, 1}, {2, 1}, {3, 2}, {5, 2}, {6, 3}, {10000, 4000},
	} {
		if got := expectedFaults(tc.iterations, 5); got != tc.want {
			t.Errorf("expectedFaults(%d, 5): expected %d, got %d", tc.iterations, tc.want, got)
		}
	}
}

func TestOuterRecovery(t *testing.T) {
	checks, err := outerRecovery(config.Default())
	if err != nil {
		t.Fatalf("outerRecovery: %v", err)
	}
	if len(checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(checks))
	}
	for _, c := range checks {
		if !c.Pass {
			t.Fatalf("%s: expected %s, got %s", c.Label, c.Want, c.Got)
		}
	}
	if prev := debug.SetPanicOnFault(false); prev {
		t.Fatal("outerRecovery left panic-on-fault enabled")
	}
}

func TestTouchValid(t *testing.T) {
	if f := touch(uintptr(unsafe.Pointer(&global))); f != nil {
		t.Fatalf("expected no fault, got %v", f)
	}
}
