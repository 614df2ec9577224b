package selftest

import (
	"math/rand"
	"reflect"
	"runtime"
	"unsafe"

	"github.com/NH5pml30/virtual-machines/pkg/config"
)

const stringLiteral = "string literal"

var global byte

// Scenarios returns every scenario supported on this platform, in the
// order they are run.
func Scenarios() []Scenario {
	s := []Scenario{
		{Name: "random", Run: randomAddresses},
		{Name: "null", Run: nullAddress},
		{Name: "stack", Run: stackVariable},
		{Name: "code", Run: codeByte},
		{Name: "global", Run: globalVariable},
		{Name: "literal", Run: literalByte},
	}
	return append(s, platformScenarios()...)
}

// Lookup returns the scenarios named in names, in the given order.
func Lookup(names []string) ([]Scenario, error) {
	all := Scenarios()
	out := make([]Scenario, 0, len(names))
outer:
	for _, name := range names {
		for _, s := range all {
			if s.Name == name {
				out = append(out, s)
				continue outer
			}
		}
		return nil, &UnknownScenarioError{Name: name}
	}
	return out, nil
}

// UnknownScenarioError is returned by Lookup for a name no scenario has.
type UnknownScenarioError struct {
	Name string
}

func (e *UnknownScenarioError) Error() string {
	return "unknown scenario " + e.Name
}

func randomAddresses(cfg *config.Config) ([]Check, error) {
	rng := rand.New(rand.NewSource(cfg.RandomSeed))
	checks := make([]Check, 0, cfg.RandomProbes)
	for i := 0; i < cfg.RandomProbes; i++ {
		checks = append(checks, observe(uintptr(rng.Uint64())))
	}
	return checks, nil
}

func nullAddress(*config.Config) ([]Check, error) {
	return []Check{expect(0, None)}, nil
}

// growStack makes the goroutine stack large enough that it is not copied
// while a raw address into it is being probed.
//
//go:noinline
func growStack() byte {
	var buf [64 << 10]byte
	buf[len(buf)-1] = 1
	return buf[len(buf)-1]
}

func stackVariable(*config.Config) ([]Check, error) {
	growStack()
	var v byte = 30
	c := expect(uintptr(unsafe.Pointer(&v)), Some(30))
	runtime.KeepAlive(&v)
	return []Check{c}, nil
}

func codeByte(*config.Config) ([]Check, error) {
	pc := reflect.ValueOf(Scenarios).Pointer()
	want := *(*byte)(unsafe.Pointer(pc))
	return []Check{expect(pc, Some(want))}, nil
}

func globalVariable(*config.Config) ([]Check, error) {
	global = 90
	return []Check{expect(uintptr(unsafe.Pointer(&global)), Some(90))}, nil
}

func literalByte(*config.Config) ([]Check, error) {
	addr := uintptr(unsafe.Pointer(unsafe.StringData(stringLiteral)))
	return []Check{expect(addr, Some('s'))}, nil
}
