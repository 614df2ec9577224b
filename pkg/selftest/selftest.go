package selftest

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/NH5pml30/virtual-machines/pkg/config"
	"github.com/NH5pml30/virtual-machines/pkg/logflags"
	"github.com/NH5pml30/virtual-machines/pkg/probe"
)

// Outcome is the result of a single probe.
type Outcome struct {
	Value byte
	OK    bool
}

// None is the outcome of a probe that faulted.
var None = Outcome{}

// Some returns the outcome of a probe that read b.
func Some(b byte) Outcome {
	return Outcome{Value: b, OK: true}
}

// Probe reads addr with probe.Read.
func Probe(addr uintptr) Outcome {
	b, ok := probe.Read(addr)
	return Outcome{Value: b, OK: ok}
}

func (o Outcome) String() string {
	if !o.OK {
		return "{}"
	}
	return fmt.Sprintf("{%x}", o.Value)
}

// Format renders a probe the way the command line prints it.
func Format(addr uintptr, o Outcome) string {
	return fmt.Sprintf("*%#x == %s", addr, o)
}

// Check is one expectation verified by a scenario.
type Check struct {
	Label string
	Want  string
	Got   string
	Pass  bool
}

// Result collects the checks of one scenario. Err is set when the
// scenario could not prepare the memory it probes.
type Result struct {
	Name   string
	Checks []Check
	Err    error
}

// Passed reports whether the scenario ran and every check passed.
func (r *Result) Passed() bool {
	if r.Err != nil {
		return false
	}
	for _, c := range r.Checks {
		if !c.Pass {
			return false
		}
	}
	return true
}

// Scenario is a named group of checks.
type Scenario struct {
	Name string
	Run  func(cfg *config.Config) ([]Check, error)
}

func expect(addr uintptr, want Outcome) Check {
	got := Probe(addr)
	return Check{Label: fmt.Sprintf("*%#x", addr), Want: want.String(), Got: got.String(), Pass: got == want}
}

func observe(addr uintptr) Check {
	return Check{Label: fmt.Sprintf("*%#x", addr), Want: "any", Got: Probe(addr).String(), Pass: true}
}

func compare(label string, want, got interface{}) Check {
	w, g := fmt.Sprint(want), fmt.Sprint(got)
	return Check{Label: label, Want: w, Got: g, Pass: w == g}
}

// Run executes scenarios in order. Scenarios run one at a time on the
// calling goroutine, since at most one probe may be in flight.
func Run(cfg *config.Config, scenarios []Scenario) []Result {
	logger := logflags.SelftestLogger()
	verbose := logflags.Selftest()
	results := make([]Result, 0, len(scenarios))
	for _, s := range scenarios {
		log := logger.WithField("scenario", s.Name)
		if verbose {
			log.Debug("running")
		}
		checks, err := s.Run(cfg)
		r := Result{Name: s.Name, Checks: checks, Err: err}
		if err != nil {
			log.WithError(err).Error("setup failed")
		}
		for _, c := range checks {
			l := log.WithFields(logflags.Fields{"want": c.Want, "got": c.Got})
			if c.Pass {
				if verbose {
					l.Debugf("%s ok", c.Label)
				}
			} else {
				l.Errorf("%s mismatch", c.Label)
			}
		}
		results = append(results, r)
	}
	return results
}

// Summary counts passed and failed scenarios.
func Summary(results []Result) (passed, failed int) {
	for i := range results {
		if results[i].Passed() {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// Report writes one table row per check.
func Report(w io.Writer, results []Result) error {
	table := tablewriter.NewWriter(w)
	table.Header("Scenario", "Check", "Expected", "Got", "Status")
	for _, r := range results {
		if r.Err != nil {
			if err := table.Append([]string{r.Name, "setup", "", r.Err.Error(), "FAIL"}); err != nil {
				return err
			}
			continue
		}
		for _, c := range r.Checks {
			status := "ok"
			if !c.Pass {
				status = "FAIL"
			}
			if err := table.Append([]string{r.Name, c.Label, c.Want, c.Got, status}); err != nil {
				return err
			}
		}
	}
	return table.Render()
}
