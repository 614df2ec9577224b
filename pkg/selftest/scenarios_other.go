//go:build !unix

package selftest

func platformScenarios() []Scenario {
	return nil
}
