//go:build !linux || !(amd64 || arm64)

package fault

// Disposition always fails with ErrDispositionUnsupported on this platform.
func Disposition(c Class) (Action, error) {
	return Action{}, ErrDispositionUnsupported
}
