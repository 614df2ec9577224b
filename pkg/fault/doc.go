// Package fault turns hardware memory faults raised by the calling
// goroutine into recoverable panics for the lifetime of a Guard.
//
// A Guard is installed per fault class and must be released on every exit
// path of the scope that installed it, normally with defer:
//
//	g, err := fault.Install(fault.InvalidAddress, handler)
//	if err != nil {
//		...
//	}
//	defer g.Release()
//
// Faults recovered inside the scope are handed to Dispatch, which forwards
// anything the installed handlers decline exactly as it was raised.
package fault
