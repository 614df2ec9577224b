// Package selftest exercises probe.Read against the address classes the
// probe must handle: unmapped and null addresses, stack, heap-less globals,
// code, read-only literals, pages whose protection is removed, shared
// mappings without backing storage, and the interaction with fault
// handlers installed outside of any probe.
package selftest
