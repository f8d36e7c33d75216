//go:build linux || darwin

// port_unix.go - Unix port with OS-thread affinity assertion
package tinykernel

import "golang.org/x/sys/unix"

// UnixPort is a [DefaultPort] that additionally asserts OS-thread affinity
// on every critical section entry, the way a real architecture port's
// "is_int_disabled" check rejects a kernel call made from the wrong
// hardware execution context. On a single-threaded embedded target the
// scheduler and every task share one physical CPU; the closest Go
// equivalent available without cgo is pinning the process to the thread
// it booted on and failing fast if that ever changes.
type UnixPort struct {
	*DefaultPort
	bootTid int
}

// NewUnixPort returns a [Port] that records the calling OS thread id via
// unix.Gettid and traps if a later critical section is entered from a
// different one. Callers that rely on this must avoid runtime.LockOSThread
// elsewhere pulling task goroutines onto other threads; NewDefaultPort
// remains the portable choice when that can't be guaranteed.
func NewUnixPort() *UnixPort {
	return &UnixPort{
		DefaultPort: NewDefaultPort(),
		bootTid:     unix.Gettid(),
	}
}

// EnterCritical implements Port, adding the thread-affinity check.
func (p *UnixPort) EnterCritical() {
	p.DefaultPort.EnterCritical()
	if tid := unix.Gettid(); tid != p.bootTid {
		p.DefaultPort.ExitCritical()
		p.Fatal("tinykernel: critical section entered from unexpected OS thread")
	}
}
