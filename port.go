// port.go - Architecture port contract
//
// An embedded kernel delegates register save/restore, stack
// initialization, and interrupt masking to an architecture-specific port
// module (§6 of the specification this package implements). None of that
// has a meaningful Go analogue: goroutines have no registers a kernel can
// save, and the Go scheduler — not this package — owns real OS-thread
// preemption. [Port] is the point where that hardware contract is
// replaced with a pure-Go equivalent:
//
//   - a critical section becomes holding a single mutex ("interrupts
//     masked to system priority");
//   - a context switch becomes handing a channel-based baton from the
//     goroutine currently holding it to the next task's goroutine, which
//     was parked waiting to receive it.
//
// Exactly one task goroutine holds the baton at any moment, which is what
// makes the rest of the kernel's single-CPU reasoning (current_task is
// always the one actually executing) valid under Go's real concurrency.
package tinykernel

// Port is the substrate a Kernel runs on. [DefaultPort] is sufficient for
// every scenario in the specification; [NewUnixPort] additionally asserts
// OS-thread affinity via a real syscall on platforms that support it.
type Port interface {
	// EnterCritical and ExitCritical bracket a kernel critical section
	// ("interrupts masked to system priority" / restored).
	EnterCritical()
	ExitCritical()

	// Spawn starts t's backing goroutine running run. The goroutine parks
	// immediately, waiting for its first Switch, and must not begin
	// running user code until resumed.
	Spawn(t *Task, run func())

	// Switch hands the baton from the calling goroutine to to, then parks
	// the caller until it is itself resumed by a later Switch. from is
	// the task the calling goroutine is acting as (nil if the caller is
	// the kernel boot goroutine, which is never parked).
	Switch(from, to *Task)

	// ExitNoSave hands the baton to to without parking the caller; used
	// only by Kernel.Exit, whose goroutine ends right afterward.
	ExitNoSave(to *Task)

	// Fatal traps on an internal invariant violation — the Go analogue of
	// the architecture port's fatal-error / debugger-break primitive.
	Fatal(msg string)
}

// DefaultPort is a goroutine-baton [Port] implementation backed by a
// single mutex and one buffered channel per task.
type DefaultPort struct {
	crit  chan struct{} // 1-buffered mutex, so EnterCritical/ExitCritical never allocate
	fatal func(string)
}

// NewDefaultPort returns a ready-to-use [DefaultPort]. Its Fatal panics
// with the violation message.
func NewDefaultPort() *DefaultPort {
	p := &DefaultPort{crit: make(chan struct{}, 1)}
	p.crit <- struct{}{}
	return p
}

// EnterCritical implements Port.
func (p *DefaultPort) EnterCritical() {
	<-p.crit
}

// ExitCritical implements Port.
func (p *DefaultPort) ExitCritical() {
	p.crit <- struct{}{}
}

// Spawn implements Port.
func (p *DefaultPort) Spawn(t *Task, run func()) {
	t.resumeCh = make(chan struct{}, 1)
	t.done = make(chan struct{})
	go func() {
		<-t.resumeCh
		run()
		close(t.done)
	}()
}

// Switch implements Port.
func (p *DefaultPort) Switch(from, to *Task) {
	to.resumeCh <- struct{}{}
	if from != nil {
		<-from.resumeCh
	}
}

// ExitNoSave implements Port.
func (p *DefaultPort) ExitNoSave(to *Task) {
	to.resumeCh <- struct{}{}
}

// Fatal implements Port.
func (p *DefaultPort) Fatal(msg string) {
	if p.fatal != nil {
		p.fatal(msg)
		return
	}
	panic(msg)
}
