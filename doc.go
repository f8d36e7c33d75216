// Package tinykernel implements the core of a preemptive, priority-based
// real-time multitasking kernel: a scheduler, a task state machine,
// time-bounded waiting, and a mutex subsystem supporting both priority
// inheritance and priority ceiling.
//
// # Architecture
//
// A [Kernel] owns all process-wide scheduling state — the per-priority
// ready lists, the ready bitmap, the created-task list, and the current
// and next task pointers. Tasks ([Task]) are created against a Kernel via
// [Kernel.CreateTask], optionally activated immediately, and run as
// goroutines that are handed the CPU one at a time by the kernel's [Port]
// (see below): this reproduces single-CPU, no-parallelism scheduling
// using Go's own concurrency primitives rather than real hardware
// interrupts.
//
// # Port layer
//
// Go programs have no access to interrupt vectors or raw stack pointers,
// so the architecture port described by embedded RTOS kernels is
// replaced here by the [Port] interface: critical sections are a single
// mutex held for the duration of a kernel operation, and a context
// switch is a hand-off of a channel-based baton from the current task's
// goroutine to the next task's goroutine. [DefaultPort] is a goroutine
// baton implementation good enough to drive every scenario in the
// specification this kernel implements; callers on Linux/Darwin may use
// [NewUnixPort] instead, which additionally asserts OS-thread affinity
// via a real syscall.
//
// # Priority and time
//
// Priorities are small integers where 0 is most urgent; [Kernel] is
// configured with a fixed number of priority levels at creation
// ([WithPriorityLevels]), the lowest level being reserved for the
// mandatory idle task. Time is ticks, delivered by a [TickDriver]; tests
// should use [NewFakeClock] to advance time deterministically instead of
// sleeping in real time.
//
// # Mutexes
//
// [Mutex] supports [ProtocolInheritance] (the holder is boosted to the
// priority of its highest-priority waiter, recomputed on every change)
// and [ProtocolCeiling] (the holder is boosted to a fixed ceiling
// priority on acquisition). Both protocols support recursive locking by
// the holder and are unwound automatically on task termination.
//
// # Error handling
//
// All recoverable conditions are returned as one of the sentinel errors
// in errors.go (either bare, as for wait results such as timeouts, or
// wrapped in a [*KernelError] carrying the offending object), never via
// panic/recover — except invariant violations, which
// call the configured fatal trap (see [KernelOption] / [WithFatalHandler])
// the way embedded kernels trap to a debugger.
package tinykernel
