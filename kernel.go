// kernel.go - Kernel context and tick processing
//
// Kernel owns every piece of process-wide scheduler state named in §3 of
// the specification this package implements (ready_list, ready_bitmap,
// current_task, next_task, created_list). The specification's design
// notes allow a single static for these when only one kernel instance
// exists; here they are instead fields on an explicit Kernel value, so
// multiple independent kernels — e.g. one per test — can coexist in the
// same process without any global state at all.
package tinykernel

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Kernel is a single schedulable universe: its own ready queues, its own
// task set, its own tick count. Safe for concurrent use via its Port's
// critical section; callers never need to take a separate lock.
type Kernel struct {
	port       Port
	tickDriver TickDriver
	logger     Logger
	fatal      func(string)

	priorityLevels   int
	paramChecking    bool
	deadlockDetect   bool
	ceilingProtocol  bool
	defaultTimeSlice uint32
	onDeadlock       func([]*Task)

	readyList   []ListHead
	readyBitmap uint64
	readyCount  int
	currentTask *Task
	nextTask    *Task
	createdList ListHead
	createdCount int
	idleTask    *Task
	timerList   ListHead

	nextTag   uint64
	tickCount uint64
}

// New creates a Kernel configured by opts. The idle task is not created
// until Start.
func New(opts ...KernelOption) (*Kernel, error) {
	cfg, err := resolveKernelOptions(opts)
	if err != nil {
		return nil, err
	}

	k := &Kernel{
		port:             cfg.port,
		tickDriver:       cfg.tickDriver,
		logger:           cfg.logger,
		fatal:            cfg.fatal,
		priorityLevels:   cfg.priorityLevels,
		paramChecking:    cfg.paramChecking,
		deadlockDetect:   cfg.deadlockDetect,
		ceilingProtocol:  cfg.ceilingProtocol,
		defaultTimeSlice: cfg.defaultTimeSlice,
		onDeadlock:       cfg.onDeadlock,
		readyList:        make([]ListHead, cfg.priorityLevels),
	}
	for i := range k.readyList {
		k.readyList[i].Reset()
	}
	k.createdList.Reset()
	k.timerList.Reset()
	return k, nil
}

// fatalf formats msg and routes it through the kernel's fatal handler: the
// one set by WithFatalHandler, else the port's own Fatal trap.
func (k *Kernel) fatalf(format string, args ...any) {
	k.fatal(fmt.Sprintf(format, args...))
}

// Start creates and activates the kernel's mandatory idle task at the
// lowest priority slot, running idleFunc, then performs the kernel's
// initial dispatch. idleFunc must never return — the idle task must
// always remain RUNNABLE (§4.2); a typical idleFunc is an infinite loop
// that parks however the embedder's platform idles (e.g. WFI on real
// hardware, or simply select{} here).
func (k *Kernel) Start(idleFunc func()) (*Task, error) {
	if idleFunc == nil {
		return nil, wrapErr("Kernel.Start", "", ErrBadParam)
	}
	idle, err := k.CreateTask(TaskParams{
		Priority:  k.priorityLevels - 1,
		Fn:        func(any) { idleFunc() },
		StackSize: 1,
		Name:      "idle",
	})
	if err != nil {
		return nil, err
	}

	k.port.EnterCritical()
	k.idleTask = idle
	k.port.ExitCritical()

	// The boot goroutine is not a task — like the tick driver, it must
	// not take the blocking path a task's own Activate call relies on,
	// or it risks parking itself on a resumeCh nothing will ever signal.
	// IActivate + ISRExit is the same non-blocking shape tick() uses.
	if err := k.IActivate(idle); err != nil {
		return nil, err
	}
	k.ISRExit()
	logInfo(k.logger, "sched", "kernel started", map[string]interface{}{"priority_levels": k.priorityLevels})
	return idle, nil
}

// Run drives the tick driver until ctx is canceled, advancing timers and
// charging the current task's time slice on every tick (§6's tick-driver
// contract). It returns ctx.Err() on cancellation.
func (k *Kernel) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticks := k.tickDriver.Ticks()
		for {
			select {
			case <-ctx.Done():
				k.tickDriver.Stop()
				return ctx.Err()
			case <-ticks:
				k.tick()
			}
		}
	})
	return g.Wait()
}

// PriorityLevels returns the number of ready-queue priority slots.
func (k *Kernel) PriorityLevels() int {
	return k.priorityLevels
}
