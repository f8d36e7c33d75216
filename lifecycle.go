// lifecycle.go - Task lifecycle API
//
// Create, activate, suspend/resume, sleep, wakeup, release-wait, change
// priority, exit, terminate, delete, and state-get, per §4.3 of the
// specification this package implements. Every operation validates its
// arguments, runs its state mutation inside the port's critical section,
// and pends a context switch on exit where applicable; "i-" prefixed
// variants are the ISR-safe counterparts that mark a switch pending
// without performing it, leaving that to the caller's interrupt
// epilogue — see ISRExit.
package tinykernel

import "runtime"

// MinStackSize is the smallest StackSize CreateTask accepts. No memory is
// actually reserved by this simulator; the check exists so a direct port
// of embedded application code that validates against it keeps behaving
// the same way.
const MinStackSize = 1

// TaskParams configures a new task for CreateTask.
type TaskParams struct {
	// Fn is the task's entry point; returning from Fn is equivalent to
	// the task calling Exit itself.
	Fn func(arg any)
	// Arg is passed to Fn.
	Arg any
	// Priority is the task's base priority; 0 is most urgent.
	Priority int
	// StackSize must be >= MinStackSize.
	StackSize int
	// Name is an optional label used only for logging.
	Name string
	// TimeSlice overrides the kernel's default round-robin slice length,
	// in ticks; zero means "use the kernel default".
	TimeSlice uint32
	// Activate, if true, immediately activates the task after creation.
	Activate bool
}

// CreateTask creates a new task in the DORMANT state (optionally
// activating it immediately). Callable from task context or before the
// kernel has started.
func (k *Kernel) CreateTask(p TaskParams) (*Task, error) {
	if p.Fn == nil || p.StackSize < MinStackSize || p.Priority < 0 || p.Priority >= k.priorityLevels {
		return nil, wrapErr("Kernel.CreateTask", p.Name, ErrBadParam)
	}

	t := &Task{
		kernel:          k,
		Name:            p.Name,
		fn:              p.Fn,
		arg:             p.Arg,
		StackSize:       p.StackSize,
		basePriority:    p.Priority,
		currentPriority: p.Priority,
		TimeSlice:       p.TimeSlice,
	}
	t.queueNode.Owner = t
	t.queueNode.Reset()
	t.createdNode.Owner = t
	t.createdNode.Reset()
	t.timerNode.Owner = t
	t.timerNode.Reset()
	t.deadlockNode.Owner = t
	t.deadlockNode.Reset()
	t.ownedMutexes.Reset()
	t.state.set(k.fatalf, StateDormant)
	t.sliceLeft = effectiveTimeSlice(t, k.defaultTimeSlice)

	k.port.EnterCritical()
	k.nextTag++
	t.tag = k.nextTag
	k.createdList.PushBack(&t.createdNode)
	k.createdCount++
	k.port.ExitCritical()

	k.port.Spawn(t, func() {
		k.markCurrent(t)
		t.fn(t.arg)
		k.taskReturned(t)
	})

	logInfo(k.logger, "task", "created", map[string]interface{}{"name": t.String(), "priority": p.Priority})

	if p.Activate {
		if err := k.Activate(t); err != nil {
			return t, err
		}
	}
	return t, nil
}

func (k *Kernel) checkObject(op string, t *Task) error {
	if k.paramChecking && !t.valid() {
		return wrapErr(op, t.String(), ErrInvalidObject)
	}
	return nil
}

// Activate transitions t from DORMANT to RUNNABLE.
func (k *Kernel) Activate(t *Task) error { return k.activate("Kernel.Activate", t, false) }

// IActivate is the ISR-safe variant of Activate.
func (k *Kernel) IActivate(t *Task) error { return k.activate("Kernel.IActivate", t, true) }

func (k *Kernel) activate(op string, t *Task, isr bool) error {
	if err := k.checkObject(op, t); err != nil {
		return err
	}
	k.port.EnterCritical()
	if !t.state.load().Is(StateDormant) {
		k.port.ExitCritical()
		return wrapErr(op, t.String(), ErrBadState)
	}
	t.state.clearFlag(k.fatalf, StateDormant)
	t.sliceLeft = effectiveTimeSlice(t, k.defaultTimeSlice)
	k.makeRunnable(t)
	k.port.ExitCritical()
	if !isr {
		k.pendSwitch()
	}
	return nil
}

// Suspend administratively suspends t. Legal from any state except
// already-SUSPEND or DORMANT.
func (k *Kernel) Suspend(t *Task) error {
	const op = "Kernel.Suspend"
	if err := k.checkObject(op, t); err != nil {
		return err
	}
	k.port.EnterCritical()
	st := t.state.load()
	if st.Is(StateSuspend) || st.Is(StateDormant) {
		k.port.ExitCritical()
		return wrapErr(op, t.String(), ErrBadState)
	}
	if st.Is(StateRunnable) {
		k.clearRunnable(t)
	}
	t.state.setFlag(k.fatalf, StateSuspend)
	k.port.ExitCritical()
	k.pendSwitch()
	return nil
}

// Resume clears an administrative suspension. If t is not also WAIT, it
// becomes RUNNABLE; otherwise it remains blocked in WAIT alone.
func (k *Kernel) Resume(t *Task) error {
	const op = "Kernel.Resume"
	if err := k.checkObject(op, t); err != nil {
		return err
	}
	k.port.EnterCritical()
	if !t.state.load().Is(StateSuspend) {
		k.port.ExitCritical()
		return wrapErr(op, t.String(), ErrBadState)
	}
	t.state.clearFlag(k.fatalf, StateSuspend)
	if !t.state.load().Is(StateWait) {
		k.makeRunnable(t)
	}
	k.port.ExitCritical()
	k.pendSwitch()
	return nil
}

// Sleep blocks the calling task for timeout ticks. timeout == 0 returns
// ErrTimeout immediately without blocking. Must be called from the task
// whose goroutine is currently running.
func (k *Kernel) Sleep(timeout uint32) error {
	if timeout == 0 {
		return ErrTimeout
	}
	k.port.EnterCritical()
	t := k.currentTask
	k.blockCurrent(t, WaitReasonSleep, nil, timeout)
	k.port.ExitCritical()
	k.pendSwitch()
	return t.waitResult
}

// Wakeup wakes a task sleeping via Sleep. Precondition: target is WAIT
// with reason Sleep.
func (k *Kernel) Wakeup(t *Task) error { return k.wakeup("Kernel.Wakeup", t, false) }

// IWakeup is the ISR-safe variant of Wakeup.
func (k *Kernel) IWakeup(t *Task) error { return k.wakeup("Kernel.IWakeup", t, true) }

func (k *Kernel) wakeup(op string, t *Task, isr bool) error {
	if err := k.checkObject(op, t); err != nil {
		return err
	}
	k.port.EnterCritical()
	if !t.state.load().Is(StateWait) || t.waitReason != WaitReasonSleep {
		k.port.ExitCritical()
		return wrapErr(op, t.String(), ErrBadState)
	}
	k.completeWait(t, nil)
	k.port.ExitCritical()
	if !isr {
		k.pendSwitch()
	}
	return nil
}

// ReleaseWait forcibly terminates any wait on t, delivering ErrForced.
// Precondition: target is WAIT, for any reason.
func (k *Kernel) ReleaseWait(t *Task) error { return k.releaseWait("Kernel.ReleaseWait", t, false) }

// IReleaseWait is the ISR-safe variant of ReleaseWait.
func (k *Kernel) IReleaseWait(t *Task) error {
	return k.releaseWait("Kernel.IReleaseWait", t, true)
}

func (k *Kernel) releaseWait(op string, t *Task, isr bool) error {
	if err := k.checkObject(op, t); err != nil {
		return err
	}
	k.port.EnterCritical()
	if !t.state.load().Is(StateWait) {
		k.port.ExitCritical()
		return wrapErr(op, t.String(), ErrBadState)
	}
	k.completeWait(t, ErrForced)
	k.port.ExitCritical()
	if !isr {
		k.pendSwitch()
	}
	return nil
}

// ChangePriority changes t's base priority to p, or restores t's existing
// base priority (a no-op on basePriority itself, but still recomputes and
// reapplies any mutex boost on top of it) if p == 0. Legal on any
// non-DORMANT task; p must be in [0, priorityLevels-1) (the idle priority
// slot is reserved).
func (k *Kernel) ChangePriority(t *Task, p int) error {
	const op = "Kernel.ChangePriority"
	if err := k.checkObject(op, t); err != nil {
		return err
	}
	if p < 0 || p >= k.priorityLevels-1 {
		return wrapErr(op, t.String(), ErrBadParam)
	}
	k.port.EnterCritical()
	if t.state.load().Is(StateDormant) {
		k.port.ExitCritical()
		return wrapErr(op, t.String(), ErrBadState)
	}
	if p == 0 {
		p = t.basePriority
	}
	t.basePriority = p
	k.applyPriority(t, k.recomputePriority(t, p))
	k.port.ExitCritical()
	k.pendSwitch()
	return nil
}

// StateGet returns t's current state, snapshotted under the critical
// section.
func (k *Kernel) StateGet(t *Task) (TaskState, error) {
	const op = "Kernel.StateGet"
	if err := k.checkObject(op, t); err != nil {
		return 0, err
	}
	k.port.EnterCritical()
	st := t.state.load()
	k.port.ExitCritical()
	return st, nil
}

// Exit terminates the calling task — unlocking every mutex it holds,
// returning it to DORMANT at its base priority — and switches away
// without preserving its context, the one-way primitive described in §9's
// design notes. It never returns: once the baton is handed to the next
// task, the calling goroutine ends via runtime.Goexit.
func (k *Kernel) Exit() {
	k.port.EnterCritical()
	t := k.currentTask
	if t == nil {
		k.port.ExitCritical()
		k.fatalf("tinykernel: Exit called with no current task")
		return
	}
	k.terminateLocked(t)
	next := k.nextTask
	// The exiting task never resumes to reinstall itself (see pendSwitch),
	// so the task it hands the baton to is installed here.
	k.currentTask = next
	k.port.ExitCritical()

	logInfo(k.logger, "task", "exited", map[string]interface{}{"name": t.String()})
	k.port.ExitNoSave(next)
	runtime.Goexit()
}

// taskReturned is invoked when a task's Fn returns without it calling
// Exit itself; behaviorally identical to Exit.
func (k *Kernel) taskReturned(t *Task) {
	k.Exit()
}

// Terminate forcibly drives a non-current, non-DORMANT task back to
// DORMANT, unlocking its held mutexes first. Unlike Exit, the target's
// own goroutine is not running and is simply left parked forever on its
// resume channel — Go provides no mechanism to destroy a goroutine's
// stack the way an architecture port discards a task's hardware stack,
// so a forcibly-terminated task's goroutine is leaked rather than
// reclaimed, a limitation with no effect on any observable kernel state.
func (k *Kernel) Terminate(t *Task) error {
	const op = "Kernel.Terminate"
	if err := k.checkObject(op, t); err != nil {
		return err
	}
	k.port.EnterCritical()
	if t == k.currentTask {
		k.port.ExitCritical()
		return wrapErr(op, t.String(), ErrBadState)
	}
	if t.state.load().Is(StateDormant) {
		k.port.ExitCritical()
		return wrapErr(op, t.String(), ErrBadState)
	}
	k.terminateLocked(t)
	k.port.ExitCritical()
	k.pendSwitch()
	return nil
}

// terminateLocked is the shared DORMANT-driving logic for Exit and
// Terminate. Must be called with the critical section held.
func (k *Kernel) terminateLocked(t *Task) {
	k.unlockAllByTask(t)
	st := t.state.load()
	switch {
	case st.Is(StateRunnable):
		k.clearRunnable(t)
	case st.Is(StateWait):
		wq := t.waitQueue
		reason := t.waitReason
		t.queueNode.Remove()
		t.waitQueue = nil
		if t.timer.active {
			t.timer.active = false
			t.timerNode.Remove()
		}
		k.unwindMutexWaitBoost(reason, wq)
	}
	t.state.set(k.fatalf, StateDormant)
	t.currentPriority = t.basePriority
	t.waitReason = WaitReasonNone
	t.waitForHolder = nil
}

// Delete removes a DORMANT task from the created-task list and clears its
// identity tag; any *Task held by a caller after this becomes invalid.
func (k *Kernel) Delete(t *Task) error {
	const op = "Kernel.Delete"
	if err := k.checkObject(op, t); err != nil {
		return err
	}
	k.port.EnterCritical()
	if !t.state.load().Is(StateDormant) {
		k.port.ExitCritical()
		return wrapErr(op, t.String(), ErrBadState)
	}
	t.createdNode.Remove()
	k.createdCount--
	t.tag = 0
	k.port.ExitCritical()
	return nil
}
