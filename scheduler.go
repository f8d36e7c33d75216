// scheduler.go - Scheduler core
//
// The ready-queue bitmap, next-task selection, priority change, and
// context-switch pend logic described in §4.2 of the specification this
// package implements. Every exported Kernel method that touches this
// state does so only while holding the Port's critical section.
package tinykernel

import (
	"math/bits"
)

// selectNext finds the lowest-numbered set bit in k.readyBitmap (an O(1)
// find-first-set via math/bits) and sets k.nextTask to the head of that
// priority's ready list. Called whenever the highest ready priority may
// have changed. Must be called with the critical section held.
func (k *Kernel) selectNext() {
	if k.readyBitmap == 0 {
		k.fatalf("tinykernel: ready bitmap empty, idle task must always be runnable")
		return
	}
	p := bits.TrailingZeros64(k.readyBitmap)
	head := k.readyList[p].Front()
	if head == nil {
		k.fatalf("tinykernel: ready bitmap bit %d set with empty list", p)
		return
	}
	k.nextTask = taskOf(head)
}

// makeRunnable transitions t to RUNNABLE and appends it to its priority's
// ready list. Precondition: t's state is "none" (checked by callers that
// already cleared WAIT/SUSPEND, or by Create/Activate on a fresh task).
func (k *Kernel) makeRunnable(t *Task) {
	if t.state.load() != 0 {
		k.fatalf("tinykernel: makeRunnable precondition violated, state=%s", t.state.load())
		return
	}
	t.state.setFlag(k.fatalf, StateRunnable)
	k.readyList[t.currentPriority].PushBack(&t.queueNode)
	k.readyBitmap |= 1 << uint(t.currentPriority)
	k.readyCount++
	if k.nextTask == nil || t.currentPriority < k.nextTask.currentPriority {
		k.nextTask = t
	}
}

// clearRunnable removes t from the ready list it is linked into. t must be
// exactly RUNNABLE. It is a fatal error to clear the idle task's RUNNABLE
// state, since the idle task must always be available to run.
func (k *Kernel) clearRunnable(t *Task) {
	if !t.state.load().Is(StateRunnable) {
		k.fatalf("tinykernel: clearRunnable precondition violated, state=%s", t.state.load())
		return
	}
	if t == k.idleTask {
		k.fatalf("tinykernel: attempted to clear idle task's RUNNABLE state")
		return
	}
	t.state.clearFlag(k.fatalf, StateRunnable)
	p := t.currentPriority
	t.queueNode.Remove()
	k.readyCount--
	if k.readyList[p].Empty() {
		k.readyBitmap &^= 1 << uint(p)
		k.selectNext()
	} else if k.nextTask == t {
		k.nextTask = taskOf(k.readyList[p].Front())
	}
}

// changeRunningPriority moves a RUNNABLE task t from its current ready
// list to the list for newPriority, placing it at the tail (the
// round-robin tie-break for tasks that arrive at an already-occupied
// priority level).
func (k *Kernel) changeRunningPriority(t *Task, newPriority int) {
	if !t.state.load().Is(StateRunnable) {
		k.fatalf("tinykernel: changeRunningPriority precondition violated, state=%s", t.state.load())
		return
	}
	oldPriority := t.currentPriority
	t.queueNode.Remove()
	if k.readyList[oldPriority].Empty() {
		k.readyBitmap &^= 1 << uint(oldPriority)
	}
	t.currentPriority = newPriority
	k.readyList[newPriority].PushBack(&t.queueNode)
	k.readyBitmap |= 1 << uint(newPriority)
	k.selectNext()
}

// pendSwitch checks whether k.nextTask differs from k.currentTask and, if
// so, asks the port layer to hand off the baton. Must be called outside
// the critical section — the critical section commits state changes and
// releases the lock, then the port layer switches context, exactly as §5
// requires.
//
// The goroutine that calls pendSwitch may not be the one that returns
// from it: port.Switch(cur, next) only returns once cur is itself handed
// the baton again, at some later, unrelated pendSwitch call elsewhere. So
// "cur" here must be re-installed as k.currentTask on our own way back
// in — it is never correct to install "next", which by the time we
// resume refers to some other task's switch target from long ago.
func (k *Kernel) pendSwitch() {
	k.port.EnterCritical()
	next := k.nextTask
	cur := k.currentTask
	k.port.ExitCritical()

	if next == cur || next == nil {
		return
	}

	k.port.Switch(cur, next)

	if cur != nil {
		k.port.EnterCritical()
		k.currentTask = cur
		k.port.ExitCritical()
	}
}

// dispatchFromInterrupt is pendSwitch's non-blocking counterpart, for
// callers that are not themselves a task's own goroutine — the tick
// driver, and any genuine interrupt context. It hands the baton to
// k.nextTask exactly like pendSwitch, but never parks the calling
// goroutine: there is no "cur" to hand back to, since the caller isn't
// cur's goroutine in the first place. The awakened task reinstalls
// itself as k.currentTask when its own earlier, blocking pendSwitch
// call returns — see the comment on pendSwitch.
func (k *Kernel) dispatchFromInterrupt() {
	k.port.EnterCritical()
	next := k.nextTask
	cur := k.currentTask
	k.port.ExitCritical()

	if next == cur || next == nil {
		return
	}

	k.port.Switch(nil, next)
}

// ISRExit performs any switch an "I"-prefixed call (IActivate, IWakeup,
// IReleaseWait) left pending. Those calls skip pendSwitch so the actual
// context switch can be deferred to the interrupt epilogue, matching
// real hardware where the trap return — not the handler body — is what
// restores a (possibly different) task's context; call this once, at
// the end of the handler, after the last such primitive.
func (k *Kernel) ISRExit() {
	k.dispatchFromInterrupt()
}

// markCurrent installs t as k.currentTask. Called once, by a task's own
// goroutine, the first time it is ever dispatched (see CreateTask's Spawn
// wrapper) — every subsequent re-dispatch re-installs itself via
// pendSwitch instead.
func (k *Kernel) markCurrent(t *Task) {
	k.port.EnterCritical()
	k.currentTask = t
	k.port.ExitCritical()
}

// taskOf recovers the *Task owning a ListNode that was linked via its
// queueNode field.
func taskOf(n *ListNode) *Task {
	if n == nil {
		return nil
	}
	return n.Owner.(*Task)
}
