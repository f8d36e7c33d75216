// wait.go - Wait/timer engine
//
// Time-bounded blocking, timeout completion, and cancellation, per §4.4 of
// the specification this package implements.
package tinykernel

// TimeoutInfinite means "block until woken, never time out".
const TimeoutInfinite uint32 = 0xFFFFFFFF

// blockCurrent transitions t out of RUNNABLE and into WAIT, optionally
// enqueuing it on waitQueue (nil for sleep, which enqueues nowhere) and
// arming its one-shot timer if timeout is finite and non-zero. Must be
// called with the critical section held, as the last state mutation
// before the caller releases the lock and calls pendSwitch.
func (k *Kernel) blockCurrent(t *Task, reason WaitReason, waitQueue *ListHead, timeout uint32) {
	k.clearRunnable(t)
	t.state.setFlag(k.fatalf, StateWait)
	t.waitReason = reason
	t.waitQueue = waitQueue
	if waitQueue != nil {
		waitQueue.PushBack(&t.queueNode)
	}
	if timeout != 0 && timeout != TimeoutInfinite {
		t.timer.active = true
		t.timer.generation++
		t.timer.deadline = k.tickCount + uint64(timeout)
		k.timerList.PushBack(&t.timerNode)
	}
}

// completeWait is the single path by which a WAIT task returns to
// RUNNABLE (or, if also SUSPEND, stays blocked in SUSPEND alone): detach
// from whatever wait queue it's on, cancel its timer, record result, and
// either make it runnable or leave it suspended. If t was waiting on an
// inheritance mutex, this also unwinds the priority boost it was
// contributing: a waiter leaving the queue — by timeout, forced release,
// or termination, not just ordinary acquisition — can lower the holder's
// maximum-waiter-priority, and §4.5 requires recomputing on every such
// event, not only on unlock.
func (k *Kernel) completeWait(t *Task, result error) {
	if !t.state.load().Is(StateWait) {
		k.fatalf("tinykernel: completeWait precondition violated, state=%s", t.state.load())
		return
	}
	wq := t.waitQueue
	reason := t.waitReason
	t.queueNode.Remove()
	t.waitQueue = nil
	t.waitResult = result
	if t.timer.active {
		t.timer.active = false
		t.timerNode.Remove()
	}
	t.waitReason = WaitReasonNone
	t.state.clearFlag(k.fatalf, StateWait)
	if !t.state.load().Is(StateSuspend) {
		k.makeRunnable(t)
	}

	k.unwindMutexWaitBoost(reason, wq)
}

// unwindMutexWaitBoost recomputes an inheritance mutex's holder priority
// after one of its waiters (reason/waitQueue captured before detaching)
// leaves the wait queue by any means — acquisition, timeout, forced
// release, or termination — not only by the holder's own unlock. A no-op
// for any other wait reason, or if the mutex has since gone unheld.
func (k *Kernel) unwindMutexWaitBoost(reason WaitReason, wq *ListHead) {
	if reason != WaitReasonMutexInherit || wq == nil {
		return
	}
	if m, ok := wq.Owner.(*Mutex); ok && m.holder != nil {
		k.applyPriorityChain(m.holder, k.recomputePriority(m.holder, m.holder.basePriority))
	}
}

// timeoutFire is the timer engine's expiry callback: complete the wait
// with ErrTimeout.
func (k *Kernel) timeoutFire(t *Task) {
	k.completeWait(t, ErrTimeout)
}

// firstWaitComplete wakes the head (FIFO) of queue with result, optionally
// after running transfer (e.g. moving mutex ownership) under the critical
// section transfer is called in. Reports whether any task was woken.
func (k *Kernel) firstWaitComplete(queue *ListHead, result error, transfer func(t *Task)) bool {
	head := queue.Front()
	if head == nil {
		return false
	}
	t := head.Owner.(*Task)
	if transfer != nil {
		transfer(t)
	}
	k.completeWait(t, result)
	return true
}

// tick advances the timer engine by one tick and charges the current
// task's round-robin time slice, per the tick-driver contract in §6.
func (k *Kernel) tick() {
	k.port.EnterCritical()
	k.tickCount++

	var expired []*Task
	k.timerList.ForEach(func(n *ListNode) {
		t := n.Owner.(*Task)
		if t.timer.deadline <= k.tickCount {
			expired = append(expired, t)
		}
	})
	for _, t := range expired {
		k.timeoutFire(t)
	}

	if cur := k.currentTask; cur != nil && cur != k.idleTask && cur.state.load().Is(StateRunnable) {
		if cur.sliceLeft > 0 {
			cur.sliceLeft--
		}
		if cur.sliceLeft == 0 {
			k.changeRunningPriority(cur, cur.currentPriority)
			cur.sliceLeft = effectiveTimeSlice(cur, k.defaultTimeSlice)
		}
	}
	k.port.ExitCritical()

	// tick runs on the tick driver's own goroutine, never a task's — it
	// must use the non-blocking dispatch, the same as any other
	// interrupt-context caller, or it would park itself waiting on a
	// resumeCh no task will ever signal.
	k.dispatchFromInterrupt()
}

// effectiveTimeSlice returns t.TimeSlice if set, else the kernel default.
func effectiveTimeSlice(t *Task, def uint32) uint32 {
	if t.TimeSlice != 0 {
		return t.TimeSlice
	}
	return def
}
