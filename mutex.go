// mutex.go - Mutex subsystem
//
// Lock/unlock, priority inheritance and priority ceiling, recursion, and
// deadlock tracking, per §4.5 of the specification this package
// implements.
package tinykernel

// MutexProtocol selects which priority-boosting rule a Mutex applies to
// its holder.
type MutexProtocol uint8

const (
	// ProtocolInheritance boosts the holder to the priority of its
	// highest-priority waiter, recomputed whenever that maximum changes.
	ProtocolInheritance MutexProtocol = iota
	// ProtocolCeiling boosts the holder to the mutex's declared ceiling
	// priority immediately on acquisition. Requires WithCeilingProtocol.
	ProtocolCeiling
)

// Mutex is a lock supporting recursive acquisition by its holder and one
// of two priority-boosting protocols.
type Mutex struct {
	kernel *Kernel

	// tag is the stable identity marker, mirroring Task.tag: non-zero
	// while the mutex is live. Mutex has no Delete (unlike Task it holds
	// no separately-reclaimable kernel list slot), so tag is set once in
	// CreateMutex and never cleared; it exists so checkMutexObject can
	// reject a nil or zero-value *Mutex the same way checkObject rejects
	// a stale *Task.
	tag uint64

	// Name is an optional human-readable label, used only for logging.
	Name string

	protocol  MutexProtocol
	ceiling   int
	holder    *Task
	recursion int
	waitQueue ListHead

	// ownedNode links this mutex into its holder's ownedMutexes list.
	ownedNode ListNode
}

// valid reports whether m is a live Mutex, i.e. was returned by
// CreateMutex rather than zero-valued or nil.
func (m *Mutex) valid() bool {
	return m != nil && m.tag != 0
}

// checkMutexObject applies the same ErrInvalidObject gate checkObject
// applies to tasks, when WithParamChecking is enabled.
func (k *Kernel) checkMutexObject(op string, m *Mutex) error {
	if k.paramChecking && !m.valid() {
		return wrapErr(op, m.String(), ErrInvalidObject)
	}
	return nil
}

// MutexParams configures a new Mutex for CreateMutex.
type MutexParams struct {
	Protocol MutexProtocol
	// Ceiling is the priority-ceiling value; required, and only
	// meaningful, when Protocol is ProtocolCeiling.
	Ceiling int
	Name    string
}

// CreateMutex creates a Mutex. ProtocolCeiling requires the kernel to have
// been created with WithCeilingProtocol(true).
func (k *Kernel) CreateMutex(p MutexParams) (*Mutex, error) {
	if p.Protocol == ProtocolCeiling {
		if !k.ceilingProtocol {
			return nil, wrapErr("Kernel.CreateMutex", p.Name, ErrBadParam)
		}
		if p.Ceiling < 0 || p.Ceiling >= k.priorityLevels-1 {
			return nil, wrapErr("Kernel.CreateMutex", p.Name, ErrBadParam)
		}
	}
	m := &Mutex{kernel: k, Name: p.Name, protocol: p.Protocol, ceiling: p.Ceiling}
	m.waitQueue.Reset()
	m.waitQueue.Owner = m // lets applyPriorityChain recover the Mutex from a waiter's t.waitQueue
	m.ownedNode.Owner = m
	m.ownedNode.Reset()

	k.port.EnterCritical()
	k.nextTag++
	m.tag = k.nextTag
	k.port.ExitCritical()

	return m, nil
}

// String implements fmt.Stringer for log-friendly identification.
func (m *Mutex) String() string {
	if m == nil {
		return "<nil mutex>"
	}
	if m.Name != "" {
		return m.Name
	}
	return "mutex"
}

// Holder returns the task currently holding m, or nil if free.
func (m *Mutex) Holder() *Task {
	return m.holder
}

// waitReasonFor returns the wait reason a blocking lock attempt on m
// should record.
func (m *Mutex) waitReasonFor() WaitReason {
	if m.protocol == ProtocolCeiling {
		return WaitReasonMutexCeiling
	}
	return WaitReasonMutexInherit
}

// Lock acquires m for the calling task, blocking up to timeout ticks (0
// returns ErrTimeout immediately if contested; TimeoutInfinite blocks
// indefinitely) if m is held by another task. Recursive: locking m again
// from its current holder succeeds immediately and increments the
// recursion count.
func (k *Kernel) Lock(m *Mutex, timeout uint32) error {
	if err := k.checkMutexObject("Kernel.Lock", m); err != nil {
		return err
	}
	k.port.EnterCritical()
	t := k.currentTask

	if m.holder == nil {
		k.acquireLocked(m, t)
		k.port.ExitCritical()
		k.pendSwitch()
		return nil
	}
	if m.holder == t {
		m.recursion++
		k.port.ExitCritical()
		return nil
	}
	if timeout == 0 {
		k.port.ExitCritical()
		return ErrTimeout
	}

	if k.deadlockDetect {
		t.waitForHolder = m.holder
		if cycle := k.detectCycle(t); cycle != nil && k.onDeadlock != nil {
			k.onDeadlock(cycle)
		}
	}

	k.blockCurrent(t, m.waitReasonFor(), &m.waitQueue, timeout)
	if m.protocol == ProtocolInheritance {
		k.applyPriorityChain(m.holder, k.recomputePriority(m.holder, m.holder.basePriority))
	}
	k.port.ExitCritical()
	k.pendSwitch()

	if k.deadlockDetect {
		k.port.EnterCritical()
		t.waitForHolder = nil
		k.port.ExitCritical()
	}
	return t.waitResult
}

// acquireLocked grants m to t with a fresh recursion count of 1 and
// applies the ceiling boost if applicable. Must be called with the
// critical section held and m known free.
func (k *Kernel) acquireLocked(m *Mutex, t *Task) {
	m.holder = t
	m.recursion = 1
	t.ownedMutexes.PushBack(&m.ownedNode)
	k.applyPriority(t, k.recomputePriority(t, t.basePriority))
}

// Unlock releases m. Must be called by the current holder; if the
// recursion count is above 1 it is merely decremented. On a full release,
// ownership transfers to the head (FIFO) waiter, if any.
func (k *Kernel) Unlock(m *Mutex) error {
	if err := k.checkMutexObject("Kernel.Unlock", m); err != nil {
		return err
	}
	k.port.EnterCritical()
	t := k.currentTask
	if m.holder != t {
		k.port.ExitCritical()
		return wrapErr("Kernel.Unlock", m.String(), ErrIllegalUse)
	}
	if m.recursion > 1 {
		m.recursion--
		k.port.ExitCritical()
		return nil
	}
	k.releaseLocked(m, t)
	k.port.ExitCritical()
	k.pendSwitch()
	return nil
}

// releaseLocked fully releases m from holder, recomputes holder's
// priority, and transfers ownership to the head waiter if any. Must be
// called with the critical section held.
func (k *Kernel) releaseLocked(m *Mutex, holder *Task) {
	m.ownedNode.Remove()
	m.holder = nil
	m.recursion = 0
	k.applyPriority(holder, k.recomputePriority(holder, holder.basePriority))

	k.firstWaitComplete(&m.waitQueue, nil, func(waiter *Task) {
		k.acquireLocked(m, waiter)
	})
}

// unlockAllByTask fully releases every mutex t currently holds; used by
// task termination (§4.3 "Termination").
func (k *Kernel) unlockAllByTask(t *Task) {
	for {
		head := t.ownedMutexes.Front()
		if head == nil {
			return
		}
		m := head.Owner.(*Mutex)
		k.releaseLocked(m, t)
	}
}

// recomputePriority returns the numerically lowest (most urgent) of base
// and, for every mutex t currently holds: the most urgent waiter's priority
// (for ProtocolInheritance; the wait queue itself is FIFO, so every waiter
// is examined) or the mutex's ceiling (for ProtocolCeiling).
func (k *Kernel) recomputePriority(t *Task, base int) int {
	best := base
	t.ownedMutexes.ForEach(func(n *ListNode) {
		m := n.Owner.(*Mutex)
		switch m.protocol {
		case ProtocolInheritance:
			m.waitQueue.ForEach(func(w *ListNode) {
				best = minOrdered(best, w.Owner.(*Task).currentPriority)
			})
		case ProtocolCeiling:
			best = minOrdered(best, m.ceiling)
		}
	})
	return best
}

// applyPriority installs newPrio as t's current priority, migrating t's
// ready-list placement if it is RUNNABLE. A no-op if newPrio already
// equals t's current priority.
func (k *Kernel) applyPriority(t *Task, newPrio int) {
	if newPrio == t.currentPriority {
		return
	}
	if t.state.load().Is(StateRunnable) {
		k.changeRunningPriority(t, newPrio)
	} else {
		t.currentPriority = newPrio
	}
}

// applyPriorityChain applies newPrio to t and, if t is itself blocked
// waiting on another inheritance mutex, propagates the recomputed
// priority to that mutex's holder as well — the transitive boost chain
// §4.5 describes ("if the boosted holder is itself waiting on another
// mutex, propagation continues along the wait chain").
func (k *Kernel) applyPriorityChain(t *Task, newPrio int) {
	k.applyPriority(t, newPrio)
	if !t.state.load().Is(StateWait) || t.waitReason != WaitReasonMutexInherit || t.waitQueue == nil {
		return
	}
	m2, ok := t.waitQueue.Owner.(*Mutex)
	if !ok || m2.holder == nil {
		return
	}
	k.applyPriorityChain(m2.holder, k.recomputePriority(m2.holder, m2.holder.basePriority))
}
