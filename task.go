// task.go - Task control block
package tinykernel

// WaitReason identifies why a task is blocked, so the completion path knows
// which reason-specific cleanup (if any) to run.
type WaitReason uint8

const (
	// WaitReasonNone: not waiting.
	WaitReasonNone WaitReason = iota
	// WaitReasonSleep: blocked in Sleep; only Wakeup/IWakeup or timeout clears it.
	WaitReasonSleep
	// WaitReasonMutexInherit: blocked acquiring a priority-inheritance Mutex.
	WaitReasonMutexInherit
	// WaitReasonMutexCeiling: blocked acquiring a priority-ceiling Mutex.
	WaitReasonMutexCeiling
)

// String returns a human-readable wait reason, mirroring the teacher's
// convention of giving every enum a String for log output.
func (r WaitReason) String() string {
	switch r {
	case WaitReasonNone:
		return "none"
	case WaitReasonSleep:
		return "sleep"
	case WaitReasonMutexInherit:
		return "mutex-inherit"
	case WaitReasonMutexCeiling:
		return "mutex-ceiling"
	default:
		return "unknown"
	}
}

// Task is the kernel's task control block. Every field that participates in
// a queue is an embedded or pointed-to [ListNode] so enqueue/dequeue never
// allocates; the kernel is the sole owner of task memory once Create
// returns it, mirroring the "caller/kernel-arena-owned, never GC'd
// mid-flight" discipline of the embedded original, even though Go's
// garbage collector makes that discipline advisory rather than load
// bearing.
type Task struct {
	kernel *Kernel

	// tag is the stable identity marker: non-zero while the task is live,
	// zeroed by Delete. Any API taking a *Task checks this before touching
	// kernel state, so a caller that retains a pointer past Delete gets
	// ErrInvalidObject instead of corrupting scheduler state.
	tag uint64

	// Name is an optional human-readable label, used only for logging.
	Name string

	fn  func(arg any)
	arg any

	// StackSize records the size the task was created with; no real stack
	// is allocated in this simulator (the Go runtime manages the backing
	// goroutine's stack), but the field is retained so Create can still
	// enforce "stack >= minimum" the way the specification requires.
	StackSize int

	basePriority    int
	currentPriority int

	state      taskStateBox
	waitReason WaitReason
	waitResult error

	// waitQueue is the wait queue this task is currently enqueued on, or
	// nil if detached (including while sleeping, which enqueues nowhere).
	waitQueue *ListHead

	// queueNode links this task into exactly one of: a priority's ready
	// list, or a wait queue — never both, per the "at most one queue"
	// invariant.
	queueNode ListNode

	// timer is this task's one-shot wait timer, armed by blockCurrent
	// whenever a finite timeout is supplied.
	timer     taskTimer
	timerNode ListNode

	// createdNode links this task into Kernel.createdList.
	createdNode ListNode

	// ownedMutexes is the list of Mutex.ownedNode entries for every mutex
	// this task currently holds.
	ownedMutexes ListHead

	// deadlockNode is initialized by CreateTask but not linked anywhere:
	// deadlock.go builds the wait-for chain it walks as a slice.
	deadlockNode ListNode

	// waitForHolder is the task T is currently blocked waiting to acquire
	// a mutex from, or nil. Set only while deadlock detection is enabled
	// and T is blocked on a mutex; forms the wait-for graph edge
	// deadlock.go walks looking for a cycle.
	waitForHolder *Task

	// TimeSlice is the number of ticks this task runs before round-robin
	// rotation to the next equal-priority ready task; zero means "use the
	// kernel's default" (see WithDefaultTimeSlice).
	TimeSlice uint32
	sliceLeft uint32

	// resumeCh is this task's half of the baton hand-off (see port.go):
	// receiving from it is how the task's goroutine waits for the CPU.
	resumeCh chan struct{}
	done     chan struct{}
}

// taskTimer is a one-shot deadline used for wait timeouts. At-most-once
// delivery per wait (§5 of the specification this implements) comes from
// completeWait clearing active and unlinking timerNode from
// Kernel.timerList under the critical section, so tick never sees a
// completed wait's timer. generation counts how many times the timer has
// been armed; nothing compares it.
type taskTimer struct {
	active     bool
	generation uint64
	deadline   uint64 // absolute tick count
}

// timerNode links this task into Kernel.timerList while its timer is
// active; declared on Task (not embedded in taskTimer) to keep taskTimer a
// plain value type.

// Priority returns the task's current (possibly boosted) priority.
func (t *Task) Priority() int {
	return t.currentPriority
}

// BasePriority returns the task's priority as assigned at creation or by
// the most recent ChangePriority call.
func (t *Task) BasePriority() int {
	return t.basePriority
}

// State returns the task's current state bit-set.
func (t *Task) State() TaskState {
	return t.state.load()
}

// valid reports whether t is a live task, i.e. has not been Delete'd.
func (t *Task) valid() bool {
	return t != nil && t.tag != 0
}

// String implements fmt.Stringer for log-friendly identification.
func (t *Task) String() string {
	if t == nil {
		return "<nil task>"
	}
	if t.Name != "" {
		return t.Name
	}
	return "task"
}
