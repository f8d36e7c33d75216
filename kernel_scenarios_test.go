package tinykernel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// bootIdle starts the kernel with an idle task whose body runs setup
// (typically activating the scenario's first real task) before parking
// forever — setup runs on idle's own goroutine, which is the only safe
// place for "boot" code to call a blocking kernel primitive like Activate,
// since by then idle genuinely is k.currentTask (see scheduler.go's
// pendSwitch doc comment on why an external caller cannot do this).
func bootIdle(t *testing.T, k *Kernel, setup func()) {
	t.Helper()
	_, err := k.Start(func() {
		if setup != nil {
			setup()
		}
		select {}
	})
	require.NoError(t, err)
}

func TestPriorityPreemption(t *testing.T) {
	k, err := New(WithPriorityLevels(8))
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	done := make(chan struct{})

	high, err := k.CreateTask(TaskParams{
		Priority:  1,
		StackSize: 1,
		Name:      "high",
		Fn: func(any) {
			record("high-start")
			record("high-end")
		},
	})
	require.NoError(t, err)

	low, err := k.CreateTask(TaskParams{
		Priority:  5,
		StackSize: 1,
		Name:      "low",
		Fn: func(any) {
			record("low-start")
			require.NoError(t, k.Activate(high))
			record("low-resumed")
			close(done)
		},
	})
	require.NoError(t, err)

	bootIdle(t, k, func() {
		require.NoError(t, k.Activate(low))
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for low task to resume")
	}

	require.Equal(t, []string{"low-start", "high-start", "high-end", "low-resumed"}, order)
}

func TestFIFOWake(t *testing.T) {
	k, err := New(WithPriorityLevels(8))
	require.NoError(t, err)

	m, err := k.CreateMutex(MutexParams{Name: "fifo"})
	require.NoError(t, err)

	// holder locks first and then blocks on a plain Go channel without
	// yielding the CPU, so the waiters activated below stay RUNNABLE and do
	// not reach Lock until holder has unlocked m and exited. They then run
	// in ready-queue (activation) order, each finding m free; the final
	// assertion checks that order.
	release := make(chan struct{})
	holderReady := make(chan struct{})
	holder, err := k.CreateTask(TaskParams{
		Priority: 3, StackSize: 1, Name: "holder",
		Fn: func(any) {
			require.NoError(t, k.Lock(m, TimeoutInfinite))
			close(holderReady)
			<-release
			require.NoError(t, k.Unlock(m))
		},
	})
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	waiterDone := make(chan struct{}, 3)
	makeWaiter := func(name string) *Task {
		tsk, err := k.CreateTask(TaskParams{
			Priority: 3, StackSize: 1, Name: name,
			Fn: func(any) {
				require.NoError(t, k.Lock(m, TimeoutInfinite))
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				require.NoError(t, k.Unlock(m))
				waiterDone <- struct{}{}
			},
		})
		require.NoError(t, err)
		return tsk
	}

	waiterA := makeWaiter("A")
	waiterB := makeWaiter("B")
	waiterC := makeWaiter("C")

	bootIdle(t, k, func() {
		require.NoError(t, k.Activate(holder))
	})

	select {
	case <-holderReady:
	case <-time.After(5 * time.Second):
		t.Fatal("holder never acquired the mutex")
	}

	// Activate waiters directly from this goroutine. Safe here because
	// every waiter shares holder's priority (3): makeRunnable never raises
	// nextTask above an equal-priority holder, so Activate's pendSwitch
	// sees next == cur and returns immediately without trying to block this
	// (non-task) goroutine on anyone's resumeCh.
	require.NoError(t, k.Activate(waiterA))
	require.NoError(t, k.Activate(waiterB))
	require.NoError(t, k.Activate(waiterC))

	close(release)

	for i := 0; i < 3; i++ {
		select {
		case <-waiterDone:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for a waiter to complete")
		}
	}

	require.Equal(t, []string{"A", "B", "C"}, order)
}

func TestPriorityInheritance(t *testing.T) {
	k, err := New(WithPriorityLevels(8))
	require.NoError(t, err)

	m, err := k.CreateMutex(MutexParams{Protocol: ProtocolInheritance, Name: "inherit"})
	require.NoError(t, err)

	boosted := make(chan struct{})
	proceed := make(chan struct{})
	lowDone := make(chan struct{})

	var high *Task
	low, err := k.CreateTask(TaskParams{
		Priority: 6, StackSize: 1, Name: "low",
		Fn: func(any) {
			require.NoError(t, k.Lock(m, TimeoutInfinite))
			// Activating high from low's own goroutine is task-context: this
			// call legitimately blocks until high itself yields back, which
			// happens the moment high's Lock(m) finds m held and blocks —
			// boosting low's priority before handing the CPU back here.
			require.NoError(t, k.Activate(high))
			close(boosted)
			<-proceed
			require.NoError(t, k.Unlock(m))
			close(lowDone)
		},
	})
	require.NoError(t, err)

	highDone := make(chan struct{})
	high, err = k.CreateTask(TaskParams{
		Priority: 1, StackSize: 1, Name: "high",
		Fn: func(any) {
			require.NoError(t, k.Lock(m, TimeoutInfinite))
			require.NoError(t, k.Unlock(m))
			close(highDone)
		},
	})
	require.NoError(t, err)

	bootIdle(t, k, func() {
		require.NoError(t, k.Activate(low))
	})

	select {
	case <-boosted:
	case <-time.After(5 * time.Second):
		t.Fatal("low never regained control after activating high")
	}

	// high is now blocked waiting on m; low should be boosted to high's
	// priority (1) for the duration.
	st, err := k.StateGet(high)
	require.NoError(t, err)
	require.True(t, st.Is(StateWait))
	require.Equal(t, 1, low.Priority(), "low should have inherited high's priority while high waits on its mutex")

	close(proceed)

	for _, ch := range []chan struct{}{lowDone, highDone} {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for tasks to finish")
		}
	}

	require.Equal(t, 6, low.Priority(), "low should be restored to its base priority after releasing the mutex")
}

func TestRecursiveLock(t *testing.T) {
	k, err := New(WithPriorityLevels(8))
	require.NoError(t, err)

	m, err := k.CreateMutex(MutexParams{Name: "recursive"})
	require.NoError(t, err)

	done := make(chan struct{})
	var holderDuringLocks *Task
	task, err := k.CreateTask(TaskParams{
		Priority: 3, StackSize: 1, Name: "recurser",
		Fn: func(any) {
			require.NoError(t, k.Lock(m, TimeoutInfinite))
			require.NoError(t, k.Lock(m, TimeoutInfinite))
			require.NoError(t, k.Lock(m, TimeoutInfinite))
			holderDuringLocks = m.Holder()
			require.NoError(t, k.Unlock(m))
			require.NotNil(t, m.Holder(), "mutex must still be held after only 1 of 3 unlocks")
			require.NoError(t, k.Unlock(m))
			require.NotNil(t, m.Holder(), "mutex must still be held after only 2 of 3 unlocks")
			require.NoError(t, k.Unlock(m))
			require.Nil(t, m.Holder(), "mutex must be free after the matching 3rd unlock")
			close(done)
		},
	})
	require.NoError(t, err)

	bootIdle(t, k, func() {
		require.NoError(t, k.Activate(task))
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for recursive lock scenario")
	}

	require.Equal(t, task, holderDuringLocks)
}

func TestTimeout(t *testing.T) {
	k, err := New(WithPriorityLevels(8), WithTickDriver(NewFakeClock()))
	require.NoError(t, err)
	clock := k.tickDriver.(*FakeClock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErrCh := make(chan error, 1)
	go func() { runErrCh <- k.Run(ctx) }()

	result := make(chan error, 1)
	task, err := k.CreateTask(TaskParams{
		Priority: 3, StackSize: 1, Name: "sleeper",
		Fn: func(any) {
			result <- k.Sleep(5)
		},
	})
	require.NoError(t, err)

	bootIdle(t, k, func() {
		require.NoError(t, k.Activate(task))
	})

	// give the sleeper a moment to actually block before advancing ticks.
	require.Eventually(t, func() bool {
		st, err := k.StateGet(task)
		return err == nil && st.Is(StateWait)
	}, 5*time.Second, time.Millisecond)

	clock.Advance(5)

	select {
	case err := <-result:
		require.ErrorIs(t, err, ErrTimeout)
	case <-time.After(5 * time.Second):
		t.Fatal("sleeper never woke from timeout")
	}

	cancel()
	<-runErrCh
}

func TestTerminateWithHeldMutex(t *testing.T) {
	k, err := New(WithPriorityLevels(8))
	require.NoError(t, err)

	m, err := k.CreateMutex(MutexParams{Name: "held"})
	require.NoError(t, err)

	holderLocked := make(chan struct{})
	holder, err := k.CreateTask(TaskParams{
		Priority: 3, StackSize: 1, Name: "holder",
		Fn: func(any) {
			require.NoError(t, k.Lock(m, TimeoutInfinite))
			close(holderLocked)
			// Block on the kernel's own wait queue, not a raw Go channel, so
			// holder is WAIT (not current) by the time Terminate runs below —
			// Terminate cannot target the running task. Terminate drives the
			// state straight to DORMANT without completing this wait, so
			// this call never returns; the goroutine is intentionally
			// leaked, per Terminate's doc comment.
			_ = k.Sleep(TimeoutInfinite)
		},
	})
	require.NoError(t, err)

	waiterDone := make(chan error, 1)
	var holderAfterLock *Task
	waiter, err := k.CreateTask(TaskParams{
		Priority: 4, StackSize: 1, Name: "waiter",
		Fn: func(any) {
			err := k.Lock(m, TimeoutInfinite)
			// Read the holder before returning: returning from Fn exits the
			// task, and Exit unlocks every mutex it still holds.
			holderAfterLock = m.Holder()
			waiterDone <- err
		},
	})
	require.NoError(t, err)

	// idle's own setup orchestrates the whole scenario: each step below
	// only returns once the task it just activated has itself yielded back
	// (blocked on a kernel wait queue), so idle genuinely regains control
	// between steps — the same discipline bootIdle's doc comment describes.
	bootIdle(t, k, func() {
		require.NoError(t, k.Activate(holder))
		require.NoError(t, k.Activate(waiter))
		require.NoError(t, k.Terminate(holder))
	})

	select {
	case <-holderLocked:
	case <-time.After(5 * time.Second):
		t.Fatal("holder never acquired the mutex")
	}

	select {
	case err := <-waiterDone:
		require.NoError(t, err, "waiter should acquire the mutex released by the terminated holder")
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never acquired the mutex freed by termination")
	}

	st, err := k.StateGet(holder)
	require.NoError(t, err)
	require.True(t, st.Is(StateDormant))
	require.Equal(t, waiter, holderAfterLock, "mutex ownership should have transferred to the waiter")
}

// TestInheritanceTimeoutUnwindsBoost covers a waiter leaving an inheritance
// mutex's queue by timeout rather than by acquiring: low holds m and gets
// boosted to high's priority while high blocks on it, then high's Lock call
// times out. low must revert to its own base priority, not stay pinned at
// high's, since high is no longer waiting on anything of low's.
func TestInheritanceTimeoutUnwindsBoost(t *testing.T) {
	k, err := New(WithPriorityLevels(8), WithTickDriver(NewFakeClock()))
	require.NoError(t, err)
	clock := k.tickDriver.(*FakeClock)

	m, err := k.CreateMutex(MutexParams{Protocol: ProtocolInheritance, Name: "inherit"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErrCh := make(chan error, 1)
	go func() { runErrCh <- k.Run(ctx) }()

	boosted := make(chan struct{})
	proceed := make(chan struct{})
	lowDone := make(chan struct{})

	var high *Task
	low, err := k.CreateTask(TaskParams{
		Priority: 6, StackSize: 1, Name: "low",
		Fn: func(any) {
			require.NoError(t, k.Lock(m, TimeoutInfinite))
			require.NoError(t, k.Activate(high))
			close(boosted)
			<-proceed
			require.NoError(t, k.Unlock(m))
			close(lowDone)
		},
	})
	require.NoError(t, err)

	highResult := make(chan error, 1)
	high, err = k.CreateTask(TaskParams{
		Priority: 1, StackSize: 1, Name: "high",
		Fn: func(any) {
			highResult <- k.Lock(m, 5)
		},
	})
	require.NoError(t, err)

	bootIdle(t, k, func() {
		require.NoError(t, k.Activate(low))
	})

	select {
	case <-boosted:
	case <-time.After(5 * time.Second):
		t.Fatal("low never regained control after activating high")
	}

	require.Equal(t, 1, low.Priority(), "low should have inherited high's priority while high waits on its mutex")

	clock.Advance(5)

	select {
	case err := <-highResult:
		require.ErrorIs(t, err, ErrTimeout)
	case <-time.After(5 * time.Second):
		t.Fatal("high never timed out waiting on the mutex")
	}

	require.Equal(t, 6, low.Priority(), "low should revert to base priority once the boosting waiter times out, not stay pinned at high's priority")

	// high returns from Fn right after reporting its result; wait for its
	// Exit to hand the CPU back to low before low calls Unlock.
	require.Eventually(t, func() bool {
		st, err := k.StateGet(high)
		return err == nil && st.Is(StateDormant)
	}, 5*time.Second, time.Millisecond)

	close(proceed)

	select {
	case <-lowDone:
	case <-time.After(5 * time.Second):
		t.Fatal("low never finished after releasing the mutex")
	}

	cancel()
	<-runErrCh
}
