// tickdriver.go - Tick-driver contract
//
// The specification places the system tick timer driver out of scope,
// required only to deliver a monotonic tick (§6). [TickDriver] is that
// contract; [NewTicker] wraps time.Ticker for real-time use, and
// [NewFakeClock] lets tests advance virtual time deterministically instead
// of sleeping, mirroring the teacher's SetTickAnchor/CurrentTickTime
// virtual-time pattern.
package tinykernel

import "time"

// TickDriver delivers scheduler ticks. Each receive from Ticks represents
// exactly one tick.
type TickDriver interface {
	Ticks() <-chan struct{}
	// Stop releases any resources backing the driver.
	Stop()
}

// realTicker is the default [TickDriver], backed by a time.Ticker.
type realTicker struct {
	t *time.Ticker
	c chan struct{}
	stopCh chan struct{}
}

// NewTicker returns a [TickDriver] that ticks once every d.
func NewTicker(d time.Duration) TickDriver {
	rt := &realTicker{
		t:      time.NewTicker(d),
		c:      make(chan struct{}),
		stopCh: make(chan struct{}),
	}
	go rt.run()
	return rt
}

func (rt *realTicker) run() {
	for {
		select {
		case <-rt.t.C:
			select {
			case rt.c <- struct{}{}:
			case <-rt.stopCh:
				return
			}
		case <-rt.stopCh:
			return
		}
	}
}

func (rt *realTicker) Ticks() <-chan struct{} { return rt.c }

func (rt *realTicker) Stop() {
	rt.t.Stop()
	close(rt.stopCh)
}

// FakeClock is a [TickDriver] advanced explicitly by test code via Advance,
// instead of wall-clock time. Nothing is delivered on Ticks until Advance
// is called.
type FakeClock struct {
	c chan struct{}
}

// NewFakeClock returns a [TickDriver] with no automatic ticking.
func NewFakeClock() *FakeClock {
	return &FakeClock{c: make(chan struct{})}
}

func (f *FakeClock) Ticks() <-chan struct{} { return f.c }

func (f *FakeClock) Stop() {}

// Advance delivers n ticks, one at a time, blocking until each has been
// received by the kernel's tick-processing goroutine. Intended for use
// from a test goroutine distinct from Kernel.Run's.
func (f *FakeClock) Advance(n int) {
	for i := 0; i < n; i++ {
		f.c <- struct{}{}
	}
}
