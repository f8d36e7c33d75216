// deadlock.go - Deadlock detection
//
// Optional, advisory cycle detection over the lock wait-for graph, per
// §4.5's "Deadlock detection (optional)". Enabled via
// WithDeadlockDetection; a detected cycle is reported through the
// callback set by WithDeadlockCallback and does not change blocking
// semantics — the lock call proceeds to block or time out exactly as it
// would without detection.
package tinykernel

// detectCycle walks the wait-for chain starting at start (which must
// already have waitForHolder set to the mutex holder it is about to
// block on) and returns the chain of tasks if it closes on itself, else
// nil. The returned slice is ordered start, ..., the last task followed,
// then the earlier entry that task's waitForHolder points back to, so
// that entry appears twice.
func (k *Kernel) detectCycle(start *Task) []*Task {
	chain := []*Task{start}
	cur := start
	for {
		next := cur.waitForHolder
		if next == nil {
			return nil
		}
		for _, seen := range chain {
			if seen == next {
				return append(chain, next)
			}
		}
		chain = append(chain, next)
		cur = next
	}
}
