// list.go - Intrusive doubly-linked list
//
// Every queue in the kernel (ready lists, wait queues, the created-task
// list, a mutex's owned-list) is built from this primitive instead of a
// slice or a separately-allocated container node: the link fields live
// directly inside the Task/Mutex struct they belong to, so enqueueing a
// task never allocates and a task can be removed from whatever queue it
// is currently on without knowing which queue that is.
package tinykernel

// ListNode is an intrusive link. Embed it by value in any struct that
// needs to be queued; its zero value has nil links (see linked) and can
// be pushed onto a list, and Reset turns it into an empty, self-linked
// node.
// Owner should be set once, right after the embedding struct is
// constructed, to the struct itself — it lets code that only has a
// *ListNode (e.g. a list head's front entry) recover the payload without
// a parallel container or unsafe pointer arithmetic.
type ListNode struct {
	next, prev *ListNode
	Owner      any
}

// Reset re-initializes n as an empty, self-linked node. It only rewrites
// n's own links and does not unlink n from neighbours that still point at
// it, so it is meant for a node that is already detached; Remove unlinks.
func (n *ListNode) Reset() {
	n.next = n
	n.prev = n
}

// linked reports whether n has ever been initialized via Reset or attached
// to a ListHead; an unreset zero-value ListNode has nil links.
func (n *ListNode) linked() bool {
	return n.next != nil
}

// Remove detaches n from whatever list it is currently linked into and
// resets it to the empty state. Idempotent: calling Remove on a node that
// is already detached (or was never attached) is a no-op.
func (n *ListNode) Remove() {
	if !n.linked() {
		return
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.Reset()
}

// ListHead is the sentinel of an intrusive circular doubly-linked list.
// Its zero value is not ready for use; call Reset (or construct via
// newListHead) before use.
type ListHead struct {
	ListNode
}

func newListHead() *ListHead {
	h := &ListHead{}
	h.Reset()
	return h
}

// Empty reports whether the list has no elements.
func (h *ListHead) Empty() bool {
	return h.next == &h.ListNode
}

// PushBack links n at the tail of the list. n must not already be linked
// into any list.
func (h *ListHead) PushBack(n *ListNode) {
	tail := h.prev
	n.next = &h.ListNode
	n.prev = tail
	tail.next = n
	h.prev = n
}

// PushFront links n at the head of the list. n must not already be linked
// into any list.
func (h *ListHead) PushFront(n *ListNode) {
	head := h.next
	n.prev = &h.ListNode
	n.next = head
	head.prev = n
	h.next = n
}

// Front returns the first node in the list, or nil if the list is empty.
func (h *ListHead) Front() *ListNode {
	if h.Empty() {
		return nil
	}
	return h.next
}

// PopFront removes and returns the first node, or nil if the list is empty.
func (h *ListHead) PopFront() *ListNode {
	n := h.Front()
	if n != nil {
		n.Remove()
	}
	return n
}

// ForEach calls fn once per node in list order. fn must not remove nodes
// other than the one it is currently called with; removing the current
// node (e.g. to migrate it to another list) is safe.
func (h *ListHead) ForEach(fn func(*ListNode)) {
	for n := h.next; n != &h.ListNode; {
		next := n.next
		fn(n)
		n = next
	}
}
