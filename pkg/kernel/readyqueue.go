package kernel

import "github.com/google/btree"

// priorityItem orders by effective priority descending, then by the
// monotonic enqueue sequence ascending, giving the ready queue the
// "descending priority, FIFO within a tie" ordering the reference kernel's
// list_insert_ordered calls enforce by hand.
type priorityItem struct {
	priority int
	seq      uint64
	thread   *Thread
}

func (a *priorityItem) Less(than btree.Item) bool {
	b := than.(*priorityItem)
	if a.priority != b.priority {
		// Higher priority sorts first (as the tree's Min), hence inverted.
		return a.priority > b.priority
	}
	return a.seq < b.seq
}

// priorityQueue is the ready queue: a btree keyed by (effective priority
// desc, seq asc) standing in for the source's insertion-sorted linked list,
// giving O(log n) insert/pop instead of the source's O(n) scan.
type priorityQueue struct {
	tree *btree.BTree
}

func newPriorityQueue() *priorityQueue {
	return &priorityQueue{tree: btree.New(32)}
}

func (q *priorityQueue) insert(t *Thread) {
	t.k.nextSeq++
	t.seq = t.k.nextSeq
	t.queuedPriority = t.effectivePriority
	q.tree.ReplaceOrInsert(&priorityItem{priority: t.queuedPriority, seq: t.seq, thread: t})
}

// remove deletes t using the priority it was inserted under (its effective
// priority may have since changed; resort must remove-then-reinsert rather
// than mutate in place, matching list_remove-then-list_insert_ordered).
func (q *priorityQueue) remove(t *Thread) {
	q.tree.Delete(&priorityItem{priority: t.queuedPriority, seq: t.seq})
}

func (q *priorityQueue) popMax() *Thread {
	item := q.tree.DeleteMin()
	if item == nil {
		return nil
	}
	return item.(*priorityItem).thread
}

func (q *priorityQueue) peekMax() *Thread {
	item := q.tree.Min()
	if item == nil {
		return nil
	}
	return item.(*priorityItem).thread
}

func (q *priorityQueue) len() int { return q.tree.Len() }

// resort removes and reinserts t under its current effective priority; used
// whenever a donation event changes the priority of an already-queued
// thread, so the queue observes the new value immediately.
func (q *priorityQueue) resort(t *Thread) {
	q.remove(t)
	q.insert(t)
}

// wakeItem orders the sleep list by wake tick ascending, then by seq
// ascending, mirroring sleep_list's "sorted by wake_tick ascending" invariant.
type wakeItem struct {
	wakeTick uint64
	seq      uint64
	thread   *Thread
}

func (a *wakeItem) Less(than btree.Item) bool {
	b := than.(*wakeItem)
	if a.wakeTick != b.wakeTick {
		return a.wakeTick < b.wakeTick
	}
	return a.seq < b.seq
}

type sleepQueue struct {
	tree *btree.BTree
}

func newSleepQueue() *sleepQueue {
	return &sleepQueue{tree: btree.New(32)}
}

func (q *sleepQueue) insert(t *Thread) {
	q.tree.ReplaceOrInsert(&wakeItem{wakeTick: t.wakeTick, seq: t.seq, thread: t})
}

func (q *sleepQueue) peekMin() *Thread {
	item := q.tree.Min()
	if item == nil {
		return nil
	}
	return item.(*wakeItem).thread
}

func (q *sleepQueue) popMin() *Thread {
	item := q.tree.DeleteMin()
	if item == nil {
		return nil
	}
	return item.(*wakeItem).thread
}

func (q *sleepQueue) len() int { return q.tree.Len() }
