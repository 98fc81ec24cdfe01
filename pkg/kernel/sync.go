package kernel

import "github.com/kokominji/PINTOS-VM/pkg/kernel/klog"

// Semaphore is a counting semaphore whose waiter selection is
// priority-aware: Up always wakes the waiter with the highest effective
// priority, not simply the oldest one.
type Semaphore struct {
	k       *Kernel
	value   int
	waiters []*Thread
}

// NewSemaphore constructs a semaphore with the given initial value.
func (k *Kernel) NewSemaphore(initial int) *Semaphore {
	return &Semaphore{k: k, value: initial}
}

// Down blocks until the semaphore is positive, then decrements it.
func (s *Semaphore) Down() {
	k := s.k
	k.mu.Lock()
	self := k.current
	for s.value == 0 {
		s.waiters = append(s.waiters, self)
		self.status = StatusBlocked
		k.scheduleLocked()
		k.mu.Unlock()
		<-self.resume
		k.mu.Lock()
	}
	s.value--
	k.mu.Unlock()
}

// TryDown attempts a non-blocking decrement; safe to call from Tick.
func (s *Semaphore) TryDown() bool {
	k := s.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if s.value == 0 {
		return false
	}
	s.value--
	return true
}

// Up increments the semaphore, waking the highest-effective-priority waiter
// if any, then yields if that waiter now outranks the caller.
func (s *Semaphore) Up() {
	k := s.k
	k.mu.Lock()
	if len(s.waiters) > 0 {
		idx := maxEffectiveIndex(s.waiters)
		w := s.waiters[idx]
		s.waiters = append(s.waiters[:idx], s.waiters[idx+1:]...)
		k.unblockLocked(w)
	}
	s.value++
	self, park := k.maybeYieldLocked()
	k.mu.Unlock()
	if park {
		<-self.resume
	}
}

func maxEffectiveIndex(threads []*Thread) int {
	best := 0
	for i, t := range threads {
		if t.effectivePriority > threads[best].effectivePriority {
			best = i
		}
	}
	return best
}

// Lock is a binary lock built on a Semaphore, augmented with priority
// donation: a thread blocked acquiring a held lock donates its effective
// priority to the chain of holders transitively blocking it.
type Lock struct {
	k      *Kernel
	sem    *Semaphore
	holder *Thread
}

// NewLock constructs an unheld lock.
func (k *Kernel) NewLock() *Lock {
	return &Lock{k: k, sem: k.NewSemaphore(1)}
}

// HeldByCurrent reports whether the calling thread holds l.
func (l *Lock) HeldByCurrent() bool {
	l.k.mu.Lock()
	defer l.k.mu.Unlock()
	return l.holder == l.k.current
}

// Acquire blocks until l is free, then takes it. While blocked, the calling
// thread donates its effective priority along the chain of lock holders
// that transitively block it, per the donation engine's acquire algorithm.
func (l *Lock) Acquire() {
	k := l.k
	k.mu.Lock()
	self := k.current
	if l.sem.value > 0 {
		l.sem.value--
		l.holder = self
		self.heldLocks = append(self.heldLocks, l)
		k.mu.Unlock()
		return
	}

	// Register self as a waiter on l's semaphore before propagating
	// donation: recomputeEffectivePriorityLocked (called transitively by
	// propagateDonationLocked) derives a holder's effective priority from
	// l.sem.waiters, so the donor must already be listed there or the
	// recompute sees no new donor and is a no-op. This is why Acquire
	// inlines l.sem's blocking sequence instead of calling l.sem.Down(),
	// which only appends the waiter after donation would already have run.
	self.waitOnLock = l
	l.sem.waiters = append(l.sem.waiters, self)
	k.propagateDonationLocked(l)
	self.status = StatusBlocked
	k.scheduleLocked()
	k.mu.Unlock()
	<-self.resume

	k.mu.Lock()
	l.sem.value--
	self.waitOnLock = nil
	l.holder = self
	self.heldLocks = append(self.heldLocks, l)
	k.mu.Unlock()
}

// Release gives up l, waking the highest-priority waiter if any, and
// recomputes the releasing thread's effective priority now that this
// lock's donations no longer apply.
func (l *Lock) Release() {
	k := l.k
	k.mu.Lock()
	self := l.holder
	l.holder = nil
	self.heldLocks = removeLock(self.heldLocks, l)
	k.mu.Unlock()

	l.sem.Up()

	k.mu.Lock()
	k.recomputeEffectivePriorityLocked(self)
	yielder, park := k.maybeYieldLocked()
	k.mu.Unlock()
	if park {
		<-yielder.resume
	}
}

func removeLock(locks []*Lock, l *Lock) []*Lock {
	for i, x := range locks {
		if x == l {
			return append(locks[:i], locks[i+1:]...)
		}
	}
	return locks
}

// propagateDonationLocked walks the chain wait_on_lock → holder →
// wait_on_lock … starting at l, recomputing each holder's effective
// priority and resorting it in the ready queue if queued there. Chain
// traversal is bounded by the number of distinct locks in the system;
// cycles are impossible because locks are acquired in a finite depth.
func (k *Kernel) propagateDonationLocked(l *Lock) {
	if k.mlfqs {
		// Donation is structurally inert under MLFQ: the scheduler owns
		// priority, recomputed every tick from recent_cpu and nice.
		return
	}
	cur := l
	for cur != nil && cur.holder != nil {
		h := cur.holder
		before := h.effectivePriority
		k.recomputeEffectivePriorityLocked(h)
		if h.effectivePriority == before {
			break
		}
		if h.status == StatusReady {
			k.ready.resort(h)
		}
		klog.Debugf("kernel: donation raised tid=%d to effective=%d via lock", h.tid, h.effectivePriority)
		cur = h.waitOnLock
	}
}

// recomputeEffectivePriorityLocked implements the donation engine's
// contract directly: effective priority is the max of the thread's base
// priority and the effective priority of every thread waiting on a lock it
// holds. This replaces the reference kernel's donor-list-with-self-sentinel
// representation with a dedicated field, a cleaner alternative with the
// same externally observable behavior.
func (k *Kernel) recomputeEffectivePriorityLocked(t *Thread) {
	if k.mlfqs {
		return
	}
	eff := t.basePriority
	for _, l := range t.heldLocks {
		for _, w := range l.sem.waiters {
			if w.effectivePriority > eff {
				eff = w.effectivePriority
			}
		}
	}
	t.effectivePriority = eff
}

// GetEffectivePriority returns t's current effective priority.
func (k *Kernel) GetEffectivePriority(t *Thread) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return t.effectivePriority
}

// CondVar is a Mesa-style monitor condition variable: each waiter parks on
// its own private zero-value semaphore, and Signal/Broadcast wake them in
// effective-priority order.
type CondVar struct {
	k       *Kernel
	waiters []condWaiter
}

type condWaiter struct {
	sem *Semaphore
	t   *Thread
}

// NewCondVar constructs an empty condition variable.
func (k *Kernel) NewCondVar() *CondVar {
	return &CondVar{k: k}
}

// Wait atomically releases l and blocks on cv, reacquiring l before
// returning.
func (cv *CondVar) Wait(l *Lock) {
	k := cv.k
	priv := k.NewSemaphore(0)
	k.mu.Lock()
	self := k.current
	cv.waiters = append(cv.waiters, condWaiter{priv, self})
	k.mu.Unlock()

	l.Release()
	priv.Down()
	l.Acquire()
}

// Signal wakes the waiter whose thread has the highest effective priority,
// if any are waiting.
func (cv *CondVar) Signal() {
	k := cv.k
	k.mu.Lock()
	if len(cv.waiters) == 0 {
		k.mu.Unlock()
		return
	}
	best := 0
	for i, w := range cv.waiters {
		if w.t.effectivePriority > cv.waiters[best].t.effectivePriority {
			best = i
		}
	}
	w := cv.waiters[best]
	cv.waiters = append(cv.waiters[:best], cv.waiters[best+1:]...)
	k.mu.Unlock()
	w.sem.Up()
}

// Broadcast wakes every waiter, highest effective priority first.
func (cv *CondVar) Broadcast() {
	for {
		cv.k.mu.Lock()
		empty := len(cv.waiters) == 0
		cv.k.mu.Unlock()
		if empty {
			return
		}
		cv.Signal()
	}
}
