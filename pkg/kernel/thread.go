// Package kernel is the simulated thread scheduler with priority donation,
// the synchronization primitives built on it, the timer-driven sleep/wake
// service, and the MLFQ scheduler variant. Every mutation of shared
// scheduler state (ready queue, sleep list, destruction queue, load_avg,
// tid counter, donation bookkeeping) happens while holding Kernel.mu, which
// plays the role of the reference kernel's IRQ-disabled critical section.
//
// There is exactly one hardware CPU in the system this simulates, so
// exactly one goroutine is ever allowed to run unblocked kernel or user
// logic at a time. That invariant is implemented by giving each Thread a
// buffered "baton" channel: the scheduler hands the baton to exactly one
// thread's goroutine by sending on its resume channel, and every other
// thread's goroutine sits parked on a receive from its own resume channel.
// This is deliberately not a real preemptive scheduler: the timer tick is
// delivered cooperatively, by the running thread calling Tick on itself,
// the way a real ISR would run logically "on top of" the interrupted
// thread without any other goroutine ever being unparked concurrently.
package kernel

import (
	"fmt"
	"sync"

	"github.com/kokominji/PINTOS-VM/pkg/kernel/fixedpoint"
	"github.com/kokominji/PINTOS-VM/pkg/kernel/klog"
)

// Priority bounds, matching the reference kernel's PRI_MIN/PRI_DEFAULT/PRI_MAX.
const (
	PriMin     = 0
	PriDefault = 31
	PriMax     = 63
)

// Nice bounds.
const (
	NiceMin = -20
	NiceMax = 20
)

// Status is a thread's position in its life cycle.
type Status int

const (
	StatusBlocked Status = iota
	StatusReady
	StatusRunning
	StatusDying
)

func (s Status) String() string {
	switch s {
	case StatusBlocked:
		return "blocked"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusDying:
		return "dying"
	default:
		return "unknown"
	}
}

// TID is a thread identifier. TIDError is returned in place of a valid tid
// on creation failure, matching TID_ERROR.
type TID int64

const TIDError TID = -1

// Thread is the kernel's per-thread control block. Fields are grouped the
// way thread.h groups them: core scheduler state, donation state, and
// (optionally, via proc) the user-process supervisor state.
type Thread struct {
	k    *Kernel
	tid  TID
	name string

	status Status

	basePriority      int
	effectivePriority int

	nice      int
	recentCPU fixedpoint.T

	wakeTick uint64

	waitOnLock *Lock
	heldLocks  []*Lock

	queuedPriority int
	seq            uint64

	resume chan struct{}

	// proc is non-nil for user processes; nil for kernel-only threads such
	// as the idle thread or internal test harness threads.
	proc *Process
}

// TID returns the thread's identifier.
func (t *Thread) TID() TID { return t.tid }

// Name returns the thread's short debug name.
func (t *Thread) Name() string { return t.name }

// Status returns the thread's current life-cycle state.
func (t *Thread) Status() Status { return t.status }

// Priority returns the thread's base priority.
func (t *Thread) Priority() int { return t.basePriority }

// EffectivePriority returns the thread's donation-adjusted priority.
func (t *Thread) EffectivePriority() int { return t.effectivePriority }

// Nice returns the thread's MLFQ nice value.
func (t *Thread) Nice() int { return t.nice }

// Process returns the thread's owning process, or nil for a kernel thread.
func (t *Thread) Process() *Process { return t.proc }

// K returns the kernel that owns this thread, for callers (such as the
// syscall dispatcher) that only hold a Thread or Process reference.
func (t *Thread) K() *Kernel { return t.k }

// Kernel is the scheduler singleton: the single piece of global mutable
// state (ready_list, sleep_list, destruction_req, load_avg, tid counter)
// the reference kernel's init routine owns, gated here by one mutex.
type Kernel struct {
	mu sync.Mutex

	threads map[TID]*Thread
	nextTID TID
	nextSeq uint64

	ticks uint64

	current *Thread
	idle    *Thread

	ready    *priorityQueue
	sleeping *sleepQueue

	destructionQueue []*Thread

	sliceUsed int
	timeSlice int
	timerFreq int

	mlfqs   bool
	loadAvg fixedpoint.T
}

// Opts configures a new Kernel.
type Opts struct {
	MLFQS           bool
	TimeSlice       int
	TimerFreq       int
	DefaultPriority int
}

// New constructs a Kernel and adopts the calling goroutine as the initial
// thread, the way thread_init turns the running boot context into a TCB.
// The returned Thread is already Running; the caller may use it directly
// without going through CreateThread.
func New(opts Opts) (*Kernel, *Thread) {
	if opts.TimeSlice <= 0 {
		opts.TimeSlice = 4
	}
	if opts.TimerFreq <= 0 {
		opts.TimerFreq = 100
	}
	k := &Kernel{
		threads:   make(map[TID]*Thread),
		ready:     newPriorityQueue(),
		sleeping:  newSleepQueue(),
		timeSlice: opts.TimeSlice,
		timerFreq: opts.TimerFreq,
		mlfqs:     opts.MLFQS,
	}

	initial := k.newThreadLocked("main", opts.DefaultPriority)
	initial.status = StatusRunning
	k.current = initial

	k.idle = k.newIdleThread()

	klog.Debugf("kernel: booted, mlfqs=%v time_slice=%d timer_freq=%d", k.mlfqs, k.timeSlice, k.timerFreq)
	return k, initial
}

// Ticks returns the monotonic tick counter (timer_ticks()).
func (k *Kernel) Ticks() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ticks
}

// MLFQS reports whether the kernel was booted with the "-o mlfqs" option.
func (k *Kernel) MLFQS() bool { return k.mlfqs }

// Threads returns a snapshot of every live thread, for debug introspection.
func (k *Kernel) Threads() []*Thread {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*Thread, 0, len(k.threads))
	for _, t := range k.threads {
		out = append(out, t)
	}
	return out
}

// Current returns the thread currently holding the baton.
func (k *Kernel) Current() *Thread {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current
}

func (k *Kernel) newThreadLocked(name string, priority int) *Thread {
	k.nextTID++
	k.nextSeq++
	t := &Thread{
		k:                 k,
		tid:               k.nextTID,
		name:              name,
		status:            StatusBlocked,
		basePriority:      priority,
		effectivePriority: priority,
		seq:               k.nextSeq,
		resume:            make(chan struct{}, 1),
	}
	k.threads[t.tid] = t
	return t
}

func (k *Kernel) newIdleThread() *Thread {
	idle := k.newThreadLocked("idle", PriMin)
	go func() {
		for {
			<-idle.resume
			k.mu.Lock()
			klog.Debugf("kernel: idle running, ready=%d", k.ready.len())
			k.scheduleLocked()
			k.mu.Unlock()
		}
	}()
	return idle
}

// CreateThread creates a new thread running fn, in the Ready state, the way
// thread_create allocates a TCB, sets up its trampoline, and unblocks it.
// It yields immediately if the new thread outranks the caller, matching
// thread_create's trailing thread_yield_r().
func (k *Kernel) CreateThread(name string, priority int, fn func(*Kernel, *Thread)) *Thread {
	k.mu.Lock()
	t := k.newThreadLocked(name, priority)
	k.mu.Unlock()

	go func() {
		<-t.resume
		fn(k, t)
		k.exitThread(t)
	}()

	k.mu.Lock()
	t.status = StatusReady
	k.ready.insert(t)
	klog.Debugf("kernel: created tid=%d name=%q priority=%d", t.tid, t.name, priority)
	self, park := k.maybeYieldLocked()
	k.mu.Unlock()
	if park {
		<-self.resume
	}
	return t
}

// scheduleLocked implements next_thread_to_run + do_schedule: first frees
// any thread queued for destruction by the *previous* schedule (never the
// thread that requested it), then picks the highest effective-priority
// ready thread (or idle), marks it Running, and hands it the baton.
func (k *Kernel) scheduleLocked() {
	for _, d := range k.destructionQueue {
		k.freeThreadLocked(d)
	}
	k.destructionQueue = nil

	next := k.ready.popMax()
	if next == nil {
		next = k.idle
	}

	prev := k.current
	next.status = StatusRunning
	k.current = next
	k.sliceUsed = 0

	if prev != nil && prev.status == StatusDying {
		k.destructionQueue = append(k.destructionQueue, prev)
	}

	next.resume <- struct{}{}
}

func (k *Kernel) freeThreadLocked(t *Thread) {
	klog.Debugf("kernel: freeing dying thread tid=%d name=%q", t.tid, t.name)
	delete(k.threads, t.tid)
}

// maybeYieldLocked requeues the current thread and reschedules if the head
// of the ready queue strictly outranks it, implementing yield_if_lower().
// It returns the thread that was current when called (since k.current may
// change by the time scheduleLocked returns) and whether that thread must
// release Kernel.mu and then park on its own resume channel.
func (k *Kernel) maybeYieldLocked() (self *Thread, park bool) {
	self = k.current
	front := k.ready.peekMax()
	if self == k.idle || front == nil || front.effectivePriority <= self.effectivePriority {
		return self, false
	}
	self.status = StatusReady
	k.ready.insert(self)
	k.scheduleLocked()
	return self, true
}

// Block marks the calling thread Blocked and reschedules. The caller must
// already have arranged to be woken (via Unblock) by whatever primitive it
// is blocking on; Block itself does not register the thread anywhere.
func (k *Kernel) Block() {
	k.mu.Lock()
	self := k.current
	self.status = StatusBlocked
	k.scheduleLocked()
	k.mu.Unlock()
	<-self.resume
}

// Unblock moves t from Blocked to Ready. It does not preempt: the caller is
// responsible for any subsequent maybeYieldLocked.
func (k *Kernel) Unblock(t *Thread) {
	k.mu.Lock()
	k.unblockLocked(t)
	k.mu.Unlock()
}

func (k *Kernel) unblockLocked(t *Thread) {
	if t.status != StatusBlocked {
		klog.Warningf("kernel: unblock of non-blocked thread tid=%d status=%s", t.tid, t.status)
	}
	t.status = StatusReady
	k.ready.insert(t)
}

// Yield puts the current thread back on the ready queue and reschedules,
// the way thread_yield does outside of ISR context.
func (k *Kernel) Yield() {
	k.mu.Lock()
	self := k.current
	if self != k.idle {
		self.status = StatusReady
		k.ready.insert(self)
	}
	k.scheduleLocked()
	k.mu.Unlock()
	<-self.resume
}

// Tick is the timer ISR entrypoint: thread_tick(). It is called
// cooperatively by whichever thread currently holds the baton, standing in
// for "a timer interrupt fired while this thread was executing." It
// performs sleep-list wakeups and MLFQ maintenance, then preempts the
// caller itself (by yielding) once its slice is exhausted or as soon as a
// ready thread strictly outranks it — this is the
// "request yield on interrupt return" behavior, collapsed into a single
// call because there is no separate ISR execution context to return from.
func (k *Kernel) Tick() {
	k.mu.Lock()
	k.ticks++
	self := k.current

	if k.mlfqs && self != k.idle {
		self.recentCPU = fixedpoint.AddInt(self.recentCPU, 1)
	}

	k.wakeExpiredLocked()

	if k.mlfqs {
		if k.ticks%4 == 0 {
			k.recomputeAllPrioritiesLocked()
		}
		if k.timerFreq > 0 && int(k.ticks)%k.timerFreq == 0 {
			k.updateLoadAvgAndRecentCPULocked()
		}
	}

	k.sliceUsed++
	front := k.ready.peekMax()
	outranked := front != nil && front.effectivePriority > self.effectivePriority
	if self == k.idle || (k.sliceUsed < k.timeSlice && !outranked) {
		k.mu.Unlock()
		return
	}

	self.status = StatusReady
	k.ready.insert(self)
	k.scheduleLocked()
	k.mu.Unlock()
	<-self.resume
}

// exitThread transitions t to Dying and reschedules away from it forever;
// its TCB is reclaimed by the *next* schedule, never by itself, matching
// "a dying thread's page is queued for release and freed by the next
// scheduler pass."
func (k *Kernel) exitThread(t *Thread) {
	k.mu.Lock()
	t.status = StatusDying
	klog.Debugf("kernel: thread exiting tid=%d name=%q", t.tid, t.name)
	k.scheduleLocked()
	k.mu.Unlock()
	// This goroutine never runs again: it does not wait on t.resume because
	// nothing will ever send on it again (t is not re-enqueued anywhere).
}

// SetPriority updates the current thread's base priority and yields
// unconditionally, matching thread_set_priority. Under MLFQ mode this is a
// no-op on priority (the scheduler owns it) but still yields, mirroring the
// source's guard suppressing donation bookkeeping while keeping the call
// available.
func (k *Kernel) SetPriority(priority int) {
	if priority < PriMin || priority > PriMax {
		panic(fmt.Sprintf("kernel: priority %d out of range [%d,%d]", priority, PriMin, PriMax))
	}
	k.mu.Lock()
	self := k.current
	if !k.mlfqs {
		self.basePriority = priority
		k.recomputeEffectivePriorityLocked(self)
	}
	k.mu.Unlock()
	k.Yield()
}

// GetPriority returns the current thread's effective priority.
func (k *Kernel) GetPriority() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current.effectivePriority
}
