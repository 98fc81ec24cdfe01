package kernel

import "github.com/kokominji/PINTOS-VM/pkg/kernel/klog"

// SleepUntil blocks the calling thread until the tick counter reaches tick,
// implementing thread_sleep: if the target is already in the past (or the
// caller is idle), it returns immediately without blocking.
func (k *Kernel) SleepUntil(tick uint64) {
	k.mu.Lock()
	self := k.current
	if self == k.idle || k.ticks >= tick {
		k.mu.Unlock()
		return
	}
	self.wakeTick = tick
	k.sleeping.insert(self)
	self.status = StatusBlocked
	k.scheduleLocked()
	k.mu.Unlock()
	<-self.resume
}

// wakeExpiredLocked implements thread_awake: pops every sleeper whose
// wake_tick has arrived, recomputing MLFQ priority first if active, then
// unblocking it. Called from Tick with Kernel.mu already held.
func (k *Kernel) wakeExpiredLocked() {
	for {
		t := k.sleeping.peekMin()
		if t == nil || t.wakeTick > k.ticks {
			return
		}
		k.sleeping.popMin()
		if k.mlfqs {
			k.recomputePriorityLocked(t)
		}
		klog.Debugf("kernel: waking tid=%d at tick=%d (wake_tick=%d)", t.tid, k.ticks, t.wakeTick)
		t.wakeTick = 0
		k.unblockLocked(t)
	}
}
