package kernel

import "github.com/kokominji/PINTOS-VM/pkg/kernel/fixedpoint"

// SetNice sets the current thread's nice value and recomputes its MLFQ
// priority immediately, yielding if it no longer outranks the ready queue's
// front, matching thread_set_nice.
func (k *Kernel) SetNice(nice int) {
	nice = clampInt(nice, NiceMin, NiceMax)
	k.mu.Lock()
	self := k.current
	self.nice = nice
	k.recomputePriorityLocked(self)
	yielder, park := k.maybeYieldLocked()
	k.mu.Unlock()
	if park {
		<-yielder.resume
	}
}

// GetNice returns the current thread's nice value.
func (k *Kernel) GetNice() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current.nice
}

// GetRecentCPU returns the current thread's recent_cpu, scaled by 100 and
// rounded to the nearest integer, matching thread_get_recent_cpu.
func (k *Kernel) GetRecentCPU() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return fixedpoint.ToIntRound(fixedpoint.MulInt(k.current.recentCPU, 100))
}

// GetLoadAvg returns load_avg scaled by 100 and rounded to the nearest
// integer, matching thread_get_load_avg.
func (k *Kernel) GetLoadAvg() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return fixedpoint.ToIntRound(fixedpoint.MulInt(k.loadAvg, 100))
}

// recomputePriorityLocked implements calculate_priority:
// priority = clamp(PRI_MAX - recent_cpu/4 - nice*2, PRI_MIN, PRI_MAX).
// Unlike the reference source (which clamps only the low end), both ends
// are clamped here; see SPEC_FULL.md §4.5 for why the asymmetry is treated
// as an oversight rather than intended behavior.
func (k *Kernel) recomputePriorityLocked(t *Thread) {
	p := fixedpoint.FromInt(PriMax)
	p = fixedpoint.Sub(p, fixedpoint.DivInt(t.recentCPU, 4))
	p = fixedpoint.SubInt(p, t.nice*2)
	priority := clampInt(fixedpoint.ToIntRound(p), PriMin, PriMax)
	t.basePriority = priority
	t.effectivePriority = priority
}

// recomputeAllPrioritiesLocked recomputes every thread's MLFQ priority
// (every fourth tick) and resorts the ready queue so the new ordering is
// observed immediately.
func (k *Kernel) recomputeAllPrioritiesLocked() {
	for _, t := range k.threads {
		if t == k.idle {
			continue
		}
		wasReady := t.status == StatusReady
		k.recomputePriorityLocked(t)
		if wasReady {
			k.ready.resort(t)
		}
	}
}

// countReadyThreadsLocked returns the number of threads ready or running,
// excluding idle, matching get_count_threads.
func (k *Kernel) countReadyThreadsLocked() int {
	n := k.ready.len()
	if k.current != k.idle {
		n++
	}
	return n
}

// updateLoadAvgAndRecentCPULocked runs once per simulated second (every
// TIMER_FREQ ticks): load_avg decays toward the current ready-thread count,
// then every thread's recent_cpu decays toward its nice value at the same
// rate, matching load_avg_update + threads_recent_update. Threads blocked
// on a lock/semaphore/condvar are included in k.threads but are neither
// ready nor running — the source updates "the current thread plus all of
// ready_list and sleep_list", explicitly excluding lock/semaphore-blocked
// threads; this implementation follows that by skipping StatusBlocked
// threads that are not in the sleep list. Since sleeping threads are also
// StatusBlocked, they are distinguished by wakeTick != 0 (wakeExpiredLocked
// resets it to 0 on wake).
func (k *Kernel) updateLoadAvgAndRecentCPULocked() {
	readyThreads := fixedpoint.FromInt(k.countReadyThreadsLocked())
	fiftyNineSixtieths := fixedpoint.Div(fixedpoint.FromInt(59), fixedpoint.FromInt(60))
	oneSixtieth := fixedpoint.Div(fixedpoint.FromInt(1), fixedpoint.FromInt(60))
	k.loadAvg = fixedpoint.Add(
		fixedpoint.Mul(fiftyNineSixtieths, k.loadAvg),
		fixedpoint.Mul(oneSixtieth, readyThreads),
	)

	twiceLoad := fixedpoint.MulInt(k.loadAvg, 2)
	decay := fixedpoint.Div(twiceLoad, fixedpoint.AddInt(twiceLoad, 1))

	for _, t := range k.threads {
		if t == k.idle {
			continue
		}
		if t.status == StatusBlocked && t.wakeTick == 0 {
			continue
		}
		t.recentCPU = fixedpoint.AddInt(fixedpoint.Mul(decay, t.recentCPU), t.nice)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
