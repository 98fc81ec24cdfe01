package kernel

import (
	"testing"

	"github.com/kokominji/PINTOS-VM/pkg/kernel/fixedpoint"
)

func TestRecomputePriorityClampsBothEnds(t *testing.T) {
	k, initial := New(Opts{MLFQS: true})

	initial.recentCPU = 0
	initial.nice = NiceMin
	k.mu.Lock()
	k.recomputePriorityLocked(initial)
	got := initial.effectivePriority
	k.mu.Unlock()
	if got != PriMax {
		t.Fatalf("nice=min, recent_cpu=0 => priority %d, want PriMax=%d", got, PriMax)
	}

	// 63 - 200/4 - 20*2 = -27, which must clamp up to PriMin.
	initial.recentCPU = fixedpoint.FromInt(200)
	initial.nice = NiceMax
	k.mu.Lock()
	k.recomputePriorityLocked(initial)
	got = initial.effectivePriority
	k.mu.Unlock()
	if got != PriMin {
		t.Fatalf("nice=max, recent_cpu=200 => priority %d, want PriMin=%d", got, PriMin)
	}
}

func TestDonationSuppressedUnderMLFQS(t *testing.T) {
	k, initial := New(Opts{MLFQS: true})
	l := k.NewLock()

	k.mu.Lock()
	initial.basePriority = PriMin
	initial.effectivePriority = PriMin
	k.mu.Unlock()

	l.Acquire()
	k.mu.Lock()
	k.propagateDonationLocked(l) // no-op under mlfqs
	got := initial.effectivePriority
	k.mu.Unlock()
	l.Release()

	if got != PriMin {
		t.Fatalf("effective priority changed under mlfqs: got %d, want unchanged %d", got, PriMin)
	}
}

func TestSetNiceClampsRange(t *testing.T) {
	k, _ := New(Opts{MLFQS: true})
	done := make(chan int, 1)
	k.CreateThread("nice-setter", PriDefault, func(k *Kernel, self *Thread) {
		k.SetNice(1000)
		done <- k.GetNice()
	})
	if got := <-done; got != NiceMax {
		t.Fatalf("SetNice(1000) clamped to %d, want %d", got, NiceMax)
	}
}
