package kernel

import (
	"sync"
	"testing"
	"time"
)

func TestCreateThreadRunsAndExits(t *testing.T) {
	k, _ := New(Opts{})
	var wg sync.WaitGroup
	wg.Add(1)
	var ran bool
	k.CreateThread("worker", PriDefault, func(k *Kernel, self *Thread) {
		ran = true
		wg.Done()
	})
	wg.Wait()
	if !ran {
		t.Fatal("created thread never ran")
	}
}

func TestHigherPriorityThreadPreemptsOnCreate(t *testing.T) {
	k, initial := New(Opts{})
	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup
	wg.Add(2)

	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		wg.Done()
	}

	// "low" has the caller's own priority, so creating it does not preempt;
	// its body only runs once the caller later yields. "high" outranks the
	// caller and therefore runs synchronously inside CreateThread, before
	// that call returns — recorded names are used, not a raw channel
	// blocking inside a thread body, since nothing but a kernel primitive
	// (Yield here) ever hands the baton back to a parked caller.
	k.CreateThread("low", initial.Priority(), func(k *Kernel, self *Thread) {
		record("low")
	})
	k.CreateThread("high", initial.Priority()+1, func(k *Kernel, self *Thread) {
		record("high")
	})

	k.Yield()
	wg.Wait()

	if len(order) != 2 || order[0] != "high" || order[1] != "low" {
		t.Fatalf("got order %v, want [high low]", order)
	}
}

func TestSemaphoreOrdersByEffectivePriority(t *testing.T) {
	k, _ := New(Opts{})
	sem := k.NewSemaphore(0)
	var mu sync.Mutex
	var woke []string

	var wg sync.WaitGroup
	wg.Add(2)
	k.CreateThread("waiter-low", PriDefault-1, func(k *Kernel, self *Thread) {
		sem.Down()
		mu.Lock()
		woke = append(woke, "low")
		mu.Unlock()
		wg.Done()
	})
	k.CreateThread("waiter-high", PriDefault+1, func(k *Kernel, self *Thread) {
		sem.Down()
		mu.Lock()
		woke = append(woke, "high")
		mu.Unlock()
		wg.Done()
	})

	// Give both waiters time to block on the semaphore before waking them.
	time.Sleep(20 * time.Millisecond)
	sem.Up()
	sem.Up()
	wg.Wait()

	if len(woke) != 2 || woke[0] != "high" {
		t.Fatalf("wake order = %v, want [high low]", woke)
	}
}

func TestLockDonationRaisesHolderPriority(t *testing.T) {
	k, _ := New(Opts{})
	l := k.NewLock()

	// holderAcquired only carries information (never gates baton transfer),
	// so a buffered channel is safe; releaseSem is the actual hand-off
	// point and must be a kernel primitive, since a thread body parked on a
	// raw Go channel never calls back into the scheduler and would strand
	// the caller goroutine parked inside CreateThread forever.
	holderAcquired := make(chan *Thread, 1)
	releaseSem := k.NewSemaphore(0)
	afterRelease := make(chan int, 1)

	k.CreateThread("holder", PriMin+1, func(k *Kernel, self *Thread) {
		l.Acquire()
		holderAcquired <- self
		releaseSem.Down()
		l.Release()
		afterRelease <- self.EffectivePriority()
	})

	holder := <-holderAcquired

	waiterDone := make(chan struct{})
	k.CreateThread("waiter", PriMax, func(k *Kernel, self *Thread) {
		l.Acquire()
		l.Release()
		close(waiterDone)
	})

	// CreateThread("waiter", ...) only returns once waiter has blocked
	// acquiring l and handed the baton back, so donation has already run.
	if got := holder.EffectivePriority(); got != PriMax {
		t.Fatalf("holder effective priority during donation = %d, want %d", got, PriMax)
	}

	releaseSem.Up()
	<-waiterDone

	if got := <-afterRelease; got != PriMin+1 {
		t.Fatalf("holder effective priority after release = %d, want %d", got, PriMin+1)
	}
}
