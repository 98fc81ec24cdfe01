package kernel

import (
	"sync"
	"testing"
)

func TestSleepersWakeInTickOrder(t *testing.T) {
	k, _ := New(Opts{})
	var mu sync.Mutex
	var woke []uint64

	var wg sync.WaitGroup
	wg.Add(3)
	for _, wake := range []uint64{30, 10, 20} {
		wake := wake
		k.CreateThread("sleeper", PriDefault, func(k *Kernel, self *Thread) {
			k.SleepUntil(wake)
			mu.Lock()
			woke = append(woke, wake)
			mu.Unlock()
			wg.Done()
		})
	}

	for k.Ticks() < 31 {
		k.Tick()
	}
	wg.Wait()

	want := []uint64{10, 20, 30}
	if len(woke) != len(want) {
		t.Fatalf("woke %v, want %v", woke, want)
	}
	for i := range want {
		if woke[i] != want[i] {
			t.Fatalf("woke %v, want %v", woke, want)
		}
	}
}
