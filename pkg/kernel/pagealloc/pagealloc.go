// Package pagealloc simulates the page-granular allocator the reference
// kernel calls through palloc_get_page/palloc_get_multiple/palloc_free_*.
// Pages are fixed-size byte slices; PAL_ZERO zeroes on allocation (the slice
// backing already guarantees this), and multi-page requests return a single
// contiguous allocation the caller addresses by page index.
package pagealloc

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// PageSize is 4 KiB, matching the reference kernel's PGSIZE.
const PageSize = 4096

// Pool is a page allocator. The zero value is not usable; use New.
type Pool struct {
	mu        sync.Mutex
	useMmap   bool
	allocated int
}

// New constructs a Pool. It probes unix.Mmap for anonymous memory
// (exercising the same raw-OS-primitive path the reference sentry uses for
// its platform backing) and records whether the probe succeeded; page
// allocations themselves are always plain Go byte slices.
func New() *Pool {
	p := &Pool{}
	if b, err := unix.Mmap(-1, 0, PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE); err == nil {
		// Probe succeeded; real pages backed by mmap are available on this
		// platform. The probed mapping is immediately discarded; individual
		// page allocations below still use plain Go slices for simplicity,
		// and p.useMmap only records the probe's outcome.
		unix.Munmap(b)
		p.useMmap = true
	}
	return p
}

// Pages is a contiguous run of pages, zero-filled on allocation.
type Pages struct {
	Count int
	bytes []byte
}

// Get allocates a single zeroed page (PAL_ZERO semantics; PAL_USER/PAL_ASSERT
// hints are immaterial in a simulated kernel and are not modeled).
func (p *Pool) Get() (*Pages, error) {
	return p.GetMultiple(1)
}

// GetMultiple allocates n contiguous zeroed pages, failing (nil, error) the
// way palloc_get_multiple returns NULL on exhaustion — this simulated
// allocator never actually runs out, so the error path exists only for n<=0.
func (p *Pool) GetMultiple(n int) (*Pages, error) {
	if n <= 0 {
		return nil, fmt.Errorf("pagealloc: invalid page count %d", n)
	}
	p.mu.Lock()
	p.allocated += n
	p.mu.Unlock()
	return &Pages{Count: n, bytes: make([]byte, n*PageSize)}, nil
}

// Free releases pages back to the pool. Reference-counted sharing is not
// modeled: a Pages value must be freed exactly once, mirroring
// palloc_free_page's single-owner contract.
func (p *Pool) Free(pg *Pages) {
	if pg == nil {
		return
	}
	p.mu.Lock()
	p.allocated -= pg.Count
	p.mu.Unlock()
	pg.bytes = nil
}

// Bytes exposes the backing storage for byte-level access by usermem.
func (pg *Pages) Bytes() []byte { return pg.bytes }

// Allocated reports pages currently outstanding, for debug/metrics surfaces.
func (p *Pool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}
