package handles

import (
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Test harness: a fake collector
// ---------------------------------------------------------------------------

// fakeHeap is a stand-in promotion oracle. Objects are arbitrary non-zero
// words; the test decides which are promoted and where relocation moves
// them.
type fakeHeap struct {
	mu         sync.Mutex
	promoted   map[ObjRef]bool
	moved      map[ObjRef]ObjRef
	bytes      map[int]uintptr
	sizes      map[ObjRef]uintptr
	queries    map[ObjRef]int
	concurrent bool
}

func newFakeHeap() *fakeHeap {
	return &fakeHeap{
		promoted: make(map[ObjRef]bool),
		moved:    make(map[ObjRef]ObjRef),
		bytes:    make(map[int]uintptr),
		sizes:    make(map[ObjRef]uintptr),
		queries:  make(map[ObjRef]int),
	}
}

func (fh *fakeHeap) IsPromoted(ref ObjRef) bool {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	fh.queries[ref]++
	return fh.promoted[ref]
}

func (fh *fakeHeap) queryCount(ref ObjRef) int {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return fh.queries[ref]
}

func (fh *fakeHeap) PromotedBytes(worker int) uintptr {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return fh.bytes[worker]
}

func (fh *fakeHeap) IsConcurrentGCInProgress() bool {
	return fh.concurrent
}

func (fh *fakeHeap) markPromoted(refs ...ObjRef) {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	for _, ref := range refs {
		fh.promoted[ref] = true
	}
}

// markFunc returns a PromoteFunc that marks the referent promoted and
// charges its size to the worker's promoted-byte counter.
func (fh *fakeHeap) markFunc() PromoteFunc {
	return func(ref *ObjRef, sc *ScanContext, flags uint32) {
		fh.mu.Lock()
		defer fh.mu.Unlock()
		if !fh.promoted[*ref] {
			fh.promoted[*ref] = true
			fh.bytes[sc.ThreadNumber] += fh.sizes[*ref]
		}
	}
}

// relocateFunc returns a PromoteFunc that rewrites the referent to its
// post-GC address. Pinned promotions never move.
func (fh *fakeHeap) relocateFunc() PromoteFunc {
	return func(ref *ObjRef, sc *ScanContext, flags uint32) {
		fh.mu.Lock()
		defer fh.mu.Unlock()
		if flags&PromoteFlagPinned != 0 {
			return
		}
		if to, ok := fh.moved[*ref]; ok {
			*ref = to
		}
	}
}

func soloContext() *ScanContext {
	return &ScanContext{ThreadNumber: 0, ThreadCount: 1}
}

func newTestStore(t *testing.T, opts Options) (*Store, *fakeHeap) {
	t.Helper()
	fh := newFakeHeap()
	st, err := New(opts, fh, RuntimeHooks{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return st, fh
}

func mustCreate(t *testing.T, st *Store, typ HandleType, ref ObjRef) *Handle {
	t.Helper()
	h, err := st.Create(typ, ref)
	if err != nil {
		t.Fatalf("Create(%s): %v", typ, err)
	}
	return h
}
