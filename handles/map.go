package handles

import "sync/atomic"

// ---------------------------------------------------------------------------
// Bucket directory: a chunked, lock-free map from dense index to bucket
// ---------------------------------------------------------------------------

// bucketChunk is one fixed-capacity window of the directory. Chunks form
// a singly linked chain; maxIndex is the cumulative index ceiling covered
// up to and including this chunk, so each chunk owns the index window
// [maxIndex-len(buckets), maxIndex).
type bucketChunk struct {
	buckets  []atomic.Pointer[Bucket]
	maxIndex uint32
	next     atomic.Pointer[bucketChunk]
}

// bucketMap is the directory. The head chunk is embedded so an
// initialised store always has at least one window without a separate
// allocation; growth appends heap-allocated chunks by CAS.
//
// Slot lifecycle: empty -> occupied by CAS (mutator bucket creation),
// occupied -> empty by plain store (collector-quiescent teardown only).
// A slot never changes from one bucket to another directly.
type bucketMap struct {
	head     bucketChunk
	capacity uint32
}

func (m *bucketMap) init(capacity uint32) {
	m.capacity = capacity
	m.head.buckets = make([]atomic.Pointer[Bucket], capacity)
	m.head.maxIndex = capacity
}

// acquire installs the bucket in the first empty slot, growing the chain
// when every window is full, and returns the bucket's global index. The
// bucket's index is stamped before the CAS so a racing enumerator never
// observes an installed bucket with a stale index.
func (m *bucketMap) acquire(b *Bucket) uint32 {
	for {
		walk := &m.head
		last := walk
		offset := uint32(0)
		for walk != nil {
			for i := range walk.buckets {
				if walk.buckets[i].Load() != nil {
					continue
				}
				b.setIndex(offset + uint32(i))
				if walk.buckets[i].CompareAndSwap(nil, b) {
					return offset + uint32(i)
				}
				// Another thread won this slot; keep scanning.
			}
			last = walk
			offset = walk.maxIndex
			walk = walk.next.Load()
		}

		// Every window is full. Append a fresh chunk; on CAS failure a
		// rival chunk was installed first, so discard ours and rescan
		// from whatever last.next became.
		fresh := &bucketChunk{
			buckets:  make([]atomic.Pointer[Bucket], m.capacity),
			maxIndex: last.maxIndex + m.capacity,
		}
		last.next.CompareAndSwap(nil, fresh)
	}
}

// release clears the directory slot holding the given index, provided it
// still holds b. Issued only from collector-quiescent paths; the slot
// becomes reusable immediately afterwards.
func (m *bucketMap) release(index uint32, b *Bucket) {
	walk := &m.head
	offset := uint32(0)
	for walk != nil {
		if index < walk.maxIndex && index >= offset {
			i := index - offset
			if walk.buckets[i].Load() == b {
				walk.buckets[i].Store(nil)
			}
			return
		}
		offset = walk.maxIndex
		walk = walk.next.Load()
	}
	// Not found: the bucket was already removed. Harmless.
}

// enumerate yields every occupied slot, head to tail.
func (m *bucketMap) enumerate(visit func(b *Bucket)) {
	walk := &m.head
	for walk != nil {
		for i := range walk.buckets {
			if b := walk.buckets[i].Load(); b != nil {
				visit(b)
			}
		}
		walk = walk.next.Load()
	}
}

// chunkCount returns the length of the chain.
func (m *bucketMap) chunkCount() int {
	n := 0
	for walk := &m.head; walk != nil; walk = walk.next.Load() {
		n++
	}
	return n
}
