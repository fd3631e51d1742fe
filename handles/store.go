package handles

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Store: lifecycle and mutator-facing handle operations
// ---------------------------------------------------------------------------

// RuntimeHooks are the host-runtime callbacks the subsystem reaches
// through. Any nil hook disables the behaviour that depends on it.
type RuntimeHooks struct {
	// WriteBarrier runs before any non-nil reference store into a handle
	// slot, so the collector's card view stays ordered with mutator
	// writes.
	WriteBarrier func(h *Handle, ref ObjRef)

	// RefCountedIsLive resolves the strength of a ref-counted handle:
	// true keeps the referent alive this cycle.
	RefCountedIsLive func(ref ObjRef) bool

	// WalkAsyncPinned reaches objects inside an async-pinned payload that
	// are visible to no other root.
	WalkAsyncPinned func(ref ObjRef, sc *ScanContext, fn PromoteFunc)

	// TriggerBridgeProcessing hands the collected cross-reference roots
	// to the foreign-runtime bridge.
	TriggerBridgeProcessing func(args *BridgeArgs)

	// SyncBlockWeakScan is invoked once per GC by the elected worker; the
	// host applies update to each of its sync-block weak pointers.
	SyncBlockWeakScan func(update func(ref *ObjRef, sc *ScanContext, fn PromoteFunc), sc *ScanContext, fn PromoteFunc)

	// Events receives one notification per handle visited by the
	// profiler walks. Optional.
	Events EventSink
}

// Store owns the bucket directory, the global bucket, and the per-worker
// dependent-handle contexts. Create one per process with New; every GC
// phase and mutator operation is a method on it.
type Store struct {
	opts   Options
	heap   Heap
	hooks  RuntimeHooks
	nSlots int

	// enabled is the closed set of usable handle types; disabled feature
	// types are statically absent from every scan mask.
	enabled TypeMask

	dir    bucketMap
	global *Bucket

	dhContexts []DhContext

	// syncScanTicket elects the one worker that runs the host sync-block
	// weak scan each GC.
	syncScanTicket atomic.Int32

	// nextSlot round-robins mutator allocations across a bucket's
	// per-CPU tables.
	nextSlot atomic.Uint32

	bridgeMu sync.Mutex
	bridge   BridgeArgs

	mu   sync.Mutex
	down bool
}

// New initialises the subsystem: the directory head chunk, the global
// bucket with one table per CPU slot, and the dependent-context array.
// Any failure rolls the partial state back and returns the error.
func New(opts Options, heap Heap, hooks RuntimeHooks) (*Store, error) {
	if heap == nil {
		return nil, fmt.Errorf("nil heap: %w", ErrInvalidArgument)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	st := &Store{
		opts:    opts,
		heap:    heap,
		hooks:   hooks,
		nSlots:  opts.slotCount(),
		enabled: opts.enabledMask(),
	}
	st.dir.init(uint32(opts.InitialChunkCapacity))

	st.global = newBucket(st.nSlots, opts.MaxSegmentsPerTable)
	if index := st.dir.acquire(st.global); index != 0 {
		// The head chunk is empty at this point; the global bucket must
		// land at index zero.
		panic("handles: global bucket not at index 0")
	}

	st.dhContexts = make([]DhContext, st.nSlots)

	log.Infof("handle store initialised: %d CPU slots, chunk capacity %d",
		st.nSlots, opts.InitialChunkCapacity)
	return st, nil
}

// Shutdown releases the directory and the dependent-context array. It
// does not destroy buckets or tables: teardown code running after GC
// shutdown may still dereference handles, so their storage is the host's
// to reclaim.
func (st *Store) Shutdown() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.down {
		return
	}
	st.down = true
	st.dhContexts = nil
	st.dir.head.next.Store(nil)
	for i := range st.dir.head.buckets {
		st.dir.head.buckets[i].Store(nil)
	}
	log.Info("handle store shut down")
}

func (st *Store) serverMode() bool {
	return st.nSlots > 1
}

// GlobalBucket returns the bucket created at initialisation.
func (st *Store) GlobalBucket() *Bucket {
	return st.global
}

// CreateBucket allocates a new bucket with one table per CPU slot and
// inserts it into the directory, returning it with its dense index
// assigned.
func (st *Store) CreateBucket() (*Bucket, error) {
	st.mu.Lock()
	if st.down {
		st.mu.Unlock()
		return nil, ErrShutdown
	}
	st.mu.Unlock()

	b := newBucket(st.nSlots, st.opts.MaxSegmentsPerTable)
	st.dir.acquire(b)
	return b, nil
}

// RemoveBucket takes the bucket out of the directory. Its handles stay
// readable; no scan will visit them again. Idempotent.
func (st *Store) RemoveBucket(b *Bucket) {
	if b == nil || b == st.global {
		return
	}
	st.dir.release(b.index, b)
}

// DestroyBucket removes the bucket from the directory and retires every
// live handle in it. Idempotent on an already-removed bucket.
func (st *Store) DestroyBucket(b *Bucket) {
	if b == nil || b == st.global {
		return
	}
	st.RemoveBucket(b)
	for _, t := range b.tables {
		t.releaseAll()
	}
}

// ---------------------------------------------------------------------------
// Handle creation and destruction
// ---------------------------------------------------------------------------

// tableFor picks the table a new handle lands in, spreading mutator
// allocations round-robin across the bucket's per-CPU tables.
func (st *Store) tableFor(b *Bucket) *Table {
	if len(b.tables) == 1 {
		return b.tables[0]
	}
	return b.tables[int(st.nextSlot.Add(1))%len(b.tables)]
}

// CreateIn allocates a handle of the given type in the given bucket and
// stores the initial reference through the write barrier.
func (st *Store) CreateIn(b *Bucket, typ HandleType, ref ObjRef) (*Handle, error) {
	if b == nil {
		return nil, fmt.Errorf("nil bucket: %w", ErrInvalidArgument)
	}
	if typ >= NumTypes || !st.enabled.Has(typ) {
		return nil, fmt.Errorf("handle type %s unavailable: %w", typ, ErrInvalidArgument)
	}
	h, err := st.tableFor(b).allocate(typ)
	if err != nil {
		return nil, err
	}
	if ref != 0 {
		st.SetObject(h, ref)
	}
	return h, nil
}

// Create allocates a handle of the given type in the global bucket.
func (st *Store) Create(typ HandleType, ref ObjRef) (*Handle, error) {
	return st.CreateIn(st.global, typ, ref)
}

// CreateDependent allocates a dependent handle over the (primary,
// secondary) pair.
func (st *Store) CreateDependent(primary, secondary ObjRef) (*Handle, error) {
	h, err := st.Create(Dependent, primary)
	if err != nil {
		return nil, err
	}
	if secondary != 0 {
		st.SetDependentSecondary(h, secondary)
	}
	return h, nil
}

// CreateVariable allocates a variable-strength handle with the given
// initial strength bits.
func (st *Store) CreateVariable(ref ObjRef, strength uint32) (*Handle, error) {
	if !isValidVarStrength(strength) {
		return nil, fmt.Errorf("variable strength %#x: %w", strength, ErrInvalidArgument)
	}
	h, err := st.Create(Variable, ref)
	if err != nil {
		return nil, err
	}
	h.setExtra(uintptr(strength))
	return h, nil
}

// CreateWeakInteriorPointer allocates a weak-interior handle: a weak
// reference to base that keeps interior = base + offset relocation-safe.
func (st *Store) CreateWeakInteriorPointer(base ObjRef, interior uintptr) (*Handle, error) {
	h, err := st.Create(WeakInteriorPointer, base)
	if err != nil {
		return nil, err
	}
	h.setExtra(interior)
	return h, nil
}

// CreateCrossReference allocates a cross-reference handle carrying the
// host bridge context word.
func (st *Store) CreateCrossReference(ref ObjRef, context uintptr) (*Handle, error) {
	h, err := st.Create(CrossReference, ref)
	if err != nil {
		return nil, err
	}
	h.setExtra(context)
	return h, nil
}

// Destroy frees the handle back to its table. Destroying a handle twice
// is a programming error and is ignored by the table.
func (st *Store) Destroy(h *Handle) {
	if h == nil || h.owner == nil {
		return
	}
	h.owner.release(h)
}

// SetObject stores a primary reference into the handle, running the host
// write barrier for non-nil stores.
func (st *Store) SetObject(h *Handle, ref ObjRef) {
	if h == nil {
		return
	}
	if ref != 0 && st.hooks.WriteBarrier != nil {
		st.hooks.WriteBarrier(h, ref)
	}
	h.setObject(ref)
}

// SetDependentSecondary stores the secondary reference of a dependent
// handle, running the write barrier for non-nil stores.
func (st *Store) SetDependentSecondary(h *Handle, secondary ObjRef) error {
	if h == nil || h.Type() != Dependent {
		return ErrInvalidArgument
	}
	if secondary != 0 && st.hooks.WriteBarrier != nil {
		st.hooks.WriteBarrier(h, secondary)
	}
	h.setExtra(uintptr(secondary))
	return nil
}
