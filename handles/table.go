package handles

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Table: the handle-table primitive (one CPU slot's worth of handles)
// ---------------------------------------------------------------------------

// segmentSize is the number of slots carved at a time. Segments are never
// freed or moved while the table is alive, which is what makes a *Handle
// a stable identity.
const segmentSize = 256

type segment struct {
	slots [segmentSize]Handle
}

// Table is one CPU-local block of handle slots. It supports allocate,
// free, type-filtered GC scans, generation-blind enumeration, age
// bookkeeping, and verification. Buckets fan out over N tables; the
// dispatcher strides across them by worker identity.
//
// The mutex guards allocation state (segments, free lists, counts). GC
// scans also take it so that a scan never races a mutator growing the
// segment list; slot words themselves are atomics.
type Table struct {
	mu          sync.Mutex
	index       uint32 // bucket index shared by all tables of a bucket
	segments    []*segment
	nextSlot    int // carve position within the last segment
	free        [NumTypes]*Handle
	maxSegments int // 0 means unbounded
	counts      [NumTypes]int
}

// newTable creates an empty table. maxSegments bounds arena growth; zero
// means unbounded.
func newTable(maxSegments int) *Table {
	return &Table{maxSegments: maxSegments}
}

// Index returns the bucket index assigned to this table.
func (t *Table) Index() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.index
}

func (t *Table) setIndex(index uint32) {
	t.mu.Lock()
	t.index = index
	t.mu.Unlock()
}

// allocate returns a fresh live slot of the given type, reusing a freed
// slot of the same type when one exists. The returned handle reads nil
// until the caller stores a reference.
func (t *Table) allocate(typ HandleType) (*Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h := t.free[typ]; h != nil {
		t.free[typ] = h.nextFree
		h.nextFree = nil
		h.activate(typ)
		t.counts[typ]++
		return h, nil
	}

	if len(t.segments) == 0 || t.nextSlot == segmentSize {
		if t.maxSegments > 0 && len(t.segments) == t.maxSegments {
			return nil, fmt.Errorf("slot arena exhausted (%d segments): %w",
				len(t.segments), ErrOutOfResources)
		}
		t.segments = append(t.segments, &segment{})
		t.nextSlot = 0
	}

	seg := t.segments[len(t.segments)-1]
	h := &seg.slots[t.nextSlot]
	t.nextSlot++
	h.owner = t
	h.activate(typ)
	t.counts[typ]++
	return h, nil
}

// release retires a slot and pushes it onto the free list for its type.
// Releasing a dead slot is a programming error and is ignored.
func (t *Table) release(h *Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !h.isLive() {
		log.Errorf("release of dead handle %p ignored", h)
		return
	}
	typ := h.Type()
	h.deactivate()
	h.nextFree = t.free[typ]
	t.free[typ] = h
	t.counts[typ]--
}

// releaseAll retires every live slot in the table. Used by bucket
// destruction after the bucket has left the directory.
func (t *Table) releaseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, seg := range t.segments {
		for i := range seg.slots {
			h := &seg.slots[i]
			if !h.isLive() {
				continue
			}
			typ := h.Type()
			h.deactivate()
			h.nextFree = t.free[typ]
			t.free[typ] = h
			t.counts[typ]--
		}
	}
}

// count returns the number of live handles of the given type.
func (t *Table) count(typ HandleType) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[typ]
}

// contains reports whether h is a slot of this table.
func (t *Table) contains(h *Handle) bool {
	return h != nil && h.owner == t
}

// scanVisitor is invoked once per matching slot during a scan.
type scanVisitor func(h *Handle, sc *ScanContext)

// scanGC visits every live handle whose type is in mask and whose age is
// within the condemned generation. With ScanAge set no callback runs;
// matching handles age one generation instead (saturating at maxgen).
func (t *Table) scanGC(visit scanVisitor, sc *ScanContext, mask TypeMask, condemned, maxgen uint32, flags ScanFlags) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, seg := range t.segments {
		for i := range seg.slots {
			h := &seg.slots[i]
			if !h.isLive() || !mask.Has(h.Type()) {
				continue
			}
			if h.age() > condemned {
				continue
			}
			if flags&ScanAge != 0 {
				if age := h.age(); age < maxgen {
					h.setAge(age + 1)
				}
				continue
			}
			visit(h, sc)
		}
	}
}

// enum visits every live handle whose type is in mask regardless of
// generation. Used by host teardown walks and bridge weak-ref nulling.
func (t *Table) enum(visit scanVisitor, sc *ScanContext, mask TypeMask) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, seg := range t.segments {
		for i := range seg.slots {
			h := &seg.slots[i]
			if h.isLive() && mask.Has(h.Type()) {
				visit(h, sc)
			}
		}
	}
}

// resetAges returns every matching handle within the condemned window to
// the youngest generation.
func (t *Table) resetAges(mask TypeMask, condemned uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, seg := range t.segments {
		for i := range seg.slots {
			h := &seg.slots[i]
			if h.isLive() && mask.Has(h.Type()) && h.age() <= condemned {
				h.setAge(0)
			}
		}
	}
}

// verify walks the table checking structural invariants. Corruption here
// means the handle table and the collector disagree about the world; the
// process cannot safely continue.
func (t *Table) verify(mask TypeMask) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, seg := range t.segments {
		for i := range seg.slots {
			h := &seg.slots[i]
			if !h.isLive() || !mask.Has(h.Type()) {
				continue
			}
			typ := h.Type()
			if typ >= NumTypes {
				log.Criticalf("handle %p has invalid type %d", h, typ)
				panic("handles: corrupt handle type")
			}
			if !typ.HasExtraInfo() && h.ExtraInfo() != 0 {
				log.Criticalf("handle %p (%s) carries extra info", h, typ)
				panic("handles: extra info on normal handle")
			}
			if typ == Dependent && h.Object() == 0 && h.ExtraInfo() != 0 {
				log.Criticalf("dependent handle %p has null primary, live secondary", h)
				panic("handles: dependent primary/secondary mismatch")
			}
		}
	}
}
