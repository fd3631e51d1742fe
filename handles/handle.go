package handles

import "sync/atomic"

// ---------------------------------------------------------------------------
// Handle: one slot of a handle table
// ---------------------------------------------------------------------------

// A Handle is a single slot inside a table segment. Its address is the
// handle's identity and is stable for the handle's lifetime: segments are
// fixed-size arrays that are never moved or shrunk.
//
// The primary and extra words are accessed atomically so that concurrent
// (background) scans never observe a partially written reference. Mutator
// writes that store a non-nil reference must additionally go through the
// store so the host write-barrier runs; see Store.SetObject.
type Handle struct {
	ref   atomic.Uintptr // primary object word
	extra atomic.Uintptr // extra-info word; meaning depends on type
	meta  atomic.Uint32  // bits 0-7 type, bits 8-15 age, bit 16 live
	owner *Table         // set once when the segment is carved

	nextFree *Handle // free-list link while the slot is dead
}

const (
	metaTypeMask uint32 = 0xff
	metaAgeShift        = 8
	metaAgeMask  uint32 = 0xff << metaAgeShift
	metaLiveBit  uint32 = 1 << 16
)

// Object returns the primary object reference.
func (h *Handle) Object() ObjRef {
	return ObjRef(h.ref.Load())
}

// ExtraInfo returns the raw extra-info word. For Dependent handles it is
// the secondary reference, for Variable handles the dynamic strength
// bits, for SizedRef the last measured size, for WeakInteriorPointer the
// interior address, and for CrossReference the host context word.
func (h *Handle) ExtraInfo() uintptr {
	return h.extra.Load()
}

// Type returns the handle's type code.
func (h *Handle) Type() HandleType {
	return HandleType(h.meta.Load() & metaTypeMask)
}

// DependentSecondary returns the secondary reference of a Dependent
// handle, or zero for any other type.
func (h *Handle) DependentSecondary() ObjRef {
	if h.Type() != Dependent {
		return 0
	}
	return ObjRef(h.extra.Load())
}

func (h *Handle) setObject(ref ObjRef) {
	h.ref.Store(uintptr(ref))
}

func (h *Handle) setExtra(word uintptr) {
	h.extra.Store(word)
}

func (h *Handle) compareAndSwapExtra(old, new uintptr) bool {
	return h.extra.CompareAndSwap(old, new)
}

func (h *Handle) isLive() bool {
	return h.meta.Load()&metaLiveBit != 0
}

// age returns the handle's generation. Handles are born in generation 0
// and age toward maxgen as they survive GCs.
func (h *Handle) age() uint32 {
	return (h.meta.Load() & metaAgeMask) >> metaAgeShift
}

func (h *Handle) setAge(age uint32) {
	for {
		old := h.meta.Load()
		new := (old &^ metaAgeMask) | (age << metaAgeShift & metaAgeMask)
		if h.meta.CompareAndSwap(old, new) {
			return
		}
	}
}

// activate publishes the slot as a live handle of the given type. The age
// starts at zero: a fresh handle always belongs to the youngest
// generation.
func (h *Handle) activate(typ HandleType) {
	h.ref.Store(0)
	h.extra.Store(0)
	h.meta.Store(uint32(typ) | metaLiveBit)
}

// deactivate retires the slot. Words are cleared so a stale Handle held
// by a buggy caller reads nil rather than a recycled reference.
func (h *Handle) deactivate() {
	h.meta.Store(0)
	h.ref.Store(0)
	h.extra.Store(0)
}
