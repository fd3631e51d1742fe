package handles

import "testing"

// ---------------------------------------------------------------------------
// Weak handle clearing
// ---------------------------------------------------------------------------

// TestWeakShortClearing is the canonical weak cycle: two weak-short
// handles, one referent promoted and relocated, one not. The survivor's
// handle tracks the new address; the other reads nil.
func TestWeakShortClearing(t *testing.T) {
	st, fh := newTestStore(t, DefaultOptions())
	const objA, objAMoved, objB ObjRef = 0x100, 0x180, 0x200

	ha := mustCreate(t, st, WeakShort, objA)
	hb := mustCreate(t, st, WeakShort, objB)

	fh.markPromoted(objA)
	fh.moved[objA] = objAMoved
	sc := soloContext()

	st.CheckAlive(2, 2, sc)
	st.UpdatePointers(2, 2, sc, fh.relocateFunc())

	if got := ha.Object(); got != objAMoved {
		t.Errorf("handle to A reads %#x, want %#x", got, objAMoved)
	}
	if got := hb.Object(); got != 0 {
		t.Errorf("handle to B reads %#x, want nil", got)
	}
}

func TestWeakLongCheckBreadth(t *testing.T) {
	st, _ := newTestStore(t, DefaultOptions())
	const dead ObjRef = 0x700

	weakLong := mustCreate(t, st, WeakLong, dead)
	refCounted := mustCreate(t, st, RefCounted, dead)
	interior, err := st.CreateWeakInteriorPointer(dead, uintptr(dead)+8)
	if err != nil {
		t.Fatalf("CreateWeakInteriorPointer: %v", err)
	}
	weakShort := mustCreate(t, st, WeakShort, dead)

	// Nothing promoted; the long-weak check severs weak-long, ref-counted
	// and weak-interior handles but leaves weak-short for its own phase.
	st.CheckReachable(2, 2, soloContext())

	for _, h := range []*Handle{weakLong, refCounted, interior} {
		if h.Object() != 0 {
			t.Errorf("%s handle not severed by long-weak check", h.Type())
		}
	}
	if weakShort.Object() != dead {
		t.Error("weak-short handle severed by the long-weak check")
	}
}

func TestWeakCheckIdempotent(t *testing.T) {
	st, fh := newTestStore(t, DefaultOptions())
	const live, dead ObjRef = 0x300, 0x400

	hl := mustCreate(t, st, WeakShort, live)
	hd := mustCreate(t, st, WeakShort, dead)
	fh.markPromoted(live)
	sc := soloContext()

	st.CheckAlive(2, 2, sc)
	st.CheckAlive(2, 2, sc)

	if hl.Object() != live {
		t.Error("live referent severed")
	}
	if hd.Object() != 0 {
		t.Error("dead referent not severed")
	}
}

// ---------------------------------------------------------------------------
// Weak interior pointers
// ---------------------------------------------------------------------------

func TestWeakInteriorRelocationPreservesOffset(t *testing.T) {
	st, fh := newTestStore(t, DefaultOptions())
	const base, moved ObjRef = 0x1000, 0x2000
	const offset uintptr = 24

	h, err := st.CreateWeakInteriorPointer(base, uintptr(base)+offset)
	if err != nil {
		t.Fatalf("CreateWeakInteriorPointer: %v", err)
	}

	fh.markPromoted(base)
	fh.moved[base] = moved

	st.ScanWeakInteriorPointersForRelocation(2, 2, soloContext(), fh.relocateFunc())

	if got := h.Object(); got != moved {
		t.Errorf("primary reads %#x, want %#x", got, moved)
	}
	if got := h.ExtraInfo(); got != uintptr(moved)+offset {
		t.Errorf("interior reads %#x, want %#x", got, uintptr(moved)+offset)
	}
}

// ---------------------------------------------------------------------------
// Bridge weak-ref nulling
// ---------------------------------------------------------------------------

func TestBridgeCollectAndNullWeakRefs(t *testing.T) {
	st, fh := newTestStore(t, DefaultOptions())
	const foreign, domestic ObjRef = 0x900, 0xa00
	const bridgeContext uintptr = 0x42

	var handedOff *BridgeArgs
	st.hooks.TriggerBridgeProcessing = func(args *BridgeArgs) { handedOff = args }

	if _, err := st.CreateCrossReference(foreign, bridgeContext); err != nil {
		t.Fatalf("CreateCrossReference: %v", err)
	}
	weakForeign := mustCreate(t, st, WeakShort, foreign)
	weakDomestic := mustCreate(t, st, WeakLong, domestic)
	fh.markPromoted(domestic)

	collected := st.ScanBridgeObjects(2, 2, soloContext())
	if len(collected) != 1 || collected[0] != foreign {
		t.Fatalf("collected = %v, want [%#x]", collected, foreign)
	}
	if handedOff == nil || len(handedOff.Contexts) != 1 || handedOff.Contexts[0] != bridgeContext {
		t.Fatalf("bridge processing handed %+v, want context %#x", handedOff, bridgeContext)
	}

	// The host decided 'foreign' is unreachable in the foreign graph too.
	st.NullBridgeObjectsWeakRefs(collected)

	if weakForeign.Object() != 0 {
		t.Error("weak handle to bridge victim not severed")
	}
	if weakDomestic.Object() != domestic {
		t.Error("weak handle to unrelated object severed")
	}
}

func TestBridgeScanSkipsPromotedPrimaries(t *testing.T) {
	st, fh := newTestStore(t, DefaultOptions())
	const obj ObjRef = 0xb00

	if _, err := st.CreateCrossReference(obj, 0); err != nil {
		t.Fatalf("CreateCrossReference: %v", err)
	}
	fh.markPromoted(obj)

	if collected := st.ScanBridgeObjects(2, 2, soloContext()); len(collected) != 0 {
		t.Errorf("collected = %v, want none", collected)
	}
}
