package handles

import "testing"

// ---------------------------------------------------------------------------
// Pinned and async-pinned handles
// ---------------------------------------------------------------------------

// TestPinnedReferentDoesNotMove runs the pin phase then the pinned
// relocation phase against a heap that wants to move the object. The
// pinned flag must suppress the move in both, leaving the slot reading
// the original address.
func TestPinnedReferentDoesNotMove(t *testing.T) {
	st, fh := newTestStore(t, DefaultOptions())
	const obj, wouldMoveTo ObjRef = 0x100, 0x900

	h := mustCreate(t, st, Pinned, obj)
	fh.moved[obj] = wouldMoveTo
	sc := soloContext()

	pinnedSeen := false
	fn := func(ref *ObjRef, sc *ScanContext, flags uint32) {
		if flags&PromoteFlagPinned != 0 {
			pinnedSeen = true
		}
		fh.markFunc()(ref, sc, flags)
		fh.relocateFunc()(ref, sc, flags)
	}

	st.TracePinningRoots(2, 2, sc, fn)
	st.UpdatePinnedPointers(2, 2, sc, fn)

	if !pinnedSeen {
		t.Error("promote callback never saw the pinned flag")
	}
	if got := h.Object(); got != obj {
		t.Errorf("pinned slot reads %#x, want original %#x", got, obj)
	}
}

func TestAsyncPinnedWalksPayload(t *testing.T) {
	st, fh := newTestStore(t, DefaultOptions())
	const obj, payload ObjRef = 0x100, 0x200

	walked := []ObjRef{}
	st.hooks.WalkAsyncPinned = func(ref ObjRef, sc *ScanContext, fn PromoteFunc) {
		walked = append(walked, ref)
		inner := payload
		fn(&inner, sc, 0)
	}

	mustCreate(t, st, AsyncPinned, obj)
	st.TracePinningRoots(2, 2, soloContext(), fh.markFunc())

	if len(walked) != 1 || walked[0] != obj {
		t.Fatalf("payload walk saw %v, want [%#x]", walked, obj)
	}
	if !fh.IsPromoted(payload) {
		t.Error("object reached only through the async-pinned payload not promoted")
	}
}

func TestAsyncPinnedSkipsNilReferent(t *testing.T) {
	st, fh := newTestStore(t, DefaultOptions())

	walks := 0
	st.hooks.WalkAsyncPinned = func(ObjRef, *ScanContext, PromoteFunc) { walks++ }

	mustCreate(t, st, AsyncPinned, 0)
	st.TracePinningRoots(2, 2, soloContext(), fh.markFunc())

	if walks != 0 {
		t.Errorf("payload walked %d times for a nil referent", walks)
	}
}

// TestVariablePinnedStrength checks that a Variable handle currently
// pinned participates in the pin phases.
func TestVariablePinnedStrength(t *testing.T) {
	st, fh := newTestStore(t, DefaultOptions())
	const obj, wouldMoveTo ObjRef = 0x300, 0x910

	h, err := st.CreateVariable(obj, VarStrengthPinned)
	if err != nil {
		t.Fatalf("CreateVariable: %v", err)
	}
	fh.moved[obj] = wouldMoveTo
	sc := soloContext()

	fn := func(ref *ObjRef, sc *ScanContext, flags uint32) {
		fh.markFunc()(ref, sc, flags)
		fh.relocateFunc()(ref, sc, flags)
	}
	st.TracePinningRoots(2, 2, sc, fn)
	st.UpdatePinnedPointers(2, 2, sc, fn)

	if got := h.Object(); got != obj {
		t.Errorf("variable pinned slot reads %#x, want %#x", got, obj)
	}
}
