package handles

import (
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Dependent handle fixed point
// ---------------------------------------------------------------------------

func TestDependentPromotesSecondaryOfPromotedPrimary(t *testing.T) {
	st, fh := newTestStore(t, DefaultOptions())
	const primary, secondary ObjRef = 0x100, 0x200

	h, err := st.CreateDependent(primary, secondary)
	if err != nil {
		t.Fatalf("CreateDependent: %v", err)
	}
	fh.markPromoted(primary)
	sc := soloContext()

	dh := st.DependentHandleContext(sc, fh.markFunc(), 2, 2)
	if !st.ScanDependentHandlesForPromotion(dh) {
		t.Error("scan should report a promotion")
	}
	if !fh.IsPromoted(secondary) {
		t.Error("secondary not promoted")
	}
	if h.DependentSecondary() != secondary {
		t.Error("secondary word changed by the mark pass")
	}
}

// TestDependentTransitiveChain builds (S1 -> S2) then (P1 -> S1), so the
// first handle scanned has an unpromoted primary that only the second
// handle's promotion satisfies. Quiescence requires at least two rounds
// and must leave the whole chain promoted.
func TestDependentTransitiveChain(t *testing.T) {
	st, fh := newTestStore(t, DefaultOptions())
	const p1, s1, s2 ObjRef = 0x100, 0x200, 0x300

	// Allocation order fixes scan order: (S1 -> S2) is visited first.
	if _, err := st.CreateDependent(s1, s2); err != nil {
		t.Fatalf("CreateDependent: %v", err)
	}
	if _, err := st.CreateDependent(p1, s1); err != nil {
		t.Fatalf("CreateDependent: %v", err)
	}
	fh.markPromoted(p1)
	sc := soloContext()

	dh := st.DependentHandleContext(sc, fh.markFunc(), 2, 2)
	if !st.ScanDependentHandlesForPromotion(dh) {
		t.Fatal("scan should report promotions")
	}

	if !fh.IsPromoted(s1) || !fh.IsPromoted(s2) {
		t.Errorf("chain not fully promoted: s1=%v s2=%v",
			fh.IsPromoted(s1), fh.IsPromoted(s2))
	}

	// The (P1 -> S1) handle queries its primary once per loop round; the
	// chain cannot quiesce in a single round.
	if n := fh.queryCount(p1); n < 2 {
		t.Errorf("primary queried %d times, want at least 2 rounds", n)
	}
}

func TestDependentFixedPointIsIdempotent(t *testing.T) {
	st, fh := newTestStore(t, DefaultOptions())
	const p, s ObjRef = 0x100, 0x200

	h, err := st.CreateDependent(p, s)
	if err != nil {
		t.Fatalf("CreateDependent: %v", err)
	}
	fh.markPromoted(p)
	sc := soloContext()

	dh := st.DependentHandleContext(sc, fh.markFunc(), 2, 2)
	st.ScanDependentHandlesForPromotion(dh)

	// A second driver run over quiesced state promotes nothing and
	// changes nothing.
	primaryBefore, secondaryBefore := h.Object(), h.DependentSecondary()
	dh = st.DependentHandleContext(sc, fh.markFunc(), 2, 2)
	if st.ScanDependentHandlesForPromotion(dh) {
		t.Error("second run should report no promotions")
	}
	if h.Object() != primaryBefore || h.DependentSecondary() != secondaryBefore {
		t.Error("second run changed handle state")
	}
}

func TestDependentClearingNullsDeadPairs(t *testing.T) {
	st, fh := newTestStore(t, DefaultOptions())
	const deadP, deadS, liveP, liveS ObjRef = 0x100, 0x200, 0x300, 0x400

	dead, err := st.CreateDependent(deadP, deadS)
	if err != nil {
		t.Fatalf("CreateDependent: %v", err)
	}
	live, err := st.CreateDependent(liveP, liveS)
	if err != nil {
		t.Fatalf("CreateDependent: %v", err)
	}
	fh.markPromoted(liveP)
	sc := soloContext()

	dh := st.DependentHandleContext(sc, fh.markFunc(), 2, 2)
	if !st.ScanDependentHandlesForPromotion(dh) {
		t.Fatal("live pair should promote its secondary")
	}
	st.ScanDependentHandlesForClearing(2, 2, sc)

	if dead.Object() != 0 || dead.DependentSecondary() != 0 {
		t.Errorf("dead pair reads (%#x, %#x), want (0, 0)",
			dead.Object(), dead.DependentSecondary())
	}
	if live.Object() != liveP || live.DependentSecondary() != liveS {
		t.Error("live pair disturbed by clearing")
	}
}

// TestDependentUnreachablePrimaryWholeCycle is the no-promotions path:
// the driver reports false and the clear pass nulls both words.
func TestDependentUnreachablePrimaryWholeCycle(t *testing.T) {
	st, fh := newTestStore(t, DefaultOptions())
	const p, s ObjRef = 0x500, 0x600

	h, err := st.CreateDependent(p, s)
	if err != nil {
		t.Fatalf("CreateDependent: %v", err)
	}
	sc := soloContext()

	dh := st.DependentHandleContext(sc, fh.markFunc(), 2, 2)
	if st.ScanDependentHandlesForPromotion(dh) {
		t.Error("unreachable primary should promote nothing")
	}
	st.ScanDependentHandlesForClearing(2, 2, sc)

	if h.Object() != 0 || h.DependentSecondary() != 0 {
		t.Errorf("pair reads (%#x, %#x), want (0, 0)", h.Object(), h.DependentSecondary())
	}
}

func TestDependentRelocation(t *testing.T) {
	st, fh := newTestStore(t, DefaultOptions())
	const p, pMoved, s, sMoved ObjRef = 0x100, 0x110, 0x200, 0x220

	h, err := st.CreateDependent(p, s)
	if err != nil {
		t.Fatalf("CreateDependent: %v", err)
	}
	fh.markPromoted(p, s)
	fh.moved[p] = pMoved
	fh.moved[s] = sMoved

	st.ScanDependentHandlesForRelocation(2, 2, soloContext(), fh.relocateFunc())

	if h.Object() != pMoved {
		t.Errorf("primary reads %#x, want %#x", h.Object(), pMoved)
	}
	if h.DependentSecondary() != sMoved {
		t.Errorf("secondary reads %#x, want %#x", h.DependentSecondary(), sMoved)
	}
}

// TestDependentParallelWorkers splits dependent handles across server
// tables and checks the per-worker OR protocol: each worker's driver
// returns its own answer and the union promotes the full chain.
func TestDependentParallelWorkers(t *testing.T) {
	const procs = 2
	st, fh := newTestStore(t, serverOptions(procs))
	const p, s1, s2 ObjRef = 0x100, 0x200, 0x300

	// Place a chain link in each per-CPU table so both workers have work.
	h0, err := st.global.tables[0].allocate(Dependent)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	h0.setObject(p)
	h0.setExtra(uintptr(s1))
	h1, err := st.global.tables[1].allocate(Dependent)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	h1.setObject(s1)
	h1.setExtra(uintptr(s2))
	fh.markPromoted(p)

	// Run the collector's outer fixed point: re-drive both workers until
	// neither promotes.
	for {
		any := false
		var wg sync.WaitGroup
		results := make([]bool, procs)
		for w := 0; w < procs; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				sc := &ScanContext{ThreadNumber: w, ThreadCount: procs}
				dh := st.DependentHandleContext(sc, fh.markFunc(), 2, 2)
				results[w] = st.ScanDependentHandlesForPromotion(dh)
			}(w)
		}
		wg.Wait()
		for _, r := range results {
			any = any || r
		}
		if !any {
			break
		}
	}

	if !fh.IsPromoted(s1) || !fh.IsPromoted(s2) {
		t.Errorf("chain not fully promoted across workers: s1=%v s2=%v",
			fh.IsPromoted(s1), fh.IsPromoted(s2))
	}
}
