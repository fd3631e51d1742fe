package handles

// ---------------------------------------------------------------------------
// Dependent handles: the fixed-point promotion driver
// ---------------------------------------------------------------------------
//
// A dependent handle models "secondary is live iff primary is live"
// without a cycle through the handle table: the secondary is a raw word
// in the extra-info slot, not a handle, so the table's own structure can
// never hold a back-edge. The effect is a weak reference to the primary
// plus a strong edge from primary to secondary.
//
// Promoting a secondary can retroactively satisfy the primary of a
// dependent handle scanned earlier, so the promotion scan repeats until
// it reaches a fixed point. Under server GC each worker loops over its
// own slice of the tables; a worker's promotions can also feed primaries
// owned by other workers, which is why the result bubbles up into the
// collector's outer fixed point.

// DhContext carries one heap worker's state across the iterations of the
// dependent-handle promotion loop. Each worker owns exactly one context;
// there is no cross-worker access.
type DhContext struct {
	sc        *ScanContext
	fn        PromoteFunc
	condemned uint32
	maxgen    uint32

	// Set by the scan callback: a live primary that is not yet promoted
	// was seen this round.
	unpromotedPrimaries bool

	// Set by the scan callback: at least one secondary was promoted this
	// round.
	promoted bool
}

// DependentHandleContext returns the per-worker context for the given
// scan context, primed for this GC's dependent phases. Call once per
// worker per GC before the promotion loop.
func (st *Store) DependentHandleContext(sc *ScanContext, fn PromoteFunc, condemned, maxgen uint32) *DhContext {
	dh := &st.dhContexts[st.slotNumber(sc)]
	dh.sc = sc
	dh.fn = fn
	dh.condemned = condemned
	dh.maxgen = maxgen
	dh.unpromotedPrimaries = false
	dh.promoted = false
	return dh
}

// ScanDependentHandlesForPromotion promotes secondaries of promoted
// primaries until no scan makes further progress. Returns true if any
// promotion happened over the whole call; the collector ORs the results
// across workers and keeps re-driving all of them until the global answer
// is false.
//
// The loop runs while both conditions hold: an unpromoted live primary
// remains (something could still change) and the last round promoted
// something (something did change). Looping here is much cheaper than
// returning to the collector, which must barrier all workers per round.
func (st *Store) ScanDependentHandlesForPromotion(dh *DhContext) bool {
	log.Debugf("dependent promotion scan, generation %d", dh.condemned)
	flags := scanFlagsFor(dh.sc) | ScanExtraInfo
	visit := promoteDependent(st, dh)

	anyPromotions := false
	for {
		dh.unpromotedPrimaries = false
		dh.promoted = false

		st.forEachTable(dh.sc, func(t *Table) {
			t.scanGC(visit, dh.sc, MaskOf(Dependent), dh.condemned, dh.maxgen, flags)
		})

		if dh.promoted {
			anyPromotions = true
		}
		if !(dh.unpromotedPrimaries && dh.promoted) {
			return anyPromotions
		}
	}
}

// ScanDependentHandlesForClearing nulls both words of every dependent
// handle whose primary did not survive. Runs once per worker after the
// collector's outer fixed point has quiesced.
func (st *Store) ScanDependentHandlesForClearing(condemned, maxgen uint32, sc *ScanContext) {
	log.Debugf("clearing dead dependent handles, generation %d", condemned)
	flags := scanFlagsFor(sc) | ScanExtraInfo
	visit := clearDependent(st)
	st.forEachTable(sc, func(t *Table) {
		t.scanGC(visit, sc, MaskOf(Dependent), condemned, maxgen, flags)
	})
}

// ScanDependentHandlesForRelocation rewrites both words of dependent
// handles to post-relocation addresses.
func (st *Store) ScanDependentHandlesForRelocation(condemned, maxgen uint32, sc *ScanContext, fn PromoteFunc) {
	log.Debugf("relocating dependent handles, generation %d", condemned)
	flags := scanFlagsFor(sc) | ScanExtraInfo
	visit := updateDependent(fn)
	st.forEachTable(sc, func(t *Table) {
		t.scanGC(visit, sc, MaskOf(Dependent), condemned, maxgen, flags)
	})
}
