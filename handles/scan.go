package handles

// ---------------------------------------------------------------------------
// Scan dispatch: striding across per-CPU tables by worker identity
// ---------------------------------------------------------------------------

// slotNumber maps a scan context to the first table this worker owns. In
// workstation mode there is only one table per bucket and every worker
// resolves to it.
func (st *Store) slotNumber(sc *ScanContext) int {
	if !st.serverMode() {
		return 0
	}
	return sc.ThreadNumber
}

// slotStep is the stride between tables owned by the same worker.
func (st *Store) slotStep(sc *ScanContext) int {
	if sc.ThreadCount < 1 {
		return 1
	}
	return sc.ThreadCount
}

// forEachTable walks the directory and yields each table this worker is
// responsible for: table w, w+step, w+2*step, ... within every bucket.
// With workers partitioned this way each table is visited by exactly one
// worker per phase, so no intra-phase synchronisation is needed.
func (st *Store) forEachTable(sc *ScanContext, f func(t *Table)) {
	start := st.slotNumber(sc)
	step := st.slotStep(sc)
	st.dir.enumerate(func(b *Bucket) {
		for i := start; i < len(b.tables); i += step {
			f(b.tables[i])
		}
	})
}

// forEachTableAll walks every table of every bucket. Used by the
// single-threaded entry points (profiler walks, teardown enumeration,
// bridge collection) which must see the whole population regardless of
// worker identity.
func (st *Store) forEachTableAll(f func(t *Table)) {
	st.dir.enumerate(func(b *Bucket) {
		for _, t := range b.tables {
			f(t)
		}
	})
}

// traceVariableHandles scans Variable handles with the worker striding
// discipline, delegating to inner only for handles whose dynamic strength
// intersects enableMask.
func (st *Store) traceVariableHandles(inner scanVisitor, sc *ScanContext, enableMask uint32, condemned, maxgen uint32, flags ScanFlags) {
	visit := variableDispatch(enableMask, inner)
	st.forEachTable(sc, func(t *Table) {
		t.scanGC(visit, sc, MaskOf(Variable), condemned, maxgen, flags|ScanExtraInfo)
	})
}

// traceVariableHandlesSingleThread is the full-fan variant: it visits
// every table of every bucket regardless of worker identity.
func (st *Store) traceVariableHandlesSingleThread(inner scanVisitor, sc *ScanContext, enableMask uint32, condemned, maxgen uint32, flags ScanFlags) {
	visit := variableDispatch(enableMask, inner)
	st.forEachTableAll(func(t *Table) {
		t.scanGC(visit, sc, MaskOf(Variable), condemned, maxgen, flags|ScanExtraInfo)
	})
}
