package handles

// ---------------------------------------------------------------------------
// Collector-facing phase entry points
// ---------------------------------------------------------------------------
//
// The collector drives these in its phase order, once per heap worker:
//
//	TracePinningRoots -> TraceNormalRoots ->
//	ScanDependentHandlesForPromotion (looped to global quiescence) ->
//	CheckReachable -> CheckAlive -> ScanDependentHandlesForClearing ->
//	UpdatePinnedPointers -> UpdatePointers (+ interior, dependent) ->
//	AgeHandles
//
// Within a phase, visitation order is unspecified. The barrier the
// collector runs between phases is the only synchronisation point.

// TracePinningRoots pins the referents of pinned and async-pinned
// handles, plus Variable handles whose dynamic strength includes pinning.
// Pinned and async-pinned run as separate passes because the async walk
// calls back into the host.
func (st *Store) TracePinningRoots(condemned, maxgen uint32, sc *ScanContext, fn PromoteFunc) {
	log.Debugf("pinning referents of pinned handles in generation %d", condemned)
	flags := scanFlagsFor(sc)

	pin := pinObject(fn)
	asyncPin := asyncPinObject(st, fn)
	st.forEachTable(sc, func(t *Table) {
		t.scanGC(pin, sc, MaskOf(Pinned), condemned, maxgen, flags)
		if st.enabled.Has(AsyncPinned) {
			t.scanGC(asyncPin, sc, MaskOf(AsyncPinned), condemned, maxgen, flags)
		}
	})

	if st.enabled.Has(Variable) {
		st.traceVariableHandles(pin, sc, VarStrengthPinned, condemned, maxgen, flags)
	}
}

// TraceNormalRoots promotes the referents of strong handles, strength-
// strong Variable handles, and live ref-counted handles. Sized-ref
// handles ride along with the strong pass on ephemeral and concurrent
// collections; on a full blocking collection they are promoted by
// ScanSizedRefHandles instead so their cost can be measured.
func (st *Store) TraceNormalRoots(condemned, maxgen uint32, sc *ScanContext, fn PromoteFunc) {
	log.Debugf("promoting referents of strong handles in generation %d", condemned)
	flags := scanFlagsFor(sc)

	mask := MaskOf(Strong)
	if st.enabled.Has(SizedRef) && (condemned < maxgen || st.heap.IsConcurrentGCInProgress()) {
		mask |= MaskOf(SizedRef)
	}

	promote := promoteObject(fn)
	st.forEachTable(sc, func(t *Table) {
		t.scanGC(promote, sc, mask, condemned, maxgen, flags)
	})

	if st.enabled.Has(Variable) {
		st.traceVariableHandles(promote, sc, VarStrengthStrong, condemned, maxgen, flags)
	}

	// Ref-counted handles are skipped outright during concurrent scans;
	// their liveness callback races with host teardown.
	if st.enabled.Has(RefCounted) && !sc.Concurrent {
		refCounted := promoteRefCounted(st, fn)
		st.forEachTable(sc, func(t *Table) {
			t.scanGC(refCounted, sc, MaskOf(RefCounted), condemned, maxgen, flags)
		})
	}
}

// CheckReachable severs long-weak-class handles whose referents were not
// promoted: weak-long, ref-counted, weak-interior-pointer, and Variable
// handles currently weak-long.
func (st *Store) CheckReachable(condemned, maxgen uint32, sc *ScanContext) {
	log.Debugf("checking reachability of long-weak referents in generation %d", condemned)
	flags := scanFlagsFor(sc)

	mask := MaskOf(WeakLong)
	if st.enabled.Has(RefCounted) {
		mask |= MaskOf(RefCounted)
	}
	if st.enabled.Has(WeakInteriorPointer) {
		mask |= MaskOf(WeakInteriorPointer)
	}

	check := checkPromoted(st)
	st.forEachTable(sc, func(t *Table) {
		t.scanGC(check, sc, mask, condemned, maxgen, flags)
	})

	if st.enabled.Has(Variable) {
		st.traceVariableHandles(check, sc, VarStrengthWeakLong, condemned, maxgen, flags)
	}
}

// CheckAlive severs short-weak-class handles whose referents were not
// promoted: weak-short, weak-native-interop, and Variable handles
// currently weak-short.
func (st *Store) CheckAlive(condemned, maxgen uint32, sc *ScanContext) {
	log.Debugf("checking liveness of short-weak referents in generation %d", condemned)
	flags := scanFlagsFor(sc)

	mask := MaskOf(WeakShort)
	if st.enabled.Has(WeakNativeInterop) {
		mask |= MaskOf(WeakNativeInterop)
	}

	check := checkPromoted(st)
	st.forEachTable(sc, func(t *Table) {
		t.scanGC(check, sc, mask, condemned, maxgen, flags)
	})

	if st.enabled.Has(Variable) {
		st.traceVariableHandles(check, sc, VarStrengthWeakShort, condemned, maxgen, flags)
	}
}

// ScanWeakInteriorPointersForRelocation relocates weak-interior primaries
// and shifts each stored interior address by the primary's delta.
func (st *Store) ScanWeakInteriorPointersForRelocation(condemned, maxgen uint32, sc *ScanContext, fn PromoteFunc) {
	if !st.enabled.Has(WeakInteriorPointer) {
		return
	}
	log.Debugf("relocating weak interior pointers in generation %d", condemned)
	flags := scanFlagsFor(sc) | ScanExtraInfo
	visit := updateWeakInterior(fn)
	st.forEachTable(sc, func(t *Table) {
		t.scanGC(visit, sc, MaskOf(WeakInteriorPointer), condemned, maxgen, flags)
	})
}

// ScanSizedRefHandles promotes sized-ref referents on a full collection,
// recording per-handle promoted-byte costs. Only meaningful when
// condemned equals maxgen.
func (st *Store) ScanSizedRefHandles(condemned, maxgen uint32, sc *ScanContext, fn PromoteFunc) {
	if !st.enabled.Has(SizedRef) {
		return
	}
	if condemned != maxgen {
		log.Errorf("sized-ref scan requested for generation %d of %d; skipped", condemned, maxgen)
		return
	}
	log.Debugf("scanning sized-ref handles in generation %d", condemned)
	flags := scanFlagsFor(sc) | ScanExtraInfo
	visit := calculateSizedRefSize(st, fn)
	st.forEachTable(sc, func(t *Table) {
		t.scanGC(visit, sc, MaskOf(SizedRef), maxgen, maxgen, flags)
	})
}

// UpdatePointers rewrites every non-pinning handle slot to its referent's
// post-relocation address. Exactly one worker per GC additionally runs
// the host's sync-block weak-pointer scan; election is by atomic ticket,
// reset once every worker has arrived.
func (st *Store) UpdatePointers(condemned, maxgen uint32, sc *ScanContext, fn PromoteFunc) {
	elected := true
	if st.serverMode() {
		elected = st.syncScanTicket.Add(1) == 1
		st.syncScanTicket.CompareAndSwap(int32(sc.ThreadCount), 0)
	}
	if elected && st.hooks.SyncBlockWeakScan != nil {
		st.hooks.SyncBlockWeakScan(updateRef, sc, fn)
	}

	log.Debugf("updating non-pinning handle pointers in generation %d", condemned)
	flags := scanFlagsFor(sc)

	mask := MaskOf(WeakShort, WeakLong, Strong)
	for _, typ := range []HandleType{RefCounted, WeakNativeInterop, SizedRef, CrossReference} {
		if st.enabled.Has(typ) {
			mask |= MaskOf(typ)
		}
	}

	update := updatePointer(fn)
	st.forEachTable(sc, func(t *Table) {
		t.scanGC(update, sc, mask, condemned, maxgen, flags)
	})

	if st.enabled.Has(Variable) {
		st.traceVariableHandles(update, sc,
			VarStrengthWeakShort|VarStrengthWeakLong|VarStrengthStrong,
			condemned, maxgen, flags)
	}
}

// UpdatePinnedPointers runs the relocation pass over pinned and
// async-pinned handles, plus pin-strength Variable handles.
func (st *Store) UpdatePinnedPointers(condemned, maxgen uint32, sc *ScanContext, fn PromoteFunc) {
	log.Debugf("updating pinned handle pointers in generation %d", condemned)
	flags := scanFlagsFor(sc)

	mask := MaskOf(Pinned)
	if st.enabled.Has(AsyncPinned) {
		mask |= MaskOf(AsyncPinned)
	}

	update := updatePointerPinned(fn)
	st.forEachTable(sc, func(t *Table) {
		t.scanGC(update, sc, mask, condemned, maxgen, flags)
	})

	if st.enabled.Has(Variable) {
		st.traceVariableHandles(update, sc, VarStrengthPinned, condemned, maxgen, flags)
	}
}

// AgeHandles advances the age of every handle that survived this GC.
// This is an age-map update, not a visiting pass: no callback runs.
func (st *Store) AgeHandles(condemned, maxgen uint32, sc *ScanContext) {
	log.Debugf("aging handles in generation %d", condemned)
	mask := st.allScannableTypes()
	st.forEachTable(sc, func(t *Table) {
		t.scanGC(nil, sc, mask, condemned, maxgen, ScanAge)
	})
}

// RejuvenateHandles returns surviving handles to the youngest generation
// after a demoting collection.
func (st *Store) RejuvenateHandles(condemned, maxgen uint32, sc *ScanContext) {
	log.Debugf("rejuvenating handles in generation %d", condemned)
	mask := st.allScannableTypes()
	st.forEachTable(sc, func(t *Table) {
		t.resetAges(mask, condemned)
	})
}

// VerifyHandles checks every table's structural invariants after a GC.
// Corruption panics; this subsystem and the collector share one view of
// the heap or the process dies.
func (st *Store) VerifyHandles(condemned, maxgen uint32, sc *ScanContext) {
	log.Debugf("verifying handle tables")
	mask := st.allScannableTypes() | MaskOf(Dependent)
	st.forEachTable(sc, func(t *Table) {
		t.verify(mask)
	})
}

// EnumRefCountedHandles enumerates every ref-counted handle regardless of
// generation, for host teardown walks. Single-threaded.
func (st *Store) EnumRefCountedHandles(visit func(h *Handle)) {
	if !st.enabled.Has(RefCounted) {
		return
	}
	st.forEachTableAll(func(t *Table) {
		t.enum(func(h *Handle, _ *ScanContext) { visit(h) }, nil, MaskOf(RefCounted))
	})
}

// allScannableTypes is the age/verify type list: every enabled type
// except Dependent, which has its own phases.
func (st *Store) allScannableTypes() TypeMask {
	mask := MaskOf(WeakShort, WeakLong, Strong, Pinned)
	for _, typ := range []HandleType{Variable, RefCounted, AsyncPinned, SizedRef,
		WeakNativeInterop, WeakInteriorPointer, CrossReference} {
		if st.enabled.Has(typ) {
			mask |= MaskOf(typ)
		}
	}
	return mask
}
