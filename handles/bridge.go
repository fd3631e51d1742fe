package handles

// ---------------------------------------------------------------------------
// Bridge processing for foreign-runtime interop
// ---------------------------------------------------------------------------
//
// Cross-reference handles tie managed objects to peers in a foreign GC.
// ScanBridgeObjects runs its own pass over cross-reference handles and
// registers every one whose primary is unpromoted when that pass runs;
// the strong and normal scans register nothing. The accumulated set is
// handed to the host,
// which runs the actual cross-runtime graph algorithm and decides which
// of those objects are unreachable on the foreign side too. The host then
// calls back with that answer so weak handles to the victims can be
// severed before the weak phases observe them.
//
// The host must complete bridge processing before driving the weak check
// phases; this package assumes that ordering rather than enforcing it.

// BridgeArgs is the batch of candidate roots handed to the host's bridge
// processor. Objects[i] pairs with Contexts[i], the host context word the
// cross-reference handle carried.
type BridgeArgs struct {
	Objects  []ObjRef
	Contexts []uintptr
}

func (st *Store) resetBridgeData() {
	st.bridgeMu.Lock()
	st.bridge = BridgeArgs{}
	st.bridgeMu.Unlock()
}

func (st *Store) registerBridgeObject(ref ObjRef, context uintptr) {
	st.bridgeMu.Lock()
	st.bridge.Objects = append(st.bridge.Objects, ref)
	st.bridge.Contexts = append(st.bridge.Contexts, context)
	st.bridgeMu.Unlock()
}

// ScanBridgeObjects collects every unpromoted cross-reference primary,
// triggers the host's bridge processing over the batch, and returns the
// collected objects. Single-threaded: one worker drives it for the whole
// store while the others wait at the collector barrier.
func (st *Store) ScanBridgeObjects(condemned, maxgen uint32, sc *ScanContext) []ObjRef {
	if !st.enabled.Has(CrossReference) {
		return nil
	}
	log.Debugf("building bridge object graph, generation %d", condemned)

	st.resetBridgeData()
	visit := collectBridgeObject(st)
	st.forEachTableAll(func(t *Table) {
		t.scanGC(visit, sc, MaskOf(CrossReference), condemned, maxgen, ScanExtraInfo)
	})

	st.bridgeMu.Lock()
	args := st.bridge
	st.bridgeMu.Unlock()

	if len(args.Objects) > 0 && st.hooks.TriggerBridgeProcessing != nil {
		st.hooks.TriggerBridgeProcessing(&args)
	}
	return args.Objects
}

// NullBridgeObjectsWeakRefs severs every weak-short and weak-long handle
// whose referent the host reported unreachable in the foreign graph.
// Called from a collector-quiescent path once bridge processing finishes.
func (st *Store) NullBridgeObjectsWeakRefs(unreachable []ObjRef) {
	if len(unreachable) == 0 {
		return
	}
	dead := make(map[ObjRef]struct{}, len(unreachable))
	for _, ref := range unreachable {
		dead[ref] = struct{}{}
	}

	mask := MaskOf(WeakShort, WeakLong)
	st.forEachTableAll(func(t *Table) {
		t.enum(func(h *Handle, _ *ScanContext) {
			if ref := h.Object(); ref != 0 {
				if _, gone := dead[ref]; gone {
					log.Debugf("nulling bridge weak handle %p to %#x", h, ref)
					h.setObject(0)
				}
			}
		}, nil, mask)
	})
}
