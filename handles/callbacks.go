package handles

// ---------------------------------------------------------------------------
// Per-type scan callbacks
// ---------------------------------------------------------------------------
//
// Each builder closes over the phase parameters (promote function, store,
// dependent context) and returns the visitor the table scan invokes per
// slot. Promotion goes through a local copy of the slot word: the promote
// callback rewrites the copy to the post-GC address and the visitor
// stores it back atomically, so a concurrent reader only ever sees the
// old or the new reference, never a torn one.

// promoteObject promotes the referents of strong-class handles.
func promoteObject(fn PromoteFunc) scanVisitor {
	return func(h *Handle, sc *ScanContext) {
		ref := h.Object()
		if isNullOrDestroyed(ref) {
			return
		}
		log.Debugf("handle %p causes promotion of %#x", h, ref)
		fn(&ref, sc, 0)
		h.setObject(ref)
	}
}

// pinObject promotes with the pinned flag so the referent stays put for
// this cycle.
func pinObject(fn PromoteFunc) scanVisitor {
	return func(h *Handle, sc *ScanContext) {
		ref := h.Object()
		if isNullOrDestroyed(ref) {
			return
		}
		// Pinning defeats compaction; loud on purpose.
		log.Warningf("handle %p causes pinning of %#x", h, ref)
		fn(&ref, sc, PromoteFlagPinned)
		h.setObject(ref)
	}
}

// asyncPinObject promotes an async-pinned referent, then lets the host
// walk the payload for further roots reachable only through it.
func asyncPinObject(st *Store, fn PromoteFunc) scanVisitor {
	return func(h *Handle, sc *ScanContext) {
		ref := h.Object()
		if isNullOrDestroyed(ref) {
			return
		}
		log.Warningf("handle %p causes async pinning of %#x", h, ref)
		fn(&ref, sc, 0)
		h.setObject(ref)
		if !isNullOrDestroyed(ref) && st.hooks.WalkAsyncPinned != nil {
			st.hooks.WalkAsyncPinned(ref, sc, fn)
		}
	}
}

// promoteRefCounted promotes a ref-counted referent only while the host
// still counts it live. Never scheduled concurrently: the liveness
// callback races with host teardown otherwise.
func promoteRefCounted(st *Store, fn PromoteFunc) scanVisitor {
	return func(h *Handle, sc *ScanContext) {
		if sc.Concurrent {
			panic("handles: ref-counted scan during concurrent GC")
		}
		ref := h.Object()
		if isNullOrDestroyed(ref) || st.heap.IsPromoted(ref) {
			return
		}
		if st.hooks.RefCountedIsLive != nil && st.hooks.RefCountedIsLive(ref) {
			log.Debugf("handle %p causes promotion of ref-counted %#x", h, ref)
			old := ref
			fn(&ref, sc, 0)
			if ref != old {
				// The mark pass must not relocate; relocation has its own
				// phase that rewrites the slot.
				panic("handles: ref-counted referent relocated during mark")
			}
		}
	}
}

// checkPromoted severs a weak-class handle whose referent did not survive.
func checkPromoted(st *Store) scanVisitor {
	return func(h *Handle, sc *ScanContext) {
		ref := h.Object()
		if ref == 0 || st.heap.IsPromoted(ref) {
			return
		}
		log.Debugf("severing weak handle %p to unreachable %#x", h, ref)
		h.setObject(0)
	}
}

// promoteDependent runs phase one of the dependent algorithm: promote the
// secondary when the primary survived, and record what the fixed-point
// loop needs to decide whether to rescan.
func promoteDependent(st *Store, dh *DhContext) scanVisitor {
	return func(h *Handle, sc *ScanContext) {
		primary := h.Object()
		if primary == 0 {
			return
		}
		if st.heap.IsPromoted(primary) {
			secondary := ObjRef(h.ExtraInfo())
			if secondary != 0 && !st.heap.IsPromoted(secondary) {
				log.Debugf("promoting dependent secondary %#x", secondary)
				dh.fn(&secondary, sc, 0)
				h.setExtra(uintptr(secondary))
				// The secondary may itself be the primary of a handle
				// already scanned this round; force another pass.
				dh.promoted = true
			}
		} else {
			// A live primary that hasn't been promoted yet. Only when
			// one of these exists can a later promotion oblige us to
			// rescan.
			dh.unpromotedPrimaries = true
		}
	}
}

// clearDependent runs phase two: null both words of any dependent handle
// whose primary did not survive.
func clearDependent(st *Store) scanVisitor {
	return func(h *Handle, sc *ScanContext) {
		primary := h.Object()
		if primary == 0 {
			return
		}
		if !st.heap.IsPromoted(primary) {
			log.Debugf("clearing dependent handle %p, unreachable primary %#x", h, primary)
			h.setObject(0)
			h.setExtra(0)
			return
		}
		if secondary := ObjRef(h.ExtraInfo()); secondary != 0 && !st.heap.IsPromoted(secondary) {
			log.Criticalf("dependent handle %p: promoted primary, unpromoted secondary", h)
			panic("handles: dependent fixed point incomplete")
		}
	}
}

// updatePointer rewrites a slot to the referent's post-relocation
// address.
func updatePointer(fn PromoteFunc) scanVisitor {
	return func(h *Handle, sc *ScanContext) {
		ref := h.Object()
		if isNullOrDestroyed(ref) {
			return
		}
		fn(&ref, sc, 0)
		h.setObject(ref)
	}
}

// updatePointerPinned is the relocation-phase pass over pinned handles.
// The referent did not move, but the promote callback still needs to see
// the root.
func updatePointerPinned(fn PromoteFunc) scanVisitor {
	return func(h *Handle, sc *ScanContext) {
		ref := h.Object()
		if isNullOrDestroyed(ref) {
			return
		}
		fn(&ref, sc, PromoteFlagPinned)
		h.setObject(ref)
	}
}

// updateWeakInterior relocates the primary and shifts the stored interior
// address by the same delta, preserving the interior offset.
func updateWeakInterior(fn PromoteFunc) scanVisitor {
	return func(h *Handle, sc *ScanContext) {
		old := h.Object()
		if old == 0 {
			return
		}
		ref := old
		fn(&ref, sc, 0)
		h.setObject(ref)
		if ref != 0 {
			interior := h.ExtraInfo()
			h.setExtra(interior + uintptr(ref) - uintptr(old))
		}
	}
}

// updateDependent relocates both words of a dependent handle.
func updateDependent(fn PromoteFunc) scanVisitor {
	return func(h *Handle, sc *ScanContext) {
		primary := h.Object()
		if primary != 0 {
			fn(&primary, sc, 0)
			h.setObject(primary)
		}
		if secondary := ObjRef(h.ExtraInfo()); secondary != 0 {
			fn(&secondary, sc, 0)
			h.setExtra(uintptr(secondary))
		}
	}
}

// calculateSizedRefSize promotes a sized-ref referent and stores the
// bytes that promotion newly reached into the extra-info word. Consumed
// by the collector's generation heuristics.
func calculateSizedRefSize(st *Store, fn PromoteFunc) scanVisitor {
	return func(h *Handle, sc *ScanContext) {
		ref := h.Object()
		if isNullOrDestroyed(ref) {
			return
		}
		begin := st.heap.PromotedBytes(sc.ThreadNumber)
		fn(&ref, sc, 0)
		h.setObject(ref)
		end := st.heap.PromotedBytes(sc.ThreadNumber)
		h.setExtra(end - begin)
	}
}

// variableDispatch filters Variable handles by their dynamic strength
// bits before delegating to the phase's inner visitor.
func variableDispatch(enableMask uint32, inner scanVisitor) scanVisitor {
	return func(h *Handle, sc *ScanContext) {
		if uint32(h.ExtraInfo())&enableMask != 0 {
			inner(h, sc)
		}
	}
}

// collectBridgeObject registers an unpromoted cross-reference primary
// with the per-GC bridge accumulator.
func collectBridgeObject(st *Store) scanVisitor {
	return func(h *Handle, sc *ScanContext) {
		ref := h.Object()
		if ref == 0 || st.heap.IsPromoted(ref) {
			return
		}
		st.registerBridgeObject(ref, h.ExtraInfo())
	}
}

// updateRef is the slot-free update used for host-owned weak pointers
// (the sync-block rendezvous hands it out).
func updateRef(ref *ObjRef, sc *ScanContext, fn PromoteFunc) {
	if ref == nil || isNullOrDestroyed(*ref) {
		return
	}
	fn(ref, sc, 0)
}
