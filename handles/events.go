package handles

// ---------------------------------------------------------------------------
// Profiler and telemetry walks
// ---------------------------------------------------------------------------

// RootFlags classifies a handle root for the profiler event sink.
type RootFlags uint32

const (
	// RootFlagsWeakRef marks roots that do not keep their referent alive.
	RootFlagsWeakRef RootFlags = 1 << iota

	// RootFlagsPinning marks roots that prevent relocation.
	RootFlagsPinning

	// RootFlagsRefCounted marks interop ref-counted roots.
	RootFlagsRefCounted

	// RootFlagsInterior marks roots holding an interior pointer.
	RootFlagsInterior
)

// EventSink receives one event per handle visited during a profiler
// walk. Secondary is non-zero only for dependent handles.
type EventSink interface {
	HandleScanned(ref, secondary ObjRef, flags RootFlags, dependent bool, sc *ScanContext)
}

// rootFlagsFor composes the profiler flags for a handle from its type,
// the dynamic strength of Variable handles, and the current liveness
// answer for ref-counted handles.
func (st *Store) rootFlagsFor(h *Handle) RootFlags {
	var flags RootFlags
	switch h.Type() {
	case WeakShort, WeakLong, WeakNativeInterop:
		flags |= RootFlagsWeakRef
	case WeakInteriorPointer:
		flags |= RootFlagsWeakRef | RootFlagsInterior
	case Pinned, AsyncPinned:
		flags |= RootFlagsPinning
	case Variable:
		strength := uint32(h.ExtraInfo())
		if strength&(VarStrengthWeakShort|VarStrengthWeakLong) != 0 {
			flags |= RootFlagsWeakRef
		}
		if strength&VarStrengthPinned != 0 {
			flags |= RootFlagsPinning
		}
	case RefCounted:
		flags |= RootFlagsRefCounted
		if ref := h.Object(); ref != 0 {
			if st.hooks.RefCountedIsLive == nil || !st.hooks.RefCountedIsLive(ref) {
				flags |= RootFlagsWeakRef
			}
		}
	}
	// Strong, SizedRef and CrossReference report no special flags.
	return flags
}

// ScanHandlesForProfiler walks every non-dependent handle root once,
// emitting one event per visit. Single-threaded: it fans over every
// table regardless of worker identity.
func (st *Store) ScanHandlesForProfiler(maxgen uint32, sc *ScanContext) {
	sink := st.hooks.Events
	if sink == nil {
		return
	}
	log.Debug("scanning all handle roots for profiler")

	visit := func(h *Handle, sc *ScanContext) {
		sink.HandleScanned(h.Object(), 0, st.rootFlagsFor(h), false, sc)
	}
	mask := st.allScannableTypes()
	st.forEachTableAll(func(t *Table) {
		t.scanGC(visit, sc, mask, maxgen, maxgen, ScanNormal)
	})
}

// ScanDependentHandlesForProfiler walks dependent handles, reporting
// (primary, secondary) pairs. Handles with a null primary or a null
// secondary carry no dependency edge and are skipped.
func (st *Store) ScanDependentHandlesForProfiler(maxgen uint32, sc *ScanContext) {
	sink := st.hooks.Events
	if sink == nil {
		return
	}
	log.Debug("scanning dependent handles for profiler")

	visit := func(h *Handle, sc *ScanContext) {
		primary := h.Object()
		secondary := ObjRef(h.ExtraInfo())
		if primary == 0 || secondary == 0 {
			return
		}
		sink.HandleScanned(primary, secondary, 0, true, sc)
	}
	st.forEachTableAll(func(t *Table) {
		t.scanGC(visit, sc, MaskOf(Dependent), maxgen, maxgen, ScanExtraInfo)
	})
}
