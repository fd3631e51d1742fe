package handles

// ---------------------------------------------------------------------------
// Object references and handle types
// ---------------------------------------------------------------------------

// ObjRef is an opaque word naming a managed heap object. The host runtime
// owns its meaning; this package only stores it, compares it, and hands it
// to host callbacks. Zero is the nil reference.
type ObjRef uintptr

// destroyedRef marks a handle whose referent was torn down by the host
// ahead of the handle itself (ref-counted teardown races leave these
// behind). Scan callbacks treat it like nil.
const destroyedRef ObjRef = ^ObjRef(0)

func isNullOrDestroyed(ref ObjRef) bool {
	return ref == 0 || ref == destroyedRef
}

// HandleType identifies the semantics of a handle. The set is closed;
// adding a variant requires a matching entry in typeHasExtraInfo and a
// scan callback.
type HandleType uint8

const (
	WeakShort HandleType = iota
	WeakLong
	Strong
	Pinned
	Variable
	RefCounted
	Dependent
	AsyncPinned
	SizedRef
	WeakNativeInterop
	WeakInteriorPointer
	CrossReference

	NumTypes
)

// typeHasExtraInfo records which handle types carry an adjacent metadata
// word next to the object reference.
var typeHasExtraInfo = [NumTypes]bool{
	Variable:            true,
	Dependent:           true,
	SizedRef:            true,
	WeakNativeInterop:   true,
	WeakInteriorPointer: true,
	CrossReference:      true,
}

var typeNames = [NumTypes]string{
	WeakShort:           "weak-short",
	WeakLong:            "weak-long",
	Strong:              "strong",
	Pinned:              "pinned",
	Variable:            "variable",
	RefCounted:          "ref-counted",
	Dependent:           "dependent",
	AsyncPinned:         "async-pinned",
	SizedRef:            "sized-ref",
	WeakNativeInterop:   "weak-native-interop",
	WeakInteriorPointer: "weak-interior-pointer",
	CrossReference:      "cross-reference",
}

// String returns a short human-readable name for the handle type.
func (t HandleType) String() string {
	if t >= NumTypes {
		return "invalid"
	}
	return typeNames[t]
}

// HasExtraInfo reports whether handles of this type carry an extra-info
// word.
func (t HandleType) HasExtraInfo() bool {
	return t < NumTypes && typeHasExtraInfo[t]
}

// ---------------------------------------------------------------------------
// Type masks
// ---------------------------------------------------------------------------

// TypeMask is a bitset over HandleType used to select which handle types a
// scan visits.
type TypeMask uint16

// MaskOf builds a TypeMask from the given types.
func MaskOf(types ...HandleType) TypeMask {
	var m TypeMask
	for _, t := range types {
		m |= 1 << t
	}
	return m
}

// Has reports whether t is included in the mask.
func (m TypeMask) Has(t HandleType) bool {
	return m&(1<<t) != 0
}

// ---------------------------------------------------------------------------
// Scan flags and contexts
// ---------------------------------------------------------------------------

// ScanFlags modify how a table scan behaves.
type ScanFlags uint8

const (
	// ScanNormal is a synchronous stop-the-world scan.
	ScanNormal ScanFlags = 0

	// ScanAsync marks a scan running concurrently with mutators. Slot
	// words are still read atomically; callbacks that cannot tolerate
	// mutator concurrency must not be scheduled with this flag.
	ScanAsync ScanFlags = 1 << iota

	// ScanExtraInfo marks a pass whose callback reads the extra-info word.
	// The table scan does not act on it: visitors read the word through
	// Handle.ExtraInfo whatever the flags.
	ScanExtraInfo

	// ScanAge turns the pass into an age-map update: no callback runs,
	// matching handles have their age advanced instead.
	ScanAge
)

// ScanContext is supplied by the collector on every phase entry. Each heap
// worker carries its own.
type ScanContext struct {
	// ThreadNumber is this worker's identity in [0, ThreadCount).
	ThreadNumber int

	// ThreadCount is the number of heap workers driving this GC.
	ThreadCount int

	// Concurrent is true when the collector runs in the background while
	// mutators execute.
	Concurrent bool
}

// PromoteFunc relocates and/or marks the object referenced through ref,
// rewriting *ref to the post-GC address. Supplied by the collector on
// every promotion or relocation phase.
type PromoteFunc func(ref *ObjRef, sc *ScanContext, flags uint32)

// PromoteFlagPinned tells the promote callback that the referent must not
// be relocated during this GC.
const PromoteFlagPinned uint32 = 1 << 0

// Heap is the collector-side oracle consulted during scans. IsPromoted is
// authoritative; it is never computed locally.
type Heap interface {
	// IsPromoted reports whether the object is reachable in this GC cycle.
	IsPromoted(ref ObjRef) bool

	// PromotedBytes returns the worker-local count of bytes promoted so
	// far in this GC.
	PromotedBytes(worker int) uintptr

	// IsConcurrentGCInProgress reports whether a background GC is active.
	IsConcurrentGCInProgress() bool
}

// scanFlagsFor picks the base flags for a phase from the scan context.
func scanFlagsFor(sc *ScanContext) ScanFlags {
	if sc.Concurrent {
		return ScanAsync
	}
	return ScanNormal
}

