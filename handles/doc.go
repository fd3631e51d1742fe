// Package handles implements the object-handle subsystem of a tracing,
// moving, generational garbage collector: durable typed references into
// the managed heap held from outside the tracing graph (native code,
// profilers, weak-reference APIs, pinning, interop).
//
// The package owns the handle tables, the bucket directory that indexes
// them, the per-type GC scan callbacks, and the dependent-handle
// fixed-point driver. The collector itself is a collaborator: it supplies
// the promotion oracle (Heap), the promote callback (PromoteFunc), and
// drives the phase entry points on Store in its own order, one call per
// heap worker.
//
// Nothing here allocates or moves managed objects, implements the write
// barrier, or decides what to collect; those remain host concerns reached
// through Heap and RuntimeHooks.
package handles

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("rootstore.handles")
