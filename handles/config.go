package handles

import (
	"fmt"
	"runtime"

	"github.com/BurntSushi/toml"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Features toggles the optional handle types. A disabled type is
// statically absent from every scan mask and cannot be allocated.
type Features struct {
	Variable            bool `toml:"variable"`
	RefCounted          bool `toml:"ref_counted"`
	AsyncPinned         bool `toml:"async_pinned"`
	SizedRef            bool `toml:"sized_ref"`
	WeakNativeInterop   bool `toml:"weak_native_interop"`
	WeakInteriorPointer bool `toml:"weak_interior_pointer"`
	CrossReference      bool `toml:"cross_reference"`
}

// Options configures a Store at initialisation. The GC layer itself
// reads no environment and persists nothing; LoadOptions exists so hosts
// can keep these knobs next to their other TOML configuration.
type Options struct {
	// ServerMode fans each bucket out to one table per processor. Off,
	// every bucket holds a single table.
	ServerMode bool `toml:"server_mode"`

	// ProcessorCount overrides the processor count used in server mode.
	// Zero means ask the runtime.
	ProcessorCount int `toml:"processor_count"`

	// InitialChunkCapacity is the size of each bucket-directory chunk.
	InitialChunkCapacity int `toml:"initial_chunk_capacity"`

	// MaxSegmentsPerTable bounds slot-arena growth per table; zero means
	// unbounded.
	MaxSegmentsPerTable int `toml:"max_segments_per_table"`

	Features Features `toml:"features"`
}

// DefaultChunkCapacity is the bucket-directory chunk size used when none
// is configured.
const DefaultChunkCapacity = 64

// DefaultOptions returns a workstation-mode configuration with every
// optional handle type enabled.
func DefaultOptions() Options {
	return Options{
		InitialChunkCapacity: DefaultChunkCapacity,
		Features: Features{
			Variable:            true,
			RefCounted:          true,
			AsyncPinned:         true,
			SizedRef:            true,
			WeakNativeInterop:   true,
			WeakInteriorPointer: true,
			CrossReference:      true,
		},
	}
}

// LoadOptions reads Options from a TOML file, filling unset fields from
// DefaultOptions.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if _, err := toml.DecodeFile(path, &opts); err != nil {
		return Options{}, fmt.Errorf("loading handle options: %w", err)
	}
	if err := opts.validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func (o *Options) validate() error {
	if o.InitialChunkCapacity <= 0 {
		return fmt.Errorf("initial_chunk_capacity %d: %w",
			o.InitialChunkCapacity, ErrInvalidArgument)
	}
	if o.ProcessorCount < 0 || o.MaxSegmentsPerTable < 0 {
		return fmt.Errorf("negative option: %w", ErrInvalidArgument)
	}
	return nil
}

// slotCount resolves how many tables each bucket fans out to.
func (o *Options) slotCount() int {
	if !o.ServerMode {
		return 1
	}
	if o.ProcessorCount > 0 {
		return o.ProcessorCount
	}
	return runtime.NumCPU()
}

// enabledMask builds the closed set of usable handle types. The base
// types are always present.
func (o *Options) enabledMask() TypeMask {
	mask := MaskOf(WeakShort, WeakLong, Strong, Pinned, Dependent)
	if o.Features.Variable {
		mask |= MaskOf(Variable)
	}
	if o.Features.RefCounted {
		mask |= MaskOf(RefCounted)
	}
	if o.Features.AsyncPinned {
		mask |= MaskOf(AsyncPinned)
	}
	if o.Features.SizedRef {
		mask |= MaskOf(SizedRef)
	}
	if o.Features.WeakNativeInterop {
		mask |= MaskOf(WeakNativeInterop)
	}
	if o.Features.WeakInteriorPointer {
		mask |= MaskOf(WeakInteriorPointer)
	}
	if o.Features.CrossReference {
		mask |= MaskOf(CrossReference)
	}
	return mask
}
