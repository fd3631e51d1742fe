package handles

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Diagnostics snapshots
// ---------------------------------------------------------------------------

// Snapshot is a point-in-time census of the store, taken between GC
// phases for profiler and telemetry consumers. It marshals to CBOR so
// hosts can ship it over their diagnostic transport without this package
// caring what that transport is.
type Snapshot struct {
	Buckets   int            `cbor:"buckets"`
	Tables    int            `cbor:"tables"`
	Chunks    int            `cbor:"chunks"`
	LiveByType map[string]int `cbor:"live_by_type"`
	TotalLive int            `cbor:"total_live"`
}

// Snapshot gathers a census of every bucket in the directory.
func (st *Store) Snapshot() *Snapshot {
	snap := &Snapshot{
		Chunks:     st.dir.chunkCount(),
		LiveByType: make(map[string]int, NumTypes),
	}
	st.dir.enumerate(func(b *Bucket) {
		snap.Buckets++
		snap.Tables += len(b.tables)
		for typ := HandleType(0); typ < NumTypes; typ++ {
			if n := b.liveCount(typ); n > 0 {
				snap.LiveByType[typ.String()] += n
				snap.TotalLive += n
			}
		}
	})
	return snap
}

// Encode marshals the snapshot to CBOR.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := cbor.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot unmarshals a CBOR snapshot produced by Encode.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &s, nil
}
