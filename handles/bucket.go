package handles

// ---------------------------------------------------------------------------
// Bucket: a fan-out of handle tables, one per CPU slot
// ---------------------------------------------------------------------------

// A Bucket groups one table per CPU slot under a single directory index.
// Clients see one identity; internally handle traffic spreads across the
// per-CPU tables for locality. In workstation mode a bucket holds exactly
// one table.
type Bucket struct {
	tables []*Table
	index  uint32
}

// newBucket allocates a bucket with nSlots tables. The tables start with
// index zero; the directory assigns the real index during insertion.
func newBucket(nSlots, maxSegments int) *Bucket {
	b := &Bucket{tables: make([]*Table, nSlots)}
	for i := range b.tables {
		b.tables[i] = newTable(maxSegments)
	}
	return b
}

// Index returns the directory index assigned to this bucket.
func (b *Bucket) Index() uint32 {
	return b.index
}

// Contains reports whether the handle was allocated from one of this
// bucket's tables.
func (b *Bucket) Contains(h *Handle) bool {
	if h == nil {
		return false
	}
	for _, t := range b.tables {
		if t.contains(h) {
			return true
		}
	}
	return false
}

// setIndex propagates a directory index to the bucket and every table in
// it. All tables of a bucket share the bucket's index.
func (b *Bucket) setIndex(index uint32) {
	b.index = index
	for _, t := range b.tables {
		t.setIndex(index)
	}
}

// liveCount sums live handles of the given type across the bucket.
func (b *Bucket) liveCount(typ HandleType) int {
	n := 0
	for _, t := range b.tables {
		n += t.count(typ)
	}
	return n
}
