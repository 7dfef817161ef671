package objcache

// entryFlags are the per-entry state bits: whether an entry holds data
// that agrees with disk, whether it's ahead of disk, and whether it
// should be the first candidate for eviction.
type entryFlags uint8

const (
	flagValid entryFlags = 1 << iota
	flagDirty
	flagNoCache
)

// blockKind tags which variant of content a pool entry currently holds.
// The block index sentinel (config.metadataBlockIndex) already
// discriminates this at the protocol level; this tag carries the same
// discrimination in memory so the two variants never need to alias
// unsafely.
type blockKind uint8

const (
	blockKindData blockKind = iota
	blockKindMetadata
)

// poolEntry is one slot of the preallocated block pool. An empty id marks
// a free slot.
type poolEntry struct {
	id    string
	block uint32
	kind  blockKind

	data []byte // valid when kind == blockKindData
	n    uint32 // effective byte count, <= len(data); data-block only

	size uint32 // object size; metadata-block only

	flags entryFlags
}

func (e *poolEntry) free() bool { return e.id == "" }

// lruList is a sentinel-headed intrusive doubly-linked list, implemented
// as index arrays over the pool's fixed-size arena rather than pointers.
// Index 0 is the sentinel and is never a real entry; entries are numbered
// 1..N. MRU sits at sentinel.next, LRU sits at sentinel.prev.
type lruList struct {
	prev []uint32
	next []uint32
}

func newLRUList(n uint32) *lruList {
	l := &lruList{prev: make([]uint32, n+1), next: make([]uint32, n+1)}
	for i := uint32(1); i <= n; i++ {
		l.insertBefore(i, 0)
	}
	return l
}

func (l *lruList) unlink(i uint32) {
	p, nx := l.prev[i], l.next[i]
	l.next[p] = nx
	l.prev[nx] = p
}

// insertAfter splices i into the list immediately after at.
func (l *lruList) insertAfter(i, at uint32) {
	nx := l.next[at]
	l.next[at] = i
	l.prev[i] = at
	l.next[i] = nx
	l.prev[nx] = i
}

// insertBefore splices i into the list immediately before at.
func (l *lruList) insertBefore(i, at uint32) {
	l.insertAfter(i, l.prev[at])
}

// promote moves i to MRU (just after the sentinel). O(1).
func (l *lruList) promote(i uint32) {
	l.unlink(i)
	l.insertAfter(i, 0)
}

// demote moves i to the LRU tail (just before the sentinel). O(1). Used to
// make an entry the first candidate for the next reuse (a NO_CACHE acquire,
// or a slot freed by invalidate).
func (l *lruList) demote(i uint32) {
	l.unlink(i)
	l.insertBefore(i, 0)
}

// victim returns the LRU tail entry index, reached via the sentinel's
// previous link.
func (l *lruList) victim() uint32 { return l.prev[0] }

// poolKey identifies a pool entry by its unique (object id, block index)
// pair.
type poolKey struct {
	id    string
	block uint32
}

// pool is the fixed array of block-pool entries plus the LRU index over
// it. It is not safe for concurrent use; callers serialize access via the
// Cache's own lock.
type pool struct {
	cfg     config
	list    *lruList
	entries []poolEntry
	index   map[poolKey]uint32 // -> 1-based list index
}

func newPool(cfg config) *pool {
	entries := make([]poolEntry, cfg.entries)
	for i := range entries {
		entries[i].data = make([]byte, cfg.blockSize)
	}
	return &pool{
		cfg:     cfg,
		list:    newLRUList(cfg.entries),
		entries: entries,
		index:   make(map[poolKey]uint32, cfg.entries),
	}
}

func (p *pool) entryAt(idx uint32) *poolEntry { return &p.entries[idx-1] }

// lookup returns the entry for (id, block) without changing LRU order, or
// nil if there is no such entry in the pool.
func (p *pool) lookup(id string, block uint32) *poolEntry {
	idx, ok := p.index[poolKey{id, block}]
	if !ok {
		return nil
	}
	return p.entryAt(idx)
}

// acquire returns the pool entry for (id, block), creating it by evicting
// the current LRU victim if it isn't already present, and applies flags.
// The returned entry is owned by the caller until release is called
// exactly once; acquisition never blocks and never fails (a victim always
// exists since free slots are themselves valid victims).
func (p *pool) acquire(id string, block uint32, flags entryFlags) *poolEntry {
	key := poolKey{id, block}
	if idx, ok := p.index[key]; ok {
		if flags&flagNoCache != 0 {
			p.list.demote(idx)
		} else {
			p.list.promote(idx)
		}
		e := p.entryAt(idx)
		e.flags |= flags & flagNoCache
		return e
	}

	idx := p.list.victim()
	e := p.entryAt(idx)
	if !e.free() {
		delete(p.index, poolKey{e.id, e.block})
	}
	e.id, e.block, e.n = id, block, 0
	if block == p.cfg.metadataBlockIndex() {
		e.kind = blockKindMetadata
	} else {
		e.kind = blockKindData
	}
	e.flags = flags &^ (flagValid | flagDirty)
	p.index[key] = idx
	if flags&flagNoCache != 0 {
		p.list.demote(idx)
	} else {
		p.list.promote(idx)
	}
	return e
}

// release marks an acquired entry as no longer part of the caller's
// working set. Because every call is already serialized under the
// Cache's single lock there is no pin count to decrement; this exists so
// call sites keep a symmetric acquire/release pairing.
func (p *pool) release(*poolEntry) {}

// invalidate drops (id, block) from the pool entirely, returning its slot
// to free and to the LRU tail, regardless of its current flags. Used on
// delete, rewrite, and rollback of a failed mutation.
func (p *pool) invalidate(id string, block uint32) {
	key := poolKey{id, block}
	idx, ok := p.index[key]
	if !ok {
		return
	}
	delete(p.index, key)
	e := p.entryAt(idx)
	e.id, e.block, e.n, e.flags = "", 0, 0, 0
	p.list.demote(idx)
}

// markWritten marks (id, block) VALID and not DIRTY, i.e. disk now agrees
// with the pool's content for that block.
func (e *poolEntry) markWritten() {
	e.flags |= flagValid
	e.flags &^= flagDirty
}

// markDirty marks (id, block) as having content newer than disk.
func (e *poolEntry) markDirty() {
	e.flags |= flagValid | flagDirty
}
