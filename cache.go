// Package objcache implements a bounded, in-memory LRU cache sitting in
// front of an on-disk object store in which every logical entity is
// addressed by a variable-length string id rather than a fixed block
// number.
package objcache

import (
	"context"
	"fmt"
	"sync"
)

// Cache is the façade: add, read, write, delete, size, rewrite and
// invalidate, all serialized by a single lock held by the Cache.
type Cache struct {
	mu    sync.Mutex
	cfg   config
	store ObjectStore
	pool  *pool

	hits   uint64
	misses uint64

	// lastDiskID/lastDiskData are the sticky "last object fetched from
	// disk" shortcut used for objects too large to cache. Replaced when a
	// different oversized object is read; cleared by every Add and Write and
	// by a Delete or Rewrite of the same id. Reads of cacheable objects,
	// Invalidate, and Delete or Rewrite of other ids leave it in place.
	lastDiskID   string
	lastDiskData []byte
}

// New builds an empty Cache backed by store. The pool is preallocated at
// construction time and never resized.
func New(store ObjectStore, opts ...Option) *Cache {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache{
		cfg:   cfg,
		store: store,
		pool:  newPool(cfg),
	}
}

// Configuration queries.
func (c *Cache) BlockSize() uint32          { return c.cfg.blockSize }
func (c *Cache) Entries() uint32            { return c.cfg.entries }
func (c *Cache) MaxObjectSize() uint32      { return c.cfg.maxObjectSize() }
func (c *Cache) MaxBlocksPerObject() uint32 { return c.cfg.maxBlocksPerObject }

// Hits and Misses are read-only instrumentation counters. Readers get no
// ordering guarantee across concurrent callers beyond whatever the
// Cache's own lock happens to provide at call time.
func (c *Cache) Hits() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

func (c *Cache) Misses() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.misses
}

func (c *Cache) forgetStickyBuffer() {
	c.lastDiskID = ""
	c.lastDiskData = nil
}

// Add creates a new object of size len(data) holding data's content.
// Fails with ErrObjectExists if id is already present on disk.
func (c *Cache) Add(ctx context.Context, id string, data []byte) error {
	if uint32(len(id)) > c.cfg.maxObjectNameLen {
		return ErrObjectNameTooLong
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	size := uint32(len(data))
	if size > c.cfg.maxObjectSize() {
		if err := c.store.AddObject(ctx, id, chunkBlocks(c.cfg, data), size); err != nil {
			return fmt.Errorf("objcache: add %q: %w", id, err)
		}
		c.forgetStickyBuffer()
		return nil
	}

	numBlocks := blocksFor(c.cfg, size)
	handles := make([]*poolEntry, numBlocks)
	for b := uint32(0); b < numBlocks; b++ {
		handles[b] = c.pool.acquire(id, b, 0)
	}
	copyIn(c.cfg, handles, data, 0)

	if err := c.store.AddObject(ctx, id, toBlockHandles(handles), size); err != nil {
		// Roll back: these blocks now hold data that never reached disk, so
		// they must not remain cached.
		for b := uint32(0); b < numBlocks; b++ {
			c.pool.invalidate(id, b)
		}
		return fmt.Errorf("objcache: add %q: %w", id, err)
	}
	for _, e := range handles {
		e.markWritten()
	}
	meta := c.pool.acquire(id, c.cfg.metadataBlockIndex(), 0)
	meta.size = size
	meta.markWritten()

	for _, e := range handles {
		c.pool.release(e)
	}
	c.pool.release(meta)
	c.forgetStickyBuffer()
	return nil
}

// Read copies up to size bytes starting at offset from id into dst,
// returning a newly allocated slice clamped to what actually exists. The
// cache resolves id's size itself (via the same path Size uses) rather
// than taking it as a caller-supplied argument: it trusts disk, returns up
// to disk size, and ignores any claim past EOF.
func (c *Cache) Read(ctx context.Context, id string, offset, size uint32) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	diskSize, err := c.objectSizeLocked(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if offset >= diskSize {
		return nil, nil
	}
	if offset+size > diskSize {
		size = diskSize - offset
	}
	if size == 0 {
		return nil, nil
	}

	dst := make([]byte, size)
	if diskSize > c.cfg.maxObjectSize() {
		if err := c.readOversizedLocked(ctx, id, dst, offset, diskSize); err != nil {
			return nil, err
		}
		c.misses++
		return dst, nil
	}

	hit, err := c.readCachedLocked(ctx, id, dst, offset, size, diskSize)
	if err != nil {
		return nil, err
	}
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	return dst, nil
}

// Write overwrites size bytes starting at offset with data, extending the
// object if offset+size exceeds prevSize.
func (c *Cache) Write(ctx context.Context, id string, offset uint32, data []byte, prevSize uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := uint32(len(data))
	newSize := prevSize
	if offset+size > newSize {
		newSize = offset + size
	}

	if newSize == 0 {
		return c.deleteContentLocked(ctx, id, prevSize)
	}

	if newSize > c.cfg.maxObjectSize() || prevSize > c.cfg.maxObjectSize() {
		if err := c.writeOversizedLocked(ctx, id, data, offset, prevSize, newSize); err != nil {
			return err
		}
		c.forgetStickyBuffer()
		return nil
	}

	if err := c.writeCachedLocked(ctx, id, data, offset, prevSize, newSize); err != nil {
		return err
	}
	c.forgetStickyBuffer()
	return nil
}

// Delete removes id from the cache and from disk.
func (c *Cache) Delete(ctx context.Context, id string, objSize uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.invalidateObjectLocked(id, 0)
	if err := c.store.DeleteObject(ctx, id); err != nil {
		return fmt.Errorf("objcache: delete %q: %w", id, err)
	}
	if id == c.lastDiskID {
		c.forgetStickyBuffer()
	}
	return nil
}

// Size returns id's current size, preferring the cached metadata entry.
func (c *Cache) Size(ctx context.Context, id string) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.objectSizeLocked(ctx, id, true)
}

// Invalidate drops every cached entry for id at or after offset, without
// touching disk.
func (c *Cache) Invalidate(id string, offset uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateObjectLocked(id, offset)
}

// Rewrite overwrites the tail of an existing object starting at
// startingOffset: invalidate cached entries for id at or after
// startingOffset, then delegate to the disk's RewriteObject.
func (c *Cache) Rewrite(ctx context.Context, id string, data []byte, size, startingOffset uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.invalidateObjectLocked(id, startingOffset)
	if err := c.store.RewriteObject(ctx, id, data, size, startingOffset); err != nil {
		return fmt.Errorf("objcache: rewrite %q: %w", id, err)
	}
	if id == c.lastDiskID {
		c.forgetStickyBuffer()
	}
	return nil
}

func (c *Cache) invalidateObjectLocked(id string, offset uint32) {
	if offset == 0 {
		c.pool.invalidate(id, c.cfg.metadataBlockIndex())
	}
	for b := blockIndex(c.cfg, offset); b < c.cfg.maxBlocksPerObject; b++ {
		c.pool.invalidate(id, b)
	}
}

func (c *Cache) deleteContentLocked(ctx context.Context, id string, prevSize uint32) error {
	c.invalidateObjectLocked(id, 0)
	if err := c.store.WriteObject(ctx, id, nil, 0); err != nil {
		return fmt.Errorf("objcache: write %q: %w", id, err)
	}
	meta := c.pool.acquire(id, c.cfg.metadataBlockIndex(), 0)
	meta.size = 0
	meta.markWritten()
	c.pool.release(meta)
	c.forgetStickyBuffer()
	return nil
}

// objectSizeLocked resolves id's size, preferring the cached metadata
// entry. updateStats is false for internal lookups made on behalf of Read
// and Write: Read counts its hit or miss from the block-level outcome
// instead, and Write counts neither.
func (c *Cache) objectSizeLocked(ctx context.Context, id string, updateStats bool) (uint32, error) {
	if meta := c.pool.lookup(id, c.cfg.metadataBlockIndex()); meta != nil && meta.flags&flagValid != 0 {
		if updateStats {
			c.hits++
		}
		return meta.size, nil
	}
	size, err := c.store.ObjectSize(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("objcache: size %q: %w", id, err)
	}
	if updateStats {
		c.misses++
	}
	return size, nil
}

func toBlockHandles(entries []*poolEntry) []BlockHandle {
	out := make([]BlockHandle, len(entries))
	for i, e := range entries {
		out[i] = BlockHandle{Index: e.block, Data: e.data[:e.n]}
	}
	return out
}

func blocksFor(cfg config, size uint32) uint32 {
	if size == 0 {
		return 0
	}
	return (size-1)/cfg.blockSize + 1
}

// copyIn copies data into handles starting at byte offset within the
// object the handles represent (handles[0] is block index 0).
func copyIn(cfg config, handles []*poolEntry, data []byte, offset uint32) {
	copied := uint32(0)
	for _, e := range handles {
		blockStart := e.block * cfg.blockSize
		blockEnd := blockStart + cfg.blockSize
		writeStart := offset + copied
		if writeStart >= blockEnd || offset+uint32(len(data)) <= blockStart {
			continue
		}
		inBlockOff := uint32(0)
		if writeStart > blockStart {
			inBlockOff = writeStart - blockStart
		}
		n := cfg.blockSize - inBlockOff
		if remain := uint32(len(data)) - copied; n > remain {
			n = remain
		}
		copy(e.data[inBlockOff:inBlockOff+n], data[copied:copied+n])
		if inBlockOff+n > e.n {
			e.n = inBlockOff + n
		}
		copied += n
		if copied >= uint32(len(data)) {
			break
		}
	}
}

// copyOut copies size bytes starting at byte offset out of handles into
// dst.
func copyOut(cfg config, handles []*poolEntry, dst []byte, offset, size uint32) {
	copied := uint32(0)
	for _, e := range handles {
		blockStart := e.block * cfg.blockSize
		blockEnd := blockStart + cfg.blockSize
		readStart := offset + copied
		if readStart >= blockEnd || offset+size <= blockStart {
			continue
		}
		inBlockOff := uint32(0)
		if readStart > blockStart {
			inBlockOff = readStart - blockStart
		}
		avail := e.n
		if inBlockOff >= avail {
			continue
		}
		n := avail - inBlockOff
		if remain := size - copied; n > remain {
			n = remain
		}
		copy(dst[copied:copied+n], e.data[inBlockOff:inBlockOff+n])
		copied += n
		if copied >= size {
			break
		}
	}
}
