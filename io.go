package objcache

import (
	"context"
	"errors"
	"fmt"
)

// chunkBlocks slices buf into block-sized handles, the last one short if
// len(buf) isn't a multiple of the block size. Used for objects above
// MaxObjectSize, which bypass the pool entirely.
func chunkBlocks(cfg config, buf []byte) []BlockHandle {
	n := blocksFor(cfg, uint32(len(buf)))
	out := make([]BlockHandle, n)
	for b := uint32(0); b < n; b++ {
		start := b * cfg.blockSize
		end := start + cfg.blockSize
		if end > uint32(len(buf)) {
			end = uint32(len(buf))
		}
		out[b] = BlockHandle{Index: b, Data: buf[start:end]}
	}
	return out
}

// poolHandlesForRead turns pool entries into full-capacity BlockHandles so
// GetObject can write a (possibly short, for the last block) amount of
// data into each; the entry's effective length is read back afterward.
func poolHandlesForRead(cfg config, entries []*poolEntry) []BlockHandle {
	out := make([]BlockHandle, len(entries))
	for i, e := range entries {
		out[i] = BlockHandle{Index: e.block, Data: e.data[:cfg.blockSize]}
	}
	return out
}

// fillFromDisk calls GetObject to populate entries (in block-index order)
// and records each entry's actual length and VALID state. Every caller
// reaches fillFromDisk only after already resolving id's size earlier in
// the same locked call, so a disk-side ErrObjectNotExist here means the
// cache's own bookkeeping and the disk have fallen out of agreement, not
// a legitimate miss; that is a bug, not a recoverable error, so it panics
// instead of propagating.
func (c *Cache) fillFromDisk(ctx context.Context, id string, entries []*poolEntry) error {
	handles := poolHandlesForRead(c.cfg, entries)
	if err := c.store.GetObject(ctx, id, handles); err != nil {
		if errors.Is(err, ErrObjectNotExist) {
			panic(fmt.Sprintf("objcache: inconsistent cache state: %q has cached metadata but is missing from disk", id))
		}
		return fmt.Errorf("objcache: get %q: %w", id, err)
	}
	for i, e := range entries {
		e.n = uint32(len(handles[i].Data))
		e.markWritten()
	}
	return nil
}

// readCachedLocked serves a read for a cacheable object: try the touched
// block range directly; if anything there isn't already VALID, fall back
// to refilling the whole object (windowed by hints) in one disk call.
// Returns whether the fast (already-cached) path was taken.
func (c *Cache) readCachedLocked(ctx context.Context, id string, dst []byte, offset, size, objSize uint32) (bool, error) {
	startBlock := blockIndex(c.cfg, offset)
	endBlock := blockIndex(c.cfg, offset+size-1)

	handles := make([]*poolEntry, endBlock-startBlock+1)
	for i := range handles {
		handles[i] = c.pool.acquire(id, startBlock+uint32(i), 0)
	}

	allValid := true
	for _, e := range handles {
		if e.flags&flagValid == 0 {
			allValid = false
			break
		}
	}
	if allValid {
		copyOut(c.cfg, handles, dst, offset, size)
		for _, e := range handles {
			c.pool.release(e)
		}
		return true, nil
	}
	for _, e := range handles {
		c.pool.release(e)
	}

	hints := contiguousWindowHints(c.cfg, offset, size, objSize)
	numBlocks := blocksFor(c.cfg, objSize)
	full := make([]*poolEntry, numBlocks)
	for b := uint32(0); b < numBlocks; b++ {
		full[b] = c.pool.acquire(id, b, flagsForBlock(hints, b))
	}
	if err := c.fillFromDisk(ctx, id, full); err != nil {
		for _, e := range full {
			c.pool.release(e)
		}
		return false, err
	}
	copyOut(c.cfg, full, dst, offset, size)
	for _, e := range full {
		c.pool.release(e)
	}
	return false, nil
}

// readOversizedLocked serves a read for an object above MaxObjectSize via
// the sticky last-object-from-disk buffer, bypassing the pool.
func (c *Cache) readOversizedLocked(ctx context.Context, id string, dst []byte, offset, diskSize uint32) error {
	if c.lastDiskID != id {
		buf := make([]byte, diskSize)
		if err := c.store.GetObject(ctx, id, chunkBlocks(c.cfg, buf)); err != nil {
			return fmt.Errorf("objcache: get %q: %w", id, err)
		}
		c.lastDiskID = id
		c.lastDiskData = buf
	}
	copy(dst, c.lastDiskData[offset:offset+uint32(len(dst))])
	return nil
}

// writeCachedLocked serves a write for a cacheable object: acquire
// handles for the whole new object image (windowed by hints), bring in
// on-disk content for any surrounding block that isn't already valid,
// overwrite the touched range, then flush.
func (c *Cache) writeCachedLocked(ctx context.Context, id string, data []byte, offset, prevSize, newSize uint32) error {
	size := uint32(len(data))
	hints := contiguousWindowHints(c.cfg, offset, size, newSize)
	numBlocks := blocksFor(c.cfg, newSize)

	handles := make([]*poolEntry, numBlocks)
	for b := uint32(0); b < numBlocks; b++ {
		handles[b] = c.pool.acquire(id, b, 0)
	}
	// NO_CACHE blocks are parked at the LRU tail only once every block holds
	// its own entry: parking one earlier would make it the victim for the
	// next block's acquire, and two blocks would share one buffer.
	for b := uint32(0); b < numBlocks; b++ {
		if f := flagsForBlock(hints, b); f != 0 {
			c.pool.acquire(id, b, f)
		}
	}

	needRefetch := false
	if offset > 0 {
		prefixEnd := blockIndex(c.cfg, offset-1)
		if prefixEnd >= numBlocks {
			prefixEnd = numBlocks - 1
		}
		for b := uint32(0); b <= prefixEnd; b++ {
			if handles[b].flags&flagValid == 0 {
				needRefetch = true
				break
			}
		}
	}
	if !needRefetch && offset+size < prevSize {
		suffixStart := blockIndex(c.cfg, offset+size)
		for b := suffixStart; b < numBlocks; b++ {
			if handles[b].flags&flagValid == 0 {
				needRefetch = true
				break
			}
		}
	}
	if needRefetch {
		// prevSize comes from the caller, so confirm id exists before
		// fillFromDisk, which treats a missing object as fatal.
		if _, err := c.objectSizeLocked(ctx, id, false); err != nil {
			for _, e := range handles {
				c.pool.release(e)
			}
			return err
		}
		existingBlocks := blocksFor(c.cfg, prevSize)
		if existingBlocks > numBlocks {
			existingBlocks = numBlocks
		}
		if err := c.fillFromDisk(ctx, id, handles[:existingBlocks]); err != nil {
			for _, e := range handles {
				c.pool.release(e)
			}
			return err
		}
	}

	// Bytes past an entry's effective length are not object content; clear
	// them so that any part of a block this write leaves untouched, such as
	// the start of a hole, is sent as zero rather than stale pool bytes.
	for _, e := range handles {
		for i := e.n; i < c.cfg.blockSize; i++ {
			e.data[i] = 0
		}
	}
	copyIn(c.cfg, handles, data, offset)
	if size > 0 {
		firstTouched := blockIndex(c.cfg, offset)
		lastTouched := blockIndex(c.cfg, offset+size-1)
		for _, e := range handles[firstTouched : lastTouched+1] {
			e.markDirty()
		}
	}
	// A write can open a hole (e.g. an append that starts past prevSize by
	// more than a block): blocks neither refreshed from disk nor touched
	// by copyIn must still be sent as zeroed content, not whatever a
	// reused entry's buffer happened to hold before.
	for b, e := range handles {
		if e.flags&flagValid != 0 {
			continue
		}
		want := c.cfg.blockSize
		if uint32(b) == numBlocks-1 {
			want = newSize - uint32(b)*c.cfg.blockSize
		}
		for i := range e.data[:want] {
			e.data[i] = 0
		}
		e.n = want
		e.markDirty()
	}
	// A block that used to be the object's short final block can become an
	// interior block when the write grows the object past it; it must
	// contribute a full block's worth of bytes to the flushed image, zero
	// padded, not just the shorter length it held as the old last block.
	for b := uint32(0); b < numBlocks-1; b++ {
		e := handles[b]
		if e.n < c.cfg.blockSize {
			for i := e.n; i < c.cfg.blockSize; i++ {
				e.data[i] = 0
			}
			e.n = c.cfg.blockSize
		}
	}

	if err := c.store.WriteObject(ctx, id, toBlockHandles(handles), newSize); err != nil {
		for b := uint32(0); b < numBlocks; b++ {
			c.pool.invalidate(id, b)
		}
		for _, e := range handles {
			c.pool.release(e)
		}
		return fmt.Errorf("objcache: write %q: %w", id, err)
	}
	for _, e := range handles {
		e.markWritten()
		c.pool.release(e)
	}

	meta := c.pool.acquire(id, c.cfg.metadataBlockIndex(), 0)
	meta.size = newSize
	meta.markWritten()
	c.pool.release(meta)
	return nil
}

// writeOversizedLocked assembles the whole new object image in a
// caller-owned scratch buffer (bypassing the pool) and flushes it in one
// disk call. Objects above MaxObjectSize are never cached.
func (c *Cache) writeOversizedLocked(ctx context.Context, id string, data []byte, offset, prevSize, newSize uint32) error {
	c.invalidateObjectLocked(id, 0)
	buf := make([]byte, newSize)
	size := uint32(len(data))
	needsPriorContent := prevSize > 0 && (offset > 0 || offset+size < prevSize)
	if needsPriorContent {
		existing := buf
		if prevSize < newSize {
			existing = buf[:prevSize]
		}
		if err := c.store.GetObject(ctx, id, chunkBlocks(c.cfg, existing)); err != nil {
			return fmt.Errorf("objcache: get %q: %w", id, err)
		}
	}
	copy(buf[offset:offset+size], data)
	if err := c.store.WriteObject(ctx, id, chunkBlocks(c.cfg, buf), newSize); err != nil {
		return fmt.Errorf("objcache: write %q: %w", id, err)
	}
	return nil
}
