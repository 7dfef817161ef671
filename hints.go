package objcache

// hint is a (start index, count, flags) triple describing what flags to
// acquire blocks [start, start+count) with. A zero-count hint terminates
// the list early.
type hint struct {
	start uint32
	count uint32
	flags entryFlags
}

// flagsForBlock walks an ordered, non-overlapping hint list and returns the
// flags to acquire blockIndex with: the flags of the hint whose range
// covers it, or 0 (normal MRU caching) if no hint covers it.
func flagsForBlock(hints []hint, blockIndex uint32) entryFlags {
	for _, h := range hints {
		if h.count == 0 {
			break
		}
		if blockIndex >= h.start && blockIndex < h.start+h.count {
			return h.flags
		}
	}
	return 0
}

// contiguousWindowHints builds the standard partial-access policy: cache a
// contiguous window spanning the touched block range plus padding blocks
// on each side, and mark everything outside that window NO_CACHE.
// touchedSize/touchedOffset describe the byte range being read or
// written; objSize is the size the window is bounded by (the size after
// the operation, for writes).
func contiguousWindowHints(cfg config, touchedOffset, touchedSize, objSize uint32) []hint {
	if objSize == 0 {
		return nil
	}
	lastBlock := blockIndex(cfg, objSize-1)
	firstTouched := blockIndex(cfg, touchedOffset)
	var lastTouched uint32
	if touchedSize == 0 {
		lastTouched = firstTouched
	} else {
		lastTouched = blockIndex(cfg, touchedOffset+touchedSize-1)
	}

	hints := make([]hint, 0, 3)
	if firstTouched > cfg.padding {
		hints = append(hints, hint{
			start: 0,
			count: firstTouched - cfg.padding,
			flags: flagNoCache,
		})
	}
	if lastTouched+cfg.padding < lastBlock {
		first := lastTouched + cfg.padding + 1
		hints = append(hints, hint{
			start: first,
			count: lastBlock - first + 1,
			flags: flagNoCache,
		})
	}
	return hints
}

// blockIndex returns the block index covering byte offset.
func blockIndex(cfg config, offset uint32) uint32 { return offset / cfg.blockSize }

// blockStart returns the byte offset at which blockIndex begins.
func blockStart(cfg config, index uint32) uint32 { return index * cfg.blockSize }
