package objcache

import "context"

// BlockHandle is a mutable view into one block's worth of object data. The
// disk layer fills or consumes it without owning the underlying array; the
// cache retains ownership (it is always backed by a pool entry's data area,
// or, for oversized objects, a caller-owned scratch buffer).
type BlockHandle struct {
	// Index is the block's position within the object.
	Index uint32
	// Data is the block's content, len(Data) <= block size.
	Data []byte
}

// ObjectStore is the disk object-store contract the cache sits in front
// of. It is an external collaborator: the cache treats every method here
// as a synchronous, whole-object operation that may block.
type ObjectStore interface {
	// ObjectSize returns the current on-disk size of id, or ErrObjectNotExist.
	ObjectSize(ctx context.Context, id string) (uint32, error)

	// GetObject fills every handle in blocks (already ordered by Index)
	// with the object's current on-disk content. The last block may be
	// short. blocks must cover exactly [0, ceil(size/B)).
	GetObject(ctx context.Context, id string, blocks []BlockHandle) error

	// AddObject creates a new object of the given size from the
	// concatenation of blocks' content. Fails with ErrObjectExists if id
	// is already present, ErrNoDiskSpace/ErrObjectTableFull if disk can't
	// accommodate it.
	AddObject(ctx context.Context, id string, blocks []BlockHandle, size uint32) error

	// WriteObject atomically replaces id's content (new length newSize)
	// with the concatenation of blocks' content.
	WriteObject(ctx context.Context, id string, blocks []BlockHandle, newSize uint32) error

	// DeleteObject removes id. Fails with ErrObjectNotExist if absent.
	DeleteObject(ctx context.Context, id string) error

	// RewriteObject overwrites the tail of an existing object starting at
	// startingOffset with data, leaving size bytes total.
	RewriteObject(ctx context.Context, id string, data []byte, size uint32, startingOffset uint32) error
}
