package objcache

// Default deployment knobs, overridable through the With* options below.
const (
	defaultBlockSize          = 1024
	defaultEntries            = 800
	defaultMaxBlocksPerObject = 8
	defaultPadding            = 1
	defaultMaxObjectNameLen   = 255
)

// config holds the tunables a Cache is built with. All callers of a given
// Cache must agree on these.
type config struct {
	blockSize          uint32
	entries            uint32
	maxBlocksPerObject uint32
	padding            uint32
	maxObjectNameLen   uint32
}

func defaultConfig() config {
	return config{
		blockSize:          defaultBlockSize,
		entries:            defaultEntries,
		maxBlocksPerObject: defaultMaxBlocksPerObject,
		padding:            defaultPadding,
		maxObjectNameLen:   defaultMaxObjectNameLen,
	}
}

func (c config) maxObjectSize() uint32 { return c.blockSize * c.maxBlocksPerObject }

// metadataBlockIndex is the distinguished block index that carries only
// the object's size. It sits one past the last possible data block index.
func (c config) metadataBlockIndex() uint32 { return c.maxBlocksPerObject }

// Option configures a Cache at construction time.
type Option func(*config)

// WithBlockSize sets the pool's per-block data size B.
func WithBlockSize(n uint32) Option {
	return func(c *config) { c.blockSize = n }
}

// WithEntries sets the total number of preallocated pool entries N.
func WithEntries(n uint32) Option {
	return func(c *config) { c.entries = n }
}

// WithMaxBlocksPerObject sets how many data blocks an object may occupy and
// still be eligible for caching; larger objects bypass the pool entirely.
func WithMaxBlocksPerObject(n uint32) Option {
	return func(c *config) { c.maxBlocksPerObject = n }
}

// WithPadding sets how many blocks of context around a partial read/write
// window are cached alongside the touched range.
func WithPadding(n uint32) Option {
	return func(c *config) { c.padding = n }
}

// WithMaxObjectNameLength sets the accepted object id length ceiling.
func WithMaxObjectNameLength(n uint32) Option {
	return func(c *config) { c.maxObjectNameLen = n }
}
