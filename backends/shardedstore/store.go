// Package shardedstore fans ObjectStore calls out across multiple disk
// backends by rendezvous (highest random weight) hashing on the object
// id, using github.com/dgryski/go-rendezvous for node selection and
// github.com/cespare/xxhash/v2 as the hash function it's parameterized
// over. This lets a single object id's blocks land on a stable node as
// the backend set changes, without the wholesale reshuffling a plain
// mod-N hash would cause.
package shardedstore

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"

	"github.com/orca-zhang/objcache"
)

// Store routes each object id to exactly one of a fixed set of backend
// ObjectStores via rendezvous hashing.
type Store struct {
	backends []objcache.ObjectStore
	byNode   map[string]objcache.ObjectStore
	rdv      *rendezvous.Rendezvous
}

// New builds a Store over backends, indexed 0..len(backends)-1. Panics if
// backends is empty; a store with no shards can't route anything.
func New(backends []objcache.ObjectStore) *Store {
	if len(backends) == 0 {
		panic("shardedstore: at least one backend is required")
	}
	nodes := make([]string, len(backends))
	byNode := make(map[string]objcache.ObjectStore, len(backends))
	for i, b := range backends {
		node := fmt.Sprintf("shard-%d", i)
		nodes[i] = node
		byNode[node] = b
	}
	return &Store{
		backends: backends,
		byNode:   byNode,
		rdv:      rendezvous.New(nodes, xxhash.Sum64String),
	}
}

func (s *Store) pick(id string) objcache.ObjectStore {
	return s.byNode[s.rdv.Get(id)]
}

func (s *Store) ObjectSize(ctx context.Context, id string) (uint32, error) {
	return s.pick(id).ObjectSize(ctx, id)
}

func (s *Store) GetObject(ctx context.Context, id string, blocks []objcache.BlockHandle) error {
	return s.pick(id).GetObject(ctx, id, blocks)
}

func (s *Store) AddObject(ctx context.Context, id string, blocks []objcache.BlockHandle, size uint32) error {
	return s.pick(id).AddObject(ctx, id, blocks, size)
}

func (s *Store) WriteObject(ctx context.Context, id string, blocks []objcache.BlockHandle, newSize uint32) error {
	return s.pick(id).WriteObject(ctx, id, blocks, newSize)
}

func (s *Store) DeleteObject(ctx context.Context, id string) error {
	return s.pick(id).DeleteObject(ctx, id)
}

func (s *Store) RewriteObject(ctx context.Context, id string, data []byte, size, startingOffset uint32) error {
	return s.pick(id).RewriteObject(ctx, id, data, size, startingOffset)
}
