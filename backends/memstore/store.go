// Package memstore is a plain in-memory implementation of
// objcache.ObjectStore, used as the deterministic disk stand-in for the
// cache's own tests and as the reference/test double any ObjectStore
// backend can be checked against.
package memstore

import (
	"context"
	"sync"

	"github.com/orca-zhang/objcache"
)

// Store is a concurrency-safe, map-backed ObjectStore. Content is stored
// as a plain copy per object; there is no notion of blocks on this side of
// the interface, matching the disk contract's whole-object semantics.
type Store struct {
	mu      sync.Mutex
	objects map[string][]byte
	// FailNext, if set, is returned (and cleared) by the next mutating
	// call, used by tests exercising failure-handling paths.
	FailNext error
}

// New returns an empty Store.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

func (s *Store) takeFailure() error {
	err := s.FailNext
	s.FailNext = nil
	return err
}

func (s *Store) ObjectSize(_ context.Context, id string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[id]
	if !ok {
		return 0, objcache.ErrObjectNotExist
	}
	return uint32(len(data)), nil
}

func (s *Store) GetObject(_ context.Context, id string, blocks []objcache.BlockHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[id]
	if !ok {
		return objcache.ErrObjectNotExist
	}
	off := 0
	for i := range blocks {
		n := copy(blocks[i].Data, data[off:])
		blocks[i].Data = blocks[i].Data[:n]
		off += n
	}
	return nil
}

func (s *Store) AddObject(_ context.Context, id string, blocks []objcache.BlockHandle, size uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	if _, ok := s.objects[id]; ok {
		return objcache.ErrObjectExists
	}
	s.objects[id] = concatBlocks(blocks, size)
	return nil
}

func (s *Store) WriteObject(_ context.Context, id string, blocks []objcache.BlockHandle, newSize uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	if _, ok := s.objects[id]; !ok {
		return objcache.ErrObjectNotExist
	}
	s.objects[id] = concatBlocks(blocks, newSize)
	return nil
}

func (s *Store) DeleteObject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	if _, ok := s.objects[id]; !ok {
		return objcache.ErrObjectNotExist
	}
	delete(s.objects, id)
	return nil
}

func (s *Store) RewriteObject(_ context.Context, id string, data []byte, size uint32, startingOffset uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	prev, ok := s.objects[id]
	if !ok {
		return objcache.ErrObjectNotExist
	}
	out := make([]byte, size)
	n := copy(out, prev[:min(startingOffset, uint32(len(prev)))])
	copy(out[n:], data)
	s.objects[id] = out
	return nil
}

func concatBlocks(blocks []objcache.BlockHandle, size uint32) []byte {
	out := make([]byte, 0, size)
	for _, b := range blocks {
		out = append(out, b.Data...)
	}
	if uint32(len(out)) < size {
		out = append(out, make([]byte, size-uint32(len(out)))...)
	}
	return out[:size]
}

func min(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
