// Command example wires objcache.Cache to the in-memory memstore backend
// and drives it through add/read/write/size/delete, printing hit/miss
// counters along the way.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/orca-zhang/objcache"
	"github.com/orca-zhang/objcache/backends/memstore"
)

func main() {
	ctx := context.Background()
	store := memstore.New()
	cache := objcache.New(store, objcache.WithBlockSize(64))

	if err := cache.Add(ctx, "greeting", []byte("hello, object cache")); err != nil {
		log.Fatalf("add: %v", err)
	}

	got, err := cache.Read(ctx, "greeting", 0, 5)
	if err != nil {
		log.Fatalf("read: %v", err)
	}
	fmt.Printf("read back: %q\n", got)

	if err := cache.Write(ctx, "greeting", 7, []byte("cache"), 19); err != nil {
		log.Fatalf("write: %v", err)
	}
	full, err := cache.Read(ctx, "greeting", 0, 20)
	if err != nil {
		log.Fatalf("read: %v", err)
	}
	fmt.Printf("after write: %q\n", full)

	size, err := cache.Size(ctx, "greeting")
	if err != nil {
		log.Fatalf("size: %v", err)
	}
	fmt.Printf("size: %d, hits: %d, misses: %d\n", size, cache.Hits(), cache.Misses())

	if err := cache.Delete(ctx, "greeting", size); err != nil {
		log.Fatalf("delete: %v", err)
	}
	fmt.Println("deleted")
}
