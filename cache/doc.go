// Package cache stores fetched fragment content and guards it against
// stale writes.
//
// # Store Interface
//
// The [Store] interface defines the raw backend operations: [Store.Get],
// [Store.Set], [Store.Delete], [Store.Clear], [Store.Keys] and
// [Store.Close]. Entries never expire on their own; they live until they are
// deleted or replaced wholesale by a newer fetch.
//
// # Implementations
//
//   - [NewInMemory]: in-process map guarded by a mutex. Entries are stored
//     by value so a stored [Entry] cannot be patched in place. Lost on
//     process restart.
//
//   - [NewRedis]: backed by Redis using [github.com/redis/go-redis/v9].
//     Entries are serialized with msgpack ([github.com/vmihailenco/msgpack/v5])
//     and stored as plain keys under an optional prefix. The caller owns the
//     [redis.Client] lifecycle; [Store.Close] is a no-op. Each operation uses
//     a per-query timeout ([DefaultQueryTimeout]).
//
//   - [NewComposite]: chains stores in order. [Store.Get] returns the first
//     hit, [Store.Set] and [Store.Delete] apply to every layer. A common
//     topology is an in-memory L1 backed by a shared Redis L2:
//
//	s := cache.NewComposite(
//	    cache.NewInMemory(),
//	    cache.NewRedis(redisClient, cache.WithPrefix("fragments")),
//	)
//
// # Request Cache
//
// [RequestCache] wraps a Store with the consistency rules the loader relies
// on. Every key carries a generation which is bumped by [RequestCache.Invalidate]
// (and a global epoch bumped by [RequestCache.InvalidateAll]). A fetch takes a
// [Token] before it starts and hands it back to [RequestCache.Store]; the
// write is dropped if the key was invalidated in between. Invalidation always
// wins over a fetch that was already running when it happened.
//
// Read errors from a backend degrade to a miss and are logged, so an
// unreachable L2 never blocks a load. Write errors are logged and swallowed:
// the caller already has its content.
package cache
