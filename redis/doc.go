// Package redis provides a go-redis client wrapper and a Redis-backed
// store.Store.
//
// TypedStore offers JSON get/set plus optimistic read-modify-write through
// WATCH/MULTI, which the Store uses so concurrent execution updates never
// lose an appended result:
//
//	client, err := redis.New(cfg, log)
//	st := redis.NewStore(client, redis.StoreConfig{ExecutionTTL: 7 * 24 * time.Hour})
//	orch := orchestrator.New(st, ...)
package redis
