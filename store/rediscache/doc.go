// Package rediscache layers a read-through Redis cache over the hot
// read-mostly stores: device settings and the task catalog. Both are read
// on every schedule poll but change rarely, so a short TTL keeps the
// database out of the poll path without a separate invalidation protocol.
//
// The cache degrades, never fails: any Redis error is logged and the call
// falls through to the inner store, so a degraded cache tier cannot block
// scheduling.
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	cached := rediscache.NewSettings(client, pg, rediscache.WithTTL(30*time.Second))
package rediscache
