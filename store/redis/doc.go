// Package redis implements store.Store on Redis. Jobs are stored as
// msgpack-encoded strings, indexed by Sorted Sets for listing, retention
// and lease expiry. State transitions use WATCH/MULTI so a write commits
// only if the job key is unchanged since it was read.
//
// The caller owns the client lifecycle; redis never closes it:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
