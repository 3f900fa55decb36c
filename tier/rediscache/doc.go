// Package rediscache implements the session cache tier on Redis.
//
// Each session is one string key, "<prefix>:<id>", holding the record encoded by
// session.EncodeRecord. Keys carry a TTL of the session idle lifetime plus a grace period,
// so Redis eventually reclaims sessions that are never resolved again. Expiration itself is
// decided by the store from the stored timestamp, never by key presence.
//
// Every method maps redis.Nil to a miss and wraps other client errors with
// ErrRedisUnavailable. The store treats those as swallowable cache faults.
package rediscache
