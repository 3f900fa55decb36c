// Package memory provides in-process session tiers.
//
// Cache is a bounded LRU holding encoded records, so it drops entries under pressure the
// way a real cache tier does. Durable is a mutex-guarded table map. Both accept injected
// faults, which makes them the default tiers for tests and for the sessionctl loadtest.
package memory
