// Package cache keeps the entities seen on the gateway.
//
// Each category is a sharded Store guarded per shard, so writers touching
// different keys rarely contend and same-key writes serialise. Entries are
// rebuilt into fresh values and swapped in whole; readers never observe a
// partially applied update.
package cache
