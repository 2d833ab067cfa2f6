// Package cache stores synthesized audio so repeated sentences are not sent
// to the speech server twice. A bounded in-memory LRU sits in front of a
// zstd-compressed disk store that survives restarts.
package cache
