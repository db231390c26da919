// Package pebblestore wraps Pebble with labeld's durability policy.
//
// It exposes the small surface the rest of the codebase needs: point
// reads/writes, batches committed under a single fsync policy, and raw
// iterators for prefix scans. Key layout is owned by the packages that
// store data here (scorestore, lease, docstore).
package pebblestore
