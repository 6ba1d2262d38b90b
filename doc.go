// Package nbrly implements the durable, concurrent, disk-backed vector
// store at the core of an embeddable vector database: a fixed-capacity,
// memory-mapped key/value engine whose values are fixed-schema vector
// records keyed by a 128-bit identifier.
//
// The package owns the write-ahead log, the durability manager, tombstone
// and defragmentation machinery, corruption recovery, a memory-pressure
// responder, and the background loop that keeps an approximate-nearest-
// neighbor index eventually consistent with the store. Concrete search
// algorithms and distance metrics are supplied by the caller through the
// SearchIndex interface; this package only maintains the contract around
// when such an index is invalidated and rebuilt.
package nbrly
