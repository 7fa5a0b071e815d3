// Package database persists upload job records and per-owner quota
// accounting in SQLite. Job finalization is a single-statement write so a
// partially persisted terminal record can never be observed, and quota
// increments are atomic UPSERTs.
package database
