// Package store defines the storage contract the document tree runs on.
//
// The tree never talks to a database directly. It uses the [Adapter]
// interface, which models a flat, record-oriented document store: buckets
// hold records, records hold a JSON value, and nested fields are addressed
// with a [treepath.Locator].
//
// # Implementations
//
//   - store/dynamo: DynamoDB, one documents table keyed by (bucket, id) plus
//     a bucket catalog table
//   - store/boltstore: embedded bbolt database, one bbolt bucket per tree bucket
//
// # Atomicity
//
// Adapters guarantee that a single [Adapter.UpsertFieldSet] or
// [Adapter.UnsetField] call is atomic for one record. Sequences of calls are
// not; the tree serializes those per record itself.
//
// # Instrumentation
//
// Wrap any adapter with [Instrument] to export prometheus counters and
// latency histograms per operation:
//
//	a = store.Instrument(a, prometheus.DefaultRegisterer)
//
// # Errors
//
//   - [ErrDuplicateID] - record id already taken on insert
//   - [ErrConflict] - optimistic write retries exhausted
//   - [ErrClosed] - adapter used after Close
package store
