// Package storage is the single surface the overlay UI depends on for
// persistence.
//
// The facade decides at each call how to reach durable storage: a
// privileged context opens the SQLite store directly, anything else
// delegates across the broker channel. Initialization of the direct path
// is memoized behind a shared in-flight handle, so concurrent first calls
// trigger exactly one store open and one legacy migration, and a failed
// attempt is retried on the next call instead of wedging the process.
//
// Every operation resolves with a usable value. When the durable path
// fails, reads and writes degrade to a page-local key-value file, and when
// even that fails, loads return defaults and saves become no-ops. Values
// stranded in the fallback are not reconciled back once the durable path
// recovers.
//
// Partial layout saves are merged here, against the currently stored
// record, before the write is dispatched. The store and broker below
// remain whole-row upserts on purpose; this package owns the merge policy.
package storage
