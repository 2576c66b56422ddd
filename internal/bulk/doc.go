// Package bulk applies create, update and delete operations to a store in
// bounded steps.
//
// ARCHITECTURE:
//
//	Executor.Run        one type, one mode, chunk by chunk, no transaction
//	Executor.RunAtomic  Run inside one transaction boundary
//	Executor.CreateAll  several types of pending creates in dependency order
//
// The store is reached through two small interfaces. Adapter performs the
// batch operations on one chunk. Transactor opens a transaction and returns
// a context carrying it; adapters use that context to find the transaction.
//
// CHUNK SEMANTICS:
//   - Chunks are applied strictly in sequence on the calling goroutine
//   - Run offers no atomicity: a failure on chunk k leaves chunks before k applied
//   - RunAtomic rolls every chunk back on failure and clears identities it assigned
//   - No operation is retried
//
// Creates assign identities on the caller's own *model.Entity values. A
// dependent entity holding a model.Ref to one of them therefore resolves to
// the new identity when its own chunk is written.
package bulk
