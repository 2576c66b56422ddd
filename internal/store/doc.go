// Package store provides the SQLite adapter for bulk step operations.
//
// One table backs each registered entity type. Tables are created from the
// registry on Open:
//   - key column "id": INTEGER PRIMARY KEY AUTOINCREMENT for serial keys,
//     TEXT PRIMARY KEY holding a UUIDv7 for uuid keys
//   - one column per field, typed by field kind
//   - one FOREIGN KEY clause per reference with its ON DELETE policy
//
// The Store implements bulk.Adapter, bulk.Transactor and cascade.Finder.
//
// # Transactions
//
// Begin stores the open transaction in the returned context. Every store
// call made with that context runs inside it. Begin on a context that
// already carries a transaction opens a SAVEPOINT instead, so atomic
// operations nest.
//
// Without an ambient transaction each batch call runs in its own short
// transaction: a chunk is applied entirely or not at all.
//
// # Deletes
//
// DeleteMany first simulates the cascade with the store as finder, inside
// the same transaction as the delete, so the reported per-type counts are
// exactly what SQLite removes through ON DELETE CASCADE. A surviving
// restrict or no_action dependent rejects the delete.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait on lock contention
//   - foreign_keys=ON: Enforce references and ON DELETE policies
//   - Single connection: SQLite has one writer
package store
