// Package fjall is an embedded, transactional, log-structured merge-tree
// key-value store.
//
// A Keyspace is the top-level handle onto a directory on disk. It is
// split into partitions, each an independently flushed and compacted
// LSM tree sharing one write-ahead journal and one write-serialization
// lock. Partitions are opened with Keyspace.OpenPartition and support
// single-key atomic operations (Insert, Remove, FetchUpdate) directly,
// or multi-key ACID transactions via Keyspace.ReadTx and Keyspace.WriteTx.
//
//	ks, err := fjall.Open(fjall.NewConfig("data"))
//	if err != nil {
//		// ...
//	}
//	defer ks.Close()
//
//	users, err := ks.OpenPartition("users")
//	if err != nil {
//		// ...
//	}
//	if err := users.Insert([]byte("alice"), []byte("...")); err != nil {
//		// ...
//	}
//
// By default, write transactions are serialized behind a single global
// lock (SingleWriter isolation). Passing WithIsolation(Serializable)
// switches to optimistic snapshot isolation: write transactions run
// concurrently and Commit returns ErrConflict if a concurrently
// committed write invalidated the transaction's reads.
package fjall
