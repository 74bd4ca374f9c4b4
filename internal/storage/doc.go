// Package storage provides the concurrent message store that backs each
// simulated replica (and the stabilized store) in internal/replication.
// Entries are first-write-wins per message id: a replica's value, once
// set, is never replaced with different content. MemoryStore is the only
// implementation; replicas are in-memory for the process lifetime.
package storage
