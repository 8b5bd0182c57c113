// Package memory is a long-term memory store for conversational agents. It
// chunks incoming text, embeds chunks with a remote or local model, and keeps
// everything in a single embedded store file combining a vector index with a
// full-text keyword index. Searches blend both signals into one ranked list.
//
// The embedding pipeline caches vectors by content hash and falls back to a
// local model when the remote provider fails, so ingestion keeps working
// offline. Near-duplicate chunks from the same origin are skipped on ingest.
//
// The keyword index is an FTS5 virtual table, so the sqlite driver must be
// compiled with FTS5 enabled: build and test with -tags sqlite_fts5 (see the
// Makefile). Without it OpenStore fails with a configuration error.
package memory
