// Package ledger keeps a local SQLite record of capture sessions and the
// delivery state of every chunk file they produced, so chunks that never
// reached the backend can be found after the fact.
package ledger
