// Package outbox persists the client mutation log: an append-only queue of
// CREATE/UPDATE/DELETE entries waiting to be pushed to the server.
//
// Entries are ordered by seq, the enqueue order. Status changes go through
// MarkStatus, which refuses transitions the lifecycle does not allow, so a
// crash during a push always leaves an entry in an inspectable state
// (processing) rather than losing it. RecoverProcessing turns such leftovers
// into failed entries at the start of the next push phase.
//
// Like the other client repositories it works over dbx.DBTX and can be bound
// to the same transaction as the row write that produced the entry.
package outbox
