// Package cli provides the interactive ledgersync command-line client.
//
// It wires configuration, the local store, the gRPC client, the
// connectivity monitor and the sync engine, then runs a REPL. Every write
// lands in the local database first and is queued for the server, so the
// client works the same online and offline.
//
// Key features:
//   - add / update / delete / list / show rows of every entity kind
//   - sync on demand (optionally forced), periodic auto-sync and sync on reconnect
//   - inspect and requeue outbox entries
//   - switch the conflict policy at runtime
//   - login (access token) / logout (wipes local data)
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
