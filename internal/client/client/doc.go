// Package client contains the client-side building blocks that talk to the
// sync server and open the local database.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Remote interface) covering
//     create/update/delete of entity rows, full and delta listing, and Ping.
//  2. A concrete gRPC implementation (see GRPCClient) over the syncapi
//     service that injects an access token via an interceptor and maps gRPC
//     status codes to sentinel errors.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) wiring an
//     SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// Common conditions are exposed as sentinel errors that callers can match with
// errors.Is: ErrUnavailable, ErrUnauthorized, ErrRejected and
// common.ErrorNotFound.
//
// Concurrency & Contexts
//
// GRPCClient is safe for concurrent use. All operations accept
// context.Context and honor cancellation and deadlines.
package client
