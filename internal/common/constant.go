// Package common contains shared constants and sentinel errors used across
// ledgersync components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// device access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// WatermarkKey is the metadata key holding the time of the last completed
// pull phase (unix seconds, decimal text).
const WatermarkKey = "last_pull_sync"

// CursorKeyPrefix prefixes per-collection pull cursors in the metadata table.
// The full key is CursorKeyPrefix + entity type, e.g. "cursor:account".
const CursorKeyPrefix = "cursor:"
