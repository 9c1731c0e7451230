// Package session reads the legacy server-side sessions kept in Redis by the
// previous login flow.
//
// # Binary encoding
//
// Sessions are stored as a compact binary blob (schema versions v1 and v2)
// keyed by session ID. Newer versions append fields; v1 blobs decode with an
// empty role.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations), the [Session] model, and
// [CookieSource], which the gatekeeper consults as its secondary credential
// mechanism. It does not interpret signed credentials or make routing
// decisions.
//
// # What this package must NOT do
//
//   - Import sessionauth, jwt, or middleware (no upward imports).
//   - Extend or refresh sessions on read.
package session
