// Package stores holds what the identity store adapters share: the
// database/sql subset they query through and the Postgres opener.
//
// # What this package must NOT do
//
//   - Decide whether credentials are valid. Adapters only read rows.
//   - Retry failed queries. Callers surface the failure.
package stores
