// Package sessionauth issues, verifies and gates access with a signed,
// self-contained session credential.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// sessionauth is the public surface. It exposes [Engine], [Builder], [Config]
// and the value types ([Identity], [ClaimSet], [LoginResult]). The credential
// codec lives in jwt/, the password schemes in password/, request gating in
// middleware/ and the legacy Redis sessions in session/. Concrete user stores,
// configuration loading and the HTTP API live under internal/.
//
// # Login
//
// [Engine.Authenticate] asks the primary identity store first and the fallback
// user store second. The first store that affirms the secret wins. Callers
// only ever see [ErrInvalidCredentials] or [ErrUpstreamStore]; which store
// answered is recorded in logs, metrics and audit events only.
//
// # What this package must NOT do
//
//   - Keep server-side session state. Credentials are verified from their
//     signature and expiry alone.
//   - Retry store calls. Retry policy belongs to the store clients.
//   - Import middleware/ or internal/server (no import cycles).
package sessionauth
