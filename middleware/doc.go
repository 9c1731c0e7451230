// Package middleware gates HTTP requests on the session credential.
//
// A [Gatekeeper] classifies each request as protected or public. Public
// requests always pass. Protected requests pass when one of the ordered
// [CredentialChecker] values allows them and are otherwise answered with a
// 307 redirect to the locale-prefixed login page, carrying the requested
// path and query in the redirect parameter.
//
// # Checkers
//
//   - [CookieChecker] verifies the session credential cookie.
//   - [SessionChecker] asks a secondary session mechanism (the previous login
//     flow) whether the request carries a live session.
//
// The chain is an OR of acceptable mechanisms. Retiring the secondary
// mechanism means dropping its checker from the list.
//
// # What this package must NOT do
//
//   - Mint credentials or talk to identity stores.
//   - Answer protected requests with anything other than a redirect.
//   - Rewrite allowed requests.
package middleware
