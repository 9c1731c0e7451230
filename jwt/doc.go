// Package jwt mints and verifies the HS256 session credential carried in the
// app_session cookie.
//
// # Wire format
//
// A credential is three unpadded base64url segments joined by dots:
//
//	header  = {"alg":"HS256","typ":"JWT"}
//	payload = {"userId":"...","email":"...","role":"...","exp":<unix ms>}
//
// The payload keys and the millisecond expiry are kept so credentials issued
// before a deploy keep verifying after it.
//
// # Verification
//
// Segments are decoded strictly, so any single-character change to the payload
// or signature is rejected. Signatures are compared in constant time. The
// expiry check is done against the Manager clock at millisecond precision and
// a credential is valid at exactly its expiry instant.
package jwt
