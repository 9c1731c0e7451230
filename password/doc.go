// Package password verifies login secrets against the hash formats present in
// stored user records.
//
// # Schemes
//
// Two schemes are supported and consulted in order by [Verifier]:
//
//	bcrypt    $2a$/$2b$/$2y$ hashes, used for every account created here
//	argon2id  $argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// A scheme that does not recognize a hash reports [ErrSchemeMismatch] and the
// verifier moves on. A well-formed hash that does not match is also not final,
// since one scheme's negative never blocks another's positive.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and hashes.
//   - Rewrite stored hashes. Verification has no side effects.
//   - Log plaintext passwords or hash parameters.
package password
