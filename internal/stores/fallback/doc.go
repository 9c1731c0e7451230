// Package fallback reads accounts from the application's own Postgres table,
// public.users, for logins the primary identity provider does not affirm.
//
// password_hash holds a bcrypt or Argon2id hash, or nothing for accounts
// that only sign in through federation. The schema is shipped as embedded
// goose migrations and applied by authctl migrate.
package fallback
