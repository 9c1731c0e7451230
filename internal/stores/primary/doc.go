// Package primary adapts a GoTrue-compatible identity provider (the managed
// auth service in front of the platform's Postgres) to
// sessionauth.PrimaryStore.
//
// Sign-in goes through the provider's password grant over HTTP. Roles and
// display profiles are read from auth.users directly, since the provider API
// does not expose the platform role. The Client also answers
// CurrentSession for browsers still holding a provider access token, so it
// can sit in the gate's checker chain during the migration.
package primary
