// Package httpapi serves the session endpoints of sessionauthd: login,
// session lookup, logout and health, plus the dashboard landing redirect.
//
// Every other path is handed to the Gatekeeper and, when allowed, to the
// upstream page renderer.
package httpapi
