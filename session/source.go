package session

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// DefaultCookieName is the cookie the previous login flow set.
const DefaultCookieName = "legacy_session"

// CookieSource answers "does this request carry a live legacy session" by
// looking up the session cookie in a Store.
type CookieSource struct {
	store      *Store
	cookieName string
	timeout    time.Duration
}

// NewCookieSource wraps store. An empty cookieName selects DefaultCookieName;
// a zero timeout leaves the request context deadline in charge.
func NewCookieSource(store *Store, cookieName string, timeout time.Duration) *CookieSource {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &CookieSource{store: store, cookieName: cookieName, timeout: timeout}
}

// CurrentSession reports whether r carries a valid legacy session. A missing
// or unknown session is (false, nil); only store failures return an error.
func (c *CookieSource) CurrentSession(r *http.Request) (bool, error) {
	sess, err := c.Lookup(r)
	if err != nil {
		return false, err
	}
	return sess != nil, nil
}

// Lookup returns the session referenced by the request cookie, or nil.
func (c *CookieSource) Lookup(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(c.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	ctx := r.Context()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	sess, err := c.store.Get(ctx, cookie.Value)
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, ErrNotFound):
		return nil, nil
	default:
		return nil, err
	}
}

// Ping implements a health probe over the backing store.
func (c *CookieSource) Ping(ctx context.Context) error {
	_, err := c.store.Ping(ctx)
	return err
}
