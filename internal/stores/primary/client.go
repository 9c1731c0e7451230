package primary

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nexustalent/sessionauth"
	"github.com/nexustalent/sessionauth/internal/stores"
)

// DefaultAccessTokenCookie is the cookie holding the provider's own access
// token in browsers that signed in through the provider directly.
const DefaultAccessTokenCookie = "sb-access-token"

// maxBody caps how much of a provider response is read.
const maxBody = 1 << 20

// Config configures a Client.
type Config struct {
	// URL is the provider base URL, without the /auth/v1 suffix.
	URL     string
	AnonKey string
	// DB reads auth.users for role and profile lookups. Without it every
	// profile lookup answers (nil, nil).
	DB                stores.DBTX
	HTTPClient        *http.Client
	AccessTokenCookie string
	// Timeout applies to CurrentSession lookups that carry no deadline.
	Timeout time.Duration
}

// Client talks to a GoTrue-compatible identity provider. It implements
// sessionauth.PrimaryStore and middleware.SessionSource.
type Client struct {
	base        *url.URL
	anonKey     string
	db          stores.DBTX
	http        *http.Client
	tokenCookie string
	timeout     time.Duration
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" || cfg.AnonKey == "" {
		return nil, fmt.Errorf("%w: primary store URL and anon key are required", sessionauth.ErrConfiguration)
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: primary store URL %q is invalid", sessionauth.ErrConfiguration, cfg.URL)
	}

	c := &Client{
		base:        base,
		anonKey:     cfg.AnonKey,
		db:          cfg.DB,
		http:        cfg.HTTPClient,
		tokenCookie: cfg.AccessTokenCookie,
		timeout:     cfg.Timeout,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	if c.tokenCookie == "" {
		c.tokenCookie = DefaultAccessTokenCookie
	}
	return c, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// SignInWithPassword exchanges email and password for the provider user.
// Rejections (4xx other than 429) are sessionauth.ErrInvalidCredentials;
// everything else wraps sessionauth.ErrUpstreamStore.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (sessionauth.Identity, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return sessionauth.Identity{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/v1/token", url.Values{"grant_type": {"password"}}, bytes.NewReader(body))
	if err != nil {
		return sessionauth.Identity{}, upstream(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return sessionauth.Identity{}, upstream(err)
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return sessionauth.Identity{}, upstream(fmt.Errorf("token endpoint returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return sessionauth.Identity{}, sessionauth.ErrInvalidCredentials
	default:
		return sessionauth.Identity{}, upstream(fmt.Errorf("token endpoint returned %d", resp.StatusCode))
	}

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&tr); err != nil {
		return sessionauth.Identity{}, upstream(fmt.Errorf("decode token response: %w", err))
	}
	if tr.User.ID == "" {
		return sessionauth.Identity{}, upstream(errors.New("token response without user"))
	}
	return sessionauth.Identity{ID: tr.User.ID, Email: tr.User.Email}, nil
}

const profileColumns = `id::text,
		        COALESCE(email, ''),
		        COALESCE(role, ''),
		        COALESCE(raw_user_meta_data->>'name', ''),
		        COALESCE(raw_user_meta_data->>'avatar_url', '')`

// ProfileByID reads the auth.users row for id.
func (c *Client) ProfileByID(ctx context.Context, id string) (*sessionauth.Profile, error) {
	return c.profile(ctx, `SELECT `+profileColumns+`
		 FROM auth.users
		 WHERE id::text = $1
		 LIMIT 1`, id)
}

// ProfileByEmail reads the auth.users row for email.
func (c *Client) ProfileByEmail(ctx context.Context, email string) (*sessionauth.Profile, error) {
	return c.profile(ctx, `SELECT `+profileColumns+`
		 FROM auth.users
		 WHERE lower(email) = $1
		 LIMIT 1`, strings.ToLower(strings.TrimSpace(email)))
}

func (c *Client) profile(ctx context.Context, query, key string) (*sessionauth.Profile, error) {
	if c.db == nil || key == "" {
		return nil, nil
	}
	p := &sessionauth.Profile{}
	err := c.db.QueryRowContext(ctx, query, key).Scan(&p.ID, &p.Email, &p.Role, &p.DisplayName, &p.AvatarURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, upstream(fmt.Errorf("auth.users: %w", err))
	}
	return p, nil
}

// CurrentSession reports whether r carries a provider access token the
// provider still accepts.
func (c *Client) CurrentSession(r *http.Request) (bool, error) {
	cookie, err := r.Cookie(c.tokenCookie)
	if err != nil || cookie.Value == "" {
		return false, nil
	}

	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/auth/v1/user", nil, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+cookie.Value)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("primary session lookup: %w", err)
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("primary session lookup returned %d", resp.StatusCode)
	}
}

// Ping checks the provider health endpoint and, when configured, auth.users.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/v1/health", nil, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("primary health: %w", err)
	}
	drain(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("primary health returned %d", resp.StatusCode)
	}

	if c.db != nil {
		var one int
		err := c.db.QueryRowContext(ctx, `SELECT 1 FROM auth.users LIMIT 1`).Scan(&one)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("auth.users: %w", err)
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
	_ = resp.Body.Close()
}

func upstream(err error) error {
	return fmt.Errorf("%w: primary store: %v", sessionauth.ErrUpstreamStore, err)
}
