package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nexustalent/sessionauth"
	"github.com/nexustalent/sessionauth/internal/logging"
)

// Config drives classification and the login redirect.
type Config struct {
	ProtectedPrefixes []string
	Locales           []string
	DefaultLocale     string
	LoginSegment      string
	RedirectParam     string

	// Metrics, when set, records one gate counter per decision.
	Metrics *sessionauth.Metrics
	Logger  sessionauth.Logger
}

// Decision is the outcome for one request. RedirectTo is set only when
// Allow is false.
type Decision struct {
	Allow      bool
	Protected  bool
	RedirectTo *url.URL
	Claims     *sessionauth.ClaimSet
}

// Gatekeeper is immutable after New and safe for concurrent use.
type Gatekeeper struct {
	classifier *Classifier
	checkers   []CredentialChecker
	locales    map[string]struct{}

	defaultLocale string
	loginSegment  string
	redirectParam string

	metrics *sessionauth.Metrics
	logger  sessionauth.Logger
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims the Gatekeeper attached to an allowed
// request. Requests allowed by a checker without claims have none.
func ClaimsFromContext(ctx context.Context) (*sessionauth.ClaimSet, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*sessionauth.ClaimSet)
	return claims, ok && claims != nil
}

// New returns a Gatekeeper consulting checkers in order.
func New(cfg Config, checkers ...CredentialChecker) (*Gatekeeper, error) {
	if len(cfg.ProtectedPrefixes) == 0 {
		return nil, errors.New("middleware: at least one protected prefix is required")
	}
	if len(checkers) == 0 {
		return nil, errors.New("middleware: at least one credential checker is required")
	}

	g := &Gatekeeper{
		classifier:    NewClassifier(cfg.ProtectedPrefixes),
		checkers:      append([]CredentialChecker(nil), checkers...),
		locales:       make(map[string]struct{}, len(cfg.Locales)),
		defaultLocale: cfg.DefaultLocale,
		loginSegment:  cfg.LoginSegment,
		redirectParam: cfg.RedirectParam,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}
	for _, l := range cfg.Locales {
		g.locales[l] = struct{}{}
	}
	if g.loginSegment == "" {
		g.loginSegment = "login"
	}
	if g.redirectParam == "" {
		g.redirectParam = "redirect"
	}
	if g.logger == nil {
		g.logger = logging.Nop()
	}
	return g, nil
}

// FromEngine builds the standard chain from the engine configuration: the
// session cookie first, then each secondary session source.
func FromEngine(engine *sessionauth.Engine, logger sessionauth.Logger, secondary ...SessionSource) (*Gatekeeper, error) {
	if engine == nil {
		return nil, sessionauth.ErrEngineNotReady
	}
	gate := engine.Config().Gate

	checkers := []CredentialChecker{CookieChecker{Name: engine.CookieName(), Verifier: engine}}
	for i, src := range secondary {
		if src == nil {
			continue
		}
		checkers = append(checkers, SessionChecker{Name: fmt.Sprintf("secondary-%d", i), Source: src, Logger: logger})
	}

	return New(Config{
		ProtectedPrefixes: gate.ProtectedPrefixes,
		Locales:           gate.Locales,
		DefaultLocale:     gate.DefaultLocale,
		LoginSegment:      gate.LoginSegment,
		RedirectParam:     gate.RedirectParam,
		Metrics:           engine.Metrics(),
		Logger:            logger,
	}, checkers...)
}

// Decide classifies r and, for protected paths, runs the checkers. The first
// Allow wins; Deny and NotApplicable move on to the next checker.
func (g *Gatekeeper) Decide(r *http.Request) Decision {
	if !g.classifier.Protected(r.URL.Path) {
		g.metrics.Inc(sessionauth.MetricGatePublic)
		return Decision{Allow: true}
	}

	for _, c := range g.checkers {
		verdict, claims := c.Check(r)
		if verdict != Allow {
			continue
		}
		if claims != nil {
			g.metrics.Inc(sessionauth.MetricGateAllowed)
		} else {
			g.metrics.Inc(sessionauth.MetricGateLegacyAllowed)
		}
		return Decision{Allow: true, Protected: true, Claims: claims}
	}

	g.metrics.Inc(sessionauth.MetricGateRedirected)
	return Decision{Protected: true, RedirectTo: g.loginURL(r.URL)}
}

// Handler forwards allowed requests to next and redirects the rest with
// 307 Temporary Redirect.
func (g *Gatekeeper) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Decide(r)
		if !d.Allow {
			g.logger.Debug(r.Context(), "redirecting to login",
				"path", r.URL.Path,
				"request_id", sessionauth.RequestIDFromContext(r.Context()),
			)
			http.Redirect(w, r, d.RedirectTo.String(), http.StatusTemporaryRedirect)
			return
		}
		if d.Claims != nil {
			r = r.WithContext(context.WithValue(r.Context(), claimsContextKey{}, d.Claims))
		}
		next.ServeHTTP(w, r)
	})
}

// LocaleOf returns the first path segment when it is a configured locale,
// otherwise the default locale.
func (g *Gatekeeper) LocaleOf(path string) string {
	seg := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(seg, '/'); i >= 0 {
		seg = seg[:i]
	}
	if _, ok := g.locales[seg]; ok {
		return seg
	}
	return g.defaultLocale
}

// loginURL builds /<locale>/<login>?<param>=<path>[?<query>].
func (g *Gatekeeper) loginURL(u *url.URL) *url.URL {
	dest := u.Path
	if u.RawQuery != "" {
		dest += "?" + u.RawQuery
	}
	return &url.URL{
		Path:     "/" + g.LocaleOf(u.Path) + "/" + g.loginSegment,
		RawQuery: url.Values{g.redirectParam: {dest}}.Encode(),
	}
}
