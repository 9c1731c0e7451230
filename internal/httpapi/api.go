package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/nexustalent/sessionauth"
	"github.com/nexustalent/sessionauth/internal/logging"
	"github.com/nexustalent/sessionauth/middleware"
)

// maxLoginBody caps the login request body.
const maxLoginBody = 64 << 10

const dashboardSegment = "dashboard"

// Options configures an API.
type Options struct {
	Engine *sessionauth.Engine
	Gate   *middleware.Gatekeeper
	// Upstream receives requests the Gatekeeper allows. Nil answers 404.
	Upstream http.Handler
	// Metrics is served at GET /metrics when set.
	Metrics http.Handler
	Logger  sessionauth.Logger
	// TrustProxyHeaders takes the client IP from X-Forwarded-For.
	TrustProxyHeaders bool
}

// API is the HTTP surface of sessionauthd.
type API struct {
	engine   *sessionauth.Engine
	gate     *middleware.Gatekeeper
	upstream http.Handler
	metrics  http.Handler
	logger   sessionauth.Logger
	trust    bool

	dashboardRoles map[string]struct{}
	defaultRole    string
}

func New(opts Options) (*API, error) {
	if opts.Engine == nil {
		return nil, sessionauth.ErrEngineNotReady
	}
	if opts.Gate == nil {
		return nil, errors.New("httpapi: gatekeeper is required")
	}

	a := &API{
		engine:   opts.Engine,
		gate:     opts.Gate,
		upstream: opts.Upstream,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		trust:    opts.TrustProxyHeaders,
	}
	if a.logger == nil {
		a.logger = logging.Nop()
	}
	if a.upstream == nil {
		a.upstream = http.NotFoundHandler()
	}

	gate := opts.Engine.Config().Gate
	a.defaultRole = gate.DefaultDashboardRole
	a.dashboardRoles = make(map[string]struct{}, len(gate.DashboardRoles))
	for _, r := range gate.DashboardRoles {
		a.dashboardRoles[r] = struct{}{}
	}
	return a, nil
}

// Handler returns the routed handler wrapped in the request middleware.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/auth/session", a.handleSession)
	mux.HandleFunc("POST /api/auth/logout", a.handleLogout)
	mux.HandleFunc("GET /api/auth-health", a.handleHealth)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics)
	}
	mux.Handle("/", a.gate.Handler(a.DashboardLanding(a.upstream)))

	return a.withRecovery(a.withLogging(a.withRequestContext(mux)))
}

type response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	User  any    `json:"user,omitempty"`
}

type loginUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxLoginBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Error: "invalid request body"})
		return
	}
	if ok, detail := validateLogin(body); !ok {
		a.logger.Debug(ctx, "login request rejected", "reason", detail)
		writeJSON(w, http.StatusBadRequest, response{Error: "missing credentials"})
		return
	}
	var req loginRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeJSON(w, http.StatusBadRequest, response{Error: "missing credentials"})
		return
	}

	res, err := a.engine.Login(ctx, req.Email, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, sessionauth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, response{Error: "invalid credentials"})
		return
	default:
		a.logger.Error(ctx, "login failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, response{Error: "authentication unavailable, try again"})
		return
	}

	http.SetCookie(w, a.engine.SessionCookie(res.Token, res.ExpiresAt))
	writeJSON(w, http.StatusOK, response{
		OK: true,
		User: loginUser{
			ID:    res.Identity.ID,
			Email: res.Identity.Email,
			Role:  res.Identity.Role,
		},
	})
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cookie, err := r.Cookie(a.engine.CookieName())
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusUnauthorized, response{Error: "no session"})
		return
	}
	claims, err := a.engine.Verify(cookie.Value)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, response{Error: "invalid session"})
		return
	}

	user, err := a.engine.SessionUser(ctx, claims)
	if err != nil {
		a.logger.Error(ctx, "session lookup failed", "user_id", claims.SubjectID, "error", err)
		writeJSON(w, http.StatusInternalServerError, response{Error: "session lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, response{OK: true, User: user})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(a.engine.CookieName()); err == nil {
		token = c.Value
	}
	http.SetCookie(w, a.engine.Logout(r.Context(), token))
	writeJSON(w, http.StatusOK, response{OK: true})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.CheckHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, response{Error: "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, response{OK: true})
}

// DashboardLanding redirects the bare dashboard root (/dashboard or
// /<locale>/dashboard) to the area of the caller's role, and passes every
// other request to next. It must run behind the Gatekeeper.
func (a *API) DashboardLanding(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isDashboardRoot(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		role := a.defaultRole
		if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
			if _, known := a.dashboardRoles[claims.Role]; known {
				role = claims.Role
			}
		}
		http.Redirect(w, r, "/"+dashboardSegment+"/"+role, http.StatusTemporaryRedirect)
	})
}

func isDashboardRoot(path string) bool {
	p := strings.Trim(path, "/")
	if p == dashboardSegment {
		return true
	}
	locale, rest, ok := strings.Cut(p, "/")
	return ok && len(locale) == 2 && rest == dashboardSegment
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
