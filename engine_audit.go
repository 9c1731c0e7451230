package sessionauth

import (
	"context"
	"errors"

	"github.com/nexustalent/sessionauth/internal/audit"
)

const (
	auditEventLoginSuccess = "login_success"
	auditEventLoginFailure = "login_failure"
	auditEventLoginError   = "login_upstream_error"
	auditEventLogout       = "logout"
)

// AuditErrorCode is the reason stored on a failed audit event. It never
// carries store or driver detail.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// record stamps ev with the engine clock and the request data on ctx, then
// queues it. A nil cause marks the event successful.
func (e *Engine) record(ctx context.Context, ev audit.Event, cause error) {
	if e == nil || e.audit == nil {
		return
	}
	info := infoFrom(ctx)

	ev.Timestamp = e.now().UTC()
	ev.IP = info.clientIP
	ev.RequestID = info.id
	ev.Success = cause == nil
	ev.Error = string(auditErrorCode(cause))
	if info.userAgent != "" {
		if ev.Metadata == nil {
			ev.Metadata = make(map[string]string, 1)
		}
		ev.Metadata["user_agent"] = info.userAgent
	}

	e.audit.Emit(ctx, ev)
}

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrUpstreamStore):
		return auditErrUnavailable
	}
	return auditErrInternal
}
