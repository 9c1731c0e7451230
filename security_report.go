package sessionauth

import (
	"net/http"

	"github.com/nexustalent/sessionauth/internal/security"
)

// SecurityReport summarises the engine's security posture. Warnings lists
// settings that are legal but weak; sessionauthd logs them at startup.
type SecurityReport = security.Report

// SecurityReport builds the posture report for the running configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	var schemes []string
	if e.verifier != nil {
		schemes = e.verifier.SchemeNames()
	}

	return security.BuildReport(security.ReportInput{
		ProductionMode:   e.config.Security.ProductionMode,
		SigningAlgorithm: "HS256",
		CredentialTTL:    e.config.Codec.TTL,
		SecretBytes:      len(e.config.Codec.Secret),
		MinSecretBytes:   e.config.Security.MinSecretBytes,
		CookieName:       e.config.Cookie.Name,
		CookieSecure:     e.config.Cookie.Secure || e.config.Security.ProductionMode,
		CookieSameSite:   sameSiteName(e.config.Cookie.SameSite),
		Password: security.PasswordReport{
			Schemes:     schemes,
			BcryptCost:  e.config.Password.BcryptCost,
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		PrimaryStore:  e.primary != nil,
		FallbackStore: e.fallback != nil,
		AuditEnabled:  e.config.Audit.Enabled,
		StoreTimeout:  e.config.Security.StoreTimeout,
	})
}

func sameSiteName(s http.SameSite) string {
	switch s {
	case http.SameSiteStrictMode:
		return "strict"
	case http.SameSiteNoneMode:
		return "none"
	case http.SameSiteLaxMode:
		return "lax"
	default:
		return "default"
	}
}
