package security

import "time"

// PasswordReport lists the hashing parameters used for new hashes.
type PasswordReport struct {
	Schemes     []string
	BcryptCost  int
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Report summarises the security posture of a configured engine.
type Report struct {
	ProductionMode   bool
	SigningAlgorithm string
	CredentialTTL    time.Duration
	SecretBytes      int
	CookieName       string
	CookieSecure     bool
	CookieHTTPOnly   bool
	CookieSameSite   string
	Password         PasswordReport
	PrimaryStore     bool
	FallbackStore    bool
	AuditEnabled     bool
	StoreTimeout     time.Duration
	Warnings         []string
}

// ReportInput is the flattened configuration BuildReport inspects.
type ReportInput struct {
	ProductionMode   bool
	SigningAlgorithm string
	CredentialTTL    time.Duration
	SecretBytes      int
	MinSecretBytes   int
	CookieName       string
	CookieSecure     bool
	CookieSameSite   string
	Password         PasswordReport
	PrimaryStore     bool
	FallbackStore    bool
	AuditEnabled     bool
	StoreTimeout     time.Duration
}

// BuildReport derives the report and its warnings from input.
func BuildReport(input ReportInput) Report {
	var warnings []string
	if input.SecretBytes < input.MinSecretBytes {
		warnings = append(warnings, "signing secret is shorter than the recommended minimum")
	}
	if !input.CookieSecure {
		warnings = append(warnings, "session cookie is sent over plain HTTP")
	}
	if input.CookieSameSite == "none" {
		warnings = append(warnings, "session cookie is sent on cross-site requests")
	}
	if input.CredentialTTL > 30*24*time.Hour {
		warnings = append(warnings, "credential lifetime exceeds 30 days and cannot be revoked")
	}
	if input.StoreTimeout == 0 {
		warnings = append(warnings, "store calls have no timeout")
	}

	return Report{
		ProductionMode:   input.ProductionMode,
		SigningAlgorithm: input.SigningAlgorithm,
		CredentialTTL:    input.CredentialTTL,
		SecretBytes:      input.SecretBytes,
		CookieName:       input.CookieName,
		CookieSecure:     input.CookieSecure,
		CookieHTTPOnly:   true,
		CookieSameSite:   input.CookieSameSite,
		Password:         input.Password,
		PrimaryStore:     input.PrimaryStore,
		FallbackStore:    input.FallbackStore,
		AuditEnabled:     input.AuditEnabled,
		StoreTimeout:     input.StoreTimeout,
		Warnings:         warnings,
	}
}
