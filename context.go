package sessionauth

import "context"

// requestInfo is the per-request data copied onto audit events and log lines.
// Each With* call stores an updated copy under one key.
type requestInfo struct {
	id        string
	clientIP  string
	userAgent string
}

type requestInfoKey struct{}

func infoFrom(ctx context.Context) requestInfo {
	if ctx == nil {
		return requestInfo{}
	}
	info, _ := ctx.Value(requestInfoKey{}).(requestInfo)
	return info
}

func withInfo(ctx context.Context, set func(*requestInfo)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	info := infoFrom(ctx)
	set(&info)
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// WithClientIP records the caller's address for audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return withInfo(ctx, func(i *requestInfo) { i.clientIP = ip })
}

// WithUserAgent records the User-Agent header for audit events.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return withInfo(ctx, func(i *requestInfo) { i.userAgent = userAgent })
}

// WithRequestID records a correlation id. Log lines and audit events carry it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withInfo(ctx, func(i *requestInfo) { i.id = id })
}

// RequestIDFromContext returns the id set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	return infoFrom(ctx).id
}
