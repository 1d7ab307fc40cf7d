package api

import "context"

type contextKey string

const (
	requesterIDKey   contextKey = "requester_id"
	requesterRoleKey contextKey = "requester_role"
	clientIPKey      contextKey = "client_ip"
)

// WithRequester returns a context carrying the authenticated requester's id and role.
func WithRequester(ctx context.Context, requesterID, role string) context.Context {
	ctx = context.WithValue(ctx, requesterIDKey, requesterID)
	return context.WithValue(ctx, requesterRoleKey, role)
}

// RequesterID returns the authenticated requester id, or "" when absent.
func RequesterID(ctx context.Context) string {
	id, _ := ctx.Value(requesterIDKey).(string)
	return id
}

// RequesterRole returns the authenticated requester role, or "" when absent.
func RequesterRole(ctx context.Context) string {
	role, _ := ctx.Value(requesterRoleKey).(string)
	return role
}

// WithClientIP returns a context carrying the client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the client IP from the context, or "" when absent.
// Matches the audit.IPExtractor signature.
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
