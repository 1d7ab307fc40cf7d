// Package audit records security-relevant events (access requests, OTP
// verifications, record reads) to the audit log table.
package audit

import (
	"context"
	"log"

	"github.com/google/uuid"

	"migrant-health-access/backend/internal/audit/domain"
	auditrepo "migrant-health-access/backend/internal/audit/repository"
	"migrant-health-access/backend/internal/clock"
)

// SentinelRequesterID is the requester_id used for audit events that have no
// authenticated requester (e.g. login_failure).
const SentinelRequesterID = "_system"

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, requesterID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	clk         clock.Clock
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor
// for client IP. ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, clk clock.Clock) *Logger {
	if clk == nil {
		clk = clock.System{}
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, clk: clk}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, requesterID, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if extracted := l.ipExtractor(ctx); extracted != "" {
			ip = extracted
		}
	}
	if requesterID == "" {
		requesterID = SentinelRequesterID
	}
	entry := &domain.AuditLog{
		ID:          uuid.New().String(),
		RequesterID: requesterID,
		Action:      action,
		Resource:    resource,
		IP:          ip,
		Metadata:    metadata,
		CreatedAt:   l.clk.Now(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}
