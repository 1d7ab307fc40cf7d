// Package service implements the OTP-gated consent flow: requesting access to
// a migrant's health records, verifying the OTP the migrant received, and
// answering whether a requester currently holds a valid grant.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"migrant-health-access/backend/internal/accessgrant/domain"
	accessrepo "migrant-health-access/backend/internal/accessgrant/repository"
	"migrant-health-access/backend/internal/audit"
	"migrant-health-access/backend/internal/clock"
	recorddomain "migrant-health-access/backend/internal/healthrecord/domain"
	migrantdomain "migrant-health-access/backend/internal/migrant/domain"
	"migrant-health-access/backend/internal/notify/sms"
	"migrant-health-access/backend/internal/policy/engine"
	"migrant-health-access/backend/internal/security"
	"migrant-health-access/backend/internal/telemetry"
	teledomain "migrant-health-access/backend/internal/telemetry/domain"
)

// Sentinel errors for the access grant service; the handler maps them to HTTP
// status codes.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrMigrantNotFound = errors.New("migrant not found")
	ErrRequestNotFound = errors.New("access request not found")
	ErrNotAllowed      = errors.New("requester is not allowed to request access")
	ErrTooManyPending  = errors.New("too many pending requests for this migrant")
	ErrInvalidState    = errors.New("access request is not pending")
	ErrCodeExpired     = errors.New("verification code expired")
	ErrCodeMismatch    = errors.New("verification code mismatch")
	ErrTooManyAttempts = errors.New("too many failed verification attempts")
	ErrDeliveryFailed  = errors.New("could not deliver verification code")
)

// MigrantRepo is the minimal migrant repository needed by the service.
type MigrantRepo interface {
	GetByUniqueID(ctx context.Context, uniqueID string) (*migrantdomain.Migrant, error)
}

// RecordRepo is the minimal health record repository needed by the service.
// It is consulted only after the authorization predicate passes.
type RecordRepo interface {
	ListByMigrant(ctx context.Context, migrantID string) ([]*recorddomain.Record, error)
}

// DevOTPStore receives plain OTPs for dev-mode retrieval. Nil in production.
type DevOTPStore interface {
	Put(ctx context.Context, requestID, otp string, expiresAt time.Time)
}

// RequestAccessResult is the outcome of RequestAccess. Delivered is false when
// the request was persisted but the SMS could not be sent; the request stays
// pending and the migrant can still be reached out-of-band.
type RequestAccessResult struct {
	RequestID string
	ExpiresAt time.Time
	Delivered bool
}

// Service orchestrates the consent flow over the request repository, the
// migrant directory, the consent policy, and the SMS gateway.
type Service struct {
	requests accessrepo.Repository
	migrants MigrantRepo
	records  RecordRepo
	policy   engine.Evaluator
	sender   sms.Sender
	devOTP   DevOTPStore
	auditor  audit.AuditLogger
	emitter  telemetry.EventEmitter
	otpTTL   time.Duration
	clk      clock.Clock
}

// NewService returns a Service with the given dependencies. devOTP, auditor,
// and emitter may be nil.
func NewService(
	requests accessrepo.Repository,
	migrants MigrantRepo,
	records RecordRepo,
	policy engine.Evaluator,
	sender sms.Sender,
	devOTP DevOTPStore,
	auditor audit.AuditLogger,
	emitter telemetry.EventEmitter,
	otpTTL time.Duration,
	clk clock.Clock,
) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if otpTTL <= 0 {
		otpTTL = 5 * time.Minute
	}
	return &Service{
		requests: requests,
		migrants: migrants,
		records:  records,
		policy:   policy,
		sender:   sender,
		devOTP:   devOTP,
		auditor:  auditor,
		emitter:  emitter,
		otpTTL:   otpTTL,
		clk:      clk,
	}
}

// RequestAccess starts a consent flow: it creates a pending request with a
// hashed one-time code and sends the code to the migrant's phone.
//
// The request row is persisted before the SMS is attempted. When delivery
// fails the request stays pending and the result carries Delivered == false
// together with ErrDeliveryFailed, so the caller keeps the request id.
func (s *Service) RequestAccess(ctx context.Context, requesterID, requesterRole, migrantUniqueID string) (*RequestAccessResult, error) {
	if requesterID == "" || migrantUniqueID == "" {
		return nil, fmt.Errorf("%w: requester id and migrant id are required", ErrInvalidInput)
	}

	m, err := s.migrants.GetByUniqueID(ctx, migrantUniqueID)
	if err != nil {
		return nil, fmt.Errorf("lookup migrant: %w", err)
	}
	if m == nil {
		return nil, ErrMigrantNotFound
	}

	consent, err := s.policy.EvaluateConsent(ctx, requesterRole)
	if err != nil {
		return nil, fmt.Errorf("evaluate consent policy: %w", err)
	}
	if !consent.AllowRequest {
		s.logEvent(ctx, requesterID, "access_request_refused", "migrant/"+migrantUniqueID, "role not allowed")
		return nil, ErrNotAllowed
	}

	if consent.MaxPendingPerPair > 0 {
		pending, err := s.requests.CountPending(ctx, migrantUniqueID, requesterID)
		if err != nil {
			return nil, fmt.Errorf("count pending requests: %w", err)
		}
		if pending >= consent.MaxPendingPerPair {
			return nil, ErrTooManyPending
		}
	}

	otp, err := security.GenerateOTP()
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	now := s.clk.Now()
	req := &domain.Request{
		ID:            uuid.New().String(),
		MigrantID:     migrantUniqueID,
		RequesterID:   requesterID,
		CodeHash:      security.HashOTP(otp),
		CodeExpiresAt: now.Add(s.otpTTL),
		Status:        domain.StatusPending,
		CreatedAt:     now,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create access request: %w", err)
	}
	if s.devOTP != nil {
		s.devOTP.Put(ctx, req.ID, otp, req.CodeExpiresAt)
	}

	s.logEvent(ctx, requesterID, "access_requested", "migrant/"+migrantUniqueID, "request "+req.ID)
	s.emit(ctx, teledomain.EventAccessRequested, req, "")

	result := &RequestAccessResult{RequestID: req.ID, ExpiresAt: req.CodeExpiresAt}
	if err := s.sender.SendOTP(m.Phone, otp); err != nil {
		s.logEvent(ctx, requesterID, "otp_delivery_failed", "request/"+req.ID, err.Error())
		s.emit(ctx, teledomain.EventOTPDeliveryFail, req, err.Error())
		return result, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	result.Delivered = true
	s.emit(ctx, teledomain.EventOTPDelivered, req, "")
	return result, nil
}

// VerifyOTP checks the code for a pending request and, on success, moves it to
// granted with a verification timestamp.
//
// Expiry is checked strictly before the code is compared, so a correct code
// arriving late still moves the request to expired, and a later retry reports
// the terminal state rather than expiry again. Mismatches bump the attempt
// counter; at the policy threshold the request is denied.
func (s *Service) VerifyOTP(ctx context.Context, requesterID, requesterRole, requestID, code string) error {
	if requesterID == "" || requestID == "" || code == "" {
		return fmt.Errorf("%w: requester id, request id, and code are required", ErrInvalidInput)
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("lookup access request: %w", err)
	}
	if req == nil || req.RequesterID != requesterID {
		return ErrRequestNotFound
	}
	if req.Status != domain.StatusPending {
		return ErrInvalidState
	}

	now := s.clk.Now()
	if req.CodeExpired(now) {
		swapped, err := s.requests.TransitionFromPending(ctx, req.ID, domain.StatusExpired, nil)
		if err != nil {
			return fmt.Errorf("expire access request: %w", err)
		}
		if !swapped {
			return ErrInvalidState
		}
		s.logEvent(ctx, requesterID, "access_expired", "request/"+req.ID, "")
		s.emit(ctx, teledomain.EventAccessExpired, req, "")
		return ErrCodeExpired
	}

	if !security.OTPEqual(code, req.CodeHash) {
		attempts, swapped, err := s.requests.IncrementAttempts(ctx, req.ID)
		if err != nil {
			return fmt.Errorf("record failed attempt: %w", err)
		}
		if !swapped {
			return ErrInvalidState
		}
		consent, err := s.policy.EvaluateConsent(ctx, requesterRole)
		if err != nil {
			return fmt.Errorf("evaluate consent policy: %w", err)
		}
		if consent.MaxVerifyAttempts > 0 && attempts >= consent.MaxVerifyAttempts {
			denied, err := s.requests.TransitionFromPending(ctx, req.ID, domain.StatusDenied, nil)
			if err != nil {
				return fmt.Errorf("deny access request: %w", err)
			}
			if denied {
				s.logEvent(ctx, requesterID, "access_denied", "request/"+req.ID, fmt.Sprintf("%d failed attempts", attempts))
				s.emit(ctx, teledomain.EventAccessDenied, req, fmt.Sprintf("%d failed attempts", attempts))
			}
			return ErrTooManyAttempts
		}
		s.emit(ctx, teledomain.EventVerifyMismatch, req, "")
		return ErrCodeMismatch
	}

	verifiedAt := now
	swapped, err := s.requests.TransitionFromPending(ctx, req.ID, domain.StatusGranted, &verifiedAt)
	if err != nil {
		return fmt.Errorf("grant access request: %w", err)
	}
	if !swapped {
		return ErrInvalidState
	}
	s.logEvent(ctx, requesterID, "access_granted", "request/"+req.ID, "migrant "+req.MigrantID)
	s.emit(ctx, teledomain.EventAccessGranted, req, "")
	return nil
}

// IsAccessGranted reports whether requesterID currently holds a valid grant
// for the migrant. The grant validity window from the consent policy is
// re-checked here, so a grant lapses without any stored state changing.
func (s *Service) IsAccessGranted(ctx context.Context, requesterID, requesterRole, migrantUniqueID string) (bool, error) {
	if requesterID == "" || migrantUniqueID == "" {
		return false, fmt.Errorf("%w: requester id and migrant id are required", ErrInvalidInput)
	}
	consent, err := s.policy.EvaluateConsent(ctx, requesterRole)
	if err != nil {
		return false, fmt.Errorf("evaluate consent policy: %w", err)
	}
	if !consent.AllowRequest {
		return false, nil
	}
	grant, err := s.requests.LatestGranted(ctx, migrantUniqueID, requesterID)
	if err != nil {
		return false, fmt.Errorf("lookup latest grant: %w", err)
	}
	if grant == nil {
		return false, nil
	}
	window := time.Duration(consent.GrantValidMinutes) * time.Minute
	return grant.GrantValidAt(s.clk.Now(), window), nil
}

// Records returns the migrant's health records, newest first, if and only if
// the requester holds a valid grant. The record store is never touched when
// the authorization predicate fails.
func (s *Service) Records(ctx context.Context, requesterID, requesterRole, migrantUniqueID string) ([]*recorddomain.Record, error) {
	granted, err := s.IsAccessGranted(ctx, requesterID, requesterRole, migrantUniqueID)
	if err != nil {
		return nil, err
	}
	if !granted {
		s.logEvent(ctx, requesterID, "records_read_refused", "migrant/"+migrantUniqueID, "no valid grant")
		return nil, ErrNotAllowed
	}
	recs, err := s.records.ListByMigrant(ctx, migrantUniqueID)
	if err != nil {
		return nil, fmt.Errorf("list health records: %w", err)
	}
	s.logEvent(ctx, requesterID, "records_read", "migrant/"+migrantUniqueID, fmt.Sprintf("%d records", len(recs)))
	s.emit(ctx, teledomain.EventRecordsRead, &domain.Request{MigrantID: migrantUniqueID, RequesterID: requesterID}, fmt.Sprintf("%d records", len(recs)))
	return recs, nil
}

func (s *Service) logEvent(ctx context.Context, requesterID, action, resource, metadata string) {
	if s.auditor == nil {
		return
	}
	s.auditor.LogEvent(ctx, requesterID, action, resource, metadata)
}

func (s *Service) emit(ctx context.Context, eventType string, req *domain.Request, detail string) {
	telemetry.EmitAsync(s.emitter, ctx, &teledomain.Event{
		Type:        eventType,
		RequestID:   req.ID,
		MigrantID:   req.MigrantID,
		RequesterID: req.RequesterID,
		Detail:      detail,
		OccurredAt:  s.clk.Now(),
	})
}
