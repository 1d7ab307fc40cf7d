// Package api exposes the consent flow over HTTP: requester auth, access
// requests, OTP verification, and gated record reads.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	accessservice "migrant-health-access/backend/internal/accessgrant/service"
	"migrant-health-access/backend/internal/clock"
	recorddomain "migrant-health-access/backend/internal/healthrecord/domain"
	migrantdomain "migrant-health-access/backend/internal/migrant/domain"
	requesterdomain "migrant-health-access/backend/internal/requester/domain"
	requesterservice "migrant-health-access/backend/internal/requester/service"
)

// MigrantStore is the migrant persistence needed by the directory endpoints.
type MigrantStore interface {
	Create(ctx context.Context, m *migrantdomain.Migrant) error
	GetByUniqueID(ctx context.Context, uniqueID string) (*migrantdomain.Migrant, error)
}

// RecordStore is the health record persistence needed by the record endpoints.
type RecordStore interface {
	Create(ctx context.Context, rec *recorddomain.Record) error
}

// DevOTPReader exposes plain OTPs in dev mode only.
type DevOTPReader interface {
	Get(ctx context.Context, requestID string) (otp string, ok bool)
}

// Handler holds the services behind the HTTP endpoints.
type Handler struct {
	auth     *requesterservice.AuthService
	access   *accessservice.Service
	migrants MigrantStore
	records  RecordStore
	devOTP   DevOTPReader
	clk      clock.Clock
}

// NewHandler returns a Handler. devOTP may be nil; the dev endpoint is then
// not registered.
func NewHandler(auth *requesterservice.AuthService, access *accessservice.Service, migrants MigrantStore, records RecordStore, devOTP DevOTPReader, clk clock.Clock) *Handler {
	if clk == nil {
		clk = clock.System{}
	}
	return &Handler{auth: auth, access: access, migrants: migrants, records: records, devOTP: devOTP, clk: clk}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type accessRequestRequest struct {
	MigrantID string `json:"migrant_id" binding:"required"`
}

type verifyRequest struct {
	RequestID string `json:"request_id" binding:"required"`
	Code      string `json:"code" binding:"required"`
}

type migrantCreateRequest struct {
	UniqueID    string `json:"unique_id" binding:"required"`
	Name        string `json:"name"`
	Phone       string `json:"phone" binding:"required"`
	DateOfBirth string `json:"date_of_birth"`
}

type recordCreateRequest struct {
	MigrantID  string `json:"migrant_id" binding:"required"`
	RecordType string `json:"record_type"`
	Title      string `json:"title" binding:"required"`
	Notes      string `json:"notes"`
}

type recordResponse struct {
	ID         string    `json:"id"`
	MigrantID  string    `json:"migrant_id"`
	RecordType string    `json:"record_type,omitempty"`
	Title      string    `json:"title"`
	Notes      string    `json:"notes,omitempty"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h *Handler) register(c *gin.Context) {
	var in registerRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": "invalid_input"})
		return
	}
	res, err := h.auth.Register(c.Request.Context(), in.Email, in.Password, in.Name, requesterdomain.Role(in.Role))
	if err != nil {
		h.writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"requester_id": res.RequesterID, "role": res.Role})
}

func (h *Handler) login(c *gin.Context) {
	var in loginRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": "invalid_input"})
		return
	}
	res, err := h.auth.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": res.AccessToken,
		"expires_at":   res.ExpiresAt,
		"requester_id": res.RequesterID,
		"role":         res.Role,
	})
}

func (h *Handler) requestAccess(c *gin.Context) {
	var in accessRequestRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": "invalid_input"})
		return
	}
	ctx := c.Request.Context()
	res, err := h.access.RequestAccess(ctx, RequesterID(ctx), RequesterRole(ctx), in.MigrantID)
	if err != nil && !errors.Is(err, accessservice.ErrDeliveryFailed) {
		h.writeAccessError(c, err)
		return
	}
	body := gin.H{
		"request_id": res.RequestID,
		"expires_at": res.ExpiresAt,
		"delivered":  res.Delivered,
	}
	// The request survives a failed SMS; the caller keeps the id and the
	// migrant can still verify through another channel.
	if err != nil {
		body["warning"] = "verification code could not be delivered"
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) verify(c *gin.Context) {
	var in verifyRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": "invalid_input"})
		return
	}
	ctx := c.Request.Context()
	if err := h.access.VerifyOTP(ctx, RequesterID(ctx), RequesterRole(ctx), in.RequestID, in.Code); err != nil {
		h.writeAccessError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "granted"})
}

func (h *Handler) accessStatus(c *gin.Context) {
	ctx := c.Request.Context()
	granted, err := h.access.IsAccessGranted(ctx, RequesterID(ctx), RequesterRole(ctx), c.Param("migrantId"))
	if err != nil {
		h.writeAccessError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"granted": granted})
}

func (h *Handler) listRecords(c *gin.Context) {
	ctx := c.Request.Context()
	recs, err := h.access.Records(ctx, RequesterID(ctx), RequesterRole(ctx), c.Param("migrantId"))
	if err != nil {
		h.writeAccessError(c, err)
		return
	}
	out := make([]recordResponse, len(recs))
	for i, r := range recs {
		out[i] = recordResponse{
			ID: r.ID, MigrantID: r.MigrantID, RecordType: r.RecordType,
			Title: r.Title, Notes: r.Notes, CreatedBy: r.CreatedBy, CreatedAt: r.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"records": out})
}

func (h *Handler) createMigrant(c *gin.Context) {
	var in migrantCreateRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": "invalid_input"})
		return
	}
	ctx := c.Request.Context()
	existing, err := h.migrants.GetByUniqueID(ctx, in.UniqueID)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "migrant already registered", "code": "already_exists"})
		return
	}
	m := &migrantdomain.Migrant{
		ID:          uuid.New().String(),
		UniqueID:    in.UniqueID,
		Name:        in.Name,
		Phone:       in.Phone,
		DateOfBirth: in.DateOfBirth,
		CreatedAt:   h.clk.Now(),
	}
	if err := m.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_input"})
		return
	}
	if err := h.migrants.Create(ctx, m); err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": m.ID, "unique_id": m.UniqueID})
}

func (h *Handler) createRecord(c *gin.Context) {
	var in recordCreateRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": "invalid_input"})
		return
	}
	ctx := c.Request.Context()
	m, err := h.migrants.GetByUniqueID(ctx, in.MigrantID)
	if err != nil {
		h.writeFault(c, err)
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "migrant not found", "code": "not_found"})
		return
	}
	rec := &recorddomain.Record{
		ID:         uuid.New().String(),
		MigrantID:  in.MigrantID,
		RecordType: in.RecordType,
		Title:      in.Title,
		Notes:      in.Notes,
		CreatedBy:  RequesterID(ctx),
		CreatedAt:  h.clk.Now(),
	}
	if err := rec.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_input"})
		return
	}
	if err := h.records.Create(ctx, rec); err != nil {
		h.writeFault(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": rec.ID})
}

func (h *Handler) devGetOTP(c *gin.Context) {
	requestID := c.Query("request_id")
	if requestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request_id is required", "code": "invalid_input"})
		return
	}
	otp, ok := h.devOTP.Get(c.Request.Context(), requestID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no code for request", "code": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"request_id": requestID, "otp": otp})
}

// writeAccessError maps access grant service errors to stable HTTP codes.
func (h *Handler) writeAccessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, accessservice.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_input"})
	case errors.Is(err, accessservice.ErrMigrantNotFound),
		errors.Is(err, accessservice.ErrRequestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "not_found"})
	case errors.Is(err, accessservice.ErrNotAllowed):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": "forbidden"})
	case errors.Is(err, accessservice.ErrTooManyPending):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error(), "code": "too_many_pending"})
	case errors.Is(err, accessservice.ErrInvalidState):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_state"})
	case errors.Is(err, accessservice.ErrCodeExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "expired"})
	case errors.Is(err, accessservice.ErrCodeMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "code_mismatch"})
	case errors.Is(err, accessservice.ErrTooManyAttempts):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "too_many_attempts"})
	default:
		h.writeFault(c, err)
	}
}

func (h *Handler) writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, requesterservice.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "invalid_credentials"})
	case errors.Is(err, requesterservice.ErrEmailAlreadyRegistered):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "already_exists"})
	case errors.Is(err, requesterservice.ErrInvalidEmail),
		errors.Is(err, requesterservice.ErrWeakPassword),
		errors.Is(err, requesterservice.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_input"})
	default:
		h.writeFault(c, err)
	}
}

// writeFault logs the detail server-side and returns an opaque message.
func (h *Handler) writeFault(c *gin.Context, err error) {
	log.Printf("api: %s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "fault"})
}
