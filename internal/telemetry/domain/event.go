package domain

import "time"

// Consent lifecycle event types.
const (
	EventAccessRequested = "access_requested"
	EventOTPDelivered    = "otp_delivered"
	EventOTPDeliveryFail = "otp_delivery_failed"
	EventAccessGranted   = "access_granted"
	EventAccessExpired   = "access_expired"
	EventAccessDenied    = "access_denied"
	EventVerifyMismatch  = "verify_mismatch"
	EventRecordsRead     = "records_read"
)

// Event represents one consent lifecycle event emitted by the access grant
// service for export to OTel, Kafka, and Loki.
type Event struct {
	Type        string
	RequestID   string
	MigrantID   string // public unique id of the data subject
	RequesterID string
	Detail      string
	OccurredAt  time.Time
}
