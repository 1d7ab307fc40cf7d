// Package sms delivers consent OTPs to migrant phones.
package sms

// Sender is the outbound "deliver code to phone" capability consumed by the
// access grant manager. Implementations report failure explicitly; the caller
// decides what a failed delivery means for the consent flow.
type Sender interface {
	SendOTP(phone, otp string) error
}

// NopSender discards every message. Used in dev OTP mode, where codes are
// read back through the dev endpoint instead of a phone.
type NopSender struct{}

func (NopSender) SendOTP(phone, otp string) error { return nil }
