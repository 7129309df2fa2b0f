package models

import "time"

// OneTimeCode is the live code state for a (destination, purpose) pair.
type OneTimeCode struct {
	Destination string    `json:"destination"`
	Purpose     string    `json:"purpose"`
	Code        string    `json:"-"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Consumed    bool      `json:"consumed"`
}

const (
	OTPPurposeMobile = "mobile"
	OTPPurposeEmail  = "email"
)

type OTPRequest struct {
	MobileOrEmail string `json:"mobile_or_email" binding:"required"`
	OTPType       string `json:"otp_type" binding:"required,oneof=mobile email"`
}

type OTPVerifyRequest struct {
	MobileOrEmail string `json:"mobile_or_email" binding:"required"`
	OTP           string `json:"otp" binding:"required,min=4,max=10"`
	OTPType       string `json:"otp_type" binding:"required,oneof=mobile email"`
}

// OTPIssueResult reports an issued code. Code is set only when the deployment
// echoes codes back (demo providers or otp.echo_codes).
type OTPIssueResult struct {
	Code       string    `json:"otp,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	SMSError   string    `json:"sms_error,omitempty"`
	EmailError string    `json:"email_error,omitempty"`
}
