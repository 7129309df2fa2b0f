package models

import "time"

const (
	UserStatusPendingVerification = "pending_verification"
	UserStatusPendingIBChange     = "pending_ib_change"
	UserStatusActive              = "active"

	IBStatusNone     = "none"
	IBStatusPending  = "pending"
	IBStatusApproved = "approved"
	IBStatusRejected = "rejected"
)

type User struct {
	ID                 string     `json:"id" db:"id"`
	Name               string     `json:"name" db:"name"`
	Email              string     `json:"email" db:"email"`
	Mobile             string     `json:"mobile" db:"mobile"`
	Country            string     `json:"country" db:"country"`
	State              string     `json:"state" db:"state"`
	City               string     `json:"city" db:"city"`
	PinCode            string     `json:"pin_code" db:"pin_code"`
	PasswordHash       string     `json:"-" db:"password_hash"`
	Broker             string     `json:"broker" db:"broker"`
	AccountNo          string     `json:"account_no" db:"account_no"`
	TradingPasswordHash string    `json:"-" db:"trading_password_hash"`
	ReferralCode       string     `json:"referral_code,omitempty" db:"referral_code"`
	Status             string     `json:"status" db:"status"`
	MobileVerified     bool       `json:"mobile_verified" db:"mobile_verified"`
	EmailVerified      bool       `json:"email_verified" db:"email_verified"`
	IBStatus           string     `json:"ib_status" db:"ib_status"`
	IBProofImage       string     `json:"-" db:"ib_proof_image"`
	IBProofFilename    string     `json:"-" db:"ib_proof_filename"`
	IBProofUploadedAt  *time.Time `json:"ib_proof_uploaded_at,omitempty" db:"ib_proof_uploaded_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

type RegisterRequest struct {
	Name            string `json:"name" binding:"required,min=2,max=100"`
	Mobile          string `json:"mobile" binding:"required,min=10,max=15"`
	Email           string `json:"email" binding:"required,email"`
	Country         string `json:"country" binding:"required,min=2,max=50"`
	State           string `json:"state" binding:"required,min=2,max=50"`
	City            string `json:"city" binding:"required,min=2,max=50"`
	PinCode         string `json:"pin_code" binding:"required,min=4,max=10"`
	Password        string `json:"password" binding:"required,min=8,max=100"`
	Broker          string `json:"broker" binding:"required,min=2,max=50"`
	AccountNo       string `json:"account_no" binding:"required,min=4,max=20"`
	TradingPassword string `json:"trading_password" binding:"required,min=4,max=100"`
	ReferralCode    string `json:"referral_code"`
}

type LoginRequest struct {
	MobileOrEmail string `json:"mobile_or_email" binding:"required"`
	Password      string `json:"password" binding:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	ResetToken  string `json:"reset_token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=100"`
}

type ActivateUserRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type IBProofUploadRequest struct {
	ProofImage      string `json:"proof_image" binding:"required"`
	Broker          string `json:"broker" binding:"required"`
	AccountNumber   string `json:"account_number" binding:"required"`
	TradingPassword string `json:"trading_password" binding:"required"`
	ProofFilename   string `json:"proof_filename"`
}

// UserProfile is the authenticated "who am I" projection. Proof image bytes
// and hashes never leave the server.
type UserProfile struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Mobile         string    `json:"mobile"`
	Country        string    `json:"country"`
	State          string    `json:"state"`
	City           string    `json:"city"`
	Broker         string    `json:"broker"`
	AccountNo      string    `json:"account_no"`
	Status         string    `json:"status"`
	MobileVerified bool      `json:"mobile_verified"`
	EmailVerified  bool      `json:"email_verified"`
	IBStatus       string    `json:"ib_status"`
	CreatedAt      time.Time `json:"created_at"`
}

func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Mobile:         u.Mobile,
		Country:        u.Country,
		State:          u.State,
		City:           u.City,
		Broker:         u.Broker,
		AccountNo:      u.AccountNo,
		Status:         u.Status,
		MobileVerified: u.MobileVerified,
		EmailVerified:  u.EmailVerified,
		IBStatus:       u.IBStatus,
		CreatedAt:      u.CreatedAt,
	}
}
