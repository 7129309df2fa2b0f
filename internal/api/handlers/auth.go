package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/copyarc/signup-api/internal/auth"
	zaplogrus "github.com/copyarc/signup-api/internal/logging/zaplogrus"
	"github.com/copyarc/signup-api/internal/models"
	"github.com/copyarc/signup-api/internal/services"
)

// AuthHandler exposes the registration, OTP and account endpoints under
// /api/v1/auth.
type AuthHandler struct {
	users  *services.UserService
	otp    *services.OTPService
	tokens *auth.TokenManager
	// echoResetTokens returns password reset tokens in responses; only for
	// demo deployments without a real mail provider.
	echoResetTokens bool
	logger          *zaplogrus.Entry
}

func NewAuthHandler(users *services.UserService, otp *services.OTPService, tokens *auth.TokenManager, echoResetTokens bool, logger *zaplogrus.Logger) *AuthHandler {
	return &AuthHandler{
		users:           users,
		otp:             otp,
		tokens:          tokens,
		echoResetTokens: echoResetTokens,
		logger:          logger.WithComponent("auth_handler"),
	}
}

// Register creates a pending account and hands back an access token so the
// client can continue the verification flow.
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid registration data: "+err.Error())
		return
	}

	user, err := h.users.Create(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmailAlreadyExists):
			respondError(c, http.StatusConflict, "Email is already registered")
		case errors.Is(err, services.ErrMobileAlreadyExists):
			respondError(c, http.StatusConflict, "Mobile number is already registered")
		default:
			h.logger.WithError(err).Error("Registration failed")
			respondError(c, http.StatusInternalServerError, "Registration failed")
		}
		return
	}

	token, err := h.tokens.GenerateToken(user.ID)
	if err != nil {
		h.logger.WithError(err).Error("Token generation failed")
		respondError(c, http.StatusInternalServerError, "Registration failed")
		return
	}

	respondSuccess(c, http.StatusCreated,
		"Registration successful. Please verify your mobile number and email.",
		gin.H{
			"user_id":      user.ID,
			"access_token": token,
			"token_type":   "bearer",
		})
}

// Login authenticates an active, IB-approved account.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid login data: "+err.Error())
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.MobileOrEmail, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			respondError(c, http.StatusUnauthorized, "Invalid mobile/email or password")
		case errors.Is(err, services.ErrAccountNotActive):
			respondError(c, http.StatusForbidden, "Account is not active. Please complete verification.")
		case errors.Is(err, services.ErrIBNotApproved):
			respondError(c, http.StatusForbidden, "Your IB change is pending approval")
		default:
			h.logger.WithError(err).Error("Login failed")
			respondError(c, http.StatusInternalServerError, "Login failed")
		}
		return
	}

	token, err := h.tokens.GenerateToken(user.ID)
	if err != nil {
		h.logger.WithError(err).Error("Token generation failed")
		respondError(c, http.StatusInternalServerError, "Login failed")
		return
	}

	respondSuccess(c, http.StatusOK, "Login successful", gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user":         user.Profile(),
	})
}

// SendOTP issues a one-time code to a mobile number or email address.
func (h *AuthHandler) SendOTP(c *gin.Context) {
	var req models.OTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid OTP request: "+err.Error())
		return
	}

	result, err := h.otp.Request(c.Request.Context(), req.MobileOrEmail, req.OTPType)
	if err != nil {
		if errors.Is(err, services.ErrInvalidOTPPurpose) {
			respondError(c, http.StatusBadRequest, "otp_type must be mobile or email")
			return
		}
		h.logger.WithError(err).Error("OTP issuance failed")
		respondError(c, http.StatusInternalServerError, "Failed to send OTP")
		return
	}

	respondSuccess(c, http.StatusOK, "OTP sent successfully", result)
}

// VerifyOTP consumes a one-time code and records the verification on the
// matching account, activating it once both channels are verified.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req models.OTPVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid OTP verification data: "+err.Error())
		return
	}

	err := h.otp.Verify(c.Request.Context(), req.MobileOrEmail, req.OTP, req.OTPType)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOTPNotFound):
			respondError(c, http.StatusNotFound, "No OTP found for this destination. Please request a new one.")
		case errors.Is(err, services.ErrOTPExpired):
			respondError(c, http.StatusBadRequest, "OTP has expired. Please request a new one.")
		case errors.Is(err, services.ErrOTPAlreadyUsed):
			respondError(c, http.StatusBadRequest, "OTP has already been used. Please request a new one.")
		case errors.Is(err, services.ErrOTPMismatch):
			respondError(c, http.StatusBadRequest, "Invalid OTP")
		case errors.Is(err, services.ErrInvalidOTPPurpose):
			respondError(c, http.StatusBadRequest, "otp_type must be mobile or email")
		default:
			h.logger.WithError(err).Error("OTP verification failed")
			respondError(c, http.StatusInternalServerError, "OTP verification failed")
		}
		return
	}

	activated, _, err := h.users.MarkVerified(c.Request.Context(), req.MobileOrEmail, req.OTPType)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			// A destination can be verified before its account exists; flag
			// recording is best-effort and the consumed code stays consumed.
			respondSuccess(c, http.StatusOK, "OTP verified successfully", nil)
			return
		}
		h.logger.WithError(err).Error("Failed to record verification")
		respondError(c, http.StatusInternalServerError, "OTP verification failed")
		return
	}

	message := "OTP verified successfully"
	if activated {
		message = "OTP verified successfully. Your account is now active."
	}
	respondSuccess(c, http.StatusOK, message, nil)
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Not authenticated")
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, "User not found")
			return
		}
		h.logger.WithError(err).Error("Profile lookup failed")
		respondError(c, http.StatusInternalServerError, "Failed to load profile")
		return
	}

	respondSuccess(c, http.StatusOK, "OK", user.Profile())
}

// UploadIBProof attaches broker proof to the authenticated account.
func (h *AuthHandler) UploadIBProof(c *gin.Context) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req models.IBProofUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid IB proof data: "+err.Error())
		return
	}

	if err := h.users.UploadIBProof(c.Request.Context(), userID, &req); err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, "User not found")
			return
		}
		h.logger.WithError(err).Error("IB proof upload failed")
		respondError(c, http.StatusInternalServerError, "Failed to upload IB proof")
		return
	}

	respondSuccess(c, http.StatusOK, "IB proof uploaded successfully. It is pending review.",
		gin.H{"ib_status": models.IBStatusPending})
}

// ForgotPassword starts a password reset.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Email is required")
		return
	}

	token, err := h.users.CreatePasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			respondError(c, http.StatusNotFound, "No account found for this email")
		case errors.Is(err, services.ErrResetInProgress):
			respondError(c, http.StatusTooManyRequests, "A password reset is already in progress. Please retry shortly.")
		default:
			h.logger.WithError(err).Error("Password reset initiation failed")
			respondError(c, http.StatusInternalServerError, "Failed to initiate password reset")
		}
		return
	}

	var data gin.H
	if h.echoResetTokens {
		data = gin.H{"reset_token": token}
	}
	respondSuccess(c, http.StatusOK, "Password reset instructions sent", data)
}

// ResetPassword consumes a reset token and sets a new password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Email, reset token, and new password are required")
		return
	}

	err := h.users.ResetPassword(c.Request.Context(), req.Email, req.ResetToken, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidResetToken):
			respondError(c, http.StatusBadRequest, "Invalid or expired reset token")
		case errors.Is(err, services.ErrUserNotFound):
			respondError(c, http.StatusNotFound, "No account found for this email")
		default:
			h.logger.WithError(err).Error("Password reset failed")
			respondError(c, http.StatusInternalServerError, "Failed to reset password")
		}
		return
	}

	respondSuccess(c, http.StatusOK, "Password reset successfully", nil)
}

// ActivateUser is the operator endpoint that force-activates an account.
func (h *AuthHandler) ActivateUser(c *gin.Context) {
	var req models.ActivateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Email is required")
		return
	}

	if err := h.users.ActivateByEmail(c.Request.Context(), req.Email); err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, "No account found for this email")
			return
		}
		h.logger.WithError(err).Error("User activation failed")
		respondError(c, http.StatusInternalServerError, "Failed to activate user")
		return
	}

	respondSuccess(c, http.StatusOK, "User activated successfully", nil)
}
