package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	goredis "github.com/redis/go-redis/v9"

	"github.com/copyarc/signup-api/internal/crypto"
	"github.com/copyarc/signup-api/internal/database"
	zaplogrus "github.com/copyarc/signup-api/internal/logging/zaplogrus"
	"github.com/copyarc/signup-api/internal/models"
	"github.com/copyarc/signup-api/internal/utils"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailAlreadyExists  = errors.New("email is already registered")
	ErrMobileAlreadyExists = errors.New("mobile number is already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountNotActive    = errors.New("account is not active")
	ErrIBNotApproved       = errors.New("ib change is not approved")
	ErrInvalidResetToken   = errors.New("invalid or expired reset token")
	ErrResetInProgress     = errors.New("a password reset is already in progress")
)

const (
	passwordResetTTL       = 30 * time.Minute
	passwordResetKeyPrefix = "pwdreset:"
	passwordResetLockTTL   = 10 * time.Second

	// uniqueViolation is the PostgreSQL error code for duplicate keys.
	uniqueViolation = "23505"
)

const userColumns = `id, name, email, mobile, country, state, city, pin_code, password_hash,
	broker, account_no, trading_password_hash, referral_code, status,
	mobile_verified, email_verified, ib_status, ib_proof_uploaded_at, created_at, updated_at`

// UserService owns account records: registration, authentication,
// verification state and the IB proof workflow.
type UserService struct {
	db     database.DBPool
	redis  *database.RedisClient
	hasher *crypto.PasswordHasher
	email  EmailSender
	logger *zaplogrus.Entry
	now    func() time.Time
}

func NewUserService(db database.DBPool, redisClient *database.RedisClient, email EmailSender, logger *zaplogrus.Logger) *UserService {
	return &UserService{
		db:     db,
		redis:  redisClient,
		hasher: crypto.NewPasswordHasher(),
		email:  email,
		logger: logger.WithComponent("user_service"),
		now:    time.Now,
	}
}

// Create registers a new account in pending_verification state.
func (s *UserService) Create(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	passwordHash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	tradingHash, err := s.hasher.HashPassword(req.TradingPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash trading password: %w", err)
	}

	now := s.now()
	user := &models.User{
		ID:                  uuid.New().String(),
		Name:                req.Name,
		Email:               req.Email,
		Mobile:              req.Mobile,
		Country:             req.Country,
		State:               req.State,
		City:                req.City,
		PinCode:             req.PinCode,
		PasswordHash:        passwordHash,
		Broker:              req.Broker,
		AccountNo:           req.AccountNo,
		TradingPasswordHash: tradingHash,
		ReferralCode:        req.ReferralCode,
		Status:              models.UserStatusPendingVerification,
		IBStatus:            models.IBStatusNone,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	query := `
		INSERT INTO users (id, name, email, mobile, country, state, city, pin_code, password_hash,
			broker, account_no, trading_password_hash, referral_code, status,
			mobile_verified, email_verified, ib_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id`

	row := s.db.QueryRow(ctx, query,
		user.ID, user.Name, user.Email, user.Mobile, user.Country, user.State, user.City,
		user.PinCode, user.PasswordHash, user.Broker, user.AccountNo, user.TradingPasswordHash,
		user.ReferralCode, user.Status, user.MobileVerified, user.EmailVerified, user.IBStatus,
		user.CreatedAt, user.UpdatedAt,
	)
	if err := row.Scan(&user.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if strings.Contains(pgErr.ConstraintName, "mobile") {
				return nil, ErrMobileAlreadyExists
			}
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.WithFields(zaplogrus.Fields{
		"user_id": user.ID,
		"email":   utils.MaskEmail(user.Email),
		"mobile":  utils.MaskPhone(user.Mobile),
	}).Info("User registered")

	return user, nil
}

// GetByID fetches a single account.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.scanUser(s.db.QueryRow(ctx, query, id))
}

// GetByMobileOrEmail fetches the account matching either unique field.
func (s *UserService) GetByMobileOrEmail(ctx context.Context, mobileOrEmail string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 OR mobile = $1`
	return s.scanUser(s.db.QueryRow(ctx, query, mobileOrEmail))
}

// Authenticate verifies credentials and account gating. Only active accounts
// with an approved IB change may sign in.
func (s *UserService) Authenticate(ctx context.Context, mobileOrEmail, password string) (*models.User, error) {
	user, err := s.GetByMobileOrEmail(ctx, mobileOrEmail)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := s.hasher.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	if user.Status != models.UserStatusActive {
		return nil, ErrAccountNotActive
	}
	if user.IBStatus != models.IBStatusApproved {
		return nil, ErrIBNotApproved
	}

	return user, nil
}

// MarkVerified records a successful OTP verification for the destination and
// activates the account once both channels are verified. When activation
// happens the returned user is non-nil and a welcome email goes out
// best-effort.
func (s *UserService) MarkVerified(ctx context.Context, destination, purpose string) (bool, *models.User, error) {
	var flagQuery string
	switch purpose {
	case models.OTPPurposeMobile:
		flagQuery = `UPDATE users SET mobile_verified = TRUE, updated_at = $2 WHERE mobile = $1 RETURNING id`
	case models.OTPPurposeEmail:
		flagQuery = `UPDATE users SET email_verified = TRUE, updated_at = $2 WHERE email = $1 RETURNING id`
	default:
		return false, nil, ErrInvalidOTPPurpose
	}

	var userID string
	if err := s.db.QueryRow(ctx, flagQuery, destination, s.now()).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil, ErrUserNotFound
		}
		return false, nil, fmt.Errorf("failed to mark %s verified: %w", purpose, err)
	}

	// Conditional activation: fires only when both flags are set and the
	// account is still pending.
	activateQuery := `
		UPDATE users SET status = $2, updated_at = $3
		WHERE id = $1 AND mobile_verified = TRUE AND email_verified = TRUE AND status = $4
		RETURNING id, name, email`

	var activated models.User
	err := s.db.QueryRow(ctx, activateQuery,
		userID, models.UserStatusActive, s.now(), models.UserStatusPendingVerification,
	).Scan(&activated.ID, &activated.Name, &activated.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("failed to activate user: %w", err)
	}

	s.logger.WithField("user_id", activated.ID).Info("User activated after full verification")

	if s.email != nil {
		if mailErr := s.email.SendWelcome(ctx, activated.Email, activated.Name); mailErr != nil {
			s.logger.WithError(mailErr).WithField("user_id", activated.ID).Warn("Welcome email failed")
		}
	}

	return true, &activated, nil
}

// UploadIBProof attaches a broker proof image to the account and moves it
// into the IB review queue.
func (s *UserService) UploadIBProof(ctx context.Context, userID string, req *models.IBProofUploadRequest) error {
	tradingHash, err := s.hasher.HashPassword(req.TradingPassword)
	if err != nil {
		return fmt.Errorf("failed to hash trading password: %w", err)
	}

	query := `
		UPDATE users SET broker = $2, account_no = $3, trading_password_hash = $4,
			ib_proof_image = $5, ib_proof_filename = $6, ib_proof_uploaded_at = $7,
			ib_status = $8, status = $9, updated_at = $7
		WHERE id = $1
		RETURNING name, email`

	var name, email string
	err = s.db.QueryRow(ctx, query,
		userID, req.Broker, req.AccountNumber, tradingHash,
		req.ProofImage, req.ProofFilename, s.now(),
		models.IBStatusPending, models.UserStatusPendingIBChange,
	).Scan(&name, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to store ib proof: %w", err)
	}

	s.logger.WithField("user_id", userID).Info("IB proof uploaded, pending review")

	if s.email != nil {
		if mailErr := s.email.SendIBProofReceived(ctx, email, name); mailErr != nil {
			s.logger.WithError(mailErr).WithField("user_id", userID).Warn("IB proof email failed")
		}
	}

	return nil
}

// CreatePasswordReset issues a single-use reset token for the account and
// stores it in Redis with a short TTL. Issuance for one email is serialized
// through a distributed lock so concurrent requests cannot race the token
// write against the reset mail.
func (s *UserService) CreatePasswordReset(ctx context.Context, email string) (string, error) {
	lockKey := passwordResetKeyPrefix + email + ":lock"
	lockToken, acquired, err := s.redis.AcquireLock(ctx, lockKey, passwordResetLockTTL)
	if err != nil {
		return "", fmt.Errorf("failed to acquire reset lock: %w", err)
	}
	if !acquired {
		return "", ErrResetInProgress
	}
	defer func() {
		if _, releaseErr := s.redis.ReleaseLock(ctx, lockKey, lockToken); releaseErr != nil {
			s.logger.WithError(releaseErr).Warn("Failed to release reset lock")
		}
	}()

	if _, err := s.GetByMobileOrEmail(ctx, email); err != nil {
		return "", err
	}

	tokenKey := passwordResetKeyPrefix + email
	if existing, err := s.redis.Exists(ctx, tokenKey); err == nil && existing > 0 {
		s.logger.WithField("email", utils.MaskEmail(email)).Info("Superseding existing reset token")
	}

	token := uuid.New().String()
	if err := s.redis.Set(ctx, tokenKey, token, passwordResetTTL); err != nil {
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}

	if s.email != nil {
		if mailErr := s.email.SendPasswordReset(ctx, email, token); mailErr != nil {
			s.logger.WithError(mailErr).WithField("email", utils.MaskEmail(email)).Warn("Password reset email failed")
		}
	}

	s.logger.WithField("email", utils.MaskEmail(email)).Info("Password reset token issued")
	return token, nil
}

// ResetPassword consumes a reset token and replaces the account password.
func (s *UserService) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	stored, err := s.redis.Get(ctx, passwordResetKeyPrefix+email)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("failed to read reset token: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return ErrInvalidResetToken
	}

	passwordHash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	query := `UPDATE users SET password_hash = $2, updated_at = $3 WHERE email = $1 RETURNING id`
	var userID string
	if err := s.db.QueryRow(ctx, query, email, passwordHash, s.now()).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to reset password: %w", err)
	}

	if err := s.redis.Delete(ctx, passwordResetKeyPrefix+email); err != nil {
		s.logger.WithError(err).Warn("Failed to delete consumed reset token")
	}

	s.logger.WithField("user_id", userID).Info("Password reset")
	return nil
}

// ActivateByEmail is the operator backdoor that force-activates an account,
// marking both channels verified.
func (s *UserService) ActivateByEmail(ctx context.Context, email string) error {
	query := `
		UPDATE users SET status = $2, mobile_verified = TRUE, email_verified = TRUE, updated_at = $3
		WHERE email = $1
		RETURNING id`

	var userID string
	if err := s.db.QueryRow(ctx, query, email, models.UserStatusActive, s.now()).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to activate user: %w", err)
	}

	s.logger.WithFields(zaplogrus.Fields{
		"user_id": userID,
		"email":   utils.MaskEmail(email),
	}).Warn("User force-activated")
	return nil
}

func (s *UserService) scanUser(row database.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.Mobile, &user.Country, &user.State,
		&user.City, &user.PinCode, &user.PasswordHash, &user.Broker, &user.AccountNo,
		&user.TradingPasswordHash, &user.ReferralCode, &user.Status,
		&user.MobileVerified, &user.EmailVerified, &user.IBStatus,
		&user.IBProofUploadedAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}
