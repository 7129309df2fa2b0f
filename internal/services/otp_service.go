package services

import (
	"context"
	cryptorand "crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/copyarc/signup-api/internal/database"
	zaplogrus "github.com/copyarc/signup-api/internal/logging/zaplogrus"
	"github.com/copyarc/signup-api/internal/models"
	"github.com/copyarc/signup-api/internal/utils"
)

var (
	ErrOTPNotFound       = errors.New("one-time code not found")
	ErrOTPExpired        = errors.New("one-time code has expired")
	ErrOTPAlreadyUsed    = errors.New("one-time code already used")
	ErrOTPMismatch       = errors.New("one-time code does not match")
	ErrInvalidOTPPurpose = errors.New("invalid one-time code purpose")
)

const (
	defaultOTPExpiry = 5 * time.Minute
	defaultOTPLength = 6
)

// issueCodeScript atomically replaces any prior record for the key. The key
// lives twice as long as the code so an expired-but-present record can be
// told apart from one that never existed.
var issueCodeScript = redis.NewScript(`
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1],
  "code", ARGV[1],
  "issued_at", ARGV[2],
  "expires_at", ARGV[3],
  "consumed", "0")
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 1
`)

// verifyCodeScript is a compare-and-consume: under concurrent verification of
// the same code, exactly one caller observes "ok".
var verifyCodeScript = redis.NewScript(`
local code = redis.call("HGET", KEYS[1], "code")
if not code then
  return "not_found"
end
local expires_at = tonumber(redis.call("HGET", KEYS[1], "expires_at"))
if tonumber(ARGV[2]) > expires_at then
  return "expired"
end
if redis.call("HGET", KEYS[1], "consumed") == "1" then
  return "already_used"
end
if code ~= ARGV[1] then
  return "mismatch"
end
redis.call("HSET", KEYS[1], "consumed", "1")
return "ok"
`)

// OTPService issues and verifies one-time codes keyed by (destination,
// purpose). State lives in Redis; per-key atomicity comes from the Lua
// scripts, so no Go-side locking is needed.
type OTPService struct {
	redis      *database.RedisClient
	sms        SMSSender
	email      EmailSender
	codeExpiry time.Duration
	codeLength int
	echoCodes  bool
	logger     *zaplogrus.Entry
	now        func() time.Time
}

type OTPServiceOptions struct {
	CodeExpiry time.Duration
	CodeLength int
	// EchoCodes forces codes into API responses regardless of provider.
	EchoCodes bool
}

func NewOTPService(redisClient *database.RedisClient, sms SMSSender, email EmailSender, logger *zaplogrus.Logger, opts OTPServiceOptions) *OTPService {
	if opts.CodeExpiry <= 0 {
		opts.CodeExpiry = defaultOTPExpiry
	}
	if opts.CodeLength <= 0 {
		opts.CodeLength = defaultOTPLength
	}

	return &OTPService{
		redis:      redisClient,
		sms:        sms,
		email:      email,
		codeExpiry: opts.CodeExpiry,
		codeLength: opts.CodeLength,
		echoCodes:  opts.EchoCodes,
		logger:     logger.WithComponent("otp_service"),
		now:        time.Now,
	}
}

func otpKey(purpose, destination string) string {
	return fmt.Sprintf("otp:%s:%s", purpose, destination)
}

// Request generates a new code for (destination, purpose), stores it
// atomically (superseding any prior live code) and dispatches it on the
// matching channel. A delivery failure does not invalidate the stored code.
func (s *OTPService) Request(ctx context.Context, destination, purpose string) (*models.OTPIssueResult, error) {
	if destination == "" {
		return nil, fmt.Errorf("destination cannot be empty")
	}
	if !isValidPurpose(purpose) {
		return nil, ErrInvalidOTPPurpose
	}

	code, err := generateNumericCode(s.codeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(s.codeExpiry)
	keyTTL := 2 * s.codeExpiry

	_, err = issueCodeScript.Run(ctx, s.redis.Client, []string{otpKey(purpose, destination)},
		code,
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(expiresAt.UnixMilli(), 10),
		strconv.FormatInt(keyTTL.Milliseconds(), 10),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to store one-time code: %w", err)
	}

	result := &models.OTPIssueResult{ExpiresAt: expiresAt}

	// The store write is already committed; delivery happens outside any lock
	// and its failure is soft.
	switch purpose {
	case models.OTPPurposeMobile:
		delivery := s.sms.SendOTP(ctx, destination, code, s.codeExpiry)
		if delivery.Err != nil {
			result.SMSError = delivery.Err.Error()
		}
		if delivery.Echo || s.echoCodes {
			result.Code = code
		}
	case models.OTPPurposeEmail:
		delivery := s.email.SendOTP(ctx, destination, code, s.codeExpiry)
		if delivery.Err != nil {
			result.EmailError = delivery.Err.Error()
		}
		if delivery.Echo || s.echoCodes {
			result.Code = code
		}
	}

	s.logger.WithFields(zaplogrus.Fields{
		"destination": utils.MaskDestination(destination),
		"purpose":     purpose,
		"expires_at":  expiresAt,
	}).Info("One-time code issued")

	return result, nil
}

// Verify checks code against the live record for (destination, purpose) and
// consumes it on success.
func (s *OTPService) Verify(ctx context.Context, destination, code, purpose string) error {
	if destination == "" {
		return fmt.Errorf("destination cannot be empty")
	}
	if !isValidPurpose(purpose) {
		return ErrInvalidOTPPurpose
	}

	status, err := verifyCodeScript.Run(ctx, s.redis.Client, []string{otpKey(purpose, destination)},
		code,
		strconv.FormatInt(s.now().UnixMilli(), 10),
	).Text()
	if err != nil {
		return fmt.Errorf("failed to verify one-time code: %w", err)
	}

	switch status {
	case "ok":
		s.logger.WithFields(zaplogrus.Fields{
			"destination": utils.MaskDestination(destination),
			"purpose":     purpose,
		}).Info("One-time code verified")
		return nil
	case "not_found":
		return ErrOTPNotFound
	case "expired":
		return ErrOTPExpired
	case "already_used":
		return ErrOTPAlreadyUsed
	case "mismatch":
		return ErrOTPMismatch
	default:
		return fmt.Errorf("unexpected verification status %q", status)
	}
}

// Peek returns the live record without consuming it. Diagnostic use only.
func (s *OTPService) Peek(ctx context.Context, destination, purpose string) (*models.OneTimeCode, error) {
	if !isValidPurpose(purpose) {
		return nil, ErrInvalidOTPPurpose
	}

	fields, err := s.redis.Client.HGetAll(ctx, otpKey(purpose, destination)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read one-time code: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrOTPNotFound
	}

	issuedMs, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed issued_at: %w", err)
	}
	expiresMs, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed expires_at: %w", err)
	}

	return &models.OneTimeCode{
		Destination: destination,
		Purpose:     purpose,
		Code:        fields["code"],
		IssuedAt:    time.UnixMilli(issuedMs),
		ExpiresAt:   time.UnixMilli(expiresMs),
		Consumed:    fields["consumed"] == "1",
	}, nil
}

func generateNumericCode(length int) (string, error) {
	const digits = "0123456789"
	code := make([]byte, length)
	for i := range code {
		num, err := cryptorand.Int(cryptorand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		code[i] = digits[num.Int64()]
	}
	return string(code), nil
}

func isValidPurpose(purpose string) bool {
	switch purpose {
	case models.OTPPurposeMobile, models.OTPPurposeEmail:
		return true
	default:
		return false
	}
}
