package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyarc/signup-api/internal/crypto"
	"github.com/copyarc/signup-api/internal/database"
	zaplogrus "github.com/copyarc/signup-api/internal/logging/zaplogrus"
	"github.com/copyarc/signup-api/internal/models"
	"github.com/copyarc/signup-api/internal/testutil"
)

func newTestUserService(t *testing.T) (*UserService, pgxmock.PgxPoolIface, *stubEmailSender) {
	t.Helper()

	db, mock, err := database.NewMockDBPoolFromNewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	redisClient, _ := testutil.NewMiniredisClient(t)
	email := &stubEmailSender{}

	svc := NewUserService(db, database.NewRedisClientFromExisting(redisClient), email, zaplogrus.New())
	return svc, mock, email
}

func registerRequestFixture() *models.RegisterRequest {
	return &models.RegisterRequest{
		Name:            "Jane Trader",
		Mobile:          "+15551234567",
		Email:           "jane@example.com",
		Country:         "United States",
		State:           "California",
		City:            "San Francisco",
		PinCode:         "94105",
		Password:        "a-strong-password",
		Broker:          "DemoBroker",
		AccountNo:       "88001234",
		TradingPassword: "trade-pass",
	}
}

func userRow(t *testing.T, password, status, ibStatus string) *pgxmock.Rows {
	t.Helper()

	hash, err := crypto.NewPasswordHasher().HashPassword(password)
	require.NoError(t, err)

	now := time.Now()
	return pgxmock.NewRows([]string{
		"id", "name", "email", "mobile", "country", "state", "city", "pin_code",
		"password_hash", "broker", "account_no", "trading_password_hash", "referral_code",
		"status", "mobile_verified", "email_verified", "ib_status", "ib_proof_uploaded_at",
		"created_at", "updated_at",
	}).AddRow(
		"user-1", "Jane Trader", "jane@example.com", "+15551234567", "United States",
		"California", "San Francisco", "94105", hash, "DemoBroker", "88001234", hash, "",
		status, true, true, ibStatus, (*time.Time)(nil), now, now,
	)
}

func TestUserService_Create(t *testing.T) {
	svc, mock, _ := newTestUserService(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("user-1"))

	user, err := svc.Create(context.Background(), registerRequestFixture())
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusPendingVerification, user.Status)
	assert.Equal(t, models.IBStatusNone, user.IBStatus)
	assert.False(t, user.MobileVerified)
	assert.NotEqual(t, "a-strong-password", user.PasswordHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_CreateDuplicateEmail(t *testing.T) {
	svc, mock, _ := newTestUserService(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	_, err := svc.Create(context.Background(), registerRequestFixture())
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)
}

func TestUserService_CreateDuplicateMobile(t *testing.T) {
	svc, mock, _ := newTestUserService(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_mobile_key"})

	_, err := svc.Create(context.Background(), registerRequestFixture())
	assert.ErrorIs(t, err, ErrMobileAlreadyExists)
}

func TestUserService_AuthenticateSuccess(t *testing.T) {
	svc, mock, _ := newTestUserService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 OR mobile = $1")).
		WithArgs("jane@example.com").
		WillReturnRows(userRow(t, "a-strong-password", models.UserStatusActive, models.IBStatusApproved))

	user, err := svc.Authenticate(context.Background(), "jane@example.com", "a-strong-password")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
}

func TestUserService_AuthenticateWrongPassword(t *testing.T) {
	svc, mock, _ := newTestUserService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 OR mobile = $1")).
		WithArgs("jane@example.com").
		WillReturnRows(userRow(t, "a-strong-password", models.UserStatusActive, models.IBStatusApproved))

	_, err := svc.Authenticate(context.Background(), "jane@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserService_AuthenticateUnknownUser(t *testing.T) {
	svc, mock, _ := newTestUserService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 OR mobile = $1")).
		WithArgs("ghost@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := svc.Authenticate(context.Background(), "ghost@example.com", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserService_AuthenticatePendingAccount(t *testing.T) {
	svc, mock, _ := newTestUserService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 OR mobile = $1")).
		WithArgs("jane@example.com").
		WillReturnRows(userRow(t, "a-strong-password", models.UserStatusPendingVerification, models.IBStatusNone))

	_, err := svc.Authenticate(context.Background(), "jane@example.com", "a-strong-password")
	assert.ErrorIs(t, err, ErrAccountNotActive)
}

func TestUserService_AuthenticateIBNotApproved(t *testing.T) {
	svc, mock, _ := newTestUserService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 OR mobile = $1")).
		WithArgs("jane@example.com").
		WillReturnRows(userRow(t, "a-strong-password", models.UserStatusActive, models.IBStatusPending))

	_, err := svc.Authenticate(context.Background(), "jane@example.com", "a-strong-password")
	assert.ErrorIs(t, err, ErrIBNotApproved)
}

func TestUserService_MarkVerifiedWithoutActivation(t *testing.T) {
	svc, mock, email := newTestUserService(t)

	mock.ExpectQuery(regexp.QuoteMeta("SET mobile_verified = TRUE")).
		WithArgs("+15551234567", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("user-1"))

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET status = $2")).
		WithArgs("user-1", models.UserStatusActive, pgxmock.AnyArg(), models.UserStatusPendingVerification).
		WillReturnError(pgx.ErrNoRows)

	activated, user, err := svc.MarkVerified(context.Background(), "+15551234567", models.OTPPurposeMobile)
	require.NoError(t, err)
	assert.False(t, activated)
	assert.Nil(t, user)
	assert.Empty(t, email.welcomes)
}

func TestUserService_MarkVerifiedActivates(t *testing.T) {
	svc, mock, email := newTestUserService(t)

	mock.ExpectQuery(regexp.QuoteMeta("SET email_verified = TRUE")).
		WithArgs("jane@example.com", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("user-1"))

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET status = $2")).
		WithArgs("user-1", models.UserStatusActive, pgxmock.AnyArg(), models.UserStatusPendingVerification).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "email"}).
			AddRow("user-1", "Jane Trader", "jane@example.com"))

	activated, user, err := svc.MarkVerified(context.Background(), "jane@example.com", models.OTPPurposeEmail)
	require.NoError(t, err)
	assert.True(t, activated)
	require.NotNil(t, user)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, []string{"jane@example.com"}, email.welcomes)
}

func TestUserService_MarkVerifiedUnknownDestination(t *testing.T) {
	svc, mock, _ := newTestUserService(t)

	mock.ExpectQuery(regexp.QuoteMeta("SET mobile_verified = TRUE")).
		WithArgs("+15550000000", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, _, err := svc.MarkVerified(context.Background(), "+15550000000", models.OTPPurposeMobile)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_UploadIBProof(t *testing.T) {
	svc, mock, email := newTestUserService(t)

	mock.ExpectQuery(regexp.QuoteMeta("ib_proof_image = $5")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"name", "email"}).
			AddRow("Jane Trader", "jane@example.com"))

	err := svc.UploadIBProof(context.Background(), "user-1", &models.IBProofUploadRequest{
		ProofImage:      "aGVsbG8=",
		Broker:          "DemoBroker",
		AccountNumber:   "88001234",
		TradingPassword: "trade-pass",
		ProofFilename:   "proof.png",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"jane@example.com"}, email.ibReceived)
}

func TestUserService_UploadIBProofUnknownUser(t *testing.T) {
	svc, mock, _ := newTestUserService(t)

	mock.ExpectQuery(regexp.QuoteMeta("ib_proof_image = $5")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	err := svc.UploadIBProof(context.Background(), "ghost", &models.IBProofUploadRequest{
		ProofImage:      "aGVsbG8=",
		Broker:          "DemoBroker",
		AccountNumber:   "88001234",
		TradingPassword: "trade-pass",
	})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_PasswordResetFlow(t *testing.T) {
	svc, mock, email := newTestUserService(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 OR mobile = $1")).
		WithArgs("jane@example.com").
		WillReturnRows(userRow(t, "a-strong-password", models.UserStatusActive, models.IBStatusApproved))

	token, err := svc.CreatePasswordReset(ctx, "jane@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Len(t, email.resets, 1)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET password_hash = $2")).
		WithArgs("jane@example.com", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("user-1"))

	err = svc.ResetPassword(ctx, "jane@example.com", token, "a-new-password")
	require.NoError(t, err)

	// The token is single use.
	err = svc.ResetPassword(ctx, "jane@example.com", token, "another-password")
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestUserService_CreatePasswordResetInProgress(t *testing.T) {
	db, mock, err := database.NewMockDBPoolFromNewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	client, _ := testutil.NewMiniredisClient(t)
	redisClient := database.NewRedisClientFromExisting(client)
	svc := NewUserService(db, redisClient, &stubEmailSender{}, zaplogrus.New())
	ctx := context.Background()

	// Another request holds the per-email issuance lock.
	_, acquired, err := redisClient.AcquireLock(ctx, "pwdreset:jane@example.com:lock", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = svc.CreatePasswordReset(ctx, "jane@example.com")
	assert.ErrorIs(t, err, ErrResetInProgress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserService_CreatePasswordResetSupersedes(t *testing.T) {
	svc, mock, _ := newTestUserService(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 OR mobile = $1")).
		WithArgs("jane@example.com").
		WillReturnRows(userRow(t, "a-strong-password", models.UserStatusActive, models.IBStatusApproved))
	first, err := svc.CreatePasswordReset(ctx, "jane@example.com")
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 OR mobile = $1")).
		WithArgs("jane@example.com").
		WillReturnRows(userRow(t, "a-strong-password", models.UserStatusActive, models.IBStatusApproved))
	second, err := svc.CreatePasswordReset(ctx, "jane@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	// Only the newest token is live.
	err = svc.ResetPassword(ctx, "jane@example.com", first, "a-new-password")
	assert.ErrorIs(t, err, ErrInvalidResetToken)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET password_hash = $2")).
		WithArgs("jane@example.com", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("user-1"))

	err = svc.ResetPassword(ctx, "jane@example.com", second, "a-new-password")
	require.NoError(t, err)
}

func TestUserService_ResetPasswordWrongToken(t *testing.T) {
	svc, mock, _ := newTestUserService(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 OR mobile = $1")).
		WithArgs("jane@example.com").
		WillReturnRows(userRow(t, "a-strong-password", models.UserStatusActive, models.IBStatusApproved))

	_, err := svc.CreatePasswordReset(ctx, "jane@example.com")
	require.NoError(t, err)

	err = svc.ResetPassword(ctx, "jane@example.com", "not-the-token", "a-new-password")
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestUserService_CreatePasswordResetUnknownUser(t *testing.T) {
	svc, mock, _ := newTestUserService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 OR mobile = $1")).
		WithArgs("ghost@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := svc.CreatePasswordReset(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_ActivateByEmail(t *testing.T) {
	svc, mock, _ := newTestUserService(t)

	mock.ExpectQuery(regexp.QuoteMeta("mobile_verified = TRUE, email_verified = TRUE")).
		WithArgs("jane@example.com", models.UserStatusActive, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("user-1"))

	err := svc.ActivateByEmail(context.Background(), "jane@example.com")
	assert.NoError(t, err)
}

func TestUserService_ActivateByEmailUnknownUser(t *testing.T) {
	svc, mock, _ := newTestUserService(t)

	mock.ExpectQuery(regexp.QuoteMeta("mobile_verified = TRUE, email_verified = TRUE")).
		WithArgs("ghost@example.com", models.UserStatusActive, pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	err := svc.ActivateByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_GetByID(t *testing.T) {
	svc, mock, _ := newTestUserService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("user-1").
		WillReturnRows(userRow(t, "a-strong-password", models.UserStatusActive, models.IBStatusApproved))

	user, err := svc.GetByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", user.Email)
	profile := user.Profile()
	assert.Equal(t, "user-1", profile.ID)
	assert.Equal(t, models.IBStatusApproved, profile.IBStatus)
}
