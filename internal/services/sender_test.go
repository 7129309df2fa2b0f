package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyarc/signup-api/internal/config"
	zaplogrus "github.com/copyarc/signup-api/internal/logging/zaplogrus"
)

func TestNewSMSSender_SelectsProvider(t *testing.T) {
	logger := zaplogrus.New()

	demo := NewSMSSender(config.SMSConfig{Provider: "demo"}, logger)
	assert.IsType(t, &DemoSMSSender{}, demo)

	twilio := NewSMSSender(config.SMSConfig{Provider: "twilio"}, logger)
	assert.IsType(t, &TwilioSender{}, twilio)
}

func TestNewEmailSender_SelectsProvider(t *testing.T) {
	logger := zaplogrus.New()

	demo := NewEmailSender(config.SMTPConfig{Provider: "demo"}, logger)
	assert.IsType(t, &DemoEmailSender{}, demo)

	smtpSender := NewEmailSender(config.SMTPConfig{Provider: "smtp"}, logger)
	assert.IsType(t, &SMTPSender{}, smtpSender)
}

func TestDemoSenders_EchoCode(t *testing.T) {
	logger := zaplogrus.New()
	ctx := context.Background()

	smsResult := NewDemoSMSSender(logger).SendOTP(ctx, "+15551234567", "123456", 5*time.Minute)
	assert.True(t, smsResult.Delivered)
	assert.True(t, smsResult.Echo)
	assert.Equal(t, "demo", smsResult.Provider)
	assert.NoError(t, smsResult.Err)

	emailResult := NewDemoEmailSender(logger).SendOTP(ctx, "user@example.com", "123456", 5*time.Minute)
	assert.True(t, emailResult.Delivered)
	assert.True(t, emailResult.Echo)
}

func TestTwilioSender_SendOTP(t *testing.T) {
	var gotPath, gotBody, gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotBody = r.PostForm.Get("Body")
		gotAuth = r.Header.Get("Authorization")

		assert.Equal(t, "+15551234567", r.PostForm.Get("To"))
		assert.Equal(t, "+15550000000", r.PostForm.Get("From"))

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	sender := NewTwilioSender(config.SMSConfig{
		Provider:         "twilio",
		TwilioAccountSID: "ACtest",
		TwilioAuthToken:  "token",
		TwilioFromNumber: "+15550000000",
	}, zaplogrus.New())
	sender.baseURL = server.URL

	result := sender.SendOTP(context.Background(), "+15551234567", "654321", 5*time.Minute)

	assert.True(t, result.Delivered)
	assert.False(t, result.Echo)
	assert.Equal(t, "twilio", result.Provider)
	assert.NoError(t, result.Err)
	assert.Equal(t, "/2010-04-01/Accounts/ACtest/Messages.json", gotPath)
	assert.Contains(t, gotBody, "654321")
	assert.Contains(t, gotBody, "5 minutes")
	assert.True(t, strings.HasPrefix(gotAuth, "Basic "))
}

func TestTwilioSender_ReportsRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	sender := NewTwilioSender(config.SMSConfig{
		TwilioAccountSID: "ACtest",
		TwilioAuthToken:  "bad-token",
		TwilioFromNumber: "+15550000000",
	}, zaplogrus.New())
	sender.baseURL = server.URL

	result := sender.SendOTP(context.Background(), "+15551234567", "654321", 5*time.Minute)

	assert.False(t, result.Delivered)
	assert.Error(t, result.Err)
}

func TestSMTPSender_SendOTP(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	sender := NewSMTPSender(config.SMTPConfig{
		Provider:    "smtp",
		Host:        "mail.example.com",
		Port:        587,
		Username:    "mailer",
		Password:    "secret",
		FromAddress: "noreply@example.com",
		FromName:    "Copy Trading Platform",
	}, zaplogrus.New())
	sender.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	result := sender.SendOTP(context.Background(), "user@example.com", "987654", 5*time.Minute)

	assert.True(t, result.Delivered)
	assert.NoError(t, result.Err)
	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"user@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "987654")
	assert.Contains(t, string(gotMsg), "Subject: Your verification code")
	assert.Contains(t, string(gotMsg), "text/html")
}

func TestSMTPSender_SendFailureIsReported(t *testing.T) {
	sender := NewSMTPSender(config.SMTPConfig{
		Host:        "mail.example.com",
		Port:        587,
		FromAddress: "noreply@example.com",
	}, zaplogrus.New())
	sender.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return assert.AnError
	}

	result := sender.SendOTP(context.Background(), "user@example.com", "987654", 5*time.Minute)
	assert.False(t, result.Delivered)
	assert.Error(t, result.Err)

	err := sender.SendWelcome(context.Background(), "user@example.com", "Jane")
	assert.Error(t, err)
}

func TestSMTPSender_LifecycleMail(t *testing.T) {
	var subjects []string

	sender := NewSMTPSender(config.SMTPConfig{
		Host:        "mail.example.com",
		Port:        587,
		FromAddress: "noreply@example.com",
	}, zaplogrus.New())
	sender.sendMail = func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		for _, line := range strings.Split(string(msg), "\r\n") {
			if strings.HasPrefix(line, "Subject: ") {
				subjects = append(subjects, strings.TrimPrefix(line, "Subject: "))
			}
		}
		return nil
	}

	require.NoError(t, sender.SendWelcome(context.Background(), "user@example.com", "Jane"))
	require.NoError(t, sender.SendIBProofReceived(context.Background(), "user@example.com", "Jane"))

	assert.Len(t, subjects, 2)
	assert.Contains(t, subjects[0], "Welcome")
	assert.Contains(t, subjects[1], "IB proof")
}
