package services

import (
	"context"
	"fmt"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"github.com/copyarc/signup-api/internal/config"
	zaplogrus "github.com/copyarc/signup-api/internal/logging/zaplogrus"
	"github.com/copyarc/signup-api/internal/utils"
)

// DeliveryResult reports a send attempt. A failed attempt never fails the
// issuing request; the code stays valid and the error travels back as a
// diagnostic string.
type DeliveryResult struct {
	Delivered bool
	Provider  string
	// Echo signals that the code should be returned to the API caller
	// instead of (or in addition to) real delivery.
	Echo bool
	Err  error
}

// SMSSender delivers one-time codes to mobile numbers.
type SMSSender interface {
	SendOTP(ctx context.Context, mobile, code string, ttl time.Duration) DeliveryResult
}

// EmailSender delivers one-time codes and lifecycle mail to email addresses.
type EmailSender interface {
	SendOTP(ctx context.Context, email, code string, ttl time.Duration) DeliveryResult
	SendWelcome(ctx context.Context, email, name string) error
	SendIBProofReceived(ctx context.Context, email, name string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}

// NewSMSSender selects an SMS implementation from config.
func NewSMSSender(cfg config.SMSConfig, logger *zaplogrus.Logger) SMSSender {
	if cfg.Provider == "twilio" {
		return NewTwilioSender(cfg, logger)
	}
	return NewDemoSMSSender(logger)
}

// NewEmailSender selects an email implementation from config.
func NewEmailSender(cfg config.SMTPConfig, logger *zaplogrus.Logger) EmailSender {
	if cfg.Provider == "smtp" {
		return NewSMTPSender(cfg, logger)
	}
	return NewDemoEmailSender(logger)
}

// DemoSMSSender never contacts a transport; it logs the code and asks the
// caller to echo it in the response.
type DemoSMSSender struct {
	logger *zaplogrus.Entry
}

func NewDemoSMSSender(logger *zaplogrus.Logger) *DemoSMSSender {
	return &DemoSMSSender{logger: logger.WithComponent("sms_demo")}
}

func (s *DemoSMSSender) SendOTP(_ context.Context, mobile, code string, ttl time.Duration) DeliveryResult {
	s.logger.WithFields(zaplogrus.Fields{
		"mobile":     utils.MaskPhone(mobile),
		"expires_in": ttl.String(),
	}).Info("Demo SMS code issued")
	_ = code
	return DeliveryResult{Delivered: true, Provider: "demo", Echo: true}
}

// TwilioSender delivers codes through the Twilio Messages REST API.
type TwilioSender struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	client     *http.Client
	logger     *zaplogrus.Entry
}

func NewTwilioSender(cfg config.SMSConfig, logger *zaplogrus.Logger) *TwilioSender {
	return &TwilioSender{
		accountSID: cfg.TwilioAccountSID,
		authToken:  cfg.TwilioAuthToken,
		fromNumber: cfg.TwilioFromNumber,
		baseURL:    "https://api.twilio.com",
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     logger.WithComponent("sms_twilio"),
	}
}

func (s *TwilioSender) SendOTP(ctx context.Context, mobile, code string, ttl time.Duration) DeliveryResult {
	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		code, int(ttl.Minutes()))

	form := url.Values{}
	form.Set("To", mobile)
	form.Set("From", s.fromNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return DeliveryResult{Provider: "twilio", Err: fmt.Errorf("failed to build twilio request: %w", err)}
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.WithError(err).WithField("mobile", utils.MaskPhone(mobile)).Warn("Twilio request failed")
		return DeliveryResult{Provider: "twilio", Err: fmt.Errorf("twilio request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("twilio returned status %d", resp.StatusCode)
		s.logger.WithError(err).WithField("mobile", utils.MaskPhone(mobile)).Warn("Twilio rejected message")
		return DeliveryResult{Provider: "twilio", Err: err}
	}

	s.logger.WithField("mobile", utils.MaskPhone(mobile)).Info("SMS code delivered")
	return DeliveryResult{Delivered: true, Provider: "twilio"}
}

// DemoEmailSender logs instead of sending, echoing the code to the caller.
type DemoEmailSender struct {
	logger *zaplogrus.Entry
}

func NewDemoEmailSender(logger *zaplogrus.Logger) *DemoEmailSender {
	return &DemoEmailSender{logger: logger.WithComponent("email_demo")}
}

func (s *DemoEmailSender) SendOTP(_ context.Context, email, code string, ttl time.Duration) DeliveryResult {
	s.logger.WithFields(zaplogrus.Fields{
		"email":      utils.MaskEmail(email),
		"expires_in": ttl.String(),
	}).Info("Demo email code issued")
	_ = code
	return DeliveryResult{Delivered: true, Provider: "demo", Echo: true}
}

func (s *DemoEmailSender) SendWelcome(_ context.Context, email, name string) error {
	s.logger.WithFields(zaplogrus.Fields{
		"email": utils.MaskEmail(email),
		"name":  name,
	}).Info("Demo welcome email")
	return nil
}

func (s *DemoEmailSender) SendIBProofReceived(_ context.Context, email, name string) error {
	s.logger.WithFields(zaplogrus.Fields{
		"email": utils.MaskEmail(email),
		"name":  name,
	}).Info("Demo IB proof received email")
	return nil
}

func (s *DemoEmailSender) SendPasswordReset(_ context.Context, email, token string) error {
	s.logger.WithField("email", utils.MaskEmail(email)).Info("Demo password reset email")
	_ = token
	return nil
}

// SMTPSender delivers mail over authenticated SMTP.
type SMTPSender struct {
	host        string
	port        int
	username    string
	password    string
	fromAddress string
	fromName    string
	logger      *zaplogrus.Entry

	// sendMail is swapped out in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg config.SMTPConfig, logger *zaplogrus.Logger) *SMTPSender {
	return &SMTPSender{
		host:        cfg.Host,
		port:        cfg.Port,
		username:    cfg.Username,
		password:    cfg.Password,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		logger:      logger.WithComponent("email_smtp"),
		sendMail:    smtp.SendMail,
	}
}

func (s *SMTPSender) SendOTP(ctx context.Context, email, code string, ttl time.Duration) DeliveryResult {
	subject := "Your verification code"
	body := fmt.Sprintf(`<html><body>
<p>Your verification code is:</p>
<h2>%s</h2>
<p>This code expires in %d minutes. If you did not request it, ignore this email.</p>
</body></html>`, code, int(ttl.Minutes()))

	if err := s.send(ctx, email, subject, body); err != nil {
		s.logger.WithError(err).WithField("email", utils.MaskEmail(email)).Warn("SMTP send failed")
		return DeliveryResult{Provider: "smtp", Err: err}
	}

	s.logger.WithField("email", utils.MaskEmail(email)).Info("Email code delivered")
	return DeliveryResult{Delivered: true, Provider: "smtp"}
}

func (s *SMTPSender) SendWelcome(ctx context.Context, email, name string) error {
	subject := "Welcome to the copy trading platform"
	body := fmt.Sprintf(`<html><body>
<p>Hello %s,</p>
<p>Your account has been verified and activated. You can now sign in and complete
your broker setup.</p>
</body></html>`, name)
	return s.send(ctx, email, subject, body)
}

func (s *SMTPSender) SendIBProofReceived(ctx context.Context, email, name string) error {
	subject := "IB proof received"
	body := fmt.Sprintf(`<html><body>
<p>Hello %s,</p>
<p>We received your IB proof upload. Our team will review it and update your
account status shortly.</p>
</body></html>`, name)
	return s.send(ctx, email, subject, body)
}

func (s *SMTPSender) SendPasswordReset(ctx context.Context, email, token string) error {
	subject := "Password reset request"
	body := fmt.Sprintf(`<html><body>
<p>A password reset was requested for your account.</p>
<p>Your reset token is:</p>
<h2>%s</h2>
<p>The token expires in 30 minutes. If you did not request a reset, ignore this
email.</p>
</body></html>`, token)
	return s.send(ctx, email, subject, body)
}

func (s *SMTPSender) send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	from := s.fromAddress
	headers := []string{
		fmt.Sprintf("From: %s <%s>", s.fromName, from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
	}
	msg := strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	if err := s.sendMail(addr, auth, from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}
