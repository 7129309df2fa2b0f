// Package utils holds small helpers shared across handlers and services.
package utils

import (
	"regexp"
	"strings"
)

// MaskingConfig configures how sensitive data should be masked.
type MaskingConfig struct {
	// ShowFirst determines how many characters to show at the start
	ShowFirst int
	// ShowLast determines how many characters to show at the end
	ShowLast int
	// MaskChar is the character used for masking (default: '*')
	MaskChar rune
	// MinLength is the minimum length below which the entire string is masked
	MinLength int
}

// DefaultMaskingConfig provides secure defaults for masking.
var DefaultMaskingConfig = MaskingConfig{
	ShowFirst: 4,
	ShowLast:  4,
	MaskChar:  '*',
	MinLength: 12,
}

// MaskString masks a string, showing only first and last N characters.
// If the string is shorter than MinLength, it's fully masked.
func MaskString(s string, config MaskingConfig) string {
	if s == "" {
		return ""
	}

	if len(s) < config.MinLength {
		return strings.Repeat(string(config.MaskChar), len(s))
	}

	if config.ShowFirst+config.ShowLast >= len(s) {
		return strings.Repeat(string(config.MaskChar), len(s))
	}

	first := s[:config.ShowFirst]
	last := s[len(s)-config.ShowLast:]
	middleLen := len(s) - config.ShowFirst - config.ShowLast

	return first + strings.Repeat(string(config.MaskChar), middleLen) + last
}

// MaskSecret masks a secret (shows less for higher security).
func MaskSecret(secret string) string {
	config := MaskingConfig{
		ShowFirst: 2,
		ShowLast:  2,
		MaskChar:  '*',
		MinLength: 8,
	}
	return MaskString(secret, config)
}

// MaskPassword fully masks a password with fixed length to avoid leaking info.
func MaskPassword(password string) string {
	if password == "" {
		return ""
	}
	return "********"
}

// MaskConnectionString masks sensitive data in database connection strings.
func MaskConnectionString(connStr string) string {
	passwordPattern := regexp.MustCompile(`(postgres(?:ql)?://[^:]+:)([^@]+)(@)`)
	connStr = passwordPattern.ReplaceAllString(connStr, "${1}***${3}")

	redisPattern := regexp.MustCompile(`(redis://)([^:]+:)([^@]+)(@)`)
	connStr = redisPattern.ReplaceAllString(connStr, "${1}${2}***${4}")

	return connStr
}

// MaskEmail masks an email address, showing only domain and first 2 chars of local part.
func MaskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return MaskString(email, MaskingConfig{ShowFirst: 2, ShowLast: 0, MaskChar: '*', MinLength: 4})
	}

	local := parts[0]
	domain := parts[1]

	if len(local) <= 2 {
		return "**@" + domain
	}

	return local[:2] + strings.Repeat("*", len(local)-2) + "@" + domain
}

// MaskPhone masks a phone number, showing only last 4 digits.
func MaskPhone(phone string) string {
	digits := regexp.MustCompile(`\D`).ReplaceAllString(phone, "")
	if len(digits) < 4 {
		return strings.Repeat("*", len(phone))
	}

	masked := strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]

	// Preserve original formatting if possible
	if len(phone) > len(digits) {
		result := ""
		digitIdx := 0
		for _, char := range phone {
			if char >= '0' && char <= '9' {
				if digitIdx < len(digits)-4 {
					result += "*"
				} else {
					result += string(char)
				}
				digitIdx++
			} else {
				result += string(char)
			}
		}
		return result
	}

	return masked
}

// MaskDestination masks either a phone number or an email, depending on shape.
func MaskDestination(destination string) string {
	if strings.Contains(destination, "@") {
		return MaskEmail(destination)
	}
	return MaskPhone(destination)
}
