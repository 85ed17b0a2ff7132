package auth

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

// Disposable mailbox providers rejected when blocking is enabled.
var disposableDomains = map[string]bool{
	"tempmail.com":      true,
	"10minutemail.com":  true,
	"guerrillamail.com": true,
	"mailinator.com":    true,
	"throwaway.email":   true,
	"yopmail.com":       true,
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

const maxEmailLength = 254 // RFC 5321

var errInvalidEmailFormat = errors.New("invalid email address format")

// ValidateEmail checks that email is a single bare address. The address
// becomes the administrator's identity provider username, so display-name
// forms such as "Jane <jane@acme.test>" are rejected. In strict mode the
// domain must also contain a dot.
func ValidateEmail(email string, strict bool, blockDisposable bool) error {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return errors.New("email address is required")
	}
	if len(normalized) > maxEmailLength {
		return fmt.Errorf("email address is too long (max %d characters)", maxEmailLength)
	}

	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Name != "" || addr.Address != normalized {
		return errInvalidEmailFormat
	}
	if strict && !emailRegex.MatchString(addr.Address) {
		return errInvalidEmailFormat
	}
	if blockDisposable && disposableDomains[emailDomain(addr.Address)] {
		return errors.New("disposable email addresses are not allowed")
	}
	return nil
}

// NormalizeEmail normalizes an email address by lowercasing and trimming.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func emailDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return ""
	}
	return email[at+1:]
}
