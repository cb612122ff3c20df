package registration

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is the closed set of business failures the registration core can
// raise. Handlers switch on Kind; adding a case here is the only way to grow
// the taxonomy.
type Kind int

const (
	KindValidation Kind = iota
	KindDeviceInvalid
	KindDeviceBlocked
	KindPhoneBlocked
	KindEmailBlocked
	KindTokenNotFound
	KindTokenNotFoundOrExpired
	KindRegistrationPending
	KindCooldownActive
	KindTooManyAttempts
	KindInvalidOTP
	KindNotificationFailed
	KindTransactionFailed
)

// Code returns the machine-readable code for the kind.
func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindDeviceInvalid:
		return "device_invalid"
	case KindDeviceBlocked:
		return "device_blocked"
	case KindPhoneBlocked:
		return "phone_blocked"
	case KindEmailBlocked:
		return "email_blocked"
	case KindTokenNotFound:
		return "token_not_found"
	case KindTokenNotFoundOrExpired:
		return "token_not_found_or_expired"
	case KindRegistrationPending:
		return "registration_pending"
	case KindCooldownActive:
		return "cooldown_active"
	case KindTooManyAttempts:
		return "too_many_attempts"
	case KindInvalidOTP:
		return "invalid_otp"
	case KindNotificationFailed:
		return "notification_failed"
	case KindTransactionFailed:
		return "transaction_failed"
	}
	return "unknown"
}

// HTTPStatus returns the HTTP status equivalent for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindDeviceInvalid:
		return http.StatusUnprocessableEntity
	case KindDeviceBlocked, KindPhoneBlocked, KindEmailBlocked:
		return http.StatusForbidden
	case KindTokenNotFound, KindTokenNotFoundOrExpired:
		return http.StatusNotFound
	case KindRegistrationPending:
		return http.StatusConflict
	case KindCooldownActive, KindTooManyAttempts:
		return http.StatusTooManyRequests
	case KindInvalidOTP:
		return http.StatusUnauthorized
	case KindNotificationFailed:
		return http.StatusBadGateway
	case KindTransactionFailed:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// Error is a typed registration failure. RetryAfter is only set for
// KindCooldownActive.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Time
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// AsError unwraps err to a registration *Error if it carries one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}
