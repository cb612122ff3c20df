package model

import "fmt"

// TokenStatus is the explicit lifecycle state of a RegistrationToken. Expiry
// and blocking are not statuses of their own: an expired token simply stops
// matching active-token lookups, and a blocked device gates entry to every
// flow before the token is ever read.
type TokenStatus string

const (
	TokenPending   TokenStatus = "pending"
	TokenVerified  TokenStatus = "verified"
	TokenCompleted TokenStatus = "completed"
)

// Valid reports whether s is a known status value.
func (s TokenStatus) Valid() bool {
	switch s {
	case TokenPending, TokenVerified, TokenCompleted:
		return true
	}
	return false
}

// Transition validates a status change and returns the new status. It is the
// single place legal moves are defined: pending may become verified, verified
// may become completed, and both terminal states reject everything else.
// Rotation on resend is pending -> pending (same row, fields reset).
func (s TokenStatus) Transition(to TokenStatus) (TokenStatus, error) {
	if !to.Valid() {
		return s, fmt.Errorf("unknown token status %q", to)
	}
	switch s {
	case TokenPending:
		if to == TokenPending || to == TokenVerified {
			return to, nil
		}
	case TokenVerified:
		if to == TokenCompleted {
			return to, nil
		}
	}
	return s, fmt.Errorf("illegal token transition %q -> %q", s, to)
}

// BlockScope identifies what kind of value a block applies to.
type BlockScope string

const (
	ScopeDevice BlockScope = "device"
	ScopePhone  BlockScope = "phone"
	ScopeEmail  BlockScope = "email"
)

// AttemptAction is the audited action of a RegistrationAttempt row.
type AttemptAction string

const (
	ActionSendToken AttemptAction = "send_token"
	ActionVerifyOTP AttemptAction = "verify_otp"
)

// Defaults for rows created by the registration flow.
const (
	AccountTypeEveryday   = "EVERYDAY"
	PlanBasic             = "BASIC"
	RoleCustomer          = "customer"
	TokenTypeRegistration = "registration"
)

// AttemptResult is the audited outcome of a RegistrationAttempt row.
type AttemptResult string

const (
	ResultInitiated AttemptResult = "initiated"
	ResultSuccess   AttemptResult = "success"
	ResultFailed    AttemptResult = "failed"
)
