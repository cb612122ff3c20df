package model

import (
	"time"

	"github.com/google/uuid"
)

// Customer represents a registering or registered customer. IsActive stays
// false from creation until the activation transaction flips it exactly once.
type Customer struct {
	ID           uuid.UUID
	PhoneNumber  string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	IsActive     bool
	Role         string
	DeviceID     uuid.UUID
	CreatedAt    time.Time
}

// Device represents a device a registration flow is bound to. Created by the
// device-registration surface; read-only to the registration core.
type Device struct {
	ID          uuid.UUID
	CustomerID  *uuid.UUID
	Fingerprint string
	Active      bool
	LastUsedAt  *time.Time
	CreatedAt   time.Time
}

// Block disables further action for a scope/value pair. A block is active iff
// Active is true and ExpiresAt is nil or in the future.
type Block struct {
	ID        uuid.UUID
	Scope     BlockScope
	Value     string
	Active    bool
	ExpiresAt *time.Time
	Reason    string
	Source    string
	CreatedAt time.Time
}

// RegistrationToken is one OTP token's row. Exactly one pending token is the
// active token per (phone, email, device) tuple; resend rotates the row in
// place rather than inserting a second one.
type RegistrationToken struct {
	ID          uuid.UUID
	PhoneNumber string
	Email       string
	TokenHash   string
	TokenType   string
	DeviceID    uuid.UUID
	Fingerprint string
	IP          *string
	Status      TokenStatus
	Attempts    int
	MaxAttempts int
	ExpiresAt   time.Time
	VerifiedAt  *time.Time
	CreatedAt   time.Time
}

// Expired reports whether the token's lifetime has elapsed at the given time.
func (t RegistrationToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Account is the default account created inside the activation transaction.
type Account struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID
	AccountType string
	Plan        string
	CreatedAt   time.Time
}

// RegistrationAttempt is an append-only audit row; never mutated and never
// consulted for control flow.
type RegistrationAttempt struct {
	ID          uuid.UUID
	PhoneNumber string
	Email       string
	IP          *string
	DeviceID    uuid.UUID
	Action      AttemptAction
	Result      AttemptResult
	Reason      string
	CreatedAt   time.Time
}

// SmsEvent records one outbound notification attempt. Audit only.
type SmsEvent struct {
	ID          uuid.UUID
	PhoneNumber string
	Direction   string
	Status      string
	Message     string
	DeviceID    uuid.UUID
	CreatedAt   time.Time
}
