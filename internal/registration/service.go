package registration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/enrolld/server/internal/model"
	"github.com/enrolld/server/internal/otp"
	"github.com/enrolld/server/internal/repo"
	"github.com/google/uuid"
)

// Dispatcher delivers an OTP code over SMS and email. A dispatch must succeed
// before any database state is written for the request.
type Dispatcher interface {
	Dispatch(ctx context.Context, phone, email, code string) error
}

// CredentialIssuer mints an access credential for an activated customer.
type CredentialIssuer interface {
	IssueAccessToken(customerID uuid.UUID, phone string) (token string, expiresIn time.Duration, err error)
}

// PasswordHasher hashes the registration password for storage.
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// Policy carries the fixed design constants of the OTP lifecycle. They are
// configuration, not literals, but the defaults are part of the contract.
type Policy struct {
	OTPTTL         time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
	DevMode        bool
}

// DefaultPolicy returns the standard lifecycle constants.
func DefaultPolicy() Policy {
	return Policy{
		OTPTTL:         5 * time.Minute,
		ResendCooldown: 2 * time.Minute,
		MaxAttempts:    3,
	}
}

// Service implements the registration OTP lifecycle: token issuance,
// cooldown-gated resend, bounded verification, auto-blocking, and atomic
// customer activation. All bookkeeping lives in the store; the service holds
// no cross-request state.
type Service struct {
	store      repo.Store
	dispatcher Dispatcher
	hasher     *otp.Hasher
	issuer     CredentialIssuer
	passwords  PasswordHasher
	policy     Policy

	now func() time.Time
}

// NewService creates a new registration service
func NewService(
	store repo.Store,
	dispatcher Dispatcher,
	hasher *otp.Hasher,
	issuer CredentialIssuer,
	passwords PasswordHasher,
	policy Policy,
) *Service {
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		hasher:     hasher,
		issuer:     issuer,
		passwords:  passwords,
		policy:     policy,
		now:        time.Now,
	}
}

// StartRequest is the input to Start.
type StartRequest struct {
	PhoneNumber string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	DeviceID    uuid.UUID
	IP          string
}

// StartResult is the outcome of a successful registration start. PlainCode is
// only populated in dev mode.
type StartResult struct {
	CustomerID uuid.UUID
	ExpiresAt  time.Time
	PlainCode  string
}

// Start runs the token creation path: gatekeeping, code generation, dispatch,
// then one transaction creating the audit row, the pending token, the sms
// event, and the inactive customer. A live pending token for the same tuple
// is a conflict; an expired one is replaced along with its inactive customer.
// No session is issued; the customer stays inactive until verification.
func (s *Service) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	if req.PhoneNumber == "" || req.Email == "" || req.Password == "" || req.DeviceID == uuid.Nil {
		return StartResult{}, newError(KindValidation, "phone_number, email, password and device_id are required")
	}

	device, err := s.validateDevice(ctx, req.DeviceID)
	if err != nil {
		return StartResult{}, err
	}
	if err := s.checkBlocks(ctx, req.DeviceID, req.PhoneNumber, req.Email); err != nil {
		return StartResult{}, err
	}

	// One pending token per (phone, email, device). A live one means this
	// registration is mid-flight: the caller wants the resend endpoint, not a
	// second code. An expired one was abandoned; its row and the inactive
	// customer it created are replaced below.
	now := s.now()
	staleTokenID := uuid.Nil
	pending, err := s.store.Tokens().FindLatestPending(ctx, req.PhoneNumber, req.Email, req.DeviceID)
	switch {
	case err == nil:
		if !pending.Expired(now) {
			return StartResult{}, newError(KindRegistrationPending, "a verification code is already pending for this registration")
		}
		staleTokenID = pending.ID
	case errors.Is(err, repo.ErrNotFound):
	default:
		return StartResult{}, fmt.Errorf("load pending token: %w", err)
	}

	code, err := otp.GenerateCode()
	if err != nil {
		return StartResult{}, fmt.Errorf("generate code: %w", err)
	}
	tokenHash := s.hasher.Hash(req.PhoneNumber, code)

	// Dispatch before any DB write: a failed send must leave zero rows behind.
	message := otpMessage(code)
	if err := s.dispatcher.Dispatch(ctx, req.PhoneNumber, req.Email, code); err != nil {
		return StartResult{}, wrapError(KindNotificationFailed, "failed to deliver verification code", err)
	}

	passwordHash, err := s.passwords.Hash(req.Password)
	if err != nil {
		return StartResult{}, fmt.Errorf("hash password: %w", err)
	}

	expiresAt := now.Add(s.policy.OTPTTL)
	var customerID uuid.UUID
	ip := nullable(req.IP)

	err = s.store.WithinTx(ctx, func(tx repo.Store) error {
		if staleTokenID != uuid.Nil {
			if err := tx.Tokens().Delete(ctx, staleTokenID); err != nil {
				return err
			}
			if err := tx.Customers().DeleteInactive(ctx, req.PhoneNumber, req.Email, device.ID); err != nil {
				return err
			}
		}

		attempt := &model.RegistrationAttempt{
			PhoneNumber: req.PhoneNumber,
			Email:       req.Email,
			IP:          ip,
			DeviceID:    device.ID,
			Action:      model.ActionSendToken,
			Result:      model.ResultInitiated,
		}
		if err := tx.Attempts().Create(ctx, attempt); err != nil {
			return err
		}

		token := &model.RegistrationToken{
			PhoneNumber: req.PhoneNumber,
			Email:       req.Email,
			TokenHash:   tokenHash,
			TokenType:   model.TokenTypeRegistration,
			DeviceID:    device.ID,
			Fingerprint: device.Fingerprint,
			IP:          ip,
			Status:      model.TokenPending,
			Attempts:    0,
			MaxAttempts: s.policy.MaxAttempts,
			ExpiresAt:   expiresAt,
		}
		if err := tx.Tokens().Create(ctx, token); err != nil {
			return err
		}

		event := &model.SmsEvent{
			PhoneNumber: req.PhoneNumber,
			Direction:   "outbound",
			Status:      "sent",
			Message:     message,
			DeviceID:    device.ID,
		}
		if err := tx.SmsEvents().Create(ctx, event); err != nil {
			return err
		}

		customer := &model.Customer{
			PhoneNumber:  req.PhoneNumber,
			Email:        req.Email,
			PasswordHash: passwordHash,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			IsActive:     false,
			Role:         model.RoleCustomer,
			DeviceID:     device.ID,
		}
		if err := tx.Customers().Create(ctx, customer); err != nil {
			return err
		}
		customerID = customer.ID
		return nil
	})
	if err != nil {
		return StartResult{}, wrapError(KindTransactionFailed, "registration could not be recorded", err)
	}

	if err := s.store.Devices().TouchLastUsed(ctx, device.ID, now); err != nil {
		log.Printf("touch device %s: %v", device.ID, err)
	}

	result := StartResult{CustomerID: customerID, ExpiresAt: expiresAt}
	if s.policy.DevMode {
		result.PlainCode = code
	}
	return result, nil
}

func otpMessage(code string) string {
	return fmt.Sprintf("Your verification code is %s", code)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
