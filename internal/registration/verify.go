package registration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/enrolld/server/internal/model"
	"github.com/enrolld/server/internal/repo"
	"github.com/google/uuid"
)

// VerifyRequest is the input to Verify.
type VerifyRequest struct {
	CustomerID  uuid.UUID
	PhoneNumber string
	Email       string
	OTP         string
	DeviceID    uuid.UUID
	IP          string
}

// VerifyResult is the outcome of a successful verification: the customer is
// active and holds an access credential.
type VerifyResult struct {
	CustomerID  uuid.UUID
	AccessToken string
	ExpiresIn   time.Duration
}

// Verify checks a submitted code against the active token. Failed attempts
// are counted durably even though the request fails; reaching the attempt
// limit blocks the device. A correct code runs the activation transaction:
// token verified, customer activated, default account created, and the
// success audit row written, all or nothing.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	if req.CustomerID == uuid.Nil || req.PhoneNumber == "" || req.Email == "" || req.OTP == "" || req.DeviceID == uuid.Nil {
		return VerifyResult{}, newError(KindValidation, "customer_id, phone_number, email, otp and device_id are required")
	}

	device, err := s.validateDevice(ctx, req.DeviceID)
	if err != nil {
		return VerifyResult{}, err
	}
	if err := s.checkBlocks(ctx, req.DeviceID, req.PhoneNumber, req.Email); err != nil {
		return VerifyResult{}, err
	}

	now := s.now()
	token, err := s.store.Tokens().FindActive(ctx, req.PhoneNumber, req.Email, req.DeviceID, now)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return VerifyResult{}, newError(KindTokenNotFoundOrExpired, "no active registration token")
		}
		return VerifyResult{}, fmt.Errorf("load token: %w", err)
	}

	// The limit check precedes the hash comparison: a request arriving after
	// the limit was reached is rejected without consuming another slot.
	if token.Attempts >= token.MaxAttempts {
		if err := s.blockDevice(ctx, req.DeviceID); err != nil {
			return VerifyResult{}, err
		}
		return VerifyResult{}, newError(KindTooManyAttempts, "verification attempt limit exceeded")
	}

	if !s.hasher.Verify(req.PhoneNumber, req.OTP, token.TokenHash) {
		return VerifyResult{}, s.recordFailedAttempt(ctx, req, token)
	}

	customer, err := s.store.Customers().GetByID(ctx, req.CustomerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return VerifyResult{}, newError(KindValidation, "unknown customer")
		}
		return VerifyResult{}, fmt.Errorf("load customer: %w", err)
	}
	// The customer must be the one this token was issued for. Without this
	// check a valid OTP for one registration could activate, and obtain a
	// credential for, any other inactive customer.
	if customer.PhoneNumber != req.PhoneNumber || customer.Email != req.Email || customer.DeviceID != device.ID {
		return VerifyResult{}, newError(KindValidation, "customer does not match this registration")
	}

	err = s.store.WithinTx(ctx, func(tx repo.Store) error {
		// Row lock so two concurrent verifies serialize here; the loser sees
		// a token that is no longer pending and aborts.
		locked, err := tx.Tokens().LockByID(ctx, token.ID)
		if err != nil {
			return err
		}
		if locked.Status != model.TokenPending || locked.VerifiedAt != nil || locked.Expired(now) {
			return newError(KindTokenNotFoundOrExpired, "token was consumed concurrently")
		}
		if _, err := locked.Status.Transition(model.TokenVerified); err != nil {
			return err
		}
		if err := tx.Tokens().MarkVerified(ctx, locked.ID, now); err != nil {
			return err
		}
		if err := tx.Customers().Activate(ctx, customer.ID); err != nil {
			return err
		}
		account := &model.Account{
			CustomerID:  customer.ID,
			AccountType: model.AccountTypeEveryday,
			Plan:        model.PlanBasic,
		}
		if err := tx.Accounts().Create(ctx, account); err != nil {
			return err
		}
		attempt := &model.RegistrationAttempt{
			PhoneNumber: req.PhoneNumber,
			Email:       req.Email,
			IP:          nullable(req.IP),
			DeviceID:    req.DeviceID,
			Action:      model.ActionVerifyOTP,
			Result:      model.ResultSuccess,
		}
		return tx.Attempts().Create(ctx, attempt)
	})
	if err != nil {
		if e, ok := AsError(err); ok {
			return VerifyResult{}, e
		}
		// The customer must remain inactive and the token unverified here;
		// the rollback guarantees it.
		return VerifyResult{}, wrapError(KindTransactionFailed, "activation could not be committed", err)
	}

	accessToken, expiresIn, err := s.issuer.IssueAccessToken(customer.ID, customer.PhoneNumber)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("issue access token: %w", err)
	}

	if err := s.store.Devices().TouchLastUsed(ctx, device.ID, now); err != nil {
		log.Printf("touch device %s: %v", device.ID, err)
	}

	return VerifyResult{
		CustomerID:  customer.ID,
		AccessToken: accessToken,
		ExpiresIn:   expiresIn,
	}, nil
}

// recordFailedAttempt increments the durable attempt counter and writes the
// audit row. The increment persists even though the request fails; hitting
// the limit on this attempt blocks the device immediately.
func (s *Service) recordFailedAttempt(ctx context.Context, req VerifyRequest, token model.RegistrationToken) error {
	newCount, err := s.store.Tokens().IncrementAttempts(ctx, token.ID)
	if err != nil {
		return fmt.Errorf("increment attempts: %w", err)
	}

	attempt := &model.RegistrationAttempt{
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		IP:          nullable(req.IP),
		DeviceID:    req.DeviceID,
		Action:      model.ActionVerifyOTP,
		Result:      model.ResultFailed,
		Reason:      "Invalid OTP",
	}
	if err := s.store.Attempts().Create(ctx, attempt); err != nil {
		log.Printf("record failed attempt: %v", err)
	}

	if newCount >= token.MaxAttempts {
		if err := s.blockDevice(ctx, req.DeviceID); err != nil {
			return err
		}
		return newError(KindTooManyAttempts, "verification attempt limit exceeded")
	}
	return newError(KindInvalidOTP, "invalid verification code")
}

func (s *Service) blockDevice(ctx context.Context, deviceID uuid.UUID) error {
	block := &model.Block{
		Scope:  model.ScopeDevice,
		Value:  deviceID.String(),
		Active: true,
		Reason: "OTP max attempts exceeded",
		Source: "verification_engine",
	}
	if err := s.store.Blocks().Create(ctx, block); err != nil {
		return fmt.Errorf("create device block: %w", err)
	}
	return nil
}
