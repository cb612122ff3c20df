package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/enrolld/server/internal/model"
	"github.com/enrolld/server/internal/otp"
	"github.com/enrolld/server/internal/repo"
	"github.com/google/uuid"
)

// ResendRequest is the input to Resend. All fields are required.
type ResendRequest struct {
	CustomerID  uuid.UUID
	PhoneNumber string
	Email       string
	DeviceID    uuid.UUID
	IP          string
}

// ResendResult reports a rotated token. PlainCode is only populated in dev
// mode.
type ResendResult struct {
	IsNew     bool
	ExpiresAt time.Time
	PlainCode string
}

// Resend rotates the pending token if the cooldown has elapsed. The cooldown
// is measured from the current token's creation time, not from its expiry, so
// resend frequency is throttled independently of the OTP lifetime. Inside the
// cooldown the request fails with the retry time and no state changes; after
// it, a fresh code is dispatched first and only then is the same token row
// rotated in place.
func (s *Service) Resend(ctx context.Context, req ResendRequest) (ResendResult, error) {
	if req.CustomerID == uuid.Nil || req.PhoneNumber == "" || req.Email == "" || req.DeviceID == uuid.Nil {
		return ResendResult{}, newError(KindValidation, "customer_id, phone_number, email and device_id are required")
	}

	device, err := s.validateDevice(ctx, req.DeviceID)
	if err != nil {
		return ResendResult{}, err
	}
	if err := s.checkBlocks(ctx, req.DeviceID, req.PhoneNumber, req.Email); err != nil {
		return ResendResult{}, err
	}

	token, err := s.store.Tokens().FindLatestPending(ctx, req.PhoneNumber, req.Email, req.DeviceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ResendResult{}, newError(KindTokenNotFound, "no pending registration token")
		}
		return ResendResult{}, fmt.Errorf("load token: %w", err)
	}

	now := s.now()
	if elapsed := now.Sub(token.CreatedAt); elapsed < s.policy.ResendCooldown {
		e := newError(KindCooldownActive, "resend cooldown is active")
		e.RetryAfter = token.CreatedAt.Add(s.policy.ResendCooldown)
		return ResendResult{}, e
	}

	code, err := otp.GenerateCode()
	if err != nil {
		return ResendResult{}, fmt.Errorf("generate code: %w", err)
	}
	tokenHash := s.hasher.Hash(req.PhoneNumber, code)
	expiresAt := now.Add(s.policy.OTPTTL)

	// Dispatch first: a failed send must leave the existing token untouched.
	if err := s.dispatcher.Dispatch(ctx, req.PhoneNumber, req.Email, code); err != nil {
		return ResendResult{}, wrapError(KindNotificationFailed, "failed to deliver verification code", err)
	}

	err = s.store.WithinTx(ctx, func(tx repo.Store) error {
		if err := tx.Tokens().Rotate(ctx, token.ID, tokenHash, expiresAt, now); err != nil {
			return err
		}
		event := &model.SmsEvent{
			PhoneNumber: req.PhoneNumber,
			Direction:   "outbound",
			Status:      "sent",
			Message:     otpMessage(code),
			DeviceID:    device.ID,
		}
		return tx.SmsEvents().Create(ctx, event)
	})
	if err != nil {
		return ResendResult{}, wrapError(KindTransactionFailed, "token rotation could not be recorded", err)
	}

	result := ResendResult{IsNew: true, ExpiresAt: expiresAt}
	if s.policy.DevMode {
		result.PlainCode = code
	}
	return result, nil
}
