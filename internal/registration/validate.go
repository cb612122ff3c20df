package registration

import (
	"context"
	"errors"
	"fmt"

	"github.com/enrolld/server/internal/model"
	"github.com/enrolld/server/internal/repo"
	"github.com/google/uuid"
)

// validateDevice confirms the device exists, is active, and carries no active
// block. It runs before any token creation or lookup in every flow. The
// returned device is needed downstream for its fingerprint.
func (s *Service) validateDevice(ctx context.Context, deviceID uuid.UUID) (model.Device, error) {
	device, err := s.store.Devices().GetByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Device{}, newError(KindDeviceInvalid, "unknown device")
		}
		return model.Device{}, fmt.Errorf("load device: %w", err)
	}
	if !device.Active {
		return model.Device{}, newError(KindDeviceInvalid, "device is not active")
	}

	blocked, err := s.isBlocked(ctx, model.ScopeDevice, deviceID.String())
	if err != nil {
		return model.Device{}, err
	}
	if blocked {
		return model.Device{}, newError(KindDeviceBlocked, "device is blocked")
	}
	return device, nil
}

// checkBlocks rejects the operation if phone or email carries an active
// block. Device blocks are handled by validateDevice.
func (s *Service) checkBlocks(ctx context.Context, deviceID uuid.UUID, phone, email string) error {
	blocked, err := s.isBlocked(ctx, model.ScopePhone, phone)
	if err != nil {
		return err
	}
	if blocked {
		return newError(KindPhoneBlocked, "phone number is blocked")
	}

	blocked, err = s.isBlocked(ctx, model.ScopeEmail, email)
	if err != nil {
		return err
	}
	if blocked {
		return newError(KindEmailBlocked, "email address is blocked")
	}
	return nil
}

// isBlocked is the blocklist checker: a pure read, the caller decides how to
// react.
func (s *Service) isBlocked(ctx context.Context, scope model.BlockScope, value string) (bool, error) {
	block, err := s.store.Blocks().FindActive(ctx, scope, value, s.now())
	if err != nil {
		return false, fmt.Errorf("check %s block: %w", scope, err)
	}
	return block != nil, nil
}
