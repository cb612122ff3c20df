package registration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resendRequestFor(customerID, deviceID uuid.UUID) ResendRequest {
	return ResendRequest{
		CustomerID:  customerID,
		PhoneNumber: testPhone,
		Email:       testEmail,
		DeviceID:    deviceID,
	}
}

func TestResend_insideCooldownRejectsWithoutMutation(t *testing.T) {
	data := newFakeData()
	deviceID := data.addDevice(true)
	customer := data.addCustomer(testPhone, testEmail, deviceID)
	svc := newTestService(data, &fakeDispatcher{})

	now := time.Now()
	svc.now = func() time.Time { return now }

	createdAt := now.Add(-30 * time.Second)
	token := data.addPendingToken(testPhone, testEmail, deviceID, "original-hash", createdAt, svc.policy.OTPTTL, 3)
	originalExpiry := token.ExpiresAt

	_, err := svc.Resend(context.Background(), resendRequestFor(customer.ID, deviceID))
	requireKind(t, err, KindCooldownActive)

	e, _ := AsError(err)
	assert.True(t, e.RetryAfter.Equal(createdAt.Add(2*time.Minute)),
		"retry_after must be createdAt + cooldown, got %v", e.RetryAfter)

	// No state mutation.
	stored := data.tokens[token.ID]
	assert.Equal(t, "original-hash", stored.TokenHash)
	assert.Equal(t, 0, stored.Attempts)
	assert.True(t, stored.ExpiresAt.Equal(originalExpiry))
	assert.True(t, stored.CreatedAt.Equal(createdAt))
	assert.Empty(t, data.events)
}

func TestResend_afterCooldownRotatesInPlace(t *testing.T) {
	data := newFakeData()
	deviceID := data.addDevice(true)
	customer := data.addCustomer(testPhone, testEmail, deviceID)
	dispatcher := &fakeDispatcher{}
	svc := newTestService(data, dispatcher)

	now := time.Now()
	svc.now = func() time.Time { return now }

	createdAt := now.Add(-130 * time.Second)
	token := data.addPendingToken(testPhone, testEmail, deviceID, "original-hash", createdAt, svc.policy.OTPTTL, 3)
	token.Attempts = 2

	result, err := svc.Resend(context.Background(), resendRequestFor(customer.ID, deviceID))
	require.NoError(t, err)
	assert.True(t, result.IsNew)
	assert.True(t, result.ExpiresAt.Equal(now.Add(5*time.Minute)))

	// Same row, rotated fields.
	require.Len(t, data.tokens, 1, "rotation must not insert a second row")
	stored := data.tokens[token.ID]
	assert.NotEqual(t, "original-hash", stored.TokenHash)
	assert.Equal(t, 0, stored.Attempts, "attempts must reset on rotation")
	assert.True(t, stored.ExpiresAt.Equal(now.Add(5*time.Minute)))
	assert.True(t, stored.CreatedAt.Equal(now), "cooldown clock restarts at rotation")

	// The new code verifies against the rotated hash; the old one cannot.
	assert.True(t, svc.hasher.Verify(testPhone, dispatcher.lastCode, stored.TokenHash))

	require.Len(t, data.events, 1)
	assert.Equal(t, "sent", data.events[0].Status)
}

func TestResend_noPendingToken(t *testing.T) {
	data := newFakeData()
	deviceID := data.addDevice(true)
	customer := data.addCustomer(testPhone, testEmail, deviceID)
	svc := newTestService(data, &fakeDispatcher{})

	_, err := svc.Resend(context.Background(), resendRequestFor(customer.ID, deviceID))
	requireKind(t, err, KindTokenNotFound)
}

func TestResend_dispatchFailureLeavesTokenUntouched(t *testing.T) {
	data := newFakeData()
	deviceID := data.addDevice(true)
	customer := data.addCustomer(testPhone, testEmail, deviceID)
	svc := newTestService(data, &fakeDispatcher{err: errors.New("provider down")})

	now := time.Now()
	svc.now = func() time.Time { return now }

	createdAt := now.Add(-3 * time.Minute)
	token := data.addPendingToken(testPhone, testEmail, deviceID, "original-hash", createdAt, svc.policy.OTPTTL, 3)

	_, err := svc.Resend(context.Background(), resendRequestFor(customer.ID, deviceID))
	requireKind(t, err, KindNotificationFailed)

	stored := data.tokens[token.ID]
	assert.Equal(t, "original-hash", stored.TokenHash)
	assert.True(t, stored.CreatedAt.Equal(createdAt))
	assert.Empty(t, data.events)
}

func TestResend_missingInput(t *testing.T) {
	data := newFakeData()
	deviceID := data.addDevice(true)
	svc := newTestService(data, &fakeDispatcher{})

	req := resendRequestFor(uuid.New(), deviceID)
	req.PhoneNumber = ""
	_, err := svc.Resend(context.Background(), req)
	requireKind(t, err, KindValidation)

	_, err = svc.Resend(context.Background(), resendRequestFor(uuid.Nil, deviceID))
	requireKind(t, err, KindValidation)
}
