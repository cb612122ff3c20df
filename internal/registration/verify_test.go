package registration

import (
	"context"
	"testing"
	"time"

	"github.com/enrolld/server/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verifyRequestFor(customerID, deviceID uuid.UUID, code string) VerifyRequest {
	return VerifyRequest{
		CustomerID:  customerID,
		PhoneNumber: testPhone,
		Email:       testEmail,
		OTP:         code,
		DeviceID:    deviceID,
	}
}

// verifyFixture seeds a pending token whose code is known to the test.
func verifyFixture(t *testing.T, data *fakeData, svc *Service, createdAgo time.Duration) (customerID, deviceID uuid.UUID, token *model.RegistrationToken, code string) {
	t.Helper()
	deviceID = data.addDevice(true)
	customer := data.addCustomer(testPhone, testEmail, deviceID)
	code = "123456"
	hash := svc.hasher.Hash(testPhone, code)
	token = data.addPendingToken(testPhone, testEmail, deviceID, hash, time.Now().Add(-createdAgo), svc.policy.OTPTTL, svc.policy.MaxAttempts)
	return customer.ID, deviceID, token, code
}

func TestVerify_successActivatesAtomically(t *testing.T) {
	data := newFakeData()
	svc := newTestService(data, &fakeDispatcher{})
	customerID, _, token, code := verifyFixture(t, data, svc, 10*time.Second)

	before := time.Now()
	result, err := svc.Verify(context.Background(), verifyRequestFor(customerID, token.DeviceID, code))
	after := time.Now()
	require.NoError(t, err)

	assert.Equal(t, customerID, result.CustomerID)
	assert.NotEmpty(t, result.AccessToken)
	assert.Greater(t, result.ExpiresIn, time.Duration(0))

	// Token verified exactly once, inside the request window.
	stored := data.tokens[token.ID]
	assert.Equal(t, model.TokenVerified, stored.Status)
	require.NotNil(t, stored.VerifiedAt)
	assert.False(t, stored.VerifiedAt.Before(before.Add(-time.Second)))
	assert.False(t, stored.VerifiedAt.After(after.Add(time.Second)))

	// Customer active, exactly one default account.
	assert.True(t, data.customers[customerID].IsActive)
	require.Len(t, data.accounts, 1)
	assert.Equal(t, model.AccountTypeEveryday, data.accounts[0].AccountType)
	assert.Equal(t, model.PlanBasic, data.accounts[0].Plan)
	assert.Equal(t, customerID, data.accounts[0].CustomerID)

	// Success audit row.
	require.Len(t, data.attempts, 1)
	assert.Equal(t, model.ActionVerifyOTP, data.attempts[0].Action)
	assert.Equal(t, model.ResultSuccess, data.attempts[0].Result)
}

func TestVerify_secondAttemptAgainstVerifiedTokenFailsLookup(t *testing.T) {
	data := newFakeData()
	svc := newTestService(data, &fakeDispatcher{})
	customerID, deviceID, _, code := verifyFixture(t, data, svc, 10*time.Second)

	_, err := svc.Verify(context.Background(), verifyRequestFor(customerID, deviceID, code))
	require.NoError(t, err)

	// A verified token no longer matches the active-token lookup; the
	// second verify must not re-activate anything.
	_, err = svc.Verify(context.Background(), verifyRequestFor(customerID, deviceID, code))
	requireKind(t, err, KindTokenNotFoundOrExpired)
	assert.Len(t, data.accounts, 1, "activation must happen exactly once")
}

func TestVerify_wrongCodeIncrementsDurably(t *testing.T) {
	data := newFakeData()
	svc := newTestService(data, &fakeDispatcher{})
	customerID, deviceID, token, _ := verifyFixture(t, data, svc, 10*time.Second)

	_, err := svc.Verify(context.Background(), verifyRequestFor(customerID, deviceID, "000000"))
	requireKind(t, err, KindInvalidOTP)

	// The failed-attempt bookkeeping persists even though the request failed.
	assert.Equal(t, 1, data.tokens[token.ID].Attempts)
	require.Len(t, data.attempts, 1)
	assert.Equal(t, model.ResultFailed, data.attempts[0].Result)
	assert.Equal(t, "Invalid OTP", data.attempts[0].Reason)

	assert.False(t, data.customers[customerID].IsActive)
	assert.Empty(t, data.blocks)
}

func TestVerify_maxAttemptsBlocksDevice(t *testing.T) {
	data := newFakeData()
	svc := newTestService(data, &fakeDispatcher{})
	customerID, deviceID, token, code := verifyFixture(t, data, svc, 10*time.Second)
	ctx := context.Background()

	// maxAttempts = 3: the first two wrong codes are recoverable, the third
	// blocks the device.
	for i := 0; i < 2; i++ {
		_, err := svc.Verify(ctx, verifyRequestFor(customerID, deviceID, "000000"))
		requireKind(t, err, KindInvalidOTP)
	}
	_, err := svc.Verify(ctx, verifyRequestFor(customerID, deviceID, "000000"))
	requireKind(t, err, KindTooManyAttempts)

	assert.Equal(t, 3, data.tokens[token.ID].Attempts)
	require.Len(t, data.blocks, 1)
	assert.Equal(t, model.ScopeDevice, data.blocks[0].Scope)
	assert.Equal(t, deviceID.String(), data.blocks[0].Value)
	assert.Equal(t, "OTP max attempts exceeded", data.blocks[0].Reason)

	// The device block now gates every flow, even with the correct code.
	_, err = svc.Verify(ctx, verifyRequestFor(customerID, deviceID, code))
	requireKind(t, err, KindDeviceBlocked)
	_, err = svc.Start(ctx, startRequestFor(deviceID))
	requireKind(t, err, KindDeviceBlocked)
	assert.False(t, data.customers[customerID].IsActive)
}

func TestVerify_limitCheckPrecedesHashComparison(t *testing.T) {
	data := newFakeData()
	svc := newTestService(data, &fakeDispatcher{})
	customerID, deviceID, token, code := verifyFixture(t, data, svc, 10*time.Second)

	// A token already at the limit is rejected before the code is compared,
	// without consuming another slot.
	data.tokens[token.ID].Attempts = token.MaxAttempts

	_, err := svc.Verify(context.Background(), verifyRequestFor(customerID, deviceID, code))
	requireKind(t, err, KindTooManyAttempts)
	assert.Equal(t, token.MaxAttempts, data.tokens[token.ID].Attempts)
	require.Len(t, data.blocks, 1)
	assert.Equal(t, model.TokenPending, data.tokens[token.ID].Status)
}

func TestVerify_expiredToken(t *testing.T) {
	data := newFakeData()
	svc := newTestService(data, &fakeDispatcher{})
	customerID, deviceID, _, code := verifyFixture(t, data, svc, 6*time.Minute)

	_, err := svc.Verify(context.Background(), verifyRequestFor(customerID, deviceID, code))
	requireKind(t, err, KindTokenNotFoundOrExpired)
}

func TestVerify_rejectsMismatchedCustomer(t *testing.T) {
	data := newFakeData()
	svc := newTestService(data, &fakeDispatcher{})
	ownerID, deviceID, token, code := verifyFixture(t, data, svc, 10*time.Second)

	// A different inactive customer, registered under another tuple. A valid
	// code for the attacker's own registration must not activate them.
	otherDevice := data.addDevice(true)
	other := data.addCustomer("+497000000001", "other@example.com", otherDevice)

	_, err := svc.Verify(context.Background(), verifyRequestFor(other.ID, deviceID, code))
	requireKind(t, err, KindValidation)

	assert.False(t, data.customers[other.ID].IsActive, "a foreign customer must never be activated")
	assert.Empty(t, data.accounts)
	assert.Equal(t, model.TokenPending, data.tokens[token.ID].Status)

	// The rightful owner can still verify.
	result, err := svc.Verify(context.Background(), verifyRequestFor(ownerID, deviceID, code))
	require.NoError(t, err)
	assert.Equal(t, ownerID, result.CustomerID)
	assert.True(t, data.customers[ownerID].IsActive)
}

func TestVerify_unknownCustomer(t *testing.T) {
	data := newFakeData()
	svc := newTestService(data, &fakeDispatcher{})
	_, deviceID, _, code := verifyFixture(t, data, svc, 10*time.Second)

	_, err := svc.Verify(context.Background(), verifyRequestFor(uuid.New(), deviceID, code))
	requireKind(t, err, KindValidation)
}

func TestVerify_transactionFailureLeavesStateUntouched(t *testing.T) {
	data := newFakeData()
	svc := newTestService(data, &fakeDispatcher{})
	customerID, deviceID, token, code := verifyFixture(t, data, svc, 10*time.Second)
	data.failTx = true

	_, err := svc.Verify(context.Background(), verifyRequestFor(customerID, deviceID, code))
	requireKind(t, err, KindTransactionFailed)

	// The customer must remain inactive and the token unverified.
	assert.False(t, data.customers[customerID].IsActive)
	assert.Equal(t, model.TokenPending, data.tokens[token.ID].Status)
	assert.Nil(t, data.tokens[token.ID].VerifiedAt)
	assert.Empty(t, data.accounts)
}

func TestVerify_missingInput(t *testing.T) {
	data := newFakeData()
	svc := newTestService(data, &fakeDispatcher{})
	deviceID := data.addDevice(true)

	req := verifyRequestFor(uuid.New(), deviceID, "")
	_, err := svc.Verify(context.Background(), req)
	requireKind(t, err, KindValidation)
}
