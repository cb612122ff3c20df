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

// fakeData is the shared in-memory state behind a fakeStore.
type fakeData struct {
	devices   map[uuid.UUID]*model.Device
	blocks    []*model.Block
	customers map[uuid.UUID]*model.Customer
	tokens    map[uuid.UUID]*model.RegistrationToken
	attempts  []*model.RegistrationAttempt
	events    []*model.SmsEvent
	accounts  []*model.Account

	failTx bool
}

func newFakeData() *fakeData {
	return &fakeData{
		devices:   make(map[uuid.UUID]*model.Device),
		customers: make(map[uuid.UUID]*model.Customer),
		tokens:    make(map[uuid.UUID]*model.RegistrationToken),
	}
}

func (d *fakeData) addDevice(active bool) uuid.UUID {
	id := uuid.New()
	d.devices[id] = &model.Device{
		ID:          id,
		Fingerprint: "fp-" + id.String()[:8],
		Active:      active,
		CreatedAt:   time.Now(),
	}
	return id
}

func (d *fakeData) addPendingToken(phone, email string, deviceID uuid.UUID, hash string, createdAt time.Time, ttl time.Duration, maxAttempts int) *model.RegistrationToken {
	t := &model.RegistrationToken{
		ID:          uuid.New(),
		PhoneNumber: phone,
		Email:       email,
		TokenHash:   hash,
		TokenType:   model.TokenTypeRegistration,
		DeviceID:    deviceID,
		Status:      model.TokenPending,
		MaxAttempts: maxAttempts,
		ExpiresAt:   createdAt.Add(ttl),
		CreatedAt:   createdAt,
	}
	d.tokens[t.ID] = t
	return t
}

func (d *fakeData) addCustomer(phone, email string, deviceID uuid.UUID) *model.Customer {
	c := &model.Customer{
		ID:          uuid.New(),
		PhoneNumber: phone,
		Email:       email,
		Role:        model.RoleCustomer,
		DeviceID:    deviceID,
		CreatedAt:   time.Now(),
	}
	d.customers[c.ID] = c
	return c
}

type fakeStore struct {
	data *fakeData
}

func (s *fakeStore) Devices() repo.DeviceRepo     { return &fakeDevices{s.data} }
func (s *fakeStore) Blocks() repo.BlockRepo       { return &fakeBlocks{s.data} }
func (s *fakeStore) Customers() repo.CustomerRepo { return &fakeCustomers{s.data} }
func (s *fakeStore) Tokens() repo.TokenRepo       { return &fakeTokens{s.data} }
func (s *fakeStore) Attempts() repo.AttemptRepo   { return &fakeAttempts{s.data} }
func (s *fakeStore) SmsEvents() repo.SmsEventRepo { return &fakeEvents{s.data} }
func (s *fakeStore) Accounts() repo.AccountRepo   { return &fakeAccounts{s.data} }

func (s *fakeStore) WithinTx(ctx context.Context, fn func(repo.Store) error) error {
	if s.data.failTx {
		// Simulates a failed commit: nothing inside the closure takes effect.
		return errors.New("storage unavailable")
	}
	return fn(s)
}

type fakeDevices struct{ data *fakeData }

func (f *fakeDevices) GetByID(ctx context.Context, id uuid.UUID) (model.Device, error) {
	d, ok := f.data.devices[id]
	if !ok {
		return model.Device{}, fmt.Errorf("device: %w", repo.ErrNotFound)
	}
	return *d, nil
}

func (f *fakeDevices) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	d, ok := f.data.devices[id]
	if !ok {
		return repo.ErrNotFound
	}
	d.LastUsedAt = &at
	return nil
}

type fakeBlocks struct{ data *fakeData }

func (f *fakeBlocks) FindActive(ctx context.Context, scope model.BlockScope, value string, now time.Time) (*model.Block, error) {
	for _, b := range f.data.blocks {
		if b.Scope == scope && b.Value == value && b.Active &&
			(b.ExpiresAt == nil || b.ExpiresAt.After(now)) {
			return b, nil
		}
	}
	return nil, nil
}

func (f *fakeBlocks) Create(ctx context.Context, block *model.Block) error {
	block.ID = uuid.New()
	block.CreatedAt = time.Now()
	f.data.blocks = append(f.data.blocks, block)
	return nil
}

type fakeCustomers struct{ data *fakeData }

func (f *fakeCustomers) Create(ctx context.Context, c *model.Customer) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	copied := *c
	f.data.customers[c.ID] = &copied
	return nil
}

func (f *fakeCustomers) GetByID(ctx context.Context, id uuid.UUID) (model.Customer, error) {
	c, ok := f.data.customers[id]
	if !ok {
		return model.Customer{}, fmt.Errorf("customer: %w", repo.ErrNotFound)
	}
	return *c, nil
}

func (f *fakeCustomers) Activate(ctx context.Context, id uuid.UUID) error {
	c, ok := f.data.customers[id]
	if !ok {
		return repo.ErrNotFound
	}
	c.IsActive = true
	return nil
}

func (f *fakeCustomers) DeleteInactive(ctx context.Context, phone, email string, deviceID uuid.UUID) error {
	for id, c := range f.data.customers {
		if c.PhoneNumber == phone && c.Email == email && c.DeviceID == deviceID && !c.IsActive {
			delete(f.data.customers, id)
		}
	}
	return nil
}

type fakeTokens struct{ data *fakeData }

func (f *fakeTokens) Create(ctx context.Context, t *model.RegistrationToken) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	copied := *t
	f.data.tokens[t.ID] = &copied
	return nil
}

func (f *fakeTokens) FindLatestPending(ctx context.Context, phone, email string, deviceID uuid.UUID) (model.RegistrationToken, error) {
	var latest *model.RegistrationToken
	for _, t := range f.data.tokens {
		if t.PhoneNumber == phone && t.Email == email && t.DeviceID == deviceID && t.Status == model.TokenPending {
			if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
				latest = t
			}
		}
	}
	if latest == nil {
		return model.RegistrationToken{}, fmt.Errorf("token: %w", repo.ErrNotFound)
	}
	return *latest, nil
}

func (f *fakeTokens) FindActive(ctx context.Context, phone, email string, deviceID uuid.UUID, now time.Time) (model.RegistrationToken, error) {
	var latest *model.RegistrationToken
	for _, t := range f.data.tokens {
		if t.PhoneNumber == phone && t.Email == email && t.DeviceID == deviceID &&
			t.Status == model.TokenPending && t.VerifiedAt == nil && t.ExpiresAt.After(now) {
			if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
				latest = t
			}
		}
	}
	if latest == nil {
		return model.RegistrationToken{}, fmt.Errorf("token: %w", repo.ErrNotFound)
	}
	return *latest, nil
}

func (f *fakeTokens) LockByID(ctx context.Context, id uuid.UUID) (model.RegistrationToken, error) {
	t, ok := f.data.tokens[id]
	if !ok {
		return model.RegistrationToken{}, fmt.Errorf("token: %w", repo.ErrNotFound)
	}
	return *t, nil
}

func (f *fakeTokens) Rotate(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt, now time.Time) error {
	t, ok := f.data.tokens[id]
	if !ok || t.Status != model.TokenPending {
		return repo.ErrNotFound
	}
	t.TokenHash = tokenHash
	t.ExpiresAt = expiresAt
	t.Attempts = 0
	t.CreatedAt = now
	return nil
}

func (f *fakeTokens) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	t, ok := f.data.tokens[id]
	if !ok {
		return 0, repo.ErrNotFound
	}
	t.Attempts++
	return t.Attempts, nil
}

func (f *fakeTokens) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	t, ok := f.data.tokens[id]
	if !ok || t.Status != model.TokenPending {
		return repo.ErrNotFound
	}
	t.Status = model.TokenVerified
	t.VerifiedAt = &at
	return nil
}

func (f *fakeTokens) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.data.tokens[id]; !ok {
		return repo.ErrNotFound
	}
	delete(f.data.tokens, id)
	return nil
}

type fakeAttempts struct{ data *fakeData }

func (f *fakeAttempts) Create(ctx context.Context, a *model.RegistrationAttempt) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	f.data.attempts = append(f.data.attempts, a)
	return nil
}

type fakeEvents struct{ data *fakeData }

func (f *fakeEvents) Create(ctx context.Context, e *model.SmsEvent) error {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	f.data.events = append(f.data.events, e)
	return nil
}

type fakeAccounts struct{ data *fakeData }

func (f *fakeAccounts) Create(ctx context.Context, a *model.Account) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	f.data.accounts = append(f.data.accounts, a)
	return nil
}

func (f *fakeAccounts) GetByCustomerID(ctx context.Context, customerID uuid.UUID) (model.Account, error) {
	for _, a := range f.data.accounts {
		if a.CustomerID == customerID {
			return *a, nil
		}
	}
	return model.Account{}, fmt.Errorf("account: %w", repo.ErrNotFound)
}

// fakeDispatcher records dispatched codes and optionally fails.
type fakeDispatcher struct {
	calls    int
	lastCode string
	err      error
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, phone, email, code string) error {
	if d.err != nil {
		return d.err
	}
	d.calls++
	d.lastCode = code
	return nil
}

type fakeIssuer struct{}

func (fakeIssuer) IssueAccessToken(customerID uuid.UUID, phone string) (string, time.Duration, error) {
	return "token-" + customerID.String(), 24 * time.Hour, nil
}

type fakePasswords struct{}

func (fakePasswords) Hash(plain string) (string, error) {
	return "hashed:" + plain, nil
}

// newTestService builds a Service over the fake store with the default
// policy. Tests adjust s.now and the policy as needed.
func newTestService(data *fakeData, dispatcher *fakeDispatcher) *Service {
	return NewService(
		&fakeStore{data: data},
		dispatcher,
		otp.NewHasher("test-salt"),
		fakeIssuer{},
		fakePasswords{},
		DefaultPolicy(),
	)
}
