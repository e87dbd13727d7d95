package publishing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/postpilot/backend/internal/domain/connection"
	"github.com/postpilot/backend/internal/domain/identity"
	"github.com/postpilot/backend/internal/domain/post"
	"github.com/postpilot/backend/internal/domain/queue"
	"github.com/postpilot/backend/internal/domain/quota"
	"github.com/postpilot/backend/internal/domain/shared"
	"github.com/postpilot/backend/internal/domain/social"
)

// Mock implementations

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *mockUserRepository) FindByStripeCustomerID(ctx context.Context, customerID string) (*identity.User, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *mockUserRepository) Save(ctx context.Context, user *identity.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

type mockEntryRepository struct {
	mock.Mock
}

func (m *mockEntryRepository) Save(ctx context.Context, entry *queue.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockEntryRepository) FindByID(ctx context.Context, id uuid.UUID) (*queue.Entry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queue.Entry), args.Error(1)
}

func (m *mockEntryRepository) FindByPostAndPlatform(ctx context.Context, postID uuid.UUID, platform social.Platform) (*queue.Entry, error) {
	args := m.Called(ctx, postID, platform)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queue.Entry), args.Error(1)
}

func (m *mockEntryRepository) ClaimDue(ctx context.Context, platform social.Platform, limit int, now time.Time) ([]*queue.Entry, error) {
	args := m.Called(ctx, platform, limit, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*queue.Entry), args.Error(1)
}

func (m *mockEntryRepository) RequeueStuck(ctx context.Context, cutoff time.Time) (int, error) {
	args := m.Called(ctx, cutoff)
	return args.Int(0), args.Error(1)
}

func (m *mockEntryRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*queue.Entry, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*queue.Entry), args.Error(1)
}

func (m *mockEntryRepository) Stats(ctx context.Context) ([]queue.LaneStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]queue.LaneStats), args.Error(1)
}

type mockLedgerRepository struct {
	mock.Mock
}

func (m *mockLedgerRepository) Reserve(ctx context.Context, userID uuid.UUID, tier identity.Tier, cycleStart time.Time, ttl time.Duration) (*quota.Reservation, error) {
	args := m.Called(ctx, userID, tier, cycleStart, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quota.Reservation), args.Error(1)
}

func (m *mockLedgerRepository) Commit(ctx context.Context, reservationID uuid.UUID) error {
	args := m.Called(ctx, reservationID)
	return args.Error(0)
}

func (m *mockLedgerRepository) Release(ctx context.Context, reservationID uuid.UUID) error {
	args := m.Called(ctx, reservationID)
	return args.Error(0)
}

func (m *mockLedgerRepository) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *mockLedgerRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*quota.Ledger, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quota.Ledger), args.Error(1)
}

func (m *mockLedgerRepository) Status(ctx context.Context, userID uuid.UUID, tier identity.Tier, cycleStart time.Time, now time.Time) (*quota.Ledger, error) {
	args := m.Called(ctx, userID, tier, cycleStart, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quota.Ledger), args.Error(1)
}

func (m *mockLedgerRepository) ExtendReservation(ctx context.Context, reservationID uuid.UUID, until time.Time) error {
	args := m.Called(ctx, reservationID, until)
	return args.Error(0)
}

func (m *mockLedgerRepository) FindReservation(ctx context.Context, id uuid.UUID) (*quota.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quota.Reservation), args.Error(1)
}

type mockConnectionRepository struct {
	mock.Mock
}

func (m *mockConnectionRepository) FindByID(ctx context.Context, id uuid.UUID) (*connection.PlatformConnection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connection.PlatformConnection), args.Error(1)
}

func (m *mockConnectionRepository) FindByUserAndPlatform(ctx context.Context, userID uuid.UUID, platform social.Platform) (*connection.PlatformConnection, error) {
	args := m.Called(ctx, userID, platform)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connection.PlatformConnection), args.Error(1)
}

func (m *mockConnectionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*connection.PlatformConnection, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*connection.PlatformConnection), args.Error(1)
}

func (m *mockConnectionRepository) Save(ctx context.Context, conn *connection.PlatformConnection) error {
	args := m.Called(ctx, conn)
	return args.Error(0)
}

type mockTokenSource struct {
	mock.Mock
}

func (m *mockTokenSource) AccessToken(ctx context.Context, userID uuid.UUID, platform social.Platform) (*connection.TokenInfo, error) {
	args := m.Called(ctx, userID, platform)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connection.TokenInfo), args.Error(1)
}

func (m *mockTokenSource) Refresh(ctx context.Context, userID uuid.UUID, platform social.Platform) (*connection.TokenInfo, error) {
	args := m.Called(ctx, userID, platform)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connection.TokenInfo), args.Error(1)
}

func (m *mockTokenSource) Invalidate(ctx context.Context, userID uuid.UUID, platform social.Platform) error {
	args := m.Called(ctx, userID, platform)
	return args.Error(0)
}

type mockPublisher struct {
	mock.Mock
	platform social.Platform
}

func (m *mockPublisher) Platform() social.Platform {
	return m.platform
}

func (m *mockPublisher) Publish(ctx context.Context, req *social.PublishRequest) (*social.PublishResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*social.PublishResult), args.Error(1)
}

type mockRegistry struct {
	publishers map[social.Platform]social.Publisher
}

func (m *mockRegistry) Get(platform social.Platform) (social.Publisher, error) {
	p, ok := m.publishers[platform]
	if !ok {
		return nil, social.ErrPlatformNotConfigured
	}
	return p, nil
}

func (m *mockRegistry) List() []social.Publisher {
	out := make([]social.Publisher, 0, len(m.publishers))
	for _, p := range m.publishers {
		out = append(out, p)
	}
	return out
}

type mockRecordRepository struct {
	mock.Mock
}

func (m *mockRecordRepository) Save(ctx context.Context, record *post.Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockRecordRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*post.Record, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*post.Record), args.Error(1)
}

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context, url string) (int64, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(int64), args.Error(1)
}

// memoryIdempotencyStore is a plain in-memory store for tests
type memoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]uuid.UUID
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{keys: make(map[string]uuid.UUID)}
}

func (s *memoryIdempotencyStore) Get(_ context.Context, postID uuid.UUID, platform social.Platform) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.keys[postID.String()+"/"+platform.String()]
	return id, ok, nil
}

func (s *memoryIdempotencyStore) Set(_ context.Context, postID uuid.UUID, platform social.Platform, entryID uuid.UUID, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[postID.String()+"/"+platform.String()] = entryID
	return nil
}

// memoryLedger serializes reserve/commit/release on a real domain ledger,
// mirroring what the row-locking repository does in PostgreSQL.
type memoryLedger struct {
	mu           sync.Mutex
	ledger       *quota.Ledger
	reservations map[uuid.UUID]*quota.Reservation
}

func newMemoryLedger(ledger *quota.Ledger) *memoryLedger {
	return &memoryLedger{
		ledger:       ledger,
		reservations: make(map[uuid.UUID]*quota.Reservation),
	}
}

func (m *memoryLedger) Reserve(_ context.Context, _ uuid.UUID, _ identity.Tier, _ time.Time, ttl time.Duration) (*quota.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, err := m.ledger.Reserve(time.Now(), ttl)
	if err != nil {
		return nil, err
	}
	m.reservations[res.ID] = res
	return res, nil
}

func (m *memoryLedger) Commit(_ context.Context, reservationID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.reservations[reservationID]
	if !ok {
		return nil
	}
	if err := res.Commit(); err != nil {
		return err
	}
	m.ledger.CommitPost(time.Now())
	return nil
}

func (m *memoryLedger) Release(_ context.Context, reservationID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.reservations[reservationID]
	if !ok {
		return nil
	}
	if err := res.Release(); err != nil {
		return err
	}
	m.ledger.ReleaseOne(time.Now())
	return nil
}

func (m *memoryLedger) ReleaseExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	released := 0
	for _, res := range m.reservations {
		if res.IsExpired(now) {
			if err := res.Release(); err == nil {
				m.ledger.ReleaseOne(now)
				released++
			}
		}
	}
	return released, nil
}

func (m *memoryLedger) FindByUserID(_ context.Context, _ uuid.UUID) (*quota.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger, nil
}

func (m *memoryLedger) Status(_ context.Context, _ uuid.UUID, _ identity.Tier, _ time.Time, now time.Time) (*quota.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger.Roll(now)
	return m.ledger, nil
}

func (m *memoryLedger) ExtendReservation(_ context.Context, reservationID uuid.UUID, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.reservations[reservationID]
	if !ok {
		return shared.ErrNotFound
	}
	if res.State != quota.ReservationPending {
		return shared.NewDomainError("RESERVATION_FINAL",
			"Reservation is already "+string(res.State))
	}
	res.Extend(until)
	return nil
}

func (m *memoryLedger) FindReservation(_ context.Context, id uuid.UUID) (*quota.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.reservations[id]
	if !ok {
		return nil, nil
	}
	return res, nil
}

var _ quota.LedgerRepository = (*memoryLedger)(nil)
