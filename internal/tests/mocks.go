package tests

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK TRIP REPOSITORY
// ──────────────────────────────────────────────

// MockTripRepository is a mock implementation of TripRepository. It enforces
// the versioned-update discipline under a mutex so concurrency tests exercise
// the same conflict behavior as the real store.
type MockTripRepository struct {
	mu    sync.RWMutex
	trips map[string]*domain.Trip

	// Counters for verification
	CreateCallCount int32
	UpdateCallCount int32

	// Error injection
	CreateError error
	UpdateError error
}

// NewMockTripRepository creates a new mock trip repository.
func NewMockTripRepository() *MockTripRepository {
	return &MockTripRepository{
		trips: make(map[string]*domain.Trip),
	}
}

// cloneTrip copies a trip including its passenger slice so callers never
// share mutable state with the store.
func cloneTrip(t *domain.Trip) *domain.Trip {
	c := *t
	c.Passengers = make([]domain.Passenger, len(t.Passengers))
	copy(c.Passengers, t.Passengers)
	return &c
}

// AddTrip seeds a trip into the mock repository.
func (m *MockTripRepository) AddTrip(trip *domain.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[trip.ID] = cloneTrip(trip)
}

func (m *MockTripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[trip.ID] = cloneTrip(trip)
	return nil
}

func (m *MockTripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	trip, ok := m.trips[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneTrip(trip), nil
}

func (m *MockTripRepository) GetAvailable(ctx context.Context, now time.Time) ([]*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Trip
	for _, t := range m.trips {
		if t.AcceptsBookings() && !t.IsExpired(now) {
			result = append(result, cloneTrip(t))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *MockTripRepository) GetByDriverID(ctx context.Context, driverID string, statuses []domain.TripStatus) ([]*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Trip
	for _, t := range m.trips {
		if t.DriverID == driverID && statusIn(t.Status, statuses) {
			result = append(result, cloneTrip(t))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *MockTripRepository) GetByConfirmedPassenger(ctx context.Context, userID string, statuses []domain.TripStatus) ([]*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Trip
	for _, t := range m.trips {
		if t.IsConfirmedPassenger(userID) && statusIn(t.Status, statuses) {
			result = append(result, cloneTrip(t))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *MockTripRepository) GetActiveByDriverID(ctx context.Context, driverID string, now time.Time) (*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.trips {
		if t.DriverID != driverID {
			continue
		}
		if t.Status == domain.TripStatusInProgress {
			return cloneTrip(t), nil
		}
		if t.AcceptsBookings() && !t.IsExpired(now) {
			return cloneTrip(t), nil
		}
	}
	return nil, nil
}

func (m *MockTripRepository) UpdateVersioned(ctx context.Context, trip *domain.Trip) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.trips[trip.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.Version != trip.Version {
		return repository.ErrVersionConflict
	}

	trip.Version++
	m.trips[trip.ID] = cloneTrip(trip)
	return nil
}

// GetTrip returns the stored trip for assertions.
func (m *MockTripRepository) GetTrip(id string) *domain.Trip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil
	}
	return cloneTrip(t)
}

// SetExpiresAt rewrites a stored trip's deadline, to simulate the window
// passing without sleeping through it.
func (m *MockTripRepository) SetExpiresAt(id string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trips[id]; ok {
		t.ExpiresAt = at
	}
}

// CountTrips returns the number of stored trips.
func (m *MockTripRepository) CountTrips() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trips)
}

func statusIn(status domain.TripStatus, statuses []domain.TripStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────
// MOCK USER REPOSITORY
// ──────────────────────────────────────────────

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User

	// Error injection
	CreateError error
}

// NewMockUserRepository creates a new mock user repository.
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]*domain.User)}
}

// AddUser seeds a user into the mock repository.
func (m *MockUserRepository) AddUser(user *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *user
	return &copy, nil
}

func (m *MockUserRepository) GetByRole(ctx context.Context, role domain.UserRole) ([]*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.User
	for _, u := range m.users {
		if u.Role == role {
			copy := *u
			result = append(result, &copy)
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of the driver creation lock.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]time.Time

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error

	// Force lock failure
	ForceAcquireFailure bool
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]time.Time)}
}

func (m *MockLockStore) AcquireDriverLock(ctx context.Context, driverID string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	if m.ForceAcquireFailure {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if expiry, exists := m.locks[driverID]; exists && time.Now().Before(expiry) {
		return false, nil
	}
	m.locks[driverID] = time.Now().Add(ttl)
	return true, nil
}

func (m *MockLockStore) ReleaseDriverLock(ctx context.Context, driverID string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, driverID)
	return nil
}

// ──────────────────────────────────────────────
// MOCK LISTING CACHE
// ──────────────────────────────────────────────

// MockListingCache is an in-memory stand-in for the Redis listing cache.
type MockListingCache struct {
	mu   sync.Mutex
	data []byte

	// Counters
	HitCount        int32
	MissCount       int32
	InvalidateCount int32
}

// NewMockListingCache creates a new mock listing cache.
func NewMockListingCache() *MockListingCache {
	return &MockListingCache{}
}

func (m *MockListingCache) GetAvailableTrips(ctx context.Context, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		atomic.AddInt32(&m.MissCount, 1)
		return false, nil
	}
	if err := json.Unmarshal(m.data, dest); err != nil {
		return false, err
	}
	atomic.AddInt32(&m.HitCount, 1)
	return true, nil
}

func (m *MockListingCache) SetAvailableTrips(ctx context.Context, listing any) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	return nil
}

func (m *MockListingCache) InvalidateAvailableTrips(ctx context.Context) error {
	atomic.AddInt32(&m.InvalidateCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}

// ──────────────────────────────────────────────
// MOCK TOKEN STORE
// ──────────────────────────────────────────────

// MockTokenStore is an in-memory push token store.
type MockTokenStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

// NewMockTokenStore creates a new mock token store.
func NewMockTokenStore() *MockTokenStore {
	return &MockTokenStore{tokens: make(map[string]string)}
}

func (m *MockTokenStore) Set(ctx context.Context, userID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[userID] = token
	return nil
}

func (m *MockTokenStore) Get(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[userID], nil
}

func (m *MockTokenStore) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, userID)
	return nil
}

// Token returns the stored token for assertions.
func (m *MockTokenStore) Token(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[userID]
}

// ──────────────────────────────────────────────
// RECORDING BROADCASTER
// ──────────────────────────────────────────────

// BroadcastRecord is one captured realtime delivery.
type BroadcastRecord struct {
	Target  string // user id, trip id, or "*" for broadcast
	Scope   string // "user", "room", "all"
	Event   string
	Payload any
}

// RecordingBroadcaster captures realtime deliveries for assertions.
type RecordingBroadcaster struct {
	mu      sync.Mutex
	records []BroadcastRecord
}

// NewRecordingBroadcaster creates a new recording broadcaster.
func NewRecordingBroadcaster() *RecordingBroadcaster {
	return &RecordingBroadcaster{}
}

func (b *RecordingBroadcaster) ToUser(userID, event string, payload any) {
	b.record(BroadcastRecord{Target: userID, Scope: "user", Event: event, Payload: payload})
}

func (b *RecordingBroadcaster) ToRoom(tripID, event string, payload any) {
	b.record(BroadcastRecord{Target: tripID, Scope: "room", Event: event, Payload: payload})
}

func (b *RecordingBroadcaster) Broadcast(event string, payload any) {
	b.record(BroadcastRecord{Target: "*", Scope: "all", Event: event, Payload: payload})
}

func (b *RecordingBroadcaster) record(r BroadcastRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, r)
}

// Records returns a snapshot of every captured delivery.
func (b *RecordingBroadcaster) Records() []BroadcastRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BroadcastRecord, len(b.records))
	copy(out, b.records)
	return out
}

// CountEvent returns how many deliveries carried the given event.
func (b *RecordingBroadcaster) CountEvent(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	count := 0
	for _, r := range b.records {
		if r.Event == event {
			count++
		}
	}
	return count
}

// EventsForUser returns the events delivered directly to a user.
func (b *RecordingBroadcaster) EventsForUser(userID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, r := range b.records {
		if r.Scope == "user" && r.Target == userID {
			out = append(out, r.Event)
		}
	}
	return out
}

// ──────────────────────────────────────────────
// RECORDING EVENT PUBLISHER
// ──────────────────────────────────────────────

// PublishedEvent is one captured stream event.
type PublishedEvent struct {
	Event  string
	TripID string
}

// RecordingPublisher captures stream events for assertions.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
}

// NewRecordingPublisher creates a new recording publisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) Publish(event, tripID string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, PublishedEvent{Event: event, TripID: tripID})
}

// Events returns a snapshot of every captured event.
func (p *RecordingPublisher) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PublishedEvent, len(p.events))
	copy(out, p.events)
	return out
}

// ──────────────────────────────────────────────
// RECORDING SCHEDULER
// ──────────────────────────────────────────────

// RecordingScheduler captures expiry scheduling without arming real timers.
type RecordingScheduler struct {
	mu        sync.Mutex
	deadlines map[string]time.Time
}

// NewRecordingScheduler creates a new recording scheduler.
func NewRecordingScheduler() *RecordingScheduler {
	return &RecordingScheduler{deadlines: make(map[string]time.Time)}
}

func (s *RecordingScheduler) Schedule(tripID string, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadlines[tripID] = deadline
}

// DeadlineFor returns the scheduled deadline for a trip, if any.
func (s *RecordingScheduler) DeadlineFor(tripID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deadlines[tripID]
	return d, ok
}
