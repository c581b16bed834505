package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eventtix/eventtix/internal/model"
)

// MemoryStore implements Store entirely in memory. The inventory lock is a
// per-event mutex, so mutations on one event serialize while other events
// proceed concurrently, mirroring the row-lock granularity of the postgres
// implementation. Transactions stage copies of the rows they touch and
// publish them on commit; on rollback the staged copies are discarded.
//
// Used by the test suite and as the STORE=memory dev mode.
type MemoryStore struct {
	mu           sync.Mutex
	events       map[int64]*model.Event
	bookings     map[int64]*model.Booking
	users        map[int64]*model.User
	usersByEmail map[string]int64

	nextEventID   int64
	nextBookingID int64
	nextUserID    int64

	lockMu     sync.Mutex
	eventLocks map[int64]*sync.Mutex
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:       make(map[int64]*model.Event),
		bookings:     make(map[int64]*model.Booking),
		users:        make(map[int64]*model.User),
		usersByEmail: make(map[string]int64),
		eventLocks:   make(map[int64]*sync.Mutex),
	}
}

// eventLock returns the mutex guarding one event, creating it on demand.
func (s *MemoryStore) eventLock(eventID int64) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	mu, ok := s.eventLocks[eventID]
	if !ok {
		mu = &sync.Mutex{}
		s.eventLocks[eventID] = mu
	}
	return mu
}

// CreateEvent persists a new event and returns it with its assigned ID.
func (s *MemoryStore) CreateEvent(ctx context.Context, ev *model.Event) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextEventID++
	created := *ev
	created.ID = s.nextEventID
	created.CreatedAt = time.Now().UTC()
	s.events[created.ID] = &created

	out := created
	return &out, nil
}

// GetEvent returns a single event or ErrNotFound.
func (s *MemoryStore) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *e
	return &out, nil
}

// ListEvents returns all events, newest first.
func (s *MemoryStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []model.Event
	for _, e := range s.events {
		events = append(events, *e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID > events[j].ID })
	return events, nil
}

// WaitingCount returns the number of waiting bookings for an event.
func (s *MemoryStore) WaitingCount(ctx context.Context, eventID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, b := range s.bookings {
		if b.EventID == eventID && b.Status == model.StatusWaiting {
			n++
		}
	}
	return n, nil
}

// GetBooking returns the booking owned by userID, or ErrNotFound.
func (s *MemoryStore) GetBooking(ctx context.Context, bookingID, userID int64) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok || b.UserID != userID {
		return nil, ErrNotFound
	}
	out := *b
	return &out, nil
}

// ListUserBookings returns all bookings of one user, newest first.
func (s *MemoryStore) ListUserBookings(ctx context.Context, userID int64) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var bookings []model.Booking
	for _, b := range s.bookings {
		if b.UserID == userID {
			bookings = append(bookings, *b)
		}
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].ID > bookings[j].ID })
	return bookings, nil
}

// CreateUser persists a new user or returns ErrDuplicateUser.
func (s *MemoryStore) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usersByEmail[u.Email]; taken {
		return nil, ErrDuplicateUser
	}
	s.nextUserID++
	created := *u
	created.ID = s.nextUserID
	created.CreatedAt = time.Now().UTC()
	s.users[created.ID] = &created
	s.usersByEmail[created.Email] = created.ID

	out := created
	return &out, nil
}

// GetUserByEmail returns a user or ErrNotFound.
func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s.users[id]
	return &out, nil
}

// InTx runs fn against a staged view of the store. Staged rows become
// visible to other callers only after fn succeeds; the event locks taken
// through the Tx are released in every outcome.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{
		s:        s,
		events:   make(map[int64]*model.Event),
		bookings: make(map[int64]*model.Booking),
	}
	defer tx.unlockAll()

	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memTx implements Tx with copy-on-write staging over a MemoryStore.
type memTx struct {
	s        *MemoryStore
	events   map[int64]*model.Event   // staged event rows
	bookings map[int64]*model.Booking // staged booking rows, inserts included
	held     []*sync.Mutex
}

func (t *memTx) unlockAll() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
	t.held = nil
}

func (t *memTx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, e := range t.events {
		copied := *e
		t.s.events[id] = &copied
	}
	for id, b := range t.bookings {
		copied := *b
		t.s.bookings[id] = &copied
	}
}

// stagedEvent returns the transaction's working copy of an event, pulling
// the committed row into the staging area on first touch.
func (t *memTx) stagedEvent(eventID int64) (*model.Event, bool) {
	if e, ok := t.events[eventID]; ok {
		return e, true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	e, ok := t.s.events[eventID]
	if !ok {
		return nil, false
	}
	copied := *e
	t.events[eventID] = &copied
	return &copied, true
}

func (t *memTx) stagedBooking(bookingID int64) (*model.Booking, bool) {
	if b, ok := t.bookings[bookingID]; ok {
		return b, true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, ok := t.s.bookings[bookingID]
	if !ok {
		return nil, false
	}
	copied := *b
	t.bookings[bookingID] = &copied
	return &copied, true
}

// EventForUpdate acquires the event's mutex and stages its current row.
// The mutex is held until the transaction finishes, serializing every
// concurrent mutation of the same event.
func (t *memTx) EventForUpdate(ctx context.Context, eventID int64) (*model.Event, error) {
	mu := t.s.eventLock(eventID)
	mu.Lock()
	t.held = append(t.held, mu)

	e, ok := t.stagedEvent(eventID)
	if !ok {
		return nil, ErrNotFound
	}
	out := *e
	return &out, nil
}

// BookingForUpdate stages a booking row, scoped to its owner.
func (t *memTx) BookingForUpdate(ctx context.Context, bookingID, userID int64) (*model.Booking, error) {
	b, ok := t.stagedBooking(bookingID)
	if !ok || b.UserID != userID {
		return nil, ErrNotFound
	}
	out := *b
	return &out, nil
}

// InsertBooking stages a new booking with an assigned ID and reference.
func (t *memTx) InsertBooking(ctx context.Context, b *model.Booking) (*model.Booking, error) {
	t.s.mu.Lock()
	t.s.nextBookingID++
	id := t.s.nextBookingID
	t.s.mu.Unlock()

	created := *b
	created.ID = id
	created.Reference = uuid.New().String()
	created.CreatedAt = time.Now().UTC()
	t.bookings[id] = &created

	out := created
	return &out, nil
}

// AddAvailable adjusts the staged event's available ticket counter.
func (t *memTx) AddAvailable(ctx context.Context, eventID int64, delta int) error {
	e, ok := t.stagedEvent(eventID)
	if !ok {
		return ErrNotFound
	}
	e.AvailableTickets += delta
	return nil
}

// SetBookingStatus updates the staged booking's status.
func (t *memTx) SetBookingStatus(ctx context.Context, bookingID int64, status model.BookingStatus) error {
	b, ok := t.stagedBooking(bookingID)
	if !ok {
		return ErrNotFound
	}
	b.Status = status
	return nil
}

// OldestWaiting scans the committed bookings overlaid with this
// transaction's staged changes and returns the first-created waiting
// booking for the event, or nil when the waiting list is empty.
func (t *memTx) OldestWaiting(ctx context.Context, eventID int64) (*model.Booking, error) {
	merged := make(map[int64]*model.Booking)
	t.s.mu.Lock()
	for id, b := range t.s.bookings {
		merged[id] = b
	}
	t.s.mu.Unlock()
	for id, b := range t.bookings {
		merged[id] = b
	}

	var oldest *model.Booking
	for _, b := range merged {
		if b.EventID != eventID || b.Status != model.StatusWaiting {
			continue
		}
		if oldest == nil ||
			b.CreatedAt.Before(oldest.CreatedAt) ||
			(b.CreatedAt.Equal(oldest.CreatedAt) && b.ID < oldest.ID) {
			oldest = b
		}
	}
	if oldest == nil {
		return nil, nil
	}
	out := *oldest
	return &out, nil
}
