// Package repository implements persistence for events, bookings, and users.
// Two implementations exist: PostgresStore (pgx, row-level locking) and
// MemoryStore (per-event mutexes, used in tests and as a dev mode).
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/eventtix/eventtix/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist or is
// not owned by the requesting user.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUser is returned when an email is already registered.
var ErrDuplicateUser = errors.New("user already exists")

// StorageError wraps an infrastructure-level persistence failure. Domain
// errors (ErrNotFound, ErrDuplicateUser) are never wrapped in it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Store is the persistence contract consumed by the service layer.
//
// Plain reads run without the inventory lock. All capacity-affecting
// mutations must go through InTx, whose Tx view serializes writers on a
// per-event basis: EventForUpdate acquires an exclusive lock on the event
// that is held until the transaction commits or rolls back.
type Store interface {
	// CreateEvent persists a new event and returns it with its assigned ID.
	CreateEvent(ctx context.Context, ev *model.Event) (*model.Event, error)
	// GetEvent returns a single event or ErrNotFound.
	GetEvent(ctx context.Context, id int64) (*model.Event, error)
	// ListEvents returns all events, newest first.
	ListEvents(ctx context.Context) ([]model.Event, error)
	// WaitingCount returns the number of waiting bookings for an event.
	WaitingCount(ctx context.Context, eventID int64) (int, error)
	// GetBooking returns the booking with the given ID owned by userID,
	// or ErrNotFound on a missing booking or an owner mismatch.
	GetBooking(ctx context.Context, bookingID, userID int64) (*model.Booking, error)
	// ListUserBookings returns all bookings of one user, newest first.
	ListUserBookings(ctx context.Context, userID int64) ([]model.Booking, error)

	// CreateUser persists a new user or returns ErrDuplicateUser.
	CreateUser(ctx context.Context, u *model.User) (*model.User, error)
	// GetUserByEmail returns a user or ErrNotFound.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	// InTx runs fn inside one atomic unit. If fn returns an error the
	// transaction rolls back and no mutation survives; any event lock
	// taken through the Tx is released either way.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view handed to InTx callbacks.
type Tx interface {
	// EventForUpdate loads the event and acquires its inventory lock,
	// blocking until every other transaction holding it has finished.
	EventForUpdate(ctx context.Context, eventID int64) (*model.Event, error)
	// BookingForUpdate reloads a booking under the lock, scoped to its
	// owner. Returns ErrNotFound on a missing row or owner mismatch.
	BookingForUpdate(ctx context.Context, bookingID, userID int64) (*model.Booking, error)
	// InsertBooking persists a new booking and returns it with its ID.
	InsertBooking(ctx context.Context, b *model.Booking) (*model.Booking, error)
	// AddAvailable adjusts an event's available ticket counter by delta
	// (negative to consume, positive to refund).
	AddAvailable(ctx context.Context, eventID int64, delta int) error
	// SetBookingStatus updates one booking's status.
	SetBookingStatus(ctx context.Context, bookingID int64, status model.BookingStatus) error
	// OldestWaiting returns the first-created waiting booking for an
	// event, or nil when the waiting list is empty.
	OldestWaiting(ctx context.Context, eventID int64) (*model.Booking, error)
}
