// Package service implements the booking engine: the business logic that
// atomically checks and mutates event capacity, creates and cancels
// bookings, and promotes waiting bookings when capacity frees up.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eventtix/eventtix/internal/model"
	"github.com/eventtix/eventtix/internal/repository"
)

// ErrInsufficientTickets is returned when a booking requests more tickets
// than the event has available at the moment of the atomic check.
var ErrInsufficientTickets = errors.New("not enough tickets available")

// ErrAlreadyCancelled is returned when cancelling a booking that is
// already cancelled. It never mutates state, so repeated cancels are safe.
var ErrAlreadyCancelled = errors.New("booking is already cancelled")

// ValidationError reports malformed input. Nothing is persisted when one
// is returned.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func invalidf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// BookingService is the booking engine. It is the sole writer of
// Event.AvailableTickets and Booking.Status; every capacity-affecting
// operation runs inside a store transaction that holds the per-event
// inventory lock for its whole read-check-mutate sequence.
type BookingService struct {
	store repository.Store
}

// NewBookingService constructs a BookingService.
func NewBookingService(store repository.Store) *BookingService {
	return &BookingService{store: store}
}

// InitializeEvent validates the request and creates an event with its full
// capacity available. New events are not yet contended, so no lock is
// involved.
func (s *BookingService) InitializeEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" {
		return nil, invalidf("event name is required")
	}
	if req.Description == "" {
		return nil, invalidf("event description is required")
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return nil, invalidf("start_date and end_date are required")
	}
	if req.TotalTickets <= 0 {
		return nil, invalidf("total_tickets must be a positive integer")
	}

	return s.store.CreateEvent(ctx, &model.Event{
		Name:             req.Name,
		Description:      req.Description,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		TotalTickets:     req.TotalTickets,
		AvailableTickets: req.TotalTickets,
	})
}

// BookTicket books tickets for a user under the event's inventory lock.
//
// The lock is held from the capacity read through the commit, so two
// concurrent bookings for the same event can never both observe the same
// free capacity. If capacity is insufficient the default is to fail with
// ErrInsufficientTickets and persist nothing; with req.JoinWaitlist set,
// a waiting booking is created instead, consuming no capacity until a
// cancellation promotes it.
func (s *BookingService) BookTicket(ctx context.Context, userID int64, req model.BookTicketRequest) (*model.Booking, error) {
	if req.EventID <= 0 {
		return nil, invalidf("event_id must be a positive integer")
	}
	if req.NumberOfTickets <= 0 {
		return nil, invalidf("number_of_tickets must be a positive integer")
	}

	var booking *model.Booking
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		event, err := tx.EventForUpdate(ctx, req.EventID)
		if err != nil {
			return err
		}

		if req.NumberOfTickets > event.AvailableTickets {
			if !req.JoinWaitlist {
				return ErrInsufficientTickets
			}
			booking, err = tx.InsertBooking(ctx, &model.Booking{
				UserID:          userID,
				EventID:         event.ID,
				NumberOfTickets: req.NumberOfTickets,
				Status:          model.StatusWaiting,
			})
			return err
		}

		booking, err = tx.InsertBooking(ctx, &model.Booking{
			UserID:          userID,
			EventID:         event.ID,
			NumberOfTickets: req.NumberOfTickets,
			Status:          model.StatusBooked,
		})
		if err != nil {
			return err
		}
		return tx.AddAvailable(ctx, event.ID, -req.NumberOfTickets)
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// CancelBooking cancels a booking owned by userID and, when the booking
// held tickets, refunds its capacity and evaluates one waitlist promotion.
//
// The whole sequence runs under the event's inventory lock in a single
// atomic unit: no other operation can observe capacity returned but the
// promotion not yet decided. At most one waiting booking is promoted per
// cancellation, the oldest first, and only if its full quantity fits the
// refreshed capacity. Cancelling a waiting booking refunds nothing (it
// never consumed capacity) and triggers no promotion.
func (s *BookingService) CancelBooking(ctx context.Context, userID, bookingID int64) error {
	if bookingID <= 0 {
		return invalidf("booking_id must be a positive integer")
	}

	// A plain read resolves the booking's event so the right lock can be
	// taken; the booking is reloaded under the lock before any decision.
	booking, err := s.store.GetBooking(ctx, bookingID, userID)
	if err != nil {
		return err
	}

	return s.store.InTx(ctx, func(tx repository.Tx) error {
		event, err := tx.EventForUpdate(ctx, booking.EventID)
		if err != nil {
			return err
		}
		booking, err := tx.BookingForUpdate(ctx, bookingID, userID)
		if err != nil {
			return err
		}
		if booking.Status == model.StatusCancelled {
			return ErrAlreadyCancelled
		}
		wasBooked := booking.Status == model.StatusBooked

		if err := tx.SetBookingStatus(ctx, booking.ID, model.StatusCancelled); err != nil {
			return err
		}
		if !wasBooked {
			return nil
		}
		if err := tx.AddAvailable(ctx, event.ID, booking.NumberOfTickets); err != nil {
			return err
		}
		available := event.AvailableTickets + booking.NumberOfTickets

		next, err := tx.OldestWaiting(ctx, event.ID)
		if err != nil {
			return err
		}
		if next == nil || next.NumberOfTickets > available {
			return nil
		}
		if err := tx.SetBookingStatus(ctx, next.ID, model.StatusBooked); err != nil {
			return err
		}
		return tx.AddAvailable(ctx, event.ID, -next.NumberOfTickets)
	})
}

// GetEventStatus returns the capacity snapshot of one event. Read-only;
// no inventory lock is taken.
func (s *BookingService) GetEventStatus(ctx context.Context, eventID int64) (*model.EventStatus, error) {
	if eventID <= 0 {
		return nil, invalidf("event_id must be a positive integer")
	}
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	waiting, err := s.store.WaitingCount(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &model.EventStatus{
		EventID:          event.ID,
		TotalTickets:     event.TotalTickets,
		AvailableTickets: event.AvailableTickets,
		WaitingListCount: waiting,
	}, nil
}

// GetEvent returns a single event by ID.
func (s *BookingService) GetEvent(ctx context.Context, eventID int64) (*model.Event, error) {
	if eventID <= 0 {
		return nil, invalidf("event_id must be a positive integer")
	}
	return s.store.GetEvent(ctx, eventID)
}

// ListEvents returns all events, newest first.
func (s *BookingService) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.store.ListEvents(ctx)
}

// ListUserBookings returns the calling user's bookings, newest first.
func (s *BookingService) ListUserBookings(ctx context.Context, userID int64) ([]model.Booking, error) {
	return s.store.ListUserBookings(ctx, userID)
}
