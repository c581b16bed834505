// Package model defines the core domain types for the ticket booking system.
package model

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	// StatusBooked means the booking holds tickets counted against the
	// event's capacity.
	StatusBooked BookingStatus = "booked"
	// StatusWaiting means the booking is queued for promotion and holds
	// no tickets yet.
	StatusWaiting BookingStatus = "waiting"
	// StatusCancelled is terminal.
	StatusCancelled BookingStatus = "cancelled"
)

// Event represents a ticketed event with fixed total capacity and a live
// remaining-capacity counter.
type Event struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	TotalTickets     int       `json:"total_tickets"`
	AvailableTickets int       `json:"available_tickets"`
	CreatedAt        time.Time `json:"created_at"`
}

// SoldOut returns true when no tickets remain.
func (e *Event) SoldOut() bool {
	return e.AvailableTickets <= 0
}

// Booking is a claim on some quantity of an event's tickets.
// Reference is a user-facing confirmation code; ID is the primary key.
type Booking struct {
	ID              int64         `json:"id"`
	Reference       string        `json:"reference"`
	UserID          int64         `json:"user_id"`
	EventID         int64         `json:"event_id"`
	NumberOfTickets int           `json:"number_of_tickets"`
	Status          BookingStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
}

// User is an account that can book tickets.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// EventStatus is the public capacity snapshot of one event.
type EventStatus struct {
	EventID          int64 `json:"event_id"`
	TotalTickets     int   `json:"total_tickets"`
	AvailableTickets int   `json:"available_tickets"`
	WaitingListCount int   `json:"waiting_list_count"`
}

// CreateEventRequest is the payload for initializing a new event.
type CreateEventRequest struct {
	Name         string    `json:"name" validate:"required"`
	Description  string    `json:"description" validate:"required"`
	StartDate    time.Time `json:"start_date" validate:"required"`
	EndDate      time.Time `json:"end_date" validate:"required"`
	TotalTickets int       `json:"total_tickets" validate:"required,min=1"`
}

// BookTicketRequest is the payload for booking tickets. When JoinWaitlist
// is set and capacity is insufficient, the booking is queued as waiting
// instead of being rejected.
type BookTicketRequest struct {
	EventID         int64 `json:"event_id" validate:"required,min=1"`
	NumberOfTickets int   `json:"number_of_tickets" validate:"required,min=1"`
	JoinWaitlist    bool  `json:"join_waitlist"`
}

// CancelBookingRequest is the payload for cancelling a booking.
type CancelBookingRequest struct {
	BookingID int64 `json:"booking_id" validate:"required,min=1"`
}

// RegisterRequest is the payload for creating a user account.
type RegisterRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginRequest is the payload for logging in.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse carries a signed JWT back to the client.
type TokenResponse struct {
	Token string `json:"token"`
}

// MessageResponse is a simple confirmation envelope.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
