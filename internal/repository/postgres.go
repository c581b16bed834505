package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventtix/eventtix/internal/model"
)

// PostgresStore implements Store on top of a pgxpool connection pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const eventColumns = `id, name, description, start_date, end_date, total_tickets, available_tickets, created_at`

const bookingColumns = `id, reference, user_id, event_id, number_of_tickets, status, created_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.StartDate, &e.EndDate,
		&e.TotalTickets, &e.AvailableTickets, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.Reference, &b.UserID, &b.EventID,
		&b.NumberOfTickets, &b.Status, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateEvent inserts a new event and returns it with its generated ID.
func (s *PostgresStore) CreateEvent(ctx context.Context, ev *model.Event) (*model.Event, error) {
	created := *ev
	created.CreatedAt = time.Now().UTC()
	err := s.db.QueryRow(ctx,
		`INSERT INTO events (name, description, start_date, end_date, total_tickets, available_tickets, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		created.Name, created.Description, created.StartDate, created.EndDate,
		created.TotalTickets, created.AvailableTickets, created.CreatedAt,
	).Scan(&created.ID)
	if err != nil {
		return nil, storageErr("insert event", err)
	}
	return &created, nil
}

// GetEvent returns a single event or ErrNotFound.
func (s *PostgresStore) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	e, err := scanEvent(s.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get event", err)
	}
	return e, nil
}

// ListEvents returns all events ordered by creation time descending.
func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, storageErr("list events", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, storageErr("scan event", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list events", err)
	}
	return events, nil
}

// WaitingCount returns the number of waiting bookings for an event.
func (s *PostgresStore) WaitingCount(ctx context.Context, eventID int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM bookings WHERE event_id = $1 AND status = $2`,
		eventID, model.StatusWaiting,
	).Scan(&n)
	if err != nil {
		return 0, storageErr("count waiting bookings", err)
	}
	return n, nil
}

// GetBooking returns the booking owned by userID, or ErrNotFound.
func (s *PostgresStore) GetBooking(ctx context.Context, bookingID, userID int64) (*model.Booking, error) {
	b, err := scanBooking(s.db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND user_id = $2`,
		bookingID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get booking", err)
	}
	return b, nil
}

// ListUserBookings returns all bookings of one user, newest first.
func (s *PostgresStore) ListUserBookings(ctx context.Context, userID int64) ([]model.Booking, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, storageErr("list bookings", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, storageErr("scan booking", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list bookings", err)
	}
	return bookings, nil
}

// CreateUser inserts a new user or returns ErrDuplicateUser when the email
// is taken.
func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	created := *u
	created.CreatedAt = time.Now().UTC()

	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, created.Email,
	).Scan(&exists)
	if err != nil {
		return nil, storageErr("check user", err)
	}
	if exists {
		return nil, ErrDuplicateUser
	}

	err = s.db.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO NOTHING
		 RETURNING id`,
		created.Username, created.Email, created.PasswordHash, created.CreatedAt,
	).Scan(&created.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race against a concurrent registration.
			return nil, ErrDuplicateUser
		}
		return nil, storageErr("insert user", err)
	}
	return &created, nil
}

// GetUserByEmail returns a user or ErrNotFound.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(ctx,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get user", err)
	}
	return &u, nil
}

// InTx runs fn inside a single database transaction. Any error from fn
// rolls the transaction back, which also releases every row lock acquired
// through the Tx view.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	// Rollback is a no-op after a successful commit.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storageErr("commit transaction", err)
	}
	return nil
}

// pgTx implements Tx over an open pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

// EventForUpdate acquires an exclusive row-level lock on the event.
//
// A naive read-then-write of available_tickets is broken under load: two
// transactions read the same counter before either writes back, and both
// see free capacity. SELECT ... FOR UPDATE blocks every other transaction
// attempting the same lock until we COMMIT or ROLLBACK, so concurrent
// bookings for one event serialize their read-check-decrement sequence.
// The lock is per event row; other events are unaffected.
func (t *pgTx) EventForUpdate(ctx context.Context, eventID int64) (*model.Event, error) {
	e, err := scanEvent(t.tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("lock event row", err)
	}
	return e, nil
}

// BookingForUpdate reloads a booking under the lock, scoped to its owner.
func (t *pgTx) BookingForUpdate(ctx context.Context, bookingID, userID int64) (*model.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		bookingID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("lock booking row", err)
	}
	return b, nil
}

// InsertBooking persists a new booking inside the transaction.
func (t *pgTx) InsertBooking(ctx context.Context, b *model.Booking) (*model.Booking, error) {
	created := *b
	created.Reference = uuid.New().String()
	created.CreatedAt = time.Now().UTC()
	err := t.tx.QueryRow(ctx,
		`INSERT INTO bookings (reference, user_id, event_id, number_of_tickets, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		created.Reference, created.UserID, created.EventID,
		created.NumberOfTickets, created.Status, created.CreatedAt,
	).Scan(&created.ID)
	if err != nil {
		return nil, storageErr("insert booking", err)
	}
	return &created, nil
}

// AddAvailable adjusts the event's available ticket counter. The schema's
// CHECK constraint rejects any adjustment outside [0, total_tickets].
func (t *pgTx) AddAvailable(ctx context.Context, eventID int64, delta int) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE events SET available_tickets = available_tickets + $2 WHERE id = $1`,
		eventID, delta)
	if err != nil {
		return storageErr("update available_tickets", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBookingStatus updates one booking's status.
func (t *pgTx) SetBookingStatus(ctx context.Context, bookingID int64, status model.BookingStatus) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE bookings SET status = $2 WHERE id = $1`, bookingID, status)
	if err != nil {
		return storageErr("update booking status", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// OldestWaiting returns the first-created waiting booking for the event,
// or nil when none exists. Ties on created_at break by id, which follows
// insertion order.
func (t *pgTx) OldestWaiting(ctx context.Context, eventID int64) (*model.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE event_id = $1 AND status = $2
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1
		 FOR UPDATE`,
		eventID, model.StatusWaiting))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("select oldest waiting booking", err)
	}
	return b, nil
}
