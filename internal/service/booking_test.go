package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/eventtix/eventtix/internal/model"
	"github.com/eventtix/eventtix/internal/repository"
	"github.com/eventtix/eventtix/internal/service"
)

func newEngine(t *testing.T) (*service.BookingService, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	return service.NewBookingService(store), store
}

func createEvent(t *testing.T, svc *service.BookingService, total int) *model.Event {
	t.Helper()
	event, err := svc.InitializeEvent(context.Background(), model.CreateEventRequest{
		Name:         "Concert",
		Description:  "An evening of live music",
		StartDate:    time.Now().Add(24 * time.Hour),
		EndDate:      time.Now().Add(27 * time.Hour),
		TotalTickets: total,
	})
	require.NoError(t, err)
	return event
}

// requireCapacityInvariant checks that 0 <= available <= total and that
// available + the sum of booked quantities equals total.
func requireCapacityInvariant(t *testing.T, store repository.Store, eventID int64, userIDs ...int64) {
	t.Helper()
	ctx := context.Background()
	event, err := store.GetEvent(ctx, eventID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, event.AvailableTickets, 0)
	require.LessOrEqual(t, event.AvailableTickets, event.TotalTickets)

	booked := 0
	for _, userID := range userIDs {
		bookings, err := store.ListUserBookings(ctx, userID)
		require.NoError(t, err)
		for _, b := range bookings {
			if b.EventID == eventID && b.Status == model.StatusBooked {
				booked += b.NumberOfTickets
			}
		}
	}
	require.Equal(t, event.TotalTickets, event.AvailableTickets+booked)
}

func TestInitializeEvent(t *testing.T) {
	svc, _ := newEngine(t)

	event := createEvent(t, svc, 10)
	assert.Positive(t, event.ID)
	assert.Equal(t, 10, event.TotalTickets)
	assert.Equal(t, 10, event.AvailableTickets)

	t.Run("rejects malformed input", func(t *testing.T) {
		var verr *service.ValidationError
		_, err := svc.InitializeEvent(context.Background(), model.CreateEventRequest{
			Name:         "",
			Description:  "d",
			StartDate:    time.Now(),
			EndDate:      time.Now(),
			TotalTickets: 5,
		})
		require.ErrorAs(t, err, &verr)

		_, err = svc.InitializeEvent(context.Background(), model.CreateEventRequest{
			Name:         "n",
			Description:  "d",
			StartDate:    time.Now(),
			EndDate:      time.Now(),
			TotalTickets: 0,
		})
		require.ErrorAs(t, err, &verr)
	})
}

func TestBookTicket(t *testing.T) {
	ctx := context.Background()

	t.Run("decrements capacity", func(t *testing.T) {
		svc, store := newEngine(t)
		event := createEvent(t, svc, 10)

		booking, err := svc.BookTicket(ctx, 1, model.BookTicketRequest{
			EventID:         event.ID,
			NumberOfTickets: 3,
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusBooked, booking.Status)
		assert.Equal(t, 3, booking.NumberOfTickets)
		assert.NotEmpty(t, booking.Reference)

		got, err := store.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 7, got.AvailableTickets)
		requireCapacityInvariant(t, store, event.ID, 1)
	})

	t.Run("insufficient capacity leaves no trace", func(t *testing.T) {
		svc, store := newEngine(t)
		event := createEvent(t, svc, 2)

		_, err := svc.BookTicket(ctx, 1, model.BookTicketRequest{
			EventID:         event.ID,
			NumberOfTickets: 5,
		})
		require.ErrorIs(t, err, service.ErrInsufficientTickets)

		got, err := store.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.AvailableTickets)

		bookings, err := store.ListUserBookings(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, bookings)
	})

	t.Run("join waitlist consumes no capacity", func(t *testing.T) {
		svc, store := newEngine(t)
		event := createEvent(t, svc, 2)

		booking, err := svc.BookTicket(ctx, 1, model.BookTicketRequest{
			EventID:         event.ID,
			NumberOfTickets: 5,
			JoinWaitlist:    true,
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusWaiting, booking.Status)

		got, err := store.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.AvailableTickets)

		status, err := svc.GetEventStatus(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, status.WaitingListCount)
	})

	t.Run("unknown event", func(t *testing.T) {
		svc, _ := newEngine(t)
		_, err := svc.BookTicket(ctx, 1, model.BookTicketRequest{
			EventID:         999,
			NumberOfTickets: 1,
		})
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		svc, _ := newEngine(t)
		event := createEvent(t, svc, 2)

		var verr *service.ValidationError
		_, err := svc.BookTicket(ctx, 1, model.BookTicketRequest{
			EventID:         event.ID,
			NumberOfTickets: 0,
		})
		require.ErrorAs(t, err, &verr)
	})
}

func TestCancelBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("refunds capacity", func(t *testing.T) {
		svc, store := newEngine(t)
		event := createEvent(t, svc, 10)
		booking, err := svc.BookTicket(ctx, 1, model.BookTicketRequest{
			EventID:         event.ID,
			NumberOfTickets: 4,
		})
		require.NoError(t, err)

		require.NoError(t, svc.CancelBooking(ctx, 1, booking.ID))

		got, err := store.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, got.AvailableTickets)

		cancelled, err := store.GetBooking(ctx, booking.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, cancelled.Status)
	})

	t.Run("cancel is not repeatable", func(t *testing.T) {
		svc, store := newEngine(t)
		event := createEvent(t, svc, 10)
		booking, err := svc.BookTicket(ctx, 1, model.BookTicketRequest{
			EventID:         event.ID,
			NumberOfTickets: 4,
		})
		require.NoError(t, err)

		require.NoError(t, svc.CancelBooking(ctx, 1, booking.ID))
		err = svc.CancelBooking(ctx, 1, booking.ID)
		require.ErrorIs(t, err, service.ErrAlreadyCancelled)

		// The second cancel must not refund a second time.
		got, err := store.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, got.AvailableTickets)
	})

	t.Run("owner mismatch is not found", func(t *testing.T) {
		svc, _ := newEngine(t)
		event := createEvent(t, svc, 10)
		booking, err := svc.BookTicket(ctx, 1, model.BookTicketRequest{
			EventID:         event.ID,
			NumberOfTickets: 1,
		})
		require.NoError(t, err)

		err = svc.CancelBooking(ctx, 2, booking.ID)
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("cancelling a waiting booking refunds nothing", func(t *testing.T) {
		svc, store := newEngine(t)
		event := createEvent(t, svc, 2)
		waiting, err := svc.BookTicket(ctx, 1, model.BookTicketRequest{
			EventID:         event.ID,
			NumberOfTickets: 5,
			JoinWaitlist:    true,
		})
		require.NoError(t, err)

		require.NoError(t, svc.CancelBooking(ctx, 1, waiting.ID))

		got, err := store.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.AvailableTickets)

		status, err := svc.GetEventStatus(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, status.WaitingListCount)
	})
}

func TestWaitlistPromotion(t *testing.T) {
	ctx := context.Background()

	t.Run("cancellation promotes the oldest waiting booking", func(t *testing.T) {
		// Scenario: capacity fully booked, a waiting booking for the
		// same quantity exists. Cancelling returns capacity and the
		// waiting booking consumes all of it again.
		svc, store := newEngine(t)
		event := createEvent(t, svc, 4)

		booked, err := svc.BookTicket(ctx, 1, model.BookTicketRequest{
			EventID:         event.ID,
			NumberOfTickets: 4,
		})
		require.NoError(t, err)

		waiting, err := svc.BookTicket(ctx, 2, model.BookTicketRequest{
			EventID:         event.ID,
			NumberOfTickets: 4,
			JoinWaitlist:    true,
		})
		require.NoError(t, err)

		require.NoError(t, svc.CancelBooking(ctx, 1, booked.ID))

		got, err := store.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.AvailableTickets)

		promoted, err := store.GetBooking(ctx, waiting.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, model.StatusBooked, promoted.Status)
		requireCapacityInvariant(t, store, event.ID, 1, 2)
	})

	t.Run("first created wins", func(t *testing.T) {
		svc, store := newEngine(t)
		event := createEvent(t, svc, 5)

		booked, err := svc.BookTicket(ctx, 1, model.BookTicketRequest{
			EventID:         event.ID,
			NumberOfTickets: 5,
		})
		require.NoError(t, err)

		w1, err := svc.BookTicket(ctx, 2, model.BookTicketRequest{
			EventID: event.ID, NumberOfTickets: 4, JoinWaitlist: true,
		})
		require.NoError(t, err)
		w2, err := svc.BookTicket(ctx, 3, model.BookTicketRequest{
			EventID: event.ID, NumberOfTickets: 1, JoinWaitlist: true,
		})
		require.NoError(t, err)

		require.NoError(t, svc.CancelBooking(ctx, 1, booked.ID))

		first, err := store.GetBooking(ctx, w1.ID, 2)
		require.NoError(t, err)
		assert.Equal(t, model.StatusBooked, first.Status)

		// Only one promotion per cancellation, even though the second
		// waiting booking would also fit the remaining capacity.
		second, err := store.GetBooking(ctx, w2.ID, 3)
		require.NoError(t, err)
		assert.Equal(t, model.StatusWaiting, second.Status)

		got, err := store.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.AvailableTickets)
	})

	t.Run("oversized head blocks promotion", func(t *testing.T) {
		// The oldest waiting booking is the only candidate; if it does
		// not fit, nothing is promoted even when a younger one would.
		svc, store := newEngine(t)
		event := createEvent(t, svc, 5)

		booked, err := svc.BookTicket(ctx, 1, model.BookTicketRequest{
			EventID:         event.ID,
			NumberOfTickets: 5,
		})
		require.NoError(t, err)

		w1, err := svc.BookTicket(ctx, 2, model.BookTicketRequest{
			EventID: event.ID, NumberOfTickets: 6, JoinWaitlist: true,
		})
		require.NoError(t, err)
		w2, err := svc.BookTicket(ctx, 3, model.BookTicketRequest{
			EventID: event.ID, NumberOfTickets: 1, JoinWaitlist: true,
		})
		require.NoError(t, err)

		require.NoError(t, svc.CancelBooking(ctx, 1, booked.ID))

		for userID, b := range map[int64]*model.Booking{2: w1, 3: w2} {
			got, err := store.GetBooking(ctx, b.ID, userID)
			require.NoError(t, err)
			assert.Equal(t, model.StatusWaiting, got.Status)
		}

		got, err := store.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, got.AvailableTickets)
	})
}

func TestGetEventStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newEngine(t)
	event := createEvent(t, svc, 10)

	_, err := svc.BookTicket(ctx, 1, model.BookTicketRequest{
		EventID: event.ID, NumberOfTickets: 10,
	})
	require.NoError(t, err)
	_, err = svc.BookTicket(ctx, 2, model.BookTicketRequest{
		EventID: event.ID, NumberOfTickets: 2, JoinWaitlist: true,
	})
	require.NoError(t, err)
	_, err = svc.BookTicket(ctx, 3, model.BookTicketRequest{
		EventID: event.ID, NumberOfTickets: 1, JoinWaitlist: true,
	})
	require.NoError(t, err)

	status, err := svc.GetEventStatus(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.ID, status.EventID)
	assert.Equal(t, 10, status.TotalTickets)
	assert.Equal(t, 0, status.AvailableTickets)
	assert.Equal(t, 2, status.WaitingListCount)

	_, err = svc.GetEventStatus(ctx, 999)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestConcurrentBookingNeverOversells(t *testing.T) {
	const (
		capacity = 20
		callers  = 50
	)
	ctx := context.Background()
	svc, store := newEngine(t)
	event := createEvent(t, svc, capacity)

	var succeeded, rejected atomic.Int64
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		userID := int64(i + 1)
		g.Go(func() error {
			_, err := svc.BookTicket(ctx, userID, model.BookTicketRequest{
				EventID:         event.ID,
				NumberOfTickets: 1,
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, service.ErrInsufficientTickets):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(capacity), succeeded.Load())
	assert.Equal(t, int64(callers-capacity), rejected.Load())

	got, err := store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableTickets)

	userIDs := make([]int64, callers)
	for i := range userIDs {
		userIDs[i] = int64(i + 1)
	}
	requireCapacityInvariant(t, store, event.ID, userIDs...)
}

func TestConcurrentBookAndCancel(t *testing.T) {
	const rounds = 30
	ctx := context.Background()
	svc, store := newEngine(t)
	event := createEvent(t, svc, 3)

	// Each worker books one ticket and immediately cancels it. The
	// capacity invariant must hold at the end no matter how the
	// critical sections interleave.
	var g errgroup.Group
	for i := 0; i < rounds; i++ {
		userID := int64(i + 1)
		g.Go(func() error {
			booking, err := svc.BookTicket(ctx, userID, model.BookTicketRequest{
				EventID:         event.ID,
				NumberOfTickets: 1,
			})
			if errors.Is(err, service.ErrInsufficientTickets) {
				return nil
			}
			if err != nil {
				return err
			}
			return svc.CancelBooking(ctx, userID, booking.ID)
		})
	}
	require.NoError(t, g.Wait())

	got, err := store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AvailableTickets)
}

// flakyStore delegates to a real store but makes the capacity update fail
// on demand, simulating a persistence fault mid-transaction.
type flakyStore struct {
	repository.Store
	failAdd atomic.Bool
}

func (s *flakyStore) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.Store.InTx(ctx, func(tx repository.Tx) error {
		return fn(&flakyTx{Tx: tx, s: s})
	})
}

type flakyTx struct {
	repository.Tx
	s *flakyStore
}

func (t *flakyTx) AddAvailable(ctx context.Context, eventID int64, delta int) error {
	if t.s.failAdd.Load() {
		return errors.New("simulated storage failure")
	}
	return t.Tx.AddAvailable(ctx, eventID, delta)
}

func TestStorageFailureRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: repository.NewMemoryStore()}
	svc := service.NewBookingService(store)
	event := createEvent(t, svc, 10)

	store.failAdd.Store(true)
	_, err := svc.BookTicket(ctx, 1, model.BookTicketRequest{
		EventID:         event.ID,
		NumberOfTickets: 3,
	})
	require.Error(t, err)

	// Neither the booking nor the decrement survives.
	got, err := store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.AvailableTickets)

	bookings, err := store.ListUserBookings(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, bookings)

	// The event lock was released on rollback: the next booking goes
	// through once the fault clears.
	store.failAdd.Store(false)
	booking, err := svc.BookTicket(ctx, 1, model.BookTicketRequest{
		EventID:         event.ID,
		NumberOfTickets: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusBooked, booking.Status)
}
