// Package inventory enforces the seat-count and status invariants on trips
// and bookings. Every mutation runs inside a single per-trip transaction, so
// racing callers for the same trip are serialized: booking the last seat
// succeeds exactly once.
package inventory

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/1IT-Programmer/BotTaxi/internal/notify"
	"github.com/1IT-Programmer/BotTaxi/internal/store"
	rredis "github.com/1IT-Programmer/BotTaxi/pkg/redis"
)

// Service contains booking and trip business logic.
type Service struct {
	store    store.Store
	cache    *rredis.Client
	notifier *notify.Dispatcher
}

// NewService creates an inventory service. cache and notifier may be nil.
func NewService(st store.Store, cache *rredis.Client, notifier *notify.Dispatcher) *Service {
	return &Service{store: st, cache: cache, notifier: notifier}
}

// CreateBooking reserves seats on a trip for a passenger. The four checks
// (trip exists, trip scheduled, seats available, no confirmed duplicate) and
// the seat decrement happen atomically against concurrent bookings.
func (s *Service) CreateBooking(ctx context.Context, passengerID, tripID string, seats int) (*store.Booking, *store.Trip, error) {
	if seats < 1 {
		return nil, nil, store.ErrInvalidState
	}

	var (
		booking *store.Booking
		trip    store.Trip
	)
	err := s.store.TripTxn(ctx, tripID, func(tx store.TripTxn) error {
		t := tx.Trip()
		if t.Status != store.TripScheduled {
			return store.ErrInvalidState
		}
		if t.AvailableSeats < seats {
			return store.ErrInsufficientSeats
		}
		dup, err := tx.HasConfirmedBooking(passengerID)
		if err != nil {
			return err
		}
		if dup {
			return store.ErrDuplicateBooking
		}

		booking, err = tx.InsertBooking(passengerID, seats)
		if err != nil {
			return err
		}
		if err := tx.SetAvailableSeats(t.AvailableSeats - seats); err != nil {
			return err
		}
		trip = *tx.Trip()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	log.Printf("[inventory] booking %s created: trip=%s passenger=%s seats=%d left=%d",
		booking.ID, trip.ID, passengerID, seats, trip.AvailableSeats)
	s.invalidate(ctx, trip.ID)
	if s.notifier != nil {
		s.notifier.BookingCreated(ctx, booking, &trip)
	}
	return booking, &trip, nil
}

// CancelBooking cancels a confirmed booking and returns its seats to the
// trip. requestedBy must be the booking's passenger (cancelledBy=passenger)
// or the trip's driver (cancelledBy=driver). Re-cancelling an already
// cancelled booking is rejected, not a no-op.
func (s *Service) CancelBooking(ctx context.Context, bookingID, cancelledBy, requestedBy string) (*store.Booking, *store.Trip, error) {
	ref, err := s.store.BookingByID(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}

	target := store.BookingCancelledByPassenger
	if cancelledBy == store.RoleDriver {
		target = store.BookingCancelledByDriver
	}

	var (
		booking *store.Booking
		trip    store.Trip
	)
	err = s.store.TripTxn(ctx, ref.TripID, func(tx store.TripTxn) error {
		b, err := tx.Booking(bookingID)
		if err != nil {
			return err
		}
		if b.Status != store.BookingConfirmed {
			return store.ErrInvalidState
		}
		t := tx.Trip()
		switch target {
		case store.BookingCancelledByPassenger:
			if b.PassengerID != requestedBy {
				return store.ErrForbidden
			}
		case store.BookingCancelledByDriver:
			if t.DriverID != requestedBy {
				return store.ErrForbidden
			}
		}

		if err := tx.SetBookingStatus(b.ID, target); err != nil {
			return err
		}
		if err := tx.SetAvailableSeats(t.AvailableSeats + b.SeatsBooked); err != nil {
			return err
		}
		b.Status = target
		booking = b
		trip = *tx.Trip()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	log.Printf("[inventory] booking %s cancelled by %s: trip=%s seats returned=%d left=%d",
		booking.ID, cancelledBy, trip.ID, booking.SeatsBooked, trip.AvailableSeats)
	s.invalidate(ctx, trip.ID)
	if s.notifier != nil {
		s.notifier.BookingCancelled(ctx, booking, &trip)
	}
	return booking, &trip, nil
}

// CancelTrip cancels a trip the driver owns and cascades the cancellation to
// every confirmed booking, returning the affected bookings so passengers can
// be told. Seats are returned regardless: a cancelled trip is never
// re-activated.
func (s *Service) CancelTrip(ctx context.Context, tripID, requestingDriverID string) (*store.Trip, []store.Booking, error) {
	var (
		trip     store.Trip
		affected []store.Booking
	)
	err := s.store.TripTxn(ctx, tripID, func(tx store.TripTxn) error {
		t := tx.Trip()
		if t.DriverID != requestingDriverID {
			return store.ErrForbidden
		}
		if t.Status != store.TripScheduled && t.Status != store.TripActive {
			return store.ErrInvalidState
		}

		confirmed, err := tx.ConfirmedBookings()
		if err != nil {
			return err
		}
		if err := tx.SetTripStatus(store.TripCancelled); err != nil {
			return err
		}

		returned := 0
		for i := range confirmed {
			if err := tx.SetBookingStatus(confirmed[i].ID, store.BookingCancelledByDriver); err != nil {
				return err
			}
			confirmed[i].Status = store.BookingCancelledByDriver
			returned += confirmed[i].SeatsBooked
		}
		if returned > 0 {
			if err := tx.SetAvailableSeats(t.AvailableSeats + returned); err != nil {
				return err
			}
		}
		affected = confirmed
		trip = *tx.Trip()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	log.Printf("[inventory] trip %s cancelled by driver: %d bookings affected", trip.ID, len(affected))
	s.invalidate(ctx, trip.ID)
	if s.notifier != nil {
		s.notifier.TripCancelled(ctx, &trip, affected)
	}
	return &trip, affected, nil
}

// CreateTrip publishes a new trip for a driver. All seats start available.
func (s *Service) CreateTrip(ctx context.Context, t store.Trip) (*store.Trip, error) {
	if t.TotalSeats < 1 {
		return nil, store.ErrInvalidState
	}
	created, err := s.store.CreateTrip(ctx, t)
	if err != nil {
		return nil, err
	}
	log.Printf("[inventory] trip %s created: %s -> %s seats=%d",
		created.ID, created.DepartureCity, created.ArrivalCity, created.TotalSeats)
	s.cacheSummary(ctx, created)
	return created, nil
}

// FindAvailableTrips returns bookable trips for a route on a calendar day:
// scheduled, seats free, driver not blocked, ordered by departure.
func (s *Service) FindAvailableTrips(ctx context.Context, departureCity, arrivalCity string, date time.Time) ([]store.Trip, error) {
	return s.store.SearchTrips(ctx, departureCity, arrivalCity, date)
}

// DriverTrips lists a driver's scheduled and active trips.
func (s *Service) DriverTrips(ctx context.Context, driverID string) ([]store.Trip, error) {
	return s.store.DriverTrips(ctx, driverID, true)
}

// PassengerBookings lists a passenger's confirmed bookings on upcoming trips.
func (s *Service) PassengerBookings(ctx context.Context, passengerID string) ([]store.Booking, error) {
	return s.store.PassengerBookings(ctx, passengerID, true)
}

// TripByID fetches a single trip.
func (s *Service) TripByID(ctx context.Context, id string) (*store.Trip, error) {
	return s.store.TripByID(ctx, id)
}

// TripSummary returns a flat summary of a trip, cache-first.
func (s *Service) TripSummary(ctx context.Context, tripID string) (map[string]string, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetCachedTrip(ctx, tripID); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}
	t, err := s.store.TripByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	summary := tripSummary(t)
	s.cacheSummary(ctx, t)
	return summary, nil
}

func (s *Service) cacheSummary(ctx context.Context, t *store.Trip) {
	if s.cache == nil {
		return
	}
	if err := s.cache.CacheTrip(ctx, t.ID, tripSummary(t)); err != nil {
		log.Printf("[inventory] trip cache write %s: %v", t.ID, err)
	}
}

func (s *Service) invalidate(ctx context.Context, tripID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateTrip(ctx, tripID); err != nil {
		log.Printf("[inventory] trip cache invalidate %s: %v", tripID, err)
	}
}

func tripSummary(t *store.Trip) map[string]string {
	return map[string]string{
		"id":              t.ID,
		"driver_id":       t.DriverID,
		"departure_city":  t.DepartureCity,
		"arrival_city":    t.ArrivalCity,
		"departure_at":    t.DepartureAt.Format(time.RFC3339),
		"total_seats":     strconv.Itoa(t.TotalSeats),
		"available_seats": strconv.Itoa(t.AvailableSeats),
		"status":          t.Status,
	}
}
