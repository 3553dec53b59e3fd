package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/1IT-Programmer/BotTaxi/internal/events"
	"github.com/1IT-Programmer/BotTaxi/internal/store"
)

type recorder struct {
	mu      sync.Mutex
	fail    bool
	to      []int64
	notices []events.Notice
}

func (r *recorder) Notify(_ context.Context, telegramID int64, n events.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("transport down")
	}
	r.to = append(r.to, telegramID)
	r.notices = append(r.notices, n)
	return nil
}

func seed(t *testing.T) (*store.Memory, *store.User, *store.User, *store.Trip) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	driver, _ := mem.CreateUser(ctx, 10, "Иванов Иван Иванович", "+70000000010")
	passenger, _ := mem.CreateUser(ctx, 20, "Петров Пётр Петрович", "+70000000020")
	trip, err := mem.CreateTrip(ctx, store.Trip{
		DriverID: driver.ID, DepartureCity: "Москва", ArrivalCity: "Казань",
		DepartureAt: time.Now().Add(24 * time.Hour), TotalSeats: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	return mem, driver, passenger, trip
}

func TestBookingCreatedGoesToDriver(t *testing.T) {
	ctx := context.Background()
	mem, driver, passenger, trip := seed(t)
	rec := &recorder{}
	d := NewDispatcher(mem, rec, nil, nil, nil)

	b := &store.Booking{ID: "b1", PassengerID: passenger.ID, TripID: trip.ID,
		SeatsBooked: 1, Status: store.BookingConfirmed}
	d.BookingCreated(ctx, b, trip)

	if len(rec.to) != 1 || rec.to[0] != driver.TelegramID {
		t.Fatalf("recipients = %v, want driver %d", rec.to, driver.TelegramID)
	}
	n := rec.notices[0]
	if n.Kind != events.NoticeBookingCreated || n.From == nil || n.From.ID != passenger.ID {
		t.Errorf("notice = %+v", n)
	}
}

func TestBookingCancelledTargetsCounterparty(t *testing.T) {
	ctx := context.Background()
	mem, driver, passenger, trip := seed(t)
	rec := &recorder{}
	d := NewDispatcher(mem, rec, nil, nil, nil)

	// Passenger-side cancel tells the driver.
	d.BookingCancelled(ctx, &store.Booking{ID: "b1", PassengerID: passenger.ID,
		TripID: trip.ID, SeatsBooked: 1, Status: store.BookingCancelledByPassenger}, trip)
	// Driver-side cancel tells the passenger.
	d.BookingCancelled(ctx, &store.Booking{ID: "b2", PassengerID: passenger.ID,
		TripID: trip.ID, SeatsBooked: 1, Status: store.BookingCancelledByDriver}, trip)

	if len(rec.to) != 2 || rec.to[0] != driver.TelegramID || rec.to[1] != passenger.TelegramID {
		t.Errorf("recipients = %v", rec.to)
	}
}

func TestTripCancelledNotifiesEveryAffectedPassenger(t *testing.T) {
	ctx := context.Background()
	mem, _, p1, trip := seed(t)
	p2, _ := mem.CreateUser(ctx, 30, "Сидоров Сидор Сидорович", "+70000000030")
	rec := &recorder{}
	d := NewDispatcher(mem, rec, nil, nil, nil)

	cancelled := []store.Booking{
		{ID: "b1", PassengerID: p1.ID, TripID: trip.ID, SeatsBooked: 2, Status: store.BookingCancelledByDriver},
		{ID: "b2", PassengerID: p2.ID, TripID: trip.ID, SeatsBooked: 1, Status: store.BookingCancelledByDriver},
	}
	d.TripCancelled(ctx, trip, cancelled)

	if len(rec.to) != 2 {
		t.Fatalf("notified %d passengers, want 2", len(rec.to))
	}
	got := map[int64]bool{rec.to[0]: true, rec.to[1]: true}
	if !got[p1.TelegramID] || !got[p2.TelegramID] {
		t.Errorf("recipients = %v", rec.to)
	}
	for _, n := range rec.notices {
		if n.Kind != events.NoticeTripCancelled {
			t.Errorf("kind = %s", n.Kind)
		}
	}
}

func TestDeliveryFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	mem, _, passenger, trip := seed(t)
	rec := &recorder{fail: true}
	d := NewDispatcher(mem, rec, nil, nil, nil)

	// Must not panic or surface anything.
	d.BookingCreated(ctx, &store.Booking{ID: "b1", PassengerID: passenger.ID,
		TripID: trip.ID, SeatsBooked: 1, Status: store.BookingConfirmed}, trip)
	d.TripCancelled(ctx, trip, []store.Booking{
		{ID: "b1", PassengerID: passenger.ID, TripID: trip.ID, SeatsBooked: 1},
	})
}
