package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and local runs. A per-trip
// mutex gives TripTxn the same exclusivity the Postgres row lock provides.
type Memory struct {
	mu        sync.Mutex
	users     map[string]*User  // by id
	byTg      map[int64]string  // telegram id -> user id
	profiles  map[string]*DriverProfile
	trips     map[string]*Trip
	bookings  map[string]*Booking
	tripLocks map[string]*sync.Mutex
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:     make(map[string]*User),
		byTg:      make(map[int64]string),
		profiles:  make(map[string]*DriverProfile),
		trips:     make(map[string]*Trip),
		bookings:  make(map[string]*Booking),
		tripLocks: make(map[string]*sync.Mutex),
	}
}

// ---- Users ----

func (m *Memory) UserByTelegramID(_ context.Context, telegramID int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byTg[telegramID]
	if !ok {
		return nil, ErrNotFound
	}
	u := *m.users[id]
	return &u, nil
}

func (m *Memory) UserByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) CreateUser(_ context.Context, telegramID int64, fullName, phone string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byTg[telegramID]; ok {
		return nil, ErrInvalidState
	}
	u := &User{
		ID:          uuid.New().String(),
		TelegramID:  telegramID,
		FullName:    fullName,
		PhoneNumber: phone,
		Role:        RolePassenger,
		CreatedAt:   time.Now(),
	}
	m.users[u.ID] = u
	m.byTg[telegramID] = u.ID
	cp := *u
	return &cp, nil
}

func (m *Memory) SetUserRole(_ context.Context, telegramID int64, role string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byTg[telegramID]
	if !ok {
		return nil, ErrNotFound
	}
	m.users[id].Role = role
	cp := *m.users[id]
	return &cp, nil
}

func (m *Memory) SetUserBlocked(_ context.Context, telegramID int64, blocked bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byTg[telegramID]
	if !ok {
		return nil, ErrNotFound
	}
	m.users[id].Blocked = blocked
	cp := *m.users[id]
	return &cp, nil
}

func (m *Memory) Drivers(_ context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []User
	for _, u := range m.users {
		if u.Role == RoleDriver {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---- Driver profiles ----

func (m *Memory) UpsertDriverProfile(_ context.Context, p DriverProfile) (*DriverProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[p.UserID]
	if !ok {
		return nil, ErrNotFound
	}
	for owner, existing := range m.profiles {
		if existing.CarPlate == p.CarPlate && owner != p.UserID {
			return nil, ErrDuplicatePlate
		}
	}
	cp := p
	m.profiles[p.UserID] = &cp
	u.Role = RoleDriver
	out := p
	return &out, nil
}

func (m *Memory) DriverProfile(_ context.Context, userID string) (*DriverProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) PlateInUse(_ context.Context, plate, exceptUserID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for owner, p := range m.profiles {
		if p.CarPlate == plate && owner != exceptUserID {
			return true, nil
		}
	}
	return false, nil
}

// ---- Trips ----

func (m *Memory) CreateTrip(_ context.Context, t Trip) (*Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uuid.New().String()
	t.Status = TripScheduled
	t.AvailableSeats = t.TotalSeats
	t.CreatedAt = time.Now()
	cp := t
	m.trips[t.ID] = &cp
	return &t, nil
}

func (m *Memory) TripByID(_ context.Context, id string) (*Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) DriverTrips(_ context.Context, driverID string, activeOnly bool) ([]Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Trip
	for _, t := range m.trips {
		if t.DriverID != driverID {
			continue
		}
		if activeOnly && t.Status != TripScheduled && t.Status != TripActive {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureAt.Before(out[j].DepartureAt) })
	return out, nil
}

func (m *Memory) SearchTrips(_ context.Context, departureCity, arrivalCity string, day time.Time) ([]Trip, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	from := strings.ToLower(departureCity)
	to := strings.ToLower(arrivalCity)

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Trip
	for _, t := range m.trips {
		if t.Status != TripScheduled || t.AvailableSeats <= 0 {
			continue
		}
		if !strings.Contains(strings.ToLower(t.DepartureCity), from) ||
			!strings.Contains(strings.ToLower(t.ArrivalCity), to) {
			continue
		}
		if t.DepartureAt.Before(start) || !t.DepartureAt.Before(end) {
			continue
		}
		if driver, ok := m.users[t.DriverID]; ok && driver.Blocked {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureAt.Before(out[j].DepartureAt) })
	return out, nil
}

// ---- Bookings ----

func (m *Memory) BookingByID(_ context.Context, id string) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *Memory) PassengerBookings(_ context.Context, passengerID string, activeOnly bool) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Booking
	for _, b := range m.bookings {
		if b.PassengerID != passengerID {
			continue
		}
		if activeOnly {
			if b.Status != BookingConfirmed {
				continue
			}
			t := m.trips[b.TripID]
			if t == nil || (t.Status != TripScheduled && t.Status != TripActive) {
				continue
			}
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookedAt.After(out[j].BookedAt) })
	return out, nil
}

// ---- Trip transaction ----

// TripTxn serializes per trip via a dedicated mutex. Mutations are staged on
// the transaction and applied only when fn returns nil.
func (m *Memory) TripTxn(_ context.Context, tripID string, fn func(tx TripTxn) error) error {
	m.mu.Lock()
	if _, ok := m.trips[tripID]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	lock, ok := m.tripLocks[tripID]
	if !ok {
		lock = &sync.Mutex{}
		m.tripLocks[tripID] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	snapshot := *m.trips[tripID]
	m.mu.Unlock()

	txn := &memTripTxn{
		m:        m,
		trip:     &snapshot,
		statuses: make(map[string]string),
	}
	if err := fn(txn); err != nil {
		return err
	}

	m.mu.Lock()
	*m.trips[tripID] = *txn.trip
	for _, b := range txn.inserted {
		cp := *b
		m.bookings[b.ID] = &cp
	}
	for id, status := range txn.statuses {
		m.bookings[id].Status = status
	}
	m.mu.Unlock()
	return nil
}

type memTripTxn struct {
	m        *Memory
	trip     *Trip
	inserted []*Booking
	statuses map[string]string
}

func (t *memTripTxn) Trip() *Trip { return t.trip }

func (t *memTripTxn) Booking(id string) (*Booking, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	b, ok := t.m.bookings[id]
	if !ok || b.TripID != t.trip.ID {
		return nil, ErrNotFound
	}
	cp := *b
	if s, staged := t.statuses[id]; staged {
		cp.Status = s
	}
	return &cp, nil
}

func (t *memTripTxn) ConfirmedBookings() ([]Booking, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	var out []Booking
	for _, b := range t.m.bookings {
		if b.TripID != t.trip.ID {
			continue
		}
		cp := *b
		if s, staged := t.statuses[b.ID]; staged {
			cp.Status = s
		}
		if cp.Status == BookingConfirmed {
			out = append(out, cp)
		}
	}
	for _, b := range t.inserted {
		if b.Status == BookingConfirmed {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookedAt.Before(out[j].BookedAt) })
	return out, nil
}

func (t *memTripTxn) HasConfirmedBooking(passengerID string) (bool, error) {
	bookings, err := t.ConfirmedBookings()
	if err != nil {
		return false, err
	}
	for _, b := range bookings {
		if b.PassengerID == passengerID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTripTxn) InsertBooking(passengerID string, seats int) (*Booking, error) {
	b := &Booking{
		ID:          uuid.New().String(),
		PassengerID: passengerID,
		TripID:      t.trip.ID,
		SeatsBooked: seats,
		Status:      BookingConfirmed,
		BookedAt:    time.Now(),
	}
	t.inserted = append(t.inserted, b)
	cp := *b
	return &cp, nil
}

func (t *memTripTxn) SetAvailableSeats(n int) error {
	t.trip.AvailableSeats = n
	return nil
}

func (t *memTripTxn) SetTripStatus(status string) error {
	t.trip.Status = status
	return nil
}

func (t *memTripTxn) SetBookingStatus(bookingID, status string) error {
	if _, err := t.Booking(bookingID); err != nil {
		return err
	}
	t.statuses[bookingID] = status
	return nil
}
