package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	userCols    = `id, telegram_id, full_name, phone_number, role, is_blocked, created_at`
	tripCols    = `id, driver_id, departure_city, arrival_city, departure_at, arrival_at, total_seats, available_seats, status, created_at`
	bookingCols = `id, passenger_id, trip_id, seats_booked, status, booked_at`

	tripColsT    = `t.id, t.driver_id, t.departure_city, t.arrival_city, t.departure_at, t.arrival_at, t.total_seats, t.available_seats, t.status, t.created_at`
	bookingColsB = `b.id, b.passenger_id, b.trip_id, b.seats_booked, b.status, b.booked_at`
)

// Postgres is the durable Store implementation.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.TelegramID, &u.FullName, &u.PhoneNumber, &u.Role, &u.Blocked, &u.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func scanTrip(row rowScanner) (*Trip, error) {
	var t Trip
	err := row.Scan(&t.ID, &t.DriverID, &t.DepartureCity, &t.ArrivalCity, &t.DepartureAt, &t.ArrivalAt,
		&t.TotalSeats, &t.AvailableSeats, &t.Status, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func scanBooking(row rowScanner) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.PassengerID, &b.TripID, &b.SeatsBooked, &b.Status, &b.BookedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &b, nil
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicatePlate
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// ---- Users ----

func (s *Postgres) UserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE telegram_id=$1`, telegramID))
}

func (s *Postgres) UserByID(ctx context.Context, id string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE id=$1`, id))
}

func (s *Postgres) CreateUser(ctx context.Context, telegramID int64, fullName, phone string) (*User, error) {
	u := &User{
		ID:          uuid.New().String(),
		TelegramID:  telegramID,
		FullName:    fullName,
		PhoneNumber: phone,
		Role:        RolePassenger,
		CreatedAt:   time.Now(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, telegram_id, full_name, phone_number, role, is_blocked, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.TelegramID, u.FullName, u.PhoneNumber, u.Role, u.Blocked, u.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

func (s *Postgres) SetUserRole(ctx context.Context, telegramID int64, role string) (*User, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET role=$1 WHERE telegram_id=$2`, role, telegramID)
	if err != nil {
		return nil, mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.UserByTelegramID(ctx, telegramID)
}

func (s *Postgres) SetUserBlocked(ctx context.Context, telegramID int64, blocked bool) (*User, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET is_blocked=$1 WHERE telegram_id=$2`, blocked, telegramID)
	if err != nil {
		return nil, mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.UserByTelegramID(ctx, telegramID)
}

func (s *Postgres) Drivers(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userCols+` FROM users WHERE role=$1 ORDER BY created_at`, RoleDriver)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, mapRowsErr(rows.Err())
}

// ---- Driver profiles ----

func (s *Postgres) UpsertDriverProfile(ctx context.Context, p DriverProfile) (*DriverProfile, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	defer tx.Rollback(ctx)

	var owner string
	err = tx.QueryRow(ctx,
		`SELECT user_id FROM driver_profiles WHERE car_plate=$1`, p.CarPlate).Scan(&owner)
	if err == nil && owner != p.UserID {
		return nil, ErrDuplicatePlate
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, mapErr(err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO driver_profiles (user_id, car_make, car_model, car_color, car_plate)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (user_id) DO UPDATE
		 SET car_make=$2, car_model=$3, car_color=$4, car_plate=$5`,
		p.UserID, p.CarMake, p.CarModel, p.CarColor, p.CarPlate)
	if err != nil {
		return nil, mapErr(err)
	}

	// Creating a profile is the self-service role-promotion path.
	tag, err := tx.Exec(ctx, `UPDATE users SET role=$1 WHERE id=$2`, RoleDriver, p.UserID)
	if err != nil {
		return nil, mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (s *Postgres) DriverProfile(ctx context.Context, userID string) (*DriverProfile, error) {
	var p DriverProfile
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, car_make, car_model, car_color, car_plate
		 FROM driver_profiles WHERE user_id=$1`, userID).
		Scan(&p.UserID, &p.CarMake, &p.CarModel, &p.CarColor, &p.CarPlate)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (s *Postgres) PlateInUse(ctx context.Context, plate, exceptUserID string) (bool, error) {
	var owner string
	err := s.pool.QueryRow(ctx,
		`SELECT user_id FROM driver_profiles WHERE car_plate=$1`, plate).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapErr(err)
	}
	return owner != exceptUserID, nil
}

// ---- Trips ----

func (s *Postgres) CreateTrip(ctx context.Context, t Trip) (*Trip, error) {
	t.ID = uuid.New().String()
	t.Status = TripScheduled
	t.AvailableSeats = t.TotalSeats
	t.CreatedAt = time.Now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trips (id, driver_id, departure_city, arrival_city, departure_at, arrival_at,
		                    total_seats, available_seats, status, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.ID, t.DriverID, t.DepartureCity, t.ArrivalCity, t.DepartureAt, t.ArrivalAt,
		t.TotalSeats, t.AvailableSeats, t.Status, t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (s *Postgres) TripByID(ctx context.Context, id string) (*Trip, error) {
	return scanTrip(s.pool.QueryRow(ctx,
		`SELECT `+tripCols+` FROM trips WHERE id=$1`, id))
}

func (s *Postgres) DriverTrips(ctx context.Context, driverID string, activeOnly bool) ([]Trip, error) {
	q := `SELECT ` + tripCols + ` FROM trips WHERE driver_id=$1`
	args := []any{driverID}
	if activeOnly {
		q += ` AND status IN ($2,$3)`
		args = append(args, TripScheduled, TripActive)
	}
	q += ` ORDER BY departure_at`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return collectTrips(rows)
}

func (s *Postgres) SearchTrips(ctx context.Context, departureCity, arrivalCity string, day time.Time) ([]Trip, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	rows, err := s.pool.Query(ctx,
		`SELECT `+tripColsT+`
		 FROM trips t JOIN users u ON u.id = t.driver_id
		 WHERE t.departure_city ILIKE '%' || $1 || '%'
		   AND t.arrival_city   ILIKE '%' || $2 || '%'
		   AND t.departure_at >= $3 AND t.departure_at < $4
		   AND t.available_seats > 0
		   AND t.status = $5
		   AND u.is_blocked = FALSE
		 ORDER BY t.departure_at`,
		departureCity, arrivalCity, start, end, TripScheduled)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return collectTrips(rows)
}

func collectTrips(rows pgx.Rows) ([]Trip, error) {
	var out []Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, mapRowsErr(rows.Err())
}

// ---- Bookings ----

func (s *Postgres) BookingByID(ctx context.Context, id string) (*Booking, error) {
	return scanBooking(s.pool.QueryRow(ctx,
		`SELECT `+bookingCols+` FROM bookings WHERE id=$1`, id))
}

func (s *Postgres) PassengerBookings(ctx context.Context, passengerID string, activeOnly bool) ([]Booking, error) {
	q := `SELECT ` + bookingColsB + ` FROM bookings b`
	args := []any{passengerID}
	if activeOnly {
		q += ` JOIN trips t ON t.id = b.trip_id
		       WHERE b.passenger_id=$1 AND b.status=$2 AND t.status IN ($3,$4)`
		args = append(args, BookingConfirmed, TripScheduled, TripActive)
	} else {
		q += ` WHERE b.passenger_id=$1`
	}
	q += ` ORDER BY b.booked_at DESC`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, mapRowsErr(rows.Err())
}

// ---- Trip transaction ----

// TripTxn locks the trip row FOR UPDATE for the duration of fn, so all seat
// accounting for one trip is serialized at the database.
func (s *Postgres) TripTxn(ctx context.Context, tripID string, fn func(tx TripTxn) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapErr(err)
	}
	defer tx.Rollback(ctx)

	t, err := scanTrip(tx.QueryRow(ctx,
		`SELECT `+tripCols+` FROM trips WHERE id=$1 FOR UPDATE`, tripID))
	if err != nil {
		return err
	}

	pt := &pgTripTxn{ctx: ctx, tx: tx, trip: t}
	if err := fn(pt); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr(err)
	}
	return nil
}

type pgTripTxn struct {
	ctx  context.Context
	tx   pgx.Tx
	trip *Trip
}

func (t *pgTripTxn) Trip() *Trip { return t.trip }

func (t *pgTripTxn) Booking(id string) (*Booking, error) {
	return scanBooking(t.tx.QueryRow(t.ctx,
		`SELECT `+bookingCols+` FROM bookings WHERE id=$1 AND trip_id=$2`, id, t.trip.ID))
}

func (t *pgTripTxn) ConfirmedBookings() ([]Booking, error) {
	rows, err := t.tx.Query(t.ctx,
		`SELECT `+bookingCols+` FROM bookings WHERE trip_id=$1 AND status=$2 ORDER BY booked_at`,
		t.trip.ID, BookingConfirmed)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, mapRowsErr(rows.Err())
}

func (t *pgTripTxn) HasConfirmedBooking(passengerID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(t.ctx,
		`SELECT EXISTS(SELECT 1 FROM bookings WHERE trip_id=$1 AND passenger_id=$2 AND status=$3)`,
		t.trip.ID, passengerID, BookingConfirmed).Scan(&exists)
	if err != nil {
		return false, mapErr(err)
	}
	return exists, nil
}

func (t *pgTripTxn) InsertBooking(passengerID string, seats int) (*Booking, error) {
	b := &Booking{
		ID:          uuid.New().String(),
		PassengerID: passengerID,
		TripID:      t.trip.ID,
		SeatsBooked: seats,
		Status:      BookingConfirmed,
		BookedAt:    time.Now(),
	}
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO bookings (id, passenger_id, trip_id, seats_booked, status, booked_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		b.ID, b.PassengerID, b.TripID, b.SeatsBooked, b.Status, b.BookedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return b, nil
}

func (t *pgTripTxn) SetAvailableSeats(n int) error {
	_, err := t.tx.Exec(t.ctx,
		`UPDATE trips SET available_seats=$1 WHERE id=$2`, n, t.trip.ID)
	if err != nil {
		return mapErr(err)
	}
	t.trip.AvailableSeats = n
	return nil
}

func (t *pgTripTxn) SetTripStatus(status string) error {
	_, err := t.tx.Exec(t.ctx,
		`UPDATE trips SET status=$1 WHERE id=$2`, status, t.trip.ID)
	if err != nil {
		return mapErr(err)
	}
	t.trip.Status = status
	return nil
}

func (t *pgTripTxn) SetBookingStatus(bookingID, status string) error {
	tag, err := t.tx.Exec(t.ctx,
		`UPDATE bookings SET status=$1 WHERE id=$2 AND trip_id=$3`, status, bookingID, t.trip.ID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func mapRowsErr(err error) error {
	if err == nil {
		return nil
	}
	return mapErr(err)
}
