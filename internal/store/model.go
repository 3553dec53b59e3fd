package store

import "time"

// Role enumerates user roles. A user holds exactly one role at a time.
const (
	RolePassenger = "passenger"
	RoleDriver    = "driver"
	RoleAdmin     = "admin"
)

// Trip lifecycle states.
const (
	TripScheduled = "scheduled"
	TripActive    = "active"
	TripCompleted = "completed"
	TripCancelled = "cancelled"
)

// Booking states. Cancelled states are terminal.
const (
	BookingConfirmed            = "confirmed"
	BookingCancelledByPassenger = "cancelled_by_passenger"
	BookingCancelledByDriver    = "cancelled_by_driver"
)

// User is an account keyed by its immutable Telegram identity.
type User struct {
	ID          string    `json:"id"`
	TelegramID  int64     `json:"telegram_id"`
	FullName    string    `json:"full_name"`
	PhoneNumber string    `json:"phone_number"`
	Role        string    `json:"role"`
	Blocked     bool      `json:"blocked"`
	CreatedAt   time.Time `json:"created_at"`
}

// DriverProfile is the 1:1 vehicle record owned by a driver.
type DriverProfile struct {
	UserID   string `json:"user_id"`
	CarMake  string `json:"car_make"`
	CarModel string `json:"car_model"`
	CarColor string `json:"car_color"`
	CarPlate string `json:"car_plate"`
}

// Trip is a published intercity ride. AvailableSeats is a running total;
// it is mutated only inside TripTxn.
type Trip struct {
	ID             string     `json:"id"`
	DriverID       string     `json:"driver_id"`
	DepartureCity  string     `json:"departure_city"`
	ArrivalCity    string     `json:"arrival_city"`
	DepartureAt    time.Time  `json:"departure_at"`
	ArrivalAt      *time.Time `json:"arrival_at,omitempty"`
	TotalSeats     int        `json:"total_seats"`
	AvailableSeats int        `json:"available_seats"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Booking links a passenger to a trip.
type Booking struct {
	ID          string    `json:"id"`
	PassengerID string    `json:"passenger_id"`
	TripID      string    `json:"trip_id"`
	SeatsBooked int       `json:"seats_booked"`
	Status      string    `json:"status"`
	BookedAt    time.Time `json:"booked_at"`
}
