// Package store is the entity store for users, driver profiles, trips and
// bookings. Implementations must make TripTxn exclusive per trip: every seat
// or booking-status mutation for a trip happens inside it, serialized against
// concurrent callers for the same trip.
package store

import (
	"context"
	"time"
)

// Store exposes durable entity operations. Two implementations exist: a
// Postgres store used in production and an in-memory store used by tests.
type Store interface {
	// Users. Setters are idempotent and return ErrNotFound for absent users.
	UserByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	UserByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, telegramID int64, fullName, phone string) (*User, error)
	SetUserRole(ctx context.Context, telegramID int64, role string) (*User, error)
	SetUserBlocked(ctx context.Context, telegramID int64, blocked bool) (*User, error)
	Drivers(ctx context.Context) ([]User, error)

	// Driver profiles. UpsertDriverProfile overwrites an existing profile
	// in place and promotes the owner to the driver role; it returns
	// ErrDuplicatePlate when the plate belongs to another driver.
	UpsertDriverProfile(ctx context.Context, p DriverProfile) (*DriverProfile, error)
	DriverProfile(ctx context.Context, userID string) (*DriverProfile, error)
	// PlateInUse reports whether a normalised plate belongs to a profile
	// owned by a different user.
	PlateInUse(ctx context.Context, plate, exceptUserID string) (bool, error)

	// Trips.
	CreateTrip(ctx context.Context, t Trip) (*Trip, error)
	TripByID(ctx context.Context, id string) (*Trip, error)
	DriverTrips(ctx context.Context, driverID string, activeOnly bool) ([]Trip, error)
	// SearchTrips matches departure/arrival city case-insensitively as a
	// substring, scoped to the calendar day of `day`, and returns only
	// scheduled trips with free seats whose driver is not blocked, ordered
	// by departure time.
	SearchTrips(ctx context.Context, departureCity, arrivalCity string, day time.Time) ([]Trip, error)

	// Bookings.
	BookingByID(ctx context.Context, id string) (*Booking, error)
	PassengerBookings(ctx context.Context, passengerID string, activeOnly bool) ([]Booking, error)

	// TripTxn runs fn while holding exclusive ownership of the trip and its
	// bookings. Mutations made through the TripTxn are applied atomically:
	// either all of them commit or none do. Returns ErrNotFound if the trip
	// does not exist.
	TripTxn(ctx context.Context, tripID string, fn func(tx TripTxn) error) error
}

// TripTxn is the mutation surface available while a trip is locked. Trip()
// reflects mutations already made in the same transaction.
type TripTxn interface {
	Trip() *Trip
	Booking(id string) (*Booking, error)
	ConfirmedBookings() ([]Booking, error)
	HasConfirmedBooking(passengerID string) (bool, error)
	InsertBooking(passengerID string, seats int) (*Booking, error)
	SetAvailableSeats(n int) error
	SetTripStatus(status string) error
	SetBookingStatus(bookingID, status string) error
}
