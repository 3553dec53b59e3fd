// Package events defines the payloads published after inventory mutations
// and the notices delivered to counterparties.
package events

import "github.com/1IT-Programmer/BotTaxi/internal/store"

// BookingCreatedEvent is published to booking.created.
type BookingCreatedEvent struct {
	BookingID      string `json:"booking_id"`
	TripID         string `json:"trip_id"`
	PassengerID    string `json:"passenger_id"`
	SeatsBooked    int    `json:"seats_booked"`
	AvailableSeats int    `json:"available_seats"`
	BookedAt       string `json:"booked_at"`
}

// BookingCancelledEvent is published to booking.cancelled.
type BookingCancelledEvent struct {
	BookingID      string `json:"booking_id"`
	TripID         string `json:"trip_id"`
	PassengerID    string `json:"passenger_id"`
	CancelledBy    string `json:"cancelled_by"`
	SeatsReturned  int    `json:"seats_returned"`
	AvailableSeats int    `json:"available_seats"`
}

// TripCancelledEvent is published to trip.cancelled.
type TripCancelledEvent struct {
	TripID           string `json:"trip_id"`
	DriverID         string `json:"driver_id"`
	DepartureCity    string `json:"departure_city"`
	ArrivalCity      string `json:"arrival_city"`
	AffectedBookings int    `json:"affected_bookings"`
	CancelledAt      string `json:"cancelled_at"`
}

// NoticeKind labels a per-recipient notification.
type NoticeKind string

const (
	NoticeBookingCreated   NoticeKind = "booking_created"
	NoticeBookingCancelled NoticeKind = "booking_cancelled"
	NoticeTripCancelled    NoticeKind = "trip_cancelled"
	NoticeSupportMessage   NoticeKind = "support_message"
	NoticePromoted         NoticeKind = "promoted"
	NoticeBlocked          NoticeKind = "blocked"
	NoticeUnblocked        NoticeKind = "unblocked"
)

// Notice is a semantic notification for one recipient. The presentation
// layer renders it; the core never formats text.
type Notice struct {
	Kind    NoticeKind
	Trip    *store.Trip
	Booking *store.Booking
	// From is the counterparty that triggered the notice (the passenger for
	// driver-bound booking notices, the sender for support messages).
	From *store.User
	Text string
}
