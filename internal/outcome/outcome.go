package outcome

import (
	"time"

	"github.com/1IT-Programmer/BotTaxi/internal/store"
)

// Prompt identifies a question a dialog asks the user. The transport layer
// owns the wording so the core stays free of presentation strings.
type Prompt string

const (
	PromptPhone         Prompt = "phone"
	PromptFullName      Prompt = "full_name"
	PromptCarMake       Prompt = "car_make"
	PromptCarModel      Prompt = "car_model"
	PromptCarColor      Prompt = "car_color"
	PromptCarPlate      Prompt = "car_plate"
	PromptDepartureCity Prompt = "departure_city"
	PromptArrivalCity   Prompt = "arrival_city"
	PromptDepartureTime Prompt = "departure_time"
	PromptArrivalTime   Prompt = "arrival_time"
	PromptSeats         Prompt = "seats"
	PromptSearchFrom    Prompt = "search_from"
	PromptSearchTo      Prompt = "search_to"
	PromptSearchDate    Prompt = "search_date"
	PromptSupportText   Prompt = "support_text"
	PromptAdminUserID   Prompt = "admin_user_id"
)

// Outcome is one unit of reply the router hands to the transport. A single
// incoming event may produce several (a result followed by a menu).
type Outcome any

// Ask requests the next piece of dialog input. Invalid marks a re-prompt
// after rejected input.
type Ask struct {
	Prompt  Prompt
	Invalid bool
}

// Registered reports a completed passenger registration.
type Registered struct {
	User *store.User
}

// DriverRegistered reports a completed driver onboarding.
type DriverRegistered struct {
	Profile *store.DriverProfile
}

// AlreadyDriver is returned when a driver re-enters onboarding.
type AlreadyDriver struct{}

// TripCreated reports a freshly published trip.
type TripCreated struct {
	Trip *store.Trip
}

// TripsFound carries search results for a route and day.
type TripsFound struct {
	From  string
	To    string
	Date  time.Time
	Trips []store.Trip
}

// BookingCreated reports a confirmed reservation.
type BookingCreated struct {
	Booking *store.Booking
	Trip    *store.Trip
}

// BookingCancelled reports a passenger-side cancellation.
type BookingCancelled struct {
	Booking *store.Booking
	Trip    *store.Trip
}

// TripCancelled reports a driver-side trip cancellation with the bookings
// that were voided by the cascade.
type TripCancelled struct {
	Trip     *store.Trip
	Affected []store.Booking
}

// MyTrips lists a driver's upcoming trips.
type MyTrips struct {
	Trips []store.Trip
}

// MyBookings lists a passenger's confirmed bookings with their trips.
type MyBookings struct {
	Bookings []store.Booking
	Trips    map[string]*store.Trip
}

// SupportSent acknowledges a forwarded support message.
type SupportSent struct{}

// AdminDrivers lists registered drivers for an operator.
type AdminDrivers struct {
	Drivers  []store.User
	Profiles map[string]*store.DriverProfile
}

// AdminRoleChanged reports a promote, block or unblock applied to a user.
// Already is set when the user was in the requested state before the call.
type AdminRoleChanged struct {
	User    *store.User
	Action  string // "promoted", "blocked", "unblocked"
	Already bool
}

// Menu shows the command menu for a role.
type Menu struct {
	Role string
}

// Cancelled confirms that a pending dialog was discarded.
type Cancelled struct{}

// Help shows the command reference.
type Help struct{}

// Blocked tells a blocked user the bot is unavailable to them.
type Blocked struct{}

// NotRegistered nudges an unknown sender towards registration.
type NotRegistered struct{}

// Unknown is returned for a command the router does not recognise.
type Unknown struct{}

// Failure wraps a terminal error. The transport maps Err to user wording
// with errors.Is against the store sentinels.
type Failure struct {
	Err error
}
