// Package router owns session lifecycle and command dispatch. It maps each
// incoming event to either the user's active dialog session or an entry
// command, serialising all handling per user.
package router

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/1IT-Programmer/BotTaxi/internal/dialog"
	"github.com/1IT-Programmer/BotTaxi/internal/inventory"
	"github.com/1IT-Programmer/BotTaxi/internal/outcome"
	"github.com/1IT-Programmer/BotTaxi/internal/store"
)

type Router struct {
	store store.Store
	inv   *inventory.Service
	flows *dialog.Registry

	adminIDs map[int64]bool

	mu    sync.Mutex
	lanes map[int64]*lane
}

// lane serialises handling for one user. Its mutex is held for the whole
// of Handle, so a session is never stepped concurrently.
type lane struct {
	mu      sync.Mutex
	session *dialog.Session
}

func New(st store.Store, inv *inventory.Service, flows *dialog.Registry, adminIDs []int64) *Router {
	ids := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		ids[id] = true
	}
	return &Router{
		store:    st,
		inv:      inv,
		flows:    flows,
		adminIDs: ids,
		lanes:    make(map[int64]*lane),
	}
}

func (r *Router) lane(telegramID int64) *lane {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lanes[telegramID]
	if !ok {
		l = &lane{}
		r.lanes[telegramID] = l
	}
	return l
}

// Handle processes one event for one user and returns the replies to send,
// in order. Events from the same user are handled strictly one at a time.
func (r *Router) Handle(ctx context.Context, telegramID int64, ev dialog.Event) []outcome.Outcome {
	l := r.lane(telegramID)
	l.mu.Lock()
	defer l.mu.Unlock()

	u, err := r.store.UserByTelegramID(ctx, telegramID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return []outcome.Outcome{outcome.Failure{Err: err}}
	}

	if u == nil {
		return r.handleUnregistered(ctx, telegramID, l, ev)
	}
	if u.Blocked {
		l.session = nil
		return []outcome.Outcome{outcome.Blocked{}}
	}

	if l.session != nil {
		return r.stepSession(ctx, telegramID, u, l, ev)
	}

	switch ev.Kind {
	case dialog.EventCommand:
		return r.handleCommand(ctx, u, l, ev.Text)
	case dialog.EventButton:
		return r.handleButton(ctx, u, ev.Text)
	default:
		return []outcome.Outcome{outcome.Menu{Role: r.role(u)}}
	}
}

// handleUnregistered funnels every unknown sender into registration. Any
// command or button is the universal first contact.
func (r *Router) handleUnregistered(ctx context.Context, telegramID int64, l *lane, ev dialog.Event) []outcome.Outcome {
	if l.session != nil {
		switch ev.Kind {
		case dialog.EventText, dialog.EventContact:
			return r.stepSession(ctx, telegramID, nil, l, ev)
		default:
			// A command restarts registration from the top.
			l.session = nil
		}
	}
	if ev.Kind == dialog.EventCommand || ev.Kind == dialog.EventButton {
		return r.startFlow(l, dialog.FlowRegistration)
	}
	return []outcome.Outcome{outcome.NotRegistered{}}
}

func (r *Router) stepSession(ctx context.Context, telegramID int64, u *store.User, l *lane, ev dialog.Event) []outcome.Outcome {
	// Commands and buttons never feed a dialog. Any of them abandons the
	// session; the user re-issues the command afterwards.
	if ev.Kind == dialog.EventCommand || ev.Kind == dialog.EventButton {
		l.session = nil
		out := []outcome.Outcome{outcome.Cancelled{}}
		if u != nil {
			out = append(out, outcome.Menu{Role: r.role(u)})
		}
		return out
	}

	res := l.session.Step(ctx, telegramID, u, ev)
	switch res.Status {
	case dialog.StepReprompt:
		return []outcome.Outcome{outcome.Ask{Prompt: res.Prompt, Invalid: true}}
	case dialog.StepNext:
		return []outcome.Outcome{outcome.Ask{Prompt: res.Prompt}}
	case dialog.StepFailed:
		log.Printf("[router] dialog %s step failed: %v", l.session.Flow.Name, res.Err)
		return []outcome.Outcome{outcome.Failure{Err: res.Err}}
	default: // StepDone
		l.session = nil
		if res.Err != nil {
			log.Printf("[router] dialog finish failed: %v", res.Err)
			return []outcome.Outcome{outcome.Failure{Err: res.Err}}
		}
		out := []outcome.Outcome{res.Outcome}
		switch v := res.Outcome.(type) {
		case outcome.Registered:
			out = append(out, outcome.Menu{Role: v.User.Role})
		case outcome.DriverRegistered:
			out = append(out, outcome.Menu{Role: store.RoleDriver})
		}
		return out
	}
}

func (r *Router) handleCommand(ctx context.Context, u *store.User, l *lane, cmd string) []outcome.Outcome {
	switch cmd {
	case "start":
		if r.adminIDs[u.TelegramID] && u.Role != store.RoleAdmin {
			if up, err := r.store.SetUserRole(ctx, u.TelegramID, store.RoleAdmin); err == nil {
				u = up
			}
		}
		return []outcome.Outcome{outcome.Menu{Role: r.role(u)}}
	case "help":
		return []outcome.Outcome{outcome.Help{}}
	case "cancel":
		// Always succeeds, with or without a pending dialog.
		return []outcome.Outcome{outcome.Cancelled{}, outcome.Menu{Role: r.role(u)}}
	case "find_trip":
		return r.startFlow(l, dialog.FlowTripSearch)
	case "my_bookings":
		return r.myBookings(ctx, u)
	case "register_driver":
		if u.Role == store.RoleDriver {
			if _, err := r.store.DriverProfile(ctx, u.ID); err == nil {
				return []outcome.Outcome{outcome.AlreadyDriver{}}
			}
		}
		return r.startFlow(l, dialog.FlowDriverOnboarding)
	case "create_trip":
		if u.Role != store.RoleDriver && u.Role != store.RoleAdmin {
			return []outcome.Outcome{outcome.Failure{Err: store.ErrForbidden}}
		}
		return r.startFlow(l, dialog.FlowTripCreate)
	case "my_trips":
		if u.Role != store.RoleDriver && u.Role != store.RoleAdmin {
			return []outcome.Outcome{outcome.Failure{Err: store.ErrForbidden}}
		}
		trips, err := r.inv.DriverTrips(ctx, u.ID)
		if err != nil {
			return []outcome.Outcome{outcome.Failure{Err: err}}
		}
		return []outcome.Outcome{outcome.MyTrips{Trips: trips}}
	case "support":
		return r.startFlow(l, dialog.FlowSupport)
	case "admin":
		if !r.isAdmin(u) {
			return []outcome.Outcome{outcome.Unknown{}}
		}
		return []outcome.Outcome{outcome.Menu{Role: store.RoleAdmin}}
	case "list_drivers":
		if !r.isAdmin(u) {
			return []outcome.Outcome{outcome.Unknown{}}
		}
		return r.listDrivers(ctx)
	case "add_driver":
		if !r.isAdmin(u) {
			return []outcome.Outcome{outcome.Unknown{}}
		}
		return r.startFlow(l, dialog.FlowAdminPromote)
	case "block_driver":
		if !r.isAdmin(u) {
			return []outcome.Outcome{outcome.Unknown{}}
		}
		return r.startFlow(l, dialog.FlowAdminBlock)
	case "unblock_driver":
		if !r.isAdmin(u) {
			return []outcome.Outcome{outcome.Unknown{}}
		}
		return r.startFlow(l, dialog.FlowAdminUnblock)
	default:
		return []outcome.Outcome{outcome.Unknown{}}
	}
}

func (r *Router) handleButton(ctx context.Context, u *store.User, data string) []outcome.Outcome {
	switch {
	case strings.HasPrefix(data, "book_"):
		b, t, err := r.inv.CreateBooking(ctx, u.ID, strings.TrimPrefix(data, "book_"), 1)
		if err != nil {
			return []outcome.Outcome{outcome.Failure{Err: err}}
		}
		return []outcome.Outcome{outcome.BookingCreated{Booking: b, Trip: t}}
	case strings.HasPrefix(data, "cancel_booking_"):
		id := strings.TrimPrefix(data, "cancel_booking_")
		b, t, err := r.inv.CancelBooking(ctx, id, store.BookingCancelledByPassenger, u.ID)
		if err != nil {
			return []outcome.Outcome{outcome.Failure{Err: err}}
		}
		return []outcome.Outcome{outcome.BookingCancelled{Booking: b, Trip: t}}
	case strings.HasPrefix(data, "cancel_trip_"):
		id := strings.TrimPrefix(data, "cancel_trip_")
		t, affected, err := r.inv.CancelTrip(ctx, id, u.ID)
		if err != nil {
			return []outcome.Outcome{outcome.Failure{Err: err}}
		}
		return []outcome.Outcome{outcome.TripCancelled{Trip: t, Affected: affected}}
	default:
		return []outcome.Outcome{outcome.Unknown{}}
	}
}

func (r *Router) myBookings(ctx context.Context, u *store.User) []outcome.Outcome {
	bookings, err := r.inv.PassengerBookings(ctx, u.ID)
	if err != nil {
		return []outcome.Outcome{outcome.Failure{Err: err}}
	}
	trips := make(map[string]*store.Trip, len(bookings))
	for _, b := range bookings {
		if _, ok := trips[b.TripID]; ok {
			continue
		}
		t, err := r.inv.TripByID(ctx, b.TripID)
		if err != nil {
			continue
		}
		trips[b.TripID] = t
	}
	return []outcome.Outcome{outcome.MyBookings{Bookings: bookings, Trips: trips}}
}

func (r *Router) listDrivers(ctx context.Context) []outcome.Outcome {
	drivers, err := r.store.Drivers(ctx)
	if err != nil {
		return []outcome.Outcome{outcome.Failure{Err: err}}
	}
	profiles := make(map[string]*store.DriverProfile, len(drivers))
	for _, d := range drivers {
		if p, err := r.store.DriverProfile(ctx, d.ID); err == nil {
			profiles[d.ID] = p
		}
	}
	return []outcome.Outcome{outcome.AdminDrivers{Drivers: drivers, Profiles: profiles}}
}

func (r *Router) startFlow(l *lane, name string) []outcome.Outcome {
	f := r.flows.Flow(name)
	if f == nil {
		return []outcome.Outcome{outcome.Unknown{}}
	}
	l.session = f.Start()
	return []outcome.Outcome{outcome.Ask{Prompt: l.session.Prompt()}}
}

func (r *Router) isAdmin(u *store.User) bool {
	return u.Role == store.RoleAdmin || r.adminIDs[u.TelegramID]
}

func (r *Router) role(u *store.User) string {
	if r.adminIDs[u.TelegramID] {
		return store.RoleAdmin
	}
	return u.Role
}
