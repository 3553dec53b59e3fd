package dialog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/1IT-Programmer/BotTaxi/internal/events"
	"github.com/1IT-Programmer/BotTaxi/internal/inventory"
	"github.com/1IT-Programmer/BotTaxi/internal/notify"
	"github.com/1IT-Programmer/BotTaxi/internal/outcome"
	"github.com/1IT-Programmer/BotTaxi/internal/store"
	"github.com/1IT-Programmer/BotTaxi/pkg/validation"
)

// Flow names used by the router to start sessions.
const (
	FlowRegistration     = "registration"
	FlowDriverOnboarding = "driver_onboarding"
	FlowTripCreate       = "trip_create"
	FlowTripSearch       = "trip_search"
	FlowSupport          = "support"
	FlowAdminPromote     = "admin_promote"
	FlowAdminBlock       = "admin_block"
	FlowAdminUnblock     = "admin_unblock"
)

// Deps are the services flows call from their validators and terminal
// actions.
type Deps struct {
	Store     store.Store
	Inventory *inventory.Service
	Notifier  *notify.Dispatcher
	Now       func() time.Time
}

// Registry holds the flow definitions built against one set of deps.
type Registry struct {
	flows map[string]*Flow
}

// NewRegistry builds every flow. Deps.Now defaults to time.Now.
func NewRegistry(d Deps) *Registry {
	if d.Now == nil {
		d.Now = time.Now
	}
	r := &Registry{flows: make(map[string]*Flow)}
	for _, f := range []*Flow{
		registrationFlow(d),
		driverOnboardingFlow(d),
		tripCreateFlow(d),
		tripSearchFlow(d),
		supportFlow(d),
		adminRoleFlow(d, FlowAdminPromote),
		adminRoleFlow(d, FlowAdminBlock),
		adminRoleFlow(d, FlowAdminUnblock),
	} {
		r.flows[f.Name] = f
	}
	return r
}

// Flow returns a registered flow by name, nil when unknown.
func (r *Registry) Flow(name string) *Flow {
	return r.flows[name]
}

// textField adapts a plain string validator into a state acceptor that
// rejects anything but a text event.
func textField(validate func(string) (string, error)) func(context.Context, Input) (any, error) {
	return func(_ context.Context, in Input) (any, error) {
		if in.Event.Kind != EventText {
			return nil, fmt.Errorf("%w: expected text", validation.ErrInvalid)
		}
		return validate(in.Event.Text)
	}
}

func registrationFlow(d Deps) *Flow {
	return &Flow{
		Name: FlowRegistration,
		States: []State{
			{
				Field:  "phone",
				Prompt: outcome.PromptPhone,
				Accept: func(_ context.Context, in Input) (any, error) {
					if in.Event.Kind != EventContact || in.Event.Phone == "" {
						return nil, fmt.Errorf("%w: share your contact with the button", validation.ErrInvalid)
					}
					return in.Event.Phone, nil
				},
			},
			{Field: "full_name", Prompt: outcome.PromptFullName, Accept: textField(validation.FullName)},
		},
		Finish: func(ctx context.Context, telegramID int64, _ *store.User, fields map[string]any) (outcome.Outcome, error) {
			u, err := d.Store.CreateUser(ctx, telegramID, fields["full_name"].(string), fields["phone"].(string))
			if err != nil {
				return nil, err
			}
			return outcome.Registered{User: u}, nil
		},
	}
}

func driverOnboardingFlow(d Deps) *Flow {
	return &Flow{
		Name: FlowDriverOnboarding,
		States: []State{
			{Field: "car_make", Prompt: outcome.PromptCarMake, Accept: textField(validation.CarMake)},
			{Field: "car_model", Prompt: outcome.PromptCarModel, Accept: textField(validation.CarModel)},
			{Field: "car_color", Prompt: outcome.PromptCarColor, Accept: textField(validation.CarColor)},
			{
				Field:  "car_plate",
				Prompt: outcome.PromptCarPlate,
				Accept: func(ctx context.Context, in Input) (any, error) {
					if in.Event.Kind != EventText {
						return nil, fmt.Errorf("%w: expected text", validation.ErrInvalid)
					}
					plate, err := validation.Plate(in.Event.Text)
					if err != nil {
						return nil, err
					}
					used, err := d.Store.PlateInUse(ctx, plate, in.User.ID)
					if err != nil {
						return nil, err
					}
					if used {
						return nil, fmt.Errorf("%w: plate already registered", validation.ErrInvalid)
					}
					return plate, nil
				},
			},
		},
		Finish: func(ctx context.Context, _ int64, u *store.User, fields map[string]any) (outcome.Outcome, error) {
			p, err := d.Store.UpsertDriverProfile(ctx, store.DriverProfile{
				UserID:   u.ID,
				CarMake:  fields["car_make"].(string),
				CarModel: fields["car_model"].(string),
				CarColor: fields["car_color"].(string),
				CarPlate: fields["car_plate"].(string),
			})
			if err != nil {
				return nil, err
			}
			return outcome.DriverRegistered{Profile: p}, nil
		},
	}
}

func tripCreateFlow(d Deps) *Flow {
	return &Flow{
		Name: FlowTripCreate,
		States: []State{
			{Field: "departure_city", Prompt: outcome.PromptDepartureCity, Accept: textField(validation.City)},
			{Field: "arrival_city", Prompt: outcome.PromptArrivalCity, Accept: textField(validation.City)},
			{
				Field:  "departure_at",
				Prompt: outcome.PromptDepartureTime,
				Accept: func(_ context.Context, in Input) (any, error) {
					if in.Event.Kind != EventText {
						return nil, fmt.Errorf("%w: expected text", validation.ErrInvalid)
					}
					now := d.Now()
					dep, err := validation.ParseDateTime(in.Event.Text, now)
					if err != nil {
						return nil, err
					}
					if !dep.After(now) {
						return nil, fmt.Errorf("%w: departure is in the past", validation.ErrInvalid)
					}
					return dep, nil
				},
			},
			{
				Field:  "arrival_at",
				Prompt: outcome.PromptArrivalTime,
				Accept: func(_ context.Context, in Input) (any, error) {
					if in.Event.Kind != EventText {
						return nil, fmt.Errorf("%w: expected text", validation.ErrInvalid)
					}
					arr, err := validation.ParseDateTime(in.Event.Text, d.Now())
					if err != nil {
						return nil, err
					}
					if !arr.After(in.Fields["departure_at"].(time.Time)) {
						return nil, fmt.Errorf("%w: arrival is not after departure", validation.ErrInvalid)
					}
					return arr, nil
				},
			},
			{
				Field:  "seats",
				Prompt: outcome.PromptSeats,
				Accept: func(_ context.Context, in Input) (any, error) {
					if in.Event.Kind != EventText {
						return nil, fmt.Errorf("%w: expected text", validation.ErrInvalid)
					}
					return validation.Seats(in.Event.Text)
				},
			},
		},
		Finish: func(ctx context.Context, _ int64, u *store.User, fields map[string]any) (outcome.Outcome, error) {
			arr := fields["arrival_at"].(time.Time)
			seats := fields["seats"].(int)
			t, err := d.Inventory.CreateTrip(ctx, store.Trip{
				DriverID:       u.ID,
				DepartureCity:  fields["departure_city"].(string),
				ArrivalCity:    fields["arrival_city"].(string),
				DepartureAt:    fields["departure_at"].(time.Time),
				ArrivalAt:      &arr,
				TotalSeats:     seats,
				AvailableSeats: seats,
			})
			if err != nil {
				return nil, err
			}
			return outcome.TripCreated{Trip: t}, nil
		},
	}
}

func tripSearchFlow(d Deps) *Flow {
	return &Flow{
		Name: FlowTripSearch,
		States: []State{
			{Field: "from", Prompt: outcome.PromptSearchFrom, Accept: textField(validation.City)},
			{Field: "to", Prompt: outcome.PromptSearchTo, Accept: textField(validation.City)},
			{
				Field:  "date",
				Prompt: outcome.PromptSearchDate,
				Accept: func(_ context.Context, in Input) (any, error) {
					if in.Event.Kind != EventText {
						return nil, fmt.Errorf("%w: expected text", validation.ErrInvalid)
					}
					return validation.ParseDate(in.Event.Text, d.Now())
				},
			},
		},
		Finish: func(ctx context.Context, _ int64, _ *store.User, fields map[string]any) (outcome.Outcome, error) {
			from := fields["from"].(string)
			to := fields["to"].(string)
			date := fields["date"].(time.Time)
			trips, err := d.Inventory.FindAvailableTrips(ctx, from, to, date)
			if err != nil {
				return nil, err
			}
			return outcome.TripsFound{From: from, To: to, Date: date, Trips: trips}, nil
		},
	}
}

func supportFlow(d Deps) *Flow {
	return &Flow{
		Name: FlowSupport,
		States: []State{
			{
				Field:  "text",
				Prompt: outcome.PromptSupportText,
				Accept: textField(func(s string) (string, error) {
					s = strings.TrimSpace(s)
					if s == "" {
						return "", fmt.Errorf("%w: empty message", validation.ErrInvalid)
					}
					return s, nil
				}),
			},
		},
		Finish: func(ctx context.Context, _ int64, u *store.User, fields map[string]any) (outcome.Outcome, error) {
			d.Notifier.SupportMessage(ctx, u, fields["text"].(string))
			return outcome.SupportSent{}, nil
		},
	}
}

// adminRoleFlow covers promote, block and unblock: one numeric Telegram id
// field and a store mutation.
func adminRoleFlow(d Deps, name string) *Flow {
	return &Flow{
		Name: name,
		States: []State{
			{
				Field:  "target",
				Prompt: outcome.PromptAdminUserID,
				Accept: textField(func(s string) (string, error) {
					s = strings.TrimSpace(s)
					if _, err := strconv.ParseInt(s, 10, 64); err != nil {
						return "", fmt.Errorf("%w: telegram id must be a number", validation.ErrInvalid)
					}
					return s, nil
				}),
			},
		},
		Finish: func(ctx context.Context, _ int64, _ *store.User, fields map[string]any) (outcome.Outcome, error) {
			target, _ := strconv.ParseInt(fields["target"].(string), 10, 64)
			current, err := d.Store.UserByTelegramID(ctx, target)
			if err != nil {
				return nil, err
			}
			switch name {
			case FlowAdminPromote:
				if current.Role == store.RoleDriver {
					return outcome.AdminRoleChanged{User: current, Action: "promoted", Already: true}, nil
				}
				u, err := d.Store.SetUserRole(ctx, target, store.RoleDriver)
				if err != nil {
					return nil, err
				}
				d.Notifier.AccountNotice(ctx, u, events.NoticePromoted)
				return outcome.AdminRoleChanged{User: u, Action: "promoted"}, nil
			case FlowAdminBlock:
				if current.Blocked {
					return outcome.AdminRoleChanged{User: current, Action: "blocked", Already: true}, nil
				}
				u, err := d.Store.SetUserBlocked(ctx, target, true)
				if err != nil {
					return nil, err
				}
				d.Notifier.AccountNotice(ctx, u, events.NoticeBlocked)
				return outcome.AdminRoleChanged{User: u, Action: "blocked"}, nil
			default:
				if !current.Blocked {
					return outcome.AdminRoleChanged{User: current, Action: "unblocked", Already: true}, nil
				}
				u, err := d.Store.SetUserBlocked(ctx, target, false)
				if err != nil {
					return nil, err
				}
				d.Notifier.AccountNotice(ctx, u, events.NoticeUnblocked)
				return outcome.AdminRoleChanged{User: u, Action: "unblocked"}, nil
			}
		},
	}
}
