package dialog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/1IT-Programmer/BotTaxi/internal/events"
	"github.com/1IT-Programmer/BotTaxi/internal/inventory"
	"github.com/1IT-Programmer/BotTaxi/internal/notify"
	"github.com/1IT-Programmer/BotTaxi/internal/outcome"
	"github.com/1IT-Programmer/BotTaxi/internal/store"
)

// recorder captures delivered notices.
type recorder struct {
	mu      sync.Mutex
	notices []events.Notice
	to      []int64
}

func (r *recorder) Notify(_ context.Context, telegramID int64, n events.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.to = append(r.to, telegramID)
	r.notices = append(r.notices, n)
	return nil
}

func newTestRegistry(t *testing.T, adminIDs ...int64) (*Registry, *store.Memory, *recorder) {
	t.Helper()
	mem := store.NewMemory()
	rec := &recorder{}
	disp := notify.NewDispatcher(mem, rec, nil, nil, adminIDs)
	inv := inventory.NewService(mem, nil, disp)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry(Deps{
		Store:     mem,
		Inventory: inv,
		Notifier:  disp,
		Now:       func() time.Time { return now },
	})
	return reg, mem, rec
}

func text(s string) Event    { return Event{Kind: EventText, Text: s} }
func contact(p string) Event { return Event{Kind: EventContact, Phone: p} }

func TestRegistrationFlow(t *testing.T) {
	ctx := context.Background()
	reg, mem, _ := newTestRegistry(t)

	sess := reg.Flow(FlowRegistration).Start()
	if sess.Prompt() != outcome.PromptPhone {
		t.Fatalf("first prompt = %s", sess.Prompt())
	}

	// Plain text on the contact state is rejected, the session stays put.
	res := sess.Step(ctx, 42, nil, text("+79001234567"))
	if res.Status != StepReprompt {
		t.Fatalf("typed phone should re-prompt, got %v", res.Status)
	}

	res = sess.Step(ctx, 42, nil, contact("+79001234567"))
	if res.Status != StepNext || res.Prompt != outcome.PromptFullName {
		t.Fatalf("after contact: %+v", res)
	}

	// Too-short name re-prompts without losing the phone.
	res = sess.Step(ctx, 42, nil, text("Иван"))
	if res.Status != StepReprompt {
		t.Fatalf("short name should re-prompt, got %v", res.Status)
	}
	if sess.Fields["phone"] != "+79001234567" {
		t.Errorf("phone lost on re-prompt: %v", sess.Fields)
	}

	res = sess.Step(ctx, 42, nil, text("Иванов Иван Иванович"))
	if res.Status != StepDone || res.Err != nil {
		t.Fatalf("finish: %+v", res)
	}
	out, ok := res.Outcome.(outcome.Registered)
	if !ok {
		t.Fatalf("outcome = %T", res.Outcome)
	}
	if out.User.Role != store.RolePassenger || out.User.TelegramID != 42 {
		t.Errorf("unexpected user: %+v", out.User)
	}

	if _, err := mem.UserByTelegramID(ctx, 42); err != nil {
		t.Errorf("user not persisted: %v", err)
	}
}

func TestDriverOnboardingDuplicatePlateReprompts(t *testing.T) {
	ctx := context.Background()
	reg, mem, _ := newTestRegistry(t)

	first, _ := mem.CreateUser(ctx, 1, "Первый Водитель Тут", "+70000000001")
	if _, err := mem.UpsertDriverProfile(ctx, store.DriverProfile{
		UserID: first.ID, CarMake: "Lada", CarModel: "Vesta", CarColor: "белый", CarPlate: "А123ВС77",
	}); err != nil {
		t.Fatal(err)
	}
	second, _ := mem.CreateUser(ctx, 2, "Второй Водитель Тут", "+70000000002")

	sess := reg.Flow(FlowDriverOnboarding).Start()
	for _, in := range []string{"Kia", "Rio", "чёрный"} {
		if res := sess.Step(ctx, 2, second, text(in)); res.Status != StepNext {
			t.Fatalf("step %q: %+v", in, res)
		}
	}

	// The taken plate re-prompts on the plate state, normalisation included.
	res := sess.Step(ctx, 2, second, text(" а 123 вс 77 "))
	if res.Status != StepReprompt {
		t.Fatalf("duplicate plate should re-prompt, got %v", res.Status)
	}

	res = sess.Step(ctx, 2, second, text("В456ЕК16"))
	if res.Status != StepDone || res.Err != nil {
		t.Fatalf("finish: %+v", res)
	}
	out := res.Outcome.(outcome.DriverRegistered)
	if out.Profile.CarPlate != "В456ЕК16" {
		t.Errorf("plate = %s", out.Profile.CarPlate)
	}
	u, _ := mem.UserByTelegramID(ctx, 2)
	if u.Role != store.RoleDriver {
		t.Errorf("onboarding must promote to driver, role = %s", u.Role)
	}
}

func TestTripCreateFlowValidatesTimes(t *testing.T) {
	ctx := context.Background()
	reg, mem, _ := newTestRegistry(t)

	driver, _ := mem.CreateUser(ctx, 1, "Иванов Иван Иванович", "+70000000001")
	mem.SetUserRole(ctx, 1, store.RoleDriver)

	sess := reg.Flow(FlowTripCreate).Start()
	sess.Step(ctx, 1, driver, text("Москва"))
	sess.Step(ctx, 1, driver, text("Казань"))

	// Now is 10.06.2025 12:00; the short form resolves 09.06 into next
	// year, so a genuinely past instant needs the long form.
	if res := sess.Step(ctx, 1, driver, text("09.06.2025 10:00")); res.Status != StepReprompt {
		t.Fatalf("past departure should re-prompt, got %v", res.Status)
	}
	if res := sess.Step(ctx, 1, driver, text("15.06 08:00")); res.Status != StepNext {
		t.Fatalf("departure: %+v", res)
	}
	if res := sess.Step(ctx, 1, driver, text("15.06.2025 07:00")); res.Status != StepReprompt {
		t.Fatalf("arrival before departure should re-prompt, got %v", res.Status)
	}
	if res := sess.Step(ctx, 1, driver, text("15.06 14:00")); res.Status != StepNext {
		t.Fatalf("arrival: %+v", res)
	}

	res := sess.Step(ctx, 1, driver, text("4"))
	if res.Status != StepDone || res.Err != nil {
		t.Fatalf("finish: %+v", res)
	}
	trip := res.Outcome.(outcome.TripCreated).Trip
	if trip.AvailableSeats != 4 || trip.Status != store.TripScheduled {
		t.Errorf("unexpected trip: %+v", trip)
	}
	if trip.DepartureAt.Day() != 15 || trip.DepartureAt.Year() != 2025 {
		t.Errorf("departure parsed wrong: %v", trip.DepartureAt)
	}
}

func TestTripSearchFlow(t *testing.T) {
	ctx := context.Background()
	reg, mem, _ := newTestRegistry(t)

	driver, _ := mem.CreateUser(ctx, 1, "Иванов Иван Иванович", "+70000000001")
	dep := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)
	if _, err := mem.CreateTrip(ctx, store.Trip{
		DriverID: driver.ID, DepartureCity: "Москва", ArrivalCity: "Казань",
		DepartureAt: dep, TotalSeats: 2,
	}); err != nil {
		t.Fatal(err)
	}
	passenger, _ := mem.CreateUser(ctx, 2, "Петров Пётр Петрович", "+70000000002")

	sess := reg.Flow(FlowTripSearch).Start()
	sess.Step(ctx, 2, passenger, text("Москва"))
	sess.Step(ctx, 2, passenger, text("Казань"))
	res := sess.Step(ctx, 2, passenger, text("15.06"))
	if res.Status != StepDone || res.Err != nil {
		t.Fatalf("finish: %+v", res)
	}
	found := res.Outcome.(outcome.TripsFound)
	if len(found.Trips) != 1 {
		t.Fatalf("trips = %d, want 1", len(found.Trips))
	}

	// Another day finds nothing.
	sess = reg.Flow(FlowTripSearch).Start()
	sess.Step(ctx, 2, passenger, text("Москва"))
	sess.Step(ctx, 2, passenger, text("Казань"))
	res = sess.Step(ctx, 2, passenger, text("16.06"))
	if got := res.Outcome.(outcome.TripsFound); len(got.Trips) != 0 {
		t.Errorf("wrong day should find nothing, got %d", len(got.Trips))
	}
}

func TestSupportFlowReachesAdmins(t *testing.T) {
	ctx := context.Background()
	reg, mem, rec := newTestRegistry(t, 500, 501)

	u, _ := mem.CreateUser(ctx, 7, "Петров Пётр Петрович", "+70000000007")

	sess := reg.Flow(FlowSupport).Start()
	if res := sess.Step(ctx, 7, u, text("   ")); res.Status != StepReprompt {
		t.Fatalf("blank message should re-prompt, got %v", res.Status)
	}
	res := sess.Step(ctx, 7, u, text("не могу отменить бронь"))
	if res.Status != StepDone || res.Err != nil {
		t.Fatalf("finish: %+v", res)
	}
	if _, ok := res.Outcome.(outcome.SupportSent); !ok {
		t.Fatalf("outcome = %T", res.Outcome)
	}
	if len(rec.to) != 2 || rec.to[0] != 500 || rec.to[1] != 501 {
		t.Errorf("recipients = %v", rec.to)
	}
	if rec.notices[0].Kind != events.NoticeSupportMessage || rec.notices[0].Text != "не могу отменить бронь" {
		t.Errorf("notice = %+v", rec.notices[0])
	}
}

func TestAdminPromoteFlow(t *testing.T) {
	ctx := context.Background()
	reg, mem, rec := newTestRegistry(t)

	admin, _ := mem.CreateUser(ctx, 99, "Главный Админ Бота", "+70000000099")
	mem.SetUserRole(ctx, 99, store.RoleAdmin)
	target, _ := mem.CreateUser(ctx, 7, "Петров Пётр Петрович", "+70000000007")

	sess := reg.Flow(FlowAdminPromote).Start()
	if res := sess.Step(ctx, 99, admin, text("not-a-number")); res.Status != StepReprompt {
		t.Fatalf("bad id should re-prompt, got %v", res.Status)
	}
	res := sess.Step(ctx, 99, admin, text("7"))
	if res.Status != StepDone || res.Err != nil {
		t.Fatalf("finish: %+v", res)
	}
	out := res.Outcome.(outcome.AdminRoleChanged)
	if out.Already || out.User.Role != store.RoleDriver {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if len(rec.notices) != 1 || rec.notices[0].Kind != events.NoticePromoted || rec.to[0] != target.TelegramID {
		t.Errorf("promotion notice missing: %+v to %v", rec.notices, rec.to)
	}

	// Promoting again is reported as already done, no second notice.
	sess = reg.Flow(FlowAdminPromote).Start()
	res = sess.Step(ctx, 99, admin, text("7"))
	if out := res.Outcome.(outcome.AdminRoleChanged); !out.Already {
		t.Errorf("second promote should be Already")
	}
	if len(rec.notices) != 1 {
		t.Errorf("no notice expected on no-op promote, got %d", len(rec.notices))
	}
}

func TestAdminBlockUnblockFlow(t *testing.T) {
	ctx := context.Background()
	reg, mem, rec := newTestRegistry(t)

	admin, _ := mem.CreateUser(ctx, 99, "Главный Админ Бота", "+70000000099")
	mem.SetUserRole(ctx, 99, store.RoleAdmin)
	mem.CreateUser(ctx, 7, "Петров Пётр Петрович", "+70000000007")

	sess := reg.Flow(FlowAdminBlock).Start()
	res := sess.Step(ctx, 99, admin, text("7"))
	if res.Status != StepDone || res.Err != nil {
		t.Fatalf("block: %+v", res)
	}
	u, _ := mem.UserByTelegramID(ctx, 7)
	if !u.Blocked {
		t.Error("user should be blocked")
	}

	sess = reg.Flow(FlowAdminUnblock).Start()
	res = sess.Step(ctx, 99, admin, text("7"))
	if res.Status != StepDone || res.Err != nil {
		t.Fatalf("unblock: %+v", res)
	}
	u, _ = mem.UserByTelegramID(ctx, 7)
	if u.Blocked {
		t.Error("user should be unblocked")
	}
	if len(rec.notices) != 2 || rec.notices[1].Kind != events.NoticeUnblocked {
		t.Errorf("notices = %+v", rec.notices)
	}

	// Unknown target fails the terminal action.
	sess = reg.Flow(FlowAdminBlock).Start()
	res = sess.Step(ctx, 99, admin, text("12345"))
	if res.Status != StepDone || res.Err == nil {
		t.Errorf("unknown target should fail finish, got %+v", res)
	}
}
