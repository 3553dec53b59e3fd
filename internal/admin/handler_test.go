package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/1IT-Programmer/BotTaxi/internal/inventory"
	"github.com/1IT-Programmer/BotTaxi/internal/notify"
	"github.com/1IT-Programmer/BotTaxi/internal/store"
	"github.com/1IT-Programmer/BotTaxi/pkg/jwt"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	if err := jwt.Init("test-secret"); err != nil {
		t.Fatal(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	mem := store.NewMemory()
	disp := notify.NewDispatcher(mem, nil, nil, nil, nil)
	inv := inventory.NewService(mem, nil, disp)
	h := NewHandler(mem, inv, disp, string(hash))
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv, mem
}

func login(t *testing.T, srv *httptest.Server, password string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/login", "application/json",
		strings.NewReader(`{"password":"`+password+`"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resp, ""
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return resp, body["token"]
}

func doAuthed(t *testing.T, srv *httptest.Server, method, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestLogin(t *testing.T) {
	srv, _ := newTestServer(t)

	if resp, _ := login(t, srv, "wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password: status %d", resp.StatusCode)
	}
	_, token := login(t, srv, "hunter2")
	if token == "" {
		t.Fatal("expected a token")
	}
	claims, err := jwt.Validate(token)
	if err != nil || claims.Role != store.RoleAdmin {
		t.Errorf("claims = %+v, %v", claims, err)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doAuthed(t, srv, http.MethodGet, "/drivers", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestModerationEndpoints(t *testing.T) {
	ctx := context.Background()
	srv, mem := newTestServer(t)
	mem.CreateUser(ctx, 42, "Петров Пётр Петрович", "+70000000042")
	_, token := login(t, srv, "hunter2")

	resp := doAuthed(t, srv, http.MethodPost, "/users/42/promote", token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("promote status = %d", resp.StatusCode)
	}
	u, _ := mem.UserByTelegramID(ctx, 42)
	if u.Role != store.RoleDriver {
		t.Errorf("role = %s, want driver", u.Role)
	}

	resp = doAuthed(t, srv, http.MethodPost, "/users/42/block", token)
	resp.Body.Close()
	u, _ = mem.UserByTelegramID(ctx, 42)
	if !u.Blocked {
		t.Error("user should be blocked")
	}

	resp = doAuthed(t, srv, http.MethodPost, "/users/42/unblock", token)
	resp.Body.Close()
	u, _ = mem.UserByTelegramID(ctx, 42)
	if u.Blocked {
		t.Error("user should be unblocked")
	}

	resp = doAuthed(t, srv, http.MethodPost, "/users/777/promote", token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown user promote status = %d, want 404", resp.StatusCode)
	}
}

func TestListDriversAndTripSummary(t *testing.T) {
	ctx := context.Background()
	srv, mem := newTestServer(t)
	driver, _ := mem.CreateUser(ctx, 1, "Иванов Иван Иванович", "+70000000001")
	mem.UpsertDriverProfile(ctx, store.DriverProfile{
		UserID: driver.ID, CarMake: "Lada", CarModel: "Vesta", CarColor: "белый", CarPlate: "А123ВС77",
	})
	trip, _ := mem.CreateTrip(ctx, store.Trip{
		DriverID: driver.ID, DepartureCity: "Москва", ArrivalCity: "Казань",
		DepartureAt: time.Now().Add(24 * time.Hour), TotalSeats: 3,
	})
	_, token := login(t, srv, "hunter2")

	resp := doAuthed(t, srv, http.MethodGet, "/drivers", token)
	var drivers []struct {
		store.User
		Profile *store.DriverProfile `json:"profile"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&drivers); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(drivers) != 1 || drivers[0].Profile == nil || drivers[0].Profile.CarPlate != "А123ВС77" {
		t.Errorf("drivers = %+v", drivers)
	}

	resp = doAuthed(t, srv, http.MethodGet, "/trips/"+trip.ID, token)
	var summary map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if summary["available_seats"] != "3" || summary["status"] != store.TripScheduled {
		t.Errorf("summary = %v", summary)
	}
}
