// Package admin exposes the operator HTTP API: login, driver roster and
// account moderation. Telegram-side admin dialogs cover the same actions;
// this surface exists for dashboards and scripts.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/1IT-Programmer/BotTaxi/internal/events"
	"github.com/1IT-Programmer/BotTaxi/internal/inventory"
	"github.com/1IT-Programmer/BotTaxi/internal/notify"
	"github.com/1IT-Programmer/BotTaxi/internal/store"
	"github.com/1IT-Programmer/BotTaxi/pkg/jwt"
)

// Handler serves the admin endpoints.
type Handler struct {
	store        store.Store
	inv          *inventory.Service
	notifier     *notify.Dispatcher
	passwordHash []byte // bcrypt hash of the admin password
}

// NewHandler wires the admin API. passwordHash is the ADMIN_PASSWORD_HASH
// value.
func NewHandler(st store.Store, inv *inventory.Service, n *notify.Dispatcher, passwordHash string) *Handler {
	return &Handler{store: st, inv: inv, notifier: n, passwordHash: []byte(passwordHash)}
}

// Routes returns a chi.Router with all admin routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// Public
	r.Post("/login", h.Login)

	// Protected
	r.Group(func(r chi.Router) {
		r.Use(jwt.RequireAdmin)
		r.Get("/drivers", h.ListDrivers)
		r.Post("/users/{telegramID}/promote", h.Promote)
		r.Post("/users/{telegramID}/block", h.Block)
		r.Post("/users/{telegramID}/unblock", h.Unblock)
		r.Get("/trips/{id}", h.TripSummary)
	})

	return r
}

type loginRequest struct {
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	token, err := jwt.Generate(0, store.RoleAdmin)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token generation failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.store.Drivers(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	type entry struct {
		store.User
		Profile *store.DriverProfile `json:"profile,omitempty"`
	}
	out := make([]entry, 0, len(drivers))
	for _, d := range drivers {
		e := entry{User: d}
		if p, err := h.store.DriverProfile(r.Context(), d.ID); err == nil {
			e.Profile = p
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	h.setRole(w, r, store.RoleDriver, events.NoticePromoted)
}

func (h *Handler) Block(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true, events.NoticeBlocked)
}

func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false, events.NoticeUnblocked)
}

func (h *Handler) TripSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.inv.TripSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) setRole(w http.ResponseWriter, r *http.Request, role string, kind events.NoticeKind) {
	tg, err := telegramID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid telegram id"})
		return
	}
	u, err := h.store.SetUserRole(r.Context(), tg, role)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.notifier.AccountNotice(r.Context(), u, kind)
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool, kind events.NoticeKind) {
	tg, err := telegramID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid telegram id"})
		return
	}
	u, err := h.store.SetUserBlocked(r.Context(), tg, blocked)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.notifier.AccountNotice(r.Context(), u, kind)
	writeJSON(w, http.StatusOK, u)
}

func telegramID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "telegramID"), 10, 64)
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, store.ErrNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
