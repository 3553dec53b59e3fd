// Package notify fans transactional outcomes out to affected counterparties.
// Delivery is best-effort: one attempt per recipient, failures logged and
// swallowed, never surfaced to the initiating user.
package notify

import (
	"context"
	"log"
	"time"

	"github.com/1IT-Programmer/BotTaxi/internal/events"
	"github.com/1IT-Programmer/BotTaxi/internal/store"
	"github.com/1IT-Programmer/BotTaxi/pkg/kafka"
)

// Messenger delivers a notice to a Telegram user. Implemented by the bot
// adapter; the dispatcher stays transport-agnostic.
type Messenger interface {
	Notify(ctx context.Context, telegramID int64, n events.Notice) error
}

// Broadcaster receives every event for live ops consumers (websocket feed).
type Broadcaster interface {
	Broadcast(kind string, payload any)
}

// Dispatcher resolves counterparties and delivers notices. All collaborators
// except the store may be nil.
type Dispatcher struct {
	store    store.Store
	msgr     Messenger
	kafka    *kafka.Client
	hub      Broadcaster
	adminIDs []int64
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(st store.Store, msgr Messenger, k *kafka.Client, hub Broadcaster, adminIDs []int64) *Dispatcher {
	return &Dispatcher{store: st, msgr: msgr, kafka: k, hub: hub, adminIDs: adminIDs}
}

// SetMessenger attaches the delivery transport after construction. The bot
// adapter is built later in the wiring order; call this before consuming
// updates.
func (d *Dispatcher) SetMessenger(m Messenger) { d.msgr = m }

// BookingCreated notifies the trip's driver of a new booking.
func (d *Dispatcher) BookingCreated(ctx context.Context, b *store.Booking, t *store.Trip) {
	passenger, err := d.store.UserByID(ctx, b.PassengerID)
	if err != nil {
		log.Printf("[notify] passenger lookup for booking %s: %v", b.ID, err)
		passenger = nil
	}
	d.toUserID(ctx, t.DriverID, events.Notice{
		Kind:    events.NoticeBookingCreated,
		Trip:    t,
		Booking: b,
		From:    passenger,
	})
	d.publish(kafka.TopicBookingCreated, t.ID, events.BookingCreatedEvent{
		BookingID:      b.ID,
		TripID:         t.ID,
		PassengerID:    b.PassengerID,
		SeatsBooked:    b.SeatsBooked,
		AvailableSeats: t.AvailableSeats,
		BookedAt:       b.BookedAt.Format(time.RFC3339),
	})
}

// BookingCancelled notifies the counterparty of a cancellation: the driver
// when the passenger cancelled, the passenger when the driver did.
func (d *Dispatcher) BookingCancelled(ctx context.Context, b *store.Booking, t *store.Trip) {
	switch b.Status {
	case store.BookingCancelledByPassenger:
		passenger, err := d.store.UserByID(ctx, b.PassengerID)
		if err != nil {
			log.Printf("[notify] passenger lookup for booking %s: %v", b.ID, err)
			passenger = nil
		}
		d.toUserID(ctx, t.DriverID, events.Notice{
			Kind:    events.NoticeBookingCancelled,
			Trip:    t,
			Booking: b,
			From:    passenger,
		})
	case store.BookingCancelledByDriver:
		d.toUserID(ctx, b.PassengerID, events.Notice{
			Kind:    events.NoticeBookingCancelled,
			Trip:    t,
			Booking: b,
		})
	}
	d.publish(kafka.TopicBookingCancelled, t.ID, events.BookingCancelledEvent{
		BookingID:      b.ID,
		TripID:         t.ID,
		PassengerID:    b.PassengerID,
		CancelledBy:    b.Status,
		SeatsReturned:  b.SeatsBooked,
		AvailableSeats: t.AvailableSeats,
	})
}

// TripCancelled notifies every passenger whose booking the cancellation
// cascaded into.
func (d *Dispatcher) TripCancelled(ctx context.Context, t *store.Trip, cancelled []store.Booking) {
	for i := range cancelled {
		b := cancelled[i]
		d.toUserID(ctx, b.PassengerID, events.Notice{
			Kind:    events.NoticeTripCancelled,
			Trip:    t,
			Booking: &b,
		})
	}
	d.publish(kafka.TopicTripCancelled, t.ID, events.TripCancelledEvent{
		TripID:           t.ID,
		DriverID:         t.DriverID,
		DepartureCity:    t.DepartureCity,
		ArrivalCity:      t.ArrivalCity,
		AffectedBookings: len(cancelled),
		CancelledAt:      time.Now().Format(time.RFC3339),
	})
}

// SupportMessage forwards a user's support request to every admin.
func (d *Dispatcher) SupportMessage(ctx context.Context, from *store.User, text string) {
	for _, adminID := range d.adminIDs {
		d.send(ctx, adminID, events.Notice{
			Kind: events.NoticeSupportMessage,
			From: from,
			Text: text,
		})
	}
}

// AccountNotice informs a user about an admin action on their account
// (promotion, block, unblock).
func (d *Dispatcher) AccountNotice(ctx context.Context, u *store.User, kind events.NoticeKind) {
	d.send(ctx, u.TelegramID, events.Notice{Kind: kind})
}

func (d *Dispatcher) toUserID(ctx context.Context, userID string, n events.Notice) {
	u, err := d.store.UserByID(ctx, userID)
	if err != nil {
		log.Printf("[notify] recipient lookup %s: %v", userID, err)
		return
	}
	d.send(ctx, u.TelegramID, n)
}

func (d *Dispatcher) send(ctx context.Context, telegramID int64, n events.Notice) {
	if d.msgr == nil {
		return
	}
	if err := d.msgr.Notify(ctx, telegramID, n); err != nil {
		log.Printf("[notify] delivery to %d failed: %v", telegramID, err)
	}
}

func (d *Dispatcher) publish(topic, key string, payload any) {
	if d.hub != nil {
		d.hub.Broadcast(topic, payload)
	}
	if d.kafka == nil {
		return
	}
	go func() {
		if err := d.kafka.Publish(context.Background(), topic, key, payload); err != nil {
			log.Printf("[notify] failed to publish %s: %v", topic, err)
		}
	}()
}
