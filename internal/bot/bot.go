// Package bot adapts Telegram updates to router events and renders router
// outcomes back into messages and keyboards. All user-facing wording lives
// here; the core packages deal only in semantic values.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/1IT-Programmer/BotTaxi/internal/dialog"
	"github.com/1IT-Programmer/BotTaxi/internal/events"
	"github.com/1IT-Programmer/BotTaxi/internal/outcome"
	"github.com/1IT-Programmer/BotTaxi/internal/router"
	"github.com/1IT-Programmer/BotTaxi/internal/store"
)

type Bot struct {
	api    *tgbotapi.BotAPI
	router *router.Router
}

func New(token string, r *router.Router) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = false
	log.Printf("[bot] authorized as @%s", api.Self.UserName)
	return &Bot{api: api, router: r}, nil
}

// Run consumes updates until ctx is cancelled. Each update is handled in
// its own goroutine; the router serialises per user.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		update := update
		go b.handleUpdate(ctx, update)
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		b.api.Request(tgbotapi.NewCallback(cb.ID, ""))
		ev := dialog.Event{Kind: dialog.EventButton, Text: cb.Data}
		b.reply(cb.Message.Chat.ID, b.router.Handle(ctx, cb.From.ID, ev))
	case update.Message != nil:
		msg := update.Message
		b.reply(msg.Chat.ID, b.router.Handle(ctx, msg.From.ID, toEvent(msg)))
	}
}

// Menu button labels double as commands.
var menuCommands = map[string]string{
	"🔍 Найти поездку":      "find_trip",
	"📋 Мои бронирования":   "my_bookings",
	"🚗 Стать водителем":    "register_driver",
	"➕ Создать поездку":    "create_trip",
	"🚙 Мои поездки":        "my_trips",
	"🆘 Поддержка":          "support",
	"❓ Помощь":             "help",
	"❌ Отмена":             "cancel",
	"👥 Водители":           "list_drivers",
	"➕ Назначить водителя": "add_driver",
	"🚫 Заблокировать":      "block_driver",
	"✅ Разблокировать":     "unblock_driver",
}

func toEvent(msg *tgbotapi.Message) dialog.Event {
	if msg.Contact != nil {
		return dialog.Event{Kind: dialog.EventContact, Phone: msg.Contact.PhoneNumber}
	}
	if msg.IsCommand() {
		return dialog.Event{Kind: dialog.EventCommand, Text: msg.Command()}
	}
	if cmd, ok := menuCommands[msg.Text]; ok {
		return dialog.Event{Kind: dialog.EventCommand, Text: cmd}
	}
	return dialog.Event{Kind: dialog.EventText, Text: msg.Text}
}

func (b *Bot) reply(chatID int64, outs []outcome.Outcome) {
	for _, out := range outs {
		for _, msg := range render(chatID, out) {
			if _, err := b.api.Send(msg); err != nil {
				log.Printf("[bot] send to %d failed: %v", chatID, err)
			}
		}
	}
}

func render(chatID int64, out outcome.Outcome) []tgbotapi.MessageConfig {
	switch v := out.(type) {
	case outcome.Ask:
		return []tgbotapi.MessageConfig{askMessage(chatID, v)}
	case outcome.Registered:
		return text(chatID, fmt.Sprintf("✅ Регистрация завершена, %s!", v.User.FullName))
	case outcome.DriverRegistered:
		p := v.Profile
		return text(chatID, fmt.Sprintf("🚗 Вы зарегистрированы как водитель!\nАвтомобиль: %s %s, %s\nНомер: %s",
			p.CarMake, p.CarModel, p.CarColor, p.CarPlate))
	case outcome.AlreadyDriver:
		return text(chatID, "ℹ️ Вы уже зарегистрированы как водитель.")
	case outcome.TripCreated:
		return text(chatID, "✅ Поездка опубликована!\n\n"+tripCard(v.Trip))
	case outcome.TripsFound:
		return renderTripsFound(chatID, v)
	case outcome.BookingCreated:
		return text(chatID, fmt.Sprintf("✅ Место забронировано!\n\n%s\n💺 Ваших мест: %d",
			tripCard(v.Trip), v.Booking.SeatsBooked))
	case outcome.BookingCancelled:
		return text(chatID, "✅ Бронирование отменено, место возвращено.")
	case outcome.TripCancelled:
		return text(chatID, fmt.Sprintf("🚫 Поездка отменена. Затронуто бронирований: %d. Пассажиры уведомлены.",
			len(v.Affected)))
	case outcome.MyTrips:
		return renderMyTrips(chatID, v)
	case outcome.MyBookings:
		return renderMyBookings(chatID, v)
	case outcome.SupportSent:
		return text(chatID, "📨 Сообщение отправлено в поддержку. Мы свяжемся с вами.")
	case outcome.AdminDrivers:
		return renderDrivers(chatID, v)
	case outcome.AdminRoleChanged:
		return renderRoleChanged(chatID, v)
	case outcome.Menu:
		return []tgbotapi.MessageConfig{menuMessage(chatID, v.Role)}
	case outcome.Cancelled:
		return text(chatID, "❌ Действие отменено.")
	case outcome.Help:
		return text(chatID, helpText)
	case outcome.Blocked:
		return text(chatID, "🚫 Ваш доступ к боту заблокирован.")
	case outcome.NotRegistered:
		return text(chatID, "👋 Отправьте /start, чтобы зарегистрироваться.")
	case outcome.Unknown:
		return text(chatID, "❓ Неизвестная команда. Отправьте /help для списка команд.")
	case outcome.Failure:
		return text(chatID, failureText(v.Err))
	default:
		return nil
	}
}

func text(chatID int64, s string) []tgbotapi.MessageConfig {
	return []tgbotapi.MessageConfig{tgbotapi.NewMessage(chatID, s)}
}

var prompts = map[outcome.Prompt]string{
	outcome.PromptPhone:         "📱 Поделитесь номером телефона кнопкой ниже.",
	outcome.PromptFullName:      "👤 Введите ваше ФИО (не короче 5 символов).",
	outcome.PromptCarMake:       "🚗 Введите марку автомобиля.",
	outcome.PromptCarModel:      "🚗 Введите модель автомобиля.",
	outcome.PromptCarColor:      "🎨 Введите цвет автомобиля.",
	outcome.PromptCarPlate:      "🔢 Введите госномер автомобиля.",
	outcome.PromptDepartureCity: "🏙 Откуда поедете? Введите город отправления.",
	outcome.PromptArrivalCity:   "🏙 Куда поедете? Введите город прибытия.",
	outcome.PromptDepartureTime: "🕒 Когда выезд? Формат: ДД.ММ ЧЧ:ММ или ДД.ММ.ГГГГ ЧЧ:ММ.",
	outcome.PromptArrivalTime:   "🕒 Когда прибытие? Формат: ДД.ММ ЧЧ:ММ или ДД.ММ.ГГГГ ЧЧ:ММ.",
	outcome.PromptSeats:         "💺 Сколько мест предлагаете? (от 1 до 10)",
	outcome.PromptSearchFrom:    "🏙 Из какого города ищете поездку?",
	outcome.PromptSearchTo:      "🏙 В какой город ищете поездку?",
	outcome.PromptSearchDate:    "📅 На какую дату? Формат: ДД.ММ или ДД.ММ.ГГГГ.",
	outcome.PromptSupportText:   "🆘 Опишите вашу проблему одним сообщением.",
	outcome.PromptAdminUserID:   "🔢 Введите Telegram ID пользователя.",
}

func askMessage(chatID int64, a outcome.Ask) tgbotapi.MessageConfig {
	t := prompts[a.Prompt]
	if a.Invalid {
		t = "⚠️ Некорректный ввод. " + t
	}
	msg := tgbotapi.NewMessage(chatID, t)
	if a.Prompt == outcome.PromptPhone {
		btn := tgbotapi.NewKeyboardButtonContact("📱 Отправить номер")
		kb := tgbotapi.NewReplyKeyboard([]tgbotapi.KeyboardButton{btn})
		kb.OneTimeKeyboard = true
		msg.ReplyMarkup = kb
	}
	return msg
}

func menuMessage(chatID int64, role string) tgbotapi.MessageConfig {
	var rows [][]tgbotapi.KeyboardButton
	rows = append(rows, []tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButton("🔍 Найти поездку"),
		tgbotapi.NewKeyboardButton("📋 Мои бронирования"),
	})
	switch role {
	case store.RoleDriver:
		rows = append(rows, []tgbotapi.KeyboardButton{
			tgbotapi.NewKeyboardButton("➕ Создать поездку"),
			tgbotapi.NewKeyboardButton("🚙 Мои поездки"),
		})
	case store.RoleAdmin:
		rows = append(rows,
			[]tgbotapi.KeyboardButton{
				tgbotapi.NewKeyboardButton("➕ Создать поездку"),
				tgbotapi.NewKeyboardButton("🚙 Мои поездки"),
			},
			[]tgbotapi.KeyboardButton{
				tgbotapi.NewKeyboardButton("👥 Водители"),
				tgbotapi.NewKeyboardButton("➕ Назначить водителя"),
			},
			[]tgbotapi.KeyboardButton{
				tgbotapi.NewKeyboardButton("🚫 Заблокировать"),
				tgbotapi.NewKeyboardButton("✅ Разблокировать"),
			})
	default:
		rows = append(rows, []tgbotapi.KeyboardButton{
			tgbotapi.NewKeyboardButton("🚗 Стать водителем"),
		})
	}
	rows = append(rows, []tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButton("🆘 Поддержка"),
		tgbotapi.NewKeyboardButton("❓ Помощь"),
	})

	msg := tgbotapi.NewMessage(chatID, "Выберите действие:")
	msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(rows...)
	return msg
}

func renderTripsFound(chatID int64, v outcome.TripsFound) []tgbotapi.MessageConfig {
	if len(v.Trips) == 0 {
		return text(chatID, fmt.Sprintf("😔 Поездок %s → %s на %s не найдено.",
			v.From, v.To, v.Date.Format("02.01.2006")))
	}
	out := text(chatID, fmt.Sprintf("🔍 Найдено поездок: %d", len(v.Trips)))
	for _, t := range v.Trips {
		t := t
		msg := tgbotapi.NewMessage(chatID, tripCard(&t))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			[]tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData("✅ Забронировать", "book_"+t.ID),
			})
		out = append(out, msg)
	}
	return out
}

func renderMyTrips(chatID int64, v outcome.MyTrips) []tgbotapi.MessageConfig {
	if len(v.Trips) == 0 {
		return text(chatID, "🚙 У вас нет активных поездок.")
	}
	var out []tgbotapi.MessageConfig
	for _, t := range v.Trips {
		t := t
		msg := tgbotapi.NewMessage(chatID, tripCard(&t))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			[]tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData("🚫 Отменить поездку", "cancel_trip_"+t.ID),
			})
		out = append(out, msg)
	}
	return out
}

func renderMyBookings(chatID int64, v outcome.MyBookings) []tgbotapi.MessageConfig {
	if len(v.Bookings) == 0 {
		return text(chatID, "📋 У вас нет активных бронирований.")
	}
	var out []tgbotapi.MessageConfig
	for _, bk := range v.Bookings {
		card := fmt.Sprintf("💺 Мест: %d", bk.SeatsBooked)
		if t := v.Trips[bk.TripID]; t != nil {
			card = tripCard(t) + "\n" + card
		}
		msg := tgbotapi.NewMessage(chatID, card)
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			[]tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData("❌ Отменить бронь", "cancel_booking_"+bk.ID),
			})
		out = append(out, msg)
	}
	return out
}

func renderDrivers(chatID int64, v outcome.AdminDrivers) []tgbotapi.MessageConfig {
	if len(v.Drivers) == 0 {
		return text(chatID, "👥 Водителей пока нет.")
	}
	var sb strings.Builder
	sb.WriteString("👥 Водители:\n\n")
	for i, d := range v.Drivers {
		fmt.Fprintf(&sb, "%d. %s (ID %d)\n📱 %s\n", i+1, d.FullName, d.TelegramID, d.PhoneNumber)
		if p := v.Profiles[d.ID]; p != nil {
			fmt.Fprintf(&sb, "🚗 %s %s, %s, %s\n", p.CarMake, p.CarModel, p.CarColor, p.CarPlate)
		}
		sb.WriteString("\n")
	}
	return text(chatID, sb.String())
}

func renderRoleChanged(chatID int64, v outcome.AdminRoleChanged) []tgbotapi.MessageConfig {
	verbs := map[string][2]string{
		"promoted":  {"назначен водителем", "уже водитель"},
		"blocked":   {"заблокирован", "уже заблокирован"},
		"unblocked": {"разблокирован", "не был заблокирован"},
	}
	verb := verbs[v.Action][0]
	if v.Already {
		verb = verbs[v.Action][1]
	}
	return text(chatID, fmt.Sprintf("✅ Пользователь %s (ID %d) %s.", v.User.FullName, v.User.TelegramID, verb))
}

func tripCard(t *store.Trip) string {
	if t == nil {
		return ""
	}
	card := fmt.Sprintf("🚗 %s → %s\n🕒 Выезд: %s", t.DepartureCity, t.ArrivalCity,
		t.DepartureAt.Format("02.01.2006 15:04"))
	if t.ArrivalAt != nil {
		card += fmt.Sprintf("\n🏁 Прибытие: %s", t.ArrivalAt.Format("02.01.2006 15:04"))
	}
	card += fmt.Sprintf("\n💺 Свободно мест: %d из %d", t.AvailableSeats, t.TotalSeats)
	return card
}

func failureText(err error) string {
	switch {
	case errors.Is(err, store.ErrInsufficientSeats):
		return "😔 Недостаточно свободных мест на этой поездке."
	case errors.Is(err, store.ErrDuplicateBooking):
		return "⚠️ У вас уже есть бронирование на эту поездку."
	case errors.Is(err, store.ErrInvalidState):
		return "⚠️ Действие недоступно: поездка или бронь уже не активна."
	case errors.Is(err, store.ErrForbidden):
		return "❌ У вас нет прав для этого действия."
	case errors.Is(err, store.ErrNotFound):
		return "❓ Запись не найдена."
	case errors.Is(err, store.ErrDuplicatePlate):
		return "⚠️ Этот госномер уже зарегистрирован."
	default:
		return "❌ Произошла ошибка. Попробуйте позже."
	}
}

const helpText = `📚 Справка по боту

🔹 /start - главное меню
🔹 /cancel - отменить текущее действие
🔹 /help - эта справка

👤 Пассажирам:
🔹 «Найти поездку» - поиск по маршруту и дате
🔹 «Мои бронирования» - активные брони с отменой

🚗 Водителям:
🔹 «Стать водителем» - регистрация автомобиля
🔹 «Создать поездку» - публикация поездки
🔹 «Мои поездки» - активные поездки с отменой`

// ---- Counterparty notifications ----

// Notify implements notify.Messenger.
func (b *Bot) Notify(_ context.Context, telegramID int64, n events.Notice) error {
	t := noticeText(n)
	if t == "" {
		return nil
	}
	_, err := b.api.Send(tgbotapi.NewMessage(telegramID, t))
	return err
}

func noticeText(n events.Notice) string {
	switch n.Kind {
	case events.NoticeBookingCreated:
		t := fmt.Sprintf("🎉 Новое бронирование на вашу поездку!\n\n%s", tripCard(n.Trip))
		if n.From != nil {
			t += fmt.Sprintf("\n👤 Пассажир: %s\n📱 %s", n.From.FullName, n.From.PhoneNumber)
		}
		if n.Booking != nil {
			t += fmt.Sprintf("\n💺 Мест: %d", n.Booking.SeatsBooked)
		}
		return t
	case events.NoticeBookingCancelled:
		if n.Booking != nil && n.Booking.Status == store.BookingCancelledByDriver {
			return fmt.Sprintf("🚫 Водитель отменил ваше бронирование.\n\n%s", tripCard(n.Trip))
		}
		return fmt.Sprintf("ℹ️ Пассажир отменил бронирование на вашу поездку.\n\n%s", tripCard(n.Trip))
	case events.NoticeTripCancelled:
		return fmt.Sprintf("🚫 Поездка отменена водителем.\n\n%s\nВаше бронирование аннулировано.", tripCard(n.Trip))
	case events.NoticeSupportMessage:
		t := "🆘 Обращение в поддержку"
		if n.From != nil {
			t += fmt.Sprintf(" от %s (ID %d, 📱 %s)", n.From.FullName, n.From.TelegramID, n.From.PhoneNumber)
		}
		return t + ":\n\n" + n.Text
	case events.NoticePromoted:
		return "🎉 Вам назначена роль водителя! Отправьте /start, чтобы увидеть новое меню."
	case events.NoticeBlocked:
		return "🚫 Ваш доступ к боту заблокирован администратором."
	case events.NoticeUnblocked:
		return "✅ Ваш доступ к боту восстановлен."
	default:
		return ""
	}
}
