package events

import "fmt"

// Render turns an event into a one-line human readable notification.
func Render(key string, ev Event) string {
	when := fmt.Sprintf("%s %s-%s", ev.SlotDate, ev.StartTime, ev.EndTime)
	who := ev.UserEmail
	if ev.UserName != "" {
		who = fmt.Sprintf("%s <%s>", ev.UserName, ev.UserEmail)
	}

	switch key {
	case RKBookingConfirmed:
		return fmt.Sprintf("Booking confirmed | %s | slot=%q | %s", who, ev.SlotTitle, when)
	case RKBookingCancelled:
		return fmt.Sprintf("Booking cancelled | %s | slot=%q | %s", who, ev.SlotTitle, when)
	case RKSlotCreated:
		return fmt.Sprintf("Slot created | slot=%q | %s", ev.SlotTitle, when)
	case RKSlotDeleted:
		return fmt.Sprintf("Slot deleted | slot=%q | %s | bookings_removed=%d", ev.SlotTitle, when, ev.BookingsRemoved)
	default:
		return fmt.Sprintf("Unknown event %s | slot_id=%s", key, ev.SlotID)
	}
}
