package autoreply

import (
	"fmt"
	"strings"
	"time"

	"github.com/bizlinkhq/bizlink-server/internal/conversation"
)

// ceilingOfferText is sent exactly once, on the turn that exhausts the
// scripted-reply budget.
const ceilingOfferText = "I've shared everything I can from here. Would you like me to connect you with a team member? Just say \"talk to a person\" and someone will take over this chat."

func respondHandoff(rc *replyContext) string {
	return fmt.Sprintf("Of course! I'm handing this chat over to %s now. They'll reply here as soon as they're available.", rc.engine.managerContact(rc.ctx, rc.conv))
}

func respondClaimOffer(rc *replyContext) string {
	booking := rc.booking.Merge(conversation.BookingData{OfferClaimed: true})
	rc.engine.saveBooking(rc.ctx, rc.conv, booking)

	top := rc.engine.topServices(3)
	text := "Your welcome offer is locked in! It will be applied automatically when you book. Here are a few favorites to get you started:\n" + catalogLines(top)
	return withOptions(text, serviceNames(top))
}

func respondCatalog(rc *replyContext) string {
	text := "Here's what we offer:\n" + catalogLines(rc.engine.services) + "\nTap a service to start booking."
	return withOptions(text, rc.engine.serviceOptions())
}

func respondBookingPrompt(rc *replyContext) string {
	if rc.booking.Service != "" && rc.booking.TimeSlot == "" {
		return withOptions(
			fmt.Sprintf("You picked %s. What time works best?", rc.booking.Service),
			rc.engine.slotOptions(),
		)
	}
	return withOptions("Great, let's get you booked! Which service would you like?", rc.engine.serviceOptions())
}

func respondServiceChoice(rc *replyContext) string {
	svc := rc.engine.matchService(rc.text)
	booking := rc.booking.Merge(conversation.BookingData{Service: svc.Name})
	rc.engine.saveBooking(rc.ctx, rc.conv, booking)

	return withOptions(
		fmt.Sprintf("%s (%s) is a great choice. When would you like to come in?", svc.Name, svc.Price),
		rc.engine.slotOptions(),
	)
}

func respondSlotChoice(rc *replyContext) string {
	slot := rc.engine.matchSlot(rc.text)
	date := time.Now().AddDate(0, 0, 1).Format("Monday, January 2")
	booking := rc.booking.Merge(conversation.BookingData{
		TimeSlot:        slot.Label,
		AppointmentDate: date,
		Confirmed:       true,
	})
	rc.engine.saveBooking(rc.ctx, rc.conv, booking)

	service := booking.Service
	if service == "" {
		service = "your appointment"
	}
	return fmt.Sprintf(
		"You're all set! %s is booked for %s, %s. If anything changes, message %s here and they'll sort it out.",
		service, slot.Label, date, rc.engine.managerContact(rc.ctx, rc.conv),
	)
}

func respondLocation(rc *replyContext) string {
	return fmt.Sprintf("We're easy to find! %s will send you the exact address and directions here shortly. Meanwhile, is there anything else I can help with?", rc.conv.ManagerName)
}

func respondCall(rc *replyContext) string {
	return fmt.Sprintf("The fastest way to reach us is right here in chat, but %s can also give you a call. Want me to ask them to?", rc.engine.managerContact(rc.ctx, rc.conv))
}

func respondThanks(rc *replyContext) string {
	return "You're very welcome! Anything else I can help with?"
}

func respondGreeting(rc *replyContext) string {
	return withOptions(
		fmt.Sprintf("Hi %s! I'm the assistant for %s. I can share our services, prices, or get you booked in. What can I do for you?",
			firstName(rc.conv.CustomerName), rc.conv.ManagerName),
		[]string{"View services", "Book an appointment", "Talk to a person"},
	)
}

func respondFallback(rc *replyContext) string {
	return withOptions(
		"I'm not sure I caught that. I can show you our services, help you book, or bring in a team member.",
		[]string{"View services", "Book an appointment", "Talk to a person"},
	)
}

func firstName(full string) string {
	name := strings.TrimSpace(full)
	if name == "" {
		return "there"
	}
	if idx := strings.IndexByte(name, ' '); idx > 0 {
		return name[:idx]
	}
	return name
}

func serviceNames(services []CatalogService) []string {
	names := make([]string, 0, len(services))
	for _, svc := range services {
		names = append(names, svc.Name)
	}
	return names
}
