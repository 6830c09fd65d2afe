package autoreply

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bizlinkhq/bizlink-server/internal/conversation"
)

// CatalogService is a bookable service the bot can offer.
type CatalogService struct {
	Name   string
	Price  string
	Action string
}

// TimeSlot is a bookable slot the bot can offer.
type TimeSlot struct {
	Label  string
	Action string
}

// DefaultServices is the stock catalog used when a business has not
// customized its offering.
var DefaultServices = []CatalogService{
	{Name: "Haircut & Styling", Price: "$45", Action: "service_haircut"},
	{Name: "Hair Coloring", Price: "$120", Action: "service_coloring"},
	{Name: "Manicure & Pedicure", Price: "$60", Action: "service_manicure"},
	{Name: "Facial Treatment", Price: "$80", Action: "service_facial"},
	{Name: "Full Body Massage", Price: "$95", Action: "service_massage"},
}

// DefaultSlots are the stock appointment slots.
var DefaultSlots = []TimeSlot{
	{Label: "Morning (10:00 AM)", Action: "slot_morning"},
	{Label: "Afternoon (2:00 PM)", Action: "slot_afternoon"},
	{Label: "Evening (6:00 PM)", Action: "slot_evening"},
}

// rule pairs an intent matcher with its responder. The script is evaluated
// in slice order; the first match wins, so broad intents must come after
// specific ones.
type rule struct {
	name    string
	match   func(rc *replyContext) bool
	respond func(rc *replyContext) string
}

// replyContext carries one turn's inputs to the matchers and responders.
type replyContext struct {
	ctx     context.Context
	engine  *Engine
	conv    *conversation.Conversation
	booking conversation.BookingData
	text    string // lowercased, trimmed
	raw     string
}

var (
	humanPattern   = regexp.MustCompile(`(?i)\b(human|real person|agent|representative|operator|talk to (someone|a person|staff))\b`)
	claimPattern   = regexp.MustCompile(`(?i)\bclaim\b|\bredeem\b|claim_offer`)
	catalogPattern = regexp.MustCompile(`(?i)\b(services?|pricing|price list|prices|menu|catalog|how much|rates)\b`)
	bookPattern    = regexp.MustCompile(`(?i)\b(book|booking|appointment|schedule|reserve)\b`)
	locatePattern  = regexp.MustCompile(`(?i)\b(location|address|directions|where are you|find you)\b`)
	callPattern    = regexp.MustCompile(`(?i)\b(call|phone number|contact number)\b`)
	thanksPattern  = regexp.MustCompile(`(?i)\b(thanks|thank you|thx)\b`)
	greetPattern   = regexp.MustCompile(`(?i)^(hi|hello|hey|good (morning|afternoon|evening))\b`)
)

// script is the dialogue table, in priority order. Keeping the flow as
// data keeps it testable and lets copy change without touching control
// flow; see rulesFor below for the two rules that need catalog state.
func (e *Engine) buildScript() []rule {
	return []rule{
		{
			name:    "human_handoff",
			match:   func(rc *replyContext) bool { return humanPattern.MatchString(rc.text) },
			respond: respondHandoff,
		},
		{
			name:    "claim_offer",
			match:   func(rc *replyContext) bool { return claimPattern.MatchString(rc.text) },
			respond: respondClaimOffer,
		},
		{
			name:    "catalog",
			match:   func(rc *replyContext) bool { return catalogPattern.MatchString(rc.text) },
			respond: respondCatalog,
		},
		{
			name:    "booking",
			match:   func(rc *replyContext) bool { return bookPattern.MatchString(rc.text) },
			respond: respondBookingPrompt,
		},
		{
			name:    "service_choice",
			match:   func(rc *replyContext) bool { return rc.engine.matchService(rc.text) != nil },
			respond: respondServiceChoice,
		},
		{
			name:    "slot_choice",
			match:   func(rc *replyContext) bool { return rc.engine.matchSlot(rc.text) != nil },
			respond: respondSlotChoice,
		},
		{
			name:    "location",
			match:   func(rc *replyContext) bool { return locatePattern.MatchString(rc.text) },
			respond: respondLocation,
		},
		{
			name:    "call",
			match:   func(rc *replyContext) bool { return callPattern.MatchString(rc.text) },
			respond: respondCall,
		},
		{
			name:    "thanks",
			match:   func(rc *replyContext) bool { return thanksPattern.MatchString(rc.text) },
			respond: respondThanks,
		},
		{
			name:    "greeting",
			match:   func(rc *replyContext) bool { return greetPattern.MatchString(rc.text) },
			respond: respondGreeting,
		},
		{
			name:    "fallback",
			match:   func(rc *replyContext) bool { return true },
			respond: respondFallback,
		},
	}
}

// matchService finds the catalog entry named (or actioned) in the text.
func (e *Engine) matchService(text string) *CatalogService {
	for i := range e.services {
		svc := &e.services[i]
		if strings.Contains(text, strings.ToLower(svc.Name)) || text == svc.Action {
			return svc
		}
	}
	return nil
}

// matchSlot finds the slot labeled (or actioned) in the text.
func (e *Engine) matchSlot(text string) *TimeSlot {
	for i := range e.slots {
		slot := &e.slots[i]
		if strings.Contains(text, strings.ToLower(slot.Label)) || text == slot.Action {
			return slot
		}
	}
	return nil
}

func (e *Engine) serviceOptions() []string {
	options := make([]string, 0, len(e.services))
	for _, svc := range e.services {
		options = append(options, svc.Name)
	}
	return options
}

func (e *Engine) slotOptions() []string {
	options := make([]string, 0, len(e.slots))
	for _, slot := range e.slots {
		options = append(options, slot.Label)
	}
	return options
}

func (e *Engine) topServices(n int) []CatalogService {
	if len(e.services) < n {
		n = len(e.services)
	}
	return e.services[:n]
}

func catalogLines(services []CatalogService) string {
	var b strings.Builder
	for _, svc := range services {
		fmt.Fprintf(&b, "%s - %s\n", svc.Name, svc.Price)
	}
	return strings.TrimRight(b.String(), "\n")
}
