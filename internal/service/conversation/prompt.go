package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/propvoice/enquiry-agent/internal/domain"
)

// SiteVisitSlots is the fixed slot schema for the site-visit booking
// script. Validated once at startup, never rebuilt per call.
var SiteVisitSlots = []domain.SlotSpec{
	{Name: "user_confirmed_identity", Description: "yes or no"},
	{Name: "wants_site_visit", Description: "yes, no, maybe, or none"},
	{Name: "wants_details_first", Description: "yes or no"},
	{Name: "visit_date", Description: "Date user wants to visit (e.g., 'Saturday', 'Feb 15')"},
	{Name: "visit_time", Description: "Time slot (e.g., '10 AM', '3 PM', 'morning', 'evening')"},
	{Name: "visit_booking_attempts", Description: "Number of times asked: 1, 2, 3"},
	{Name: "budget_range", Description: "Budget interest"},
	{Name: "preferred_bhk", Description: "3 BHK or 4 BHK"},
	{Name: "call_complete", Description: "yes once the conversation has reached its natural end, otherwise none"},
}

// ValidateSlots rejects schema mistakes (empty or duplicate names) at
// configuration-load time instead of at every call.
func ValidateSlots(slots []domain.SlotSpec) error {
	seen := make(map[string]bool, len(slots))
	for _, s := range slots {
		if s.Name == "" {
			return fmt.Errorf("slot with empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate slot %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

const siteVisitScript = `You are %[1]s from %[2]s for %[3]s.

STRICT CONVERSATION FLOW (NO SHORTCUTS):

STEP 1 - IDENTITY: "Hi, am I speaking with %[4]s?"
If NO - end the call politely. If YES - Step 2.

STEP 2 - INTRO & INTEREST:
"Hello %[4]s! I'm %[1]s from %[2]s. You showed interest in %[3]s - a luxury project by Brigade Group in Yelahanka. I'd love to share the project highlights and pick a time for you to see it in person! Shall I start with the project details and pricing?"

Even if the user says "I want a visit", first offer a quick summary of highlights and pricing, then confirm.

STEP 3 - PROJECT SUMMARY & RERA:
"%[3]s is a massive 14-acre project which is RERA approved for complete trust. It has 1,124 apartments with 65 percent open space. Would you like to know about the 3 and 4 BHK pricing?"

STEP 4 - PRICING & REQUIREMENTS:
"We have 3 BHK starting at 2.75 crores and 4 BHK starting at 2.89 crores. What is your budget range and are you looking for a 3 or 4 BHK?"
You MUST collect BOTH budget_range and preferred_bhk here.

STEP 5 - SITE VISIT BOOKING (FINAL STEP):
"Now that you have the details, I'd love to show you the actual site! When would you like to visit, and what time works best for you?"
You MUST collect BOTH visit_date AND visit_time. NEVER assume or invent a date or time - wait for the user to say it.

STEP 6 - CONFIRMATION:
Once budget, BHK, date and time are all collected, confirm the visit, mention a WhatsApp reminder, set call_complete to yes and say goodbye warmly.

NUMBER PRONUNCIATION:
- "2.75 crores" = "two point seven five crores"
- "Rs." = "rupees", "sqft" = "square feet", "BHK" stays "BHK"

CRITICAL RULES:
1. Keep responses brief and natural (15-25 words). Short sentences reach the caller faster.
2. Every response = warm acknowledgment + next question. ONE question at a time.
3. NO HALLUCINATION: never confirm a booking without a user-given date and time.
4. Vary acknowledgments (Great, Excellent, Noted, Perfect).
Today's date is %[5]s.`

// FormatScript renders the agent script for one call.
func FormatScript(agentName, companyName, projectName, userFirstName string, now time.Time) string {
	return fmt.Sprintf(siteVisitScript,
		agentName, companyName, projectName, userFirstName,
		now.Format("January 02, 2006"),
	)
}

type schemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type compactSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]schemaProperty `json:"properties"`
	Required   []string                  `json:"required"`
}

// buildSystemPrompt appends the structured-output contract to the script.
func buildSystemPrompt(script string, slots []domain.SlotSpec) string {
	schema := compactSchema{
		Type:       "object",
		Properties: make(map[string]schemaProperty, len(slots)+1),
	}
	for _, s := range slots {
		schema.Properties[s.Name] = schemaProperty{Type: "string", Description: s.Description}
		schema.Required = append(schema.Required, s.Name)
	}
	schema.Properties[replyField] = schemaProperty{
		Type:        "string",
		Description: "Conversational response to the user",
	}
	schema.Required = append(schema.Required, replyField)

	encoded, _ := json.MarshalIndent(schema, "", "  ")

	var b strings.Builder
	b.WriteString(script)
	b.WriteString("\n\nExtract information and respond using this JSON schema:\n")
	b.Write(encoded)
	b.WriteString("\n\nIMPORTANT: Set fields to \"none\" if information is not provided by the caller yet.")
	return b.String()
}
