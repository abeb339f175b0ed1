package conversation

import "strings"

// Guardrail flags replies that drift off the single-project script. It
// never blocks a turn; off-script replies are only logged.
type Guardrail struct {
	forbidden []string
	required  []string
}

func NewGuardrail() *Guardrail {
	return &Guardrail{
		forbidden: []string{
			"other property", "other properties", "different project", "alternative",
			"similar properties", "nearby projects", "competitor", "other options",
			"different options", "other developments", "compare with",
		},
		required: []string{
			"brigade eternia", "eternia", "this project", "our project", "brigade group",
		},
	}
}

// OnScript reports whether the reply stays on the project script. Short
// conversational replies without any project mention are tolerated; only
// explicit competitor talk fails.
func (g *Guardrail) OnScript(reply string) bool {
	lower := strings.ToLower(reply)
	for _, phrase := range g.forbidden {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	return true
}

// MentionsProject reports whether the reply references the project at all.
func (g *Guardrail) MentionsProject(reply string) bool {
	lower := strings.ToLower(reply)
	for _, term := range g.required {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
