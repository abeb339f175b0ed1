package domain

// ChatMessage is one turn of the rolling conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SlotDefault is the sentinel for a slot the caller has not filled yet.
const SlotDefault = "none"

// SlotSpec describes one named field the conversation script elicits.
// The slot set is fixed per agent script and validated at startup, not
// rebuilt per call.
type SlotSpec struct {
	Name        string
	Description string
}

// TurnResult is what the conversation engine returns for one user turn.
type TurnResult struct {
	Reply   string
	Slots   map[string]string
	EndCall bool
}
