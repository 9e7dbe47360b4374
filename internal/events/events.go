package events

// Event is a state change pushed to dashboard clients.
type Event struct {
	Type        string `json:"type"`
	DeveloperID string `json:"developer_id,omitempty"`
	Name        string `json:"name,omitempty"`
	Count       int    `json:"count,omitempty"`
	Condition   string `json:"condition,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

const (
	TypeSnapshot        = "snapshot"
	TypeLocated         = "located"
	TypeViewportChanged = "viewport_changed"
	TypeFilterChanged   = "filter_changed"
	TypeSearchStarted   = "search_started"
	TypeSearchCompleted = "search_completed"
	TypeSearchFailed    = "search_failed"
	TypeSearchDiscarded = "search_discarded"
	TypeDeveloperAdded  = "developer_added"
	TypeCondition       = "condition"
	TypeChannelState    = "channel_state"
)

// Broadcaster sends events to connected dashboard clients.
type Broadcaster interface {
	Broadcast(e Event)
}
