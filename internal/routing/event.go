package routing

// Channel identifies the delivery surface an event arrived on.
type Channel string

const (
	ChannelVoice    Channel = "voice"
	ChannelChat     Channel = "chat"
	ChannelWhatsApp Channel = "whatsapp"
)

// InboundEvent is the channel-agnostic unit of work handed to the engine.
// CalledNumber, CallerNumber and Extension are populated for telephony
// channels and empty for web chat.
type InboundEvent struct {
	SessionID    string  `json:"session_id"`
	Text         string  `json:"text"`
	Channel      Channel `json:"channel"`
	CalledNumber string  `json:"called_number,omitempty"`
	CallerNumber string  `json:"caller_number,omitempty"`
	Extension    string  `json:"extension,omitempty"`
}

// Reply is what the engine hands back to the delivery channel.
type Reply struct {
	Message          string   `json:"message"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
	State            string   `json:"state"`
	BackendUsed      string   `json:"backend_used,omitempty"`
	TenantID         string   `json:"tenant_id,omitempty"`
}

// Session states. There is no terminal state; sessions end by memory
// expiry, not by explicit transition.
const (
	StateAwaitingTenantSelection = "awaiting_tenant_selection"
	StateInTenantConversation    = "in_tenant_conversation"
)
