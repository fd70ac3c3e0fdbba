package memory

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn in a session's short-term window.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// CartLine is a snapshot entry of the customer's in-progress order.
type CartLine struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}

// Context is the typed view over a session's durable context blob. The
// storage boundary stays a generic string-keyed map for flexibility; the
// typed view keeps internal logic away from untyped key lookups.
type Context struct {
	SessionID string
	TenantID  string
	Language  string
	State     string
	Cart      []CartLine
	StartedAt time.Time
	// Extra carries keys the core does not interpret.
	Extra map[string]any
}

// Storage keys of the context blob. Exported so callers can target
// individual fields through UpdateContext's shallow merge.
const (
	KeyTenantID  = "tenant_id"
	KeyLanguage  = "language"
	KeyState     = "state"
	KeyCart      = "cart"
	KeyStartedAt = "started_at"
)

// toMap flattens the typed view into the storage shape.
func (c Context) toMap() map[string]any {
	m := make(map[string]any, len(c.Extra)+5)
	for k, v := range c.Extra {
		m[k] = v
	}
	m[KeyTenantID] = c.TenantID
	m[KeyLanguage] = c.Language
	m[KeyState] = c.State
	m[KeyCart] = c.Cart
	m[KeyStartedAt] = c.StartedAt.Format(time.RFC3339Nano)
	return m
}

// contextFromMap builds the typed view from the storage shape, tolerating
// missing or oddly typed keys.
func contextFromMap(sessionID string, m map[string]any) Context {
	c := Context{SessionID: sessionID, Extra: map[string]any{}}
	for k, v := range m {
		switch k {
		case KeyTenantID:
			c.TenantID, _ = v.(string)
		case KeyLanguage:
			c.Language, _ = v.(string)
		case KeyState:
			c.State, _ = v.(string)
		case KeyStartedAt:
			if s, ok := v.(string); ok {
				if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
					c.StartedAt = ts
				}
			}
		case KeyCart:
			c.Cart = decodeCart(v)
		default:
			c.Extra[k] = v
		}
	}
	return c
}

// decodeCart round-trips the cart through JSON because Redis-loaded maps
// hold []any, not []CartLine.
func decodeCart(v any) []CartLine {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var cart []CartLine
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil
	}
	return cart
}
