package audit

import "time"

// Entry is one immutable enforcement-trail record. Keep it
// transport-agnostic so stores and sinks can fan out. Entries are written
// once per engine decision and never updated or deleted.
type Entry struct {
	Timestamp    time.Time      `json:"timestamp"`
	UserID       string         `json:"user_id,omitempty"`
	IPAddress    string         `json:"ip_address"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Operation    string         `json:"operation"`
	ConsentTypes []string       `json:"consent_types"`
	Result       string         `json:"result"`
	Reason       string         `json:"reason"`
	Source       string         `json:"source,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Decision results. The vocabulary is closed; ResultWarning is reserved for
// sinks that downgrade entries during replay and is not emitted by the
// verification or write paths.
const (
	ResultAllowed = "allowed"
	ResultDenied  = "denied"
	ResultWarning = "warning"
)

// Where a verification verdict came from.
const (
	SourceCache    = "cache"
	SourceDatabase = "database"
)
