package models

import (
	"encoding/json"
	"fmt"
	"time"

	dErrors "platewatch/pkg/domain-errors"
)

// Subject identifies who is being evaluated: an authenticated user when
// UserID is set, otherwise an anonymous visitor bound to an IP address.
type Subject struct {
	UserID    string
	IPAddress string
	UserAgent string
}

// Key returns the identity key used by the store and cache. Authenticated
// users are keyed by user id so their consent follows them across networks.
func (s Subject) Key() string {
	if s.UserID != "" {
		return s.UserID
	}
	return s.IPAddress
}

// IsZero reports whether no identity is present at all.
func (s Subject) IsZero() bool {
	return s.UserID == "" && s.IPAddress == ""
}

// Record captures one consent decision for a (subject, type) pair.
//
// Records are append-only: a grant or withdrawal never flips an existing
// row, it supersedes it with a newer one. The current state for a
// (subject, type) is always the newest record by creation time, with Seq
// breaking ties between identically-timestamped rows.
type Record struct {
	ID        string      `json:"id"`
	Seq       int64       `json:"-"`
	UserID    string      `json:"user_id,omitempty"`
	IPAddress string      `json:"ip_address,omitempty"`
	UserAgent string      `json:"user_agent,omitempty"`
	Type      ConsentType `json:"consent_type"`
	Given     bool        `json:"consent_given"`
	Version   string      `json:"consent_version"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	Metadata  Metadata    `json:"metadata,omitempty"`
}

// IsExpired reports whether the record has an expiry in the past.
func (r *Record) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// InGraceWindow reports whether the record expires within the grace period:
// still valid, but renewal should be flagged.
func (r *Record) InGraceWindow(now time.Time, grace time.Duration) bool {
	if r.ExpiresAt == nil || r.IsExpired(now) {
		return false
	}
	return now.After(r.ExpiresAt.Add(-grace))
}

// Metadata is a bag of supplementary facts stored alongside records and
// audit entries. Values are restricted to a small JSON-serializable set and
// validated at the system boundary rather than passed through unchecked.
type Metadata map[string]any

// Validate rejects metadata values outside the allowed scalar/JSON set.
func (m Metadata) Validate() error {
	for key, value := range m {
		if key == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "metadata key must not be empty")
		}
		switch value.(type) {
		case string, bool, int, int64, float64, json.RawMessage, nil:
		default:
			return dErrors.New(dErrors.CodeInvalidInput,
				fmt.Sprintf("metadata value for %q has unsupported type %T", key, value))
		}
	}
	return nil
}

// Clone returns a shallow copy so stored records cannot alias caller maps.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
