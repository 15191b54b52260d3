package models

import (
	"fmt"
	"time"

	dErrors "platewatch/pkg/domain-errors"
)

// VerificationRequest asks whether a subject holds the consents an
// operation requires. ConsentTypes may be empty, in which case the engine
// resolves the requirement from its operation table.
type VerificationRequest struct {
	UserID       string
	IPAddress    string
	UserAgent    string
	ConsentTypes []ConsentType
	Operation    string
	Metadata     Metadata
}

// Subject returns the identity portion of the request.
func (r VerificationRequest) Subject() Subject {
	return Subject{UserID: r.UserID, IPAddress: r.IPAddress, UserAgent: r.UserAgent}
}

// Validate enforces boundary invariants before the engine evaluates.
func (r VerificationRequest) Validate() error {
	if r.Subject().IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "request must identify a user or an IP address")
	}
	if r.Operation == "" {
		return dErrors.New(dErrors.CodeBadRequest, "operation is required")
	}
	for _, t := range r.ConsentTypes {
		if !t.IsValid() {
			return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid consent type: %s", t))
		}
	}
	return r.Metadata.Validate()
}

// VerificationResult is the outcome of a consent verification. IsValid is a
// business decision; infrastructure failures surface as errors instead.
type VerificationResult struct {
	IsValid         bool          `json:"is_valid"`
	MissingConsents []ConsentType `json:"missing_consents,omitempty"`
	ExpiredConsents []ConsentType `json:"expired_consents,omitempty"`
	ConsentDetails  []*Record     `json:"consent_details,omitempty"`
	RequiresRenewal bool          `json:"requires_renewal"`
	Message         string        `json:"message"`
}

// StoreRequest records a new consent decision for a subject.
type StoreRequest struct {
	UserID         string
	IPAddress      string
	UserAgent      string
	ConsentType    ConsentType
	ConsentGiven   bool
	Version        string
	ExpirationDays *int
	Metadata       Metadata
}

// Subject returns the identity portion of the request.
func (r StoreRequest) Subject() Subject {
	return Subject{UserID: r.UserID, IPAddress: r.IPAddress, UserAgent: r.UserAgent}
}

// Validate enforces boundary invariants before the engine persists.
func (r StoreRequest) Validate() error {
	if r.Subject().IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "request must identify a user or an IP address")
	}
	if !r.ConsentType.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid consent type: %s", r.ConsentType))
	}
	if r.Version == "" {
		return dErrors.New(dErrors.CodeBadRequest, "consent version is required")
	}
	if r.ExpirationDays != nil && *r.ExpirationDays <= 0 {
		return dErrors.New(dErrors.CodeBadRequest, "expiration days must be positive")
	}
	return r.Metadata.Validate()
}

// TypeStatus summarizes the current state of one consent type for a subject.
type TypeStatus struct {
	Given           bool       `json:"given"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	RequiresRenewal bool       `json:"requires_renewal"`
}

// StatusReport carries all current records for a subject plus a per-type
// summary computed with the same grace-period arithmetic as verification.
type StatusReport struct {
	Records []*Record                  `json:"records"`
	Summary map[ConsentType]TypeStatus `json:"summary"`
}
