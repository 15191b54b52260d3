package handler

import (
	"platewatch/internal/consent/models"
)

// verifyRequest is the wire form of a verification call. Identity never
// travels in the body: the user ID comes from the bearer token and the IP
// and User-Agent from the connection, so clients cannot verify consent on
// someone else's behalf.
type verifyRequest struct {
	Operation    string          `json:"operation"`
	ConsentTypes []string        `json:"consent_types,omitempty"`
	Metadata     models.Metadata `json:"metadata,omitempty"`
}

func (r verifyRequest) toModel(userID, ip, userAgent string) models.VerificationRequest {
	types := make([]models.ConsentType, 0, len(r.ConsentTypes))
	for _, t := range r.ConsentTypes {
		types = append(types, models.ConsentType(t))
	}
	if len(types) == 0 {
		types = nil
	}
	return models.VerificationRequest{
		UserID:       userID,
		IPAddress:    ip,
		UserAgent:    userAgent,
		ConsentTypes: types,
		Operation:    r.Operation,
		Metadata:     r.Metadata,
	}
}

// storeRequest records a consent decision.
type storeRequest struct {
	ConsentType    string          `json:"consent_type"`
	ConsentGiven   bool            `json:"consent_given"`
	Version        string          `json:"consent_version"`
	ExpirationDays *int            `json:"expiration_days,omitempty"`
	Metadata       models.Metadata `json:"metadata,omitempty"`
}

func (r storeRequest) toModel(userID, ip, userAgent string) models.StoreRequest {
	return models.StoreRequest{
		UserID:         userID,
		IPAddress:      ip,
		UserAgent:      userAgent,
		ConsentType:    models.ConsentType(r.ConsentType),
		ConsentGiven:   r.ConsentGiven,
		Version:        r.Version,
		ExpirationDays: r.ExpirationDays,
		Metadata:       r.Metadata,
	}
}

// withdrawRequest revokes a previously recorded consent.
type withdrawRequest struct {
	ConsentType string `json:"consent_type"`
	Reason      string `json:"reason,omitempty"`
}
