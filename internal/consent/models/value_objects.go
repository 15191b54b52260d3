package models

// ConsentType labels an independently enforced category of permission.
// The vocabulary is closed; new types are additive only.
type ConsentType string

const (
	TypeUpload            ConsentType = "upload"
	TypeDataStorage       ConsentType = "data_storage"
	TypeVC                ConsentType = "vc"
	TypeAIProcessing      ConsentType = "ai_processing"
	TypeThirdPartySharing ConsentType = "third_party_sharing"
	TypeAnalytics         ConsentType = "analytics"
)

// ValidConsentTypes is the single source of truth for all valid consent types.
var ValidConsentTypes = map[ConsentType]bool{
	TypeUpload:            true,
	TypeDataStorage:       true,
	TypeVC:                true,
	TypeAIProcessing:      true,
	TypeThirdPartySharing: true,
	TypeAnalytics:         true,
}

// IsValid checks if the consent type is one of the supported enum values.
func (t ConsentType) IsValid() bool {
	return ValidConsentTypes[t]
}

// Well-known data-processing operations. Operations are open-ended strings;
// anything outside this set falls back to the analytics requirement.
const (
	OperationUpload     = "upload"
	OperationAnalysis   = "analysis"
	OperationProcessing = "processing"
	OperationStorage    = "storage"
	OperationSharing    = "sharing"
)

// Internal operations recorded on the audit trail for write paths.
const (
	OperationConsentUpdate     = "consent_update"
	OperationConsentWithdrawal = "consent_withdrawal"
)

// TypeNames renders consent types as strings, preserving order.
func TypeNames(types []ConsentType) []string {
	if len(types) == 0 {
		return nil
	}
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	return names
}
