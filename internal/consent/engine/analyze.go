package engine

import (
	"fmt"
	"strings"
	"time"

	"platewatch/internal/consent/models"
)

// analyzeConsentStatus is the core decision algorithm. It is a pure
// function of the required types, the current records, and the clock:
// no I/O, no caching, no audit.
func analyzeConsentStatus(
	required []models.ConsentType,
	records []*models.Record,
	operation string,
	now time.Time,
	grace time.Duration,
	strict bool,
) *models.VerificationResult {
	// Latest record per type. The store already returns one row per type;
	// the map guards against duplicates from other Store implementations.
	byType := make(map[models.ConsentType]*models.Record, len(records))
	for _, record := range records {
		if _, ok := byType[record.Type]; !ok {
			byType[record.Type] = record
		}
	}

	result := &models.VerificationResult{}
	for _, t := range required {
		record, ok := byType[t]
		if !ok {
			result.MissingConsents = append(result.MissingConsents, t)
			continue
		}
		result.ConsentDetails = append(result.ConsentDetails, record)
		if !record.Given {
			result.MissingConsents = append(result.MissingConsents, t)
			continue
		}
		if record.IsExpired(now) {
			result.ExpiredConsents = append(result.ExpiredConsents, t)
			continue
		}
		if record.InGraceWindow(now, grace) {
			result.RequiresRenewal = true
		}
	}

	result.IsValid = len(result.MissingConsents) == 0 && len(result.ExpiredConsents) == 0

	switch {
	case !result.IsValid && !strict && len(result.ExpiredConsents) > 0 && len(result.MissingConsents) == 0:
		// Non-strict posture: expired-only failures pass with a renewal flag.
		result.IsValid = true
		result.RequiresRenewal = true
		result.Message = fmt.Sprintf("Operation allowed in non-strict mode but consent renewal required for: %s",
			joinTypes(result.ExpiredConsents))
	case !result.IsValid:
		var issues []string
		if len(result.MissingConsents) > 0 {
			issues = append(issues, fmt.Sprintf("Missing consents: %s", joinTypes(result.MissingConsents)))
		}
		if len(result.ExpiredConsents) > 0 {
			issues = append(issues, fmt.Sprintf("Expired consents: %s", joinTypes(result.ExpiredConsents)))
		}
		result.Message = fmt.Sprintf("Operation denied - %s", strings.Join(issues, "; "))
	case result.RequiresRenewal:
		result.Message = fmt.Sprintf("Operation allowed but consent renewal recommended for: %s",
			joinTypes(required))
	default:
		result.Message = fmt.Sprintf("All required consents verified for operation: %s", operation)
	}

	return result
}

func joinTypes(types []models.ConsentType) string {
	return strings.Join(models.TypeNames(types), ", ")
}
