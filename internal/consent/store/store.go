package store

import (
	"context"
	"sort"

	"platewatch/internal/consent/models"
	dErrors "platewatch/pkg/domain-errors"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested entity does not exist
// - Return nil for successful operations
// - Return wrapped store_unavailable errors for infrastructure failures

// ErrNotFound keeps storage-specific 404s consistent across implementations.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "consent record not found")

// Store is the durable, append-only persistence contract for consent
// records. State transitions are always new rows; UpdateConsent corrects
// metadata/version of an existing row and never flips its given state.
type Store interface {
	// GetConsentRecords returns at most one record per requested type:
	// the newest by (created_at, seq) for the subject. An empty types
	// slice returns nothing.
	GetConsentRecords(ctx context.Context, subject models.Subject, types []models.ConsentType) ([]*models.Record, error)

	// ListCurrent returns the current record for every type the subject
	// has ever recorded a decision for.
	ListCurrent(ctx context.Context, subject models.Subject) ([]*models.Record, error)

	// StoreConsent appends a row and returns its generated identifier.
	StoreConsent(ctx context.Context, record *models.Record) (string, error)

	// UpdateConsent corrects version/metadata of an existing row.
	UpdateConsent(ctx context.Context, id string, version string, metadata models.Metadata) error
}

// currentPerType selects the newest record per consent type: an explicit
// sort newest-first followed by a single first-occurrence pass into a map.
// Seq breaks ties between identically-timestamped rows.
func currentPerType(records []*models.Record) map[models.ConsentType]*models.Record {
	sorted := append([]*models.Record{}, records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].Seq > sorted[j].Seq
	})

	current := make(map[models.ConsentType]*models.Record)
	for _, record := range sorted {
		if _, seen := current[record.Type]; !seen {
			current[record.Type] = record
		}
	}
	return current
}
