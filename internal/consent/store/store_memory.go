package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"platewatch/internal/consent/models"
)

// InMemoryStore keeps consent rows in memory for tests. It mirrors the
// Postgres client's append-only semantics, including the monotonic
// sequence used to break creation-time ties.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []*models.Record
	seq     int64
}

// New constructs an empty in-memory consent store.
func New() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) StoreConsent(_ context.Context, record *models.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	stored := *record
	stored.Seq = s.seq
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	stored.Metadata = record.Metadata.Clone()
	s.records = append(s.records, &stored)

	record.ID = stored.ID
	record.Seq = stored.Seq
	record.CreatedAt = stored.CreatedAt
	record.UpdatedAt = stored.UpdatedAt
	return stored.ID, nil
}

func (s *InMemoryStore) GetConsentRecords(_ context.Context, subject models.Subject, types []models.ConsentType) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	current := currentPerType(s.forSubject(subject))
	var out []*models.Record
	for _, t := range types {
		if record, ok := current[t]; ok {
			copyRecord := *record
			out = append(out, &copyRecord)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListCurrent(_ context.Context, subject models.Subject) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	current := currentPerType(s.forSubject(subject))
	var out []*models.Record
	for _, record := range current {
		copyRecord := *record
		out = append(out, &copyRecord)
	}
	return out, nil
}

func (s *InMemoryStore) UpdateConsent(_ context.Context, id string, version string, metadata models.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.ID == id {
			if version != "" {
				record.Version = version
			}
			if metadata != nil {
				record.Metadata = metadata.Clone()
			}
			record.UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

// forSubject filters rows by identity: user id when authenticated,
// otherwise anonymous rows for the IP.
func (s *InMemoryStore) forSubject(subject models.Subject) []*models.Record {
	var out []*models.Record
	for _, record := range s.records {
		if subject.UserID != "" {
			if record.UserID == subject.UserID {
				out = append(out, record)
			}
			continue
		}
		if record.UserID == "" && record.IPAddress == subject.IPAddress {
			out = append(out, record)
		}
	}
	return out
}
