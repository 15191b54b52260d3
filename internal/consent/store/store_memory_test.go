package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platewatch/internal/consent/models"
)

func seedRecord(t *testing.T, s *InMemoryStore, record models.Record) *models.Record {
	t.Helper()
	_, err := s.StoreConsent(context.Background(), &record)
	require.NoError(t, err)
	return &record
}

func TestStoreConsentAssignsIDAndSequence(t *testing.T) {
	s := New()
	first := seedRecord(t, s, models.Record{IPAddress: "203.0.113.9", Type: models.TypeUpload, Given: true, Version: "1.0"})
	second := seedRecord(t, s, models.Record{IPAddress: "203.0.113.9", Type: models.TypeUpload, Given: false, Version: "1.0"})

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Greater(t, second.Seq, first.Seq, "sequence must be monotonic")
	assert.False(t, first.CreatedAt.IsZero())
}

func TestGetConsentRecordsReturnsNewestPerType(t *testing.T) {
	s := New()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	subject := models.Subject{UserID: "user-1"}

	seedRecord(t, s, models.Record{UserID: "user-1", IPAddress: "10.0.0.1", Type: models.TypeUpload, Given: true, Version: "1.0", CreatedAt: base})
	seedRecord(t, s, models.Record{UserID: "user-1", IPAddress: "10.0.0.1", Type: models.TypeUpload, Given: false, Version: "1.1", CreatedAt: base.Add(time.Hour)})
	seedRecord(t, s, models.Record{UserID: "user-1", IPAddress: "10.0.0.1", Type: models.TypeDataStorage, Given: true, Version: "1.0", CreatedAt: base})

	records, err := s.GetConsentRecords(context.Background(), subject, []models.ConsentType{models.TypeUpload, models.TypeDataStorage})
	require.NoError(t, err)
	require.Len(t, records, 2)

	byType := map[models.ConsentType]*models.Record{}
	for _, r := range records {
		byType[r.Type] = r
	}
	assert.False(t, byType[models.TypeUpload].Given, "newest upload row withdraws consent")
	assert.Equal(t, "1.1", byType[models.TypeUpload].Version)
	assert.True(t, byType[models.TypeDataStorage].Given)
}

func TestGetConsentRecordsBreaksTimestampTiesBySequence(t *testing.T) {
	s := New()
	stamp := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	subject := models.Subject{UserID: "user-1"}

	seedRecord(t, s, models.Record{UserID: "user-1", IPAddress: "10.0.0.1", Type: models.TypeAnalytics, Given: false, Version: "1.0", CreatedAt: stamp})
	seedRecord(t, s, models.Record{UserID: "user-1", IPAddress: "10.0.0.1", Type: models.TypeAnalytics, Given: true, Version: "1.0", CreatedAt: stamp})

	records, err := s.GetConsentRecords(context.Background(), subject, []models.ConsentType{models.TypeAnalytics})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Given, "later insert wins when timestamps collide")
}

func TestSubjectIsolation(t *testing.T) {
	s := New()
	seedRecord(t, s, models.Record{UserID: "user-1", IPAddress: "10.0.0.1", Type: models.TypeUpload, Given: true, Version: "1.0"})
	seedRecord(t, s, models.Record{IPAddress: "10.0.0.1", Type: models.TypeUpload, Given: false, Version: "1.0"})

	userRecords, err := s.GetConsentRecords(context.Background(), models.Subject{UserID: "user-1"}, []models.ConsentType{models.TypeUpload})
	require.NoError(t, err)
	require.Len(t, userRecords, 1)
	assert.True(t, userRecords[0].Given)

	anonRecords, err := s.GetConsentRecords(context.Background(), models.Subject{IPAddress: "10.0.0.1"}, []models.ConsentType{models.TypeUpload})
	require.NoError(t, err)
	require.Len(t, anonRecords, 1)
	assert.False(t, anonRecords[0].Given, "anonymous identity must not see user-keyed rows")
}

func TestGetConsentRecordsSkipsUnknownTypes(t *testing.T) {
	s := New()
	subject := models.Subject{IPAddress: "203.0.113.9"}
	seedRecord(t, s, models.Record{IPAddress: "203.0.113.9", Type: models.TypeUpload, Given: true, Version: "1.0"})

	records, err := s.GetConsentRecords(context.Background(), subject, []models.ConsentType{models.TypeUpload, models.TypeVC})
	require.NoError(t, err)
	assert.Len(t, records, 1, "types without a row simply yield no record")
}

func TestListCurrent(t *testing.T) {
	s := New()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	seedRecord(t, s, models.Record{UserID: "user-1", IPAddress: "10.0.0.1", Type: models.TypeUpload, Given: true, Version: "1.0", CreatedAt: base})
	seedRecord(t, s, models.Record{UserID: "user-1", IPAddress: "10.0.0.1", Type: models.TypeUpload, Given: false, Version: "1.0", CreatedAt: base.Add(time.Minute)})
	seedRecord(t, s, models.Record{UserID: "user-1", IPAddress: "10.0.0.1", Type: models.TypeAnalytics, Given: true, Version: "1.0", CreatedAt: base})

	records, err := s.ListCurrent(context.Background(), models.Subject{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, records, 2, "one current record per type")
}

func TestUpdateConsentCorrectsMetadataOnly(t *testing.T) {
	s := New()
	record := seedRecord(t, s, models.Record{UserID: "user-1", IPAddress: "10.0.0.1", Type: models.TypeUpload, Given: true, Version: "1.0"})

	err := s.UpdateConsent(context.Background(), record.ID, "1.0-corrected", models.Metadata{"note": "typo fix"})
	require.NoError(t, err)

	records, err := s.GetConsentRecords(context.Background(), models.Subject{UserID: "user-1"}, []models.ConsentType{models.TypeUpload})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1.0-corrected", records[0].Version)
	assert.True(t, records[0].Given, "update must never flip the given state")
}

func TestUpdateConsentMissingRow(t *testing.T) {
	s := New()
	err := s.UpdateConsent(context.Background(), "missing-id", "2.0", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreReturnsCopies(t *testing.T) {
	s := New()
	seedRecord(t, s, models.Record{UserID: "user-1", IPAddress: "10.0.0.1", Type: models.TypeUpload, Given: true, Version: "1.0"})

	records, err := s.GetConsentRecords(context.Background(), models.Subject{UserID: "user-1"}, []models.ConsentType{models.TypeUpload})
	require.NoError(t, err)
	records[0].Given = false

	again, err := s.GetConsentRecords(context.Background(), models.Subject{UserID: "user-1"}, []models.ConsentType{models.TypeUpload})
	require.NoError(t, err)
	assert.True(t, again[0].Given, "mutating a returned record must not change stored state")
}
