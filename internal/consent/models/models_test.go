package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "platewatch/pkg/domain-errors"
)

func TestSubjectKey(t *testing.T) {
	assert.Equal(t, "user-1", Subject{UserID: "user-1", IPAddress: "10.0.0.1"}.Key(),
		"authenticated identity wins over IP")
	assert.Equal(t, "10.0.0.1", Subject{IPAddress: "10.0.0.1"}.Key())
	assert.True(t, Subject{}.IsZero())
}

func TestConsentTypeIsValid(t *testing.T) {
	for ct := range ValidConsentTypes {
		assert.True(t, ct.IsValid(), ct)
	}
	assert.False(t, ConsentType("telemetry").IsValid())
}

func TestRecordExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	grace := 30 * 24 * time.Hour

	t.Run("no expiry never expires", func(t *testing.T) {
		r := &Record{Given: true}
		assert.False(t, r.IsExpired(now))
		assert.False(t, r.InGraceWindow(now, grace))
	})

	t.Run("past expiry is expired, not in grace", func(t *testing.T) {
		exp := now.Add(-time.Millisecond)
		r := &Record{Given: true, ExpiresAt: &exp}
		assert.True(t, r.IsExpired(now))
		assert.False(t, r.InGraceWindow(now, grace))
	})

	t.Run("inside grace window flags renewal", func(t *testing.T) {
		exp := now.Add(15 * 24 * time.Hour)
		r := &Record{Given: true, ExpiresAt: &exp}
		assert.False(t, r.IsExpired(now))
		assert.True(t, r.InGraceWindow(now, grace))
	})

	t.Run("outside grace window is quiet", func(t *testing.T) {
		exp := now.Add(90 * 24 * time.Hour)
		r := &Record{Given: true, ExpiresAt: &exp}
		assert.False(t, r.InGraceWindow(now, grace))
	})
}

func TestMetadataValidate(t *testing.T) {
	good := Metadata{
		"source":     "mobile_app",
		"attempt":    3,
		"confidence": 0.92,
		"reviewed":   false,
		"payload":    json.RawMessage(`{"k":"v"}`),
		"absent":     nil,
	}
	require.NoError(t, good.Validate())

	bad := Metadata{"nested": map[string]string{"k": "v"}}
	err := bad.Validate()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	empty := Metadata{"": "x"}
	assert.Error(t, empty.Validate())
}

func TestVerificationRequestValidate(t *testing.T) {
	valid := VerificationRequest{IPAddress: "203.0.113.9", Operation: "upload"}
	require.NoError(t, valid.Validate())

	noIdentity := VerificationRequest{Operation: "upload"}
	assert.True(t, dErrors.HasCode(noIdentity.Validate(), dErrors.CodeBadRequest))

	noOperation := VerificationRequest{UserID: "u1"}
	assert.True(t, dErrors.HasCode(noOperation.Validate(), dErrors.CodeBadRequest))

	badType := VerificationRequest{UserID: "u1", Operation: "upload", ConsentTypes: []ConsentType{"bogus"}}
	assert.True(t, dErrors.HasCode(badType.Validate(), dErrors.CodeBadRequest))
}

func TestStoreRequestValidate(t *testing.T) {
	days := 30
	valid := StoreRequest{UserID: "u1", ConsentType: TypeUpload, ConsentGiven: true, Version: "2.1", ExpirationDays: &days}
	require.NoError(t, valid.Validate())

	zero := 0
	badDays := valid
	badDays.ExpirationDays = &zero
	assert.True(t, dErrors.HasCode(badDays.Validate(), dErrors.CodeBadRequest))

	noVersion := StoreRequest{UserID: "u1", ConsentType: TypeUpload}
	assert.True(t, dErrors.HasCode(noVersion.Validate(), dErrors.CodeBadRequest))
}
