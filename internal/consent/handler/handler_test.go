package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platewatch/internal/audit"
	"platewatch/internal/consent/models"
	"platewatch/internal/platform/logger"
	"platewatch/internal/platform/middleware"
	dErrors "platewatch/pkg/domain-errors"
)

type stubService struct {
	lastVerify   models.VerificationRequest
	lastStore    models.StoreRequest
	lastUserID   string
	lastType     models.ConsentType
	lastReason   string
	verifyResult *models.VerificationResult
	record       *models.Record
	report       *models.StatusReport
	err          error
}

func (s *stubService) Verify(_ context.Context, req models.VerificationRequest) (*models.VerificationResult, error) {
	s.lastVerify = req
	return s.verifyResult, s.err
}

func (s *stubService) StoreConsent(_ context.Context, req models.StoreRequest) (*models.Record, error) {
	s.lastStore = req
	return s.record, s.err
}

func (s *stubService) Withdraw(_ context.Context, userID string, consentType models.ConsentType, reason string) (*models.Record, error) {
	s.lastUserID = userID
	s.lastType = consentType
	s.lastReason = reason
	return s.record, s.err
}

func (s *stubService) Status(_ context.Context, userID string) (*models.StatusReport, error) {
	s.lastUserID = userID
	return s.report, s.err
}

type stubValidator struct{ userID string }

func (v stubValidator) ValidateToken(string) (string, error) {
	if v.userID == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return v.userID, nil
}

func newRouter(svc *stubService, trail AuditReader) chi.Router {
	log := logger.New()
	r := chi.NewRouter()
	r.Use(middleware.ClientMetadata(nil))
	r.Use(middleware.OptionalAuth(stubValidator{userID: "user-1"}, log))
	New(svc, trail, log).Register(r)
	return r
}

func TestHandleVerify(t *testing.T) {
	svc := &stubService{verifyResult: &models.VerificationResult{
		IsValid: true,
		Message: "All required consents verified for operation: upload",
	}}
	router := newRouter(svc, audit.NewInMemoryStore())

	body := `{"operation":"upload","consent_types":["analytics"]}`
	req := httptest.NewRequest(http.MethodPost, "/consent/verify", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.9:4411"
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "upload", svc.lastVerify.Operation)
	assert.Equal(t, "203.0.113.9", svc.lastVerify.IPAddress)
	assert.Equal(t, "test-agent", svc.lastVerify.UserAgent)
	assert.Equal(t, []models.ConsentType{models.TypeAnalytics}, svc.lastVerify.ConsentTypes)
	assert.Empty(t, svc.lastVerify.UserID)

	var result models.VerificationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.IsValid)
}

func TestHandleVerifyAuthenticated(t *testing.T) {
	svc := &stubService{verifyResult: &models.VerificationResult{IsValid: true}}
	router := newRouter(svc, audit.NewInMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/consent/verify", strings.NewReader(`{"operation":"analysis"}`))
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", svc.lastVerify.UserID)
}

func TestHandleVerifyBadBody(t *testing.T) {
	svc := &stubService{}
	router := newRouter(svc, audit.NewInMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/consent/verify", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "bad_request")
}

func TestHandleVerifyStoreUnavailable(t *testing.T) {
	svc := &stubService{err: dErrors.New(dErrors.CodeStoreUnavailable, "consent verification failed: store unavailable")}
	router := newRouter(svc, audit.NewInMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/consent/verify", strings.NewReader(`{"operation":"upload"}`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "store_unavailable")
}

func TestHandleStore(t *testing.T) {
	svc := &stubService{record: &models.Record{ID: "rec-1", Type: models.TypeAnalytics, Given: true}}
	router := newRouter(svc, audit.NewInMemoryStore())

	body := `{"consent_type":"analytics","consent_given":true,"consent_version":"1.2"}`
	req := httptest.NewRequest(http.MethodPost, "/consent", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.9:4411"
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.TypeAnalytics, svc.lastStore.ConsentType)
	assert.True(t, svc.lastStore.ConsentGiven)
	assert.Equal(t, "1.2", svc.lastStore.Version)
	assert.Equal(t, "203.0.113.9", svc.lastStore.IPAddress)
	assert.Contains(t, rec.Body.String(), "Consent granted for analytics")
}

func TestHandleWithdrawRequiresAuth(t *testing.T) {
	svc := &stubService{}
	router := newRouter(svc, audit.NewInMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/consent/withdraw", strings.NewReader(`{"consent_type":"analytics"}`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleWithdraw(t *testing.T) {
	svc := &stubService{record: &models.Record{ID: "rec-2", Type: models.TypeAnalytics, Given: false}}
	router := newRouter(svc, audit.NewInMemoryStore())

	body := `{"consent_type":"analytics","reason":"user request"}`
	req := httptest.NewRequest(http.MethodPost, "/consent/withdraw", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", svc.lastUserID)
	assert.Equal(t, models.TypeAnalytics, svc.lastType)
	assert.Equal(t, "user request", svc.lastReason)
}

func TestHandleWithdrawNotFound(t *testing.T) {
	svc := &stubService{err: dErrors.New(dErrors.CodeNotFound, "no consent record found for user user-1 and type analytics")}
	router := newRouter(svc, audit.NewInMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/consent/withdraw", strings.NewReader(`{"consent_type":"analytics"}`))
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStatusRequiresAuth(t *testing.T) {
	svc := &stubService{}
	router := newRouter(svc, audit.NewInMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/consent/status", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleStatus(t *testing.T) {
	svc := &stubService{report: &models.StatusReport{
		Summary: map[models.ConsentType]models.TypeStatus{
			models.TypeAnalytics: {Given: true},
		},
	}}
	router := newRouter(svc, audit.NewInMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/consent/status", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", svc.lastUserID)
	assert.Contains(t, rec.Body.String(), "analytics")
}

func TestHandleAuditTrailAnonymous(t *testing.T) {
	trail := audit.NewInMemoryStore()
	require.NoError(t, trail.Append(context.Background(), audit.Entry{
		IPAddress: "203.0.113.9",
		Operation: "upload",
		Result:    audit.ResultDenied,
	}))

	svc := &stubService{}
	router := newRouter(svc, trail)

	req := httptest.NewRequest(http.MethodGet, "/consent/audit", nil)
	req.RemoteAddr = "203.0.113.9:4411"
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp auditTrailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "upload", resp.Entries[0].Operation)
}
