// Package engine implements the consent verification engine: it decides
// whether a subject holds the consents an operation requires, accounting
// for expiration, renewal grace periods, and the strict/non-strict
// enforcement posture. Every decision leaves exactly one audit entry.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"platewatch/internal/audit"
	"platewatch/internal/consent/cache"
	"platewatch/internal/consent/metrics"
	"platewatch/internal/consent/models"
	"platewatch/internal/consent/store"
	"platewatch/internal/platform/config"
	"platewatch/internal/platform/privacy"
	dErrors "platewatch/pkg/domain-errors"
)

// Engine orchestrates cache and store lookups and applies the decision
// algorithm. Store failures on the verification path propagate to the
// caller: the engine fails closed, "cannot verify" is never "allowed".
type Engine struct {
	store   store.Store
	cache   cache.Cache
	auditor *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     config.Enforcement
	tracer  trace.Tracer
	group   singleflight.Group
	now     func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithMetrics sets the metrics instance for the engine.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock overrides the engine clock. Test helper.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithTracer injects a pre-configured tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// New validates the enforcement configuration and constructs the engine.
func New(st store.Store, ca cache.Cache, auditor *audit.Publisher, cfg config.Enforcement, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		store:   st,
		cache:   ca,
		auditor: auditor,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("platewatch/consent")
	}
	return e, nil
}

// Verify decides whether the request's subject holds the consents its
// operation requires. A denial is a result with IsValid=false; an error
// means verification could not happen at all.
func (e *Engine) Verify(ctx context.Context, req models.VerificationRequest) (*models.VerificationResult, error) {
	ctx, span := e.tracer.Start(ctx, "consent.verify",
		trace.WithAttributes(attribute.String("consent.operation", req.Operation)))
	defer span.End()

	start := e.now()
	defer func() {
		if e.metrics != nil {
			e.metrics.ObserveVerifyLatency(e.now().Sub(start).Seconds())
		}
	}()

	if err := req.Validate(); err != nil {
		return nil, spanError(span, err)
	}

	required := e.requiredFor(req)
	subject := req.Subject()

	cached, err := e.cache.Get(ctx, subject, required)
	if err != nil {
		// Cache trouble degrades to a miss; it must never change the verdict.
		e.logger.WarnContext(ctx, "consent cache read failed",
			"error", err,
			"subject", privacy.AnonymizeIP(subject.IPAddress),
		)
	}
	if cached != nil {
		if e.bypassCache(cached) {
			if e.metrics != nil {
				e.metrics.IncrementCacheBypass()
			}
			span.AddEvent("cache_bypass")
		} else {
			if e.metrics != nil {
				e.metrics.IncrementCacheHit()
			}
			e.recordVerification(ctx, req, required, cached, audit.SourceCache)
			e.countVerification(req.Operation, cached)
			return cached, nil
		}
	} else if e.metrics != nil {
		e.metrics.IncrementCacheMiss()
	}

	// Concurrent misses for the same subject and requirement collapse into
	// one store read; every caller still emits its own audit entry.
	key := subject.Key() + "|" + req.Operation + "|" + strings.Join(models.TypeNames(required), ",")
	v, err, _ := e.group.Do(key, func() (any, error) {
		records, err := e.store.GetConsentRecords(ctx, subject, required)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "consent verification failed: store unavailable")
		}
		result := analyzeConsentStatus(required, records, req.Operation, e.now(), e.cfg.GracePeriod(), e.cfg.StrictMode)
		if err := e.cache.Set(ctx, subject, required, result, e.cfg.CacheTTL); err != nil {
			e.logger.WarnContext(ctx, "failed to cache verification result",
				"error", err,
				"operation", req.Operation,
			)
		}
		return result, nil
	})
	if err != nil {
		return nil, spanError(span, err)
	}

	result := v.(*models.VerificationResult)
	e.recordVerification(ctx, req, required, result, audit.SourceDatabase)
	e.countVerification(req.Operation, result)
	return result, nil
}

// bypassCache implements the strict-mode bypass rule: never serve a stale
// expired or needs-renewal verdict longer than necessary. In non-strict
// mode the cache is trusted for its full TTL.
func (e *Engine) bypassCache(cached *models.VerificationResult) bool {
	if !e.cfg.StrictMode {
		return false
	}
	return len(cached.ExpiredConsents) > 0 || cached.RequiresRenewal
}

// StoreConsent records a new consent decision as a fresh row, superseding
// any prior state for the (subject, type) pair.
func (e *Engine) StoreConsent(ctx context.Context, req models.StoreRequest) (*models.Record, error) {
	ctx, span := e.tracer.Start(ctx, "consent.store",
		trace.WithAttributes(attribute.String("consent.type", string(req.ConsentType))))
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, spanError(span, err)
	}

	now := e.now()
	days := e.cfg.DefaultExpirationDays
	if req.ExpirationDays != nil {
		days = *req.ExpirationDays
	}
	expiresAt := now.Add(time.Duration(days) * 24 * time.Hour)

	record := &models.Record{
		UserID:    req.UserID,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Type:      req.ConsentType,
		Given:     req.ConsentGiven,
		Version:   req.Version,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  req.Metadata.Clone(),
	}

	if _, err := e.storeTimed(ctx, "store_consent", record); err != nil {
		return nil, spanError(span, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to store consent"))
	}

	subject := req.Subject()
	e.invalidate(ctx, subject)

	decision := audit.ResultDenied
	reason := fmt.Sprintf("consent declined for %s (version %s)", req.ConsentType, req.Version)
	if req.ConsentGiven {
		decision = audit.ResultAllowed
		reason = fmt.Sprintf("consent granted for %s (version %s)", req.ConsentType, req.Version)
	}
	e.emitAudit(ctx, audit.Entry{
		UserID:       req.UserID,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		Operation:    models.OperationConsentUpdate,
		ConsentTypes: []string{string(req.ConsentType)},
		Result:       decision,
		Reason:       reason,
		Metadata:     req.Metadata,
		Timestamp:    now,
	})
	if e.metrics != nil {
		e.metrics.IncrementConsentsStored(string(req.ConsentType), decision)
	}
	return record, nil
}

// Withdraw supersedes the user's current consent for a type with a
// non-given row. Withdrawing consent that was never recorded is an error,
// not a silent no-op.
func (e *Engine) Withdraw(ctx context.Context, userID string, consentType models.ConsentType, reason string) (*models.Record, error) {
	ctx, span := e.tracer.Start(ctx, "consent.withdraw",
		trace.WithAttributes(attribute.String("consent.type", string(consentType))))
	defer span.End()

	if userID == "" {
		return nil, spanError(span, dErrors.New(dErrors.CodeBadRequest, "user id is required for withdrawal"))
	}
	if !consentType.IsValid() {
		return nil, spanError(span, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid consent type: %s", consentType)))
	}

	subject := models.Subject{UserID: userID}
	current, err := e.store.GetConsentRecords(ctx, subject, []models.ConsentType{consentType})
	if err != nil {
		return nil, spanError(span, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to load consent for withdrawal"))
	}
	if len(current) == 0 {
		return nil, spanError(span, dErrors.New(dErrors.CodeNotFound,
			fmt.Sprintf("no consent record found for user %s and type %s", userID, consentType)))
	}
	prior := current[0]

	now := e.now()
	record := &models.Record{
		UserID:    userID,
		IPAddress: prior.IPAddress,
		UserAgent: prior.UserAgent,
		Type:      consentType,
		Given:     false,
		Version:   prior.Version,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  models.Metadata{"withdrawal_reason": reason},
	}
	if _, err := e.storeTimed(ctx, "withdraw_consent", record); err != nil {
		return nil, spanError(span, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to store withdrawal"))
	}

	e.invalidate(ctx, subject)
	e.emitAudit(ctx, audit.Entry{
		UserID:       userID,
		IPAddress:    prior.IPAddress,
		UserAgent:    prior.UserAgent,
		Operation:    models.OperationConsentWithdrawal,
		ConsentTypes: []string{string(consentType)},
		Result:       audit.ResultDenied,
		Reason:       fmt.Sprintf("consent withdrawn for %s: %s", consentType, reason),
		Timestamp:    now,
	})
	if e.metrics != nil {
		e.metrics.IncrementConsentsWithdrawn(string(consentType))
	}
	return record, nil
}

// Status reports every current record for a user plus a per-type summary
// computed with the same grace-period arithmetic as verification.
func (e *Engine) Status(ctx context.Context, userID string) (*models.StatusReport, error) {
	ctx, span := e.tracer.Start(ctx, "consent.status")
	defer span.End()

	if userID == "" {
		return nil, spanError(span, dErrors.New(dErrors.CodeBadRequest, "user id is required"))
	}

	records, err := e.store.ListCurrent(ctx, models.Subject{UserID: userID})
	if err != nil {
		return nil, spanError(span, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to load consent status"))
	}

	now := e.now()
	grace := e.cfg.GracePeriod()
	summary := make(map[models.ConsentType]models.TypeStatus, len(records))
	for _, record := range records {
		summary[record.Type] = models.TypeStatus{
			Given:           record.Given && !record.IsExpired(now),
			ExpiresAt:       record.ExpiresAt,
			RequiresRenewal: record.Given && record.InGraceWindow(now, grace),
		}
	}
	return &models.StatusReport{Records: records, Summary: summary}, nil
}

// recordVerification emits the single audit entry a verification produces.
func (e *Engine) recordVerification(ctx context.Context, req models.VerificationRequest, required []models.ConsentType, result *models.VerificationResult, source string) {
	decision := audit.ResultDenied
	if result.IsValid {
		decision = audit.ResultAllowed
	}
	e.emitAudit(ctx, audit.Entry{
		UserID:       req.UserID,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		Operation:    req.Operation,
		ConsentTypes: models.TypeNames(required),
		Result:       decision,
		Reason:       result.Message,
		Source:       source,
		Metadata:     req.Metadata,
		Timestamp:    e.now(),
	})
}

// emitAudit is the single site where audit-write failures are inspected
// and discarded: compliance logging never blocks or alters the outcome of
// the primary call.
func (e *Engine) emitAudit(ctx context.Context, entry audit.Entry) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.Emit(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "audit write failed, continuing",
			"error", err,
			"operation", entry.Operation,
			"subject", privacy.AnonymizeIP(entry.IPAddress),
		)
	}
}

// invalidate clears the subject's cache entries after a write. On failure
// the stale window is bounded by the cache TTL.
func (e *Engine) invalidate(ctx context.Context, subject models.Subject) {
	if err := e.cache.Invalidate(ctx, subject); err != nil {
		e.logger.WarnContext(ctx, "cache invalidation failed, stale verdicts possible until TTL expiry",
			"error", err,
			"ttl", e.cfg.CacheTTL,
			"subject", privacy.AnonymizeIP(subject.IPAddress),
		)
	}
}

func (e *Engine) storeTimed(ctx context.Context, operation string, record *models.Record) (string, error) {
	start := e.now()
	id, err := e.store.StoreConsent(ctx, record)
	if e.metrics != nil {
		e.metrics.ObserveStoreLatency(operation, e.now().Sub(start).Seconds())
	}
	return id, err
}

func (e *Engine) countVerification(operation string, result *models.VerificationResult) {
	if e.metrics == nil {
		return
	}
	decision := audit.ResultDenied
	if result.IsValid {
		decision = audit.ResultAllowed
	}
	e.metrics.IncrementVerification(operation, decision)
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
