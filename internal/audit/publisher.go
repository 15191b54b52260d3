package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Publisher captures structured audit entries. It is append-only and uses
// the storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store   Store
	entries chan Entry
	wg      sync.WaitGroup
	logger  *slog.Logger
	async   bool
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Entries are queued and persisted in a background goroutine.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.entries = make(chan Entry, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEntries()
	}
	return p
}

// processEntries runs in a goroutine and persists entries from the channel.
func (p *Publisher) processEntries() {
	defer p.wg.Done()
	for entry := range p.entries {
		if err := p.store.Append(context.Background(), entry); err != nil {
			if p.logger != nil {
				p.logger.Error("failed to persist audit entry",
					"error", err,
					"operation", entry.Operation,
					"user_id", entry.UserID,
				)
			}
		}
	}
}

// Close shuts down the async publisher and waits for pending entries to drain.
func (p *Publisher) Close() {
	if p.async && p.entries != nil {
		close(p.entries)
		p.wg.Wait()
	}
}

// Emit persists one entry. In async mode the send is non-blocking; a full
// buffer drops the entry rather than stalling the enforcement hot path.
func (p *Publisher) Emit(ctx context.Context, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if p.async {
		select {
		case p.entries <- entry:
			return nil
		default:
			if p.logger != nil {
				p.logger.Warn("audit buffer full, entry dropped",
					"operation", entry.Operation,
					"user_id", entry.UserID,
				)
			}
			return nil
		}
	}
	return p.store.Append(ctx, entry)
}

// ListBySubject returns the audit trail for one subject key.
func (p *Publisher) ListBySubject(ctx context.Context, subjectKey string) ([]Entry, error) {
	return p.store.ListBySubject(ctx, subjectKey)
}
