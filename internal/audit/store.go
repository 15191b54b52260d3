package audit

import (
	"context"
)

// Store persists audit entries. Append-only: implementations must never
// expose update or delete operations.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListBySubject(ctx context.Context, subjectKey string) ([]Entry, error)
}
