package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitSyncAppendsToStore(t *testing.T) {
	store := NewInMemoryStore()
	p := NewPublisher(store)

	err := p.Emit(context.Background(), Entry{
		UserID:       "user-1",
		IPAddress:    "203.0.113.9",
		Operation:    "upload",
		ConsentTypes: []string{"upload", "data_storage"},
		Result:       ResultAllowed,
		Reason:       "all consents present",
		Source:       SourceDatabase,
	})
	require.NoError(t, err)

	entries, err := p.ListBySubject(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ResultAllowed, entries[0].Result)
	assert.False(t, entries[0].Timestamp.IsZero(), "Emit must stamp entries")
}

func TestEmitKeysAnonymousEntriesByIP(t *testing.T) {
	store := NewInMemoryStore()
	p := NewPublisher(store)

	require.NoError(t, p.Emit(context.Background(), Entry{
		IPAddress: "198.51.100.7",
		Operation: "analytics",
		Result:    ResultDenied,
		Reason:    "Missing consents: analytics",
	}))

	entries, err := p.ListBySubject(context.Background(), "198.51.100.7")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEmitAsyncDrainsOnClose(t *testing.T) {
	store := NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewPublisher(store, WithAsyncBuffer(16), WithPublisherLogger(logger))

	for i := 0; i < 10; i++ {
		require.NoError(t, p.Emit(context.Background(), Entry{
			IPAddress: "198.51.100.7",
			Operation: "storage",
			Result:    ResultAllowed,
			Reason:    "ok",
		}))
	}
	p.Close()

	assert.Len(t, store.All(), 10)
}

func TestEmitPreservesExplicitTimestamp(t *testing.T) {
	store := NewInMemoryStore()
	p := NewPublisher(store)

	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, p.Emit(context.Background(), Entry{
		IPAddress: "198.51.100.7",
		Operation: "sharing",
		Result:    ResultDenied,
		Reason:    "Missing consents: third_party_sharing",
		Timestamp: stamp,
	}))

	assert.Equal(t, stamp, store.All()[0].Timestamp)
}
