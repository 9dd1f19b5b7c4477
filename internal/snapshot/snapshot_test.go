package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySourceNumbersSnapshots(t *testing.T) {
	src := NewMemorySource()
	now := time.Now()
	src.Add("raw.raw_push_stats",
		Raw{Endpoint: "/v1/application/1/dateStats", Payload: []byte(`{}`), LoadedAt: now},
		Raw{Endpoint: "/v1/application/1/pushHeatmap", Payload: []byte(`{}`), LoadedAt: now},
	)
	src.Add("raw.raw_contacts_api", Raw{Endpoint: "/v1/chat/contacts", Payload: []byte(`{}`), LoadedAt: now})

	push, err := src.Load(context.Background(), "raw.raw_push_stats")
	require.NoError(t, err)
	require.Len(t, push, 2)
	assert.Equal(t, int64(1), push[0].ID)
	assert.Equal(t, int64(2), push[1].ID)

	contacts, err := src.Load(context.Background(), "raw.raw_contacts_api")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, int64(3), contacts[0].ID)

	missing, err := src.Load(context.Background(), "raw.unknown")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestMemorySourceHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemorySource().Load(ctx, "raw.raw_push_stats")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuoteTable(t *testing.T) {
	assert.Equal(t, `"raw"."raw_push_stats"`, quoteTable("raw.raw_push_stats"))
	assert.Equal(t, `"snapshots"`, quoteTable("snapshots"))
}
