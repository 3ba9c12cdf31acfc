package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeliveryDeduplicator(t *testing.T) {
	ctx := context.Background()
	s, client := newTestClient(t)
	dedup := NewDeliveryDeduplicator(client, time.Minute, "seen-")

	first, err := dedup.FirstSeen(ctx, "cancel:0xabc")
	require.NoError(t, err)
	require.True(t, first)
	require.Equal(t, time.Minute, s.TTL("seen-cancel:0xabc"))

	first, err = dedup.FirstSeen(ctx, "cancel:0xabc")
	require.NoError(t, err)
	require.False(t, first)

	first, err = dedup.FirstSeen(ctx, "cancel:0xdef")
	require.NoError(t, err)
	require.True(t, first)

	// the key is forgotten after the window
	s.FastForward(2 * time.Minute)
	first, err = dedup.FirstSeen(ctx, "cancel:0xabc")
	require.NoError(t, err)
	require.True(t, first)
}
