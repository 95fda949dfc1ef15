package inbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRecordsOnce(t *testing.T) {
	in := NewMemory()
	ctx := context.Background()

	fresh, err := in.Record(ctx, "e1", "booking.created.v1")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = in.Record(ctx, "e1", "booking.created.v1")
	require.NoError(t, err)
	assert.False(t, fresh)

	fresh, err = in.Record(ctx, "e2", "booking.created.v1")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestMemoryRejectsMissingID(t *testing.T) {
	_, err := NewMemory().Record(context.Background(), "", "x")
	assert.ErrorIs(t, err, ErrMissingEventID)
}

func TestMemoryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemory().Record(ctx, "e1", "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryForgetAllowsRedelivery(t *testing.T) {
	in := NewMemory()
	ctx := context.Background()

	_, err := in.Record(ctx, "e1", "x")
	require.NoError(t, err)
	require.NoError(t, in.Forget(ctx, "e1"))

	fresh, err := in.Record(ctx, "e1", "x")
	require.NoError(t, err)
	assert.True(t, fresh)
}
