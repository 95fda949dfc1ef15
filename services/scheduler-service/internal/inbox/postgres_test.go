package inbox

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/bookslot/libs/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against TEST_DATABASE_URL when set.
func TestPostgresRecordsOnce(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url, db.Options{MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	in := NewPostgres(pool)
	require.NoError(t, in.Migrate(ctx))

	id := uuid.NewString()
	fresh, err := in.Record(ctx, id, "booking.created.v1")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = in.Record(ctx, id, "booking.created.v1")
	require.NoError(t, err, "a duplicate id is not an error")
	assert.False(t, fresh)

	require.NoError(t, in.Forget(ctx, id))
	fresh, err = in.Record(ctx, id, "booking.created.v1")
	require.NoError(t, err)
	assert.True(t, fresh)

	_, err = in.Record(ctx, "", "booking.created.v1")
	assert.ErrorIs(t, err, ErrMissingEventID)
}
