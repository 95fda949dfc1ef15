package sqlite

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/booking"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/storage/storetest"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	require.NoError(t, Migrate(db))
	return db
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) booking.Store { return New(openTestDB(t)) })
}

func TestReadyCheck(t *testing.T) {
	require.NoError(t, ReadyCheck(openTestDB(t))(context.Background()))
}

func TestMigrateIsIdempotent(t *testing.T) {
	require.NoError(t, Migrate(openTestDB(t)))
}
