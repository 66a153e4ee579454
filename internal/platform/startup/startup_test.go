package startup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SlpAus/pollsafe-backend/internal/platform/database/dbtest"
)

func TestInitializeApplicationCreatesAllTables(t *testing.T) {
	db := dbtest.Open(t)
	require.NoError(t, InitializeApplication(db, zap.NewNop()))
	require.NoError(t, InitializeApplication(db, zap.NewNop()), "migrations are repeatable")

	for _, table := range []string{"users", "polls", "options", "votes"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex("votes", "idx_votes_poll_user"))
	assert.True(t, db.Migrator().HasIndex("votes", "idx_votes_poll_anon"))
	assert.True(t, db.Migrator().HasIndex("votes", "idx_votes_poll_device"))
}
