package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskboard/pkg/storage"
	"github.com/platinummonkey/taskboard/pkg/storage/sqlitetest"
)

func TestRunMigrations_SQLite(t *testing.T) {
	db := sqlitetest.NewDB(t)
	ctx := context.Background()

	version, err := storage.SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, len(storage.Migrations()), version)

	t.Run("re-running is a no-op", func(t *testing.T) {
		require.NoError(t, storage.RunMigrations(ctx, db, storage.DialectSQLite))

		again, err := storage.SchemaVersion(ctx, db)
		require.NoError(t, err)
		assert.Equal(t, version, again)
	})

	t.Run("versions are strictly increasing", func(t *testing.T) {
		prev := 0
		for _, m := range storage.Migrations() {
			assert.Greater(t, m.Version, prev)
			assert.NotEmpty(t, m.Postgres)
			assert.NotEmpty(t, m.SQLite)
			prev = m.Version
		}
	})

	t.Run("unknown dialect is rejected", func(t *testing.T) {
		_, err := storage.Migrations()[0].SQL("oracle")
		assert.Error(t, err)
	})
}

func TestMembershipConstraints_SQLite(t *testing.T) {
	db := sqlitetest.NewDB(t)

	owner := sqlitetest.InsertUser(t, db, "owner", "manager")
	other := sqlitetest.InsertUser(t, db, "other", "user")
	project := sqlitetest.InsertProject(t, db, "alpha", owner, owner)
	sqlitetest.InsertMembership(t, db, project, owner, "owner")

	t.Run("second active row for the same user is rejected", func(t *testing.T) {
		sqlitetest.InsertMembership(t, db, project, other, "viewer")
		_, err := db.Exec(`
			INSERT INTO project_members (project_id, user_id, role, active, joined_at)
			VALUES ($1, $2, 'member', TRUE, CURRENT_TIMESTAMP)
		`, project, other)
		require.Error(t, err)
		assert.True(t, storage.IsUniqueViolation(err))
	})

	t.Run("inactive rows do not block a new active row", func(t *testing.T) {
		_, err := db.Exec(`UPDATE project_members SET active = FALSE WHERE project_id = $1 AND user_id = $2`, project, other)
		require.NoError(t, err)

		sqlitetest.InsertMembership(t, db, project, other, "member")
		assert.Equal(t, 2, sqlitetest.CountActiveMemberships(t, db, project, ""))
	})

	t.Run("second active owner is rejected", func(t *testing.T) {
		_, err := db.Exec(`UPDATE project_members SET role = 'owner' WHERE project_id = $1 AND user_id = $2 AND active = TRUE`, project, other)
		require.Error(t, err)
		assert.True(t, storage.IsUniqueViolation(err))
		assert.Equal(t, 1, sqlitetest.CountActiveMemberships(t, db, project, "owner"))
	})
}
