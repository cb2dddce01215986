package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Migrate(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	db, err := Open(":memory:")
	r.NoError(err)
	defer db.Close()

	n, err := Migrate(ctx, db)
	r.NoError(err)
	r.Equal(1, n)

	n, err = Migrate(ctx, db)
	r.NoError(err)
	r.Zero(n)

	version, err := Version(ctx, db)
	r.NoError(err)
	r.EqualValues(1, version)

	for _, table := range []string{"todos", "hall_of_fame_tables", "hall_of_fame_entries"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		r.NoError(err, table)
	}
}

func Test_IsUniqueViolation(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	db, err := Open(":memory:")
	r.NoError(err)
	defer db.Close()
	_, err = Migrate(ctx, db)
	r.NoError(err)

	insert := "INSERT INTO hall_of_fame_tables (guild_id, title, creation_date) VALUES (1, 'Title', '2024-01-01 00:00:00')"
	_, err = db.ExecContext(ctx, insert)
	r.NoError(err)
	_, err = db.ExecContext(ctx, insert)
	r.Error(err)
	r.True(IsUniqueViolation(err))

	r.False(IsUniqueViolation(errors.New("boom")))
	r.False(IsUniqueViolation(nil))
}

func Test_FormatTime(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	ts := time.Date(2023, 7, 4, 9, 5, 6, 999, loc)
	require.Equal(t, "2023-07-04 08:05:06", FormatTime(ts))
}
