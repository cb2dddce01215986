package hof

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seqre/secubot/internal/store"
)

func newService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = store.Migrate(context.Background(), db)
	require.NoError(t, err)

	s, err := NewService(context.Background(), db)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	return s, db
}

func Test_CreateTable(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	s, _ := newService(t)

	tbl, err := s.CreateTable(ctx, 1, "  Bug Hunters ", " found bugs ")
	r.NoError(err)
	r.Equal("Bug Hunters", tbl.Title)
	r.Equal("found bugs", tbl.Description)
	r.NotZero(tbl.ID)

	_, err = s.CreateTable(ctx, 1, "Bug Hunters", "")
	r.ErrorIs(err, ErrTableExists)

	// same title in another chat is fine
	_, err = s.CreateTable(ctx, 2, "Bug Hunters", "")
	r.NoError(err)

	_, err = s.CreateTable(ctx, 1, "abc", "")
	r.ErrorIs(err, ErrTitleLength)
	_, err = s.CreateTable(ctx, 1, strings.Repeat("x", MaxTitleLength+1), "")
	r.ErrorIs(err, ErrTitleLength)
	_, err = s.CreateTable(ctx, 1, "Long one", strings.Repeat("x", MaxDescriptionLength+1))
	r.ErrorIs(err, ErrTooLong)

	got, err := s.Table(ctx, 1, "Bug Hunters")
	r.NoError(err)
	r.Equal(tbl, got)

	_, err = s.Table(ctx, 3, "Bug Hunters")
	r.ErrorIs(err, ErrNoSuchTable)
}

func Test_CreateTableStaleIndex(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	first, db := newService(t)

	// loaded before first creates the table, so its index misses the title
	second, err := NewService(ctx, db)
	r.NoError(err)

	_, err = first.CreateTable(ctx, 1, "Bug Hunters", "")
	r.NoError(err)
	_, err = second.CreateTable(ctx, 1, "Bug Hunters", "")
	r.ErrorIs(err, ErrTableExists)
	r.Equal([]string{"Bug Hunters"}, second.Titles(1, ""))
}

func Test_CreateTableConcurrent(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CreateTable(ctx, 1, "Race Winners", "")
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		require.ErrorIs(t, err, ErrTableExists)
	}
	require.Equal(t, 1, created)
}

func Test_Leaderboard(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	s, _ := newService(t)

	_, err := s.CreateTable(ctx, 1, "Heroes", "")
	r.NoError(err)

	for _, user := range []int64{30, 10, 30, 20, 30, 20} {
		_, _, err := s.AddEntry(ctx, 1, "Heroes", user, "did a thing")
		r.NoError(err)
	}

	_, board, err := s.Leaderboard(ctx, 1, "Heroes")
	r.NoError(err)
	r.Equal([]Standing{{UserID: 30, Count: 3}, {UserID: 20, Count: 2}, {UserID: 10, Count: 1}}, board)

	_, _, err = s.Leaderboard(ctx, 1, "Villains")
	r.ErrorIs(err, ErrNoSuchTable)
}

func Test_UserEntries(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	s, _ := newService(t)

	_, err := s.CreateTable(ctx, 1, "Heroes", "")
	r.NoError(err)

	_, _, err = s.AddEntry(ctx, 1, "Heroes", 5, "first")
	r.NoError(err)
	_, _, err = s.AddEntry(ctx, 1, "Heroes", 6, "other")
	r.NoError(err)
	_, _, err = s.AddEntry(ctx, 1, "Heroes", 5, "second")
	r.NoError(err)

	_, entries, err := s.UserEntries(ctx, 1, "Heroes", 5)
	r.NoError(err)
	r.Len(entries, 2)
	r.Equal("second", entries[0].Description)
	r.Equal("first", entries[1].Description)
	r.Equal("2024-05-06 07:08:09", entries[0].CreatedAt)

	_, _, err = s.AddEntry(ctx, 1, "Heroes", 5, " ")
	r.ErrorIs(err, ErrNoReason)
	_, _, err = s.AddEntry(ctx, 1, "Nobody", 5, "why")
	r.ErrorIs(err, ErrNoSuchTable)
}

func Test_Titles(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	s, db := newService(t)

	for _, title := range []string{"Snacks", "Bugs found", "Bug bounty"} {
		_, err := s.CreateTable(ctx, 1, title, "")
		r.NoError(err)
	}
	_, err := s.CreateTable(ctx, 2, "Bugs elsewhere", "")
	r.NoError(err)

	r.Equal([]string{"Bug bounty", "Bugs found", "Snacks"}, s.Titles(1, ""))
	r.Equal([]string{"Bug bounty", "Bugs found"}, s.Titles(1, "Bug"))
	r.Empty(s.Titles(3, ""))

	// the index is rebuilt from the database
	reloaded, err := NewService(ctx, db)
	r.NoError(err)
	r.Equal(s.Titles(1, ""), reloaded.Titles(1, ""))
}
