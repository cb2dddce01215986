// Package hof implements "hall of fame" tables: named per-chat leaderboards
// that users are added to with a reason.
package hof

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/seqre/secubot/internal/store"
)

const (
	MinTitleLength       = 4
	MaxTitleLength       = 64
	MaxDescriptionLength = 128
	LeaderboardSize      = 25
)

var (
	ErrNoSuchTable = errors.New("no such hall of fame table")
	ErrTableExists = errors.New("hall of fame table already exists")
	ErrTitleLength = fmt.Errorf("title must have between %d and %d characters", MinTitleLength, MaxTitleLength)
	ErrTooLong     = fmt.Errorf("text can't have more than %d characters", MaxDescriptionLength)
	ErrNoReason    = errors.New("reason is empty")
)

type Table struct {
	ID          int64
	GuildID     int64
	Title       string
	Description string
	CreatedAt   string
}

type Entry struct {
	ID          int64
	HofID       int64
	UserID      int64
	Description string
	CreatedAt   string
}

// Standing is one leaderboard row.
type Standing struct {
	UserID int64
	Count  int
}

type Service struct {
	db     *sql.DB
	now    func() time.Time
	titles *titleIndex
}

func NewService(ctx context.Context, db *sql.DB) (*Service, error) {
	s := &Service{
		db:     db,
		now:    time.Now,
		titles: newTitleIndex(),
	}

	rows, err := db.QueryContext(ctx, "SELECT guild_id, title FROM hall_of_fame_tables")
	if err != nil {
		return nil, fmt.Errorf("load hall of fame titles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			guild int64
			title string
		)
		if err := rows.Scan(&guild, &title); err != nil {
			return nil, fmt.Errorf("load hall of fame titles: %w", err)
		}
		s.titles.add(guild, title)
	}
	return s, rows.Err()
}

func (s *Service) CreateTable(ctx context.Context, guild int64, title, description string) (Table, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if n := utf8.RuneCountInString(title); n < MinTitleLength || n > MaxTitleLength {
		return Table{}, ErrTitleLength
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return Table{}, ErrTooLong
	}
	if s.titles.has(guild, title) {
		return Table{}, ErrTableExists
	}

	desc := sql.NullString{String: description, Valid: description != ""}
	t := Table{GuildID: guild, Title: title, Description: description, CreatedAt: store.FormatTime(s.now())}
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO hall_of_fame_tables (guild_id, title, description, creation_date) VALUES (?, ?, ?, ?) RETURNING id",
		guild, title, desc, t.CreatedAt).Scan(&t.ID)
	if store.IsUniqueViolation(err) {
		// created concurrently, or by another process since the index loaded
		s.titles.add(guild, title)
		return Table{}, ErrTableExists
	}
	if err != nil {
		return Table{}, fmt.Errorf("create hall of fame table: %w", err)
	}
	s.titles.add(guild, title)
	return t, nil
}

func (s *Service) Table(ctx context.Context, guild int64, title string) (Table, error) {
	var (
		t    Table
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, guild_id, title, description, creation_date FROM hall_of_fame_tables WHERE guild_id = ? AND title = ?",
		guild, strings.TrimSpace(title)).Scan(&t.ID, &t.GuildID, &t.Title, &desc, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Table{}, ErrNoSuchTable
	}
	if err != nil {
		return Table{}, fmt.Errorf("get hall of fame table: %w", err)
	}
	t.Description = desc.String
	return t, nil
}

func (s *Service) AddEntry(ctx context.Context, guild int64, title string, user int64, reason string) (Table, Entry, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Table{}, Entry{}, ErrNoReason
	}
	if utf8.RuneCountInString(reason) > MaxDescriptionLength {
		return Table{}, Entry{}, ErrTooLong
	}
	t, err := s.Table(ctx, guild, title)
	if err != nil {
		return Table{}, Entry{}, err
	}

	e := Entry{HofID: t.ID, UserID: user, Description: reason, CreatedAt: store.FormatTime(s.now())}
	err = s.db.QueryRowContext(ctx,
		"INSERT INTO hall_of_fame_entries (hof_id, user_id, description, creation_date) VALUES (?, ?, ?, ?) RETURNING id",
		e.HofID, e.UserID, e.Description, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return Table{}, Entry{}, fmt.Errorf("add hall of fame entry: %w", err)
	}
	return t, e, nil
}

// Leaderboard returns the users with most entries, at most LeaderboardSize.
// Ties are ordered by user id.
func (s *Service) Leaderboard(ctx context.Context, guild int64, title string) (Table, []Standing, error) {
	t, err := s.Table(ctx, guild, title)
	if err != nil {
		return Table{}, nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, COUNT(*) AS n FROM hall_of_fame_entries WHERE hof_id = ?
		GROUP BY user_id ORDER BY n DESC, user_id LIMIT ?`, t.ID, LeaderboardSize)
	if err != nil {
		return Table{}, nil, fmt.Errorf("hall of fame leaderboard: %w", err)
	}
	defer rows.Close()

	var out []Standing
	for rows.Next() {
		var st Standing
		if err := rows.Scan(&st.UserID, &st.Count); err != nil {
			return Table{}, nil, err
		}
		out = append(out, st)
	}
	return t, out, rows.Err()
}

// UserEntries returns a user's entries, newest first.
func (s *Service) UserEntries(ctx context.Context, guild int64, title string, user int64) (Table, []Entry, error) {
	t, err := s.Table(ctx, guild, title)
	if err != nil {
		return Table{}, nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, hof_id, user_id, description, creation_date FROM hall_of_fame_entries
		WHERE hof_id = ? AND user_id = ? ORDER BY id DESC`, t.ID, user)
	if err != nil {
		return Table{}, nil, fmt.Errorf("hall of fame entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			desc sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.HofID, &e.UserID, &desc, &e.CreatedAt); err != nil {
			return Table{}, nil, err
		}
		e.Description = desc.String
		out = append(out, e)
	}
	return t, out, rows.Err()
}

// Titles lists the guild's table titles starting with prefix, sorted.
func (s *Service) Titles(guild int64, prefix string) []string {
	return s.titles.list(guild, prefix)
}

type titleIndex struct {
	mu      sync.RWMutex
	byGuild map[int64]map[string]struct{}
}

func newTitleIndex() *titleIndex {
	return &titleIndex{byGuild: make(map[int64]map[string]struct{})}
}

func (ti *titleIndex) add(guild int64, title string) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	set, ok := ti.byGuild[guild]
	if !ok {
		set = make(map[string]struct{})
		ti.byGuild[guild] = set
	}
	set[title] = struct{}{}
}

func (ti *titleIndex) has(guild int64, title string) bool {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	_, ok := ti.byGuild[guild][title]
	return ok
}

func (ti *titleIndex) list(guild int64, prefix string) []string {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	var out []string
	for title := range ti.byGuild[guild] {
		if strings.HasPrefix(title, prefix) {
			out = append(out, title)
		}
	}
	sort.Strings(out)
	return out
}
