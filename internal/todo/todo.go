// Package todo keeps per-channel to-do lists.
package todo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/seqre/secubot/internal/store"
)

const (
	MaxContentLength = 1024
	PageSize         = 25
)

var (
	ErrNotFound = errors.New("todo not found")
	ErrTooLong  = fmt.Errorf("content can't have more than %d characters", MaxContentLength)
	ErrEmpty    = errors.New("content is empty")
)

type Todo struct {
	ChannelID   int64
	ID          int64
	Text        string
	CreatedAt   string
	CompletedAt string
	// Assignee is a user id, zero when unassigned.
	Assignee int64
	Priority int
}

func (t Todo) Done() bool {
	return t.CompletedAt != ""
}

// Filter narrows List.
type Filter struct {
	IncludeCompleted bool
	Assignee         int64
}

// Service stores to-dos. Ids are allocated per channel from an in-memory
// counter seeded from the database, so ids are not reused after a delete.
type Service struct {
	db  *sql.DB
	now func() time.Time

	mu   sync.Mutex
	next map[int64]int64
}

func NewService(ctx context.Context, db *sql.DB) (*Service, error) {
	s := &Service{
		db:   db,
		now:  time.Now,
		next: make(map[int64]int64),
	}

	rows, err := db.QueryContext(ctx, "SELECT channel_id, MAX(id) FROM todos GROUP BY channel_id")
	if err != nil {
		return nil, fmt.Errorf("load todo counters: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ch, last int64
		if err := rows.Scan(&ch, &last); err != nil {
			return nil, fmt.Errorf("load todo counters: %w", err)
		}
		s.next[ch] = last + 1
	}
	return s, rows.Err()
}

func (s *Service) nextID(ch int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.next[ch]
	if !ok {
		id = 1
	}
	s.next[ch] = id + 1
	return id
}

// Sanitize validates content and neutralises mentions and code spans.
func Sanitize(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmpty
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", ErrTooLong
	}
	content = strings.ReplaceAll(content, "@", "@\u200b")
	return strings.ReplaceAll(content, "`", "'"), nil
}

const columns = "channel_id, id, todo, creation_date, completion_date, assignee, priority"

type scanner interface {
	Scan(dest ...any) error
}

func scanTodo(row scanner) (Todo, error) {
	var (
		t         Todo
		completed sql.NullString
		assignee  sql.NullInt64
	)
	if err := row.Scan(&t.ChannelID, &t.ID, &t.Text, &t.CreatedAt, &completed, &assignee, &t.Priority); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Todo{}, ErrNotFound
		}
		return Todo{}, err
	}
	t.CompletedAt = completed.String
	t.Assignee = assignee.Int64
	return t, nil
}

func nullUser(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func (s *Service) Add(ctx context.Context, ch int64, content string, assignee int64) (Todo, error) {
	text, err := Sanitize(content)
	if err != nil {
		return Todo{}, err
	}
	id := s.nextID(ch)
	row := s.db.QueryRowContext(ctx,
		"INSERT INTO todos (channel_id, id, todo, creation_date, assignee) VALUES (?, ?, ?, ?, ?) RETURNING "+columns,
		ch, id, text, store.FormatTime(s.now()), nullUser(assignee))
	t, err := scanTodo(row)
	if err != nil {
		return Todo{}, fmt.Errorf("add todo: %w", err)
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, ch int64, f Filter) ([]Todo, error) {
	query := "SELECT " + columns + " FROM todos WHERE channel_id = ?"
	args := []any{ch}
	if !f.IncludeCompleted {
		query += " AND completion_date IS NULL"
	}
	if f.Assignee != 0 {
		query += " AND assignee = ?"
		args = append(args, f.Assignee)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	var out []Todo
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("list todos: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Service) update(ctx context.Context, ch, id int64, set string, args ...any) (Todo, error) {
	args = append(args, ch, id)
	row := s.db.QueryRowContext(ctx,
		"UPDATE todos SET "+set+" WHERE channel_id = ? AND id = ? RETURNING "+columns, args...)
	return scanTodo(row)
}

func (s *Service) Complete(ctx context.Context, ch, id int64) (Todo, error) {
	return s.update(ctx, ch, id, "completion_date = ?", store.FormatTime(s.now()))
}

func (s *Service) Uncomplete(ctx context.Context, ch, id int64) (Todo, error) {
	return s.update(ctx, ch, id, "completion_date = NULL")
}

// Assign sets the assignee; zero clears it.
func (s *Service) Assign(ctx context.Context, ch, id, assignee int64) (Todo, error) {
	return s.update(ctx, ch, id, "assignee = ?", nullUser(assignee))
}

func (s *Service) Edit(ctx context.Context, ch, id int64, content string) (Todo, error) {
	text, err := Sanitize(content)
	if err != nil {
		return Todo{}, err
	}
	return s.update(ctx, ch, id, "todo = ?", text)
}

// Move transfers a to-do to another channel under that channel's next id.
func (s *Service) Move(ctx context.Context, ch, id, target int64) (Todo, error) {
	if _, err := s.Get(ctx, ch, id); err != nil {
		return Todo{}, err
	}
	return s.update(ctx, ch, id, "channel_id = ?, id = ?", target, s.nextID(target))
}

func (s *Service) Delete(ctx context.Context, ch, id int64) (Todo, error) {
	row := s.db.QueryRowContext(ctx,
		"DELETE FROM todos WHERE channel_id = ? AND id = ? RETURNING "+columns, ch, id)
	return scanTodo(row)
}

func (s *Service) Get(ctx context.Context, ch, id int64) (Todo, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+columns+" FROM todos WHERE channel_id = ? AND id = ?", ch, id)
	return scanTodo(row)
}

// ChannelCount is the number of open to-dos in a channel.
type ChannelCount struct {
	ChannelID int64
	Open      int
}

// OpenCounts returns channels with at least one open to-do.
func (s *Service) OpenCounts(ctx context.Context) ([]ChannelCount, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT channel_id, COUNT(*) FROM todos WHERE completion_date IS NULL GROUP BY channel_id ORDER BY channel_id")
	if err != nil {
		return nil, fmt.Errorf("count open todos: %w", err)
	}
	defer rows.Close()

	var out []ChannelCount
	for rows.Next() {
		var c ChannelCount
		if err := rows.Scan(&c.ChannelID, &c.Open); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
