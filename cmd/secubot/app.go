package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seqre/secubot/internal/cleanurls"
	"github.com/seqre/secubot/internal/github"
	"github.com/seqre/secubot/internal/hof"
	"github.com/seqre/secubot/internal/metrics"
	"github.com/seqre/secubot/internal/ping"
	"github.com/seqre/secubot/internal/todo"
)

const (
	producerTimeout = 10 * time.Second
	genericFailure  = "Something went wrong, try again later."
)

// messenger is the outbound side of the chat transport.
type messenger interface {
	send(chatID int64, r reply) error
	displayName(chatID, userID int64) string
}

type commandKind int

const (
	cmdHelp commandKind = iota
	cmdPing
	cmdTodo
	cmdHof
	cmdGitHub
	cmdChangelog
	cmdVersion
)

func (k commandKind) String() string {
	switch k {
	case cmdPing:
		return "ping"
	case cmdTodo:
		return "todo"
	case cmdHof:
		return "hof"
	case cmdGitHub:
		return "gh"
	case cmdChangelog:
		return "changelog"
	case cmdVersion:
		return "version"
	default:
		return "help"
	}
}

// parseCommandKind maps a command name to its kind. Unknown names map to help.
func parseCommandKind(name string) commandKind {
	switch strings.ToLower(name) {
	case "ping":
		return cmdPing
	case "todo":
		return cmdTodo
	case "hof":
		return cmdHof
	case "gh":
		return cmdGitHub
	case "changelog":
		return cmdChangelog
	case "version":
		return cmdVersion
	default:
		return cmdHelp
	}
}

const helpText = `Commands:
/ping commence <users> - ping users every second until stopped
/ping remove <users> - stop pinging some users
/ping stop - stop the Ping Cannon
/ping status - show the current targets
/todo list [all] [<user>] - list TODOs
/todo add <text> [<user>] - add a TODO
/todo complete|uncomplete|delete <id>
/todo assign <id> [<user>]
/todo move <id> <chat id>
/todo edit <id> <text>
/hof create <title> [| description]
/hof add <title> <user> <reason>
/hof show <title> [<user>]
/hof list [prefix]
/gh issue <title> [| details]
/gh where
/changelog
/version`

type app struct {
	out     messenger
	pings   *ping.Worker
	todos   *todo.Service
	hofs    *hof.Service
	gh      *github.Client
	version string
	now     func() time.Time
}

func newApp(out messenger, pings *ping.Worker, todos *todo.Service, hofs *hof.Service, gh *github.Client, version string) *app {
	return &app{
		out:     out,
		pings:   pings,
		todos:   todos,
		hofs:    hofs,
		gh:      gh,
		version: version,
		now:     time.Now,
	}
}

func (a *app) handleCommand(ctx context.Context, req commandRequest) reply {
	kind := parseCommandKind(req.command)

	var r reply
	switch kind {
	case cmdPing:
		r = a.handlePing(ctx, req)
	case cmdTodo:
		r = a.handleTodo(ctx, req)
	case cmdHof:
		r = a.handleHof(ctx, req)
	case cmdGitHub:
		r = a.handleGitHub(ctx, req)
	case cmdChangelog:
		r = a.handleChangelog(ctx)
	case cmdVersion:
		r = reply{text: "secubot " + a.version}
	default:
		r = reply{text: helpText}
	}

	result := "ok"
	if r.failed {
		result = "error"
	}
	metrics.Commands.WithLabelValues(kind.String(), result).Inc()
	log.Debug().
		Str("command", kind.String()).
		Int64("chat", req.chatID).
		Int64("user", req.userID).
		Str("result", result).
		Msg("command handled")
	return r
}

// handleText answers plain messages that contain tracking URLs.
func (a *app) handleText(_ context.Context, _ int64, text string) string {
	return cleanurls.Reply(text)
}

func (a *app) handleCallback(ctx context.Context, req callbackRequest) (reply, bool) {
	if q, ok := parseTodoPageData(req.data); ok {
		return a.todoListReply(ctx, req.chatID, q.filter, q.page), true
	}
	return reply{}, false
}

func (a *app) handleChangelog(ctx context.Context) reply {
	text, err := a.gh.Changelog(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("changelog fetch failed")
		return reply{text: "Fetching the changelog failed.", failed: true}
	}
	return reply{text: text, html: true}
}

func (a *app) notify(chatID int64, msg string) {
	log.Info().Int64("chat", chatID).Msg(msg)
	if a.out == nil {
		return
	}
	if err := a.out.send(chatID, reply{text: msg}); err != nil {
		log.Warn().Err(err).Int64("chat", chatID).Msg("notify failed")
	}
}

func (a *app) runTodoReminders(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		log.Info().Msg("todo reminders disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.remindTodos(ctx)
		}
	}
}

func (a *app) remindTodos(ctx context.Context) {
	counts, err := a.todos.OpenCounts(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("todo reminder query failed")
		return
	}
	for _, c := range counts {
		a.notify(c.ChannelID, fmt.Sprintf("There are %d uncompleted TODOs here!", c.Open))
	}
}
