package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/seqre/secubot/internal/github"
	"github.com/seqre/secubot/internal/hof"
	"github.com/seqre/secubot/internal/ping"
	"github.com/seqre/secubot/internal/todo"
)

// splitArg returns the lower-cased first word of s and the trimmed rest.
func splitArg(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return strings.ToLower(s), ""
	}
	return strings.ToLower(s[:i]), strings.TrimSpace(s[i:])
}

func parseID(s string) (int64, string, bool) {
	head, rest := splitArg(s)
	id, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return 0, rest, false
	}
	return id, rest, true
}

func failure(text string) reply {
	return reply{text: text, failed: true}
}

func (a *app) producerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, producerTimeout)
}

func (a *app) handlePing(ctx context.Context, req commandRequest) reply {
	sub, rest := splitArg(req.args)
	ch := ping.ChannelID(req.chatID)

	ctx, cancel := a.producerContext(ctx)
	defer cancel()

	switch sub {
	case "commence", "remove":
		users := ping.ParseMentions(rest)
		var err error
		if sub == "commence" {
			err = a.pings.Commence(ctx, ch, users)
		} else {
			err = a.pings.Remove(ctx, ch, users)
		}
		if errors.Is(err, ping.ErrNoTargets) {
			return failure("No users mentioned.")
		}
		if err != nil {
			log.Error().Err(err).Int64("chat", req.chatID).Str("sub", sub).Msg("ping enqueue failed")
			return failure(genericFailure)
		}
		if sub == "commence" {
			return reply{text: "LOADING PING CANNON...."}
		}
		return reply{text: "Targets removed from the Ping Cannon."}
	case "stop":
		if err := a.pings.Stop(ctx, ch); err != nil {
			log.Error().Err(err).Int64("chat", req.chatID).Msg("ping stop failed")
			return failure(genericFailure)
		}
		return reply{text: "Stopping the Ping Cannon."}
	case "status":
		return a.pingStatus(ch)
	default:
		return reply{text: "Usage: /ping commence <users> | remove <users> | stop | status"}
	}
}

func (a *app) pingStatus(ch ping.ChannelID) reply {
	task, ok := a.pings.Task(ch)
	if !ok {
		return reply{text: "The Ping Cannon is idle."}
	}
	left := formatRemaining(a.now(), task.ExpiresAt)
	if len(task.Users) == 0 {
		return reply{text: fmt.Sprintf("The Ping Cannon has no targets. Exhausted in %s.", left)}
	}
	mentions := make([]string, 0, len(task.Users))
	for _, u := range task.Users.Sorted() {
		mentions = append(mentions, ping.Mention(u))
	}
	return reply{
		text: fmt.Sprintf("Targets: %s\nExhausted in %s.", strings.Join(mentions, " "), left),
		html: true,
	}
}

func (a *app) handleTodo(ctx context.Context, req commandRequest) reply {
	sub, rest := splitArg(req.args)
	ch := req.chatID

	switch sub {
	case "list", "":
		return a.todoListReply(ctx, ch, parseTodoFilter(rest), 0)
	case "add":
		content, assignee, _ := ping.TrailingMention(rest)
		t, err := a.todos.Add(ctx, ch, content, int64(assignee))
		if err != nil {
			return todoFailure("Adding", err)
		}
		return reply{
			text: fmt.Sprintf("TODO [%d] (<code>%s</code>) added and assigned to %s.",
				t.ID, html.EscapeString(t.Text), a.assigneeName(ch, t.Assignee)),
			html: true,
		}
	case "complete", "uncomplete", "delete":
		id, _, ok := parseID(rest)
		if !ok {
			return failure("Invalid TODO id.")
		}
		var (
			t   todo.Todo
			err error
		)
		switch sub {
		case "complete":
			t, err = a.todos.Complete(ctx, ch, id)
		case "uncomplete":
			t, err = a.todos.Uncomplete(ctx, ch, id)
		default:
			t, err = a.todos.Delete(ctx, ch, id)
		}
		if err != nil {
			return todoFailure(verbFor(sub), err)
		}
		return reply{
			text: fmt.Sprintf("TODO [%d] (<code>%s</code>) %sd.", t.ID, html.EscapeString(t.Text), sub),
			html: true,
		}
	case "assign":
		id, tail, ok := parseID(rest)
		if !ok {
			return failure("Invalid TODO id.")
		}
		_, assignee, _ := ping.TrailingMention(tail)
		t, err := a.todos.Assign(ctx, ch, id, int64(assignee))
		if err != nil {
			return todoFailure("Assigning", err)
		}
		return reply{
			text: fmt.Sprintf("TODO [%d] (<code>%s</code>) assigned to %s.",
				t.ID, html.EscapeString(t.Text), a.assigneeName(ch, t.Assignee)),
			html: true,
		}
	case "move":
		id, tail, ok := parseID(rest)
		if !ok {
			return failure("Invalid TODO id.")
		}
		target, _, ok := parseID(tail)
		if !ok {
			return failure("Invalid target chat id.")
		}
		t, err := a.todos.Move(ctx, ch, id, target)
		if err != nil {
			return todoFailure("Moving", err)
		}
		return reply{text: fmt.Sprintf("TODO [%d] moved to chat %d as [%d].", id, target, t.ID)}
	case "edit":
		id, tail, ok := parseID(rest)
		if !ok {
			return failure("Invalid TODO id.")
		}
		t, err := a.todos.Edit(ctx, ch, id, tail)
		if err != nil {
			return todoFailure("Editing", err)
		}
		return reply{
			text: fmt.Sprintf("TODO [%d] changed to (<code>%s</code>).", t.ID, html.EscapeString(t.Text)),
			html: true,
		}
	default:
		return reply{text: "Usage: /todo list|add|complete|uncomplete|delete|assign|move|edit"}
	}
}

func verbFor(sub string) string {
	switch sub {
	case "complete":
		return "Completing"
	case "uncomplete":
		return "Uncompleting"
	default:
		return "Deleting"
	}
}

func todoFailure(verb string, err error) reply {
	switch {
	case errors.Is(err, todo.ErrNotFound):
		return failure("Not found.")
	case errors.Is(err, todo.ErrTooLong):
		return failure(fmt.Sprintf("Content can't have more than %d characters.", todo.MaxContentLength))
	case errors.Is(err, todo.ErrEmpty):
		return failure("Content can't be empty.")
	default:
		log.Error().Err(err).Str("op", verb).Msg("todo operation failed")
		return failure(verb + " TODO failed.")
	}
}

func (a *app) assigneeName(chatID, userID int64) string {
	if userID == 0 {
		return "no one"
	}
	return html.EscapeString(a.out.displayName(chatID, userID))
}

func parseTodoFilter(args string) todo.Filter {
	var f todo.Filter
	for _, field := range strings.Fields(args) {
		if strings.EqualFold(field, "all") {
			f.IncludeCompleted = true
		}
	}
	if _, user, _, ok := ping.FirstMention(args); ok {
		f.Assignee = int64(user)
	}
	return f
}

type todoPageQuery struct {
	page   int
	filter todo.Filter
}

// todoPageData encodes a listing position into callback data.
func todoPageData(f todo.Filter, page int) string {
	all := 0
	if f.IncludeCompleted {
		all = 1
	}
	return fmt.Sprintf("todo:%d:%d:%d", page, all, f.Assignee)
}

func parseTodoPageData(data string) (todoPageQuery, bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 4 || parts[0] != "todo" {
		return todoPageQuery{}, false
	}
	page, err1 := strconv.Atoi(parts[1])
	all, err2 := strconv.Atoi(parts[2])
	assignee, err3 := strconv.ParseInt(parts[3], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return todoPageQuery{}, false
	}
	return todoPageQuery{
		page:   page,
		filter: todo.Filter{IncludeCompleted: all == 1, Assignee: assignee},
	}, true
}

func todoKeyboard(f todo.Filter, page int) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("◀", todoPageData(f, page-1)),
		tgbotapi.NewInlineKeyboardButtonData("Refresh", todoPageData(f, page)),
		tgbotapi.NewInlineKeyboardButtonData("▶", todoPageData(f, page+1)),
	))
}

func (a *app) todoListReply(ctx context.Context, ch int64, f todo.Filter, page int) reply {
	items, err := a.todos.List(ctx, ch, f)
	if err != nil {
		log.Error().Err(err).Int64("chat", ch).Msg("todo list failed")
		return failure("Listing TODOs failed.")
	}
	if len(items) == 0 {
		return reply{text: "There are no incompleted TODOs in this channel."}
	}

	shown, page := todo.Page(items, page)
	var b strings.Builder
	b.WriteString("<b>TODOs</b>\n\n")
	for _, t := range shown {
		name := ""
		if t.Assignee != 0 {
			name = a.out.displayName(ch, t.Assignee)
		}
		b.WriteString("<b>" + html.EscapeString(todo.Title(t, name)) + "</b>\n")
		b.WriteString(html.EscapeString(t.Text) + "\n\n")
	}
	b.WriteString("<i>" + html.EscapeString(todo.Footer(items, page)) + "</i>")

	keyboard := todoKeyboard(f, page)
	return reply{text: b.String(), html: true, keyboard: &keyboard}
}

func (a *app) handleHof(ctx context.Context, req commandRequest) reply {
	sub, rest := splitArg(req.args)
	guild := req.chatID

	switch sub {
	case "create":
		title, desc, _ := strings.Cut(rest, "|")
		t, err := a.hofs.CreateTable(ctx, guild, title, desc)
		if err != nil {
			return a.hofFailure(guild, "Creating", err)
		}
		return reply{
			text: fmt.Sprintf("Hall of Fame table <b>%s</b> created.", html.EscapeString(t.Title)),
			html: true,
		}
	case "add":
		title, user, reason, ok := ping.FirstMention(rest)
		if !ok || title == "" {
			return failure("Usage: /hof add <title> <user> <reason>")
		}
		t, e, err := a.hofs.AddEntry(ctx, guild, title, int64(user), reason)
		if err != nil {
			return a.hofFailure(guild, "Adding", err)
		}
		return reply{
			text: fmt.Sprintf("%s was added to <b>%s</b>: <i>%s</i>",
				ping.Mention(ping.UserID(e.UserID)), html.EscapeString(t.Title), html.EscapeString(e.Description)),
			html: true,
		}
	case "show":
		if title, user, _, ok := ping.FirstMention(rest); ok {
			return a.hofUserEntries(ctx, guild, title, int64(user))
		}
		return a.hofLeaderboard(ctx, guild, rest)
	case "list":
		titles := a.hofs.Titles(guild, rest)
		if len(titles) == 0 {
			return reply{text: "There are no Hall of Fame tables yet."}
		}
		return reply{text: "Hall of Fame tables:\n- " + strings.Join(titles, "\n- ")}
	default:
		return reply{text: "Usage: /hof create|add|show|list"}
	}
}

func (a *app) hofLeaderboard(ctx context.Context, guild int64, title string) reply {
	t, standings, err := a.hofs.Leaderboard(ctx, guild, title)
	if err != nil {
		return a.hofFailure(guild, "Showing", err)
	}
	var b strings.Builder
	b.WriteString("<b>" + html.EscapeString(t.Title) + "</b>\n")
	if t.Description != "" {
		b.WriteString(html.EscapeString(t.Description) + "\n")
	}
	b.WriteString("\n")
	if len(standings) == 0 {
		b.WriteString("There are no entries.")
	}
	for i, st := range standings {
		fmt.Fprintf(&b, "%d. %s: %d\n", i+1, html.EscapeString(a.out.displayName(guild, st.UserID)), st.Count)
	}
	return reply{text: strings.TrimRight(b.String(), "\n"), html: true}
}

func (a *app) hofUserEntries(ctx context.Context, guild int64, title string, user int64) reply {
	t, entries, err := a.hofs.UserEntries(ctx, guild, title, user)
	if err != nil {
		return a.hofFailure(guild, "Showing", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b> entries of %s\n", html.EscapeString(t.Title), html.EscapeString(a.out.displayName(guild, user)))
	if len(entries) == 0 {
		b.WriteString("There are no entries.")
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "<i>%s</i>: %s\n", formatDate(e.CreatedAt), html.EscapeString(e.Description))
	}
	return reply{text: strings.TrimRight(b.String(), "\n"), html: true}
}

func (a *app) hofFailure(guild int64, verb string, err error) reply {
	switch {
	case errors.Is(err, hof.ErrNoSuchTable):
		text := "No such Hall of Fame table."
		if titles := a.hofs.Titles(guild, ""); len(titles) > 0 {
			text += " Available: " + strings.Join(titles, ", ")
		}
		return failure(text)
	case errors.Is(err, hof.ErrTableExists):
		return failure("Hall of Fame table with that title already exists.")
	case errors.Is(err, hof.ErrTitleLength):
		return failure(fmt.Sprintf("Title must have between %d and %d characters.", hof.MinTitleLength, hof.MaxTitleLength))
	case errors.Is(err, hof.ErrTooLong):
		return failure(fmt.Sprintf("Text can't have more than %d characters.", hof.MaxDescriptionLength))
	case errors.Is(err, hof.ErrNoReason):
		return failure("Reason can't be empty.")
	default:
		log.Error().Err(err).Str("op", verb).Msg("hall of fame operation failed")
		return failure(verb + " Hall of Fame entry failed.")
	}
}

func (a *app) handleGitHub(ctx context.Context, req commandRequest) reply {
	sub, rest := splitArg(req.args)

	switch sub {
	case "issue":
		title, details, _ := strings.Cut(rest, "|")
		title = strings.TrimSpace(title)
		if title == "" {
			return failure("Usage: /gh issue <title> [| details]")
		}
		author := req.userName
		if author == "" {
			author = strconv.FormatInt(req.userID, 10)
		}
		link, err := a.gh.CreateIssue(ctx, github.IssueRequest{
			Channel: req.chatID,
			Author:  author,
			Title:   title,
			Details: strings.TrimSpace(details),
		})
		if err != nil {
			if text, ok := mirrorDisabled(err); ok {
				return failure(text)
			}
			return failure("Failed to create GitHub issue.")
		}
		return reply{text: "Created: " + link}
	case "where":
		repo, err := a.gh.ResolveRepo(req.chatID)
		if err != nil {
			text, _ := mirrorDisabled(err)
			return reply{text: text}
		}
		return reply{text: "This chat mirrors issues to " + repo + "."}
	default:
		return reply{text: "Usage: /gh issue <title> [| details] | where"}
	}
}

// mirrorDisabled explains why a chat cannot mirror issues.
func mirrorDisabled(err error) (string, bool) {
	switch {
	case errors.Is(err, github.ErrNoToken):
		return "GitHub mirroring is disabled: no token configured.", true
	case errors.Is(err, github.ErrChannelNotAllowed):
		return "This chat is not allowed to mirror issues.", true
	case errors.Is(err, github.ErrNoRepo):
		return "No repository is mapped to this chat.", true
	default:
		return "GitHub mirroring is unavailable.", false
	}
}
