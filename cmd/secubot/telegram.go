package main

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/seqre/secubot/internal/ping"
)

const (
	displayNameTTL  = time.Hour
	longPollTimeout = 60
	// httpTimeout bounds every Bot API call and must exceed the long poll.
	httpTimeout = (longPollTimeout + 30) * time.Second
)

// reply is what a handler wants sent back to a chat.
type reply struct {
	text     string
	html     bool
	replyTo  int
	keyboard *tgbotapi.InlineKeyboardMarkup
	// failed marks replies that report an error to the user.
	failed bool
}

type commandRequest struct {
	chatID   int64
	userID   int64
	userName string
	command  string
	args     string
}

type callbackRequest struct {
	chatID    int64
	messageID int
	data      string
}

// chatHandler reacts to incoming chat traffic.
type chatHandler interface {
	handleCommand(ctx context.Context, req commandRequest) reply
	handleText(ctx context.Context, chatID int64, text string) string
	handleCallback(ctx context.Context, req callbackRequest) (reply, bool)
}

type cachedName struct {
	name string
	at   time.Time
}

type telegramNotifier struct {
	bot     *tgbotapi.BotAPI
	allowed map[int64]bool

	namesMu sync.Mutex
	names   map[string]cachedName
}

func newTelegramNotifier(cfg TelegramConfig) (*telegramNotifier, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("missing telegram token")
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, &http.Client{Timeout: httpTimeout})
	if err != nil {
		return nil, err
	}
	bot.Debug = cfg.Debug
	log.Info().Str("bot", bot.Self.UserName).Msg("telegram authorized")

	t := &telegramNotifier{bot: bot, names: make(map[string]cachedName)}
	if len(cfg.AllowedChats) > 0 {
		t.allowed = make(map[int64]bool, len(cfg.AllowedChats))
		for _, id := range cfg.AllowedChats {
			t.allowed[id] = true
		}
	}
	return t, nil
}

func (t *telegramNotifier) chatAllowed(chatID int64) bool {
	return t.allowed == nil || t.allowed[chatID]
}

func (t *telegramNotifier) run(ctx context.Context, h chatHandler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = longPollTimeout
	updates := t.bot.GetUpdatesChan(u)
	defer t.bot.StopReceivingUpdates()

	// handlers still running must finish before the caller closes what they use
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			// commands may block on the ping mailbox, so each update gets
			// its own goroutine
			wg.Add(1)
			go func() {
				defer wg.Done()
				t.dispatch(ctx, h, update)
			}()
		}
	}
}

func (t *telegramNotifier) dispatch(ctx context.Context, h chatHandler, update tgbotapi.Update) {
	if cq := update.CallbackQuery; cq != nil {
		t.dispatchCallback(ctx, h, cq)
		return
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil || !t.chatAllowed(msg.Chat.ID) {
		return
	}

	text := inlineTextMentions(msg.Text, msg.Entities)
	if !msg.IsCommand() {
		if resp := h.handleText(ctx, msg.Chat.ID, text); resp != "" {
			t.trySend(msg.Chat.ID, reply{text: resp, replyTo: msg.MessageID})
		}
		return
	}

	name, args := splitCommand(text)
	req := commandRequest{
		chatID:  msg.Chat.ID,
		command: name,
		args:    args,
	}
	if msg.From != nil {
		req.userID = msg.From.ID
		req.userName = msg.From.String()
	}
	t.trySend(msg.Chat.ID, h.handleCommand(ctx, req))
}

func (t *telegramNotifier) dispatchCallback(ctx context.Context, h chatHandler, cq *tgbotapi.CallbackQuery) {
	if _, err := t.bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		log.Debug().Err(err).Msg("answer callback failed")
	}
	if cq.Message == nil || cq.Message.Chat == nil || !t.chatAllowed(cq.Message.Chat.ID) {
		return
	}
	req := callbackRequest{
		chatID:    cq.Message.Chat.ID,
		messageID: cq.Message.MessageID,
		data:      cq.Data,
	}
	r, ok := h.handleCallback(ctx, req)
	if !ok {
		return
	}
	if err := t.edit(req.chatID, req.messageID, r); err != nil {
		log.Warn().Err(err).Int64("chat", req.chatID).Msg("telegram edit failed")
	}
}

func (t *telegramNotifier) send(chatID int64, r reply) error {
	msg := tgbotapi.NewMessage(chatID, r.text)
	if r.html {
		msg.ParseMode = tgbotapi.ModeHTML
	}
	msg.ReplyToMessageID = r.replyTo
	msg.DisableWebPagePreview = true
	if r.keyboard != nil {
		msg.ReplyMarkup = *r.keyboard
	}
	_, err := t.bot.Send(msg)
	return err
}

func (t *telegramNotifier) trySend(chatID int64, r reply) {
	if r.text == "" {
		return
	}
	if err := t.send(chatID, r); err != nil {
		log.Warn().Err(err).Int64("chat", chatID).Msg("telegram send failed")
	}
}

func (t *telegramNotifier) edit(chatID int64, messageID int, r reply) error {
	var edit tgbotapi.EditMessageTextConfig
	if r.keyboard != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, r.text, *r.keyboard)
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, r.text)
	}
	if r.html {
		edit.ParseMode = tgbotapi.ModeHTML
	}
	_, err := t.bot.Send(edit)
	return err
}

// Send implements ping.Sender. Cannon messages carry HTML mentions.
func (t *telegramNotifier) Send(ctx context.Context, ch ping.ChannelID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// the Bot API client takes no context, so the call is abandoned instead
	errc := make(chan error, 1)
	go func() {
		errc <- t.send(int64(ch), reply{text: text, html: true})
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// displayName resolves a user's name in a chat, falling back to the id.
func (t *telegramNotifier) displayName(chatID, userID int64) string {
	key := strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(userID, 10)

	t.namesMu.Lock()
	cached, ok := t.names[key]
	t.namesMu.Unlock()
	if ok && time.Since(cached.at) < displayNameTTL {
		return cached.name
	}

	member, err := t.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	name := strconv.FormatInt(userID, 10)
	if err != nil {
		log.Debug().Err(err).Int64("user", userID).Msg("chat member lookup failed")
		return name
	}
	if s := member.User.String(); s != "" {
		name = s
	}

	t.namesMu.Lock()
	t.names[key] = cachedName{name: name, at: time.Now()}
	t.namesMu.Unlock()
	return name
}

// splitCommand splits "/cmd@bot args" into its lower-case name and the
// remaining arguments.
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	head, args := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, args = head[:i], head[i:]
	}
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(args)
}

// inlineTextMentions rewrites text_mention entities (users without a
// username) into <@id> tokens so mentions parse the same way everywhere.
// Entity offsets count UTF-16 code units.
func inlineTextMentions(text string, entities []tgbotapi.MessageEntity) string {
	var mentions []tgbotapi.MessageEntity
	for _, e := range entities {
		if e.Type == "text_mention" && e.User != nil {
			mentions = append(mentions, e)
		}
	}
	if len(mentions) == 0 {
		return text
	}
	sort.Slice(mentions, func(i, j int) bool { return mentions[i].Offset > mentions[j].Offset })

	units := utf16.Encode([]rune(text))
	end := len(units)
	for _, e := range mentions {
		if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > end {
			continue
		}
		token := utf16.Encode([]rune(fmt.Sprintf("<@%d>", e.User.ID)))
		rest := append(token, units[e.Offset+e.Length:]...)
		units = append(units[:e.Offset:e.Offset], rest...)
		end = e.Offset
	}
	return string(utf16.Decode(units))
}
