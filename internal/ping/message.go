package ping

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type ChannelID int64

type UserID int64

// UserSet is a set of ping targets.
type UserSet map[UserID]struct{}

func NewUserSet(ids ...UserID) UserSet {
	s := make(UserSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s UserSet) Has(id UserID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s UserSet) Sorted() []UserID {
	out := make([]UserID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s UserSet) clone() UserSet {
	c := make(UserSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Message is a control message for the worker mailbox. The set of
// implementations is closed: Commence, Remove and Stop.
type Message interface {
	channel() ChannelID
}

// Commence starts a cannon for Channel or adds Users to a running one.
type Commence struct {
	Channel ChannelID
	Users   UserSet
}

// Remove drops Users from a running cannon.
type Remove struct {
	Channel ChannelID
	Users   UserSet
}

// Stop ends the cannon of Channel.
type Stop struct {
	Channel ChannelID
}

func (m Commence) channel() ChannelID { return m.Channel }
func (m Remove) channel() ChannelID   { return m.Channel }
func (m Stop) channel() ChannelID     { return m.Channel }

var reMention = regexp.MustCompile(`<@!?(\d+)>`)

// ParseMentions extracts user ids from <@123> and <@!123> tokens. Other text
// is ignored; ids that overflow int64 are skipped.
func ParseMentions(text string) UserSet {
	users := make(UserSet)
	for _, m := range reMention.FindAllStringSubmatch(text, -1) {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		users[UserID(id)] = struct{}{}
	}
	return users
}

// FirstMention splits text around its first mention token.
func FirstMention(text string) (before string, user UserID, after string, ok bool) {
	for _, m := range reMention.FindAllStringSubmatchIndex(text, -1) {
		id, err := strconv.ParseInt(text[m[2]:m[3]], 10, 64)
		if err != nil {
			continue
		}
		return strings.TrimSpace(text[:m[0]]), UserID(id), strings.TrimSpace(text[m[1]:]), true
	}
	return "", 0, "", false
}

// TrailingMention strips a mention token that ends text, ignoring trailing
// whitespace. ok is false when text does not end with one.
func TrailingMention(text string) (rest string, user UserID, ok bool) {
	matches := reMention.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, 0, false
	}
	m := matches[len(matches)-1]
	if strings.TrimSpace(text[m[1]:]) != "" {
		return text, 0, false
	}
	id, err := strconv.ParseInt(text[m[2]:m[3]], 10, 64)
	if err != nil {
		return text, 0, false
	}
	return strings.TrimSpace(text[:m[0]]), UserID(id), true
}

// Mention renders u as an HTML user link.
func Mention(u UserID) string {
	id := strconv.FormatInt(int64(u), 10)
	return `<a href="tg://user?id=` + id + `">@` + id + `</a>`
}

func mentionList(users UserSet) string {
	parts := make([]string, 0, len(users))
	for _, u := range users.Sorted() {
		parts = append(parts, Mention(u))
	}
	return strings.Join(parts, " ")
}
