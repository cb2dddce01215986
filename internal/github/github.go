// Package github mirrors chat requests to GitHub issues and reads release
// notes.
package github

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v62/github"
	"github.com/rs/zerolog/log"
)

const DefaultChangelogRepo = "seqre/secubot"

var (
	ErrNoToken           = errors.New("missing GitHub token")
	ErrChannelNotAllowed = errors.New("channel is not allowed to mirror")
	ErrNoRepo            = errors.New("no repository mapped")
)

type Config struct {
	Token         string
	Repo          string
	DefaultLabels []string
	// AllowedChannels, when non-empty, is the only set of channels that may
	// mirror.
	AllowedChannels []int64
	ChannelMap      map[int64]string
	ChangelogRepo   string
}

type Client struct {
	cfg Config
	api *gh.Client
}

func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.ChangelogRepo == "" {
		cfg.ChangelogRepo = DefaultChangelogRepo
	}
	api := gh.NewClient(httpClient)
	if cfg.Token != "" {
		api = api.WithAuthToken(cfg.Token)
	}
	return &Client{cfg: cfg, api: api}
}

// ResolveRepo returns the owner/repo a channel mirrors to. The channel map
// takes precedence over the default repo.
func (c *Client) ResolveRepo(channel int64) (string, error) {
	if c.cfg.Token == "" {
		return "", ErrNoToken
	}
	if len(c.cfg.AllowedChannels) > 0 && !containsChannel(c.cfg.AllowedChannels, channel) {
		return "", ErrChannelNotAllowed
	}
	repo := c.cfg.Repo
	if mapped, ok := c.cfg.ChannelMap[channel]; ok {
		repo = mapped
	}
	if repo == "" {
		return "", ErrNoRepo
	}
	return repo, nil
}

func containsChannel(list []int64, ch int64) bool {
	for _, c := range list {
		if c == ch {
			return true
		}
	}
	return false
}

func splitRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("invalid repo %q, expected owner/repo", repo)
	}
	return owner, name, nil
}

type IssueRequest struct {
	Channel int64
	Author  string
	Title   string
	Details string
}

// IssueBody is the markdown body of a mirrored issue.
func IssueBody(author string, channel int64, details string) string {
	return fmt.Sprintf("### Context\nSubmitted via Telegram by @%s in chat %d.\n%s\n\n"+
		"### Acceptance criteria\n- Clear user impact\n- Implementation approach agreed\n- Tests cover new behavior",
		author, channel, details)
}

// CreateIssue opens an issue in the channel's repo and returns its URL.
func (c *Client) CreateIssue(ctx context.Context, req IssueRequest) (string, error) {
	repo, err := c.ResolveRepo(req.Channel)
	if err != nil {
		return "", err
	}
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}

	labels := c.cfg.DefaultLabels
	if labels == nil {
		labels = []string{}
	}
	issue, _, err := c.api.Issues.Create(ctx, owner, name, &gh.IssueRequest{
		Title:  gh.String(req.Title),
		Body:   gh.String(IssueBody(req.Author, req.Channel, req.Details)),
		Labels: &labels,
	})
	if err != nil {
		log.Warn().Err(err).Str("repo", repo).Msg("github issue creation failed")
		return "", fmt.Errorf("create issue in %s: %w", repo, err)
	}
	log.Info().Str("url", issue.GetHTMLURL()).Msg("github issue created")
	return issue.GetHTMLURL(), nil
}

// Changelog returns the latest release notes of the changelog repo as HTML.
func (c *Client) Changelog(ctx context.Context) (string, error) {
	owner, name, err := splitRepo(c.cfg.ChangelogRepo)
	if err != nil {
		return "", err
	}
	release, _, err := c.api.Repositories.GetLatestRelease(ctx, owner, name)
	if err != nil {
		return "", fmt.Errorf("latest release of %s: %w", c.cfg.ChangelogRepo, err)
	}
	return FormatChangelog(release.GetBody()), nil
}

// FormatChangelog renders markdown headings bold and escapes the rest.
func FormatChangelog(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	if strings.TrimSpace(body) == "" {
		return "No changelog in the release notes."
	}
	var b strings.Builder
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "#") {
			b.WriteString("<b>" + html.EscapeString(line) + "</b>\n")
			continue
		}
		b.WriteString(html.EscapeString(line) + "\n")
	}
	return b.String()
}
