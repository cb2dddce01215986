package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seqre/secubot/internal/github"
	"github.com/seqre/secubot/internal/ping"
)

type Config struct {
	LogLevel     string         `yaml:"log_level"`
	LogFormat    string         `yaml:"log_format"`
	DatabasePath string         `yaml:"database_path"`
	MetricsAddr  string         `yaml:"metrics_addr"`
	Telegram     TelegramConfig `yaml:"telegram"`
	Ping         PingConfig     `yaml:"-"`
	Todo         TodoConfig     `yaml:"-"`
	GitHub       GitHubConfig   `yaml:"github"`
}

type TelegramConfig struct {
	Token        string  `yaml:"token"`
	AllowedChats []int64 `yaml:"allowed_chats"`
	Debug        bool    `yaml:"debug"`
	// APIEndpoint is a format string taking the token and method, for a
	// self-hosted Bot API server. Empty means api.telegram.org.
	APIEndpoint string `yaml:"api_endpoint"`
}

type PingConfig struct {
	Tick        time.Duration
	Timeout     time.Duration
	SendTimeout time.Duration
	MailboxSize int
	DrainAll    bool
}

type TodoConfig struct {
	ReminderInterval time.Duration
}

type GitHubConfig struct {
	Token           string           `yaml:"token"`
	Repo            string           `yaml:"repo"`
	DefaultLabels   []string         `yaml:"default_labels"`
	AllowedChannels []int64          `yaml:"allowed_channels"`
	ChannelMap      map[int64]string `yaml:"channel_map"`
	ChangelogRepo   string           `yaml:"changelog_repo"`
}

type rawPingConfig struct {
	Tick        string `yaml:"tick"`
	Timeout     string `yaml:"timeout"`
	SendTimeout string `yaml:"send_timeout"`
	MailboxSize int    `yaml:"mailbox_size"`
	DrainAll    bool   `yaml:"drain_all"`
}

type rawTodoConfig struct {
	ReminderInterval string `yaml:"reminder_interval"`
}

type rawConfig struct {
	LogLevel     string         `yaml:"log_level"`
	LogFormat    string         `yaml:"log_format"`
	DatabasePath string         `yaml:"database_path"`
	MetricsAddr  string         `yaml:"metrics_addr"`
	Telegram     TelegramConfig `yaml:"telegram"`
	Ping         rawPingConfig  `yaml:"ping"`
	Todo         rawTodoConfig  `yaml:"todo"`
	GitHub       GitHubConfig   `yaml:"github"`
}

const (
	defaultDatabasePath     = "secubot.db"
	defaultLogLevel         = "info"
	defaultReminderInterval = 5 * 24 * time.Hour
)

func loadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, err
	}

	tick, err := parseDuration(raw.Ping.Tick, ping.DefaultTick)
	if err != nil {
		return Config{}, fmt.Errorf("invalid ping.tick: %w", err)
	}
	timeout, err := parseDuration(raw.Ping.Timeout, ping.DefaultTimeout)
	if err != nil {
		return Config{}, fmt.Errorf("invalid ping.timeout: %w", err)
	}
	sendTimeout, err := parseDuration(raw.Ping.SendTimeout, ping.DefaultSendTimeout)
	if err != nil {
		return Config{}, fmt.Errorf("invalid ping.send_timeout: %w", err)
	}
	reminder, err := parseDuration(raw.Todo.ReminderInterval, defaultReminderInterval)
	if err != nil {
		return Config{}, fmt.Errorf("invalid todo.reminder_interval: %w", err)
	}

	mailbox := raw.Ping.MailboxSize
	if mailbox <= 0 {
		mailbox = ping.DefaultMailboxSize
	}

	cfg := Config{
		LogLevel:     raw.LogLevel,
		LogFormat:    raw.LogFormat,
		DatabasePath: raw.DatabasePath,
		MetricsAddr:  raw.MetricsAddr,
		Telegram:     raw.Telegram,
		Ping: PingConfig{
			Tick:        tick,
			Timeout:     timeout,
			SendTimeout: sendTimeout,
			MailboxSize: mailbox,
			DrainAll:    raw.Ping.DrainAll,
		},
		Todo:   TodoConfig{ReminderInterval: reminder},
		GitHub: raw.GitHub,
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = defaultDatabasePath
	}
	if cfg.GitHub.ChangelogRepo == "" {
		cfg.GitHub.ChangelogRepo = github.DefaultChangelogRepo
	}

	applyEnv(&cfg)
	return cfg, nil
}

// parseDuration returns def for an empty value. "0" is a valid zero.
func parseDuration(value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	return time.ParseDuration(value)
}

// applyEnv lets secrets come from the environment instead of the file.
func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("SCBT_TELEGRAM_TOKEN"); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := os.LookupEnv("SCBT_GITHUB_TOKEN"); ok {
		cfg.GitHub.Token = v
	}
}

func (c PingConfig) workerConfig() ping.Config {
	return ping.Config{
		Tick:        c.Tick,
		Timeout:     c.Timeout,
		MailboxSize: c.MailboxSize,
		DrainAll:    c.DrainAll,
		SendTimeout: c.SendTimeout,
	}
}

func (c GitHubConfig) clientConfig() github.Config {
	return github.Config{
		Token:           c.Token,
		Repo:            c.Repo,
		DefaultLabels:   c.DefaultLabels,
		AllowedChannels: c.AllowedChannels,
		ChannelMap:      c.ChannelMap,
		ChangelogRepo:   c.ChangelogRepo,
	}
}

// redacted is cfg with secrets masked, for logging.
func (c Config) redacted() Config {
	if c.Telegram.Token != "" {
		c.Telegram.Token = "<REDACTED>"
	}
	if c.GitHub.Token != "" {
		c.GitHub.Token = "<REDACTED>"
	}
	return c
}
