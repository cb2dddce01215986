package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqre/secubot/internal/github"
	"github.com/seqre/secubot/internal/ping"
)

func Test_ParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig([]byte("telegram:\n  token: abc\n"))
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Telegram.Token)
	assert.Equal(t, defaultLogLevel, cfg.LogLevel)
	assert.Equal(t, defaultDatabasePath, cfg.DatabasePath)
	assert.Equal(t, ping.DefaultTick, cfg.Ping.Tick)
	assert.Equal(t, ping.DefaultTimeout, cfg.Ping.Timeout)
	assert.Equal(t, ping.DefaultSendTimeout, cfg.Ping.SendTimeout)
	assert.Equal(t, ping.DefaultMailboxSize, cfg.Ping.MailboxSize)
	assert.Equal(t, 120*time.Hour, cfg.Todo.ReminderInterval)
	assert.Equal(t, github.DefaultChangelogRepo, cfg.GitHub.ChangelogRepo)
}

func Test_ParseConfigFull(t *testing.T) {
	data := []byte(`
log_level: debug
log_format: console
database_path: /tmp/bot.db
metrics_addr: ":9090"
telegram:
  token: abc
  allowed_chats: [-100, 42]
ping:
  tick: 500ms
  timeout: 1m
  send_timeout: 2s
  mailbox_size: 8
  drain_all: true
todo:
  reminder_interval: "0"
github:
  token: gh
  repo: org/repo
  default_labels: [bug]
  allowed_channels: [-100]
  channel_map:
    -100: org/other
`)
	cfg, err := parseConfig(data)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, []int64{-100, 42}, cfg.Telegram.AllowedChats)
	assert.Equal(t, ping.Config{
		Tick:        500 * time.Millisecond,
		Timeout:     time.Minute,
		MailboxSize: 8,
		DrainAll:    true,
		SendTimeout: 2 * time.Second,
	}, cfg.Ping.workerConfig())
	assert.Zero(t, cfg.Todo.ReminderInterval)
	assert.Equal(t, map[int64]string{-100: "org/other"}, cfg.GitHub.ChannelMap)
	assert.Equal(t, []string{"bug"}, cfg.GitHub.clientConfig().DefaultLabels)
}

func Test_ParseConfigInvalidDuration(t *testing.T) {
	_, err := parseConfig([]byte("ping:\n  tick: soon\n"))
	assert.ErrorContains(t, err, "invalid ping.tick")

	_, err = parseConfig([]byte("todo:\n  reminder_interval: weekly\n"))
	assert.ErrorContains(t, err, "invalid todo.reminder_interval")
}

func Test_LoadConfigEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("telegram:\n  token: from-file\ngithub:\n  token: gh-file\n"), 0o600))

	t.Setenv("SCBT_TELEGRAM_TOKEN", "from-env")
	t.Setenv("SCBT_GITHUB_TOKEN", "gh-env")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, "gh-env", cfg.GitHub.Token)

	red := cfg.redacted()
	assert.Equal(t, "<REDACTED>", red.Telegram.Token)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
}

func Test_LoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
