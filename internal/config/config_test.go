package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("SWEEPER_API_ID", "12345")
	t.Setenv("SWEEPER_API_HASH", "abcdef0123456789")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 720*time.Hour, cfg.OlderThan)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.Equal(t, 20, cfg.RatePerMin)
	assert.Equal(t, 64*time.Second, cfg.MaxBackoff)
	assert.Equal(t, "/data", cfg.DataDir)
	assert.Equal(t, ":8090", cfg.MgmtListenAddr)
	assert.True(t, cfg.ExcludePinned)
	assert.False(t, cfg.DryRun)
	assert.True(t, cfg.AllChats())
	assert.False(t, cfg.SlackEnabled())
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("SWEEPER_API_ID", "")
	t.Setenv("SWEEPER_API_HASH", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_BatchSizeBounds(t *testing.T) {
	setRequired(t)
	t.Setenv("SWEEPER_BATCH_SIZE", "101")

	_, err := Load()
	assert.ErrorContains(t, err, "SWEEPER_BATCH_SIZE")
}

func TestChatIDs_All(t *testing.T) {
	cfg := &Config{Chats: "all"}
	ids, err := cfg.ChatIDs()
	require.NoError(t, err)
	assert.Nil(t, ids)

	cfg = &Config{Chats: " ALL "}
	ids, err = cfg.ChatIDs()
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestChatIDs_Explicit(t *testing.T) {
	cfg := &Config{Chats: "-1001234567890, 133742"}
	ids, err := cfg.ChatIDs()
	require.NoError(t, err)
	assert.Equal(t, []int64{-1001234567890, 133742}, ids)
}

func TestChatIDs_Invalid(t *testing.T) {
	cfg := &Config{Chats: "12,notanumber"}
	_, err := cfg.ChatIDs()
	assert.ErrorContains(t, err, "notanumber")
}

func TestExcludeMediaKinds(t *testing.T) {
	cfg := &Config{ExcludeMedia: "Photo, document,,VIDEO "}
	assert.Equal(t, []string{"photo", "document", "video"}, cfg.ExcludeMediaKinds())

	cfg = &Config{}
	assert.Nil(t, cfg.ExcludeMediaKinds())
}

func TestSlackEnabled(t *testing.T) {
	cfg := &Config{SlackToken: "xoxb-token", SlackChannel: "#ops"}
	assert.True(t, cfg.SlackEnabled())

	cfg = &Config{SlackToken: "xoxb-token"}
	assert.False(t, cfg.SlackEnabled())
}
