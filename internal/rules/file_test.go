package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBytes_FullPolicy(t *testing.T) {
	yaml := `
default:
  older_than: 720h
  exclude_pinned: true
chats: [-1001234567890, 133742]
overrides:
  - id: -1001234567890
    older_than: 24h
    exclude_own: true
    exclude_media: [photo, document]
`
	p, err := LoadBytes([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, 720*time.Hour, p.Default.OlderThan)
	assert.True(t, p.Default.ExcludePinned)
	assert.Equal(t, []int64{-1001234567890, 133742}, p.Scope)

	over := p.RuleFor(-1001234567890)
	assert.Equal(t, 24*time.Hour, over.OlderThan)
	assert.True(t, over.ExcludeOwn)
	assert.Equal(t, []string{"photo", "document"}, over.ExcludeMedia)

	assert.Equal(t, p.Default, p.RuleFor(133742))
}

func TestLoadBytes_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_SWEEPER_OLDER_THAN", "48h")

	p, err := LoadBytes([]byte("default:\n  older_than: ${TEST_SWEEPER_OLDER_THAN}\n"))
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, p.Default.OlderThan)
}

func TestLoadBytes_InvalidDuration(t *testing.T) {
	_, err := LoadBytes([]byte("default:\n  older_than: fortnight\n"))
	assert.ErrorContains(t, err, "older_than")
}

func TestLoadBytes_OverrideWithoutID(t *testing.T) {
	_, err := LoadBytes([]byte("overrides:\n  - older_than: 24h\n"))
	assert.ErrorContains(t, err, "without chat id")
}

func TestLoadBytes_InvalidYAML(t *testing.T) {
	_, err := LoadBytes([]byte("default: [unclosed"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default:\n  older_than: 1h\n"), 0o600))

	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, p.Default.OlderThan)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
