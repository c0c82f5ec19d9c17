package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Chat.EditWindow)
	assert.Equal(t, 3, cfg.Chat.MaxPinned)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "0.0.0.0:8083", cfg.Server.Addr())
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lanchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chat:\n  max_pinned: 5\n  edit_window: 5m\nserver:\n  port: 9000\n"), 0o600))

	t.Setenv("LANCHAT_SERVER_PORT", "9100")
	t.Setenv("LANCHAT_CHAT_EDIT_WINDOW", "30m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Chat.MaxPinned)
	assert.Equal(t, 30*time.Minute, cfg.Chat.EditWindow)
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "mysql"
	cfg.Chat.MaxPinned = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "chat.max_pinned")
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "chat.edit_window", envTransform("LANCHAT_CHAT_EDIT_WINDOW"))
	assert.Equal(t, "server.port", envTransform("LANCHAT_SERVER_PORT"))
	assert.Equal(t, "", envTransform("LANCHAT_CONFIG"))
}
