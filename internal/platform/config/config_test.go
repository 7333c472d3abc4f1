package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadAppliesDefaultsAndYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
mode: dev
database:
  driver: sqlite
  path: /tmp/smts.db
reminder:
  schedule: "*/30 * * * *"
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, ":8443", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "*/30 * * * *", cfg.Reminder.Schedule)
	assert.Equal(t, 2*time.Hour, cfg.Reminder.Horizon)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 256, cfg.Notify.QueueSize)
	assert.False(t, cfg.Mail.Enabled())
	assert.False(t, cfg.Telegram.Enabled())
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
mode: dev
database:
  password: from-yaml
`)
	t.Setenv("DB_PASSWORD", "from-env")
	t.Setenv("EMAIL_HOST", "smtp.example.test")

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.DB.Password)
	assert.True(t, cfg.Mail.Enabled())
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "mode: dev\n")
	envFile := writeFile(t, ".env", "TELEGRAM_TOKEN=abc\nTELEGRAM_ADMIN_CHAT_ID=42\n")
	t.Cleanup(func() {
		os.Unsetenv("TELEGRAM_TOKEN")
		os.Unsetenv("TELEGRAM_ADMIN_CHAT_ID")
	})

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Telegram.Token)
	assert.Equal(t, int64(42), cfg.Telegram.AdminChatID)
	assert.True(t, cfg.Telegram.Enabled())
}

func TestLoadRejectsReleaseWithoutSecret(t *testing.T) {
	path := writeFile(t, "config.yaml", "mode: release\n")
	t.Setenv("JWT_SECRET", "")

	_, err := Load(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	path := writeFile(t, "config.yaml", "mode: staging\n")

	_, err := Load(path, "")
	require.Error(t, err)
}

func TestDefaultReminderScheduleIsClockAligned(t *testing.T) {
	path := writeFile(t, "config.yaml", "mode: dev\n")

	cfg, err := Load(path, "")
	require.NoError(t, err)

	sched, err := cfg.Reminder.ParseSchedule()
	require.NoError(t, err)
	from := time.Date(2026, 10, 16, 9, 17, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC), sched.Next(from))
	assert.Equal(t, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC), sched.Next(sched.Next(from)))
}

func TestLoadRejectsBadReminderSchedule(t *testing.T) {
	path := writeFile(t, "config.yaml", "mode: dev\nreminder:\n  schedule: every two hours\n")

	_, err := Load(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reminder.schedule")
}
