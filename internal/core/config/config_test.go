package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestReadDefaults(t *testing.T) {
	p := writeYAML(t, "jwt:\n  secret: s3cret\n")
	c, err := Read(p)
	require.NoError(t, err)

	assert.Equal(t, 8080, c.App.HTTP.Port)
	assert.True(t, c.Account.ConfirmationRequired)
	assert.Equal(t, 3, c.Account.ConfirmationWindowDays)
	assert.Equal(t, 7, c.Account.DeletionGraceDays)
	assert.Equal(t, "local", c.Lock.Driver)
	assert.Equal(t, "log", c.Notify.Driver)
	assert.Equal(t, "sqlite", c.DB.Driver)
	assert.Equal(t, "0 0 0 * * ?", c.Sweeper.Cron)
	assert.Equal(t, 10, c.Mail.TimeoutSec)
	assert.Equal(t, "s3cret", c.ConfirmSecret())
}

func TestReadOverrides(t *testing.T) {
	p := writeYAML(t, `
jwt:
  secret: s3cret
account:
  confirmationRequired: false
  deletionGraceDays: 14
  tokenSecret: other
sweeper:
  cron: "0 30 3 * * ?"
`)
	t.Setenv("APP_ACCOUNT_CONFIRMATIONWINDOWDAYS", "5")
	c, err := Read(p)
	require.NoError(t, err)

	assert.False(t, c.Account.ConfirmationRequired)
	assert.Equal(t, 14, c.Account.DeletionGraceDays)
	assert.Equal(t, 5, c.Account.ConfirmationWindowDays)
	assert.Equal(t, "0 30 3 * * ?", c.Sweeper.Cron)
	assert.Equal(t, "other", c.ConfirmSecret())
}

func TestReadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("APP_JWT_SECRET", "from-env")
	c, err := Read(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.JWT.Secret)
}

func TestReadValidation(t *testing.T) {
	_, err := Read(writeYAML(t, "app:\n  name: x\n"))
	assert.ErrorContains(t, err, "jwt.secret")

	_, err = Read(writeYAML(t, "jwt:\n  secret: s\nsweeper:\n  cron: \"  \"\n"))
	assert.ErrorContains(t, err, "sweeper")
}
