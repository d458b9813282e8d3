package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/bot?parseTime=true")
	t.Setenv("AI_GATEWAY_URL", "https://gateway.example")
	t.Setenv("ADMIN_IDS", "1001")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "en", cfg.DefaultLanguage)
	assert.Equal(t, 50, cfg.TrialRequests)
	assert.Equal(t, 7, cfg.TrialDays)
	assert.Equal(t, "https://plisio.net/api/v1", cfg.PlisioBaseURL)
	assert.Equal(t, "XTR", cfg.WalletCurrency)
	assert.Equal(t, ":8080", cfg.AdminListenAddr)
	assert.Equal(t, 8, cfg.BroadcastWorkers)
	assert.Equal(t, []int64{1001}, cfg.AdminIDs)
	assert.False(t, cfg.AttachmentsEnabled())
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("AI_GATEWAY_URL", "")
	t.Setenv("ADMIN_IDS", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
	assert.Contains(t, err.Error(), "MYSQL_DSN")
	assert.Contains(t, err.Error(), "AI_GATEWAY_URL")
	assert.Contains(t, err.Error(), "ADMIN_IDS")
}

func TestLoadParsesAdminIDList(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ADMIN_IDS", " 1001, 1002 ,1003 ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{1001, 1002, 1003}, cfg.AdminIDs)
}

func TestLoadRejectsBadAdminID(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ADMIN_IDS", "1001,bogus")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadS3RequiresCompanionVars(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("S3_BUCKET", "attachments")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_REGION")

	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("S3_ACCESS_KEY", "ak")
	t.Setenv("S3_SECRET_KEY", "sk")
	t.Setenv("S3_PUBLIC_BASE_URL", "https://cdn.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.AttachmentsEnabled())
	assert.Equal(t, "attachments", cfg.S3Prefix)
}

func TestLoadTrialValidation(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRIAL_DAYS", "0")

	_, err := Load()
	require.Error(t, err)
}
