package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func env(vals map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := vals[key]
		return v, ok
	}
}

var envKeys = []string{
	"DATABASE_PATH", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL",
	"MEEGLE_API_BASE", "MEEGLE_AUTH_URL", "MEEGLE_APP_ID", "MEEGLE_APP_SECRET",
	"MEEGLE_PROJECT_KEY", "MEEGLE_TYPE_MAP", "NATS_URL", "PORT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3001, c.Server.Port)
	assert.Equal(t, "0 * * * *", c.Server.Schedule)
	assert.True(t, c.Sources.Congress.Enabled)
	assert.Equal(t, 50, c.Collector.RetryBatch)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
database:
  path: /var/lib/trumpsword/events.db
server:
  port: 8080
  schedule: "*/15 * * * *"
meegle:
  project_key: proj
  type_map:
    legislative: story
  transitions:
    legislative:
      Committee: "1001"
sources:
  telegram:
    enabled: false
  page_delay: 250ms
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/trumpsword/events.db", c.Database.Path)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "*/15 * * * *", c.Server.Schedule)
	assert.Equal(t, "story", c.Meegle.TypeMap["legislative"])
	assert.Equal(t, "1001", c.Meegle.Transitions["legislative"]["Committee"])
	assert.False(t, c.Sources.Telegram.Enabled)
	assert.True(t, c.Sources.WhiteHouse.Enabled, "unset keys keep their defaults")
	assert.Equal(t, 250*time.Millisecond, c.Sources.PageDelay)
	assert.Equal(t, 5*time.Minute, c.Meegle.TokenMargin)
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	err := c.applyEnv(env(map[string]string{
		"DATABASE_PATH":      "/tmp/x.db",
		"OPENAI_API_KEY":     "sk-test",
		"MEEGLE_APP_ID":      "app",
		"MEEGLE_APP_SECRET":  "secret",
		"MEEGLE_PROJECT_KEY": "proj",
		"MEEGLE_TYPE_MAP":    `{"executive":"issue"}`,
		"NATS_URL":           "nats://localhost:4222",
		"PORT":               "9000",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/x.db", c.Database.Path)
	assert.Equal(t, "sk-test", c.LLM.APIKey)
	assert.Equal(t, "app", c.Meegle.AppID)
	assert.Equal(t, "issue", c.Meegle.TypeMap["executive"])
	assert.Equal(t, "nats://localhost:4222", c.NATS.URL)
	assert.Equal(t, 9000, c.Server.Port)
	assert.Equal(t, ":9000", c.Addr())
}

func TestApplyEnv_BadValues(t *testing.T) {
	c := Default()
	assert.ErrorContains(t, c.applyEnv(env(map[string]string{"PORT": "http"})), "PORT")

	c = Default()
	assert.ErrorContains(t, c.applyEnv(env(map[string]string{"MEEGLE_TYPE_MAP": "{"})), "MEEGLE_TYPE_MAP")
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Server.Port = 0
	c.Server.Schedule = "every hour"
	c.Meegle.TypeMap = map[string]string{"memo": "x"}

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "server.schedule")
	assert.Contains(t, err.Error(), `unknown event type "memo"`)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	path := writeConfig(t, "server:\n  port: 8080\n")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, c.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}
