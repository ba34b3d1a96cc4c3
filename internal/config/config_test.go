package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requiredEnv sets the minimum environment for a valid configuration.
func requiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DEST_EMAIL", "ufficio@comune.example.it")
	t.Setenv("SMTP_HOST", "smtp.example.it")
	t.Setenv("SMTP_USER", "relay@example.it")
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	requiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(8*1024*1024), cfg.Server.MaxUploadSize)
	assert.Equal(t, []string{"*"}, cfg.Server.CORS.Origins)
	assert.Equal(t, "DSV", cfg.PracticeCode.Prefix)
	assert.Equal(t, 6, cfg.PracticeCode.MinDigits)
	assert.Equal(t, "file", cfg.PracticeCode.Store)
	assert.Equal(t, "counter.json", cfg.PracticeCode.File.Path)
	assert.True(t, cfg.PracticeCode.File.KeepCorrupt)
	assert.Equal(t, 465, cfg.Mail.SMTP.Port)
	assert.Equal(t, 30*time.Second, cfg.Mail.SMTP.Timeout)
	assert.True(t, cfg.Mail.Enabled)
	assert.Equal(t, "relay@example.it", cfg.Mail.From, "sender defaults to the SMTP user")
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLegacyEnvironment(t *testing.T) {
	requiredEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGIN", "https://a.example.it, https://b.example.it")
	t.Setenv("SMTP_PORT", "587")
	t.Setenv("SMTP_SECURE", "true")
	t.Setenv("SMTP_PASS", "s3cret")
	t.Setenv("COUNTER_FILE", "/var/lib/dsv/counter.json")
	t.Setenv("PRACTICE_PREFIX", "URP")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example.it", "https://b.example.it"}, cfg.Server.CORS.Origins)
	assert.Equal(t, 587, cfg.Mail.SMTP.Port)
	assert.True(t, cfg.Mail.SMTP.Secure)
	assert.Equal(t, "smtps", cfg.Mail.SMTP.EffectiveTLSMode())
	assert.Equal(t, "s3cret", cfg.Mail.SMTP.Password)
	assert.Equal(t, "/var/lib/dsv/counter.json", cfg.PracticeCode.File.Path)
	assert.Equal(t, "URP", cfg.PracticeCode.Prefix)
}

func TestPrefixedEnvironmentWins(t *testing.T) {
	requiredEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DSV_SERVER_PORT", "7070")
	t.Setenv("DSV_PRACTICE_CODE_MIN_DIGITS", "8")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 8, cfg.PracticeCode.MinDigits)
}

func TestStoreAliases(t *testing.T) {
	testCases := []struct {
		store string
		want  string
	}{
		{"json", "file"},
		{" file", "file"},
		{"database", "sql"},
		{"DB", "sql"},
		{"valkey", "redis"},
		{"Redis ", "redis"},
	}
	for _, tc := range testCases {
		t.Run(tc.store, func(t *testing.T) {
			requiredEnv(t)
			t.Setenv("DSV_PRACTICE_CODE_STORE", tc.store)
			t.Setenv("DSV_PRACTICE_CODE_SQL_DSN", "file:counter.db")

			cfg, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.PracticeCode.Store)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		requiredEnv(t)
		t.Setenv("DSV_PRACTICE_CODE_STORE", "etcd")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `practice_code.store must be one of file, sql, redis`)
	})

	t.Run("CanonicalStore", func(t *testing.T) {
		got, ok := CanonicalStore("  JSON ")
		assert.True(t, ok)
		assert.Equal(t, "file", got)
		_, ok = CanonicalStore("")
		assert.False(t, ok)
	})
}

func TestLoadFromFile(t *testing.T) {
	t.Run("valid YAML", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), `
app:
  timezone: Europe/Rome
server:
  port: 8181
practice_code:
  prefix: SEG
  store: sql
  sql:
    driver: postgres
    dsn: postgres://dsv@localhost/dsv?sslmode=disable
mail:
  destination: ufficio@comune.example.it
  from: relay@example.it
  smtp:
    host: smtp.example.it
    tls_mode: starttls
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 8181, cfg.Server.Port)
		assert.Equal(t, "SEG", cfg.PracticeCode.Prefix)
		assert.Equal(t, "sql", cfg.PracticeCode.Store)
		assert.Equal(t, "postgres", cfg.PracticeCode.SQL.Driver)
		assert.Equal(t, "starttls", cfg.Mail.SMTP.EffectiveTLSMode())
		assert.Equal(t, "Europe/Rome", cfg.App.Location().String())
	})

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		requiredEnv(t)
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
	})

	t.Run("invalid YAML", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "server: [port: 1\n  broken")
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Server.Port = 8080
		cfg.Server.MaxUploadSize = 1024
		cfg.PracticeCode.Prefix = "DSV"
		cfg.PracticeCode.Store = "file"
		cfg.PracticeCode.File.Path = "counter.json"
		cfg.Mail.Enabled = true
		cfg.Mail.Destination = "ufficio@comune.example.it"
		cfg.Mail.From = "relay@example.it"
		cfg.Mail.SMTP.Host = "smtp.example.it"
		cfg.Mail.SMTP.Port = 465
		return cfg
	}

	require.NoError(t, valid().Validate())

	testCases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing destination", func(c *Config) { c.Mail.Destination = "" }, "mail.destination"},
		{"bad destination", func(c *Config) { c.Mail.Destination = "not an address" }, "mail.destination is not a valid address"},
		{"missing smtp host", func(c *Config) { c.Mail.SMTP.Host = "" }, "mail.smtp.host"},
		{"missing sender", func(c *Config) { c.Mail.From = "" }, "sender"},
		{"empty prefix", func(c *Config) { c.PracticeCode.Prefix = " " }, "practice_code.prefix"},
		{"unknown store", func(c *Config) { c.PracticeCode.Store = "etcd" }, "practice_code.store"},
		{"sql without dsn", func(c *Config) { c.PracticeCode.Store = "sql" }, "practice_code.sql.dsn"},
		{"redis without addr", func(c *Config) { c.PracticeCode.Store = "redis" }, "practice_code.redis.addr"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	t.Run("mail disabled skips smtp checks", func(t *testing.T) {
		cfg := valid()
		cfg.Mail.Enabled = false
		cfg.Mail.SMTP.Host = ""
		cfg.Mail.From = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("all problems reported together", func(t *testing.T) {
		cfg := valid()
		cfg.Mail.Destination = ""
		cfg.PracticeCode.Prefix = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mail.destination")
		assert.Contains(t, err.Error(), "practice_code.prefix")
	})
}

func TestAppConfig(t *testing.T) {
	assert.Equal(t, time.UTC, (&AppConfig{}).Location())
	assert.Equal(t, time.UTC, (&AppConfig{Timezone: "Mars/Olympus"}).Location())
	assert.Equal(t, "Europe/Rome", (&AppConfig{Timezone: "Europe/Rome"}).Location().String())
	assert.True(t, (&AppConfig{Env: "development"}).IsDevelopment())
	assert.False(t, (&AppConfig{Env: "production"}).IsDevelopment())
}

func TestServerConfig(t *testing.T) {
	testCases := []struct {
		host string
		port int
		want string
	}{
		{"", 8080, ":8080"},
		{"127.0.0.1", 9000, "127.0.0.1:9000"},
	}
	for _, tc := range testCases {
		cfg := &ServerConfig{Host: tc.host, Port: tc.port}
		assert.Equal(t, tc.want, cfg.GetServerAddr())
	}
}

func TestManager(t *testing.T) {
	t.Run("Static and Get", func(t *testing.T) {
		cfg := &Config{}
		cfg.Mail.Destination = "a@b.it"
		m := Static(cfg)
		assert.Same(t, cfg, m.Get())
	})

	t.Run("Get is thread-safe", func(t *testing.T) {
		m := Static(&Config{})
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NotNil(t, m.Get())
			}()
		}
		wg.Wait()
	})

	t.Run("Watch without a file is a no-op", func(t *testing.T) {
		requiredEnv(t)
		m, err := NewManager("", nil)
		require.NoError(t, err)
		m.Watch(nil)
		assert.Equal(t, "ufficio@comune.example.it", m.Get().Mail.Destination)
	})
}

func TestManagerReloadsOnFileChange(t *testing.T) {
	const base = `
practice_code:
  prefix: DSV
mail:
  from: relay@example.it
  smtp:
    host: smtp.example.it
`
	dir := t.TempDir()
	path := writeConfig(t, dir, base+"  destination: first@example.it\n")

	m, err := NewManager(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "first@example.it", m.Get().Mail.Destination)

	changed := make(chan *Config, 4)
	m.Watch(func(c *Config) { changed <- c })

	// Broken edits are rejected and the previous config stays active.
	require.NoError(t, os.WriteFile(path, []byte(base+"  destination: \"\"\n"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, "first@example.it", m.Get().Mail.Destination)

	require.NoError(t, os.WriteFile(path, []byte(base+"  destination: second@example.it\n"), 0o644))
	require.Eventually(t, func() bool {
		return m.Get().Mail.Destination == "second@example.it"
	}, 5*time.Second, 50*time.Millisecond)

	select {
	case c := <-changed:
		assert.Equal(t, "second@example.it", c.Mail.Destination)
	case <-time.After(5 * time.Second):
		t.Fatal("onChange not called")
	}
}
