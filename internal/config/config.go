package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config represents the application configuration
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	PracticeCode PracticeCodeConfig `mapstructure:"practice_code"`
	Mail         MailConfig         `mapstructure:"mail"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	Timezone string `mapstructure:"timezone"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadSize   int64         `mapstructure:"max_upload_size"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	Origins []string `mapstructure:"origins"`
}

type PracticeCodeConfig struct {
	Prefix    string `mapstructure:"prefix"`
	MinDigits int    `mapstructure:"min_digits"`
	// Store is one of file, sql, redis, or an alias accepted by CanonicalStore.
	Store string `mapstructure:"store"`
	File  struct {
		Path        string `mapstructure:"path"`
		StrictRead  bool   `mapstructure:"strict_read"`
		KeepCorrupt bool   `mapstructure:"keep_corrupt"`
	} `mapstructure:"file"`
	SQL struct {
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"sql"`
	Redis struct {
		Addr      string `mapstructure:"addr"`
		Password  string `mapstructure:"password"`
		DB        int    `mapstructure:"db"`
		KeyPrefix string `mapstructure:"key_prefix"`
	} `mapstructure:"redis"`
}

type MailConfig struct {
	Enabled     bool       `mapstructure:"enabled"`
	Destination string     `mapstructure:"destination"`
	From        string     `mapstructure:"from"`
	FromName    string     `mapstructure:"from_name"`
	SMTP        SMTPConfig `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	AuthType string `mapstructure:"auth_type"`
	// Secure selects implicit TLS (smtps) like the classic port 465 setup.
	Secure bool `mapstructure:"secure"`
	// TLSMode overrides Secure: smtps, starttls or none.
	TLSMode    string        `mapstructure:"tls_mode"`
	SkipVerify bool          `mapstructure:"skip_verify"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// legacyEnv maps the plain environment names used by existing deployments onto config keys.
var legacyEnv = map[string]string{
	"server.port":             "PORT",
	"server.cors.origins":     "ALLOWED_ORIGIN",
	"mail.destination":        "DEST_EMAIL",
	"mail.smtp.host":          "SMTP_HOST",
	"mail.smtp.port":          "SMTP_PORT",
	"mail.smtp.secure":        "SMTP_SECURE",
	"mail.smtp.user":          "SMTP_USER",
	"mail.smtp.password":      "SMTP_PASS",
	"practice_code.file.path": "COUNTER_FILE",
	"practice_code.prefix":    "PRACTICE_PREFIX",
}

var envKey = strings.NewReplacer(".", "_")

// storeAliases maps accepted practice_code.store names to file, sql or redis.
var storeAliases = map[string]string{
	"file":     "file",
	"json":     "file",
	"sql":      "sql",
	"database": "sql",
	"db":       "sql",
	"redis":    "redis",
	"valkey":   "redis",
}

// CanonicalStore resolves a store name case-insensitively, ignoring surrounding spaces.
func CanonicalStore(name string) (string, bool) {
	canon, ok := storeAliases[strings.ToLower(strings.TrimSpace(name))]
	return canon, ok
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dsv-relay")
	v.SetDefault("app.env", "production")
	v.SetDefault("app.timezone", "Europe/Rome")

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_upload_size", 8*1024*1024)
	v.SetDefault("server.cors.origins", []string{"*"})

	v.SetDefault("practice_code.prefix", "DSV")
	v.SetDefault("practice_code.min_digits", 6)
	v.SetDefault("practice_code.store", "file")
	v.SetDefault("practice_code.file.path", "counter.json")
	v.SetDefault("practice_code.file.strict_read", false)
	v.SetDefault("practice_code.file.keep_corrupt", true)
	v.SetDefault("practice_code.sql.driver", "sqlite3")
	v.SetDefault("practice_code.sql.dsn", "")
	v.SetDefault("practice_code.redis.addr", "localhost:6379")
	v.SetDefault("practice_code.redis.password", "")
	v.SetDefault("practice_code.redis.db", 0)
	v.SetDefault("practice_code.redis.key_prefix", "dsv:counter")

	v.SetDefault("mail.enabled", true)
	v.SetDefault("mail.destination", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.from_name", "")
	v.SetDefault("mail.smtp.host", "")
	v.SetDefault("mail.smtp.port", 465)
	v.SetDefault("mail.smtp.user", "")
	v.SetDefault("mail.smtp.password", "")
	v.SetDefault("mail.smtp.auth_type", "plain")
	v.SetDefault("mail.smtp.secure", false)
	v.SetDefault("mail.smtp.tls_mode", "")
	v.SetDefault("mail.smtp.skip_verify", false)
	v.SetDefault("mail.smtp.timeout", 30*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// newViper builds the viper instance; loaded reports whether a config file was read.
func newViper(configFile string) (v *viper.Viper, loaded bool, err error) {
	v = viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	// Environment variable overrides
	v.SetEnvPrefix("DSV")
	v.SetEnvKeyReplacer(envKey)
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "DSV_"+strings.ToUpper(envKey.Replace(key)), env); err != nil {
			return nil, false, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if configFile == "" {
		return v, false, nil
	}
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		// It's OK if the config file doesn't exist
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || isNotExist(err) {
			return v, false, nil
		}
		return nil, false, fmt.Errorf("failed to read config: %w", err)
	}
	return v, true, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Server.CORS.Origins = splitList(cfg.Server.CORS.Origins)
	if canon, ok := CanonicalStore(cfg.PracticeCode.Store); ok {
		cfg.PracticeCode.Store = canon
	}
	if cfg.Mail.From == "" {
		cfg.Mail.From = cfg.Mail.SMTP.User
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads configuration from defaults, the optional file and the environment.
func Load(configFile string) (*Config, error) {
	v, _, err := newViper(configFile)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Manager holds the live configuration and swaps it when the config file changes.
type Manager struct {
	mu     sync.RWMutex
	cfg    *Config
	v      *viper.Viper // nil when no config file was read
	logger *zap.Logger
}

// NewManager loads the configuration once. Call Watch to enable hot reload.
func NewManager(configFile string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v, loaded, err := newViper(configFile)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	m := &Manager{cfg: cfg, logger: logger}
	if loaded {
		m.v = v
	}
	return m, nil
}

// Static wraps an already built configuration, mainly for tests.
func Static(cfg *Config) *Manager {
	return &Manager{cfg: cfg, logger: zap.NewNop()}
}

// SetLogger replaces the logger used for reload messages. Call before Watch.
func (m *Manager) SetLogger(logger *zap.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Get returns the current configuration (thread-safe)
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Watch reloads the configuration whenever the backing file changes. Invalid edits are
// logged and ignored; the previous configuration stays active.
func (m *Manager) Watch(onChange func(*Config)) {
	if m.v == nil {
		return
	}
	m.v.OnConfigChange(func(e fsnotify.Event) {
		newCfg, err := decode(m.v)
		if err != nil {
			m.logger.Warn("config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		m.mu.Lock()
		m.cfg = newCfg
		m.mu.Unlock()
		m.logger.Info("configuration reloaded", zap.String("file", e.Name))
		if onChange != nil {
			onChange(newCfg)
		}
	})
	m.v.WatchConfig()
}

// Location resolves the configured timezone, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsDevelopment returns true if running in development mode
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// GetServerAddr returns the server listen address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EffectiveTLSMode resolves the SMTP transport security: smtps, starttls or none.
func (c *SMTPConfig) EffectiveTLSMode() string {
	switch strings.ToLower(strings.TrimSpace(c.TLSMode)) {
	case "smtps", "tls", "ssl":
		return "smtps"
	case "starttls":
		return "starttls"
	case "none", "plain", "off":
		return "none"
	}
	if c.Secure {
		return "smtps"
	}
	return "starttls"
}

func isNotExist(err error) bool { return errors.Is(err, fs.ErrNotExist) }

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
