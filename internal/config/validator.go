package config

import (
	"fmt"
	"net/mail"
	"strings"
)

// Validator collects every configuration problem before failing, so an operator sees the
// whole list at once.
type Validator struct {
	config *Config
	errors []string
}

func NewValidator(cfg *Config) *Validator {
	return &Validator{config: cfg, errors: []string{}}
}

// Validate checks the configuration and returns an error listing every problem found.
func (c *Config) Validate() error {
	return NewValidator(c).Validate()
}

func (v *Validator) Validate() error {
	v.validateServer()
	v.validatePracticeCode()
	v.validateMail()

	if len(v.errors) > 0 {
		return fmt.Errorf("config validation failed:\n%s", strings.Join(v.errors, "\n"))
	}
	return nil
}

func (v *Validator) validateServer() {
	s := v.config.Server
	if s.Port <= 0 || s.Port > 65535 {
		v.addError("server.port must be between 1 and 65535, got %d", s.Port)
	}
	if s.MaxUploadSize <= 0 {
		v.addError("server.max_upload_size must be positive")
	}
}

func (v *Validator) validatePracticeCode() {
	pc := v.config.PracticeCode
	if strings.TrimSpace(pc.Prefix) == "" {
		v.addError("practice_code.prefix is required")
	}
	if pc.MinDigits < 0 {
		v.addError("practice_code.min_digits must not be negative")
	}
	store, _ := CanonicalStore(pc.Store)
	switch store {
	case "file":
		if strings.TrimSpace(pc.File.Path) == "" {
			v.addError("practice_code.file.path is required for the file store")
		}
	case "sql":
		if strings.TrimSpace(pc.SQL.DSN) == "" {
			v.addError("practice_code.sql.dsn is required for the sql store")
		}
	case "redis":
		if strings.TrimSpace(pc.Redis.Addr) == "" {
			v.addError("practice_code.redis.addr is required for the redis store")
		}
	default:
		v.addError("practice_code.store must be one of file, sql, redis (or json, database, db, valkey), got %q", pc.Store)
	}
}

func (v *Validator) validateMail() {
	m := v.config.Mail
	if strings.TrimSpace(m.Destination) == "" {
		v.addError("mail.destination (DEST_EMAIL) is required")
	} else if _, err := mail.ParseAddress(m.Destination); err != nil {
		v.addError("mail.destination is not a valid address: %v", err)
	}
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.SMTP.Host) == "" {
		v.addError("mail.smtp.host (SMTP_HOST) is required when mail is enabled")
	}
	if m.SMTP.Port <= 0 || m.SMTP.Port > 65535 {
		v.addError("mail.smtp.port must be between 1 and 65535, got %d", m.SMTP.Port)
	}
	if strings.TrimSpace(m.From) == "" {
		v.addError("mail.from or mail.smtp.user (SMTP_USER) is required as sender")
	}
}

func (v *Validator) addError(format string, args ...interface{}) {
	v.errors = append(v.errors, "  - "+fmt.Sprintf(format, args...))
}
