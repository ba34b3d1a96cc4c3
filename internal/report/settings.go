package report

import (
	"github.com/dsvrelay/dsv-relay/internal/config"
	"github.com/dsvrelay/dsv-relay/internal/notifications"
)

// SettingsFromConfig reads the delivery settings from the live configuration, so a reloaded
// destination or sender applies to the next submission.
func SettingsFromConfig(m *config.Manager) SettingsFunc {
	return func() Settings {
		cfg := m.Get()
		return Settings{
			Destination: cfg.Mail.Destination,
			From:        notifications.Address{Name: cfg.Mail.FromName, Address: cfg.Mail.From},
			Location:    cfg.App.Location(),
		}
	}
}
