package notify

import (
	"github.com/robertarktes/ticket-issuance-and-admission/internal/config"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
)

// SendersFromConfig picks real transports when they are configured and log
// transports otherwise.
func SendersFromConfig(cfg *config.Config, logger observability.Logger) (EmailSender, MessageSender) {
	var email EmailSender = LogEmail{Logger: logger}
	if cfg.SMTPHost != "" {
		email = NewEmailTransport(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.EmailFrom)
	}
	var messages MessageSender = LogMessages{Logger: logger}
	if cfg.WhatsAppURL != "" {
		messages = NewWhatsAppTransport(cfg.WhatsAppURL, cfg.WhatsAppToken, cfg.DefaultCountryDial, cfg.GatewayTimeout)
	}
	return email, messages
}
