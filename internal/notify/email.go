package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/domodwyer/mailyak/v3"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
)

type EmailTransport struct {
	addr string
	auth smtp.Auth
	from string
}

var _ EmailSender = (*EmailTransport)(nil)

func NewEmailTransport(host string, port int, user, password, from string) *EmailTransport {
	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, password, host)
	}
	return &EmailTransport{addr: host + ":" + strconv.Itoa(port), auth: auth, from: from}
}

func (e *EmailTransport) SendTickets(ctx context.Context, d Delivery) error {
	mail := mailyak.New(e.addr, e.auth)
	mail.To(d.Buyer.Email)
	mail.From(e.from)
	mail.Subject(fmt.Sprintf("Your tickets for %s", d.EventName))
	mail.Plain().Set(emailBody(d))

	for _, u := range d.Units {
		if u.Path == "" {
			continue
		}
		f, err := os.Open(u.Path)
		if err != nil {
			return errors.Wrapf(err, "open ticket %d", u.UnitID)
		}
		defer f.Close()
		mail.Attach(filepath.Base(u.Path), f)
	}
	if err := mail.Send(); err != nil {
		return errors.Wrapf(err, "send mail to %s", d.Buyer.Email)
	}
	return nil
}

func emailBody(d Delivery) string {
	var b strings.Builder
	name := d.Buyer.Name
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	fmt.Fprintf(&b, "Thank you for your purchase. Your %d ticket(s) for %s are attached.\n", len(d.Units), d.EventName)
	b.WriteString("Show the QR code on each ticket at the entrance.\n")
	return b.String()
}

// LogEmail only logs; the development profile uses it.
type LogEmail struct {
	Logger observability.Logger
}

func (l LogEmail) SendTickets(ctx context.Context, d Delivery) error {
	l.Logger.WithFields(map[string]interface{}{
		"intent_id": d.IntentID,
		"to":        d.Buyer.Email,
		"units":     len(d.Units),
	}).Info("email delivery")
	return nil
}
