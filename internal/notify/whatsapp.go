package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
)

// WhatsAppTransport posts one document message per ticket to a messaging
// API endpoint.
type WhatsAppTransport struct {
	url         string
	token       string
	defaultDial string
	http        *http.Client
}

var _ MessageSender = (*WhatsAppTransport)(nil)

func NewWhatsAppTransport(url, token, defaultDial string, timeout time.Duration) *WhatsAppTransport {
	return &WhatsAppTransport{url: url, token: token, defaultDial: defaultDial, http: &http.Client{Timeout: timeout}}
}

type whatsAppDocument struct {
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
	Data     string `json:"data"`
}

type whatsAppMessage struct {
	To       string           `json:"to"`
	Type     string           `json:"type"`
	Document whatsAppDocument `json:"document"`
}

func (w *WhatsAppTransport) SendTicket(ctx context.Context, d Delivery, unit UnitArtifact) error {
	pdf, err := os.ReadFile(unit.Path)
	if err != nil {
		return errors.Wrapf(err, "read ticket %d", unit.UnitID)
	}
	msg := whatsAppMessage{
		To:   w.recipient(d.Buyer.MobileNo),
		Type: "document",
		Document: whatsAppDocument{
			Filename: filepath.Base(unit.Path),
			Caption:  Caption(d.EventName, unit.Seq, len(d.Units)),
			Data:     base64.StdEncoding.EncodeToString(pdf),
		},
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}
	resp, err := w.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "post whatsapp message")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Newf("whatsapp api returned status %d", resp.StatusCode)
	}
	return nil
}

// recipient prefixes bare local numbers with the default dialing code.
func (w *WhatsAppTransport) recipient(mobile string) string {
	digits := strings.TrimPrefix(strings.TrimSpace(mobile), "+")
	if len(digits) == 10 && w.defaultDial != "" {
		return w.defaultDial + digits
	}
	return digits
}

func Caption(event string, seq, total int) string {
	return fmt.Sprintf("%s: ticket %d of %d", event, seq, total)
}

type LogMessages struct {
	Logger observability.Logger
}

func (l LogMessages) SendTicket(ctx context.Context, d Delivery, unit UnitArtifact) error {
	l.Logger.WithFields(map[string]interface{}{
		"intent_id": d.IntentID,
		"unit_id":   unit.UnitID,
		"to":        d.Buyer.MobileNo,
	}).Info("whatsapp delivery")
	return nil
}
