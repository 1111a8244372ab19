// Package artifact renders the printable ticket for each issued unit.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

// UnitContext is everything printed on one ticket.
type UnitContext struct {
	IntentID    uuid.UUID
	UnitID      int64
	Seq         int
	Total       int
	EventName   string
	Venue       string
	EventDate   time.Time
	TicketType  string
	BuyerName   string
	Credential  string
	BannerPaths []string
}

type Renderer interface {
	RenderTicket(ctx context.Context, uc UnitContext) (string, error)
}

type PDFRenderer struct {
	dir string
}

var _ Renderer = (*PDFRenderer)(nil)

func NewPDFRenderer(dir string) (*PDFRenderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create artifact dir %s", dir)
	}
	return &PDFRenderer{dir: dir}, nil
}

// RenderTicket writes <dir>/<intent>-<unit>.pdf and returns its path.
func (r *PDFRenderer) RenderTicket(ctx context.Context, uc UnitContext) (string, error) {
	if uc.Credential == "" {
		return "", errors.Newf("unit %d has no credential", uc.UnitID)
	}
	png, err := qrcode.Encode(uc.Credential, qrcode.Medium, 256)
	if err != nil {
		return "", errors.Wrap(err, "encode qr")
	}

	pdf := fpdf.New("P", "mm", "A5", "")
	pdf.SetTitle(uc.EventName, true)
	pdf.AddPage()

	y := 12.0
	for _, banner := range uc.BannerPaths {
		if _, err := os.Stat(banner); err != nil {
			continue
		}
		pdf.ImageOptions(banner, 10, y, 128, 0, false, fpdf.ImageOptions{ReadDpi: true}, 0, "")
		y += 45
		break
	}
	pdf.SetY(y)

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, uc.EventName, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, uc.Venue, "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, uc.EventDate.Format("Mon, 02 Jan 2006 15:04"), "", 1, "C", false, 0, "")
	pdf.Ln(4)
	pdf.CellFormat(0, 6, fmt.Sprintf("%s ticket %d of %d", uc.TicketType, uc.Seq, uc.Total), "", 1, "C", false, 0, "")
	if uc.BuyerName != "" {
		pdf.CellFormat(0, 6, uc.BuyerName, "", 1, "C", false, 0, "")
	}

	name := fmt.Sprintf("qr-%d", uc.UnitID)
	pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))
	pdf.ImageOptions(name, 39, pdf.GetY()+6, 70, 70, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	pdf.SetY(pdf.GetY() + 80)
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(0, 5, fmt.Sprintf("Ticket no. %d", uc.UnitID), "", 1, "C", false, 0, "")

	path := filepath.Join(r.dir, fmt.Sprintf("%s-%d.pdf", uc.IntentID, uc.UnitID))
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", errors.Wrapf(err, "write %s", path)
	}
	return path, nil
}
