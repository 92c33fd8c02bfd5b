package queuesvc

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
)

const (
	defaultTicketSize = 256
	maxTicketSize     = 1024

	// Printed tickets target 80 mm receipt printers.
	ticketWidthMm  = 80.0
	ticketHeightMm = 130.0
	ticketMarginMm = 6.0
	ticketQRMm     = 40.0
)

var serviceLabels = map[queue.ServiceType]string{
	queue.ServiceAppointment:     "Appointment",
	queue.ServiceDirectWorkOrder: "Work order",
	queue.ServiceInquiry:         "Inquiry",
}

// TicketPayload is the text encoded in a ticket QR code.
func TicketPayload(e queue.Entry) string { return e.ID + ":" + e.VerificationCode }

func (s *Service) ticketEntry(ctx context.Context, id string) (queue.Entry, error) {
	e, err := s.engine().GetEntryByID(ctx, id)
	if err != nil {
		return queue.Entry{}, err
	}
	if e == nil {
		return queue.Entry{}, &queue.NotFoundError{ID: strings.TrimSpace(id)}
	}
	return *e, nil
}

// TicketPNG renders a QR code for the ticket. The payload is
// "<id>:<verificationCode>".
func (s *Service) TicketPNG(ctx context.Context, id string, size int) ([]byte, error) {
	e, err := s.ticketEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = defaultTicketSize
	}
	if size > maxTicketSize {
		size = maxTicketSize
	}
	png, err := qrcode.Encode(TicketPayload(e), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render ticket: %w", err)
	}
	return png, nil
}

// TicketPDF renders a printable receipt-sized ticket with the position,
// verification code and QR code.
func (s *Service) TicketPDF(ctx context.Context, id string) ([]byte, error) {
	e, err := s.ticketEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	qr, err := qrcode.Encode(TicketPayload(e), qrcode.Medium, defaultTicketSize)
	if err != nil {
		return nil, fmt.Errorf("render ticket qr: %w", err)
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "mm",
		Size:    gofpdf.SizeType{Wd: ticketWidthMm, Ht: ticketHeightMm},
	})
	pdf.SetMargins(ticketMarginMm, ticketMarginMm, ticketMarginMm)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	inner := ticketWidthMm - 2*ticketMarginMm

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(inner, 6, "WALK-IN TICKET", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 40)
	pdf.CellFormat(inner, 18, fmt.Sprintf("%d", e.Position), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(inner, 5, "Verification code", "", 1, "C", false, 0, "")
	pdf.SetFont("Courier", "B", 22)
	pdf.CellFormat(inner, 10, e.VerificationCode, "", 1, "C", false, 0, "")

	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(ticketMarginMm, pdf.GetY()+2, ticketWidthMm-ticketMarginMm, pdf.GetY()+2)
	pdf.Ln(5)

	pdf.SetFont("Helvetica", "", 9)
	label := serviceLabels[e.ServiceType]
	if label == "" {
		label = string(e.ServiceType)
	}
	rows := [][2]string{
		{"Service", label},
		{"Joined", e.JoinedAt.UTC().Format("2006-01-02 15:04 MST")},
	}
	if e.Plate != "" {
		rows = append(rows, [2]string{"Plate", e.Plate})
	}
	if e.EstimatedWaitMs > 0 {
		rows = append(rows, [2]string{"Est. wait", fmt.Sprintf("~%d min", (e.EstimatedWaitMs+59_999)/60_000)})
	}
	for _, r := range rows {
		pdf.CellFormat(inner/2, 5, r[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(inner/2, 5, tr(r[1]), "", 1, "R", false, 0, "")
	}

	opts := gofpdf.ImageOptions{ImageType: "png"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qr))
	pdf.ImageOptions("qr", (ticketWidthMm-ticketQRMm)/2, pdf.GetY()+3, ticketQRMm, ticketQRMm, false, opts, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	pdf.SetXY(ticketMarginMm, ticketHeightMm-ticketMarginMm-4)
	pdf.CellFormat(inner, 4, e.ID, "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render ticket pdf: %w", err)
	}
	return buf.Bytes(), nil
}
