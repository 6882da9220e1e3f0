package certificate

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"
)

// VerifyURL is the public verification link for a code.
func VerifyURL(baseURL, code string) string {
	return baseURL + "/verify/" + code
}

// RenderPDF draws a landscape A4 certificate with a QR code linking to verifyURL.
func RenderPDF(d Detail, verifyURL string, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	qr, err := qrcode.Encode(verifyURL, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("qr: %w", err)
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Certificate "+d.Serial, true)
	pdf.SetAuthor(d.OrgName, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	w, h := pdf.GetPageSize()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetDrawColor(196, 140, 24)
	pdf.SetLineWidth(2)
	pdf.Rect(10, 10, w-20, h-20, "D")
	pdf.SetLineWidth(0.4)
	pdf.Rect(14, 14, w-28, h-28, "D")

	pdf.SetTextColor(40, 40, 40)
	pdf.SetFont("Helvetica", "", 14)
	pdf.SetXY(20, 30)
	pdf.CellFormat(w-40, 8, tr(d.OrgName), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "B", 32)
	pdf.SetX(20)
	pdf.CellFormat(w-40, 18, "Certificate of Completion", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 14)
	pdf.SetX(20)
	pdf.CellFormat(w-40, 12, "This certifies that", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "B", 26)
	pdf.SetX(20)
	pdf.CellFormat(w-40, 16, tr(d.HolderName), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 14)
	pdf.SetX(20)
	pdf.CellFormat(w-40, 10, "has successfully completed", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetX(20)
	pdf.CellFormat(w-40, 12, tr(d.CourseTitle), "", 1, "C", false, 0, "")

	issued := time.Unix(d.IssuedAt, 0).In(loc).Format("2 January 2006")
	expires := time.Unix(d.ExpiresAt, 0).In(loc).Format("2 January 2006")
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetXY(24, h-50)
	pdf.CellFormat(120, 6, "Issued: "+issued, "", 2, "L", false, 0, "")
	pdf.CellFormat(120, 6, "Valid until: "+expires, "", 2, "L", false, 0, "")
	pdf.CellFormat(120, 6, "Serial: "+d.Serial, "", 2, "L", false, 0, "")
	pdf.CellFormat(120, 6, "Verification code: "+d.VerificationCode, "", 2, "L", false, 0, "")

	const qrSize = 36.0
	opt := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opt, bytes.NewReader(qr))
	pdf.ImageOptions("qr", w-24-qrSize, h-24-qrSize-6, qrSize, qrSize, false, opt, 0, verifyURL)
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetXY(w-24-qrSize-10, h-28)
	pdf.CellFormat(qrSize+10, 4, "Scan to verify", "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: %w", err)
	}
	return buf.Bytes(), nil
}
