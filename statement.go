package pinledger

import (
	"io"
	"time"

	"github.com/go-pdf/fpdf"
)

// WriteStatement renders a one page account summary as PDF. The PIN is
// masked.
func WriteStatement(w io.Writer, acct *Account, at time.Time) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Account Statement", false)
	pdf.SetCompression(false)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Account Statement", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, "Generated "+at.UTC().Format(time.RFC1123), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	rows := [][2]string{
		{"Account Number", tr(acct.AcctNo)},
		{"Name", tr(acct.Name)},
		{"Age", printer.Sprintf("%d", acct.Age)},
		{"Email", tr(acct.Email)},
		{"PIN", "****"},
		{"Balance", printer.Sprintf("%d", acct.Balance)},
	}
	for _, r := range rows {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(50, 8, r[0], "1", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(120, 8, r[1], "1", 1, "L", false, 0, "")
	}

	return pdf.Output(w)
}
