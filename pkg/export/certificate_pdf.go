package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateDocument carries everything needed to render a completion
// certificate. Learner and course names come from the directory/catalog
// collaborators; the rest from the certificate row itself.
type CertificateDocument struct {
	LearnerName       string
	CourseTitle       string
	InstructorName    string
	EstimatedHours    int
	Code              string
	VerificationHash  string
	Issuer            string
	Locality          string
	ValidationBaseURL string
	CompletedAt       time.Time
	IssuedAt          time.Time
}

// PDFRenderer renders completion certificates as landscape A4 documents.
type PDFRenderer struct{}

// NewPDFRenderer constructs a certificate renderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// Render produces the certificate PDF bytes.
func (r *PDFRenderer) Render(doc CertificateDocument) ([]byte, error) {
	if doc.Code == "" {
		return nil, fmt.Errorf("certificate code required")
	}
	if doc.LearnerName == "" {
		doc.LearnerName = "Learner"
	}
	if doc.CourseTitle == "" {
		doc.CourseTitle = "Course"
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	pageW, pageH := pdf.GetPageSize()

	// Double decorative border.
	pdf.SetLineWidth(1.2)
	pdf.SetDrawColor(74, 144, 226)
	pdf.Rect(10, 10, pageW-20, pageH-20, "D")
	pdf.SetLineWidth(0.4)
	pdf.SetDrawColor(124, 179, 233)
	pdf.Rect(13, 13, pageW-26, pageH-26, "D")

	pdf.SetY(28)
	pdf.SetFont("Helvetica", "B", 22)
	pdf.SetTextColor(44, 62, 80)
	pdf.CellFormat(0, 12, doc.Issuer, "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 30)
	pdf.SetTextColor(74, 144, 226)
	pdf.CellFormat(0, 14, "CERTIFICATE OF COMPLETION", "", 1, "C", false, 0, "")

	pdf.SetLineWidth(0.8)
	pdf.SetDrawColor(74, 144, 226)
	pdf.Line(70, pdf.GetY()+2, pageW-70, pdf.GetY()+2)

	pdf.Ln(14)
	pdf.SetFont("Helvetica", "", 13)
	pdf.SetTextColor(44, 62, 80)
	body := fmt.Sprintf("This certifies that %s has completed the course %s", strings.ToUpper(doc.LearnerName), doc.CourseTitle)
	if doc.EstimatedHours > 0 {
		body = fmt.Sprintf("%s, with a workload of %d hours,", body, doc.EstimatedHours)
	}
	completedAt := doc.CompletedAt
	if completedAt.IsZero() {
		completedAt = doc.IssuedAt
	}
	body = fmt.Sprintf("%s on %s.", body, completedAt.Format("January 2, 2006"))
	pdf.MultiCell(0, 8, body, "", "C", false)

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "B", 12)
	issued := doc.IssuedAt
	if issued.IsZero() {
		issued = time.Now()
	}
	pdf.CellFormat(0, 8, fmt.Sprintf("%s, %s", doc.Locality, issued.Format("January 2, 2006")), "", 1, "C", false, 0, "")

	// Instructor block, bottom left.
	baseY := pageH - 55
	pdf.SetY(baseY)
	pdf.SetX(40)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(80, 7, doc.InstructorName, "", 1, "C", false, 0, "")
	pdf.SetX(40)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(127, 140, 141)
	pdf.CellFormat(80, 5, "INSTRUCTOR", "", 1, "C", false, 0, "")

	// Verification block, bottom right.
	pdf.SetY(baseY)
	pdf.SetX(pageW - 130)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetTextColor(44, 62, 80)
	pdf.CellFormat(100, 6, fmt.Sprintf("Code: %s", doc.Code), "", 1, "R", false, 0, "")
	if doc.ValidationBaseURL != "" {
		pdf.SetX(pageW - 130)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(127, 140, 141)
		pdf.CellFormat(100, 5, fmt.Sprintf("Validate at %s/%s", doc.ValidationBaseURL, doc.Code), "", 1, "R", false, 0, "")
	}

	pdf.SetY(pageH - 28)
	pdf.SetFont("Helvetica", "", 7)
	pdf.SetTextColor(160, 160, 160)
	pdf.CellFormat(0, 4, fmt.Sprintf("Verification hash: %s", doc.VerificationHash), "", 1, "C", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}
