// Package certificate renders course-completion certificates as PDFs.
// Pure local compute; nothing here talks to the backend.
package certificate

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

var ErrIncomplete = errors.New("certificate data incomplete")

type Data struct {
	LearnerName    string
	CourseTitle    string
	InstructorName string
	CompletedAt    time.Time
	Serial         string
}

// Render writes an A4 landscape certificate to w.
func Render(w io.Writer, data Data) error {
	if data.LearnerName == "" || data.CourseTitle == "" {
		return ErrIncomplete
	}
	if data.CompletedAt.IsZero() {
		data.CompletedAt = time.Now()
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(25, 25, 25)
	pdf.AddPage()

	pageWidth, _ := pdf.GetPageSize()

	pdf.SetLineWidth(1.2)
	pdf.SetDrawColor(30, 64, 124)
	pdf.Rect(12, 12, pageWidth-24, 186, "D")

	pdf.SetY(40)
	pdf.SetFont("Helvetica", "B", 32)
	pdf.SetTextColor(30, 64, 124)
	pdf.CellFormat(0, 16, "Certificate of Completion", "", 1, "C", false, 0, "")

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 14)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 26)
	pdf.SetTextColor(20, 20, 20)
	pdf.CellFormat(0, 14, data.LearnerName, "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 14)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 8, "has successfully completed the course", "", 1, "C", false, 0, "")

	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(20, 20, 20)
	pdf.CellFormat(0, 12, data.CourseTitle, "", 1, "C", false, 0, "")

	if data.InstructorName != "" {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 12)
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(0, 8, "Instructor: "+data.InstructorName, "", 1, "C", false, 0, "")
	}

	pdf.SetY(-45)
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 6, data.CompletedAt.Format("January 2, 2006"), "", 1, "C", false, 0, "")
	if data.Serial != "" {
		pdf.CellFormat(0, 6, fmt.Sprintf("Certificate no. %s", data.Serial), "", 1, "C", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render certificate: %w", err)
	}
	return nil
}
