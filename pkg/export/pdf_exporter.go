package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets into a tabular PDF.
type PDFExporter struct {
	orientation string
	usableWidth float64
}

// NewPDFExporter constructs a portrait A4 exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{orientation: "P", usableWidth: 190.0}
}

// NewLandscapePDFExporter constructs a landscape A4 exporter, used for wide
// tables such as week grids.
func NewLandscapePDFExporter() *PDFExporter {
	return &PDFExporter{orientation: "L", usableWidth: 277.0}
}

// Render creates a PDF document with an optional title and table body.
// The header row repeats after every page break.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("dataset has no headers")
	}
	orientation := e.orientation
	width := e.usableWidth
	if orientation == "" {
		orientation = "P"
		width = 190.0
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(false, 15)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	colWidth := width / float64(len(data.Headers))
	writeHeader := func() {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(235, 235, 235)
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 8, header, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	writeHeader()

	_, pageHeight := pdf.GetPageSize()
	breakAt := pageHeight - 20
	for _, row := range data.Rows {
		if pdf.GetY()+7 > breakAt {
			pdf.AddPage()
			writeHeader()
		}
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 7, row[header], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
