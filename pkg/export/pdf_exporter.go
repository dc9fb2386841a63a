package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets into a tabular PDF document.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF with a centered title and a bordered table.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetMargins(12, 14, 12)
	doc.AddPage()

	if title != "" {
		doc.SetFont("Helvetica", "B", 14)
		doc.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
		doc.Ln(4)
	}

	width := 186.0 / float64(len(data.Headers))

	doc.SetFont("Helvetica", "B", 10)
	doc.SetFillColor(235, 235, 235)
	for _, header := range data.Headers {
		doc.CellFormat(width, 8, header, "1", 0, "C", true, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Helvetica", "", 9)
	for _, row := range data.Rows {
		for _, cell := range data.record(row) {
			doc.CellFormat(width, 7, cell, "1", 0, "", false, 0, "")
		}
		doc.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := doc.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
