package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is ordered tabular export content. Rows are positional and
// aligned with Headers; short rows are padded, long rows truncated.
type Dataset struct {
	Headers []string
	Rows    [][]string
}

func (d Dataset) record(row []string) []string {
	record := make([]string, len(d.Headers))
	for i := range record {
		if i < len(row) {
			record[i] = row[i]
		}
	}
	return record
}

// CSVExporter renders a Dataset into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		if err := writer.Write(data.record(row)); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
