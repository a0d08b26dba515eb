package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"time"
)

// Exporter renders audit rows for download.
type Exporter struct{}

// NewExporter returns an Exporter.
func NewExporter() *Exporter {
	return &Exporter{}
}

// WriteCSV encodes rows with a fixed header.
func (e *Exporter) WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"created_at", "admin_id", "admin_email", "action", "resource_type", "resource_id", "details"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		details := "{}"
		if len(row.Details) > 0 {
			encoded, err := json.Marshal(row.Details)
			if err != nil {
				return nil, err
			}
			details = string(encoded)
		}
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			row.AdminID,
			row.AdminEmail,
			row.Action,
			row.ResourceType,
			row.ResourceID,
			details,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
