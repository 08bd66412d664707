// Package roster models rows of a membership export and the batch
// operations over them: loading, diffing against a prior batch, and
// membership classification.
package roster

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// RawRecord is one row of a membership export, keyed by source column
// name. Export schemas have drifted across vendor generations, so it
// stays a generic string map rather than a fixed struct.
type RawRecord map[string]string

// Get returns the value for key, or def when the column is absent or
// empty.
func (r RawRecord) Get(key, def string) string {
	if v, ok := r[key]; ok && v != "" {
		return v
	}
	return def
}

// Has reports whether the column is present with a non-empty value.
func (r RawRecord) Has(key string) bool {
	v, ok := r[key]
	return ok && v != ""
}

// Email returns the record's email column value, empty when missing.
func (r RawRecord) Email() string {
	return r.Get(ColumnEmail, "")
}

// MarshalRaw serializes the record for storage as the state table's
// raw attribute.
func (r RawRecord) MarshalRaw() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshaling raw record: %w", err)
	}
	return string(b), nil
}

// UnmarshalRaw restores a record serialized with MarshalRaw.
func UnmarshalRaw(raw string) (RawRecord, error) {
	var r RawRecord
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("unmarshaling raw record: %w", err)
	}
	return r, nil
}

// ColumnEmail is the export column holding the record's email address.
const ColumnEmail = "Email"

// ReadCSV loads an export CSV with a header row into records. Short
// rows are padded, long rows truncated to the header width.
func ReadCSV(r io.Reader) ([]RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("export is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading export header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []RawRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading export row %d: %w", len(records)+2, err)
		}

		rec := make(RawRecord, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(row) {
				rec[name] = strings.TrimSpace(row[i])
			}
		}
		records = append(records, rec)
	}

	return records, nil
}
