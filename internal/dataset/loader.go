package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultCSVCandidates are tried in order by FindDefaultCSV. The first is the cleaned export.
var DefaultCSVCandidates = []string{
	"Cell output 23 [DW].csv",
	"Health_Risk_Dataset.csv",
}

// RawTable is a decoded CSV before any type coercion.
type RawTable struct {
	Name   string
	Header []string
	Rows   [][]string
	// Lines holds the source line of each row, for error messages.
	Lines []int
	// Hash is the xxhash64 of the raw bytes the table was decoded from.
	Hash uint64
	// Delimiter is the field separator used to decode the rows.
	Delimiter rune
}

// LoadFile reads and decodes a CSV (or TSV, by extension) from disk.
func LoadFile(path string) (*RawTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	return LoadBytes(filepath.Base(path), b)
}

// LoadBytes decodes an in-memory CSV, e.g. an uploaded file.
func LoadBytes(name string, data []byte) (*RawTable, error) {
	t, err := ReadCSV(bytes.NewReader(data), sniffDelimiter(name))
	if err != nil {
		return nil, err
	}
	t.Name = name
	t.Hash = xxhash.Sum64(data)
	return t, nil
}

// ReadCSV decodes a header row followed by data rows. Hash is left zero.
func ReadCSV(r io.Reader, delim rune) (*RawTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if delim != 0 {
		cr.Comma = delim
	}

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Err: errors.New("no header row")}
		}
		return nil, &ParseError{Line: 1, Err: err}
	}
	t := &RawTable{Header: make([]string, len(header)), Delimiter: cr.Comma}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		t.Header[i] = strings.TrimSpace(h)
	}
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &ParseError{Line: pe.Line, Err: pe.Err}
			}
			return nil, &ParseError{Err: err}
		}
		line, _ := cr.FieldPos(0)
		t.Rows = append(t.Rows, rec)
		t.Lines = append(t.Lines, line)
	}
	return t, nil
}

// ColumnIndex resolves every required column to its position in the header.
// Exact matches win; otherwise a trimmed, case-insensitive match is accepted.
func (t *RawTable) ColumnIndex() (map[string]int, error) {
	exact := make(map[string]int, len(t.Header))
	folded := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		if _, ok := exact[h]; !ok {
			exact[h] = i
		}
		k := strings.ToLower(h)
		if _, ok := folded[k]; !ok {
			folded[k] = i
		}
	}
	idx := make(map[string]int, NumFeatures+1)
	var missing []string
	for _, col := range RequiredColumns() {
		if i, ok := exact[col]; ok {
			idx[col] = i
			continue
		}
		if i, ok := folded[strings.ToLower(col)]; ok {
			idx[col] = i
			continue
		}
		missing = append(missing, col)
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Missing: missing}
	}
	return idx, nil
}

// FindDefaultCSV returns the first default dataset present in dir.
func FindDefaultCSV(dir string) (string, error) {
	for _, name := range DefaultCSVCandidates {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no dataset found in %s (looked for %s)", dir, strings.Join(DefaultCSVCandidates, ", "))
}

func sniffDelimiter(name string) rune {
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		return '\t'
	}
	return ','
}
