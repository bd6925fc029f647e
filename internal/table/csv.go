package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// CSVOptions control CSV reading behavior.
//
// Header names are normalized the same way for every file: edge whitespace
// trimmed, a UTF-8 BOM stripped from the first header, spaces lowered to
// underscores. HeaderMap entries override the normalized name.
type CSVOptions struct {
	Comma     rune
	HeaderMap map[string]string

	// Encoding selects an input charset: "" or "utf-8" (default),
	// "latin1" (ISO 8859-1), or "windows-1252".
	Encoding string
}

func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return r, nil
	case "latin1", "iso-8859-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252", "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("csv: unsupported encoding %q", encoding)
	}
}

// ReadCSV parses CSV bytes from r into a Table named name.
//
// Values are typed leniently: int64 where the cell parses as an integer,
// float64 where it parses as a float, bool for true/false, nil for empty
// cells, string otherwise. This mirrors how raw inputs arrive before the
// metadata layer decides column types.
func ReadCSV(r io.Reader, name string, opt CSVOptions) (*Table, error) {
	comma := opt.Comma
	if comma == 0 {
		comma = ','
	}

	dr, err := decodeReader(r, opt.Encoding)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(dr)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csv %s: read header: %w", name, err)
	}

	columns := make([]string, len(hdr))
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if mapped, ok := opt.HeaderMap[h]; ok {
			h = mapped
		} else {
			h = strings.ReplaceAll(strings.ToLower(h), " ", "_")
		}
		columns[i] = h
	}

	t := New(name, columns)
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv %s: line %d: %w", name, line, err)
		}
		if len(rec) != len(columns) {
			// Misaligned records are skipped, consistent with lenient probing.
			continue
		}
		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = typeCell(strings.TrimSpace(v))
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ReadCSVFile reads a CSV file into a Table named name.
func ReadCSVFile(path, name string, opt CSVOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv %s: open: %w", name, err)
	}
	defer f.Close()
	return ReadCSV(f, name, opt)
}

// WriteCSV writes the table as CSV with a header row.
//
// nil values become empty cells; floats use the shortest round-trip form.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("csv %s: write header: %w", t.Name, err)
	}
	rec := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, v := range row {
			rec[i] = formatCell(v)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("csv %s: write row: %w", t.Name, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the table to path, creating or truncating the file.
func WriteCSVFile(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv %s: create: %w", t.Name, err)
	}
	if err := WriteCSV(f, t); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func typeCell(v string) any {
	if v == "" {
		return nil
	}
	if iv, err := strconv.ParseInt(v, 10, 64); err == nil {
		return iv
	}
	if fv, err := strconv.ParseFloat(v, 64); err == nil {
		return fv
	}
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	}
	return v
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}
