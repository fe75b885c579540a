package extract

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
)

// ReadExtract reads one delimited extract file and normalizes it. The first
// row is the header; header names are resolved case-insensitively against
// the known aliases. Rows that fail to normalize are skipped and counted,
// never fatal.
func ReadExtract(path string, system record.SourceSystem, logger *slog.Logger) ([]*record.SourceRecord, *Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open extract: %w", err)
	}
	defer f.Close()

	rows, err := readRows(f)
	if err != nil {
		return nil, nil, fmt.Errorf("read extract %s: %w", path, err)
	}

	adapter := NewAdapter(system, logger)
	records, stats := adapter.NormalizeAll(rows)
	return records, stats, nil
}

// readRows parses delimited content into header-keyed rows.
func readRows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // ragged rows are normal in bank exports

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var rows []Row
	line := 1
	for {
		rec, err := cr.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", line+1, err)
		}
		line++
		values := make(map[string]string, len(header))
		for i, v := range rec {
			if i < len(header) {
				values[header[i]] = v
			}
		}
		rows = append(rows, Row{Line: line, Values: values})
	}
	return rows, nil
}
