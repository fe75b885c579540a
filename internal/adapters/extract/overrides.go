package extract

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// OverrideMap maps a source reference (origin key or idempotency key) to
// the target id it must link to. Overrides exist for known-hard cases such
// as retainer payments and are consulted before heuristic blocking.
type OverrideMap map[string]int64

// Lookup returns the forced target id for a source reference.
func (o OverrideMap) Lookup(sourceRef string) (int64, bool) {
	id, ok := o[strings.TrimSpace(sourceRef)]
	return id, ok
}

// LoadOverrides reads a delimited file of source_reference,target_identifier
// pairs. A header row is tolerated and detected by an unparseable second
// column.
func LoadOverrides(path string) (OverrideMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open overrides: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	overrides := make(OverrideMap)
	line := 0
	for {
		rec, err := cr.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("read overrides row %d: %w", line+1, err)
		}
		line++
		if len(rec) < 2 {
			continue
		}
		ref := strings.TrimSpace(rec[0])
		targetID, err := strconv.ParseInt(strings.TrimSpace(rec[1]), 10, 64)
		if err != nil {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("overrides row %d: bad target id %q", line, rec[1])
		}
		if ref != "" {
			overrides[ref] = targetID
		}
	}
	return overrides, nil
}
